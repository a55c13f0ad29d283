package dto

import "github.com/eshaffer321/ledger-reconciler/internal/domain/state"

// FilterRequest selects the invoices an auto-match run considers.
// An absent year means the latest year on record.
type FilterRequest struct {
	Year     *int   `json:"year" validate:"omitempty,gte=0"`
	Quarters []int  `json:"quarters" validate:"omitempty,dive,min=1,max=4"`
	Search   string `json:"search" validate:"max=200"`
}

// ToFilter converts the request, using defaultYear when none was given.
func (r FilterRequest) ToFilter(defaultYear int) state.Filter {
	f := state.Filter{Year: defaultYear, Quarters: r.Quarters, Search: r.Search}
	if r.Year != nil {
		f.Year = *r.Year
	}
	return f
}

// LinkRequest settles invoices with one bank movement.
type LinkRequest struct {
	InvoiceHashes []string `json:"invoice_hashes" validate:"required,min=1,dive,required"`
	BankHash      string   `json:"bank_hash" validate:"required"`
}

// DeleteRecordsRequest deletes records and their links. Confirm must be true.
type DeleteRecordsRequest struct {
	Hashes  []string `json:"hashes" validate:"required,min=1,dive,required"`
	Confirm bool     `json:"confirm"`
}
