package ledger

import "strings"

// Columns names the raw row fields that carry a record's identity.
type Columns struct {
	Date        string `yaml:"date" json:"date"`
	Amount      string `yaml:"amount" json:"amount"`
	Description string `yaml:"description" json:"description"`
}

// DefaultInvoiceColumns matches the invoice register export.
func DefaultInvoiceColumns() Columns {
	return Columns{Date: "DATA", Amount: "TOTAL FACTURA", Description: "PROVEEDOR"}
}

// DefaultBankColumns matches the bank movement export.
func DefaultBankColumns() Columns {
	return Columns{Date: "F. Operativa", Amount: "Importe", Description: "Concepto"}
}

// Fields are the identity-bearing values of a raw row.
type Fields struct {
	Date        string
	Amount      string
	Description string
	// Complete is false when any identity column is absent from the row.
	Complete bool
}

// Extract reads the identity fields from a raw row.
func (c Columns) Extract(row map[string]string) Fields {
	date, okDate := Lookup(row, c.Date)
	amount, okAmount := Lookup(row, c.Amount)
	desc, okDesc := Lookup(row, c.Description)
	return Fields{
		Date:        date,
		Amount:      amount,
		Description: desc,
		Complete:    okDate && okAmount && okDesc,
	}
}

// Lookup finds a column by exact name, then case-insensitively with
// surrounding whitespace ignored. Exports are inconsistent about both.
func Lookup(row map[string]string, column string) (string, bool) {
	if v, ok := row[column]; ok {
		return strings.TrimSpace(v), true
	}
	want := strings.ToLower(strings.TrimSpace(column))
	for k, v := range row {
		if strings.ToLower(strings.TrimSpace(k)) == want {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}
