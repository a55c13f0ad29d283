package state

import (
	"strings"

	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/normalize"
)

// Filter selects the records a view shows. The zero value selects everything.
type Filter struct {
	Year        int    `json:"year,omitempty"`
	Quarters    []int  `json:"quarters,omitempty"`
	Search      string `json:"search,omitempty"`
	PendingOnly bool   `json:"pending_only,omitempty"`
}

// MatchesPeriod reports whether a period falls inside the filter's year and quarters.
func (f Filter) MatchesPeriod(p normalize.Period) bool {
	if f.Year != 0 && p.Year != f.Year {
		return false
	}
	if len(f.Quarters) == 0 {
		return true
	}
	for _, q := range f.Quarters {
		if p.Quarter == q {
			return true
		}
	}
	return false
}

// MatchesText does a case-insensitive substring search over counterparty, amount and date.
func (f Filter) MatchesText(r ledger.Record) bool {
	needle := strings.ToLower(strings.TrimSpace(f.Search))
	if needle == "" {
		return true
	}
	for _, hay := range []string{r.Counterparty, r.Amount, r.OccurredOn} {
		if strings.Contains(strings.ToLower(hay), needle) {
			return true
		}
	}
	return false
}

func (f Filter) matches(r ledger.Record, resolved bool) bool {
	if f.PendingOnly && resolved {
		return false
	}
	return f.MatchesPeriod(r.Period) && f.MatchesText(r)
}

// InvoiceRow is an invoice with its resolution.
type InvoiceRow struct {
	ledger.Record
	Resolution ledger.LinkKind `json:"resolution,omitempty"`
	// Counterpart is the matched bank movement for bank matches.
	Counterpart     *ledger.Record `json:"counterpart,omitempty"`
	QuarterMismatch bool           `json:"quarter_mismatch,omitempty"`
}

// BankRow is a bank movement with its resolution.
type BankRow struct {
	ledger.Record
	Excluded bool     `json:"excluded,omitempty"`
	Invoices []string `json:"invoices,omitempty"`
}

// Used reports whether the movement is matched or excluded.
func (r BankRow) Used() bool {
	return r.Excluded || len(r.Invoices) > 0
}

// InvoiceView lists invoices passing the filter, in display order.
func (s *State) InvoiceView(f Filter) []InvoiceRow {
	var rows []InvoiceRow
	for _, r := range s.invoices {
		if !f.matches(r, s.IsInvoiceResolved(r.Hash)) {
			continue
		}
		row := InvoiceRow{Record: r}
		if l, ok := s.links[r.Hash]; ok {
			row.Resolution = l.Kind
			if l.Kind == ledger.KindBankMatch {
				if b, ok := s.BankMovement(l.CounterpartHash); ok {
					row.Counterpart = &b
					row.QuarterMismatch = quarterMismatch(r, b)
				}
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// FilteredInvoices returns the invoice records passing the filter.
func (s *State) FilteredInvoices(f Filter) []ledger.Record {
	var out []ledger.Record
	for _, r := range s.invoices {
		if f.matches(r, s.IsInvoiceResolved(r.Hash)) {
			out = append(out, r)
		}
	}
	return out
}

// BankView lists bank movements passing the filter. PendingOnly hides used movements.
func (s *State) BankView(f Filter) []BankRow {
	var rows []BankRow
	for _, r := range s.bank {
		if !f.matches(r, s.IsBankUsed(r.Hash)) {
			continue
		}
		row := BankRow{Record: r, Excluded: s.IsBankExcluded(r.Hash)}
		for _, inv := range s.InvoicesMatchedTo(r.Hash) {
			row.Invoices = append(row.Invoices, inv.Hash)
		}
		rows = append(rows, row)
	}
	return rows
}

// ResolvedItem is one line of the resolved report.
type ResolvedItem struct {
	Kind            ledger.LinkKind `json:"kind"`
	Invoice         *ledger.Record  `json:"invoice,omitempty"`
	Bank            *ledger.Record  `json:"bank,omitempty"`
	QuarterMismatch bool            `json:"quarter_mismatch,omitempty"`
}

// ResolvedReport lists bank matches, cash settlements and exclusions.
// Invoice links are filtered by the invoice period, exclusions by the movement period.
func (s *State) ResolvedReport(f Filter) []ResolvedItem {
	var items []ResolvedItem
	for _, r := range s.invoices {
		l, ok := s.links[r.Hash]
		if !ok || !f.MatchesPeriod(r.Period) || !f.MatchesText(r) {
			continue
		}
		inv := r
		item := ResolvedItem{Kind: l.Kind, Invoice: &inv}
		if l.Kind == ledger.KindBankMatch {
			if b, ok := s.BankMovement(l.CounterpartHash); ok {
				item.Bank = &b
				item.QuarterMismatch = quarterMismatch(r, b)
			}
		}
		items = append(items, item)
	}
	for _, r := range s.bank {
		if !s.IsBankExcluded(r.Hash) || !f.MatchesPeriod(r.Period) || !f.MatchesText(r) {
			continue
		}
		b := r
		items = append(items, ResolvedItem{Kind: ledger.KindExcluded, Bank: &b})
	}
	return items
}

func quarterMismatch(invoice, bank ledger.Record) bool {
	if !invoice.Period.Valid() || !bank.Period.Valid() {
		return false
	}
	return invoice.Period != bank.Period
}

// LedgerStats are the counts and sums for one ledger.
type LedgerStats struct {
	Total         int     `json:"total"`
	Resolved      int     `json:"resolved"`
	Pending       int     `json:"pending"`
	TotalAmount   float64 `json:"total_amount"`
	PendingAmount float64 `json:"pending_amount"`
}

// Stats summarizes both ledgers.
type Stats struct {
	Invoices LedgerStats `json:"invoices"`
	Bank     LedgerStats `json:"bank"`
}

// Stats computes totals over the records in the filter's period and search.
// PendingOnly is ignored since it would make the resolved count meaningless.
func (s *State) Stats(f Filter) Stats {
	f.PendingOnly = false
	var st Stats
	for _, r := range s.invoices {
		if f.matches(r, false) {
			st.Invoices.add(r, s.IsInvoiceResolved(r.Hash))
		}
	}
	for _, r := range s.bank {
		if f.matches(r, false) {
			st.Bank.add(r, s.IsBankUsed(r.Hash))
		}
	}
	return st
}

func (ls *LedgerStats) add(r ledger.Record, resolved bool) {
	v := r.Value()
	ls.Total++
	ls.TotalAmount += v
	if resolved {
		ls.Resolved++
		return
	}
	ls.Pending++
	ls.PendingAmount += v
}

// Snapshot is a full export of the state.
type Snapshot struct {
	Invoices      []ledger.Record `json:"invoices"`
	BankMovements []ledger.Record `json:"bank_movements"`
	Links         []ledger.Link   `json:"links"`
}

// Snapshot copies the records and links for export.
func (s *State) Snapshot() Snapshot {
	return Snapshot{
		Invoices:      s.Invoices(),
		BankMovements: s.BankMovements(),
		Links:         s.Links(),
	}
}
