package state

import (
	"sort"

	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
)

// Invoices returns the invoices in display order. The slice is a copy.
func (s *State) Invoices() []ledger.Record {
	return append([]ledger.Record(nil), s.invoices...)
}

// BankMovements returns the bank movements in display order. The slice is a copy.
func (s *State) BankMovements() []ledger.Record {
	return append([]ledger.Record(nil), s.bank...)
}

// Invoice looks up an invoice by hash
func (s *State) Invoice(hash string) (ledger.Record, bool) {
	i, ok := s.invoiceIdx[hash]
	if !ok {
		return ledger.Record{}, false
	}
	return s.invoices[i], true
}

// BankMovement looks up a bank movement by hash
func (s *State) BankMovement(hash string) (ledger.Record, bool) {
	i, ok := s.bankIdx[hash]
	if !ok {
		return ledger.Record{}, false
	}
	return s.bank[i], true
}

// Record looks up a record of either ledger
func (s *State) Record(hash string) (ledger.Record, bool) {
	if r, ok := s.Invoice(hash); ok {
		return r, true
	}
	return s.BankMovement(hash)
}

// Hashes returns every record hash currently held.
func (s *State) Hashes() []string {
	out := make([]string, 0, len(s.invoices)+len(s.bank))
	for _, r := range s.invoices {
		out = append(out, r.Hash)
	}
	for _, r := range s.bank {
		out = append(out, r.Hash)
	}
	return out
}

// LinkFor returns the link keyed by the subject hash
func (s *State) LinkFor(subjectHash string) (ledger.Link, bool) {
	l, ok := s.links[subjectHash]
	return l, ok
}

// Links returns every link, invoice subjects first, each in display order.
func (s *State) Links() []ledger.Link {
	out := make([]ledger.Link, 0, len(s.links))
	for _, r := range s.invoices {
		if l, ok := s.links[r.Hash]; ok {
			out = append(out, l)
		}
	}
	for _, r := range s.bank {
		if l, ok := s.links[r.Hash]; ok {
			out = append(out, l)
		}
	}
	return out
}

// IsInvoiceResolved reports whether the invoice is bank-matched or cash-settled.
func (s *State) IsInvoiceResolved(hash string) bool {
	l, ok := s.links[hash]
	return ok && (l.Kind == ledger.KindBankMatch || l.Kind == ledger.KindCash)
}

// IsBankUsed reports whether the movement is matched to an invoice or excluded.
func (s *State) IsBankUsed(hash string) bool {
	if s.bankRefs[hash] > 0 {
		return true
	}
	return s.IsBankExcluded(hash)
}

// IsBankExcluded reports whether the movement was excluded from matching
func (s *State) IsBankExcluded(hash string) bool {
	l, ok := s.links[hash]
	return ok && l.Kind == ledger.KindExcluded
}

// UsedBank returns the set of used bank hashes.
func (s *State) UsedBank() map[string]bool {
	used := make(map[string]bool, len(s.bankRefs))
	for h := range s.bankRefs {
		used[h] = true
	}
	for h, l := range s.links {
		if l.Kind == ledger.KindExcluded {
			used[h] = true
		}
	}
	return used
}

// InvoicesMatchedTo returns the invoices bank-matched to a movement, in display order.
func (s *State) InvoicesMatchedTo(bankHash string) []ledger.Record {
	if s.bankRefs[bankHash] == 0 {
		return nil
	}
	var out []ledger.Record
	for _, r := range s.invoices {
		if l, ok := s.links[r.Hash]; ok && l.Kind == ledger.KindBankMatch && l.CounterpartHash == bankHash {
			out = append(out, r)
		}
	}
	return out
}

// LatestYear is the most recent valid fiscal year across both ledgers, or 0.
func (s *State) LatestYear() int {
	latest := 0
	for _, records := range [][]ledger.Record{s.invoices, s.bank} {
		for _, r := range records {
			if r.Period.HasYear() && r.Period.Year > latest {
				latest = r.Period.Year
			}
		}
	}
	return latest
}

// Years lists the valid fiscal years present, newest first.
func (s *State) Years() []int {
	seen := make(map[int]bool)
	var years []int
	for _, records := range [][]ledger.Record{s.invoices, s.bank} {
		for _, r := range records {
			if r.Period.HasYear() && !seen[r.Period.Year] {
				seen[r.Period.Year] = true
				years = append(years, r.Period.Year)
			}
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))
	return years
}
