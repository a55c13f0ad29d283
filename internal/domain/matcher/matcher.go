// Package matcher pairs invoices with the bank movements that settled them.
//
// The matcher uses strict first-fit criteria:
//   - |invoice + movement| must be within tolerance (default 5 cents)
//   - the movement must not be matched or excluded already
//   - invoices are visited in the order given, movements in ledger order
//
// There is no scoring and no backtracking: the first movement that fits is
// taken. Within one run every movement is used at most once.
//
// Example usage:
//
//	m := matcher.NewMatcher(matcher.DefaultConfig())
//	results := m.AutoMatch(st.FilteredInvoices(filter), st.BankMovements(), st)
//	for _, r := range results {
//		links = append(links, r.Link())
//	}
package matcher

import (
	"github.com/shopspring/decimal"

	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
)

// Tolerance comparisons allow for the rounding of the configured float.
var epsilon = decimal.New(1, -7)

// Matcher matches invoices with bank movements
type Matcher struct {
	config    Config
	tolerance decimal.Decimal
}

// NewMatcher creates a new matcher with the given config
func NewMatcher(config Config) *Matcher {
	return &Matcher{
		config:    config,
		tolerance: decimal.NewFromFloat(config.AmountTolerance).Add(epsilon),
	}
}

// Config returns the matcher's configuration
func (m *Matcher) Config() Config {
	return m.config
}

// Offsets reports whether an invoice amount and a movement amount cancel out
// within tolerance. Invoices are positive and payments negative, so a
// settled pair sums to about zero.
func (m *Matcher) Offsets(invoice, movement decimal.Decimal) (decimal.Decimal, bool) {
	residual := invoice.Add(movement)
	return residual, residual.Abs().LessThanOrEqual(m.tolerance)
}

// FindMatch returns the first unused movement offsetting the invoice.
// Returns nil if no suitable match found
func (m *Matcher) FindMatch(
	invoice ledger.Record,
	movements []ledger.Record,
	usedBank map[string]bool,
) *MatchResult {
	amount := invoice.Decimal()

	for _, mv := range movements {
		if usedBank[mv.Hash] {
			continue
		}
		residual, ok := m.Offsets(amount, mv.Decimal())
		if !ok {
			continue
		}
		return &MatchResult{Invoice: invoice, Bank: mv, Residual: residual}
	}

	return nil
}

// AutoMatch proposes bank matches for the unresolved invoices given.
// Existing links are never touched; the caller persists and applies the
// returned matches.
func (m *Matcher) AutoMatch(
	invoices []ledger.Record,
	movements []ledger.Record,
	resolution Resolution,
) []MatchResult {
	used := resolution.UsedBank()

	var results []MatchResult
	for _, inv := range invoices {
		if resolution.IsInvoiceResolved(inv.Hash) {
			continue
		}
		result := m.FindMatch(inv, movements, used)
		if result == nil {
			continue
		}
		used[result.Bank.Hash] = true
		results = append(results, *result)
	}
	return results
}
