package matcher

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
)

// GroupResult describes several invoices settled by one movement
type GroupResult struct {
	Invoices []ledger.Record
	Bank     ledger.Record
	// InvoiceTotal is the sum of the invoice amounts.
	InvoiceTotal decimal.Decimal
	// Difference is InvoiceTotal + movement; what is left unexplained.
	Difference decimal.Decimal
	// Balanced is true when Difference is within tolerance.
	Balanced bool
}

// Links returns one bank match per invoice, all pointing at the movement.
func (g *GroupResult) Links() []ledger.Link {
	links := make([]ledger.Link, 0, len(g.Invoices))
	for _, inv := range g.Invoices {
		links = append(links, ledger.NewBankMatch(inv.Hash, g.Bank.Hash))
	}
	return links
}

// EvaluateGroup checks how well a movement covers a selection of invoices.
// An unbalanced group is still returned: operators may link it anyway and
// the difference is reported to them.
func (m *Matcher) EvaluateGroup(invoices []ledger.Record, movement ledger.Record) (*GroupResult, error) {
	if len(invoices) == 0 {
		return nil, fmt.Errorf("no invoices provided")
	}

	seen := make(map[string]bool, len(invoices))
	total := decimal.Zero
	for i, inv := range invoices {
		if seen[inv.Hash] {
			return nil, fmt.Errorf("invoice %s selected twice (index %d)", inv.Hash, i)
		}
		seen[inv.Hash] = true
		total = total.Add(inv.Decimal())
	}

	diff, ok := m.Offsets(total, movement.Decimal())
	return &GroupResult{
		Invoices:     invoices,
		Bank:         movement,
		InvoiceTotal: total,
		Difference:   diff,
		Balanced:     ok,
	}, nil
}
