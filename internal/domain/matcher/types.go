package matcher

import (
	"github.com/shopspring/decimal"

	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
)

// Config holds matcher configuration
type Config struct {
	// AmountTolerance bounds |invoice + movement|. Default: 0.05
	AmountTolerance float64
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		AmountTolerance: 0.05,
	}
}

// MatchResult pairs an invoice with the movement that offsets it
type MatchResult struct {
	Invoice ledger.Record
	Bank    ledger.Record
	// Residual is invoice + movement; zero for an exact offset.
	Residual decimal.Decimal
}

// Link returns the bank match this result stands for.
func (r MatchResult) Link() ledger.Link {
	return ledger.NewBankMatch(r.Invoice.Hash, r.Bank.Hash)
}

// Resolution answers which records already carry a link.
// *state.State satisfies it.
type Resolution interface {
	IsInvoiceResolved(hash string) bool
	// UsedBank returns a fresh set; the matcher adds to it.
	UsedBank() map[string]bool
}
