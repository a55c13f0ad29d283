// Package ledger defines the records and links shared by every reconciliation
// component. Records are immutable once ingested; links carry all resolution state.
package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/ledger-reconciler/internal/domain/normalize"
)

// SourceType identifies which ledger a record came from
type SourceType string

const (
	SourceInvoice SourceType = "invoice"
	SourceBank    SourceType = "bank"
)

// ParseSourceType validates a wire value
func ParseSourceType(s string) (SourceType, error) {
	switch SourceType(s) {
	case SourceInvoice, SourceBank:
		return SourceType(s), nil
	}
	return "", fmt.Errorf("unknown source type %q", s)
}

// Record is one ingested invoice or bank movement.
type Record struct {
	Source       SourceType        `json:"source"`
	Hash         string            `json:"hash"`
	OccurredOn   string            `json:"occurred_on"`
	Amount       string            `json:"amount"`
	Counterparty string            `json:"counterparty"`
	Period       normalize.Period  `json:"period"`
	BatchID      int64             `json:"batch_id"`
	Index        int               `json:"ingestion_index"`
	Payload      map[string]string `json:"payload,omitempty"`
}

// Value is the signed numeric amount.
func (r Record) Value() float64 {
	return normalize.ParseAmount(r.Amount)
}

// Decimal is the signed exact amount.
func (r Record) Decimal() decimal.Decimal {
	return normalize.ParseDecimal(r.Amount)
}

// LinkKind is the resolution a link records
type LinkKind string

const (
	// KindBankMatch pairs an invoice with the bank movement that settled it.
	KindBankMatch LinkKind = "bank"
	// KindCash marks an invoice as settled outside the bank ledger.
	KindCash LinkKind = "cash"
	// KindExcluded removes a bank movement from matching.
	KindExcluded LinkKind = "excluded"
)

// ParseLinkKind validates a wire value
func ParseLinkKind(s string) (LinkKind, error) {
	switch LinkKind(s) {
	case KindBankMatch, KindCash, KindExcluded:
		return LinkKind(s), nil
	}
	return "", fmt.Errorf("unknown link kind %q", s)
}

// SubjectSource is the ledger the link's subject belongs to.
func (k LinkKind) SubjectSource() SourceType {
	if k == KindExcluded {
		return SourceBank
	}
	return SourceInvoice
}

// Link is keyed by SubjectHash: a subject carries at most one link.
// CounterpartHash is set only for bank matches.
type Link struct {
	SubjectHash     string     `json:"subject_hash"`
	SubjectKind     SourceType `json:"subject_kind"`
	Kind            LinkKind   `json:"kind"`
	CounterpartHash string     `json:"counterpart_hash,omitempty"`
}

// NewBankMatch links an invoice to a bank movement
func NewBankMatch(invoiceHash, bankHash string) Link {
	return Link{SubjectHash: invoiceHash, SubjectKind: SourceInvoice, Kind: KindBankMatch, CounterpartHash: bankHash}
}

// NewCashSettlement marks an invoice as paid in cash
func NewCashSettlement(invoiceHash string) Link {
	return Link{SubjectHash: invoiceHash, SubjectKind: SourceInvoice, Kind: KindCash}
}

// NewExclusion removes a bank movement from matching
func NewExclusion(bankHash string) Link {
	return Link{SubjectHash: bankHash, SubjectKind: SourceBank, Kind: KindExcluded}
}

// Validate checks the shape of the tagged union.
func (l Link) Validate() error {
	if l.SubjectHash == "" {
		return fmt.Errorf("link has no subject")
	}
	if l.SubjectKind != l.Kind.SubjectSource() {
		return fmt.Errorf("link kind %q cannot have a %s subject", l.Kind, l.SubjectKind)
	}
	switch l.Kind {
	case KindBankMatch:
		if l.CounterpartHash == "" {
			return fmt.Errorf("bank match for %s has no counterpart", l.SubjectHash)
		}
	case KindCash, KindExcluded:
		if l.CounterpartHash != "" {
			return fmt.Errorf("%s link for %s cannot have a counterpart", l.Kind, l.SubjectHash)
		}
	default:
		return fmt.Errorf("unknown link kind %q", l.Kind)
	}
	return nil
}
