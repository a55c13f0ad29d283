package storage

import (
	"encoding/json"
	"fmt"

	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/normalize"
)

// StoredRecord is a persisted invoice or bank movement
type StoredRecord struct {
	IdentityHash   string            `json:"identity_hash"`
	Type           string            `json:"type"`
	OccurredOn     string            `json:"occurred_on"`
	Amount         string            `json:"amount"`
	Counterparty   string            `json:"counterparty"`
	Payload        map[string]string `json:"payload"`
	FiscalYear     int               `json:"fiscal_year"`
	FiscalQuarter  int               `json:"fiscal_quarter"`
	BatchID        int64             `json:"batch_id"`
	IngestionIndex int               `json:"ingestion_index"`
}

// StoredLink is a persisted reconciliation link
type StoredLink struct {
	SubjectHash     string `json:"subject_hash"`
	SubjectKind     string `json:"subject_kind"`
	Kind            string `json:"kind"`
	CounterpartHash string `json:"counterpart_hash,omitempty"`
}

// NewStoredRecord converts a domain record for persistence
func NewStoredRecord(r ledger.Record) *StoredRecord {
	return &StoredRecord{
		IdentityHash:   r.Hash,
		Type:           string(r.Source),
		OccurredOn:     r.OccurredOn,
		Amount:         r.Amount,
		Counterparty:   r.Counterparty,
		Payload:        r.Payload,
		FiscalYear:     r.Period.Year,
		FiscalQuarter:  r.Period.Quarter,
		BatchID:        r.BatchID,
		IngestionIndex: r.Index,
	}
}

// ToLedger converts back to a domain record
func (s *StoredRecord) ToLedger() (ledger.Record, error) {
	source, err := ledger.ParseSourceType(s.Type)
	if err != nil {
		return ledger.Record{}, fmt.Errorf("record %s: %w", s.IdentityHash, err)
	}
	return ledger.Record{
		Source:       source,
		Hash:         s.IdentityHash,
		OccurredOn:   s.OccurredOn,
		Amount:       s.Amount,
		Counterparty: s.Counterparty,
		Period:       normalize.Period{Year: s.FiscalYear, Quarter: s.FiscalQuarter},
		BatchID:      s.BatchID,
		Index:        s.IngestionIndex,
		Payload:      s.Payload,
	}, nil
}

// NewStoredLink converts a domain link for persistence
func NewStoredLink(l ledger.Link) *StoredLink {
	return &StoredLink{
		SubjectHash:     l.SubjectHash,
		SubjectKind:     string(l.SubjectKind),
		Kind:            string(l.Kind),
		CounterpartHash: l.CounterpartHash,
	}
}

// ToLedger converts back to a domain link. Rows without a subject kind
// take the one implied by their link kind.
func (s *StoredLink) ToLedger() (ledger.Link, error) {
	kind, err := ledger.ParseLinkKind(s.Kind)
	if err != nil {
		return ledger.Link{}, fmt.Errorf("link %s: %w", s.SubjectHash, err)
	}
	subject := kind.SubjectSource()
	if s.SubjectKind != "" {
		if subject, err = ledger.ParseSourceType(s.SubjectKind); err != nil {
			return ledger.Link{}, fmt.Errorf("link %s: %w", s.SubjectHash, err)
		}
	}
	l := ledger.Link{
		SubjectHash:     s.SubjectHash,
		SubjectKind:     subject,
		Kind:            kind,
		CounterpartHash: s.CounterpartHash,
	}
	if err := l.Validate(); err != nil {
		return ledger.Link{}, err
	}
	return l, nil
}

func encodePayload(p map[string]string) (string, error) {
	if p == nil {
		return "{}", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return string(b), nil
}

func decodePayload(raw []byte) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var p map[string]string
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return p, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
