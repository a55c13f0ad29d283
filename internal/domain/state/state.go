// Package state holds the in-memory reconciliation state: the two ledgers and
// the links resolving them, all addressed by identity hash.
//
// A State is rebuilt from persisted records and links on every full load and
// then mutated by commands. It is not safe for concurrent use; callers
// serialize access.
package state

import (
	"errors"
	"fmt"
	"sort"

	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
)

var (
	// ErrUnknownRecord is returned when a hash does not name a record of the expected ledger.
	ErrUnknownRecord = errors.New("state: unknown record")
	// ErrDuplicateRecord is returned when adding a record whose hash is already present.
	ErrDuplicateRecord = errors.New("state: duplicate record hash")
)

// State is the reconciliation working set.
type State struct {
	invoices   []ledger.Record
	bank       []ledger.Record
	invoiceIdx map[string]int
	bankIdx    map[string]int

	links map[string]ledger.Link
	// bankRefs counts bank matches per bank hash; several invoices may
	// share one movement when it was linked manually.
	bankRefs map[string]int
}

// RebuildStats summarizes a rebuild
type RebuildStats struct {
	Invoices      int
	BankMovements int
	Links         int
	Orphans       int
}

// New returns an empty state
func New() *State {
	return &State{
		invoiceIdx: make(map[string]int),
		bankIdx:    make(map[string]int),
		links:      make(map[string]ledger.Link),
		bankRefs:   make(map[string]int),
	}
}

// Rebuild assembles a state from a full load. Records are put in display
// order (newest batch first, row order inside a batch). Links whose
// endpoints are not loaded are skipped and counted as orphans.
func Rebuild(records []ledger.Record, links []ledger.Link) (*State, RebuildStats) {
	s := New()
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if _, dup := seen[r.Hash]; dup {
			continue
		}
		switch r.Source {
		case ledger.SourceInvoice:
			s.invoices = append(s.invoices, r)
		case ledger.SourceBank:
			s.bank = append(s.bank, r)
		default:
			continue
		}
		seen[r.Hash] = struct{}{}
	}

	SortForDisplay(s.invoices)
	SortForDisplay(s.bank)
	s.reindex()

	stats := RebuildStats{Invoices: len(s.invoices), BankMovements: len(s.bank)}
	for _, l := range links {
		if err := s.ApplyLink(l); err != nil {
			stats.Orphans++
			continue
		}
	}
	stats.Links = len(s.links)
	return s, stats
}

// SortForDisplay orders records by batch, newest first, then by row index.
func SortForDisplay(records []ledger.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].BatchID != records[j].BatchID {
			return records[i].BatchID > records[j].BatchID
		}
		return records[i].Index < records[j].Index
	})
}

func (s *State) reindex() {
	s.invoiceIdx = make(map[string]int, len(s.invoices))
	for i, r := range s.invoices {
		s.invoiceIdx[r.Hash] = i
	}
	s.bankIdx = make(map[string]int, len(s.bank))
	for i, r := range s.bank {
		s.bankIdx[r.Hash] = i
	}
}

// AddRecords inserts freshly ingested records ahead of the existing ones,
// keeping their relative order.
func (s *State) AddRecords(records ...ledger.Record) error {
	seen := make(map[string]struct{}, len(records))
	var invoices, bank []ledger.Record
	for _, r := range records {
		if _, ok := s.Record(r.Hash); ok {
			return fmt.Errorf("%w: %s", ErrDuplicateRecord, r.Hash)
		}
		if _, ok := seen[r.Hash]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateRecord, r.Hash)
		}
		seen[r.Hash] = struct{}{}

		switch r.Source {
		case ledger.SourceInvoice:
			invoices = append(invoices, r)
		case ledger.SourceBank:
			bank = append(bank, r)
		default:
			return fmt.Errorf("state: record %s has unknown source %q", r.Hash, r.Source)
		}
	}

	s.invoices = append(invoices, s.invoices...)
	s.bank = append(bank, s.bank...)
	s.reindex()
	return nil
}

// RemoveRecords deletes records and every link that references them as
// subject or counterpart. It returns the links dropped.
func (s *State) RemoveRecords(hashes []string) []ledger.Link {
	doomed := make(map[string]struct{}, len(hashes))
	for _, h := range hashes {
		doomed[h] = struct{}{}
	}

	var dropped []ledger.Link
	for _, l := range s.Links() {
		_, subj := doomed[l.SubjectHash]
		_, cp := doomed[l.CounterpartHash]
		if subj || (l.CounterpartHash != "" && cp) {
			s.RemoveLink(l.SubjectHash)
			dropped = append(dropped, l)
		}
	}

	s.invoices = without(s.invoices, doomed)
	s.bank = without(s.bank, doomed)
	s.reindex()
	return dropped
}

func without(records []ledger.Record, doomed map[string]struct{}) []ledger.Record {
	out := records[:0:0]
	for _, r := range records {
		if _, ok := doomed[r.Hash]; !ok {
			out = append(out, r)
		}
	}
	return out
}

// ApplyLink upserts a link by subject, replacing any previous link of that subject.
func (s *State) ApplyLink(l ledger.Link) error {
	if err := l.Validate(); err != nil {
		return fmt.Errorf("state: %w", err)
	}

	switch l.SubjectKind {
	case ledger.SourceInvoice:
		if _, ok := s.Invoice(l.SubjectHash); !ok {
			return fmt.Errorf("%w: invoice %s", ErrUnknownRecord, l.SubjectHash)
		}
	case ledger.SourceBank:
		if _, ok := s.BankMovement(l.SubjectHash); !ok {
			return fmt.Errorf("%w: bank movement %s", ErrUnknownRecord, l.SubjectHash)
		}
	}
	if l.Kind == ledger.KindBankMatch {
		if _, ok := s.BankMovement(l.CounterpartHash); !ok {
			return fmt.Errorf("%w: bank movement %s", ErrUnknownRecord, l.CounterpartHash)
		}
	}

	s.RemoveLink(l.SubjectHash)
	s.links[l.SubjectHash] = l
	if l.Kind == ledger.KindBankMatch {
		s.bankRefs[l.CounterpartHash]++
	}
	return nil
}

// RemoveLink deletes the subject's link, if any.
func (s *State) RemoveLink(subjectHash string) (ledger.Link, bool) {
	l, ok := s.links[subjectHash]
	if !ok {
		return ledger.Link{}, false
	}
	delete(s.links, subjectHash)
	if l.Kind == ledger.KindBankMatch {
		s.bankRefs[l.CounterpartHash]--
		if s.bankRefs[l.CounterpartHash] <= 0 {
			delete(s.bankRefs, l.CounterpartHash)
		}
	}
	return l, true
}
