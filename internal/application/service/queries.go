package service

import (
	"context"

	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/state"
)

// Read-only views. They never take the gate, so they stay available while a
// command runs and show the state as of its last applied step.

func (s *Service) InvoiceView(f state.Filter) []state.InvoiceRow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.InvoiceView(f)
}

func (s *Service) BankView(f state.Filter) []state.BankRow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.BankView(f)
}

func (s *Service) ResolvedReport(f state.Filter) []state.ResolvedItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.ResolvedReport(f)
}

func (s *Service) Stats(f state.Filter) state.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Stats(f)
}

// Snapshot exports every record and link
func (s *Service) Snapshot() state.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Snapshot()
}

// Record looks up a record of either ledger
func (s *Service) Record(hash string) (ledger.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Record(hash)
}

// LinkFor returns the link keyed by a subject hash
func (s *Service) LinkFor(subjectHash string) (ledger.Link, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.LinkFor(subjectHash)
}

// DefaultFilter selects the latest fiscal year present
func (s *Service) DefaultFilter() state.Filter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return state.Filter{Year: s.state.LatestYear()}
}

// Busy reports whether a command currently holds the gate
func (s *Service) Busy(ctx context.Context) bool {
	return s.gate.Held(ctx)
}

// Status summarizes the state
func (s *Service) Status(ctx context.Context) Status {
	busy := s.Busy(ctx)

	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{
		Busy:          busy,
		Invoices:      len(s.state.Invoices()),
		BankMovements: len(s.state.BankMovements()),
		Links:         len(s.state.Links()),
		LatestYear:    s.state.LatestYear(),
		Years:         s.state.Years(),
	}
	if s.lastLoad != nil {
		last := *s.lastLoad
		st.LastLoad = &last
	}
	return st
}
