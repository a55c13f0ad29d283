// Package service is the command surface over the reconciliation state.
//
// Every mutating command takes the busy gate, persists through the
// synchronizer and only then updates the in-memory state. When the gate is
// shared between replicas the state is reloaded each time it is taken. Ingestion is the
// exception: accepted rows are added to the state even when their chunk
// failed, and the result lists them in Unsaved until the next Load.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eshaffer321/ledger-reconciler/internal/adapters/ingest"
	appsync "github.com/eshaffer321/ledger-reconciler/internal/application/sync"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/matcher"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/state"
	"github.com/eshaffer321/ledger-reconciler/internal/infrastructure/lock"
	"github.com/eshaffer321/ledger-reconciler/internal/infrastructure/metrics"
)

// Service owns the reconciliation state
type Service struct {
	syncer  *appsync.Synchronizer
	matcher *matcher.Matcher
	gate    lock.Gate
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu       sync.RWMutex
	state    *state.State
	lastLoad *LoadSummary
}

// NewService creates a service with an empty state; call Load to fill it.
// gate defaults to a local gate, logger to slog.Default().
func NewService(
	syncer *appsync.Synchronizer,
	m *matcher.Matcher,
	gate lock.Gate,
	logger *slog.Logger,
	mtr *metrics.Metrics,
) *Service {
	if gate == nil {
		gate = lock.NewLocalGate()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		syncer:  syncer,
		matcher: m,
		gate:    gate,
		metrics: mtr,
		logger:  logger,
		state:   state.New(),
	}
}

// acquire takes the gate for a mutating command. With a shared gate other
// replicas may have written since our last load, so the state is re-read
// before the caller resolves hashes or checks used movements.
func (s *Service) acquire(ctx context.Context) (func(), error) {
	release, err := s.gate.TryAcquire(ctx)
	if err != nil {
		return nil, err
	}
	if !lock.IsShared(s.gate) {
		return release, nil
	}
	if _, err := s.load(ctx); err != nil {
		release()
		return nil, fmt.Errorf("%w: refresh state: %w", ErrNotSaved, err)
	}
	return release, nil
}

// Load replaces the state with a full read of the store
func (s *Service) Load(ctx context.Context) (*LoadSummary, error) {
	release, err := s.gate.TryAcquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return s.load(ctx)
}

// load must be called with the gate held.
func (s *Service) load(ctx context.Context) (*LoadSummary, error) {
	loaded, err := s.syncer.Load(ctx)
	if err != nil {
		return nil, err
	}
	st, stats := state.Rebuild(loaded.Records, loaded.Links)
	if stats.Orphans > 0 {
		s.logger.Warn("Skipped links to missing records", "orphans", stats.Orphans)
	}
	s.metrics.OrphansSkipped(stats.Orphans)

	summary := &LoadSummary{
		Invoices:      stats.Invoices,
		BankMovements: stats.BankMovements,
		Links:         stats.Links,
		Orphans:       stats.Orphans,
		Corrupt:       loaded.Corrupt,
		Duration:      loaded.Duration,
		LoadedAt:      time.Now(),
	}

	s.mu.Lock()
	s.state = st
	s.lastLoad = summary
	s.mu.Unlock()
	return summary, nil
}

// Ingest persists a batch and adds its accepted rows to the state
func (s *Service) Ingest(ctx context.Context, batch *ingest.Batch) (*appsync.IngestResult, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	s.mu.RLock()
	existing := s.state.Hashes()
	s.mu.RUnlock()

	result, err := s.syncer.Ingest(ctx, batch, existing)
	if result == nil {
		return nil, err
	}

	s.mu.Lock()
	addErr := s.state.AddRecords(result.Records...)
	s.mu.Unlock()
	if addErr != nil {
		// the resolver saw every existing hash, so this means the store and
		// the state have diverged
		s.logger.Error("Ingested rows could not be added to state", "error", addErr)
		return result, fmt.Errorf("service: %w", addErr)
	}
	return result, err
}

// AutoMatch pairs the pending invoices selected by f with unused movements.
// Only matches confirmed by the store are applied.
func (s *Service) AutoMatch(ctx context.Context, f state.Filter) (*AutoMatchResult, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	s.mu.RLock()
	invoices := s.state.FilteredInvoices(f)
	matches := s.matcher.AutoMatch(invoices, s.state.BankMovements(), s.state)
	s.mu.RUnlock()

	result := &AutoMatchResult{Considered: len(invoices), Proposed: len(matches)}
	s.metrics.AutoMatchRun(len(matches))
	if len(matches) == 0 {
		return result, nil
	}

	links := make([]ledger.Link, 0, len(matches))
	for _, m := range matches {
		links = append(links, m.Link())
	}
	written, err := s.syncer.SaveLinks(ctx, links)
	if written != nil {
		result.Unsaved = written.Failed
		result.Errors = written.Errors
		s.applyLinks(written.Saved)
		result.Saved = written.Saved
	}

	s.logger.Info("Auto-match finished",
		"considered", result.Considered,
		"proposed", result.Proposed,
		"saved", len(result.Saved),
		"unsaved", len(result.Unsaved),
	)
	return result, err
}

func (s *Service) applyLinks(links []ledger.Link) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range links {
		if err := s.state.ApplyLink(l); err != nil {
			s.logger.Error("Saved link could not be applied", "subject", l.SubjectHash, "error", err)
		}
	}
}

// Link settles one or more pending invoices with a single unused movement.
// The group need not balance; the difference is reported.
func (s *Service) Link(ctx context.Context, invoiceHashes []string, bankHash string) (*LinkResult, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	s.mu.RLock()
	group, err := s.evaluateLink(invoiceHashes, bankHash)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	links := group.Links()
	written, err := s.syncer.SaveLinks(ctx, links)
	if err != nil {
		return nil, err
	}
	s.applyLinks(written.Saved)
	if len(written.Failed) > 0 {
		return nil, fmt.Errorf("%w: %d of %d links", ErrNotSaved, len(written.Failed), len(links))
	}

	return &LinkResult{
		Links:        written.Saved,
		InvoiceTotal: group.InvoiceTotal.StringFixed(2),
		Difference:   group.Difference.StringFixed(2),
		Balanced:     group.Balanced,
	}, nil
}

func (s *Service) evaluateLink(invoiceHashes []string, bankHash string) (*matcher.GroupResult, error) {
	if len(invoiceHashes) == 0 {
		return nil, fmt.Errorf("%w: no invoices selected", ErrInvalid)
	}
	mv, ok := s.state.BankMovement(bankHash)
	if !ok {
		return nil, fmt.Errorf("%w: bank movement %s", ErrNotFound, bankHash)
	}
	if s.state.IsBankUsed(bankHash) {
		return nil, fmt.Errorf("%w: %s", ErrBankUsed, bankHash)
	}

	invoices := make([]ledger.Record, 0, len(invoiceHashes))
	for _, h := range invoiceHashes {
		inv, ok := s.state.Invoice(h)
		if !ok {
			return nil, fmt.Errorf("%w: invoice %s", ErrNotFound, h)
		}
		if s.state.IsInvoiceResolved(h) {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyResolved, h)
		}
		invoices = append(invoices, inv)
	}

	group, err := s.matcher.EvaluateGroup(invoices, mv)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return group, nil
}

// Unlink removes an invoice's bank match
func (s *Service) Unlink(ctx context.Context, invoiceHash string) error {
	return s.removeLink(ctx, invoiceHash, ledger.KindBankMatch)
}

// MarkCash records an invoice as settled in cash
func (s *Service) MarkCash(ctx context.Context, invoiceHash string) error {
	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	s.mu.RLock()
	_, known := s.state.Invoice(invoiceHash)
	current, linked := s.state.LinkFor(invoiceHash)
	s.mu.RUnlock()

	if !known {
		return fmt.Errorf("%w: invoice %s", ErrNotFound, invoiceHash)
	}
	if linked {
		if current.Kind == ledger.KindCash {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrAlreadyResolved, invoiceHash)
	}
	return s.saveLink(ctx, ledger.NewCashSettlement(invoiceHash))
}

// UnmarkCash removes an invoice's cash settlement
func (s *Service) UnmarkCash(ctx context.Context, invoiceHash string) error {
	return s.removeLink(ctx, invoiceHash, ledger.KindCash)
}

// Exclude takes a movement out of matching
func (s *Service) Exclude(ctx context.Context, bankHash string) error {
	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	s.mu.RLock()
	_, known := s.state.BankMovement(bankHash)
	excluded := s.state.IsBankExcluded(bankHash)
	used := s.state.IsBankUsed(bankHash)
	s.mu.RUnlock()

	switch {
	case !known:
		return fmt.Errorf("%w: bank movement %s", ErrNotFound, bankHash)
	case excluded:
		return nil
	case used:
		return fmt.Errorf("%w: %s", ErrBankUsed, bankHash)
	}
	return s.saveLink(ctx, ledger.NewExclusion(bankHash))
}

// Include returns an excluded movement to matching
func (s *Service) Include(ctx context.Context, bankHash string) error {
	return s.removeLink(ctx, bankHash, ledger.KindExcluded)
}

func (s *Service) saveLink(ctx context.Context, l ledger.Link) error {
	if err := s.syncer.SaveLink(ctx, l); err != nil {
		return fmt.Errorf("%w: %w", ErrNotSaved, err)
	}
	s.applyLinks([]ledger.Link{l})
	return nil
}

// removeLink deletes the subject's link when it is of the given kind.
func (s *Service) removeLink(ctx context.Context, subjectHash string, kind ledger.LinkKind) error {
	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	s.mu.RLock()
	current, ok := s.state.LinkFor(subjectHash)
	s.mu.RUnlock()
	if !ok || current.Kind != kind {
		return fmt.Errorf("%w: %s link for %s", ErrNotFound, kind, subjectHash)
	}

	if err := s.syncer.DeleteLink(ctx, subjectHash); err != nil {
		return fmt.Errorf("%w: %w", ErrNotSaved, err)
	}

	s.mu.Lock()
	s.state.RemoveLink(subjectHash)
	s.mu.Unlock()
	return nil
}

// DeleteRecords deletes records and every link referencing them. It does
// nothing unless confirm is set.
func (s *Service) DeleteRecords(ctx context.Context, hashes []string, confirm bool) (*DeleteResult, error) {
	if !confirm {
		return nil, ErrConfirmationRequired
	}
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	result := &DeleteResult{}
	var known []string
	s.mu.RLock()
	for _, h := range hashes {
		if _, ok := s.state.Record(h); ok {
			known = append(known, h)
		} else {
			result.Missing = append(result.Missing, h)
		}
	}
	s.mu.RUnlock()

	if len(known) == 0 {
		return nil, fmt.Errorf("%w: none of %d records", ErrNotFound, len(hashes))
	}

	if err := s.syncer.DeleteRecords(ctx, known); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotSaved, err)
	}

	s.mu.Lock()
	dropped := s.state.RemoveRecords(known)
	s.mu.Unlock()

	result.Records = len(known)
	result.Links = len(dropped)
	s.logger.Info("Records deleted", "records", result.Records, "links", result.Links)
	return result, nil
}
