// Package sync moves records and links between the in-memory state and the
// record store.
//
// Reads are full loads, paginated. Writes go out in fixed-size chunks with a
// pause between chunks; a chunk that fails transiently is retried, and a chunk
// that still fails is counted and logged while the remaining chunks proceed.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
	"github.com/eshaffer321/ledger-reconciler/internal/infrastructure/metrics"
	"github.com/eshaffer321/ledger-reconciler/internal/infrastructure/storage"
)

// Synchronizer persists reconciliation state
type Synchronizer struct {
	repo    storage.Repository
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewSynchronizer creates a synchronizer. logger and m may be nil.
func NewSynchronizer(repo storage.Repository, opts Options, logger *slog.Logger, m *metrics.Metrics) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{
		repo:    repo,
		opts:    opts.withDefaults(),
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// Options returns the effective options
func (s *Synchronizer) Options() Options {
	return s.opts
}

// Load reads every record and link. Records come back in display order.
// Rows that cannot be converted are skipped and counted.
func (s *Synchronizer) Load(ctx context.Context) (*LoadResult, error) {
	start := s.now()

	var storedRecords []*storage.StoredRecord
	var storedLinks []*storage.StoredLink

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		storedRecords, err = NewPager(s.opts.PageSize, s.repo.ListRecords).All(gctx)
		if err != nil {
			return fmt.Errorf("failed to load records: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		storedLinks, err = NewPager(s.opts.PageSize, s.repo.ListLinks).All(gctx)
		if err != nil {
			return fmt.Errorf("failed to load links: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &LoadResult{
		Records: make([]ledger.Record, 0, len(storedRecords)),
		Links:   make([]ledger.Link, 0, len(storedLinks)),
	}
	for _, sr := range storedRecords {
		r, err := sr.ToLedger()
		if err != nil {
			s.logger.Warn("Skipping unreadable record", "hash", sr.IdentityHash, "error", err)
			result.Corrupt++
			continue
		}
		result.Records = append(result.Records, r)
	}
	for _, sl := range storedLinks {
		l, err := sl.ToLedger()
		if err != nil {
			s.logger.Warn("Skipping unreadable link", "subject", sl.SubjectHash, "error", err)
			result.Corrupt++
			continue
		}
		result.Links = append(result.Links, l)
	}

	result.Duration = s.now().Sub(start)
	s.metrics.ObserveLoad(result.Duration)
	s.logger.Info("Loaded state",
		"records", len(result.Records),
		"links", len(result.Links),
		"corrupt", result.Corrupt,
		"duration", result.Duration,
	)
	return result, nil
}

// chunkFailure is a write chunk given up on
type chunkFailure struct {
	lo, hi int
	err    error
}

// writeChunks calls write for consecutive [lo, hi) ranges of total items.
// Failed chunks are returned; the error is non-nil only when ctx ends, in
// which case the unattempted remainder is reported as one failed range.
func (s *Synchronizer) writeChunks(
	ctx context.Context,
	collection string,
	total int,
	write func(ctx context.Context, lo, hi int) error,
) ([]chunkFailure, error) {
	var failed []chunkFailure
	for lo := 0; lo < total; lo += s.opts.BatchSize {
		hi := min(lo+s.opts.BatchSize, total)

		if lo > 0 {
			if err := pause(ctx, s.opts.BatchDelay); err != nil {
				return append(failed, chunkFailure{lo: lo, hi: total, err: err}), err
			}
		}

		err := s.withRetry(ctx, collection, func() error { return write(ctx, lo, hi) })
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return append(failed, chunkFailure{lo: lo, hi: total, err: err}), ctx.Err()
		}

		s.logger.Error("Store chunk failed",
			"collection", collection,
			"from", lo,
			"to", hi,
			"error", err,
		)
		s.metrics.ChunkFailed(collection)
		failed = append(failed, chunkFailure{lo: lo, hi: hi, err: err})
	}
	return failed, nil
}

// withRetry retries op while it fails transiently, up to MaxRetries times.
func (s *Synchronizer) withRetry(ctx context.Context, collection string, op func() error) error {
	var err error
	for attempt := 0; attempt <= s.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			s.metrics.ChunkRetried(collection)
			s.logger.Warn("Retrying store write", "collection", collection, "attempt", attempt, "error", err)
			if perr := pause(ctx, time.Duration(attempt)*s.opts.RetryBackoff); perr != nil {
				return err
			}
		}
		if err = op(); err == nil || !storage.IsTransient(err) {
			return err
		}
	}
	return err
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
