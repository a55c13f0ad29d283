package sync

import (
	"context"
	"fmt"

	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
	"github.com/eshaffer321/ledger-reconciler/internal/infrastructure/storage"
)

// DedupeLinks keeps one link per subject: the last one given, at the
// position where that subject first appeared.
func DedupeLinks(links []ledger.Link) []ledger.Link {
	pos := make(map[string]int, len(links))
	out := make([]ledger.Link, 0, len(links))
	for _, l := range links {
		if i, ok := pos[l.SubjectHash]; ok {
			out[i] = l
			continue
		}
		pos[l.SubjectHash] = len(out)
		out = append(out, l)
	}
	return out
}

// SaveLinks upserts links in chunks. Links in failed chunks are returned
// in Failed; the error is non-nil only if ctx ends.
func (s *Synchronizer) SaveLinks(ctx context.Context, links []ledger.Link) (*LinkWriteResult, error) {
	links = DedupeLinks(links)
	result := &LinkWriteResult{}

	failed, err := s.writeChunks(ctx, "links", len(links), func(ctx context.Context, lo, hi int) error {
		chunk := make([]*storage.StoredLink, 0, hi-lo)
		for _, l := range links[lo:hi] {
			chunk = append(chunk, storage.NewStoredLink(l))
		}
		return s.repo.UpsertLinks(ctx, chunk)
	})

	failedAt := make(map[int]bool)
	for _, f := range failed {
		result.Errors++
		for i := f.lo; i < f.hi; i++ {
			failedAt[i] = true
		}
	}
	for i, l := range links {
		if failedAt[i] {
			result.Failed = append(result.Failed, l)
			s.metrics.LinksWritten(string(l.Kind), "failed", 1)
			continue
		}
		result.Saved = append(result.Saved, l)
		s.metrics.LinksWritten(string(l.Kind), "saved", 1)
	}

	if len(result.Failed) > 0 {
		s.logger.Error("Some links were not saved",
			"saved", len(result.Saved),
			"failed", len(result.Failed),
		)
	}
	return result, err
}

// SaveLink upserts one link, retrying transient failures.
func (s *Synchronizer) SaveLink(ctx context.Context, link ledger.Link) error {
	err := s.withRetry(ctx, "links", func() error {
		return s.repo.UpsertLinks(ctx, []*storage.StoredLink{storage.NewStoredLink(link)})
	})
	if err != nil {
		s.metrics.LinksWritten(string(link.Kind), "failed", 1)
		return fmt.Errorf("failed to save link %s: %w", link.SubjectHash, err)
	}
	s.metrics.LinksWritten(string(link.Kind), "saved", 1)
	return nil
}

// DeleteLink removes the link keyed by subjectHash.
func (s *Synchronizer) DeleteLink(ctx context.Context, subjectHash string) error {
	err := s.withRetry(ctx, "links", func() error {
		return s.repo.DeleteLink(ctx, subjectHash)
	})
	if err != nil {
		return fmt.Errorf("failed to delete link %s: %w", subjectHash, err)
	}
	s.metrics.LinksWritten("any", "deleted", 1)
	return nil
}

// DeleteLinks removes the links keyed by the subject hashes.
func (s *Synchronizer) DeleteLinks(ctx context.Context, subjectHashes []string) error {
	if len(subjectHashes) == 0 {
		return nil
	}
	err := s.withRetry(ctx, "links", func() error {
		return s.repo.DeleteLinks(ctx, subjectHashes)
	})
	if err != nil {
		return fmt.Errorf("failed to delete %d links: %w", len(subjectHashes), err)
	}
	s.metrics.LinksWritten("any", "deleted", len(subjectHashes))
	return nil
}

// DeleteRecords removes records and, in the same store transaction, every
// link referencing them.
func (s *Synchronizer) DeleteRecords(ctx context.Context, hashes []string) error {
	if len(hashes) == 0 {
		return nil
	}
	err := s.withRetry(ctx, "records", func() error {
		return s.repo.DeleteRecords(ctx, hashes)
	})
	if err != nil {
		return fmt.Errorf("failed to delete %d records: %w", len(hashes), err)
	}
	s.logger.Info("Deleted records", "count", len(hashes))
	return nil
}
