package sync

import (
	"context"
	"strconv"

	"github.com/eshaffer321/ledger-reconciler/internal/adapters/ingest"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/identity"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/normalize"
	"github.com/eshaffer321/ledger-reconciler/internal/infrastructure/storage"
)

// Payload keys recording where a row came from.
const (
	PayloadBatchID   = "_batch_id"
	PayloadItemIndex = "_item_index"
)

// Prepare turns a batch into records without touching the store. Rows with
// no usable year are counted as invalid; rows whose identity collides
// with existing or earlier rows get a suffixed hash.
func (s *Synchronizer) Prepare(batch *ingest.Batch, existing []string) *IngestResult {
	batchID := s.now().UnixMilli()
	cols := s.opts.Columns(batch.Source)
	resolver := identity.NewResolver(existing)

	result := &IngestResult{
		Source:     batch.Source,
		BatchID:    batchID,
		Read:       len(batch.Rows),
		PeriodHint: batch.PeriodHint,
	}

	for _, row := range batch.Rows {
		fields := cols.Extract(row)
		period := normalize.ParseDate(fields.Date)
		if !period.HasYear() {
			result.Invalid++
			continue
		}

		assigned := resolver.Resolve(batch.Source, fields)
		if assigned.Renamed {
			result.Renamed++
		}
		if assigned.Random {
			s.logger.Warn("Row identity fell back to a random token",
				"source", batch.Source,
				"hash", assigned.Hash,
			)
		}

		index := len(result.Records)
		payload := make(map[string]string, len(row)+2)
		for k, v := range row {
			payload[k] = v
		}
		payload[PayloadBatchID] = strconv.FormatInt(batchID, 10)
		payload[PayloadItemIndex] = strconv.Itoa(index)

		result.Records = append(result.Records, ledger.Record{
			Source:       batch.Source,
			Hash:         assigned.Hash,
			OccurredOn:   fields.Date,
			Amount:       fields.Amount,
			Counterparty: fields.Description,
			Period:       period,
			BatchID:      batchID,
			Index:        index,
			Payload:      payload,
		})
	}
	return result
}

// Ingest prepares a batch and upserts it chunk by chunk. A failed chunk is
// counted in Errors and its hashes listed in Unsaved; the other chunks are
// still written. The error is non-nil only if ctx ends.
func (s *Synchronizer) Ingest(ctx context.Context, batch *ingest.Batch, existing []string) (*IngestResult, error) {
	result := s.Prepare(batch, existing)

	s.logger.Info("Ingesting batch",
		"source", batch.Source,
		"name", batch.Name,
		"rows", result.Read,
		"accepted", len(result.Records),
		"invalid", result.Invalid,
		"renamed", result.Renamed,
	)

	failed, err := s.writeChunks(ctx, "records", len(result.Records), func(ctx context.Context, lo, hi int) error {
		chunk := make([]*storage.StoredRecord, 0, hi-lo)
		for _, r := range result.Records[lo:hi] {
			chunk = append(chunk, storage.NewStoredRecord(r))
		}
		return s.repo.UpsertRecords(ctx, chunk)
	})

	unsaved := 0
	for _, f := range failed {
		result.Errors++
		unsaved += f.hi - f.lo
		for _, r := range result.Records[f.lo:f.hi] {
			result.Unsaved = append(result.Unsaved, r.Hash)
		}
	}
	result.Saved = len(result.Records) - unsaved

	source := string(batch.Source)
	s.metrics.RowsIngested(source, "saved", result.Saved)
	s.metrics.RowsIngested(source, "renamed", result.Renamed)
	s.metrics.RowsIngested(source, "invalid", result.Invalid)
	s.metrics.RowsIngested(source, "failed", unsaved)

	s.logger.Info("Batch ingested",
		"source", batch.Source,
		"batch_id", result.BatchID,
		"saved", result.Saved,
		"errors", result.Errors,
	)
	return result, err
}
