package sync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/ledger-reconciler/internal/adapters/ingest"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
	"github.com/eshaffer321/ledger-reconciler/internal/infrastructure/metrics"
	"github.com/eshaffer321/ledger-reconciler/internal/infrastructure/storage"
)

var fixedNow = time.UnixMilli(1_750_000_000_000)

func newTestSynchronizer(repo storage.Repository, batchSize, maxRetries int) *Synchronizer {
	s := NewSynchronizer(repo, Options{
		PageSize:   2,
		BatchSize:  batchSize,
		MaxRetries: maxRetries,
	}, nil, metrics.New())
	s.now = func() time.Time { return fixedNow }
	return s
}

func invoiceRow(date, amount, supplier string) map[string]string {
	return map[string]string{"DATA": date, "TOTAL FACTURA": amount, "PROVEEDOR": supplier}
}

func invoiceBatch(n int) *ingest.Batch {
	b := &ingest.Batch{Source: ledger.SourceInvoice, Name: "facturas.csv"}
	for i := 0; i < n; i++ {
		b.Rows = append(b.Rows, invoiceRow(fmt.Sprintf("%02d/03/2025", i+1), fmt.Sprintf("%d,00", 10*(i+1)), "Acme"))
	}
	return b
}

func TestPrepare_AnnotatesRows(t *testing.T) {
	s := newTestSynchronizer(storage.NewMockRepository(), 100, 0)
	batch := &ingest.Batch{Source: ledger.SourceInvoice, Rows: []map[string]string{
		invoiceRow("01/03/2025", "10,00", "Acme"),
		invoiceRow("sin fecha", "5,00", "Globex"),
		invoiceRow("02/03/2025", "20,00", "Acme"),
	}}

	result := s.Prepare(batch, nil)

	assert.Equal(t, 3, result.Read)
	assert.Equal(t, 1, result.Invalid)
	require.Len(t, result.Records, 2)

	r := result.Records[1]
	assert.Equal(t, fixedNow.UnixMilli(), r.BatchID)
	assert.Equal(t, 1, r.Index)
	assert.Equal(t, 2025, r.Period.Year)
	assert.Equal(t, 1, r.Period.Quarter)
	assert.Equal(t, "Acme", r.Counterparty)
	assert.Equal(t, "1", r.Payload[PayloadItemIndex])
	assert.Equal(t, "1750000000000", r.Payload[PayloadBatchID])

	// the batch rows themselves are left untouched
	assert.NotContains(t, batch.Rows[2], PayloadItemIndex)
}

func TestPrepare_AcceptsRowsWithYearButNoQuarter(t *testing.T) {
	s := newTestSynchronizer(storage.NewMockRepository(), 100, 0)
	batch := &ingest.Batch{Source: ledger.SourceInvoice, Rows: []map[string]string{
		invoiceRow("15/13/2025", "10,00", "Acme"),
		invoiceRow("15/03/1999", "5,00", "Globex"),
	}}

	result := s.Prepare(batch, nil)

	assert.Equal(t, 1, result.Invalid)
	require.Len(t, result.Records, 1)
	assert.Equal(t, 2025, result.Records[0].Period.Year)
	assert.Equal(t, -1, result.Records[0].Period.Quarter)
}

func TestPrepare_RenamesDuplicates(t *testing.T) {
	s := newTestSynchronizer(storage.NewMockRepository(), 100, 0)
	row := invoiceRow("01/03/2025", "10,00", "Acme")
	batch := &ingest.Batch{Source: ledger.SourceInvoice, Rows: []map[string]string{row, row}}

	first := s.Prepare(batch, nil)
	require.Len(t, first.Records, 2)
	assert.Equal(t, 1, first.Renamed)
	assert.Equal(t, first.Records[0].Hash+"_1", first.Records[1].Hash)

	// re-ingesting against the persisted hashes keeps suffixing
	again := s.Prepare(batch, []string{first.Records[0].Hash, first.Records[1].Hash})
	assert.Equal(t, 2, again.Renamed)
	assert.Equal(t, first.Records[0].Hash+"_2", again.Records[0].Hash)
	assert.Equal(t, first.Records[0].Hash+"_3", again.Records[1].Hash)
}

func TestIngest_WritesInChunks(t *testing.T) {
	repo := storage.NewMockRepository()
	s := newTestSynchronizer(repo, 2, 0)

	result, err := s.Ingest(context.Background(), invoiceBatch(5), nil)

	require.NoError(t, err)
	assert.Equal(t, 5, result.Saved)
	assert.Zero(t, result.Errors)
	assert.Empty(t, result.Unsaved)
	assert.Equal(t, 3, repo.UpsertRecordsCalls)
	assert.Equal(t, 5, repo.RecordCount())
}

func TestIngest_FailedChunkDoesNotStopOthers(t *testing.T) {
	repo := storage.NewMockRepository()
	repo.FailUpsertRecordsOn = map[int]error{2: errors.New("constraint violated")}
	s := newTestSynchronizer(repo, 2, 2)

	result, err := s.Ingest(context.Background(), invoiceBatch(5), nil)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Errors)
	assert.Equal(t, 3, result.Saved)
	assert.Equal(t, []string{result.Records[2].Hash, result.Records[3].Hash}, result.Unsaved)
	// non-transient failures are not retried
	assert.Equal(t, 3, repo.UpsertRecordsCalls)
	assert.Equal(t, 3, repo.RecordCount())
}

func TestIngest_RetriesTransientFailure(t *testing.T) {
	repo := storage.NewMockRepository()
	repo.FailUpsertRecordsOn = map[int]error{1: storage.ErrUnavailable}
	s := newTestSynchronizer(repo, 100, 2)

	result, err := s.Ingest(context.Background(), invoiceBatch(3), nil)

	require.NoError(t, err)
	assert.Equal(t, 3, result.Saved)
	assert.Zero(t, result.Errors)
	assert.Equal(t, 2, repo.UpsertRecordsCalls)
}

func TestIngest_GivesUpAfterMaxRetries(t *testing.T) {
	repo := storage.NewMockRepository()
	repo.UpsertRecordsErr = fmt.Errorf("write: %w", storage.ErrUnavailable)
	s := newTestSynchronizer(repo, 100, 2)

	result, err := s.Ingest(context.Background(), invoiceBatch(3), nil)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Errors)
	assert.Zero(t, result.Saved)
	assert.Len(t, result.Unsaved, 3)
	assert.Equal(t, 3, repo.UpsertRecordsCalls)
}

func TestIngest_CancelledReportsRemainder(t *testing.T) {
	repo := storage.NewMockRepository()
	s := newTestSynchronizer(repo, 2, 0)
	s.opts.BatchDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for repo.RecordCount() == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	result, err := s.Ingest(ctx, invoiceBatch(5), nil)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, result.Saved)
	assert.Len(t, result.Unsaved, 3)
}

func TestLoad_PagesThroughEverything(t *testing.T) {
	repo := storage.NewMockRepository()
	for i := 0; i < 5; i++ {
		repo.AddRecord(&storage.StoredRecord{
			IdentityHash:   fmt.Sprintf("h%d", i),
			Type:           "invoice",
			OccurredOn:     "01/03/2025",
			Amount:         "10,00",
			FiscalYear:     2025,
			FiscalQuarter:  1,
			BatchID:        1,
			IngestionIndex: i,
		})
	}
	repo.AddRecord(&storage.StoredRecord{IdentityHash: "bad", Type: "receipt", BatchID: 1, IngestionIndex: 9})
	repo.AddLink(storage.NewStoredLink(ledger.NewCashSettlement("h0")))
	repo.AddLink(&storage.StoredLink{SubjectHash: "h1", Kind: "teleport"})

	s := newTestSynchronizer(repo, 100, 0)
	result, err := s.Load(context.Background())

	require.NoError(t, err)
	require.Len(t, result.Records, 5)
	assert.Equal(t, "h0", result.Records[0].Hash)
	assert.Equal(t, "h4", result.Records[4].Hash)
	require.Len(t, result.Links, 1)
	assert.Equal(t, ledger.KindCash, result.Links[0].Kind)
	assert.Equal(t, 2, result.Corrupt)
	// 6 records at page size 2: three full pages and an empty one
	assert.Equal(t, 4, repo.ListRecordsCalls)
}

func TestLoad_PropagatesReadError(t *testing.T) {
	repo := storage.NewMockRepository()
	repo.ListLinksErr = errors.New("connection refused")
	s := newTestSynchronizer(repo, 100, 0)

	_, err := s.Load(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load links")
}

func TestSaveLinks_LastWinsPerSubject(t *testing.T) {
	repo := storage.NewMockRepository()
	s := newTestSynchronizer(repo, 100, 0)

	result, err := s.SaveLinks(context.Background(), []ledger.Link{
		ledger.NewBankMatch("i1", "b1"),
		ledger.NewExclusion("b2"),
		ledger.NewCashSettlement("i1"),
	})

	require.NoError(t, err)
	require.Len(t, result.Saved, 2)
	assert.Equal(t, ledger.KindCash, result.Saved[0].Kind)
	stored, ok := repo.Link("i1")
	require.True(t, ok)
	assert.Equal(t, "cash", stored.Kind)
	assert.Equal(t, 2, repo.LinkCount())
}

func TestSaveLinks_ReportsFailedChunks(t *testing.T) {
	repo := storage.NewMockRepository()
	repo.FailUpsertLinksOn = map[int]error{1: errors.New("disk full")}
	s := newTestSynchronizer(repo, 2, 0)

	result, err := s.SaveLinks(context.Background(), []ledger.Link{
		ledger.NewBankMatch("i1", "b1"),
		ledger.NewBankMatch("i2", "b2"),
		ledger.NewBankMatch("i3", "b3"),
	})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Errors)
	require.Len(t, result.Failed, 2)
	assert.Equal(t, "i1", result.Failed[0].SubjectHash)
	require.Len(t, result.Saved, 1)
	assert.Equal(t, "i3", result.Saved[0].SubjectHash)
}

func TestSingleWrites(t *testing.T) {
	repo := storage.NewMockRepository()
	s := newTestSynchronizer(repo, 100, 1)
	ctx := context.Background()

	require.NoError(t, s.SaveLink(ctx, ledger.NewBankMatch("i1", "b1")))
	require.NoError(t, s.SaveLink(ctx, ledger.NewExclusion("b2")))
	assert.Equal(t, 2, repo.LinkCount())

	require.NoError(t, s.DeleteLink(ctx, "i1"))
	assert.Equal(t, 1, repo.LinkCount())

	require.NoError(t, s.DeleteLinks(ctx, []string{"b2"}))
	assert.Zero(t, repo.LinkCount())

	repo.DeleteLinkErr = errors.New("gone")
	err := s.DeleteLink(ctx, "i1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to delete link i1")
}

func TestDeleteRecords_RetriesTransient(t *testing.T) {
	repo := storage.NewMockRepository()
	repo.DeleteRecordsErr = storage.ErrUnavailable
	s := newTestSynchronizer(repo, 100, 2)

	err := s.DeleteRecords(context.Background(), []string{"h1"})

	require.ErrorIs(t, err, storage.ErrUnavailable)
	assert.Equal(t, 3, repo.DeleteRecordsCalls)

	assert.NoError(t, s.DeleteRecords(context.Background(), nil))
	assert.Equal(t, 3, repo.DeleteRecordsCalls)
}

func TestPager_StopsOnShortPage(t *testing.T) {
	data := []int{1, 2, 3, 4, 5}
	calls := 0
	p := NewPager(2, func(_ context.Context, page storage.PageRequest) ([]int, error) {
		calls++
		end := min(page.Offset+page.Limit, len(data))
		return data[page.Offset:end], nil
	})

	all, err := p.All(context.Background())

	require.NoError(t, err)
	assert.Equal(t, data, all)
	assert.Equal(t, 3, calls)
	assert.False(t, p.HasMore())
}
