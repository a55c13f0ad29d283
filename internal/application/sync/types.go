package sync

import (
	"time"

	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/normalize"
)

// Options holds synchronizer configuration
type Options struct {
	PageSize     int           // Rows per read page (default: 1000)
	BatchSize    int           // Rows per write chunk (default: 100)
	BatchDelay   time.Duration // Pause between write chunks (default: 50ms)
	MaxRetries   int           // Retries of a chunk failing transiently (default: 2)
	RetryBackoff time.Duration // Base wait before a retry, grows linearly (default: 200ms)

	InvoiceColumns ledger.Columns
	BankColumns    ledger.Columns
}

// DefaultOptions returns sensible defaults
func DefaultOptions() Options {
	return Options{
		PageSize:       1000,
		BatchSize:      100,
		BatchDelay:     50 * time.Millisecond,
		MaxRetries:     2,
		RetryBackoff:   200 * time.Millisecond,
		InvoiceColumns: ledger.DefaultInvoiceColumns(),
		BankColumns:    ledger.DefaultBankColumns(),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.PageSize <= 0 {
		o.PageSize = d.PageSize
	}
	if o.BatchSize <= 0 {
		o.BatchSize = d.BatchSize
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.InvoiceColumns == (ledger.Columns{}) {
		o.InvoiceColumns = d.InvoiceColumns
	}
	if o.BankColumns == (ledger.Columns{}) {
		o.BankColumns = d.BankColumns
	}
	return o
}

// Columns returns the identity columns for a source
func (o Options) Columns(source ledger.SourceType) ledger.Columns {
	if source == ledger.SourceBank {
		return o.BankColumns
	}
	return o.InvoiceColumns
}

// LoadResult is everything read by a full load
type LoadResult struct {
	Records []ledger.Record
	Links   []ledger.Link
	// Corrupt counts rows that could not be converted and were skipped.
	Corrupt  int
	Duration time.Duration
}

// IngestResult holds ingestion counts
type IngestResult struct {
	Source     ledger.SourceType `json:"source"`
	BatchID    int64             `json:"batch_id"`
	Read       int               `json:"read"`
	Saved      int               `json:"saved"`
	Renamed    int               `json:"renamed_duplicates"`
	Errors     int               `json:"errors"`
	Invalid    int               `json:"invalid"`
	PeriodHint *normalize.Period `json:"period_hint,omitempty"`

	// Records are every accepted row, including rows whose chunk failed.
	Records []ledger.Record `json:"-"`
	// Unsaved are the hashes of accepted rows whose chunk failed.
	Unsaved []string `json:"unsaved,omitempty"`
}

// LinkWriteResult holds the outcome of a batch link write
type LinkWriteResult struct {
	Saved  []ledger.Link
	Failed []ledger.Link
	Errors int // failed chunks
}
