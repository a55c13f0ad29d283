package storage

import "context"

// Repository defines the complete record store interface.
// This interface allows swapping implementations (SQLite, PostgreSQL, in-memory)
// and makes testing with mocks straightforward.
type Repository interface {
	RecordRepository
	LinkRepository
	Close() error
}

// RecordRepository handles ingested records
type RecordRepository interface {
	// ListRecords returns one page of records, newest batch first,
	// row order inside a batch.
	ListRecords(ctx context.Context, page PageRequest) ([]*StoredRecord, error)

	// UpsertRecords inserts records, replacing any with the same identity hash.
	UpsertRecords(ctx context.Context, records []*StoredRecord) error

	// DeleteRecords removes records and every link whose subject or
	// counterpart is one of them, atomically.
	DeleteRecords(ctx context.Context, hashes []string) error
}

// LinkRepository handles reconciliation links
type LinkRepository interface {
	// ListLinks returns one page of links ordered by subject hash.
	ListLinks(ctx context.Context, page PageRequest) ([]*StoredLink, error)

	// UpsertLinks writes links keyed by subject hash; the last write wins.
	UpsertLinks(ctx context.Context, links []*StoredLink) error

	// DeleteLink removes the link keyed by the subject hash. Deleting a
	// missing link is not an error.
	DeleteLink(ctx context.Context, subjectHash string) error

	// DeleteLinks removes the links keyed by any of the subject hashes.
	DeleteLinks(ctx context.Context, subjectHashes []string) error
}

// DefaultPageSize is the page size used when a request leaves Limit unset.
const DefaultPageSize = 1000

// PageRequest selects a range of rows
type PageRequest struct {
	Offset int
	Limit  int // 0 = DefaultPageSize
}

func (p PageRequest) limit() int {
	if p.Limit <= 0 {
		return DefaultPageSize
	}
	return p.Limit
}

func (p PageRequest) offset() int {
	if p.Offset < 0 {
		return 0
	}
	return p.Offset
}
