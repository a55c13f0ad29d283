package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pressly/goose/v3"

	_ "github.com/mattn/go-sqlite3"
)

// sqliteMaxVars keeps IN lists below SQLite's bound-parameter limit.
const sqliteMaxVars = 500

// Storage provides SQLite access to records and links.
// It implements the Repository interface.
type Storage struct {
	db *sql.DB
}

// Compile-time check that Storage implements Repository
var _ Repository = (*Storage)(nil)

// NewStorage opens (or creates) the SQLite database and migrates it
func NewStorage(dbPath string) (*Storage, error) {
	return NewStorageWithLogger(dbPath, nil)
}

// NewStorageWithLogger is NewStorage with migration progress logged
func NewStorageWithLogger(dbPath string, logger *slog.Logger) (*Storage, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	// One writer avoids SQLITE_BUSY between our own connections.
	db.SetMaxOpenConns(1)

	if err := runMigrations(context.Background(), db, goose.DialectSQLite3, "migrations/sqlite", logger); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Storage{db: db}, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// DB exposes the handle for schema inspection
func (s *Storage) DB() *sql.DB {
	return s.db
}

// ListRecords returns one page of records in display order
func (s *Storage) ListRecords(ctx context.Context, page PageRequest) ([]*StoredRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT identity_hash, type, occurred_on, amount, counterparty, payload,
		       fiscal_year, fiscal_quarter, batch_id, ingestion_index
		FROM records
		ORDER BY batch_id DESC, ingestion_index ASC, identity_hash ASC
		LIMIT ? OFFSET ?
	`, page.limit(), page.offset())
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var out []*StoredRecord
	for rows.Next() {
		var r StoredRecord
		var payload string
		if err := rows.Scan(&r.IdentityHash, &r.Type, &r.OccurredOn, &r.Amount, &r.Counterparty, &payload,
			&r.FiscalYear, &r.FiscalQuarter, &r.BatchID, &r.IngestionIndex); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		if r.Payload, err = decodePayload([]byte(payload)); err != nil {
			return nil, fmt.Errorf("record %s: %w", r.IdentityHash, err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// UpsertRecords writes all records in one transaction
func (s *Storage) UpsertRecords(ctx context.Context, records []*StoredRecord) error {
	if len(records) == 0 {
		return nil
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO records
			(identity_hash, type, occurred_on, amount, counterparty, payload,
			 fiscal_year, fiscal_quarter, batch_id, ingestion_index)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(identity_hash) DO UPDATE SET
				type = excluded.type,
				occurred_on = excluded.occurred_on,
				amount = excluded.amount,
				counterparty = excluded.counterparty,
				payload = excluded.payload,
				fiscal_year = excluded.fiscal_year,
				fiscal_quarter = excluded.fiscal_quarter,
				batch_id = excluded.batch_id,
				ingestion_index = excluded.ingestion_index
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, r := range records {
			payload, err := encodePayload(r.Payload)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, r.IdentityHash, r.Type, r.OccurredOn, r.Amount, r.Counterparty,
				payload, r.FiscalYear, r.FiscalQuarter, r.BatchID, r.IngestionIndex); err != nil {
				return fmt.Errorf("failed to upsert record %s: %w", r.IdentityHash, err)
			}
		}
		return nil
	})
}

// DeleteRecords removes records and the links that reference them
func (s *Storage) DeleteRecords(ctx context.Context, hashes []string) error {
	if len(hashes) == 0 {
		return nil
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, chunk := range chunkStrings(hashes, sqliteMaxVars/2) {
			in, args := inClause(chunk)
			linkArgs := append(append([]any{}, args...), args...)
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM links WHERE subject_hash IN (`+in+`) OR counterpart_hash IN (`+in+`)`,
				linkArgs...); err != nil {
				return fmt.Errorf("failed to delete links: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM records WHERE identity_hash IN (`+in+`)`, args...); err != nil {
				return fmt.Errorf("failed to delete records: %w", err)
			}
		}
		return nil
	})
}

// ListLinks returns one page of links
func (s *Storage) ListLinks(ctx context.Context, page PageRequest) ([]*StoredLink, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT subject_hash, subject_kind, kind, COALESCE(counterpart_hash, '')
		FROM links
		ORDER BY subject_hash ASC
		LIMIT ? OFFSET ?
	`, page.limit(), page.offset())
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	defer rows.Close()

	var out []*StoredLink
	for rows.Next() {
		var l StoredLink
		if err := rows.Scan(&l.SubjectHash, &l.SubjectKind, &l.Kind, &l.CounterpartHash); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}

// UpsertLinks writes links keyed by subject hash
func (s *Storage) UpsertLinks(ctx context.Context, links []*StoredLink) error {
	if len(links) == 0 {
		return nil
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO links (subject_hash, subject_kind, kind, counterpart_hash, updated_at)
			VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(subject_hash) DO UPDATE SET
				subject_kind = excluded.subject_kind,
				kind = excluded.kind,
				counterpart_hash = excluded.counterpart_hash,
				updated_at = excluded.updated_at
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, l := range links {
			if _, err := stmt.ExecContext(ctx, l.SubjectHash, l.SubjectKind, l.Kind, nullable(l.CounterpartHash)); err != nil {
				return fmt.Errorf("failed to upsert link %s: %w", l.SubjectHash, err)
			}
		}
		return nil
	})
}

// DeleteLink removes one link
func (s *Storage) DeleteLink(ctx context.Context, subjectHash string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM links WHERE subject_hash = ?`, subjectHash); err != nil {
		return fmt.Errorf("failed to delete link %s: %w", subjectHash, err)
	}
	return nil
}

// DeleteLinks removes several links
func (s *Storage) DeleteLinks(ctx context.Context, subjectHashes []string) error {
	if len(subjectHashes) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, chunk := range chunkStrings(subjectHashes, sqliteMaxVars) {
			in, args := inClause(chunk)
			if _, err := tx.ExecContext(ctx, `DELETE FROM links WHERE subject_hash IN (`+in+`)`, args...); err != nil {
				return fmt.Errorf("failed to delete links: %w", err)
			}
		}
		return nil
	})
}

func (s *Storage) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func inClause(values []string) (string, []any) {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(values)), ","), args
}

func chunkStrings(values []string, size int) [][]string {
	var chunks [][]string
	for size < len(values) {
		values, chunks = values[size:], append(chunks, values[:size])
	}
	return append(chunks, values)
}
