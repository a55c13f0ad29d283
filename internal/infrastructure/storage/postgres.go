package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresStorage provides PostgreSQL access to records and links for
// deployments where several API instances share one store.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

var _ Repository = (*PostgresStorage)(nil)

// NewPostgresStorage connects, pings and migrates
func NewPostgresStorage(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresStorage, error) {
	if logger == nil {
		logger = slog.Default()
	}

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("storage/postgres: parse config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("storage/postgres: new pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage/postgres: ping: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	if err := runMigrations(ctx, db, goose.DialectPostgres, "migrations/postgres", logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage/postgres: %w", err)
	}

	return &PostgresStorage{pool: pool}, nil
}

// Close releases the pool
func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}

// ListRecords returns one page of records in display order
func (s *PostgresStorage) ListRecords(ctx context.Context, page PageRequest) ([]*StoredRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT identity_hash, type, occurred_on, amount, counterparty, payload,
		       fiscal_year, fiscal_quarter, batch_id, ingestion_index
		FROM records
		ORDER BY batch_id DESC, ingestion_index ASC, identity_hash ASC
		LIMIT $1 OFFSET $2
	`, page.limit(), page.offset())
	if err != nil {
		return nil, fmt.Errorf("storage/postgres: list records: %w", err)
	}
	defer rows.Close()

	var out []*StoredRecord
	for rows.Next() {
		var r StoredRecord
		var payload []byte
		if err := rows.Scan(&r.IdentityHash, &r.Type, &r.OccurredOn, &r.Amount, &r.Counterparty, &payload,
			&r.FiscalYear, &r.FiscalQuarter, &r.BatchID, &r.IngestionIndex); err != nil {
			return nil, fmt.Errorf("storage/postgres: scan record: %w", err)
		}
		if r.Payload, err = decodePayload(payload); err != nil {
			return nil, fmt.Errorf("storage/postgres: record %s: %w", r.IdentityHash, err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// UpsertRecords writes all records in one transaction
func (s *PostgresStorage) UpsertRecords(ctx context.Context, records []*StoredRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		payload, err := encodePayload(r.Payload)
		if err != nil {
			return err
		}
		batch.Queue(`
			INSERT INTO records
			(identity_hash, type, occurred_on, amount, counterparty, payload,
			 fiscal_year, fiscal_quarter, batch_id, ingestion_index)
			VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9, $10)
			ON CONFLICT (identity_hash) DO UPDATE SET
				type = EXCLUDED.type,
				occurred_on = EXCLUDED.occurred_on,
				amount = EXCLUDED.amount,
				counterparty = EXCLUDED.counterparty,
				payload = EXCLUDED.payload,
				fiscal_year = EXCLUDED.fiscal_year,
				fiscal_quarter = EXCLUDED.fiscal_quarter,
				batch_id = EXCLUDED.batch_id,
				ingestion_index = EXCLUDED.ingestion_index
		`, r.IdentityHash, r.Type, r.OccurredOn, r.Amount, r.Counterparty, payload,
			r.FiscalYear, r.FiscalQuarter, r.BatchID, r.IngestionIndex)
	}

	return s.sendBatch(ctx, batch, "upsert records")
}

// DeleteRecords removes records and the links that reference them
func (s *PostgresStorage) DeleteRecords(ctx context.Context, hashes []string) error {
	if len(hashes) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM links WHERE subject_hash = ANY($1) OR counterpart_hash = ANY($1)`, hashes); err != nil {
			return fmt.Errorf("storage/postgres: delete links: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM records WHERE identity_hash = ANY($1)`, hashes); err != nil {
			return fmt.Errorf("storage/postgres: delete records: %w", err)
		}
		return nil
	})
}

// ListLinks returns one page of links
func (s *PostgresStorage) ListLinks(ctx context.Context, page PageRequest) ([]*StoredLink, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT subject_hash, subject_kind, kind, COALESCE(counterpart_hash, '')
		FROM links
		ORDER BY subject_hash ASC
		LIMIT $1 OFFSET $2
	`, page.limit(), page.offset())
	if err != nil {
		return nil, fmt.Errorf("storage/postgres: list links: %w", err)
	}
	defer rows.Close()

	var out []*StoredLink
	for rows.Next() {
		var l StoredLink
		if err := rows.Scan(&l.SubjectHash, &l.SubjectKind, &l.Kind, &l.CounterpartHash); err != nil {
			return nil, fmt.Errorf("storage/postgres: scan link: %w", err)
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}

// UpsertLinks writes links keyed by subject hash
func (s *PostgresStorage) UpsertLinks(ctx context.Context, links []*StoredLink) error {
	if len(links) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, l := range links {
		batch.Queue(`
			INSERT INTO links (subject_hash, subject_kind, kind, counterpart_hash, updated_at)
			VALUES ($1, $2, $3, $4, now())
			ON CONFLICT (subject_hash) DO UPDATE SET
				subject_kind = EXCLUDED.subject_kind,
				kind = EXCLUDED.kind,
				counterpart_hash = EXCLUDED.counterpart_hash,
				updated_at = EXCLUDED.updated_at
		`, l.SubjectHash, l.SubjectKind, l.Kind, nullable(l.CounterpartHash))
	}

	return s.sendBatch(ctx, batch, "upsert links")
}

// DeleteLink removes one link
func (s *PostgresStorage) DeleteLink(ctx context.Context, subjectHash string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM links WHERE subject_hash = $1`, subjectHash); err != nil {
		return fmt.Errorf("storage/postgres: delete link %s: %w", subjectHash, err)
	}
	return nil
}

// DeleteLinks removes several links
func (s *PostgresStorage) DeleteLinks(ctx context.Context, subjectHashes []string) error {
	if len(subjectHashes) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM links WHERE subject_hash = ANY($1)`, subjectHashes); err != nil {
		return fmt.Errorf("storage/postgres: delete links: %w", err)
	}
	return nil
}

func (s *PostgresStorage) sendBatch(ctx context.Context, batch *pgx.Batch, op string) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("storage/postgres: %s: %w", op, err)
		}
		return nil
	})
}

func (s *PostgresStorage) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("storage/postgres: begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("storage/postgres: commit tx: %w", err)
	}
	return nil
}
