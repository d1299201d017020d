package postgres

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const schemaLockKey = int64(2026101501)

// PoolOptions bounds the database/sql pool. Zero fields keep the defaults.
type PoolOptions struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
}

// OpenDB opens a pgx-backed pool and pings it within ctx.
func OpenDB(ctx context.Context, dsn string, pool PoolOptions) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	maxOpen := cmp.Or(pool.MaxOpen, 10)
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(min(cmp.Or(pool.MaxIdle, maxOpen), maxOpen))
	db.SetConnMaxLifetime(cmp.Or(pool.MaxLifetime, 30*time.Minute))

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// withSchemaLock serializes bootstrap DDL across api/worker startups.
func withSchemaLock(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockKey); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

const documentsDDL = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	tenant_id TEXT,
	owner_id TEXT,
	filename TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	size_bytes BIGINT NOT NULL DEFAULT 0,
	storage_path TEXT NOT NULL,
	ai_processing_status TEXT NOT NULL DEFAULT 'none',
	ai_category TEXT,
	ai_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	ai_tags JSONB NOT NULL DEFAULT '[]'::jsonb,
	ai_summary TEXT,
	ai_key_points JSONB NOT NULL DEFAULT '[]'::jsonb,
	extracted_text TEXT,
	page_count INTEGER NOT NULL DEFAULT 0,
	word_count INTEGER NOT NULL DEFAULT 0,
	char_count INTEGER NOT NULL DEFAULT 0,
	ai_processed_at TIMESTAMPTZ,
	ai_claimed_at TIMESTAMPTZ,
	ai_error TEXT,
	search_vector TSVECTOR,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

ALTER TABLE documents ADD COLUMN IF NOT EXISTS ai_claimed_at TIMESTAMPTZ;

CREATE INDEX IF NOT EXISTS idx_documents_tenant ON documents(tenant_id);
CREATE INDEX IF NOT EXISTS idx_documents_ai_status ON documents(ai_processing_status);
CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_documents_search ON documents USING GIN (search_vector);

CREATE TABLE IF NOT EXISTS organization_members (
	organization_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT 'member',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (organization_id, user_id)
);
`

// EnsureSchema creates the document metadata and membership tables.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	return withSchemaLock(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, documentsDDL); err != nil {
			return fmt.Errorf("execute schema ddl: %w", err)
		}
		return nil
	})
}
