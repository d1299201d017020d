package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/kirillkom/docintel/internal/core/domain"
)

// ChunkRepository stores chunk embeddings in a pgvector column. Search is an
// exact scan over the caller's tenant rows, ordered by cosine distance.
type ChunkRepository struct {
	db         *sql.DB
	dimensions int
	model      string
}

func NewChunkRepository(db *sql.DB, dimensions int, model string) *ChunkRepository {
	return &ChunkRepository{db: db, dimensions: dimensions, model: model}
}

// EnsureSchema creates document_chunks and fails if an existing embedding
// column was sized for a different model.
func (r *ChunkRepository) EnsureSchema(ctx context.Context) error {
	if r.dimensions <= 0 {
		return fmt.Errorf("chunk schema: embedding dimensions must be positive")
	}
	return withSchemaLock(ctx, r.db, func(tx *sql.Tx) error {
		ddl := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS document_chunks (
	id BIGSERIAL PRIMARY KEY,
	document_id TEXT NOT NULL,
	tenant_id TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	content TEXT NOT NULL,
	embedding vector(%d) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (document_id, chunk_index)
);

CREATE INDEX IF NOT EXISTS idx_document_chunks_tenant ON document_chunks(tenant_id);
CREATE INDEX IF NOT EXISTS idx_document_chunks_document ON document_chunks(document_id);
`, r.dimensions)
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("execute chunk schema ddl: %w", err)
		}

		var existing int
		err := tx.QueryRowContext(ctx, `
SELECT atttypmod FROM pg_attribute
WHERE attrelid = 'document_chunks'::regclass AND attname = 'embedding'
`).Scan(&existing)
		if err != nil {
			return fmt.Errorf("read embedding column size: %w", err)
		}
		if existing != r.dimensions {
			return &domain.DimensionMismatchError{Model: r.model, Expected: existing, Actual: r.dimensions}
		}
		return nil
	})
}

// ReplaceDocumentChunks deletes and inserts inside one transaction so a
// document never keeps a partial chunk set.
func (r *ChunkRepository) ReplaceDocumentChunks(
	ctx context.Context,
	documentID, tenantID string,
	chunks []domain.DocumentChunk,
) error {
	if err := domain.ValidateChunkBatch(documentID, tenantID, chunks, r.dimensions, r.model); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin chunk tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("delete previous chunks: %w", err)
	}
	for _, chunk := range chunks {
		_, err := tx.ExecContext(ctx, `
INSERT INTO document_chunks (document_id, tenant_id, chunk_index, content, embedding, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`, chunk.DocumentID, chunk.TenantID, chunk.ChunkIndex, chunk.Content, pgvector.NewVector(chunk.Embedding), chunk.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert chunk %d: %w", chunk.ChunkIndex, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chunk tx: %w", err)
	}
	return nil
}

func (r *ChunkRepository) DeleteAll(ctx context.Context, documentID string) (int, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, fmt.Errorf("delete chunks: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete chunks rows affected: %w", err)
	}
	return int(affected), nil
}

func (r *ChunkRepository) ListByDocument(ctx context.Context, documentID string) ([]domain.DocumentChunk, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT document_id, tenant_id, chunk_index, content, embedding, created_at
FROM document_chunks
WHERE document_id = $1
ORDER BY chunk_index
`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()

	out := make([]domain.DocumentChunk, 0)
	for rows.Next() {
		var (
			chunk     domain.DocumentChunk
			embedding pgvector.Vector
		)
		if err := rows.Scan(&chunk.DocumentID, &chunk.TenantID, &chunk.ChunkIndex, &chunk.Content, &embedding, &chunk.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunk.Embedding = embedding.Slice()
		out = append(out, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}

// Stats counts chunks and distinct documents; an empty tenant means all tenants.
func (r *ChunkRepository) Stats(ctx context.Context, tenantID string) (domain.ChunkStats, error) {
	query := `SELECT COUNT(*), COUNT(DISTINCT document_id) FROM document_chunks`
	args := []any{}
	if tenantID != "" {
		query += ` WHERE tenant_id = $1`
		args = append(args, tenantID)
	}

	var stats domain.ChunkStats
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&stats.ChunkCount, &stats.DocumentCount); err != nil {
		return domain.ChunkStats{}, fmt.Errorf("chunk stats: %w", err)
	}
	return stats, nil
}

func (r *ChunkRepository) Search(ctx context.Context, q domain.ChunkQuery) ([]domain.RetrievedMatch, error) {
	if err := domain.ValidateChunkQuery(q, r.dimensions, r.model); err != nil {
		return nil, err
	}

	query := `
SELECT document_id, tenant_id, chunk_index, content, created_at, 1 - (embedding <=> $2::vector) AS score
FROM document_chunks
WHERE tenant_id = $1`
	args := []any{q.TenantID, pgvector.NewVector(q.Vector)}
	if q.DocumentID != "" {
		query += ` AND document_id = $4`
	}
	query += `
ORDER BY embedding <=> $2::vector, document_id, chunk_index
LIMIT $3`
	args = append(args, q.Limit)
	if q.DocumentID != "" {
		args = append(args, q.DocumentID)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	out := make([]domain.RetrievedMatch, 0, q.Limit)
	for rows.Next() {
		var match domain.RetrievedMatch
		if err := rows.Scan(
			&match.Chunk.DocumentID, &match.Chunk.TenantID, &match.Chunk.ChunkIndex,
			&match.Chunk.Content, &match.Chunk.CreatedAt, &match.Score,
		); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		out = append(out, match)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	return out, nil
}
