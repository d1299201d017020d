package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/docintel/internal/core/domain"
)

type DocumentRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	tagsJSON, err := json.Marshal(nonNil(doc.AI.Tags))
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	keyPointsJSON, err := json.Marshal(nonNil(doc.AI.KeyPoints))
	if err != nil {
		return fmt.Errorf("marshal key points: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO documents (
	id, tenant_id, owner_id, filename, mime_type, size_bytes, storage_path,
	ai_processing_status, ai_tags, ai_key_points, created_at, updated_at
) VALUES ($1,NULLIF($2,''),NULLIF($3,''),$4,$5,$6,$7,$8,$9,$10,$11,$12)
`,
		doc.ID, doc.TenantID, doc.OwnerID, doc.Filename, doc.MimeType, doc.SizeBytes, doc.StoragePath,
		string(doc.AI.Status), tagsJSON, keyPointsJSON, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// GetByID reads everything except extracted_text, which can be large.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, COALESCE(tenant_id, ''), COALESCE(owner_id, ''), filename, mime_type, size_bytes, storage_path,
	ai_processing_status, COALESCE(ai_category, ''), ai_confidence, ai_tags, COALESCE(ai_summary, ''), ai_key_points,
	page_count, word_count, char_count, ai_processed_at, ai_claimed_at, COALESCE(ai_error, ''), created_at, updated_at
FROM documents
WHERE id = $1
`, id)

	var (
		doc          domain.Document
		status       string
		tagsRaw      []byte
		keyPointsRaw []byte
		processedAt  sql.NullTime
		claimedAt    sql.NullTime
	)
	err := row.Scan(
		&doc.ID, &doc.TenantID, &doc.OwnerID, &doc.Filename, &doc.MimeType, &doc.SizeBytes, &doc.StoragePath,
		&status, &doc.AI.Category, &doc.AI.Confidence, &tagsRaw, &doc.AI.Summary, &keyPointsRaw,
		&doc.AI.PageCount, &doc.AI.WordCount, &doc.AI.CharCount, &processedAt, &claimedAt, &doc.AI.Error, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}

	if err := json.Unmarshal(tagsRaw, &doc.AI.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	if err := json.Unmarshal(keyPointsRaw, &doc.AI.KeyPoints); err != nil {
		return nil, fmt.Errorf("unmarshal key points: %w", err)
	}
	state, err := domain.ParseProcessingState(status)
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", id, err)
	}
	doc.AI.Status = state
	if processedAt.Valid {
		ts := processedAt.Time
		doc.AI.ProcessedAt = &ts
	}
	if claimedAt.Valid {
		ts := claimedAt.Time
		doc.AI.ClaimedAt = &ts
	}
	return &doc, nil
}

func (r *DocumentRepository) GetExtractedText(ctx context.Context, id string) (string, error) {
	var text sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT extracted_text FROM documents WHERE id = $1`, id).Scan(&text)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.WrapError(domain.ErrDocumentNotFound, "get extracted text", fmt.Errorf("id=%s", id))
		}
		return "", fmt.Errorf("scan extracted text: %w", err)
	}
	return text.String, nil
}

// TransitionState is a compare-and-set on ai_processing_status, so two
// concurrent runs of the same document cannot both claim it. Entering
// processing stamps ai_claimed_at; going back to pending clears it.
func (r *DocumentRepository) TransitionState(
	ctx context.Context,
	id string,
	from, to domain.ProcessingState,
	errMessage string,
) error {
	now := r.now()
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET ai_processing_status = $3,
	ai_error = NULLIF($4, ''),
	ai_processed_at = CASE WHEN $3 = 'completed' THEN $5 ELSE ai_processed_at END,
	ai_claimed_at = CASE $3 WHEN 'processing' THEN $5 WHEN 'pending' THEN NULL ELSE ai_claimed_at END,
	updated_at = $5
WHERE id = $1 AND ai_processing_status = $2
`, id, string(from), string(to), errMessage, now)
	if err != nil {
		return fmt.Errorf("update processing state: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("processing state rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}
	return r.stateConflict(ctx, "update processing state", id, fmt.Sprintf("expected %s", from))
}

// ReclaimStale releases a processing claim no newer than claimedBefore.
// Rows claimed before ai_claimed_at existed are judged by updated_at.
func (r *DocumentRepository) ReclaimStale(ctx context.Context, id string, claimedBefore time.Time) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET ai_processing_status = 'pending',
	ai_error = NULL,
	ai_claimed_at = NULL,
	updated_at = $3
WHERE id = $1
	AND ai_processing_status = 'processing'
	AND COALESCE(ai_claimed_at, updated_at) <= $2
`, id, claimedBefore, r.now())
	if err != nil {
		return fmt.Errorf("reclaim stale claim: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reclaim stale claim rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}
	return r.stateConflict(ctx, "reclaim stale claim", id, "claim is not stale")
}

// stateConflict explains why a compare-and-set matched no row.
func (r *DocumentRepository) stateConflict(ctx context.Context, operation, id, detail string) error {
	var current string
	err := r.db.QueryRowContext(ctx, `SELECT ai_processing_status FROM documents WHERE id = $1`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WrapError(domain.ErrDocumentNotFound, operation, fmt.Errorf("id=%s", id))
		}
		return fmt.Errorf("read processing state: %w", err)
	}
	return fmt.Errorf("%w: document %s is %s, %s", domain.ErrStateConflict, id, current, detail)
}

func (r *DocumentRepository) SaveExtraction(ctx context.Context, id string, extraction domain.Extraction) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET extracted_text = $2, page_count = $3, word_count = $4, char_count = $5, updated_at = $6
WHERE id = $1
`, id, extraction.Text, extraction.PageCount, extraction.WordCount, extraction.CharCount, r.now())
	if err != nil {
		return fmt.Errorf("save extraction: %w", err)
	}
	return ensureAffected(result, "save extraction", id)
}

func (r *DocumentRepository) SaveClassification(ctx context.Context, id string, cls domain.Classification) error {
	tagsJSON, err := json.Marshal(nonNil(cls.Tags))
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET ai_category = $2, ai_confidence = $3, ai_tags = $4, updated_at = $5
WHERE id = $1
`, id, cls.Category, cls.Confidence, tagsJSON, r.now())
	if err != nil {
		return fmt.Errorf("save classification: %w", err)
	}
	return ensureAffected(result, "save classification", id)
}

func (r *DocumentRepository) SaveSummary(ctx context.Context, id string, summary domain.Summary) error {
	keyPointsJSON, err := json.Marshal(nonNil(summary.KeyPoints))
	if err != nil {
		return fmt.Errorf("marshal key points: %w", err)
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET ai_summary = $2, ai_key_points = $3, updated_at = $4
WHERE id = $1
`, id, summary.Summary, keyPointsJSON, r.now())
	if err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	return ensureAffected(result, "save summary", id)
}

func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return ensureAffected(result, "delete document", id)
}

func ensureAffected(result sql.Result, operation, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, operation, fmt.Errorf("id=%s", id))
	}
	return nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
