package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/kirillkom/docintel/internal/core/domain"
)

// SearchIndex keeps documents.search_vector current for keyword search.
// Title and category weigh more than summary, which weighs more than body text.
type SearchIndex struct {
	db *sql.DB
}

func NewSearchIndex(db *sql.DB) *SearchIndex {
	return &SearchIndex{db: db}
}

func (s *SearchIndex) IndexDocument(ctx context.Context, doc domain.SearchDocument) error {
	result, err := s.db.ExecContext(ctx, `
UPDATE documents SET search_vector =
	setweight(to_tsvector('simple', $2), 'A') ||
	setweight(to_tsvector('simple', $3), 'B') ||
	setweight(to_tsvector('simple', $4), 'C') ||
	setweight(to_tsvector('simple', $5), 'D')
WHERE id = $1
`, doc.ID, doc.Title, doc.Category+" "+strings.Join(doc.Tags, " "), doc.Summary, doc.Content)
	if err != nil {
		return fmt.Errorf("index document: %w", err)
	}
	return ensureAffected(result, "index document", doc.ID)
}

func (s *SearchIndex) RemoveDocument(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE documents SET search_vector = NULL WHERE id = $1`, id); err != nil {
		return fmt.Errorf("remove document from index: %w", err)
	}
	return nil
}
