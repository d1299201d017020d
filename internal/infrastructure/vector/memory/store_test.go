package memory

import (
	"context"
	"testing"

	"github.com/kirillkom/docintel/internal/core/domain"
)

func chunk(documentID, tenantID string, index int, vector ...float32) domain.DocumentChunk {
	return domain.DocumentChunk{DocumentID: documentID, TenantID: tenantID, ChunkIndex: index, Content: documentID, Embedding: vector}
}

func TestSearchNeverReturnsOtherTenants(t *testing.T) {
	store := NewChunkStore(2, "m")
	ctx := context.Background()

	// The other tenant's chunk is a perfect match and must still be invisible.
	if err := store.ReplaceDocumentChunks(ctx, "doc-b", "org-b", []domain.DocumentChunk{chunk("doc-b", "org-b", 0, 1, 0)}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if err := store.ReplaceDocumentChunks(ctx, "doc-a", "org-a", []domain.DocumentChunk{chunk("doc-a", "org-a", 0, 0, 1)}); err != nil {
		t.Fatalf("replace: %v", err)
	}

	matches, err := store.Search(ctx, domain.ChunkQuery{TenantID: "org-a", Vector: []float32{1, 0}, Limit: 1})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(matches) != 1 || matches[0].Chunk.TenantID != "org-a" {
		t.Fatalf("expected only org-a match, got %+v", matches)
	}
}

func TestReplaceDropsPreviousChunkSet(t *testing.T) {
	store := NewChunkStore(2, "m")
	ctx := context.Background()

	first := []domain.DocumentChunk{chunk("doc", "org", 0, 1, 0), chunk("doc", "org", 1, 1, 0), chunk("doc", "org", 2, 1, 0)}
	if err := store.ReplaceDocumentChunks(ctx, "doc", "org", first); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if err := store.ReplaceDocumentChunks(ctx, "doc", "org", []domain.DocumentChunk{chunk("doc", "org", 0, 0, 1)}); err != nil {
		t.Fatalf("replace: %v", err)
	}

	chunks, _ := store.ListByDocument(ctx, "doc")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk after replace, got %d", len(chunks))
	}
	stats, _ := store.Stats(ctx, "org")
	if stats.ChunkCount != 1 || stats.DocumentCount != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	n, _ := store.DeleteAll(ctx, "doc")
	if n != 1 {
		t.Fatalf("expected 1 deleted, got %d", n)
	}
}

func TestSearchOrdersTiesByDocumentAndIndex(t *testing.T) {
	store := NewChunkStore(2, "m")
	ctx := context.Background()
	_ = store.ReplaceDocumentChunks(ctx, "doc-b", "org", []domain.DocumentChunk{chunk("doc-b", "org", 0, 1, 0)})
	_ = store.ReplaceDocumentChunks(ctx, "doc-a", "org", []domain.DocumentChunk{chunk("doc-a", "org", 1, 1, 0), chunk("doc-a", "org", 0, 1, 0)})

	matches, err := store.Search(ctx, domain.ChunkQuery{TenantID: "org", Vector: []float32{1, 0}, Limit: 10})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(matches))
	}
	if matches[0].Chunk.DocumentID != "doc-a" || matches[0].Chunk.ChunkIndex != 0 || matches[2].Chunk.DocumentID != "doc-b" {
		t.Fatalf("unexpected order: %+v", matches)
	}
}

func TestSearchRejectsWrongDimensions(t *testing.T) {
	store := NewChunkStore(3, "m")
	_, err := store.Search(context.Background(), domain.ChunkQuery{TenantID: "org", Vector: []float32{1, 0}, Limit: 1})
	if !domain.IsKind(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
}
