package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/kirillkom/docintel/internal/core/domain"
)

func completedDoc() *domain.Document {
	doc := pendingDoc("org-1", "text/plain")
	doc.AI.Status = domain.StateCompleted
	return doc
}

func TestGetByIDLoadsTextOnlyWhenAsked(t *testing.T) {
	repo := newDocRepoFake(completedDoc())
	repo.text["doc-1"] = "full text"
	uc := NewDocumentUseCase(repo, newStorageFake(), newChunkStoreFake(), &indexerFake{}, DocumentOptions{})

	doc, err := uc.GetByID(context.Background(), "doc-1", false)
	if err != nil || doc.AI.ExtractedText != "" {
		t.Fatalf("expected metadata only, got %+v / %v", doc, err)
	}
	doc, err = uc.GetByID(context.Background(), "doc-1", true)
	if err != nil || doc.AI.ExtractedText != "full text" {
		t.Fatalf("expected extracted text, got %+v / %v", doc, err)
	}
	if _, err := uc.GetByID(context.Background(), "missing", false); !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListChunksRequiresDocument(t *testing.T) {
	chunks := newChunkStoreFake()
	seedChunk(chunks, "doc-1", "org-1", 0, "a", []float32{1, 0})
	uc := NewDocumentUseCase(newDocRepoFake(completedDoc()), newStorageFake(), chunks, &indexerFake{}, DocumentOptions{})

	got, err := uc.ListChunks(context.Background(), "doc-1")
	if err != nil || len(got) != 1 {
		t.Fatalf("ListChunks() = %v, %v", got, err)
	}
	if _, err := uc.ListChunks(context.Background(), "missing"); !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteRemovesChunksMetadataIndexAndObject(t *testing.T) {
	doc := completedDoc()
	repo := newDocRepoFake(doc)
	storage := newStorageFake()
	storage.objects[doc.StoragePath] = []byte("x")
	chunks := newChunkStoreFake()
	seedChunk(chunks, "doc-1", "org-1", 0, "a", []float32{1, 0})
	indexer := &indexerFake{}
	uc := NewDocumentUseCase(repo, storage, chunks, indexer, DocumentOptions{})

	if err := uc.Delete(context.Background(), "doc-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(chunks.chunks["doc-1"]) != 0 {
		t.Fatalf("chunks survived delete")
	}
	if _, err := repo.GetByID(context.Background(), "doc-1"); !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("metadata survived delete")
	}
	if len(indexer.removed) != 1 || len(storage.objects) != 0 {
		t.Fatalf("index or object not cleaned: removed=%v objects=%v", indexer.removed, storage.objects)
	}
}

func TestDeleteRejectsDocumentInProcessing(t *testing.T) {
	doc := completedDoc()
	doc.AI.Status = domain.StateProcessing
	claimed := testNow.Add(-time.Minute)
	doc.AI.ClaimedAt = &claimed
	chunks := newChunkStoreFake()
	seedChunk(chunks, "doc-1", "org-1", 0, "a", []float32{1, 0})
	uc := NewDocumentUseCase(newDocRepoFake(doc), newStorageFake(), chunks, &indexerFake{}, DocumentOptions{})
	uc.now = func() time.Time { return testNow }

	if err := uc.Delete(context.Background(), "doc-1"); !domain.IsKind(err, domain.ErrStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
	if len(chunks.chunks["doc-1"]) != 1 {
		t.Fatalf("chunks must be kept while processing")
	}
}

func TestDeleteReclaimsStaleProcessingDocument(t *testing.T) {
	doc := completedDoc()
	doc.AI.Status = domain.StateProcessing
	claimed := testNow.Add(-2 * time.Hour)
	doc.AI.ClaimedAt = &claimed
	repo := newDocRepoFake(doc)
	chunks := newChunkStoreFake()
	seedChunk(chunks, "doc-1", "org-1", 0, "a", []float32{1, 0})
	uc := NewDocumentUseCase(repo, newStorageFake(), chunks, &indexerFake{}, DocumentOptions{StaleAfter: time.Hour})
	uc.now = func() time.Time { return testNow }

	if err := uc.Delete(context.Background(), "doc-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.GetByID(context.Background(), "doc-1"); !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("stale document survived delete")
	}
	if len(chunks.chunks["doc-1"]) != 0 {
		t.Fatalf("chunks survived delete")
	}
}
