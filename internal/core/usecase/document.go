package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/docintel/internal/core/domain"
	"github.com/kirillkom/docintel/internal/core/ports"
)

type DocumentOptions struct {
	// StaleAfter should match ProcessOptions.StaleAfter.
	StaleAfter time.Duration
	Logger     *slog.Logger
}

type DocumentUseCase struct {
	repo    ports.DocumentRepository
	storage ports.ObjectStorage
	chunks  ports.ChunkStore
	indexer ports.SearchIndexer
	opts    DocumentOptions
	now     func() time.Time
}

func NewDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	chunks ports.ChunkStore,
	indexer ports.SearchIndexer,
	opts DocumentOptions,
) *DocumentUseCase {
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &DocumentUseCase{
		repo:    repo,
		storage: storage,
		chunks:  chunks,
		indexer: indexer,
		opts:    opts,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// GetByID loads metadata; the extracted text is only read when asked for.
func (uc *DocumentUseCase) GetByID(ctx context.Context, id string, includeText bool) (*domain.Document, error) {
	doc, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if includeText {
		text, err := uc.repo.GetExtractedText(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load extracted text: %w", err)
		}
		doc.AI.ExtractedText = text
	}
	return doc, nil
}

func (uc *DocumentUseCase) ListChunks(ctx context.Context, id string) ([]domain.DocumentChunk, error) {
	if _, err := uc.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	chunks, err := uc.chunks.ListByDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	return chunks, nil
}

// Delete removes chunks first so a failure never leaves searchable chunks
// behind a deleted document. Index and file cleanup failures are only logged.
// A document with a live processing claim is refused; a stale claim is
// reclaimed first.
func (uc *DocumentUseCase) Delete(ctx context.Context, id string) error {
	doc, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if doc.AI.Status == domain.StateProcessing {
		if err := reclaimStale(ctx, uc.repo, doc, uc.now(), uc.opts.StaleAfter, uc.opts.Logger); err != nil {
			return err
		}
	}

	removed, err := uc.chunks.DeleteAll(ctx, id)
	if err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	if err := uc.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete document metadata: %w", err)
	}
	if err := uc.indexer.RemoveDocument(ctx, id); err != nil {
		uc.opts.Logger.Warn("search_index_remove_failed", "document_id", id, "error", err)
	}
	if err := uc.storage.Delete(ctx, doc.StoragePath); err != nil {
		uc.opts.Logger.Warn("object_delete_failed", "document_id", id, "error", err)
	}
	uc.opts.Logger.Info("document_deleted", "document_id", id, "chunks_removed", removed)
	return nil
}
