package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docintel/internal/core/domain"
	"github.com/kirillkom/docintel/internal/core/ports"
)

type IngestOptions struct {
	// AIProcessingEnabled=false stores documents in state none and never schedules them.
	AIProcessingEnabled bool
	Logger              *slog.Logger
}

type IngestDocumentUseCase struct {
	repo      ports.DocumentRepository
	storage   ports.ObjectStorage
	scheduler ports.PipelineScheduler
	opts      IngestOptions
	now       func() time.Time
}

func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	scheduler ports.PipelineScheduler,
	opts IngestOptions,
) *IngestDocumentUseCase {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &IngestDocumentUseCase{
		repo:      repo,
		storage:   storage,
		scheduler: scheduler,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Upload stores the file and its metadata, then hands the document to the
// pipeline. The returned document is already pending; processing happens later.
func (uc *IngestDocumentUseCase) Upload(ctx context.Context, req ports.UploadRequest) (*domain.Document, error) {
	if req.Body == nil {
		return nil, domain.ValidationError("upload body is required")
	}
	filename := strings.TrimSpace(req.Filename)
	if filename == "" {
		return nil, domain.ValidationError("filename is required")
	}
	mimeType := strings.TrimSpace(req.MimeType)
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	id := uuid.NewString()
	storageKey := storageKeyFor(req.TenantID, id, filename)
	size, err := uc.storage.Save(ctx, storageKey, req.Body)
	if err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	status := domain.StatePending
	if !uc.opts.AIProcessingEnabled {
		status = domain.StateNone
	}
	now := uc.now()
	doc := &domain.Document{
		ID:          id,
		TenantID:    req.TenantID,
		OwnerID:     req.OwnerID,
		Filename:    filename,
		MimeType:    mimeType,
		SizeBytes:   size,
		StoragePath: storageKey,
		CreatedAt:   now,
		UpdatedAt:   now,
		AI: domain.DocumentAI{
			Status:    status,
			Tags:      []string{},
			KeyPoints: []string{},
		},
	}

	if err := uc.repo.Create(ctx, doc); err != nil {
		if cleanupErr := uc.storage.Delete(ctx, storageKey); cleanupErr != nil {
			uc.opts.Logger.Warn("upload_cleanup_failed", "document_id", id, "error", cleanupErr)
		}
		return nil, fmt.Errorf("create document metadata: %w", err)
	}

	if status == domain.StatePending {
		// A failed hand-off leaves the document pending; reprocess picks it up.
		if err := uc.scheduler.Schedule(ctx, doc.ID); err != nil {
			uc.opts.Logger.Error("pipeline_schedule_failed", "document_id", doc.ID, "error", err)
		}
	}
	return doc, nil
}

func storageKeyFor(tenantID, id, filename string) string {
	scope := "personal"
	if tenantID != "" {
		scope = sanitizeFilename(tenantID)
	}
	return fmt.Sprintf("%s/%s_%s", scope, id, sanitizeFilename(filename))
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == ".." {
		return "document.bin"
	}
	return base
}
