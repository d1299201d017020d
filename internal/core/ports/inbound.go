package ports

import (
	"context"
	"io"

	"github.com/kirillkom/docintel/internal/core/domain"
)

// UploadRequest describes a completed upload handed to the ingestor.
type UploadRequest struct {
	TenantID string
	OwnerID  string
	Filename string
	MimeType string
	Body     io.Reader
}

// DocumentIngestor is the inbound contract for document upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, req UploadRequest) (*domain.Document, error)
}

// DocumentService is the inbound read/delete model for document metadata and chunks.
type DocumentService interface {
	GetByID(ctx context.Context, id string, includeText bool) (*domain.Document, error)
	ListChunks(ctx context.Context, id string) ([]domain.DocumentChunk, error)
	Delete(ctx context.Context, id string) error
}

// DocumentProcessor is the inbound contract for the asynchronous AI pipeline.
type DocumentProcessor interface {
	Run(ctx context.Context, documentID string) error
	Reprocess(ctx context.Context, documentID string) (*domain.Document, error)
}

// QuestionAnswerer is the inbound contract for retrieval-augmented answers.
type QuestionAnswerer interface {
	Answer(ctx context.Context, req domain.QuestionRequest) (*domain.Answer, error)
	Stats(ctx context.Context, tenantID string) (domain.ChunkStats, error)
}
