package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/docintel/internal/core/domain"
)

// DocumentRepository persists document metadata and pipeline state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	GetExtractedText(ctx context.Context, id string) (string, error)
	// TransitionState moves the document from `from` to `to` only if it is
	// currently in `from`. Entering completed stamps the processed-at time.
	TransitionState(ctx context.Context, id string, from, to domain.ProcessingState, errMessage string) error
	// ReclaimStale moves a processing document back to pending only if its
	// claim is no newer than claimedBefore.
	ReclaimStale(ctx context.Context, id string, claimedBefore time.Time) error
	SaveExtraction(ctx context.Context, id string, extraction domain.Extraction) error
	SaveClassification(ctx context.Context, id string, cls domain.Classification) error
	SaveSummary(ctx context.Context, id string, summary domain.Summary) error
	Delete(ctx context.Context, id string) error
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// PipelineScheduler hands a document to the background pipeline without blocking.
type PipelineScheduler interface {
	Schedule(ctx context.Context, documentID string) error
}

// TextExtractor turns raw document bytes into text, keyed by MIME type.
type TextExtractor interface {
	Extract(ctx context.Context, mimeType string, data []byte) (domain.Extraction, error)
}

// SearchIndexer keeps searchable document metadata in sync.
type SearchIndexer interface {
	IndexDocument(ctx context.Context, doc domain.SearchDocument) error
	RemoveDocument(ctx context.Context, id string) error
}

// TenantAuthorizer answers membership questions owned by the organization service.
type TenantAuthorizer interface {
	IsMember(ctx context.Context, userID, tenantID string) (bool, error)
}

// Chunker splits extracted text into ordered retrievable segments.
type Chunker interface {
	Split(text string) ([]string, error)
}

// ChunkStore persists tenant-scoped chunk embeddings.
type ChunkStore interface {
	ReplaceDocumentChunks(ctx context.Context, documentID, tenantID string, chunks []domain.DocumentChunk) error
	DeleteAll(ctx context.Context, documentID string) (int, error)
	ListByDocument(ctx context.Context, documentID string) ([]domain.DocumentChunk, error)
	Stats(ctx context.Context, tenantID string) (domain.ChunkStats, error)
	Search(ctx context.Context, query domain.ChunkQuery) ([]domain.RetrievedMatch, error)
}

// AIProvider is the capability set every AI backend exposes.
type AIProvider interface {
	GenerateEmbedding(ctx context.Context, text string) (domain.EmbeddingResult, error)
	GenerateEmbeddings(ctx context.Context, texts []string) ([]domain.EmbeddingResult, error)
	GenerateChatResponse(ctx context.Context, prompt string, opts domain.ChatOptions) (domain.ChatResponse, error)
	ClassifyDocument(ctx context.Context, text string) (domain.Classification, error)
	SummarizeDocument(ctx context.Context, text string) (domain.Summary, error)
	EmbeddingDimensions() int
	ModelName() string
}
