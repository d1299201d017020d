package domain

import "time"

// DocumentChunk is immutable once stored. Re-chunking replaces the whole set.
type DocumentChunk struct {
	DocumentID string    `json:"document_id"`
	TenantID   string    `json:"tenant_id"`
	ChunkIndex int       `json:"chunk_index"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

type ChunkStats struct {
	ChunkCount    int `json:"chunk_count"`
	DocumentCount int `json:"document_count"`
}

// ChunkQuery is a nearest-neighbour lookup. TenantID is mandatory and is
// applied before ranking; DocumentID optionally narrows the scope further.
type ChunkQuery struct {
	TenantID   string
	DocumentID string
	Vector     []float32
	Limit      int
}

type RetrievalQuery struct {
	Question   string
	TenantID   string
	DocumentID string
	K          int
}

type RetrievedMatch struct {
	Chunk DocumentChunk `json:"chunk"`
	Score float64       `json:"score"`
}

type PromptVariant string

const (
	PromptFull           PromptVariant = "full"
	PromptTerse          PromptVariant = "terse"
	PromptConversational PromptVariant = "conversational"
	PromptSummarization  PromptVariant = "summarization"
)

func ParsePromptVariant(raw string) (PromptVariant, bool) {
	switch v := PromptVariant(raw); v {
	case PromptFull, PromptTerse, PromptConversational, PromptSummarization:
		return v, true
	case "":
		return PromptFull, true
	default:
		return "", false
	}
}

type ConversationTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type QuestionRequest struct {
	Question    string             `json:"question"`
	TenantID    string             `json:"tenant_id"`
	DocumentID  string             `json:"document_id,omitempty"`
	K           int                `json:"k,omitempty"`
	Variant     PromptVariant      `json:"variant,omitempty"`
	History     []ConversationTurn `json:"history,omitempty"`
	TokenBudget int                `json:"token_budget,omitempty"`
}

type Source struct {
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
}

type Answer struct {
	Text      string     `json:"answer"`
	Sources   []Source   `json:"sources"`
	Truncated bool       `json:"truncated,omitempty"`
	Model     string     `json:"model,omitempty"`
	Usage     TokenUsage `json:"usage"`
}

const NoRelevantInformationAnswer = "I could not find any relevant information in your documents to answer this question."

// ValidateChunkBatch enforces that a batch is non-empty, belongs to exactly
// one document and tenant, and carries vectors of the expected size.
// dimensions <= 0 skips the size check.
func ValidateChunkBatch(documentID, tenantID string, chunks []DocumentChunk, dimensions int, model string) error {
	if documentID == "" || tenantID == "" {
		return ValidationError("chunk batch requires document and tenant ids")
	}
	if len(chunks) == 0 {
		return ValidationError("chunk batch for document %s is empty", documentID)
	}
	for _, chunk := range chunks {
		if chunk.DocumentID != documentID || chunk.TenantID != tenantID {
			return ValidationError("chunk %d does not belong to document %s of tenant %s", chunk.ChunkIndex, documentID, tenantID)
		}
		if len(chunk.Embedding) == 0 {
			return ValidationError("chunk %d has no embedding", chunk.ChunkIndex)
		}
		if dimensions > 0 {
			if err := CheckDimensions(model, dimensions, chunk.Embedding); err != nil {
				return err
			}
		}
	}
	return nil
}

func ValidateChunkQuery(q ChunkQuery, dimensions int, model string) error {
	if q.TenantID == "" {
		return ValidationError("chunk search requires a tenant id")
	}
	if q.Limit <= 0 {
		return ValidationError("chunk search limit must be positive")
	}
	if len(q.Vector) == 0 {
		return ValidationError("chunk search vector is empty")
	}
	if dimensions > 0 {
		return CheckDimensions(model, dimensions, q.Vector)
	}
	return nil
}
