package llm

import (
	"context"

	"github.com/kirillkom/docintel/internal/core/domain"
)

// Backend is the vendor-specific half of a provider. The Gateway adds
// validation, resilience and the classify/summarize capabilities on top.
type Backend interface {
	Name() string
	ModelName() string
	EmbeddingModel() string
	EmbeddingDimensions() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Chat(ctx context.Context, prompt string, opts domain.ChatOptions) (domain.ChatResponse, error)
}

// NativeClassifier is implemented by backends that classify without a chat round trip.
type NativeClassifier interface {
	ClassifyDocument(ctx context.Context, text string) (domain.Classification, error)
}

// NativeSummarizer is implemented by backends that summarize without a chat round trip.
type NativeSummarizer interface {
	SummarizeDocument(ctx context.Context, text string) (domain.Summary, error)
}
