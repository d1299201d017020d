package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kirillkom/docintel/internal/core/domain"
	"github.com/kirillkom/docintel/internal/core/ports"
)

type SynthesizerOptions struct {
	Temperature float64
	MaxTokens   int
	// TokenBudget applies when a request does not carry its own.
	TokenBudget int
	Logger      *slog.Logger
}

// Synthesizer turns retrieved matches into a grounded answer.
type Synthesizer struct {
	provider ports.AIProvider
	opts     SynthesizerOptions
}

func NewSynthesizer(provider ports.AIProvider, opts SynthesizerOptions) *Synthesizer {
	if opts.TokenBudget <= 0 {
		opts.TokenBudget = 3000
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Synthesizer{provider: provider, opts: opts}
}

func (s *Synthesizer) Synthesize(ctx context.Context, req domain.QuestionRequest, matches []domain.RetrievedMatch) (answer *domain.Answer, err error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, domain.ValidationError("question is empty")
	}
	variant, ok := domain.ParsePromptVariant(string(req.Variant))
	if !ok {
		return nil, domain.ValidationError("unknown prompt variant %q", req.Variant)
	}
	budget := req.TokenBudget
	if budget == 0 {
		budget = s.opts.TokenBudget
	}
	if budget < 0 {
		return nil, domain.ValidationError("token budget must be positive, got %d", budget)
	}

	if len(matches) == 0 {
		return &domain.Answer{Text: domain.NoRelevantInformationAnswer, Sources: []domain.Source{}}, nil
	}

	ctx, span := startSpan(ctx, "rag.synthesize",
		attribute.String("rag.variant", string(variant)),
		attribute.Int("rag.matches", len(matches)),
	)
	defer func() { endSpan(span, err) }()

	prompt, err := BuildPrompt(variant, question, req.History, matches, budget)
	if err != nil {
		return nil, err
	}
	if prompt.Truncated || prompt.Used < len(matches) {
		s.opts.Logger.Info("rag_prompt_truncated",
			"budget", budget,
			"matches", len(matches),
			"used", prompt.Used,
			"truncated_fragment", prompt.Truncated,
		)
	}

	resp, err := s.provider.GenerateChatResponse(ctx, prompt.Text, domain.ChatOptions{
		Temperature:   s.opts.Temperature,
		MaxTokens:     s.opts.MaxTokens,
		SystemMessage: prompt.SystemMessage,
	})
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	sources := make([]domain.Source, 0, prompt.Used)
	for _, match := range matches[:prompt.Used] {
		sources = append(sources, domain.Source{
			DocumentID: match.Chunk.DocumentID,
			ChunkIndex: match.Chunk.ChunkIndex,
			Score:      match.Score,
		})
	}
	span.SetAttributes(attribute.Int("rag.sources", len(sources)))

	return &domain.Answer{
		Text:      strings.TrimSpace(resp.Text),
		Sources:   sources,
		Truncated: prompt.Truncated || prompt.Used < len(matches),
		Model:     resp.Model,
		Usage:     resp.Usage,
	}, nil
}
