package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/docintel/internal/core/domain"
	"github.com/kirillkom/docintel/internal/infrastructure/resilience"
)

type GatewayOptions struct {
	Executor  *resilience.Executor
	RateLimit rate.Limit
	RateBurst int
	Timeout   time.Duration
	Logger    *slog.Logger
}

// Gateway exposes the full provider capability set over a single Backend.
type Gateway struct {
	backend  Backend
	executor *resilience.Executor
	limiter  *rate.Limiter
	timeout  time.Duration
	logger   *slog.Logger
}

func NewGateway(backend Backend, opts GatewayOptions) *Gateway {
	g := &Gateway{
		backend:  backend,
		executor: opts.Executor,
		timeout:  opts.Timeout,
		logger:   opts.Logger,
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(opts.RateLimit, burst)
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	return g
}

func (g *Gateway) ProviderName() string { return g.backend.Name() }

func (g *Gateway) ModelName() string { return g.backend.ModelName() }

func (g *Gateway) EmbeddingModel() string { return g.backend.EmbeddingModel() }

func (g *Gateway) EmbeddingDimensions() int { return g.backend.EmbeddingDimensions() }

func (g *Gateway) GenerateEmbedding(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	results, err := g.GenerateEmbeddings(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return results[0], nil
}

// GenerateEmbeddings returns exactly one result per input, in input order.
// Any shortfall or wrong-sized vector fails the whole batch.
func (g *Gateway) GenerateEmbeddings(ctx context.Context, texts []string) ([]domain.EmbeddingResult, error) {
	if len(texts) == 0 {
		return nil, domain.ValidationError("embedding input is empty")
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, domain.ValidationError("embedding input %d is blank", i)
		}
	}

	var vectors [][]float32
	err := g.call(ctx, "embed", func(callCtx context.Context) error {
		var err error
		vectors, err = g.backend.Embed(callCtx, texts)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, g.invalidResponse("embed", fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vectors)))
	}

	dims := g.backend.EmbeddingDimensions()
	model := g.backend.EmbeddingModel()
	results := make([]domain.EmbeddingResult, len(vectors))
	for i, vector := range vectors {
		if err := domain.CheckDimensions(model, dims, vector); err != nil {
			return nil, err
		}
		results[i] = domain.EmbeddingResult{Vector: vector, Dimensions: dims, Model: model}
	}
	return results, nil
}

func (g *Gateway) GenerateChatResponse(ctx context.Context, prompt string, opts domain.ChatOptions) (domain.ChatResponse, error) {
	if strings.TrimSpace(prompt) == "" {
		return domain.ChatResponse{}, domain.ValidationError("prompt is empty")
	}
	if opts.MaxTokens < 0 {
		return domain.ChatResponse{}, domain.ValidationError("max tokens must not be negative")
	}

	var resp domain.ChatResponse
	err := g.call(ctx, "chat", func(callCtx context.Context) error {
		var err error
		resp, err = g.backend.Chat(callCtx, prompt, opts)
		return err
	})
	if err != nil {
		return domain.ChatResponse{}, err
	}
	if resp.Model == "" {
		resp.Model = g.backend.ModelName()
	}
	return resp, nil
}

func (g *Gateway) ClassifyDocument(ctx context.Context, text string) (domain.Classification, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Classification{}, domain.ValidationError("classification text is empty")
	}

	if native, ok := g.backend.(NativeClassifier); ok {
		var cls domain.Classification
		err := g.call(ctx, "classify", func(callCtx context.Context) error {
			var err error
			cls, err = native.ClassifyDocument(callCtx, text)
			return err
		})
		if err != nil {
			return domain.Classification{}, err
		}
		return normalizeClassification(cls), nil
	}

	resp, err := g.GenerateChatResponse(ctx, buildClassificationPrompt(text), domain.ChatOptions{Temperature: 0})
	if err != nil {
		return domain.Classification{}, err
	}
	cls, err := parseClassification(resp.Text)
	if err != nil {
		return domain.Classification{}, g.invalidResponse("classify", err)
	}
	return normalizeClassification(cls), nil
}

func (g *Gateway) SummarizeDocument(ctx context.Context, text string) (domain.Summary, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Summary{}, domain.ValidationError("summary text is empty")
	}

	if native, ok := g.backend.(NativeSummarizer); ok {
		var summary domain.Summary
		err := g.call(ctx, "summarize", func(callCtx context.Context) error {
			var err error
			summary, err = native.SummarizeDocument(callCtx, text)
			return err
		})
		if err != nil {
			return domain.Summary{}, err
		}
		return normalizeSummary(summary), nil
	}

	resp, err := g.GenerateChatResponse(ctx, buildSummaryPrompt(text), domain.ChatOptions{Temperature: 0.2})
	if err != nil {
		return domain.Summary{}, err
	}
	summary, err := parseSummary(resp.Text)
	if err != nil {
		return domain.Summary{}, g.invalidResponse("summarize", err)
	}
	return normalizeSummary(summary), nil
}

func (g *Gateway) call(ctx context.Context, operation string, fn func(context.Context) error) error {
	attempt := func(ctx context.Context) error {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		callCtx := ctx
		if g.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, g.timeout)
			defer cancel()
		}
		err := fn(callCtx)
		if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return domain.NewProviderError(domain.ProviderUnavailable, g.backend.Name(), operation, fmt.Errorf("call timed out after %s: %w", g.timeout, err))
		}
		return err
	}

	var err error
	if g.executor != nil {
		err = g.executor.Execute(ctx, g.backend.Name()+"."+operation, attempt, resilience.ClassifyProviderError)
	} else {
		err = attempt(ctx)
	}
	if err == nil {
		return nil
	}

	if resilience.IsCircuitOpen(err) {
		err = domain.NewProviderError(domain.ProviderUnavailable, g.backend.Name(), operation, err)
	}
	if pe, ok := domain.AsProviderError(err); ok {
		g.logger.Warn("provider_call_failed",
			"provider", g.backend.Name(),
			"operation", operation,
			"kind", string(pe.Kind),
			"status_code", pe.StatusCode,
			"error", err,
		)
	}
	return err
}

func (g *Gateway) invalidResponse(operation string, err error) error {
	return domain.NewProviderError(domain.ProviderInvalidResponse, g.backend.Name(), operation, err)
}
