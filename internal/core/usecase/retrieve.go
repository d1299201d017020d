package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kirillkom/docintel/internal/core/domain"
	"github.com/kirillkom/docintel/internal/core/ports"
)

type RetrieverOptions struct {
	DefaultK int
	MaxK     int
	Logger   *slog.Logger
}

// Retriever embeds a question once and runs a tenant-scoped search.
type Retriever struct {
	provider ports.AIProvider
	store    ports.ChunkStore
	defaultK int
	maxK     int
	logger   *slog.Logger
}

func NewRetriever(provider ports.AIProvider, store ports.ChunkStore, opts RetrieverOptions) *Retriever {
	if opts.DefaultK <= 0 {
		opts.DefaultK = 5
	}
	if opts.MaxK < opts.DefaultK {
		opts.MaxK = opts.DefaultK
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Retriever{
		provider: provider,
		store:    store,
		defaultK: opts.DefaultK,
		maxK:     opts.MaxK,
		logger:   opts.Logger,
	}
}

func (r *Retriever) Retrieve(ctx context.Context, q domain.RetrievalQuery) (matches []domain.RetrievedMatch, err error) {
	question := strings.TrimSpace(q.Question)
	if question == "" {
		return nil, domain.ValidationError("question is empty")
	}
	if strings.TrimSpace(q.TenantID) == "" {
		return nil, domain.ValidationError("tenant id is required for retrieval")
	}
	k := q.K
	if k <= 0 {
		k = r.defaultK
	}
	if k > r.maxK {
		k = r.maxK
	}

	ctx, span := startSpan(ctx, "rag.retrieve",
		attribute.String("tenant.id", q.TenantID),
		attribute.String("document.id", q.DocumentID),
		attribute.Int("rag.k", k),
	)
	defer func() { endSpan(span, err) }()

	embedding, err := r.provider.GenerateEmbedding(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	if err := domain.CheckDimensions(embedding.Model, r.provider.EmbeddingDimensions(), embedding.Vector); err != nil {
		return nil, err
	}

	found, err := r.store.Search(ctx, domain.ChunkQuery{
		TenantID:   q.TenantID,
		DocumentID: q.DocumentID,
		Vector:     embedding.Vector,
		Limit:      k,
	})
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}

	matches = make([]domain.RetrievedMatch, 0, len(found))
	for _, match := range found {
		if match.Chunk.TenantID != q.TenantID {
			r.logger.Error("cross_tenant_match_dropped",
				"tenant_id", q.TenantID,
				"chunk_tenant_id", match.Chunk.TenantID,
				"document_id", match.Chunk.DocumentID,
			)
			continue
		}
		matches = append(matches, match)
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > k {
		matches = matches[:k]
	}
	span.SetAttributes(attribute.Int("rag.matches", len(matches)))
	return matches, nil
}
