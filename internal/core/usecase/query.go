package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/kirillkom/docintel/internal/core/domain"
	"github.com/kirillkom/docintel/internal/core/ports"
)

// QueryRecorder receives RAG request outcomes; metrics.HTTPServerMetrics implements it.
type QueryRecorder interface {
	RecordRAGQuery(outcome string, matches int, duration time.Duration, usage domain.TokenUsage)
}

type QueryUseCase struct {
	retriever   *Retriever
	synthesizer *Synthesizer
	store       ports.ChunkStore
	recorder    QueryRecorder
	logger      *slog.Logger
}

func NewQueryUseCase(
	retriever *Retriever,
	synthesizer *Synthesizer,
	store ports.ChunkStore,
	recorder QueryRecorder,
	logger *slog.Logger,
) *QueryUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryUseCase{
		retriever:   retriever,
		synthesizer: synthesizer,
		store:       store,
		recorder:    recorder,
		logger:      logger,
	}
}

// Answer retrieves tenant-scoped matches and synthesizes an answer from them.
// Provider failures come back typed; no fallback answer is produced for them.
func (uc *QueryUseCase) Answer(ctx context.Context, req domain.QuestionRequest) (*domain.Answer, error) {
	started := time.Now()

	matches, err := uc.retriever.Retrieve(ctx, domain.RetrievalQuery{
		Question:   req.Question,
		TenantID:   req.TenantID,
		DocumentID: req.DocumentID,
		K:          req.K,
	})
	if err != nil {
		uc.record("retrieve_error", 0, started, domain.TokenUsage{})
		return nil, err
	}

	answer, err := uc.synthesizer.Synthesize(ctx, req, matches)
	if err != nil {
		uc.record("synthesize_error", len(matches), started, domain.TokenUsage{})
		return nil, err
	}

	outcome := "answered"
	if len(matches) == 0 {
		outcome = "no_matches"
	}
	uc.record(outcome, len(matches), started, answer.Usage)
	uc.logger.Info("rag_query",
		"tenant_id", req.TenantID,
		"document_id", req.DocumentID,
		"matches", len(matches),
		"sources", len(answer.Sources),
		"truncated", answer.Truncated,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return answer, nil
}

// Stats reports chunk totals for tenantID, or for every tenant when it is empty.
func (uc *QueryUseCase) Stats(ctx context.Context, tenantID string) (domain.ChunkStats, error) {
	return uc.store.Stats(ctx, tenantID)
}

func (uc *QueryUseCase) record(outcome string, matches int, started time.Time, usage domain.TokenUsage) {
	if uc.recorder == nil {
		return
	}
	uc.recorder.RecordRAGQuery(outcome, matches, time.Since(started), usage)
}
