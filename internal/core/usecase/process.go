package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kirillkom/docintel/internal/core/domain"
	"github.com/kirillkom/docintel/internal/core/ports"
)

const (
	DefaultMinConfidence    = 0.6
	DefaultFallbackCategory = "general"
	DefaultEmbedBatchSize   = 32
	DefaultStaleAfter       = 30 * time.Minute
)

// Pipeline step names, used in errors, spans, logs and metrics.
const (
	StepExtract   = "extract"
	StepClassify  = "classify"
	StepSummarize = "summarize"
	StepReindex   = "reindex"
	StepChunk     = "chunk_and_embed"
)

// StepRecorder observes individual pipeline steps.
type StepRecorder interface {
	RecordPipelineStep(step, outcome string, duration time.Duration)
}

type ProcessOptions struct {
	MinConfidence    float64
	FallbackCategory string
	EmbedBatchSize   int
	// RunTimeout bounds a whole run. Zero or anything above StaleAfter is
	// capped at StaleAfter so a reclaimed run cannot still be alive.
	RunTimeout time.Duration
	// StaleAfter is how old a processing claim must be before an explicit
	// reprocess or delete may take it back.
	StaleAfter time.Duration
	Recorder   StepRecorder
	Logger     *slog.Logger
}

// ProcessDocumentUseCase drives one document through
// pending → processing → completed|failed.
type ProcessDocumentUseCase struct {
	repo      ports.DocumentRepository
	storage   ports.ObjectStorage
	extractor ports.TextExtractor
	provider  ports.AIProvider
	chunker   ports.Chunker
	chunks    ports.ChunkStore
	indexer   ports.SearchIndexer
	scheduler ports.PipelineScheduler
	opts      ProcessOptions
	now       func() time.Time
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	extractor ports.TextExtractor,
	provider ports.AIProvider,
	chunker ports.Chunker,
	chunks ports.ChunkStore,
	indexer ports.SearchIndexer,
	scheduler ports.PipelineScheduler,
	opts ProcessOptions,
) *ProcessDocumentUseCase {
	if opts.MinConfidence <= 0 {
		opts.MinConfidence = DefaultMinConfidence
	}
	if opts.FallbackCategory == "" {
		opts.FallbackCategory = DefaultFallbackCategory
	}
	if opts.EmbedBatchSize <= 0 {
		opts.EmbedBatchSize = DefaultEmbedBatchSize
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	if opts.RunTimeout <= 0 || opts.RunTimeout > opts.StaleAfter {
		opts.RunTimeout = opts.StaleAfter
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &ProcessDocumentUseCase{
		repo:      repo,
		storage:   storage,
		extractor: extractor,
		provider:  provider,
		chunker:   chunker,
		chunks:    chunks,
		indexer:   indexer,
		scheduler: scheduler,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetScheduler wires the scheduler after construction; the in-process pool
// and the pipeline reference each other.
func (uc *ProcessDocumentUseCase) SetScheduler(scheduler ports.PipelineScheduler) {
	uc.scheduler = scheduler
}

// Run processes a pending document. Documents in any other state are left
// untouched. A step failure is persisted as failed and also returned.
func (uc *ProcessDocumentUseCase) Run(ctx context.Context, documentID string) (err error) {
	logger := uc.opts.Logger.With("document_id", documentID)

	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("fetch document by id: %w", err)
	}
	if doc.AI.Status != domain.StatePending {
		logger.Info("pipeline_run_skipped", "status", string(doc.AI.Status))
		return nil
	}
	if err := uc.repo.TransitionState(ctx, documentID, domain.StatePending, domain.StateProcessing, ""); err != nil {
		if domain.IsKind(err, domain.ErrStateConflict) {
			logger.Info("pipeline_run_claimed_elsewhere")
			return nil
		}
		return fmt.Errorf("set state=processing: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, uc.opts.RunTimeout)
	defer cancel()
	runCtx, span := startSpan(runCtx, "pipeline.run",
		attribute.String("document.id", documentID),
		attribute.String("document.mime_type", doc.MimeType),
	)
	defer func() { endSpan(span, err) }()

	started := time.Now()
	stepErr := uc.runSteps(runCtx, doc, logger)

	// The run context may be spent; the final state must still be written.
	persistCtx := context.WithoutCancel(ctx)
	if stepErr != nil {
		logger.Error("pipeline_run_failed", "error", stepErr, "duration_ms", time.Since(started).Milliseconds())
		if markErr := uc.repo.TransitionState(persistCtx, documentID, domain.StateProcessing, domain.StateFailed, stepErr.Error()); markErr != nil {
			return fmt.Errorf("%w; mark failed: %v", stepErr, markErr)
		}
		return stepErr
	}
	if err := uc.repo.TransitionState(persistCtx, documentID, domain.StateProcessing, domain.StateCompleted, ""); err != nil {
		return fmt.Errorf("set state=completed: %w", err)
	}
	logger.Info("pipeline_run_completed", "duration_ms", time.Since(started).Milliseconds())
	return nil
}

// Reprocess is the explicit request that moves a document back to pending
// and schedules it again. A running document cannot be reprocessed unless
// its claim is older than StaleAfter, in which case the run is presumed dead.
func (uc *ProcessDocumentUseCase) Reprocess(ctx context.Context, documentID string) (*domain.Document, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	if doc.AI.Status == domain.StateProcessing {
		if err := reclaimStale(ctx, uc.repo, doc, uc.now(), uc.opts.StaleAfter, uc.opts.Logger); err != nil {
			return nil, err
		}
	} else {
		from := doc.AI.Status
		if err := domain.Transition(from, domain.StatePending, true); err != nil {
			return nil, err
		}
		if err := uc.repo.TransitionState(ctx, documentID, from, domain.StatePending, ""); err != nil {
			return nil, fmt.Errorf("set state=pending: %w", err)
		}
	}
	if err := uc.scheduler.Schedule(ctx, documentID); err != nil {
		uc.opts.Logger.Error("pipeline_schedule_failed", "document_id", documentID, "error", err)
	}

	doc.AI.Status = domain.StatePending
	doc.AI.Error = ""
	doc.AI.ClaimedAt = nil
	doc.UpdatedAt = uc.now()
	return doc, nil
}

// reclaimStale takes a processing document back to pending when its claim
// is stale; a live claim is a state conflict.
func reclaimStale(
	ctx context.Context,
	repo ports.DocumentRepository,
	doc *domain.Document,
	now time.Time,
	staleAfter time.Duration,
	logger *slog.Logger,
) error {
	if !doc.ClaimStale(now, staleAfter) {
		return fmt.Errorf("%w: document %s is being processed", domain.ErrStateConflict, doc.ID)
	}
	if err := repo.ReclaimStale(ctx, doc.ID, now.Add(-staleAfter)); err != nil {
		return fmt.Errorf("reclaim stale run: %w", err)
	}
	attrs := []any{"document_id", doc.ID, "stale_after", staleAfter.String()}
	if doc.AI.ClaimedAt != nil {
		attrs = append(attrs, "claimed_at", doc.AI.ClaimedAt.Format(time.RFC3339))
	}
	logger.Warn("pipeline_stale_claim_reclaimed", attrs...)
	return nil
}

func (uc *ProcessDocumentUseCase) runSteps(ctx context.Context, doc *domain.Document, logger *slog.Logger) error {
	var extraction domain.Extraction
	err := uc.step(ctx, StepExtract, func(ctx context.Context) error {
		var err error
		extraction, err = uc.extract(ctx, doc, logger)
		return err
	})
	if err != nil {
		return err
	}

	search := domain.SearchDocument{
		ID:       doc.ID,
		TenantID: doc.TenantID,
		Title:    doc.Filename,
		MimeType: doc.MimeType,
	}

	if extraction.Empty() {
		logger.Info("pipeline_empty_extraction", "mime_type", doc.MimeType)
		if err := uc.step(ctx, StepReindex, func(ctx context.Context) error {
			return uc.indexer.IndexDocument(ctx, search)
		}); err != nil {
			return err
		}
		return uc.step(ctx, StepChunk, func(ctx context.Context) error {
			_, err := uc.chunks.DeleteAll(ctx, doc.ID)
			return err
		})
	}

	err = uc.step(ctx, StepClassify, func(ctx context.Context) error {
		cls, err := uc.provider.ClassifyDocument(ctx, extraction.Text)
		if err != nil {
			return err
		}
		if cls.Confidence < uc.opts.MinConfidence {
			logger.Info("classification_below_threshold",
				"category", cls.Category,
				"confidence", cls.Confidence,
				"fallback", uc.opts.FallbackCategory,
			)
			cls.Category = uc.opts.FallbackCategory
		}
		search.Category = cls.Category
		search.Tags = cls.Tags
		return uc.repo.SaveClassification(ctx, doc.ID, cls)
	})
	if err != nil {
		return err
	}

	err = uc.step(ctx, StepSummarize, func(ctx context.Context) error {
		summary, err := uc.provider.SummarizeDocument(ctx, extraction.Text)
		if err != nil {
			return err
		}
		search.Summary = summary.Summary
		return uc.repo.SaveSummary(ctx, doc.ID, summary)
	})
	if err != nil {
		return err
	}

	search.Content = extraction.Text
	if err := uc.step(ctx, StepReindex, func(ctx context.Context) error {
		return uc.indexer.IndexDocument(ctx, search)
	}); err != nil {
		return err
	}

	if doc.Personal() {
		logger.Info("pipeline_chunking_skipped", "reason", "personal document")
		return nil
	}
	return uc.step(ctx, StepChunk, func(ctx context.Context) error {
		return uc.chunkAndEmbed(ctx, doc, extraction.Text)
	})
}

func (uc *ProcessDocumentUseCase) step(ctx context.Context, name string, fn func(context.Context) error) (err error) {
	ctx, span := startSpan(ctx, "pipeline."+name)
	started := time.Now()
	defer func() {
		endSpan(span, err)
		if uc.opts.Recorder != nil {
			outcome := "success"
			if err != nil {
				outcome = "error"
			}
			uc.opts.Recorder.RecordPipelineStep(name, outcome, time.Since(started))
		}
	}()

	if err := fn(ctx); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// extract reads the stored file and persists the extraction. An unsupported
// MIME type yields an empty extraction rather than an error.
func (uc *ProcessDocumentUseCase) extract(ctx context.Context, doc *domain.Document, logger *slog.Logger) (domain.Extraction, error) {
	reader, err := uc.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("open source document: %w", err)
	}
	data, err := io.ReadAll(reader)
	_ = reader.Close()
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("read source document: %w", err)
	}

	extraction, err := uc.extractor.Extract(ctx, doc.MimeType, data)
	if errors.Is(err, domain.ErrUnsupportedMIME) {
		logger.Info("pipeline_unsupported_mime", "mime_type", doc.MimeType)
		extraction, err = domain.Extraction{}, nil
	}
	if err != nil {
		return domain.Extraction{}, err
	}
	if strings.TrimSpace(extraction.Text) == "" {
		extraction = domain.Extraction{}
	}
	if err := uc.repo.SaveExtraction(ctx, doc.ID, extraction); err != nil {
		return domain.Extraction{}, err
	}
	return extraction, nil
}

func (uc *ProcessDocumentUseCase) chunkAndEmbed(ctx context.Context, doc *domain.Document, text string) error {
	segments, err := uc.chunker.Split(text)
	if err != nil {
		return fmt.Errorf("split text: %w", err)
	}
	if len(segments) == 0 {
		return domain.ValidationError("chunking produced zero chunks")
	}

	now := uc.now()
	chunks := make([]domain.DocumentChunk, 0, len(segments))
	for start := 0; start < len(segments); start += uc.opts.EmbedBatchSize {
		end := min(start+uc.opts.EmbedBatchSize, len(segments))
		batch := segments[start:end]
		results, err := uc.provider.GenerateEmbeddings(ctx, batch)
		if err != nil {
			return fmt.Errorf("embed chunks %d-%d: %w", start, end-1, err)
		}
		if len(results) != len(batch) {
			return domain.NewProviderError(domain.ProviderInvalidResponse, "", "embed",
				fmt.Errorf("expected %d embeddings, got %d", len(batch), len(results)))
		}
		for i, result := range results {
			if err := domain.CheckDimensions(result.Model, uc.provider.EmbeddingDimensions(), result.Vector); err != nil {
				return err
			}
			chunks = append(chunks, domain.DocumentChunk{
				DocumentID: doc.ID,
				TenantID:   doc.TenantID,
				ChunkIndex: start + i,
				Content:    batch[i],
				Embedding:  result.Vector,
				CreatedAt:  now,
			})
		}
	}

	if err := uc.chunks.ReplaceDocumentChunks(ctx, doc.ID, doc.TenantID, chunks); err != nil {
		return fmt.Errorf("store chunks: %w", err)
	}
	return nil
}
