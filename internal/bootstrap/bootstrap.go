// Package bootstrap assembles the adapters and use cases for each binary.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"golang.org/x/time/rate"

	"github.com/kirillkom/docintel/internal/config"
	"github.com/kirillkom/docintel/internal/core/ports"
	"github.com/kirillkom/docintel/internal/core/usecase"
	"github.com/kirillkom/docintel/internal/infrastructure/chunking"
	"github.com/kirillkom/docintel/internal/infrastructure/extractor"
	"github.com/kirillkom/docintel/internal/infrastructure/extractor/htmltext"
	"github.com/kirillkom/docintel/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/docintel/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/docintel/internal/infrastructure/extractor/spreadsheet"
	"github.com/kirillkom/docintel/internal/infrastructure/llm"
	"github.com/kirillkom/docintel/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/docintel/internal/infrastructure/llm/openai"
	natsqueue "github.com/kirillkom/docintel/internal/infrastructure/queue/nats"
	"github.com/kirillkom/docintel/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/docintel/internal/infrastructure/resilience"
	"github.com/kirillkom/docintel/internal/infrastructure/scheduler"
	"github.com/kirillkom/docintel/internal/infrastructure/search/graph"
	"github.com/kirillkom/docintel/internal/infrastructure/search/noop"
	"github.com/kirillkom/docintel/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/docintel/internal/infrastructure/vector/memory"
	"github.com/kirillkom/docintel/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/docintel/internal/observability/metrics"
)

// Role decides which long-lived pieces a process owns.
type Role string

const (
	RoleAPI    Role = "api"
	RoleWorker Role = "worker"
	RoleCLI    Role = "cli"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Documents   *postgres.DocumentRepository
	Memberships *postgres.MembershipRepository
	Provider    *llm.Gateway
	Chunks      ports.ChunkStore

	IngestUC   *usecase.IngestDocumentUseCase
	DocumentUC *usecase.DocumentUseCase
	ProcessUC  *usecase.ProcessDocumentUseCase
	QueryUC    *usecase.QueryUseCase

	// Pool runs pipelines in this process. It is nil for API and CLI
	// processes when pipelines are dispatched over NATS.
	Pool *scheduler.Pool
	// Queue is nil in in-process mode.
	Queue *natsqueue.Queue

	WorkerMetrics *metrics.WorkerMetrics
	HTTPMetrics   *metrics.HTTPServerMetrics

	closers []func()
}

func New(ctx context.Context, cfg config.Config, role Role, logger *slog.Logger) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			app.closeResources()
		}
	}()

	db, err := postgres.OpenDB(ctx, cfg.PostgresDSN, postgres.PoolOptions{MaxOpen: cfg.PostgresMaxConns})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	app.closers = append(app.closers, func() { _ = db.Close() })
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	app.Documents = postgres.NewDocumentRepository(db)
	app.Memberships = postgres.NewMembershipRepository(db)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	app.WorkerMetrics = metrics.NewWorkerMetrics(string(role))

	providerPolicy := resilience.ProviderPolicy()
	providerPolicy.MaxAttempts = cfg.ProviderRetryAttempts
	providerPolicy.Breaker.Enabled = cfg.ProviderBreakerEnabled
	provider, err := llm.NewProvider(llm.ProviderConfig{
		Provider: cfg.AIProvider,
		OpenAI: openai.Config{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			ChatModel:  cfg.OpenAIChatModel,
			EmbedModel: cfg.OpenAIEmbedModel,
			Dimensions: cfg.OpenAIEmbedDimensions,
			Timeout:    cfg.ProviderTimeout,
		},
		Ollama: ollama.Config{
			BaseURL:         cfg.OllamaURL,
			GenModel:        cfg.OllamaGenModel,
			EmbedModel:      cfg.OllamaEmbedModel,
			EmbedDimensions: cfg.OllamaEmbedDimensions,
			Timeout:         cfg.ProviderTimeout,
		},
		StubDimensions: cfg.StubDimensions,
		Gateway: llm.GatewayOptions{
			Executor: resilience.NewExecutor(providerPolicy,
				resilience.WithLogger(logger),
				resilience.WithObserver(app.WorkerMetrics),
			),
			RateLimit: rate.Limit(cfg.ProviderRateLimit),
			RateBurst: cfg.ProviderRateBurst,
			Timeout:   cfg.ProviderTimeout,
			Logger:    logger,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("init ai provider: %w", err)
	}
	app.Provider = provider
	logger.Info("ai_provider_ready",
		"provider", provider.ProviderName(),
		"model", provider.ModelName(),
		"embedding_model", provider.EmbeddingModel(),
		"embedding_dimensions", provider.EmbeddingDimensions(),
	)

	chunks, err := app.openChunkStore(ctx, cfg, db, provider)
	if err != nil {
		return nil, err
	}
	app.Chunks = chunks

	indexer, err := app.openSearchIndex(ctx, cfg, db)
	if err != nil {
		return nil, err
	}

	extractors := extractor.NewRegistry().
		Register(pdf.NewExtractor(), pdf.MIMETypes...).
		Register(spreadsheet.NewExtractor(), spreadsheet.MIMETypes...).
		Register(htmltext.NewExtractor(), htmltext.MIMETypes...).
		Register(plaintext.NewExtractor(), plaintext.MIMETypes...)

	var recorder usecase.QueryRecorder
	if role == RoleAPI {
		app.HTTPMetrics = metrics.NewHTTPServerMetrics(string(role))
		recorder = app.HTTPMetrics
	}

	app.ProcessUC = usecase.NewProcessDocumentUseCase(
		app.Documents, storage, extractors, provider,
		chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		chunks, indexer, nil,
		usecase.ProcessOptions{
			MinConfidence:    cfg.ClassificationMinConfidence,
			FallbackCategory: cfg.FallbackCategory,
			EmbedBatchSize:   cfg.EmbedBatchSize,
			RunTimeout:       cfg.PipelineRunTimeout,
			StaleAfter:       cfg.PipelineStaleAfter,
			Recorder:         app.WorkerMetrics,
			Logger:           logger,
		},
	)

	var sched ports.PipelineScheduler
	if cfg.PipelineMode == config.PipelineModeNATS {
		queue, err := natsqueue.New(cfg.NATSURL, cfg.NATSSubject, natsqueue.Options{
			ClientName: "docintel-" + string(role),
			Executor: resilience.NewExecutor(resilience.QueuePolicy(),
				resilience.WithLogger(logger),
				resilience.WithObserver(app.WorkerMetrics),
			),
			Logger: logger,
		})
		if err != nil {
			return nil, fmt.Errorf("init pipeline queue: %w", err)
		}
		app.Queue = queue
		app.closers = append(app.closers, queue.Close)
		sched = queue
	}
	if role == RoleWorker || app.Queue == nil {
		app.Pool = scheduler.NewPool(app.ProcessUC, scheduler.Options{
			Concurrency: int64(cfg.PipelineConcurrency),
			DeferDelay:  cfg.PipelineDeferDelay,
			Recorder:    app.WorkerMetrics,
			Logger:      logger,
		})
		if sched == nil {
			sched = app.Pool
		}
	}
	app.ProcessUC.SetScheduler(sched)

	app.IngestUC = usecase.NewIngestDocumentUseCase(app.Documents, storage, sched, usecase.IngestOptions{
		AIProcessingEnabled: cfg.AIProcessingEnabled,
		Logger:              logger,
	})
	app.DocumentUC = usecase.NewDocumentUseCase(app.Documents, storage, chunks, indexer, usecase.DocumentOptions{
		StaleAfter: cfg.PipelineStaleAfter,
		Logger:     logger,
	})
	app.QueryUC = usecase.NewQueryUseCase(
		usecase.NewRetriever(provider, chunks, usecase.RetrieverOptions{
			DefaultK: cfg.RAGTopK,
			MaxK:     cfg.RAGMaxTopK,
			Logger:   logger,
		}),
		usecase.NewSynthesizer(provider, usecase.SynthesizerOptions{
			Temperature: cfg.RAGTemperature,
			MaxTokens:   cfg.RAGMaxTokens,
			TokenBudget: cfg.RAGTokenBudget,
			Logger:      logger,
		}),
		chunks, recorder, logger,
	)
	return app, nil
}

func (a *App) openChunkStore(ctx context.Context, cfg config.Config, db *sql.DB, provider *llm.Gateway) (ports.ChunkStore, error) {
	dims, model := provider.EmbeddingDimensions(), provider.EmbeddingModel()
	switch cfg.ChunkStore {
	case config.ChunkStoreQdrant:
		store, err := qdrant.New(cfg.QdrantAddr, cfg.QdrantCollection, dims, model)
		if err != nil {
			return nil, fmt.Errorf("init qdrant chunk store: %w", err)
		}
		a.closers = append(a.closers, func() { _ = store.Close() })
		if err := store.EnsureCollection(ctx); err != nil {
			return nil, fmt.Errorf("ensure qdrant collection: %w", err)
		}
		return store, nil
	case config.ChunkStoreMemory:
		a.Logger.Warn("chunk_store_in_memory", "detail", "chunks are lost on restart and not shared between processes")
		return memory.NewChunkStore(dims, model), nil
	default:
		store := postgres.NewChunkRepository(db, dims, model)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure chunk schema: %w", err)
		}
		return store, nil
	}
}

func (a *App) openSearchIndex(ctx context.Context, cfg config.Config, db *sql.DB) (ports.SearchIndexer, error) {
	switch cfg.SearchIndex {
	case config.SearchIndexNeo4j:
		driver, err := graph.Connect(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
		if err != nil {
			return nil, fmt.Errorf("init neo4j search index: %w", err)
		}
		a.closers = append(a.closers, func() { closeNeo4j(driver) })
		return graph.New(driver, cfg.Neo4jDatabase), nil
	case config.SearchIndexNone:
		return noop.Indexer{}, nil
	default:
		return postgres.NewSearchIndex(db), nil
	}
}

func closeNeo4j(driver neo4j.DriverWithContext) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = driver.Close(ctx)
}

// TenantAuthorizer is nil when membership checks are disabled.
func (a *App) TenantAuthorizer() ports.TenantAuthorizer {
	if !a.Config.RequireMembership {
		return nil
	}
	return a.Memberships
}

// Shutdown stops the local pool, waiting for in-flight runs until ctx
// expires, then releases connections.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if a.Pool != nil {
		if err := a.Pool.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("pipeline pool: %w", err))
		}
	}
	a.closeResources()
	return errors.Join(errs...)
}

func (a *App) closeResources() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
