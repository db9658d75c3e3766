package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/cv-shortlist/internal/config"
	"github.com/kirillkom/cv-shortlist/internal/core/domain"
	"github.com/kirillkom/cv-shortlist/internal/core/ports"
	"github.com/kirillkom/cv-shortlist/internal/core/usecase"
	"github.com/kirillkom/cv-shortlist/internal/infrastructure/cache/redis"
	"github.com/kirillkom/cv-shortlist/internal/infrastructure/chunking"
	"github.com/kirillkom/cv-shortlist/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/cv-shortlist/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/cv-shortlist/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/cv-shortlist/internal/infrastructure/llm/openai"
	"github.com/kirillkom/cv-shortlist/internal/infrastructure/queue/nats"
	"github.com/kirillkom/cv-shortlist/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/cv-shortlist/internal/infrastructure/resilience"
	"github.com/kirillkom/cv-shortlist/internal/infrastructure/staging/localfs"
	"github.com/kirillkom/cv-shortlist/internal/infrastructure/vector/flatindex"
	"github.com/kirillkom/cv-shortlist/internal/observability/metrics"
)

type Options struct {
	// Service labels logs and metrics, e.g. "api" or "worker".
	Service string
	Logger  *slog.Logger
	// Registry receives pipeline and breaker metrics. Nil keeps them on a private registry.
	Registry *prometheus.Registry
}

type App struct {
	Config config.Config
	Logger *slog.Logger

	// Events is nil when NATS_URL is empty.
	Events   ports.IndexEvents
	Index    *usecase.IndexRegistry
	Store    *flatindex.Store
	QueryUC  *usecase.QueryUseCase
	IndexUC  *usecase.IndexingUseCase
	Executor *resilience.Executor

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := opts.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	service := opts.Service
	if service == "" {
		service = "cv-shortlist"
	}

	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*App, error) {
		closeAll()
		return nil, err
	}

	executor := resilience.NewExecutorWithLogger(resilienceConfig(cfg), logger)
	observer := metrics.NewPipelineMetrics(registry, service)
	metrics.RegisterBreakerStates(registry, service, executor)

	embedder, chat, err := newOracles(cfg, executor)
	if err != nil {
		return fail(err)
	}

	store := flatindex.NewStore(cfg.IndexPath)
	indexRegistry := usecase.NewIndexRegistry(store, logger)
	indexRegistry.ExpectEmbedModel(embedderModel(embedder))
	if err := indexRegistry.Init(ctx); err != nil {
		logger.Warn("index_load_failed", "path", store.Path(), "error", err)
	}

	judgeOpts := usecase.JudgeOptions{
		Timeout:  cfg.JudgeTimeout(),
		Observer: observer,
		Logger:   logger,
	}
	if cfg.RedisURL != "" {
		cache, err := redis.New(cfg.RedisURL, cfg.JudgeCacheTTL())
		if err != nil {
			return fail(fmt.Errorf("init judgment cache: %w", err))
		}
		closers = append(closers, func() { _ = cache.Close() })
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := cache.Ping(pingCtx); err != nil {
			logger.Warn("judgment_cache_unreachable", "error", err)
		}
		cancel()
		judgeOpts.Cache = cache
	}
	judge := usecase.NewRelevanceJudge(chat, judgeOpts)

	indexOpts := usecase.IndexingOptions{
		EmbedBatchSize: cfg.EmbedBatchSize,
		Model:          embedderModel(embedder),
		Observer:       observer,
		Logger:         logger,
	}

	var events ports.IndexEvents
	if cfg.NATSURL != "" {
		queue, err := nats.NewWithOptions(cfg.NATSURL, nats.Options{
			ReindexSubject:     cfg.NATSReindexSubject,
			RebuiltSubject:     cfg.NATSRebuiltSubject,
			ResilienceExecutor: executor,
			Logger:             logger,
		})
		if err != nil {
			return fail(fmt.Errorf("init index events: %w", err))
		}
		closers = append(closers, queue.Close)
		events = queue
		indexOpts.Events = queue
	}

	if cfg.PostgresDSN != "" {
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return fail(fmt.Errorf("open postgres: %w", err))
		}
		closers = append(closers, func() { _ = db.Close() })
		history, err := newBuildHistory(ctx, db)
		if err != nil {
			return fail(err)
		}
		indexOpts.History = history
	}

	source := localfs.NewSource().
		Register(".txt", domain.FormatText, plaintext.NewExtractor()).
		Register(".md", domain.FormatMarkdown, plaintext.NewExtractor()).
		Register(".pdf", domain.FormatPDF, pdf.NewExtractor())
	chunker := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)

	indexUC := usecase.NewIndexingUseCase(source, chunker, embedder, store, indexRegistry, indexOpts)
	queryUC := usecase.NewQueryUseCase(embedder, indexRegistry, judge, usecase.QueryOptions{
		TopK:             cfg.RAGTopK,
		JudgeConcurrency: cfg.JudgeConcurrency,
		Observer:         observer,
		Logger:           logger,
	})

	logger.Info("bootstrap_ready",
		"llm_provider", cfg.LLMProvider,
		"chat_model", chat.ModelName(),
		"index_path", store.Path(),
		"staging_path", cfg.StagingPath,
		"events", events != nil,
		"build_history", indexOpts.History != nil,
		"judgment_cache", judgeOpts.Cache != nil,
	)

	return &App{
		Config:   cfg,
		Logger:   logger,
		Events:   events,
		Index:    indexRegistry,
		Store:    store,
		QueryUC:  queryUC,
		IndexUC:  indexUC,
		Executor: executor,
		closeFn:  closeAll,
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func newOracles(cfg config.Config, executor *resilience.Executor) (ports.Embedder, ports.ChatModel, error) {
	switch cfg.LLMProvider {
	case config.ProviderOllama, "":
		client := ollama.NewWithOptions(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, ollama.Options{
			Timeout:            time.Duration(cfg.OllamaTimeoutSeconds) * time.Second,
			Temperature:        cfg.LLMTemperature,
			ResilienceExecutor: executor,
		})
		return ollama.NewEmbedder(client), ollama.NewChatModel(client), nil
	case config.ProviderOpenAI:
		client, err := openai.New(openai.Options{
			APIKey:             cfg.OpenAIAPIKey,
			BaseURL:            cfg.OpenAIBaseURL,
			ChatModel:          cfg.OpenAIChatModel,
			EmbedModel:         cfg.OpenAIEmbedModel,
			Temperature:        cfg.LLMTemperature,
			EmbedBatchSize:     cfg.EmbedBatchSize,
			ResilienceExecutor: executor,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("init openai client: %w", err)
		}
		embedder, err := openai.NewEmbedder(client)
		if err != nil {
			return nil, nil, fmt.Errorf("init openai embedder: %w", err)
		}
		return embedder, openai.NewChatModel(client), nil
	default:
		return nil, nil, fmt.Errorf("unknown LLM_PROVIDER %q (want %q or %q)", cfg.LLMProvider, config.ProviderOllama, config.ProviderOpenAI)
	}
}

func newBuildHistory(ctx context.Context, db *sql.DB) (*postgres.BuildRepository, error) {
	repo := postgres.NewBuildRepository(db)
	schemaCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := repo.EnsureSchema(schemaCtx); err != nil {
		return nil, fmt.Errorf("ensure build history schema: %w", err)
	}
	return repo, nil
}

func embedderModel(embedder ports.Embedder) string {
	named, ok := embedder.(interface{ ModelName() string })
	if !ok {
		return ""
	}
	return named.ModelName()
}

func resilienceConfig(cfg config.Config) resilience.Config {
	out := resilience.DefaultConfig()
	out.RetryMaxAttempts = cfg.ResilienceRetryMaxAttempts
	out.RetryInitialBackoff = cfg.ResilienceRetryInitialBackoff
	out.RetryMaxBackoff = cfg.ResilienceRetryMaxBackoff
	out.RetryMultiplier = cfg.ResilienceRetryMultiplier
	out.BreakerEnabled = cfg.ResilienceBreakerEnabled
	if cfg.ResilienceBreakerMinRequests > 0 {
		out.BreakerMinRequests = uint32(cfg.ResilienceBreakerMinRequests)
	}
	out.BreakerFailureRatio = cfg.ResilienceBreakerFailureRatio
	out.BreakerOpenTimeout = cfg.ResilienceBreakerOpenTimeout
	return out
}
