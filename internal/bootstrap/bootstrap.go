package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/document-intake/internal/config"
	"github.com/kirillkom/document-intake/internal/core/ports"
	"github.com/kirillkom/document-intake/internal/core/usecase"
	"github.com/kirillkom/document-intake/internal/infrastructure/llm/gemini"
	"github.com/kirillkom/document-intake/internal/infrastructure/notify"
	"github.com/kirillkom/document-intake/internal/infrastructure/queue/nats"
	"github.com/kirillkom/document-intake/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/document-intake/internal/infrastructure/resilience"
	"github.com/kirillkom/document-intake/internal/infrastructure/storage/gcs"
	"github.com/kirillkom/document-intake/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/document-intake/internal/observability/metrics"
)

// Deps are the outbound adapters the pipeline runs against.
type Deps struct {
	Storage  ports.ObjectStorage
	Repo     ports.DocumentRepository
	Analyzer ports.DocumentAnalyzer
	Notifier ports.Notifier
	Events   ports.DocumentEventPublisher
}

type App struct {
	Config config.Config
	Logger *slog.Logger

	Registry        *prometheus.Registry
	HTTPMetrics     *metrics.HTTPServerMetrics
	PipelineMetrics *metrics.PipelineMetrics

	Board     *usecase.StatusBoard
	Submit    *usecase.SubmitUseCase
	Documents *usecase.DocumentCatalog

	closers []func()
}

// New opens every configured backend and assembles the pipeline on top.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	registry := prometheus.NewRegistry()
	pipelineMetrics := metrics.NewPipelineMetrics(registry, cfg.ServiceName)

	var closers []func()
	fail := func(err error) (*App, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		return nil, err
	}

	db, repo, err := openRepository(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, func() { _ = db.Close() })

	storage, closeStorage, err := openStorage(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, closeStorage)

	analyzer := newAnalyzer(cfg, newAnalysisExecutor(cfg, logger, pipelineMetrics.BreakerStateChanged))

	deps := Deps{
		Storage:  storage,
		Repo:     repo,
		Analyzer: analyzer,
		Notifier: notify.NewLog(logger),
	}
	if cfg.NotifyBackend == "nats" {
		queue, err := nats.NewWithOptions(cfg.NATSURL, nats.Options{
			NotificationSubject: cfg.NATSNotificationSubject,
			ProcessedSubject:    cfg.NATSProcessedSubject,
			ClientName:          cfg.ServiceName,
			ResilienceExecutor: resilience.NewExecutor(resilience.Config{
				RetryMaxAttempts: 3,
				BreakerEnabled:   true,
				OnStateChange:    pipelineMetrics.BreakerStateChanged,
				Logger:           logger,
			}),
			Logger: logger,
		})
		if err != nil {
			return fail(fmt.Errorf("init message queue: %w", err))
		}
		closers = append(closers, queue.Close)
		deps.Notifier = notify.Fanout{deps.Notifier, queue}
		deps.Events = queue
	}

	app := assemble(cfg, logger, registry, pipelineMetrics, deps)
	app.closers = closers
	return app, nil
}

// Assemble builds the pipeline over caller-provided adapters.
func Assemble(cfg config.Config, logger *slog.Logger, deps Deps) *App {
	if logger == nil {
		logger = slog.Default()
	}
	registry := prometheus.NewRegistry()
	return assemble(cfg, logger, registry, metrics.NewPipelineMetrics(registry, cfg.ServiceName), deps)
}

func assemble(
	cfg config.Config,
	logger *slog.Logger,
	registry *prometheus.Registry,
	pipelineMetrics *metrics.PipelineMetrics,
	deps Deps,
) *App {
	board := usecase.NewStatusBoard()
	writer := usecase.NewPersistWriter(deps.Storage, deps.Repo, logger)
	submit := usecase.NewSubmitUseCase(
		usecase.NewUploadPolicy(cfg.MaxUploadBytes),
		deps.Analyzer,
		writer,
		deps.Notifier,
		board,
		usecase.SubmitOptions{
			MaxConcurrent: int64(cfg.PipelineMaxConcurrency),
			Logger:        logger,
			Observer:      pipelineMetrics,
			Events:        deps.Events,
		},
	)

	return &App{
		Config:          cfg,
		Logger:          logger,
		Registry:        registry,
		HTTPMetrics:     metrics.NewHTTPServerMetrics(registry, cfg.ServiceName),
		PipelineMetrics: pipelineMetrics,
		Board:           board,
		Submit:          submit,
		Documents:       usecase.NewDocumentCatalog(deps.Repo, deps.Storage),
	}
}

func newAnalysisExecutor(cfg config.Config, logger *slog.Logger, onStateChange func(operation, from, to string)) *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    cfg.AnalysisRetryMaxAttempts,
		RetryInitialBackoff: cfg.AnalysisRetryInitialBackoff,
		RetryMaxBackoff:     cfg.AnalysisRetryMaxBackoff,
		BreakerEnabled:      cfg.AnalysisBreakerEnabled,
		OnStateChange:       onStateChange,
		Logger:              logger,
	})
}

// newAnalyzer shares the upload ceiling with the validator so an oversized
// payload never reaches the network.
func newAnalyzer(cfg config.Config, executor *resilience.Executor) *gemini.Client {
	return gemini.New(gemini.Options{
		BaseURL:  cfg.GeminiURL,
		Model:    cfg.GeminiModel,
		APIKey:   cfg.GeminiAPIKey,
		Timeout:  cfg.AnalysisTimeout,
		MaxBytes: cfg.MaxUploadBytes,
		Generation: gemini.GenerationConfig{
			Temperature:     cfg.AnalysisTemperature,
			TopK:            cfg.AnalysisTopK,
			TopP:            cfg.AnalysisTopP,
			MaxOutputTokens: cfg.AnalysisMaxOutputTokens,
		},
		Executor: executor,
	})
}

// NewCatalog opens only the read side: the repository and the blob store.
func NewCatalog(ctx context.Context, cfg config.Config) (*usecase.DocumentCatalog, func(), error) {
	db, repo, err := openRepository(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	storage, closeStorage, err := openStorage(ctx, cfg)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return usecase.NewDocumentCatalog(repo, storage), func() {
		closeStorage()
		_ = db.Close()
	}, nil
}

// RunPruner drops finished trackers older than the retention window until ctx
// is done.
func (a *App) RunPruner(ctx context.Context) {
	retention := a.Config.TrackerRetention
	if retention <= 0 {
		return
	}
	interval := retention / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if removed := a.Board.Prune(now.Add(-retention)); removed > 0 {
				a.Logger.Debug("upload_trackers_pruned", "removed", removed)
			}
		}
	}
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func openRepository(ctx context.Context, cfg config.Config) (*sql.DB, *postgres.DocumentRepository, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	return db, repo, nil
}

func openStorage(ctx context.Context, cfg config.Config) (ports.ObjectStorage, func(), error) {
	switch cfg.StorageBackend {
	case "gcs":
		bucket, err := gcs.New(ctx, gcs.Config{
			Bucket:          cfg.GCSBucket,
			EmulatorHost:    cfg.GCSEmulatorHost,
			CredentialsFile: cfg.GCSCredentialsFile,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("init object storage: %w", err)
		}
		return bucket, func() { _ = bucket.Close() }, nil
	default:
		storage, err := localfs.New(cfg.StoragePath)
		if err != nil {
			return nil, nil, fmt.Errorf("init object storage: %w", err)
		}
		return storage, func() {}, nil
	}
}
