package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/flock"
	"github.com/redis/go-redis/v9"

	"ReviewRanker/internal/api"
	"ReviewRanker/internal/config"
	"ReviewRanker/internal/dedup"
	"ReviewRanker/internal/domain"
	"ReviewRanker/internal/identity"
	"ReviewRanker/internal/importer"
	"ReviewRanker/internal/infrastructure/cache"
	"ReviewRanker/internal/infrastructure/llm"
	"ReviewRanker/internal/infrastructure/ml"
	"ReviewRanker/internal/infrastructure/parser"
	"ReviewRanker/internal/infrastructure/scheduler"
	"ReviewRanker/internal/infrastructure/storage"
	"ReviewRanker/internal/infrastructure/telegram"
	"ReviewRanker/internal/logging"
	"ReviewRanker/internal/metrics"
	"ReviewRanker/internal/ports"
	"ReviewRanker/internal/queue"
	"ReviewRanker/internal/ranking"
	"ReviewRanker/internal/scanner"
	"ReviewRanker/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	Config     config.Config
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	Businesses ports.BusinessRepository
	Queue      *queue.Queue
	Pipeline   *usecase.Pipeline
	Scheduler  *usecase.Scheduler
	Rankings   ports.RankingReader
	Router     *api.Router

	db    *storage.DB
	redis *redis.Client
}

// New opens the store and builds every component from configuration.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	m := metrics.New()

	db, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a := &Application{Config: cfg, Logger: baseLogger, Metrics: m, db: db}

	businesses := storage.NewBusinessRepository(db)
	reviews := storage.NewReviewRepository(db)
	jobs := storage.NewJobRepository(db)
	rankings := storage.NewRankingRepository(db)
	a.Businesses = businesses

	notifier := newNotifier(cfg.Notifications, baseLogger)
	classifier := newClassifier(cfg.Classifier, baseLogger)

	source, err := newSource(cfg.Scrape, m, baseLogger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	clock := time.Now
	a.Queue = queue.New(queue.Deps{
		Jobs:     jobs,
		Notifier: notifier,
		Metrics:  m,
		Logger:   baseLogger,
		Clock:    clock,
	}, queue.Config{
		MaxConnections: cfg.Queue.MaxConnections,
		MaxRetries:     cfg.Queue.MaxRetries,
		StuckThreshold: cfg.Queue.StuckThreshold,
	})

	imp := importer.New(importer.Deps{
		Businesses: businesses,
		Reviews:    reviews,
		Detector:   dedup.NewDetector(cfg.Dedup.Weights, dedup.NewAuthority(cfg.Dedup.Authority, cfg.Dedup.FallbackAuthority)),
		Notifier:   notifier,
		Metrics:    m,
		Logger:     baseLogger,
		Clock:      clock,
	}, importer.Config{
		BatchSize:            cfg.Importer.BatchSize,
		BatchDelay:           cfg.Importer.BatchDelay,
		FailureRateThreshold: cfg.Importer.FailureRateThreshold,
		ErrorSampleSize:      cfg.Importer.ErrorSampleSize,
		Matching: identity.Options{
			NameThreshold:   cfg.Matching.NameThreshold,
			PhoneConfidence: cfg.Matching.PhoneConfidence,
		},
	})

	engine := ranking.NewEngine(ranking.Deps{
		Rankings:   rankings,
		Reviews:    reviews,
		Classifier: classifier,
		Metrics:    m,
		Logger:     baseLogger,
		Clock:      clock,
	}, ranking.Config{
		Params:           cfg.Ranking.Params,
		Profiles:         ranking.NewProfileSet(cfg.Ranking.Profiles, cfg.Ranking.DefaultProfile),
		ClassifierSample: cfg.Ranking.ClassifierSample,
	})

	a.Rankings = engine
	var invalidator usecase.Invalidator
	if cfg.Cache.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
		rankingCache := cache.NewRankingCache(engine, a.redis, cfg.Cache.TTL, baseLogger)
		a.Rankings = rankingCache
		invalidator = rankingCache
	}

	a.Pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		Businesses: businesses,
		Source:     source,
		Queue:      a.Queue,
		Importer:   imp,
		Ranking:    engine,
		Cache:      invalidator,
		Metrics:    m,
		Logger:     baseLogger,
		Clock:      clock,
	}, usecase.PipelineConfig{
		StaleAfter:    cfg.Refresh.StaleAfter,
		RefreshLimit:  cfg.Refresh.Limit,
		RankingWindow: cfg.Ranking.RefreshWindow,
	})

	driver, err := scheduler.NewCronScheduler(cfg.Scheduler.CronExpression, cfg.Scheduler.Location(), baseLogger)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("scheduler: %w", err)
	}
	a.Scheduler = usecase.NewScheduler(driver, a.Pipeline, baseLogger)

	a.Router = api.NewRouter(api.Deps{
		Rankings:   a.Rankings,
		Businesses: businesses,
		Queue:      a.Queue,
		Imports:    a.Pipeline,
		Cycles:     a.Scheduler,
		Health:     db,
		Metrics:    m,
		Logger:     baseLogger,
	})

	return a, nil
}

func newSource(cfg config.ScrapeConfig, m *metrics.Metrics, logger *slog.Logger) (*parser.StrategySource, error) {
	client := &http.Client{Timeout: cfg.Timeout}
	registry := scanner.NewRegistry()
	registry.Register(parser.NewAPIScanner(client, cfg.BaseURL, cfg.APIKey))
	registry.Register(parser.NewListingScanner(client, cfg.BaseURL))

	source, err := parser.NewStrategySource(registry, cfg, m, logger)
	if err != nil {
		return nil, fmt.Errorf("review source (available: %s): %w", strings.Join(registry.Names(), ", "), err)
	}
	return source, nil
}

func newNotifier(cfg config.NotificationConfig, logger *slog.Logger) ports.Notifier {
	tg := cfg.Telegram
	if tg.BotToken == "" || tg.ChatID == "" {
		logger.Debug("telegram notifier disabled")
		return nil
	}
	return telegram.NewNotifier(tg.BotToken, tg.ChatID, tg.APIBase)
}

// newClassifier returns nil when no provider is configured; a broken
// provider configuration degrades to neutral scoring with a warning.
func newClassifier(cfg config.ClassifierConfig, logger *slog.Logger) ports.Classifier {
	switch strings.ToLower(cfg.Provider) {
	case "":
		return nil
	case "http":
		if cfg.Endpoint == "" {
			logger.Warn("classifier disabled", "provider", cfg.Provider, "error", domain.ErrConfiguration)
			return nil
		}
		return ml.NewClient(cfg.Endpoint, cfg.APIKey, cfg.Timeout)
	case "openai":
		c, err := llm.NewClassifier(cfg)
		if err != nil {
			logger.Warn("classifier disabled", "provider", cfg.Provider, "error", err)
			return nil
		}
		return c
	default:
		logger.Warn("unknown classifier provider", "provider", cfg.Provider)
		return nil
	}
}

// Serve runs the cron scheduler and the HTTP API until ctx is cancelled.
// A lock file keeps a second instance on the same host from scheduling.
func (a *Application) Serve(ctx context.Context) error {
	if path := a.Config.Scheduler.LockFile; path != "" {
		lock := flock.New(path)
		ok, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("acquire lock: %w", err)
		}
		if !ok {
			return fmt.Errorf("another reviewranker instance holds %s", path)
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				a.Logger.Warn("failed to release lock", "error", err)
			}
		}()
	}

	if !strings.EqualFold(a.Config.Logging.Level, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := a.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	srv := api.NewServer(a.Config.HTTP, a.Router.Handler())
	serveErr := make(chan error, 1)
	go func() {
		a.Logger.Info("http server listening", "addr", srv.Addr, "cron", a.Config.Scheduler.CronExpression)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		runErr = fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Logger.Warn("http shutdown", "error", err)
	}
	if err := a.Scheduler.Stop(shutdownCtx); err != nil {
		a.Logger.Warn("scheduler shutdown", "error", err)
	}
	a.Logger.Info("server stopped")
	return runErr
}

// Close releases the store and cache connections.
func (a *Application) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
