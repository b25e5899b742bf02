// Package api exposes rankings, queue operations and on-demand imports over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ReviewRanker/internal/config"
	"ReviewRanker/internal/domain"
	"ReviewRanker/internal/metrics"
	"ReviewRanker/internal/ports"
	"ReviewRanker/internal/usecase"
)

const (
	defaultReadTimeout   = 30 * time.Second
	defaultWriteTimeout  = 120 * time.Second
	defaultIdleTimeout   = 120 * time.Second
	healthCheckTimeout   = 2 * time.Second
	healthStatusHealthy  = "healthy"
	healthStatusDegraded = "degraded"
	maxImportRecords     = 10000
)

// QueueService is the queue surface used by the API.
type QueueService interface {
	Enqueue(ctx context.Context, businessID int64, sourceKey string, priority int) (domain.IngestionJob, bool, error)
	Status(ctx context.Context) (domain.QueueStatus, error)
}

// ImportService runs an import followed by ranking.
type ImportService interface {
	Import(ctx context.Context, records []domain.ReviewRecord) (usecase.ImportReport, error)
}

// CycleTrigger starts refresh cycles on demand.
type CycleTrigger interface {
	Trigger() bool
	Running() bool
	LastReport() (usecase.CycleReport, bool)
}

// Pinger reports store connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps holds the API dependencies. Metrics and Health are optional.
type Deps struct {
	Rankings   ports.RankingReader
	Businesses ports.BusinessRepository
	Queue      QueueService
	Imports    ImportService
	Cycles     CycleTrigger
	Health     Pinger
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// Router holds the API dependencies.
type Router struct {
	deps   Deps
	logger *slog.Logger
}

// NewRouter creates a new API router.
func NewRouter(deps Deps) *Router {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{deps: deps, logger: logger.With("component", "api")}
}

// Handler builds the gin engine with all routes registered.
func (r *Router) Handler() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(r.logger))

	router.GET("/health", r.healthCheck)
	if r.deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(r.deps.Metrics.Handler()))
	}

	v1 := router.Group("/api/v1")
	v1.GET("/businesses/:id/ranking", r.getBusinessRanking)
	v1.GET("/rankings/top", r.getTopRankings)
	v1.GET("/queue/status", r.getQueueStatus)
	v1.POST("/jobs", r.createJob)
	v1.POST("/imports", r.createImport)
	v1.POST("/refresh", r.triggerRefresh)
	v1.GET("/refresh", r.getRefresh)

	return router
}

// NewServer wraps handler in an http.Server with production timeouts.
func NewServer(cfg config.HTTPConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       defaultReadTimeout,
		ReadHeaderTimeout: defaultReadTimeout,
		WriteTimeout:      defaultWriteTimeout,
		IdleTimeout:       defaultIdleTimeout,
	}
}

func (r *Router) healthCheck(c *gin.Context) {
	health := gin.H{"status": healthStatusHealthy, "service": "reviewranker"}
	if r.deps.Health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.deps.Health.Ping(ctx); err != nil {
			health["status"] = healthStatusDegraded
			health["database"] = err.Error()
			c.JSON(http.StatusServiceUnavailable, health)
			return
		}
		health["database"] = "ok"
	}
	if r.deps.Cycles != nil {
		health["cycleRunning"] = r.deps.Cycles.Running()
	}
	c.JSON(http.StatusOK, health)
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"duration", time.Since(start),
		}
		if status >= http.StatusInternalServerError {
			logger.Error("request failed", append(attrs, "errors", c.Errors.String())...)
			return
		}
		logger.Debug("request", attrs...)
	}
}
