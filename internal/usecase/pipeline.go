package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ReviewRanker/internal/domain"
	"ReviewRanker/internal/importer"
	"ReviewRanker/internal/metrics"
	"ReviewRanker/internal/ports"
	"ReviewRanker/internal/queue"
	"ReviewRanker/internal/ranking"
)

// Invalidator drops cached read models after rankings change.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// PipelineDeps wires all driven adapters into the orchestration pipeline.
// Source is required for refresh cycles only; Cache and Metrics are optional.
type PipelineDeps struct {
	Businesses ports.BusinessRepository
	Source     ports.ReviewSource
	Queue      *queue.Queue
	Importer   *importer.Importer
	Ranking    *ranking.Engine
	Cache      Invalidator
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	Clock      func() time.Time
}

// PipelineConfig selects what a cycle refreshes and ranks.
type PipelineConfig struct {
	StaleAfter    time.Duration
	RefreshLimit  int
	RankingWindow time.Duration
}

// Pipeline implements the refresh workflow: scrape, import, rank.
type Pipeline struct {
	businesses ports.BusinessRepository
	source     ports.ReviewSource
	queue      *queue.Queue
	importer   *importer.Importer
	ranking    *ranking.Engine
	cache      Invalidator
	metrics    *metrics.Metrics
	logger     *slog.Logger
	clock      func() time.Time
	cfg        PipelineConfig
}

// CycleReport summarizes one refresh cycle.
type CycleReport struct {
	StartedAt time.Time          `json:"startedAt"`
	Duration  time.Duration      `json:"duration"`
	Recovered int                `json:"recovered"`
	Selected  int                `json:"selected"`
	Enqueued  int                `json:"enqueued"`
	Jobs      queue.DrainSummary `json:"jobs"`
	Import    ImportTotals       `json:"import"`
	Ranking   ranking.Summary    `json:"ranking"`
}

// ImportTotals aggregates importer results across the jobs of a cycle.
type ImportTotals struct {
	Batches          int `json:"batches"`
	Processed        int `json:"processed"`
	Created          int `json:"created"`
	Duplicates       int `json:"duplicates"`
	BusinessNotFound int `json:"businessNotFound"`
	Errors           int `json:"errors"`
	NeedsInspection  int `json:"needsInspection"`
}

func (t *ImportTotals) add(res importer.Result) {
	t.Batches++
	t.Processed += res.Processed
	t.Created += res.Created
	t.Duplicates += res.Duplicates
	t.BusinessNotFound += res.BusinessNotFound
	t.Errors += res.Errors
	if res.NeedsInspection {
		t.NeedsInspection++
	}
}

// ImportReport is the outcome of an on-demand import followed by ranking.
type ImportReport struct {
	Import  importer.Result `json:"import"`
	Ranking ranking.Summary `json:"ranking"`
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps, cfg PipelineConfig) *Pipeline {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 24 * time.Hour
	}
	if cfg.RefreshLimit <= 0 {
		cfg.RefreshLimit = 500
	}
	if cfg.RankingWindow <= 0 {
		cfg.RankingWindow = 24 * time.Hour
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Pipeline{
		businesses: deps.Businesses,
		source:     deps.Source,
		queue:      deps.Queue,
		importer:   deps.Importer,
		ranking:    deps.Ranking,
		cache:      deps.Cache,
		metrics:    deps.Metrics,
		logger:     logger.With("component", "pipeline"),
		clock:      clock,
		cfg:        cfg,
	}
}

// RunCycle recovers stuck jobs, enqueues stale businesses, drains the queue
// and re-ranks everything imported within the ranking window.
func (p *Pipeline) RunCycle(ctx context.Context, now time.Time) (CycleReport, error) {
	if p.source == nil {
		return CycleReport{}, fmt.Errorf("run cycle: review source is not configured: %w", domain.ErrConfiguration)
	}
	started := time.Now()
	report := CycleReport{StartedAt: now}
	defer p.metrics.ObserveCycle(started)

	recovered, err := p.queue.RecoverStuck(ctx)
	if err != nil {
		return report, fmt.Errorf("run cycle: %w", err)
	}
	report.Recovered = len(recovered)

	stale, err := p.businesses.NeedingRefresh(ctx, now.Add(-p.cfg.StaleAfter), p.cfg.RefreshLimit)
	if err != nil {
		return report, fmt.Errorf("run cycle: select stale businesses: %w", err)
	}
	report.Selected = len(stale)

	for _, b := range stale {
		_, created, err := p.queue.Enqueue(ctx, b.ID, b.PlaceID, b.Tier.Priority())
		if err != nil {
			return report, fmt.Errorf("run cycle: %w", err)
		}
		if created {
			report.Enqueued++
		}
	}
	p.logger.Info("cycle enqueued refresh jobs",
		"selected", report.Selected, "enqueued", report.Enqueued, "recovered", report.Recovered)

	var (
		mu     sync.Mutex
		totals ImportTotals
	)
	report.Jobs, err = p.queue.Drain(ctx, func(ctx context.Context, job domain.IngestionJob) error {
		res, err := p.scrape(ctx, job)
		if err != nil {
			return err
		}
		mu.Lock()
		totals.add(res)
		mu.Unlock()
		return nil
	})
	report.Import = totals
	if err != nil {
		return report, fmt.Errorf("run cycle: %w", err)
	}

	report.Ranking, err = p.rank(ctx, now.Add(-p.cfg.RankingWindow))
	if err != nil {
		return report, fmt.Errorf("run cycle: %w", err)
	}
	report.Duration = time.Since(started)

	p.logger.Info("cycle finished",
		"jobs_completed", report.Jobs.Completed,
		"jobs_failed", report.Jobs.Failed,
		"jobs_retried", report.Jobs.Retried,
		"reviews_created", report.Import.Created,
		"businesses_ranked", report.Ranking.Scored,
		"duration", report.Duration)
	return report, nil
}

// scrape is the queue handler: fetch, import, mark scraped.
func (p *Pipeline) scrape(ctx context.Context, job domain.IngestionJob) (importer.Result, error) {
	placeID := job.SourceKey
	if placeID == "" {
		business, err := p.businesses.Get(ctx, job.BusinessID)
		if err != nil {
			return importer.Result{}, fmt.Errorf("load business %d: %w", job.BusinessID, err)
		}
		placeID = business.PlaceID
	}
	if placeID == "" {
		return importer.Result{}, fmt.Errorf("business %d has no place id: %w", job.BusinessID, domain.ErrConfiguration)
	}

	records, err := p.source.FetchReviews(ctx, placeID)
	if err != nil {
		return importer.Result{}, fmt.Errorf("fetch reviews for %s: %w", placeID, err)
	}
	for i := range records {
		if records[i].PlaceID == "" {
			records[i].PlaceID = placeID
		}
		if records[i].BusinessID == 0 {
			records[i].BusinessID = job.BusinessID
		}
	}

	res, err := p.importer.Import(ctx, records)
	if err != nil {
		return res, fmt.Errorf("import reviews for business %d: %w", job.BusinessID, err)
	}
	if err := p.businesses.MarkScraped(ctx, job.BusinessID, p.clock()); err != nil {
		return res, fmt.Errorf("mark business %d scraped: %w", job.BusinessID, err)
	}
	return res, nil
}

// Import runs an on-demand batch import and re-ranks the affected cohorts.
func (p *Pipeline) Import(ctx context.Context, records []domain.ReviewRecord) (ImportReport, error) {
	now := p.clock()
	res, err := p.importer.Import(ctx, records)
	report := ImportReport{Import: res}
	if err != nil {
		return report, fmt.Errorf("import: %w", err)
	}
	if res.Created == 0 {
		return report, nil
	}
	report.Ranking, err = p.rank(ctx, now)
	if err != nil {
		return report, fmt.Errorf("import: %w", err)
	}
	return report, nil
}

// Rank recomputes rankings for businesses with reviews imported since the
// cutoff; a zero cutoff uses the ranking window.
func (p *Pipeline) Rank(ctx context.Context, since time.Time) (ranking.Summary, error) {
	if since.IsZero() {
		since = p.clock().Add(-p.cfg.RankingWindow)
	}
	return p.rank(ctx, since)
}

func (p *Pipeline) rank(ctx context.Context, since time.Time) (ranking.Summary, error) {
	summary, err := p.ranking.Recompute(ctx, since)
	if err != nil {
		return summary, fmt.Errorf("recompute rankings: %w", err)
	}
	if p.cache != nil {
		if err := p.cache.Invalidate(ctx); err != nil {
			p.logger.Warn("ranking cache invalidation failed", "error", err)
		}
	}
	return summary, nil
}
