// Package queue schedules per-business ingestion jobs with bounded concurrency.
//
// Jobs move pending -> processing -> completed | failed. A failed attempt goes
// back to pending until the retry limit is reached. At most MaxConnections jobs
// are processing at any time, across every process sharing the store.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ReviewRanker/internal/domain"
	"ReviewRanker/internal/metrics"
	"ReviewRanker/internal/ports"
)

// Config bounds concurrency and retries.
type Config struct {
	MaxConnections int
	MaxRetries     int
	StuckThreshold time.Duration
}

// DefaultConfig returns the production limits.
func DefaultConfig() Config {
	return Config{MaxConnections: 3, MaxRetries: 3, StuckThreshold: 5 * time.Minute}
}

// Deps groups the collaborators of the queue. Notifier and Metrics are optional.
type Deps struct {
	Jobs     ports.JobRepository
	Notifier ports.Notifier
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	Clock    func() time.Time
}

// Handler processes one claimed job. A returned error counts as a failed attempt.
type Handler func(ctx context.Context, job domain.IngestionJob) error

// Queue is the single concurrency control point for scrape work.
type Queue struct {
	jobs     ports.JobRepository
	notifier ports.Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
	clock    func() time.Time
	cfg      Config
}

func New(deps Deps, cfg Config) *Queue {
	def := DefaultConfig()
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = def.MaxConnections
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.StuckThreshold <= 0 {
		cfg.StuckThreshold = def.StuckThreshold
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Queue{
		jobs:     deps.Jobs,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		logger:   logger.With("component", "queue"),
		clock:    clock,
		cfg:      cfg,
	}
}

// Config returns the effective limits.
func (q *Queue) Config() Config {
	return q.cfg
}

// Enqueue requests a scrape for a business. If a pending or processing job
// already exists for it, that job is returned and created is false.
func (q *Queue) Enqueue(ctx context.Context, businessID int64, sourceKey string, priority int) (domain.IngestionJob, bool, error) {
	job, created, err := q.jobs.Enqueue(ctx, domain.IngestionJob{
		BusinessID:  businessID,
		SourceKey:   sourceKey,
		Priority:    priority,
		RequestedAt: q.now(),
	})
	if err != nil {
		return domain.IngestionJob{}, false, fmt.Errorf("enqueue business %d: %w", businessID, err)
	}
	if created {
		q.logger.Debug("job enqueued", "job_id", job.ID, "business_id", businessID, "priority", priority)
	}
	return job, created, nil
}

// Claim hands out the next pending job, or domain.ErrNoJobAvailable when the
// queue is empty or the processing cap is reached.
func (q *Queue) Claim(ctx context.Context) (domain.IngestionJob, error) {
	job, err := q.jobs.ClaimNext(ctx, q.cfg.MaxConnections, uuid.NewString(), q.now())
	if err != nil {
		return domain.IngestionJob{}, err
	}
	q.metrics.JobOutcome("claimed")
	return job, nil
}

// Complete marks a claimed job as done.
func (q *Queue) Complete(ctx context.Context, job domain.IngestionJob) error {
	if err := q.jobs.Complete(ctx, job.ID, job.ClaimToken, q.now()); err != nil {
		return fmt.Errorf("complete job %d: %w", job.ID, err)
	}
	q.metrics.JobOutcome("completed")
	return nil
}

// Fail records a failed attempt. The job returns to pending while retries
// remain; exhausted jobs are marked failed and reported to operators.
func (q *Queue) Fail(ctx context.Context, job domain.IngestionJob, cause error) (domain.IngestionJob, error) {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	updated, err := q.jobs.Fail(ctx, job.ID, job.ClaimToken, msg, q.cfg.MaxRetries, q.now())
	if err != nil {
		return domain.IngestionJob{}, fmt.Errorf("fail job %d: %w", job.ID, err)
	}

	if updated.Status == domain.JobFailed {
		q.metrics.JobOutcome("failed")
		q.logger.Error("job failed permanently",
			"job_id", updated.ID,
			"business_id", updated.BusinessID,
			"retries", updated.RetryCount,
			"error", msg,
		)
		q.alert(ctx, updated)
		return updated, nil
	}

	q.metrics.JobOutcome("retried")
	q.logger.Warn("job attempt failed, will retry",
		"job_id", updated.ID,
		"business_id", updated.BusinessID,
		"retries", updated.RetryCount,
		"error", msg,
	)
	return updated, nil
}

// RecoverStuck resets processing jobs older than the stuck threshold.
func (q *Queue) RecoverStuck(ctx context.Context) ([]domain.IngestionJob, error) {
	now := q.now()
	reset, err := q.jobs.ResetStuck(ctx, now.Add(-q.cfg.StuckThreshold), q.cfg.MaxRetries, now)
	if err != nil {
		return nil, err
	}
	for _, job := range reset {
		q.metrics.JobOutcome("reset")
		q.logger.Warn("stuck job recovered", "job_id", job.ID, "business_id", job.BusinessID, "status", job.Status, "retries", job.RetryCount)
		if job.Status == domain.JobFailed {
			q.metrics.JobOutcome("failed")
			q.alert(ctx, job)
		}
	}
	return reset, nil
}

// Pause excludes a job from scheduling.
func (q *Queue) Pause(ctx context.Context, jobID int64) error {
	return q.SetPriority(ctx, jobID, -1)
}

// Resume makes a paused job claimable again with the given priority.
func (q *Queue) Resume(ctx context.Context, jobID int64, priority int) error {
	if priority < 0 {
		priority = 0
	}
	return q.SetPriority(ctx, jobID, priority)
}

// SetPriority reprioritizes a job; negative priorities pause it.
func (q *Queue) SetPriority(ctx context.Context, jobID int64, priority int) error {
	if err := q.jobs.SetPriority(ctx, jobID, priority); err != nil {
		return fmt.Errorf("set priority of job %d: %w", jobID, err)
	}
	return nil
}

// Status summarizes queue occupancy.
func (q *Queue) Status(ctx context.Context) (domain.QueueStatus, error) {
	counts, paused, err := q.jobs.CountByStatus(ctx)
	if err != nil {
		return domain.QueueStatus{}, fmt.Errorf("queue status: %w", err)
	}
	status := domain.QueueStatus{
		Pending:        counts[domain.JobPending] - paused,
		Processing:     counts[domain.JobProcessing],
		Paused:         paused,
		Completed:      counts[domain.JobCompleted],
		Failed:         counts[domain.JobFailed],
		MaxConnections: q.cfg.MaxConnections,
	}
	q.metrics.SetQueueDepth(string(domain.JobPending), status.Pending)
	q.metrics.SetQueueDepth(string(domain.JobProcessing), status.Processing)
	q.metrics.SetQueueDepth("paused", status.Paused)
	return status, nil
}

// DrainSummary reports the outcome of a Drain call.
type DrainSummary struct {
	Claimed   int `json:"claimed"`
	Completed int `json:"completed"`
	Retried   int `json:"retried"`
	Failed    int `json:"failed"`
}

// Drain claims and runs jobs on at most MaxConnections goroutines until nothing
// more can be claimed and every started job has finished.
func (q *Queue) Drain(ctx context.Context, handle Handler) (DrainSummary, error) {
	var (
		mu      sync.Mutex
		summary DrainSummary
		running int
	)
	finished := make(chan struct{}, q.cfg.MaxConnections)

	g := new(errgroup.Group)
	g.SetLimit(q.cfg.MaxConnections)

	var claimErr error
claim:
	for ctx.Err() == nil {
		job, err := q.Claim(ctx)
		if errors.Is(err, domain.ErrNoJobAvailable) {
			mu.Lock()
			idle := running == 0
			mu.Unlock()
			if idle {
				// A job that finished after the claim may have gone back to pending.
				select {
				case <-finished:
					continue
				default:
					break claim
				}
			}
			select {
			case <-finished:
			case <-ctx.Done():
			}
			continue
		}
		if err != nil {
			claimErr = err
			break
		}

		mu.Lock()
		running++
		summary.Claimed++
		mu.Unlock()

		g.Go(func() error {
			outcome := q.run(ctx, job, handle)
			mu.Lock()
			running--
			switch outcome {
			case domain.JobCompleted:
				summary.Completed++
			case domain.JobFailed:
				summary.Failed++
			case domain.JobPending:
				summary.Retried++
			}
			mu.Unlock()
			select {
			case finished <- struct{}{}:
			default:
			}
			return nil
		})
	}

	_ = g.Wait()
	if claimErr != nil {
		return summary, fmt.Errorf("drain queue: %w", claimErr)
	}
	return summary, ctx.Err()
}

func (q *Queue) run(ctx context.Context, job domain.IngestionJob, handle Handler) domain.JobStatus {
	logger := q.logger.With("job_id", job.ID, "business_id", job.BusinessID)

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("handler panic: %v", r)
			}
		}()
		return handle(ctx, job)
	}()

	// Bookkeeping must survive cancellation or the job stays processing until recovered.
	ctx = context.WithoutCancel(ctx)
	if err == nil {
		if cerr := q.Complete(ctx, job); cerr != nil {
			logger.Warn("job finished but completion was not recorded", "error", cerr)
			return ""
		}
		return domain.JobCompleted
	}

	updated, ferr := q.Fail(ctx, job, err)
	if ferr != nil {
		logger.Warn("job failed but failure was not recorded", "error", err, "record_error", ferr)
		return ""
	}
	return updated.Status
}

func (q *Queue) alert(ctx context.Context, job domain.IngestionJob) {
	if q.notifier == nil {
		return
	}
	err := q.notifier.Alert(ctx, ports.Alert{
		Title: "Ingestion job failed after retries",
		Details: map[string]string{
			"job":        strconv.FormatInt(job.ID, 10),
			"business":   strconv.FormatInt(job.BusinessID, 10),
			"place":      job.SourceKey,
			"retries":    strconv.Itoa(job.RetryCount),
			"last_error": job.LastError,
		},
	})
	if err != nil {
		q.logger.Warn("operator alert failed", "job_id", job.ID, "error", err)
	}
}

func (q *Queue) now() time.Time {
	return q.clock().UTC()
}
