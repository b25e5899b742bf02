package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"ReviewRanker/internal/ports"
)

// ErrCycleRunning is returned when a cycle is requested while one is in flight.
var ErrCycleRunning = errors.New("refresh cycle already running")

// Scheduler wires the cron-like driver with the pipeline use case and
// guarantees at most one cycle at a time across cron and on-demand triggers.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	logger   *slog.Logger
	clock    func() time.Time

	mu      sync.Mutex
	running bool
	baseCtx context.Context
	wg      sync.WaitGroup
	last    *CycleReport
}

// NewScheduler returns a helper to start/stop recurring cycles.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		driver:   driver,
		pipeline: pipeline,
		logger:   logger.With("component", "scheduler"),
		clock:    time.Now,
		baseCtx:  context.Background(),
	}
}

// Start registers the pipeline with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	job := func(trigger time.Time) {
		if _, err := s.RunNow(ctx, trigger); err != nil && !errors.Is(err, ErrCycleRunning) {
			s.logger.Error("scheduled cycle failed", "error", err)
		}
	}

	return s.driver.Start(ctx, job)
}

// RunNow executes a cycle synchronously unless one is already running.
func (s *Scheduler) RunNow(ctx context.Context, now time.Time) (CycleReport, error) {
	if !s.acquire() {
		return CycleReport{}, ErrCycleRunning
	}
	defer s.release()
	return s.run(ctx, now)
}

// Trigger starts a cycle in the background and reports whether it started.
func (s *Scheduler) Trigger() bool {
	if !s.acquire() {
		return false
	}
	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()

	go func() {
		defer s.release()
		if _, err := s.run(ctx, s.clock()); err != nil {
			s.logger.Error("triggered cycle failed", "error", err)
		}
	}()
	return true
}

// Running reports whether a cycle is in flight.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// LastReport returns the report of the latest finished cycle, if any.
func (s *Scheduler) LastReport() (CycleReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return CycleReport{}, false
	}
	return *s.last, true
}

// Stop tears down the driver and waits for an in-flight cycle, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver != nil {
		if err := s.driver.Stop(ctx); err != nil {
			return err
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) run(ctx context.Context, now time.Time) (CycleReport, error) {
	s.logger.Info("refresh cycle started", "at", now)
	report, err := s.pipeline.RunCycle(ctx, now)
	if err == nil {
		s.mu.Lock()
		s.last = &report
		s.mu.Unlock()
	}
	return report, err
}

func (s *Scheduler) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	s.wg.Add(1)
	return true
}

func (s *Scheduler) release() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	s.wg.Done()
}
