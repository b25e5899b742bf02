package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"ReviewRanker/internal/ports"
	"ReviewRanker/pkg/logger"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// CronScheduler fires the job on a standard five-field cron expression.
// Overlapping runs are skipped and job panics are recovered and logged.
type CronScheduler struct {
	spec     string
	schedule cron.Schedule
	loc      *time.Location
	log      logger.CronLogger

	mu   sync.Mutex
	cron *cron.Cron
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler validates spec; a nil location means UTC.
func NewCronScheduler(spec string, loc *time.Location, log *slog.Logger) (*CronScheduler, error) {
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", spec, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &CronScheduler{
		spec:     spec,
		schedule: schedule,
		loc:      loc,
		log:      logger.NewCronLogger(logger.Component(log, "cron")),
	}, nil
}

// Start registers job and begins firing until Stop or ctx is done.
func (c *CronScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron != nil {
		return nil
	}

	cr := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(c.loc),
		cron.WithLogger(c.log),
		cron.WithChain(cron.Recover(c.log), cron.SkipIfStillRunning(c.log)),
	)
	cr.Schedule(c.schedule, cron.FuncJob(func() {
		job(time.Now().In(c.loc))
	}))
	cr.Start()
	c.cron = cr

	go func() {
		<-ctx.Done()
		_ = c.Stop(context.Background())
	}()
	return nil
}

// Stop halts scheduling and waits for a running job, bounded by ctx.
func (c *CronScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	cr := c.cron
	c.cron = nil
	c.mu.Unlock()
	if cr == nil {
		return nil
	}

	done := cr.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next reports the next fire time after t.
func (c *CronScheduler) Next(t time.Time) time.Time {
	return c.schedule.Next(t.In(c.loc))
}
