package scheduler

import (
	"context"
	"testing"
	"time"
)

func TestNewCronSchedulerRejectsBadSpec(t *testing.T) {
	t.Parallel()

	if _, err := NewCronScheduler("not a cron", nil, nil); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestNextHonoursLocation(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("America/Chicago")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	s, err := NewCronScheduler("0 3 * * *", loc, nil)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	from := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	next := s.Next(from)
	want := time.Date(2024, 3, 2, 3, 0, 0, 0, loc)
	if !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}
}

func TestStartFiresAndStops(t *testing.T) {
	t.Parallel()

	s, err := NewCronScheduler("@every 1s", time.UTC, nil)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	fired := make(chan time.Time, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx, func(at time.Time) { fired <- at }); err != nil {
		t.Fatalf("start: %v", err)
	}

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatalf("job did not fire")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}
