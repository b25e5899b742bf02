package queue_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ReviewRanker/internal/domain"
	"ReviewRanker/internal/ports"
	"ReviewRanker/internal/queue"
	"ReviewRanker/internal/testsupport"
)

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []ports.Alert
}

func (n *recordingNotifier) Alert(_ context.Context, alert ports.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

type fixture struct {
	store    *testsupport.Store
	queue    *queue.Queue
	notifier *recordingNotifier
	now      atomic.Pointer[time.Time]
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: testsupport.OpenStore(t), notifier: &recordingNotifier{}}
	start := testsupport.Epoch
	f.now.Store(&start)
	f.queue = queue.New(queue.Deps{
		Jobs:     f.store.Jobs,
		Notifier: f.notifier,
		Logger:   testsupport.DiscardLogger(),
		Clock:    func() time.Time { return *f.now.Load() },
	}, queue.DefaultConfig())
	return f
}

func (f *fixture) advance(d time.Duration) {
	next := f.now.Load().Add(d)
	f.now.Store(&next)
}

func (f *fixture) enqueueBusinesses(t *testing.T, n int) []int64 {
	t.Helper()
	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		biz := f.store.CreateBusiness(t, domain.Business{Name: "Biz"})
		_, created, err := f.queue.Enqueue(context.Background(), biz.ID, "place", 0)
		require.NoError(t, err)
		require.True(t, created)
		ids = append(ids, biz.ID)
	}
	return ids
}

func TestEnqueueTwiceReturnsExistingJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	biz := f.store.CreateBusiness(t, domain.Business{Name: "Once"})

	first, created, err := f.queue.Enqueue(ctx, biz.ID, "p", 1)
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := f.queue.Enqueue(ctx, biz.ID, "p", 2)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	status, err := f.queue.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.QueueStatus{Pending: 1, MaxConnections: 3}, status)
}

func TestDrainRunsEveryJobWithinConnectionCap(t *testing.T) {
	f := newFixture(t)
	f.enqueueBusinesses(t, 9)

	var inflight, peak atomic.Int32
	summary, err := f.queue.Drain(context.Background(), func(ctx context.Context, job domain.IngestionJob) error {
		n := inflight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inflight.Add(-1)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 9, summary.Claimed)
	assert.Equal(t, 9, summary.Completed)
	assert.LessOrEqual(t, peak.Load(), int32(3))

	status, err := f.queue.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9, status.Completed)
	assert.Zero(t, status.Pending)
	assert.Zero(t, status.Processing)
}

func TestDrainRetriesThenFailsAndAlerts(t *testing.T) {
	f := newFixture(t)
	f.enqueueBusinesses(t, 1)

	var attempts atomic.Int32
	summary, err := f.queue.Drain(context.Background(), func(context.Context, domain.IngestionJob) error {
		attempts.Add(1)
		return &domain.SourceError{PlaceID: "place", StatusCode: 503, Err: errors.New("unavailable")}
	})
	require.NoError(t, err)

	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, 2, summary.Retried)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, f.notifier.count())

	status, err := f.queue.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, status.Failed)
}

func TestDrainTreatsPanicAsFailure(t *testing.T) {
	f := newFixture(t)
	f.enqueueBusinesses(t, 1)

	var calls atomic.Int32
	summary, err := f.queue.Drain(context.Background(), func(context.Context, domain.IngestionJob) error {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Retried)
	assert.Equal(t, 1, summary.Completed)
}

func TestDrainOnEmptyQueue(t *testing.T) {
	f := newFixture(t)
	summary, err := f.queue.Drain(context.Background(), func(context.Context, domain.IngestionJob) error {
		t.Fatal("handler must not run")
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, summary.Claimed)
}

func TestRecoverStuckAfterThreshold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.enqueueBusinesses(t, 1)

	job, err := f.queue.Claim(ctx)
	require.NoError(t, err)

	f.advance(4 * time.Minute)
	reset, err := f.queue.RecoverStuck(ctx)
	require.NoError(t, err)
	assert.Empty(t, reset)

	f.advance(2 * time.Minute)
	reset, err = f.queue.RecoverStuck(ctx)
	require.NoError(t, err)
	require.Len(t, reset, 1)
	assert.Equal(t, job.ID, reset[0].ID)
	assert.Equal(t, domain.JobPending, reset[0].Status)
	assert.Equal(t, 1, reset[0].RetryCount)

	assert.ErrorIs(t, f.queue.Complete(ctx, job), domain.ErrNotFound, "stale claim cannot complete")

	reclaimed, err := f.queue.Claim(ctx)
	require.NoError(t, err)
	assert.Equal(t, job.ID, reclaimed.ID)
	assert.NotEqual(t, job.ClaimToken, reclaimed.ClaimToken)
}

func TestPauseAndResume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.enqueueBusinesses(t, 1)

	status, err := f.queue.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, status.Pending)

	job, err := f.store.Jobs.Get(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, f.queue.Pause(ctx, job.ID))

	_, err = f.queue.Claim(ctx)
	assert.ErrorIs(t, err, domain.ErrNoJobAvailable)
	status, err = f.queue.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, status.Pending)
	assert.Equal(t, 1, status.Paused)

	require.NoError(t, f.queue.Resume(ctx, job.ID, 2))
	claimed, err := f.queue.Claim(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, claimed.Priority)

	assert.ErrorIs(t, f.queue.Pause(ctx, 999), domain.ErrNotFound)
}
