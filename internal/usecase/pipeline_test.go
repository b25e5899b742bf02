package usecase_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ReviewRanker/internal/domain"
	"ReviewRanker/internal/importer"
	"ReviewRanker/internal/queue"
	"ReviewRanker/internal/ranking"
	"ReviewRanker/internal/testsupport"
	"ReviewRanker/internal/usecase"
)

type fakeSource struct {
	mu      sync.Mutex
	reviews map[string][]domain.ReviewRecord
	errs    map[string]error
	calls   map[string]int
	block   chan struct{}
}

func (s *fakeSource) FetchReviews(ctx context.Context, placeID string) ([]domain.ReviewRecord, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[placeID]++
	if err := s.errs[placeID]; err != nil {
		return nil, err
	}
	return s.reviews[placeID], nil
}

type countingCache struct{ calls atomic.Int32 }

func (c *countingCache) Invalidate(context.Context) error {
	c.calls.Add(1)
	return nil
}

type fixture struct {
	store    *testsupport.Store
	source   *fakeSource
	cache    *countingCache
	engine   *ranking.Engine
	pipeline *usecase.Pipeline
}

func newFixture(t *testing.T, source *fakeSource) *fixture {
	t.Helper()
	store := testsupport.OpenStore(t)
	clock := func() time.Time { return testsupport.Epoch }
	log := testsupport.DiscardLogger()

	q := queue.New(queue.Deps{Jobs: store.Jobs, Logger: log, Clock: clock},
		queue.Config{MaxConnections: 2, MaxRetries: 2, StuckThreshold: time.Minute})
	imp := importer.New(importer.Deps{
		Businesses: store.Businesses,
		Reviews:    store.Reviews,
		Logger:     log,
		Clock:      clock,
	}, importer.DefaultConfig())
	engine := ranking.NewEngine(ranking.Deps{
		Rankings: store.Rankings,
		Reviews:  store.Reviews,
		Logger:   log,
		Clock:    clock,
	}, ranking.Config{Params: ranking.DefaultParams()})
	cache := &countingCache{}

	p := usecase.NewPipeline(usecase.PipelineDeps{
		Businesses: store.Businesses,
		Source:     source,
		Queue:      q,
		Importer:   imp,
		Ranking:    engine,
		Cache:      cache,
		Logger:     log,
		Clock:      clock,
	}, usecase.PipelineConfig{StaleAfter: 24 * time.Hour, RefreshLimit: 10, RankingWindow: 24 * time.Hour})

	return &fixture{store: store, source: source, cache: cache, engine: engine, pipeline: p}
}

var comments = map[string]string{
	"a1": "Replaced the whole roof in two days and cleaned up every nail.",
	"a2": "Quick estimate, fair price, crew was polite.",
	"m1": "Fixed a leak around the chimney after another company failed twice.",
}

func review(id string, rating int) domain.ReviewRecord {
	return domain.ReviewRecord{
		SourceReviewID: id,
		Source:         domain.SourceGoogle,
		AuthorName:     "Author " + id,
		Rating:         rating,
		Comment:        comments[id],
		CreatedAt:      testsupport.Epoch.Add(-48 * time.Hour),
	}
}

func TestRunCycleScrapesImportsAndRanks(t *testing.T) {
	source := &fakeSource{
		reviews: map[string][]domain.ReviewRecord{
			"place-a": {review("a1", 5), review("a2", 5)},
		},
		errs: map[string]error{
			"place-b": &domain.SourceError{PlaceID: "place-b", StatusCode: http.StatusServiceUnavailable, Err: errors.New("down")},
		},
	}
	f := newFixture(t, source)
	ctx := context.Background()

	a := f.store.CreateBusiness(t, domain.Business{Name: "Alpha Roofing", PlaceID: "place-a", Tier: domain.TierPro})
	b := f.store.CreateBusiness(t, domain.Business{Name: "Bravo Roofing", PlaceID: "place-b"})
	f.store.CreateBusiness(t, domain.Business{Name: "Charlie Roofing"})

	report, err := f.pipeline.RunCycle(ctx, testsupport.Epoch)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Selected)
	assert.Equal(t, 2, report.Enqueued)
	assert.Equal(t, 1, report.Jobs.Completed)
	assert.Equal(t, 1, report.Jobs.Failed)
	assert.Equal(t, 1, report.Jobs.Retried)
	assert.Equal(t, 2, report.Import.Created)
	assert.Equal(t, 2, source.calls["place-b"])
	assert.Equal(t, int32(1), f.cache.calls.Load())

	gotA, err := f.store.Businesses.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, gotA.ReviewCount)
	assert.Equal(t, 5.0, gotA.Rating)
	require.NotNil(t, gotA.LastScrapedAt)

	gotB, err := f.store.Businesses.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Nil(t, gotB.LastScrapedAt)

	rec, err := f.engine.BusinessRanking(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.RankPosition)
	assert.GreaterOrEqual(t, report.Ranking.Scored, 1)
}

func TestRunCycleSkipsFreshBusinesses(t *testing.T) {
	source := &fakeSource{reviews: map[string][]domain.ReviewRecord{"place-a": {review("a1", 4)}}}
	f := newFixture(t, source)
	ctx := context.Background()
	f.store.CreateBusiness(t, domain.Business{Name: "Alpha Roofing", PlaceID: "place-a"})

	_, err := f.pipeline.RunCycle(ctx, testsupport.Epoch)
	require.NoError(t, err)

	report, err := f.pipeline.RunCycle(ctx, testsupport.Epoch.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Selected)
	assert.Equal(t, 1, source.calls["place-a"])
}

func TestImportRanksAffectedCohorts(t *testing.T) {
	f := newFixture(t, &fakeSource{})
	ctx := context.Background()
	a := f.store.CreateBusiness(t, domain.Business{Name: "Alpha Roofing", PlaceID: "place-a"})

	rec := review("m1", 4)
	rec.PlaceID = "place-a"
	report, err := f.pipeline.Import(ctx, []domain.ReviewRecord{rec})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Import.Created)
	assert.GreaterOrEqual(t, report.Ranking.Scored, 1)

	ranked, err := f.engine.BusinessRanking(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, ranked)
	assert.Equal(t, 1, ranked.ReviewsAnalyzed)
}

func TestRunCycleWithoutSourceIsConfigurationError(t *testing.T) {
	store := testsupport.OpenStore(t)
	p := usecase.NewPipeline(usecase.PipelineDeps{Businesses: store.Businesses}, usecase.PipelineConfig{})
	_, err := p.RunCycle(context.Background(), testsupport.Epoch)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
