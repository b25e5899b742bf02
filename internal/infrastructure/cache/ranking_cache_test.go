package cache

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ReviewRanker/internal/domain"
)

type countingReader struct {
	business map[int64]*domain.RankingRecord
	top      []domain.RankingRecord
	calls    int
}

func (r *countingReader) BusinessRanking(_ context.Context, id int64) (*domain.RankingRecord, error) {
	r.calls++
	return r.business[id], nil
}

func (r *countingReader) TopRanked(context.Context, string, string, int) ([]domain.RankingRecord, error) {
	r.calls++
	return r.top, nil
}

func newCache(t *testing.T, inner *countingReader) (*RankingCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRankingCache(inner, client, time.Minute, logger), mr
}

func TestBusinessRankingReadThrough(t *testing.T) {
	inner := &countingReader{business: map[int64]*domain.RankingRecord{
		7: {BusinessID: 7, TotalScore: 81.5, RankPosition: 2},
	}}
	c, mr := newCache(t, inner)
	ctx := context.Background()

	first, err := c.BusinessRanking(ctx, 7)
	require.NoError(t, err)
	second, err := c.BusinessRanking(ctx, 7)
	require.NoError(t, err)

	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, first.TotalScore, second.TotalScore)
	assert.Equal(t, 2, second.RankPosition)
	assert.True(t, mr.Exists("ranking:business:7"))
}

func TestBusinessRankingMissIsNotCached(t *testing.T) {
	inner := &countingReader{}
	c, mr := newCache(t, inner)

	got, err := c.BusinessRanking(context.Background(), 99)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.False(t, mr.Exists("ranking:business:99"))
}

func TestTopRankedTTLAndInvalidate(t *testing.T) {
	inner := &countingReader{top: []domain.RankingRecord{{BusinessID: 1, RankPosition: 1}, {BusinessID: 2, RankPosition: 2}}}
	c, mr := newCache(t, inner)
	ctx := context.Background()

	_, err := c.TopRanked(ctx, "Roofing", "Austin", 10)
	require.NoError(t, err)
	got, err := c.TopRanked(ctx, "roofing", "austin", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, time.Minute, mr.TTL("ranking:top:roofing:austin:10"))

	mr.Set("unrelated", "keep")
	require.NoError(t, c.Invalidate(ctx))
	assert.False(t, mr.Exists("ranking:top:roofing:austin:10"))
	assert.True(t, mr.Exists("unrelated"))

	_, err = c.TopRanked(ctx, "roofing", "austin", 10)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestRedisOutageFallsBackToInner(t *testing.T) {
	inner := &countingReader{top: []domain.RankingRecord{{BusinessID: 1}}}
	c, mr := newCache(t, inner)
	mr.Close()

	got, err := c.TopRanked(context.Background(), "a", "b", 5)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
