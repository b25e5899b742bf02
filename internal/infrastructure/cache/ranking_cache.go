package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"ReviewRanker/internal/domain"
	"ReviewRanker/internal/ports"
)

const (
	keyPrefix  = "ranking:"
	defaultTTL = 5 * time.Minute
	scanBatch  = 200
)

// RankingCache is a read-through Redis cache in front of a RankingReader.
// Redis failures are logged and the inner reader answers instead.
type RankingCache struct {
	inner  ports.RankingReader
	client redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

var _ ports.RankingReader = (*RankingCache)(nil)

// NewRankingCache wraps inner; ttl <= 0 means five minutes.
func NewRankingCache(inner ports.RankingReader, client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *RankingCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RankingCache{
		inner:  inner,
		client: client,
		ttl:    ttl,
		logger: logger.With("component", "ranking_cache"),
	}
}

func businessKey(id int64) string {
	return fmt.Sprintf("%sbusiness:%d", keyPrefix, id)
}

func topKey(category, city string, limit int) string {
	return fmt.Sprintf("%stop:%s:%s:%d", keyPrefix, strings.ToLower(category), strings.ToLower(city), limit)
}

// BusinessRanking returns the cached record or loads and caches it. Misses
// are not cached so a freshly ranked business shows up immediately.
func (c *RankingCache) BusinessRanking(ctx context.Context, businessID int64) (*domain.RankingRecord, error) {
	key := businessKey(businessID)
	var cached domain.RankingRecord
	if c.load(ctx, key, &cached) {
		return &cached, nil
	}

	record, err := c.inner.BusinessRanking(ctx, businessID)
	if err != nil || record == nil {
		return record, err
	}
	c.store(ctx, key, record)
	return record, nil
}

// TopRanked returns the cached top list or loads and caches it.
func (c *RankingCache) TopRanked(ctx context.Context, category, city string, limit int) ([]domain.RankingRecord, error) {
	key := topKey(category, city, limit)
	var cached []domain.RankingRecord
	if c.load(ctx, key, &cached) {
		return cached, nil
	}

	records, err := c.inner.TopRanked(ctx, category, city, limit)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, records)
	return records, nil
}

// Invalidate drops every cached ranking entry.
func (c *RankingCache) Invalidate(ctx context.Context) error {
	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, keyPrefix+"*", scanBatch).Result()
		if err != nil {
			return fmt.Errorf("scan ranking keys: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("delete ranking keys: %w", err)
			}
			removed += len(keys)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	c.logger.Debug("ranking cache invalidated", "keys", removed)
	return nil
}

func (c *RankingCache) load(ctx context.Context, key string, v any) bool {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache read failed", "key", key, "err", err)
		}
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		c.logger.Warn("cache entry corrupt", "key", key, "err", err)
		return false
	}
	return true
}

func (c *RankingCache) store(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", "key", key, "err", err)
	}
}
