package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ReviewRanker/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromEmptyPathUsesDefaults(t *testing.T) {
	cfg := LoadFrom("")

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 3, cfg.Queue.MaxConnections)
	assert.Equal(t, 5*time.Minute, cfg.Queue.StuckThreshold)
	assert.Equal(t, 500, cfg.Importer.BatchSize)
	assert.Equal(t, 0.85, cfg.Matching.NameThreshold)
	assert.Equal(t, 0.7, cfg.Dedup.Weights.Threshold)
	assert.Equal(t, 100, cfg.Dedup.Authority[domain.SourceNative])
	assert.Equal(t, 3.0, cfg.Ranking.Params.TierBonus[domain.TierPower])
	assert.Equal(t, "UTC", cfg.Scheduler.Location().String())
}

func TestLoadFromDecodesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: Postgres
  dsn: postgres://ranker@localhost/reviews
queue:
  maxConnections: 5
  stuckThreshold: 90s
importer:
  batchDelay: 250ms
dedup:
  authority:
    manual: 20
ranking:
  profiles:
    - category: hvac
      expectedAnnualReviews: 45
      minCredibleReviews: 6
scheduler:
  timezone: Europe/Berlin
`)
	cfg := LoadFrom(path)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 5, cfg.Queue.MaxConnections)
	assert.Equal(t, 3, cfg.Queue.MaxRetries)
	assert.Equal(t, 90*time.Second, cfg.Queue.StuckThreshold)
	assert.Equal(t, 250*time.Millisecond, cfg.Importer.BatchDelay)
	assert.Equal(t, 20, cfg.Dedup.Authority[domain.SourceManual])
	assert.Equal(t, 100, cfg.Dedup.Authority[domain.SourceNative], "maps merge with defaults")
	require.Len(t, cfg.Ranking.Profiles, 1)
	assert.Equal(t, "hvac", cfg.Ranking.Profiles[0].Category)
	assert.Equal(t, "Europe/Berlin", cfg.Scheduler.Location().String())
}

func TestNormalizeReplacesInvalidValues(t *testing.T) {
	path := writeConfig(t, `
queue:
  maxConnections: -1
importer:
  failureRateThreshold: 4
matching:
  nameThreshold: 1.5
scheduler:
  timezone: Mars/Olympus
`)
	cfg := LoadFrom(path)

	assert.Equal(t, 3, cfg.Queue.MaxConnections)
	assert.Equal(t, 0.2, cfg.Importer.FailureRateThreshold)
	assert.Equal(t, 0.85, cfg.Matching.NameThreshold)
	assert.Equal(t, "UTC", cfg.Scheduler.Location().String())
}

func TestUnparseableFileFallsBackToDefaults(t *testing.T) {
	cfg := LoadFrom(writeConfig(t, "queue: [not, a, map"))
	assert.Equal(t, 3, cfg.Queue.MaxConnections)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(databaseDSNEnv, "file:override.db")
	t.Setenv(redisAddrEnv, "localhost:6379")
	t.Setenv(telegramChatIDEnv, "42")
	t.Setenv(httpAddrEnv, ":9090")

	cfg := LoadFrom("")

	assert.Equal(t, "file:override.db", cfg.Database.DSN)
	assert.Equal(t, "localhost:6379", cfg.Cache.RedisAddr)
	assert.Equal(t, "42", cfg.Notifications.Telegram.ChatID)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
}
