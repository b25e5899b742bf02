package config

import (
	"log"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ReviewRanker/internal/dedup"
	"ReviewRanker/internal/domain"
	"ReviewRanker/internal/ranking"
)

const (
	defaultTimezone   = "UTC"
	configPathEnv     = "REVIEW_RANKER_CONFIG"
	databaseDSNEnv    = "DATABASE_DSN"
	databaseDriverEnv = "DATABASE_DRIVER"
	redisAddrEnv      = "REDIS_ADDR"
	scrapeAPIKeyEnv   = "SCRAPE_API_KEY"
	classifierKeyEnv  = "CLASSIFIER_API_KEY"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
	logLevelEnv       = "LOG_LEVEL"
	httpAddrEnv       = "HTTP_ADDR"
)

// Config holds high-level settings required across the application.
type Config struct {
	Database      DatabaseConfig     `yaml:"database"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Queue         QueueConfig        `yaml:"queue"`
	Importer      ImporterConfig     `yaml:"importer"`
	Matching      MatchingConfig     `yaml:"matching"`
	Dedup         DedupConfig        `yaml:"dedup"`
	Ranking       RankingConfig      `yaml:"ranking"`
	Refresh       RefreshConfig      `yaml:"refresh"`
	Scrape        ScrapeConfig       `yaml:"scrape"`
	Classifier    ClassifierConfig   `yaml:"classifier"`
	Notifications NotificationConfig `yaml:"notifications"`
	Cache         CacheConfig        `yaml:"cache"`
	HTTP          HTTPConfig         `yaml:"http"`
	Logging       LoggingConfig      `yaml:"logging"`
}

// DatabaseConfig selects the SQL backend. Driver is "postgres" or "sqlite".
type DatabaseConfig struct {
	Driver       string `yaml:"driver"`
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"maxOpenConns"`
}

// SchedulerConfig defines when the refresh cycle should run.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	LockFile       string         `yaml:"lockFile"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// QueueConfig bounds ingestion concurrency and retries.
type QueueConfig struct {
	MaxConnections int           `yaml:"maxConnections"`
	MaxRetries     int           `yaml:"maxRetries"`
	StuckThreshold time.Duration `yaml:"stuckThreshold"`
}

// ImporterConfig paces batch imports.
type ImporterConfig struct {
	BatchSize            int           `yaml:"batchSize"`
	BatchDelay           time.Duration `yaml:"batchDelay"`
	FailureRateThreshold float64       `yaml:"failureRateThreshold"`
	ErrorSampleSize      int           `yaml:"errorSampleSize"`
}

// MatchingConfig tunes business identity resolution.
type MatchingConfig struct {
	NameThreshold   float64 `yaml:"nameThreshold"`
	PhoneConfidence float64 `yaml:"phoneConfidence"`
}

// DedupConfig tunes duplicate detection and source authority.
type DedupConfig struct {
	Weights           dedup.Weights         `yaml:"weights"`
	Authority         map[domain.Source]int `yaml:"authority"`
	FallbackAuthority int                   `yaml:"fallbackAuthority"`
}

// RankingConfig carries scoring constants and category profiles.
type RankingConfig struct {
	Params           ranking.Params    `yaml:"params"`
	Profiles         []ranking.Profile `yaml:"profiles"`
	DefaultProfile   ranking.Profile   `yaml:"defaultProfile"`
	RefreshWindow    time.Duration     `yaml:"refreshWindow"`
	ClassifierSample int               `yaml:"classifierSample"`
}

// RefreshConfig selects which businesses a cycle re-scrapes.
type RefreshConfig struct {
	StaleAfter time.Duration `yaml:"staleAfter"`
	Limit      int           `yaml:"limit"`
}

// ScrapeConfig configures the upstream listings provider.
type ScrapeConfig struct {
	Strategy      string            `yaml:"strategy"`
	BaseURL       string            `yaml:"baseUrl"`
	APIKey        string            `yaml:"apiKey"`
	Source        domain.Source     `yaml:"source"`
	Timeout       time.Duration     `yaml:"timeout"`
	RatePerSecond float64           `yaml:"ratePerSecond"`
	Burst         int               `yaml:"burst"`
	Breaker       BreakerConfig     `yaml:"breaker"`
	Options       map[string]string `yaml:"options"`
}

// BreakerConfig tunes the scrape circuit breaker.
type BreakerConfig struct {
	MaxFailures uint32        `yaml:"maxFailures"`
	OpenTimeout time.Duration `yaml:"openTimeout"`
}

// ClassifierConfig describes the optional content classifier. Provider is "", "http" or "openai".
type ClassifierConfig struct {
	Provider     string        `yaml:"provider"`
	Endpoint     string        `yaml:"endpoint"`
	Model        string        `yaml:"model"`
	APIKey       string        `yaml:"apiKey"`
	SystemPrompt string        `yaml:"systemPrompt"`
	Timeout      time.Duration `yaml:"timeout"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
	APIBase  string `yaml:"apiBase"`
}

// CacheConfig enables the Redis read-through cache when Addr is set.
type CacheConfig struct {
	RedisAddr string        `yaml:"redisAddr"`
	TTL       time.Duration `yaml:"ttl"`
}

// HTTPConfig configures the read API.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// LoggingConfig selects level and format of the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	return LoadFrom(os.Getenv(configPathEnv))
}

// LoadFrom decodes the file at path on top of the defaults. An empty path yields defaults.
func LoadFrom(path string) Config {
	cfg := defaultConfig()

	if path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			fileCfg := defaultConfig()
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = fileCfg
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()
	cfg.normalize()

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(databaseDriverEnv); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv(redisAddrEnv); v != "" {
		c.Cache.RedisAddr = v
	}
	if v := os.Getenv(scrapeAPIKeyEnv); v != "" {
		c.Scrape.APIKey = v
	}
	if v := os.Getenv(classifierKeyEnv); v != "" {
		c.Classifier.APIKey = v
	}
	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(httpAddrEnv); v != "" {
		c.HTTP.Addr = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

// normalize replaces out-of-range values with defaults.
func (c *Config) normalize() {
	def := defaultConfig()

	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	if c.Database.Driver == "" {
		c.Database.Driver = def.Database.Driver
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = def.Database.MaxOpenConns
	}
	if c.Scheduler.CronExpression == "" {
		c.Scheduler.CronExpression = def.Scheduler.CronExpression
	}

	if c.Queue.MaxConnections <= 0 {
		c.Queue.MaxConnections = def.Queue.MaxConnections
	}
	if c.Queue.MaxRetries <= 0 {
		c.Queue.MaxRetries = def.Queue.MaxRetries
	}
	if c.Queue.StuckThreshold <= 0 {
		c.Queue.StuckThreshold = def.Queue.StuckThreshold
	}

	if c.Importer.BatchSize <= 0 {
		c.Importer.BatchSize = def.Importer.BatchSize
	}
	if c.Importer.BatchDelay < 0 {
		c.Importer.BatchDelay = 0
	}
	if c.Importer.FailureRateThreshold <= 0 || c.Importer.FailureRateThreshold > 1 {
		c.Importer.FailureRateThreshold = def.Importer.FailureRateThreshold
	}
	if c.Importer.ErrorSampleSize <= 0 {
		c.Importer.ErrorSampleSize = def.Importer.ErrorSampleSize
	}

	if c.Matching.NameThreshold <= 0 || c.Matching.NameThreshold >= 1 {
		c.Matching.NameThreshold = def.Matching.NameThreshold
	}
	if c.Matching.PhoneConfidence <= 0 || c.Matching.PhoneConfidence > 1 {
		c.Matching.PhoneConfidence = def.Matching.PhoneConfidence
	}

	if c.Dedup.Weights.Threshold <= 0 {
		c.Dedup.Weights = def.Dedup.Weights
	}
	if len(c.Dedup.Authority) == 0 {
		c.Dedup.Authority = def.Dedup.Authority
	}
	if c.Dedup.FallbackAuthority <= 0 {
		c.Dedup.FallbackAuthority = def.Dedup.FallbackAuthority
	}

	if c.Ranking.Params.QualityBase <= 0 {
		c.Ranking.Params = def.Ranking.Params
	}
	if c.Ranking.Params.TierBonus == nil {
		c.Ranking.Params.TierBonus = def.Ranking.Params.TierBonus
	}
	if c.Ranking.DefaultProfile.ExpectedAnnualReviews <= 0 || c.Ranking.DefaultProfile.MinCredibleReviews <= 0 {
		c.Ranking.DefaultProfile = def.Ranking.DefaultProfile
	}
	if c.Ranking.RefreshWindow <= 0 {
		c.Ranking.RefreshWindow = def.Ranking.RefreshWindow
	}
	if c.Ranking.ClassifierSample <= 0 {
		c.Ranking.ClassifierSample = def.Ranking.ClassifierSample
	}

	if c.Refresh.StaleAfter <= 0 {
		c.Refresh.StaleAfter = def.Refresh.StaleAfter
	}
	if c.Refresh.Limit <= 0 {
		c.Refresh.Limit = def.Refresh.Limit
	}

	if c.Scrape.Strategy == "" {
		c.Scrape.Strategy = def.Scrape.Strategy
	}
	if c.Scrape.Source == "" {
		c.Scrape.Source = def.Scrape.Source
	}
	if c.Scrape.Timeout <= 0 {
		c.Scrape.Timeout = def.Scrape.Timeout
	}
	if c.Scrape.RatePerSecond <= 0 {
		c.Scrape.RatePerSecond = def.Scrape.RatePerSecond
	}
	if c.Scrape.Burst <= 0 {
		c.Scrape.Burst = def.Scrape.Burst
	}
	if c.Scrape.Breaker.MaxFailures == 0 {
		c.Scrape.Breaker.MaxFailures = def.Scrape.Breaker.MaxFailures
	}
	if c.Scrape.Breaker.OpenTimeout <= 0 {
		c.Scrape.Breaker.OpenTimeout = def.Scrape.Breaker.OpenTimeout
	}

	if c.Classifier.Timeout <= 0 {
		c.Classifier.Timeout = def.Classifier.Timeout
	}
	if c.Notifications.Telegram.APIBase == "" {
		c.Notifications.Telegram.APIBase = def.Notifications.Telegram.APIBase
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = def.Cache.TTL
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = def.HTTP.Addr
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		c.HTTP.ShutdownTimeout = def.HTTP.ShutdownTimeout
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Database: DatabaseConfig{Driver: "sqlite", DSN: "file:reviewranker.db", MaxOpenConns: 10},
		Scheduler: SchedulerConfig{
			CronExpression: "0 3 * * *",
			Timezone:       defaultTimezone,
			LockFile:       "reviewranker.lock",
			location:       tz,
		},
		Queue:    QueueConfig{MaxConnections: 3, MaxRetries: 3, StuckThreshold: 5 * time.Minute},
		Importer: ImporterConfig{BatchSize: 500, BatchDelay: 0, FailureRateThreshold: 0.2, ErrorSampleSize: 10},
		Matching: MatchingConfig{NameThreshold: 0.85, PhoneConfidence: 0.95},
		Dedup: DedupConfig{
			Weights:           dedup.DefaultWeights(),
			Authority:         dedup.DefaultAuthorityRanks(),
			FallbackAuthority: 50,
		},
		Ranking: RankingConfig{
			Params: ranking.DefaultParams(),
			Profiles: []ranking.Profile{
				{Category: "roofing", ExpectedAnnualReviews: 30, MinCredibleReviews: 5},
				{Category: "plumbing", ExpectedAnnualReviews: 40, MinCredibleReviews: 5},
				{Category: "restaurants", ExpectedAnnualReviews: 200, MinCredibleReviews: 20},
			},
			DefaultProfile:   ranking.DefaultProfile(),
			RefreshWindow:    24 * time.Hour,
			ClassifierSample: 20,
		},
		Refresh: RefreshConfig{StaleAfter: 24 * time.Hour, Limit: 500},
		Scrape: ScrapeConfig{
			Strategy:      "api",
			BaseURL:       "https://listings.example.org/v1",
			Source:        domain.SourceGoogle,
			Timeout:       15 * time.Second,
			RatePerSecond: 2,
			Burst:         2,
			Breaker:       BreakerConfig{MaxFailures: 5, OpenTimeout: 30 * time.Second},
		},
		Classifier: ClassifierConfig{
			Model:        "gpt-4o-mini",
			SystemPrompt: "You rate the substance of customer reviews.",
			Timeout:      20 * time.Second,
		},
		Notifications: NotificationConfig{
			Telegram: TelegramConfig{APIBase: "https://api.telegram.org"},
		},
		Cache:   CacheConfig{TTL: 10 * time.Minute},
		HTTP:    HTTPConfig{Addr: ":8080", ShutdownTimeout: 10 * time.Second},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}
