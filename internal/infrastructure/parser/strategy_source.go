package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"ReviewRanker/internal/config"
	"ReviewRanker/internal/domain"
	"ReviewRanker/internal/metrics"
	"ReviewRanker/internal/ports"
	"ReviewRanker/internal/scanner"
)

// StrategySource implements ReviewSource via a registered scanner strategy,
// shielded by a rate limiter and a circuit breaker.
type StrategySource struct {
	strategy scanner.Scanner
	source   domain.Source
	options  map[string]string
	timeout  time.Duration
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

var _ ports.ReviewSource = (*StrategySource)(nil)

// NewStrategySource resolves the configured strategy from the registry.
func NewStrategySource(reg *scanner.Registry, cfg config.ScrapeConfig, m *metrics.Metrics, log *slog.Logger) (*StrategySource, error) {
	if reg == nil {
		return nil, fmt.Errorf("scanner registry is not configured: %w", domain.ErrConfiguration)
	}
	strategy, err := reg.Resolve(cfg.Strategy)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "review_source", "strategy", strategy.Name())

	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}

	maxFailures := cfg.Breaker.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "scrape-" + strategy.Name(),
		Timeout: cfg.Breaker.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !domain.IsTransient(err)
		},
	})

	return &StrategySource{
		strategy: strategy,
		source:   cfg.Source,
		options:  cfg.Options,
		timeout:  cfg.Timeout,
		limiter:  rate.NewLimiter(limit, burst),
		breaker:  breaker,
		metrics:  m,
		logger:   log,
	}, nil
}

// FetchReviews scrapes one place. Records are tagged with the configured
// source and the place id so the importer can resolve them.
func (s *StrategySource) FetchReviews(ctx context.Context, placeID string) ([]domain.ReviewRecord, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	s.logger.Debug("fetch reviews", "place_id", placeID)
	out, err := s.breaker.Execute(func() (interface{}, error) {
		return s.strategy.Scan(callCtx, scanner.Request{
			PlaceID: placeID,
			Source:  s.source,
			Options: s.options,
		})
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			s.metrics.SourceRequest("rejected")
			return nil, &domain.SourceError{PlaceID: placeID, Err: err}
		}
		s.metrics.SourceRequest("error")
		return nil, err
	}
	s.metrics.SourceRequest("ok")

	records, _ := out.([]domain.ReviewRecord)
	for i := range records {
		if records[i].Source == "" {
			records[i].Source = s.source
		}
		if records[i].PlaceID == "" {
			records[i].PlaceID = placeID
		}
	}
	s.logger.Debug("place produced reviews", "place_id", placeID, "count", len(records))
	return records, nil
}

// BreakerState exposes the breaker state for status reporting.
func (s *StrategySource) BreakerState() string {
	return s.breaker.State().String()
}
