package ranking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"ReviewRanker/internal/domain"
	"ReviewRanker/internal/metrics"
	"ReviewRanker/internal/ports"
)

const (
	defaultTopLimit = 10
	maxTopLimit     = 100
)

// Config tunes the engine.
type Config struct {
	Params           Params
	Profiles         ProfileSet
	ClassifierSample int
}

// Deps groups the collaborators of the engine. Reviews and Classifier are optional.
type Deps struct {
	Rankings   ports.RankingRepository
	Reviews    ports.ReviewRepository
	Classifier ports.Classifier
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	Clock      func() time.Time
}

// Engine scores businesses and maintains cohort positions.
type Engine struct {
	rankings   ports.RankingRepository
	reviews    ports.ReviewRepository
	classifier ports.Classifier
	metrics    *metrics.Metrics
	logger     *slog.Logger
	clock      func() time.Time
	cfg        Config
}

// Summary reports a recompute run.
type Summary struct {
	Scored      int       `json:"scored"`
	Failed      int       `json:"failed"`
	Cohorts     int       `json:"cohorts"`
	Defaulted   int       `json:"defaulted"`
	Classified  int       `json:"classified"`
	CompletedAt time.Time `json:"completedAt"`
}

func NewEngine(deps Deps, cfg Config) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	if cfg.Profiles.byCategory == nil {
		cfg.Profiles = NewProfileSet(nil, DefaultProfile())
	}
	if cfg.ClassifierSample <= 0 {
		cfg.ClassifierSample = 20
	}
	return &Engine{
		rankings:   deps.Rankings,
		reviews:    deps.Reviews,
		classifier: deps.Classifier,
		metrics:    deps.Metrics,
		logger:     logger.With("component", "ranking"),
		clock:      clock,
		cfg:        cfg,
	}
}

// Recompute rescores businesses with reviews imported since the given time (plus never-ranked
// ones) and re-ranks every cohort they belong to.
func (e *Engine) Recompute(ctx context.Context, since time.Time) (Summary, error) {
	started := time.Now()
	targets, err := e.rankings.TargetsSince(ctx, since)
	if err != nil {
		return Summary{}, fmt.Errorf("load ranking targets: %w", err)
	}

	var summary Summary
	touched := make(map[domain.Cohort]struct{})
	warned := make(map[string]bool)

	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		profile, ok := e.cfg.Profiles.Lookup(target.Category)
		if !ok {
			summary.Defaulted++
			if !warned[target.Category] {
				warned[target.Category] = true
				e.logger.Warn("category profile missing, using default",
					"category", target.Category,
					"error", domain.ErrConfiguration,
				)
			}
		}

		record, classified := e.evaluate(ctx, target, profile)
		if classified {
			summary.Classified++
		}

		previous, err := e.rankings.Get(ctx, target.BusinessID)
		if err != nil {
			summary.Failed++
			e.logger.Error("load previous ranking", "business_id", target.BusinessID, "error", err)
			continue
		}
		if previous != nil {
			old := domain.Cohort{Category: previous.Category, City: previous.City}
			if old != cohortOf(target) {
				touched[old] = struct{}{}
			}
		}

		if err := e.rankings.SaveScore(ctx, record); err != nil {
			summary.Failed++
			e.logger.Error("save ranking score", "business_id", target.BusinessID, "error", err)
			continue
		}
		summary.Scored++
		touched[cohortOf(target)] = struct{}{}
	}

	cohorts := make([]domain.Cohort, 0, len(touched))
	for c := range touched {
		cohorts = append(cohorts, c)
	}
	sort.Slice(cohorts, func(i, j int) bool {
		if cohorts[i].Category != cohorts[j].Category {
			return cohorts[i].Category < cohorts[j].Category
		}
		return cohorts[i].City < cohorts[j].City
	})

	for _, cohort := range cohorts {
		if err := e.rankCohort(ctx, cohort); err != nil {
			return summary, err
		}
		summary.Cohorts++
	}

	summary.CompletedAt = e.clock()
	e.metrics.ObserveRanking(started, summary.Scored)
	e.logger.Info("ranking recomputed",
		"scored", summary.Scored,
		"failed", summary.Failed,
		"cohorts", summary.Cohorts,
		"defaulted_profiles", summary.Defaulted,
		"duration", time.Since(started),
	)
	return summary, nil
}

func (e *Engine) evaluate(ctx context.Context, target domain.RankTarget, profile Profile) (domain.RankingRecord, bool) {
	multiplier, keywords, classified := e.analyze(ctx, target.BusinessID)
	b := Score(Input{
		ReviewCount:       target.ReviewCount,
		AverageRating:     target.Rating,
		Tier:              target.Tier,
		QualityMultiplier: multiplier,
	}, profile, e.cfg.Params)

	return domain.RankingRecord{
		BusinessID:        target.BusinessID,
		BusinessName:      target.BusinessName,
		Category:          target.Category,
		City:              target.City,
		TotalScore:        b.Total,
		QualityScore:      b.Quality,
		VolumeScore:       b.Volume,
		TierBonus:         b.TierBonus,
		Confidence:        b.Confidence,
		QualityMultiplier: b.QualityMultiplier,
		ReviewsAnalyzed:   target.ReviewCount,
		AverageRating:     target.Rating,
		Keywords:          keywords,
		UpdatedAt:         e.clock().UTC(),
	}, classified
}

func (e *Engine) analyze(ctx context.Context, businessID int64) (float64, []string, bool) {
	if e.classifier == nil || e.reviews == nil {
		return 1, nil, false
	}
	comments, err := e.reviews.RecentComments(ctx, businessID, e.cfg.ClassifierSample)
	if err != nil {
		e.logger.Warn("load comments for classifier", "business_id", businessID, "error", err)
		return 1, nil, false
	}
	if len(comments) == 0 {
		return 1, nil, false
	}
	analysis, err := e.classifier.Analyze(ctx, strings.Join(comments, "\n"))
	if err != nil {
		e.logger.Warn("classifier failed, using neutral multiplier", "business_id", businessID, "error", err)
		return 1, nil, false
	}
	return ClampMultiplier(analysis.QualityMultiplier, e.cfg.Params), analysis.Keywords, true
}

func (e *Engine) rankCohort(ctx context.Context, cohort domain.Cohort) error {
	records, err := e.rankings.Cohort(ctx, cohort)
	if err != nil {
		return fmt.Errorf("load cohort %s/%s: %w", cohort.Category, cohort.City, err)
	}
	if len(records) == 0 {
		return nil
	}
	AssignPositions(records)
	if err := e.rankings.SavePositions(ctx, records); err != nil {
		return fmt.Errorf("save cohort %s/%s positions: %w", cohort.Category, cohort.City, err)
	}
	return nil
}

// AssignPositions orders a cohort by total score descending (business id ascending on ties)
// and moves each current position into PreviousPosition before assigning the new one.
func AssignPositions(records []domain.RankingRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].TotalScore != records[j].TotalScore {
			return records[i].TotalScore > records[j].TotalScore
		}
		return records[i].BusinessID < records[j].BusinessID
	})
	for i := range records {
		records[i].PreviousPosition = records[i].RankPosition
		records[i].RankPosition = i + 1
	}
}

// BusinessRanking returns the stored ranking of a business, or nil when it has not been ranked.
func (e *Engine) BusinessRanking(ctx context.Context, businessID int64) (*domain.RankingRecord, error) {
	record, err := e.rankings.Get(ctx, businessID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get ranking: %w", err)
	}
	return record, nil
}

// TopRanked lists the best ranked businesses, optionally filtered by category and city.
func (e *Engine) TopRanked(ctx context.Context, category, city string, limit int) ([]domain.RankingRecord, error) {
	if limit <= 0 {
		limit = defaultTopLimit
	}
	if limit > maxTopLimit {
		limit = maxTopLimit
	}
	records, err := e.rankings.Top(ctx, strings.TrimSpace(category), strings.TrimSpace(city), limit)
	if err != nil {
		return nil, fmt.Errorf("top ranked: %w", err)
	}
	return records, nil
}

func cohortOf(target domain.RankTarget) domain.Cohort {
	return domain.Cohort{Category: target.Category, City: target.City}
}
