package domain

import (
	"math"
	"time"
)

// Tier is the paid subscription level of a listing.
type Tier string

const (
	TierFree    Tier = "free"
	TierStarter Tier = "starter"
	TierPro     Tier = "pro"
	TierPower   Tier = "power"
)

// ParseTier maps free-form input to a known tier; unknown values fall back to free.
func ParseTier(value string) Tier {
	switch Tier(value) {
	case TierStarter, TierPro, TierPower:
		return Tier(value)
	default:
		return TierFree
	}
}

// Priority is the queue priority of a scheduled refresh; paying tiers are scraped first.
func (t Tier) Priority() int {
	switch t {
	case TierPower:
		return 3
	case TierPro:
		return 2
	case TierStarter:
		return 1
	default:
		return 0
	}
}

// Business is the canonical directory listing that reviews resolve to.
type Business struct {
	ID             int64
	Name           string
	NormalizedName string
	Phone          string
	PlaceID        string
	City           string
	Category       string
	Tier           Tier
	Active         bool

	ReviewCount int
	Rating      float64

	Score            float64
	QualityScore     float64
	VolumeScore      float64
	Confidence       float64
	RankPosition     int
	PreviousPosition int

	LastScrapedAt *time.Time
	CreatedAt     time.Time
}

// ReviewAggregate is the derived review count and rounded average for a business.
type ReviewAggregate struct {
	BusinessID  int64
	ReviewCount int
	Rating      float64
}

// NewReviewAggregate derives the aggregate from a count and rating sum.
func NewReviewAggregate(businessID int64, count int, sum int64) ReviewAggregate {
	agg := ReviewAggregate{BusinessID: businessID, ReviewCount: count}
	if count > 0 {
		agg.Rating = RoundRating(float64(sum) / float64(count))
	}
	return agg
}

// RoundRating rounds an average rating to one decimal place.
func RoundRating(avg float64) float64 {
	return math.Round(avg*10) / 10
}
