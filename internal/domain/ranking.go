package domain

import "time"

// RankingRecord captures the scored position of a business inside its cohort.
type RankingRecord struct {
	BusinessID        int64     `json:"businessId"`
	BusinessName      string    `json:"businessName,omitempty"`
	Category          string    `json:"category"`
	City              string    `json:"city"`
	TotalScore        float64   `json:"totalScore"`
	QualityScore      float64   `json:"qualityScore"`
	VolumeScore       float64   `json:"volumeScore"`
	TierBonus         float64   `json:"tierBonus"`
	Confidence        float64   `json:"confidence"`
	QualityMultiplier float64   `json:"qualityMultiplier"`
	ReviewsAnalyzed   int       `json:"reviewsAnalyzed"`
	AverageRating     float64   `json:"averageRating"`
	Keywords          []string  `json:"keywords,omitempty"`
	RankPosition      int       `json:"rankPosition"`
	PreviousPosition  int       `json:"previousPosition,omitempty"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Movement is the number of places gained since the previous ranking (negative when dropping).
func (r RankingRecord) Movement() int {
	if r.PreviousPosition == 0 || r.RankPosition == 0 {
		return 0
	}
	return r.PreviousPosition - r.RankPosition
}

// Trend labels the movement for display.
func (r RankingRecord) Trend() string {
	switch {
	case r.PreviousPosition == 0:
		return "new"
	case r.Movement() > 0:
		return "up"
	case r.Movement() < 0:
		return "down"
	default:
		return "steady"
	}
}

// Cohort is the (category, city) group positions are computed over.
type Cohort struct {
	Category string
	City     string
}

// RankTarget is the input slice of a business the ranking engine scores.
type RankTarget struct {
	BusinessID   int64
	BusinessName string
	Category     string
	City         string
	Tier         Tier
	ReviewCount  int
	Rating       float64
}
