// Package dedup decides whether an inbound review already exists.
//
// The exact-key stage rejects any review whose (source, source id) pair is
// already stored for any business. Otherwise the content stage scores the review
// against the same business's stored reviews: identical author and rating, text
// similarity and temporal proximity each add to a confidence total, and a total
// at or above the threshold is a duplicate. Content duplicates coming from a
// more authoritative source replace the stored review, which is soft-flagged.
package dedup

import (
	"strings"
	"time"

	"ReviewRanker/internal/domain"
	"ReviewRanker/internal/textsim"
)

const (
	day  = 24 * time.Hour
	week = 7 * day
)

// Weights are the tunable contributions of each content signal.
type Weights struct {
	AuthorRating     float64 `yaml:"authorRating"`
	TextHigh         float64 `yaml:"textHigh"`
	TextHighCutoff   float64 `yaml:"textHighCutoff"`
	TextMedium       float64 `yaml:"textMedium"`
	TextMediumCutoff float64 `yaml:"textMediumCutoff"`
	SameDay          float64 `yaml:"sameDay"`
	SameWeek         float64 `yaml:"sameWeek"`
	Threshold        float64 `yaml:"threshold"`
}

// DefaultWeights returns the production weights.
func DefaultWeights() Weights {
	return Weights{
		AuthorRating:     0.3,
		TextHigh:         0.5,
		TextHighCutoff:   0.9,
		TextMedium:       0.3,
		TextMediumCutoff: 0.8,
		SameDay:          0.2,
		SameWeek:         0.1,
		Threshold:        0.7,
	}
}

// Outcome is the verdict for an inbound review.
type Outcome int

const (
	Unique Outcome = iota
	Duplicate
	Supersedes
)

func (o Outcome) String() string {
	switch o {
	case Duplicate:
		return "duplicate"
	case Supersedes:
		return "supersedes"
	default:
		return "unique"
	}
}

// Reason names the stage that produced a non-unique outcome.
type Reason string

const (
	ReasonExactKey Reason = "exact_key"
	ReasonContent  Reason = "content"
)

// Decision is the detector output. Match is the stored review the candidate
// collided with in the content stage.
type Decision struct {
	Outcome Outcome
	Reason  Reason
	Score   float64
	Match   *domain.Review
}

// Detector is stateless; callers supply the stored reviews to compare against.
type Detector struct {
	weights   Weights
	authority Authority
}

// NewDetector builds a detector with the given weights and source precedence.
func NewDetector(weights Weights, authority Authority) *Detector {
	return &Detector{weights: weights, authority: authority}
}

// Decide runs the exact-key stage (keyExists) and then the content stage.
func (d *Detector) Decide(candidate domain.Review, keyExists bool, existing []domain.Review) Decision {
	if keyExists {
		return Decision{Outcome: Duplicate, Reason: ReasonExactKey, Score: 1}
	}

	var (
		best      *domain.Review
		bestScore float64
	)
	for i := range existing {
		stored := &existing[i]
		if stored.BusinessID != candidate.BusinessID {
			continue
		}
		score := d.Score(candidate, *stored)
		// On equal scores a displayed review wins over one already hidden.
		if score > bestScore || (score == bestScore && best != nil && !best.Displayed && stored.Displayed) {
			best, bestScore = stored, score
		}
	}

	if best == nil || bestScore < d.weights.Threshold {
		return Decision{Outcome: Unique, Score: bestScore}
	}

	match := *best
	if match.Source != candidate.Source && match.Displayed && d.authority.Prefer(candidate, match) {
		return Decision{Outcome: Supersedes, Reason: ReasonContent, Score: bestScore, Match: &match}
	}
	return Decision{Outcome: Duplicate, Reason: ReasonContent, Score: bestScore, Match: &match}
}

// Score accumulates the content-similarity confidence of a against b.
func (d *Detector) Score(a, b domain.Review) float64 {
	w := d.weights
	var score float64

	if a.Rating == b.Rating && sameAuthor(a.AuthorName, b.AuthorName) {
		score += w.AuthorRating
	}

	sim := textsim.Ratio(textsim.CollapseSpaces(a.Comment), textsim.CollapseSpaces(b.Comment))
	switch {
	case sim > w.TextHighCutoff:
		score += w.TextHigh
	case sim > w.TextMediumCutoff:
		score += w.TextMedium
	}

	gap := a.CreatedAt.Sub(b.CreatedAt)
	if gap < 0 {
		gap = -gap
	}
	switch {
	case gap <= day:
		score += w.SameDay
	case gap <= week:
		score += w.SameWeek
	}

	return score
}

func sameAuthor(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
