// Package ranking turns review aggregates into bounded composite scores and cohort positions.
package ranking

import (
	"math"
	"strings"

	"ReviewRanker/internal/domain"
)

// Params holds every tunable constant of the scoring model.
type Params struct {
	LowConfidenceCap     float64                 `yaml:"lowConfidenceCap"`
	ConfidenceRamp       float64                 `yaml:"confidenceRamp"`
	ConfidenceTail       float64                 `yaml:"confidenceTail"`
	QualityBase          float64                 `yaml:"qualityBase"`
	EliteBonus           float64                 `yaml:"eliteBonus"`
	EliteThreshold       float64                 `yaml:"eliteThreshold"`
	ElitePivot           float64                 `yaml:"elitePivot"`
	VolumeLowCap         float64                 `yaml:"volumeLowCap"`
	VolumeRamp           float64                 `yaml:"volumeRamp"`
	VolumeLogFactor      float64                 `yaml:"volumeLogFactor"`
	VolumeMax            float64                 `yaml:"volumeMax"`
	MaxQualityMultiplier float64                 `yaml:"maxQualityMultiplier"`
	TierBonus            map[domain.Tier]float64 `yaml:"tierBonus"`
}

// DefaultParams mirrors the production weighting.
func DefaultParams() Params {
	return Params{
		LowConfidenceCap:     0.7,
		ConfidenceRamp:       0.25,
		ConfidenceTail:       0.05,
		QualityBase:          80,
		EliteBonus:           20,
		EliteThreshold:       4.5,
		ElitePivot:           4.0,
		VolumeLowCap:         5,
		VolumeRamp:           7,
		VolumeLogFactor:      1.5,
		VolumeMax:            15,
		MaxQualityMultiplier: 1.15,
		TierBonus: map[domain.Tier]float64{
			domain.TierFree:    0,
			domain.TierStarter: 1,
			domain.TierPro:     2,
			domain.TierPower:   3,
		},
	}
}

// Profile describes what "normal" review activity looks like in a category.
type Profile struct {
	Category              string  `yaml:"category"`
	ExpectedAnnualReviews float64 `yaml:"expectedAnnualReviews"`
	MinCredibleReviews    int     `yaml:"minCredibleReviews"`
}

// DefaultProfile is substituted when a category has no profile of its own.
func DefaultProfile() Profile {
	return Profile{Category: "default", ExpectedAnnualReviews: 30, MinCredibleReviews: 5}
}

// ProfileSet resolves category profiles case-insensitively.
type ProfileSet struct {
	byCategory map[string]Profile
	fallback   Profile
}

func NewProfileSet(profiles []Profile, fallback Profile) ProfileSet {
	set := ProfileSet{byCategory: make(map[string]Profile, len(profiles)), fallback: sanitizeProfile(fallback, DefaultProfile())}
	for _, p := range profiles {
		key := categoryKey(p.Category)
		if key == "" {
			continue
		}
		set.byCategory[key] = sanitizeProfile(p, set.fallback)
	}
	return set
}

// Lookup returns the category profile, or the fallback and false when none is configured.
func (s ProfileSet) Lookup(category string) (Profile, bool) {
	if p, ok := s.byCategory[categoryKey(category)]; ok {
		return p, true
	}
	return s.fallback, false
}

func categoryKey(category string) string {
	return strings.ToLower(strings.TrimSpace(category))
}

func sanitizeProfile(p, fallback Profile) Profile {
	if p.ExpectedAnnualReviews <= 0 {
		p.ExpectedAnnualReviews = fallback.ExpectedAnnualReviews
	}
	if p.MinCredibleReviews <= 0 {
		p.MinCredibleReviews = fallback.MinCredibleReviews
	}
	return p
}

// Input is the per-business data the score is computed from.
type Input struct {
	ReviewCount       int
	AverageRating     float64
	Tier              domain.Tier
	QualityMultiplier float64
}

// Breakdown carries every component of a computed score.
type Breakdown struct {
	Confidence        float64
	Quality           float64
	Volume            float64
	TierBonus         float64
	QualityMultiplier float64
	Total             float64
}

// Score combines quality, confidence, volume and tier into the total.
func Score(in Input, profile Profile, p Params) Breakdown {
	conf := Confidence(in.ReviewCount, profile.MinCredibleReviews, p)
	quality := QualityScore(in.AverageRating, conf, p)
	volume := VolumeScore(in.ReviewCount, profile.ExpectedAnnualReviews, p)
	bonus := TierBonus(in.Tier, p)
	qm := ClampMultiplier(in.QualityMultiplier, p)

	return Breakdown{
		Confidence:        conf,
		Quality:           quality,
		Volume:            volume,
		TierBonus:         bonus,
		QualityMultiplier: qm,
		Total:             (quality*conf+volume)*qm + bonus,
	}
}

// Confidence grows with review count: capped below minCredible, linear up to three times
// minCredible, then asymptotic toward 1.
func Confidence(n, minCredible int, p Params) float64 {
	if n <= 0 {
		return 0
	}
	m := float64(max(minCredible, 1))
	count := float64(n)
	switch {
	case count < m:
		return count / m * p.LowConfidenceCap
	case count < 3*m:
		return p.LowConfidenceCap + (count-m)/(2*m)*p.ConfidenceRamp
	default:
		return 1 - p.ConfidenceTail*math.Exp(-(count-3*m)/(3*m))
	}
}

// QualityScore maps the average rating onto 0..QualityBase and adds the elite bonus for
// ratings at or above EliteThreshold, weighted by confidence.
func QualityScore(avg, confidence float64, p Params) float64 {
	score := avg / 5 * p.QualityBase
	if avg >= p.EliteThreshold {
		score += p.EliteBonus * confidence * clamp(avg-p.ElitePivot, 0, 1)
	}
	return score
}

// VolumeScore rewards review velocity relative to the category norm.
func VolumeScore(n int, expectedAnnual float64, p Params) float64 {
	if n <= 0 {
		return 0
	}
	if expectedAnnual <= 0 {
		expectedAnnual = 1
	}
	x := float64(n) / expectedAnnual
	highBase := p.VolumeLowCap + p.VolumeRamp
	switch {
	case x < 0.5:
		return x / 0.5 * p.VolumeLowCap
	case x <= 2:
		return p.VolumeLowCap + (x-0.5)/1.5*p.VolumeRamp
	default:
		return math.Min(p.VolumeMax, highBase+p.VolumeLogFactor*math.Log2(x/2))
	}
}

// TierBonus is the flat subscription bonus; unknown tiers get none.
func TierBonus(tier domain.Tier, p Params) float64 {
	return p.TierBonus[tier]
}

// ClampMultiplier keeps the classifier multiplier within (0, MaxQualityMultiplier].
func ClampMultiplier(qm float64, p Params) float64 {
	if qm <= 0 || math.IsNaN(qm) {
		return 1
	}
	if p.MaxQualityMultiplier > 0 && qm > p.MaxQualityMultiplier {
		return p.MaxQualityMultiplier
	}
	return qm
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
