// Package identity resolves inbound review identity hints to catalog businesses.
package identity

import (
	"sort"

	"ReviewRanker/internal/domain"
	"ReviewRanker/internal/textsim"
)

// Method names the rule that produced a match.
type Method string

const (
	MethodPlaceID    Method = "place_id"
	MethodBusinessID Method = "business_id"
	MethodPhone      Method = "phone"
	MethodName       Method = "name"
)

// Options tunes fuzzy acceptance.
type Options struct {
	NameThreshold   float64
	PhoneConfidence float64
}

// DefaultOptions returns the production thresholds.
func DefaultOptions() Options {
	return Options{NameThreshold: 0.85, PhoneConfidence: 0.95}
}

// Match is a resolved business with the confidence of the rule that found it.
type Match struct {
	Business   domain.Business
	Confidence float64
	Method     Method
}

// Catalog is an immutable snapshot of businesses indexed for resolution.
type Catalog struct {
	opts       Options
	businesses []domain.Business
	names      []string
	byPlace    map[string]int
	byID       map[int64]int
	byPhone    map[string]int
	grams      map[string][]int
}

// NewCatalog indexes businesses by place id, id, phone and name trigrams.
func NewCatalog(businesses []domain.Business, opts Options) *Catalog {
	if opts.NameThreshold <= 0 {
		opts.NameThreshold = DefaultOptions().NameThreshold
	}
	if opts.PhoneConfidence <= 0 {
		opts.PhoneConfidence = DefaultOptions().PhoneConfidence
	}

	sorted := make([]domain.Business, len(businesses))
	copy(sorted, businesses)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	c := &Catalog{
		opts:       opts,
		businesses: sorted,
		names:      make([]string, len(sorted)),
		byPlace:    make(map[string]int),
		byID:       make(map[int64]int, len(sorted)),
		byPhone:    make(map[string]int),
		grams:      make(map[string][]int),
	}

	for i, b := range sorted {
		if b.PlaceID != "" {
			if _, dup := c.byPlace[b.PlaceID]; !dup {
				c.byPlace[b.PlaceID] = i
			}
		}
		c.byID[b.ID] = i
		if phone := NormalizePhone(b.Phone); phone != "" {
			if _, dup := c.byPhone[phone]; !dup {
				c.byPhone[phone] = i
			}
		}

		name := b.NormalizedName
		if name == "" {
			name = NormalizeName(b.Name)
		}
		c.names[i] = name
		for _, g := range textsim.Trigrams(name) {
			c.grams[g] = append(c.grams[g], i)
		}
	}
	return c
}

// Len returns the number of businesses in the snapshot.
func (c *Catalog) Len() int {
	return len(c.businesses)
}

// Resolve returns the best match for hints in strict priority order: place id,
// business id, phone, then fuzzy name. The first rule that hits wins.
func (c *Catalog) Resolve(hints domain.IdentityHints) (Match, bool) {
	if hints.PlaceID != "" {
		if i, ok := c.byPlace[hints.PlaceID]; ok {
			return Match{Business: c.businesses[i], Confidence: 1, Method: MethodPlaceID}, true
		}
	}

	if hints.BusinessID != 0 {
		if i, ok := c.byID[hints.BusinessID]; ok {
			return Match{Business: c.businesses[i], Confidence: 1, Method: MethodBusinessID}, true
		}
	}

	if phone := NormalizePhone(hints.Phone); phone != "" {
		if i, ok := c.byPhone[phone]; ok {
			return Match{Business: c.businesses[i], Confidence: c.opts.PhoneConfidence, Method: MethodPhone}, true
		}
	}

	if hints.BusinessName != "" {
		if i, sim, ok := c.bestName(NormalizeName(hints.BusinessName)); ok {
			return Match{Business: c.businesses[i], Confidence: sim, Method: MethodName}, true
		}
	}

	return Match{}, false
}

// bestName only computes edit distance for businesses sharing a trigram with the
// query and whose length bound can still exceed the threshold.
func (c *Catalog) bestName(query string) (int, float64, bool) {
	if query == "" {
		return 0, 0, false
	}

	qLen := len([]rune(query))
	seen := make(map[int]struct{})
	candidates := make([]int, 0, 8)
	for _, g := range textsim.Trigrams(query) {
		for _, i := range c.grams[g] {
			if _, ok := seen[i]; ok {
				continue
			}
			seen[i] = struct{}{}
			candidates = append(candidates, i)
		}
	}
	sort.Ints(candidates)

	best, bestSim := -1, 0.0
	for _, i := range candidates {
		if textsim.UpperBound(qLen, len([]rune(c.names[i]))) <= c.opts.NameThreshold {
			continue
		}
		sim := textsim.Ratio(query, c.names[i])
		if sim > bestSim {
			best, bestSim = i, sim
		}
	}

	if best < 0 || bestSim <= c.opts.NameThreshold {
		return 0, 0, false
	}
	return best, bestSim, true
}
