// Package textsim provides edit-distance based similarity shared by identity
// matching and duplicate detection.
//
// Similarity is the ratio (maxLen - distance) / maxLen computed over runes, so a
// value of 1 means identical strings. Two empty strings are identical.
package textsim

import "strings"

// Levenshtein returns the edit distance between a and b with unit insert,
// delete and substitute costs.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	if len(ra) < len(rb) {
		ra, rb = rb, ra
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// Ratio returns the normalized similarity of a and b in [0, 1].
func Ratio(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	longest := max(la, lb)
	if longest == 0 {
		return 1
	}
	return float64(longest-Levenshtein(a, b)) / float64(longest)
}

// UpperBound is the best ratio two strings of the given rune lengths can reach.
// The distance is at least the length difference, so pairs whose bound is below
// a threshold can be skipped without computing the distance.
func UpperBound(la, lb int) float64 {
	longest := max(la, lb)
	if longest == 0 {
		return 1
	}
	return float64(min(la, lb)) / float64(longest)
}

// CollapseSpaces lower-cases s and squeezes runs of whitespace into single spaces.
func CollapseSpaces(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Trigrams returns the set of padded rune trigrams of s. Padding makes strings
// shorter than three runes produce at least one gram.
func Trigrams(s string) []string {
	if s == "" {
		return nil
	}
	padded := []rune("  " + s + " ")
	seen := make(map[string]struct{}, len(padded))
	grams := make([]string, 0, len(padded))
	for i := 0; i+3 <= len(padded); i++ {
		g := string(padded[i : i+3])
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		grams = append(grams, g)
	}
	return grams
}
