package identity

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var legalSuffixes = map[string]struct{}{
	"llc":          {},
	"pllc":         {},
	"llp":          {},
	"lp":           {},
	"inc":          {},
	"incorporated": {},
	"co":           {},
	"company":      {},
	"corp":         {},
	"corporation":  {},
	"ltd":          {},
	"limited":      {},
}

// NormalizeName folds accents, lower-cases, drops punctuation, strips trailing
// legal suffixes and collapses whitespace.
func NormalizeName(name string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range strings.ToLower(folded) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}

	tokens := strings.Fields(b.String())
	end := len(tokens)
	for end > 1 {
		if _, ok := legalSuffixes[tokens[end-1]]; !ok {
			break
		}
		end--
	}
	return strings.Join(tokens[:end], " ")
}

// NormalizePhone keeps only the digits of a phone number.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NameKey is the coarse blocking key stored alongside businesses so a batch can
// pre-fetch name candidates without scanning the catalog. Paired with
// NameTailKey, a typo near one end of a name still leaves the other key intact.
func NameKey(normalized string) string {
	compact := []rune(strings.ReplaceAll(normalized, " ", ""))
	if len(compact) > 3 {
		compact = compact[:3]
	}
	return string(compact)
}

// NameTailKey is the last three runes of the compacted name.
func NameTailKey(normalized string) string {
	compact := []rune(strings.ReplaceAll(normalized, " ", ""))
	if len(compact) > 3 {
		compact = compact[len(compact)-3:]
	}
	return string(compact)
}
