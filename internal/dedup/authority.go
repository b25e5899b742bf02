package dedup

import "ReviewRanker/internal/domain"

// DefaultAuthorityRanks orders sources by trust: first-party API, first-party
// import, third-party imports, manual entry.
func DefaultAuthorityRanks() map[domain.Source]int {
	return map[domain.Source]int{
		domain.SourceNative:       100,
		domain.SourceNativeImport: 80,
		domain.SourceGoogle:       50,
		domain.SourceYelp:         50,
		domain.SourceFacebook:     50,
		domain.SourceManual:       10,
	}
}

// Authority resolves a source to its precedence rank.
type Authority struct {
	ranks    map[domain.Source]int
	fallback int
}

// NewAuthority builds a precedence table; sources missing from ranks use fallback.
func NewAuthority(ranks map[domain.Source]int, fallback int) Authority {
	copied := make(map[domain.Source]int, len(ranks))
	for src, rank := range ranks {
		copied[src] = rank
	}
	return Authority{ranks: copied, fallback: fallback}
}

// DefaultAuthority treats unknown sources like third-party imports.
func DefaultAuthority() Authority {
	return NewAuthority(DefaultAuthorityRanks(), 50)
}

// Rank returns the precedence of src.
func (a Authority) Rank(src domain.Source) int {
	if rank, ok := a.ranks[src]; ok {
		return rank
	}
	return a.fallback
}

// Prefer reports whether incoming should replace stored when both describe the
// same review: higher authority wins, equal authority keeps the newer one.
func (a Authority) Prefer(incoming, stored domain.Review) bool {
	ri, rs := a.Rank(incoming.Source), a.Rank(stored.Source)
	if ri != rs {
		return ri > rs
	}
	return incoming.CreatedAt.After(stored.CreatedAt)
}
