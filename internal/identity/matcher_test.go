package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ReviewRanker/internal/domain"
)

func testCatalog() *Catalog {
	return NewCatalog([]domain.Business{
		{ID: 1, Name: "Joe's Plumbing LLC", Phone: "(512) 555-0101", PlaceID: "place-joe"},
		{ID: 2, Name: "Austin Roofing Co.", Phone: "512.555.0202", PlaceID: "place-roof"},
		{ID: 3, Name: "Café Olé, Inc.", Phone: ""},
		{ID: 4, Name: "Bright Smile Dental", Phone: "+1 512 555 0404"},
	}, DefaultOptions())
}

func TestNormalizeName(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"Joe's Plumbing LLC":      "joes plumbing",
		"  AUSTIN   Roofing Co. ": "austin roofing",
		"Café Olé, Inc.":          "cafe ole",
		"Acme Widgets Co Inc":     "acme widgets",
		"Company":                 "company",
		"Smith & Sons Ltd.":       "smith sons",
		"The Co-op Market":        "the coop market",
		"":                        "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeName(in), "input %q", in)
	}
}

func TestNormalizePhone(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "5125550101", NormalizePhone("(512) 555-0101"))
	assert.Equal(t, "", NormalizePhone("n/a"))
}

func TestResolvePriorityOrder(t *testing.T) {
	t.Parallel()
	catalog := testCatalog()

	// place id beats a conflicting business id, phone and name
	m, ok := catalog.Resolve(domain.IdentityHints{PlaceID: "place-roof", BusinessID: 1, Phone: "5125550404", BusinessName: "Joe's Plumbing"})
	require.True(t, ok)
	assert.Equal(t, int64(2), m.Business.ID)
	assert.Equal(t, MethodPlaceID, m.Method)
	assert.Equal(t, 1.0, m.Confidence)

	m, ok = catalog.Resolve(domain.IdentityHints{PlaceID: "unknown", BusinessID: 3, Phone: "5125550404"})
	require.True(t, ok)
	assert.Equal(t, int64(3), m.Business.ID)
	assert.Equal(t, MethodBusinessID, m.Method)

	m, ok = catalog.Resolve(domain.IdentityHints{Phone: "1 512 555 0404", BusinessName: "Joe's Plumbing"})
	require.True(t, ok)
	assert.Equal(t, int64(4), m.Business.ID)
	assert.Equal(t, MethodPhone, m.Method)
	assert.Equal(t, 0.95, m.Confidence)
}

func TestResolveFuzzyName(t *testing.T) {
	t.Parallel()
	catalog := testCatalog()

	m, ok := catalog.Resolve(domain.IdentityHints{BusinessName: "Joes Plumbing, L.L.C."})
	require.True(t, ok)
	assert.Equal(t, int64(1), m.Business.ID)
	assert.Equal(t, MethodName, m.Method)
	assert.InDelta(t, 1.0, m.Confidence, 1e-9)

	m, ok = catalog.Resolve(domain.IdentityHints{BusinessName: "Bright Smile Dentl"})
	require.True(t, ok)
	assert.Equal(t, int64(4), m.Business.ID)
	assert.Greater(t, m.Confidence, 0.85)

	_, ok = catalog.Resolve(domain.IdentityHints{BusinessName: "Austin Plumbing"})
	assert.False(t, ok, "similarity below threshold must not match")
}

func TestResolveEmptyCatalog(t *testing.T) {
	t.Parallel()

	catalog := NewCatalog(nil, DefaultOptions())
	assert.Equal(t, 0, catalog.Len())
	_, ok := catalog.Resolve(domain.IdentityHints{PlaceID: "x", BusinessID: 1, Phone: "1", BusinessName: "x"})
	assert.False(t, ok)
}

func TestResolveNoHints(t *testing.T) {
	t.Parallel()

	_, ok := testCatalog().Resolve(domain.IdentityHints{})
	assert.False(t, ok)
}

func TestNameKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "joe", NameKey("joes plumbing"))
	assert.Equal(t, "ab", NameKey("a b"))
	assert.Equal(t, "", NameKey(""))
}

func TestNameTailKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ing", NameTailKey("joes plumbing"))
	assert.Equal(t, "ab", NameTailKey("a b"))
	assert.Equal(t, NameTailKey("acme roofing"), NameTailKey("acne roofing"))
	assert.NotEqual(t, NameKey("acme roofing"), NameKey("acne roofing"))
}
