package domain

import "time"

// Source identifies where a review was obtained.
type Source string

const (
	SourceNative       Source = "native"
	SourceNativeImport Source = "native_import"
	SourceGoogle       Source = "google"
	SourceYelp         Source = "yelp"
	SourceFacebook     Source = "facebook"
	SourceManual       Source = "manual"
)

// FlagReasonDuplicate marks reviews hidden by duplicate reconciliation.
const FlagReasonDuplicate = "duplicate"

// Review is a stored review owned by exactly one business.
type Review struct {
	ID             int64
	SourceReviewID string
	Source         Source
	BusinessID     int64
	AuthorName     string
	Rating         int
	Comment        string
	CreatedAt      time.Time
	ImportedAt     time.Time

	Flagged     bool
	Displayed   bool
	FlagReason  string
	DuplicateOf *int64
}

// Key returns the unique (source, source id) pair.
func (r Review) Key() ReviewKey {
	return ReviewKey{Source: r.Source, SourceReviewID: r.SourceReviewID}
}

// ReviewKey is the exact-match identity of a review across all businesses.
type ReviewKey struct {
	Source         Source
	SourceReviewID string
}

// IdentityHints carries every field an inbound record offers for business resolution.
type IdentityHints struct {
	PlaceID      string
	BusinessID   int64
	Phone        string
	BusinessName string
}

// ReviewRecord is a raw review as produced by the scrape provider or an import file.
type ReviewRecord struct {
	SourceReviewID string    `json:"sourceId"`
	Source         Source    `json:"source"`
	PlaceID        string    `json:"placeId,omitempty"`
	BusinessID     int64     `json:"businessId,omitempty"`
	Phone          string    `json:"phone,omitempty"`
	BusinessName   string    `json:"businessName,omitempty"`
	AuthorName     string    `json:"author"`
	Rating         int       `json:"rating"`
	Comment        string    `json:"comment"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Hints extracts the identity hints of the record.
func (r ReviewRecord) Hints() IdentityHints {
	return IdentityHints{
		PlaceID:      r.PlaceID,
		BusinessID:   r.BusinessID,
		Phone:        r.Phone,
		BusinessName: r.BusinessName,
	}
}

// Key returns the unique (source, source id) pair.
func (r ReviewRecord) Key() ReviewKey {
	return ReviewKey{Source: r.Source, SourceReviewID: r.SourceReviewID}
}

// ToReview converts the record into a displayable review for the given business.
func (r ReviewRecord) ToReview(businessID int64, importedAt time.Time) Review {
	created := r.CreatedAt
	if created.IsZero() {
		created = importedAt
	}
	return Review{
		SourceReviewID: r.SourceReviewID,
		Source:         r.Source,
		BusinessID:     businessID,
		AuthorName:     r.AuthorName,
		Rating:         r.Rating,
		Comment:        r.Comment,
		CreatedAt:      created.UTC(),
		ImportedAt:     importedAt.UTC(),
		Displayed:      true,
	}
}
