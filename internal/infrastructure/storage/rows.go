package storage

import (
	"database/sql"
	"encoding/json"

	"ReviewRanker/internal/domain"
)

var businessColumns = []string{
	"id", "name", "normalized_name", "phone", "place_id", "city", "category", "tier", "active",
	"review_count", "rating", "score", "quality_score", "volume_score", "confidence",
	"rank_position", "previous_position", "last_scraped_at", "created_at",
}

type businessRow struct {
	ID               int64          `db:"id"`
	Name             string         `db:"name"`
	NormalizedName   string         `db:"normalized_name"`
	Phone            string         `db:"phone"`
	PlaceID          sql.NullString `db:"place_id"`
	City             string         `db:"city"`
	Category         string         `db:"category"`
	Tier             string         `db:"tier"`
	Active           bool           `db:"active"`
	ReviewCount      int            `db:"review_count"`
	Rating           float64        `db:"rating"`
	Score            float64        `db:"score"`
	QualityScore     float64        `db:"quality_score"`
	VolumeScore      float64        `db:"volume_score"`
	Confidence       float64        `db:"confidence"`
	RankPosition     int            `db:"rank_position"`
	PreviousPosition int            `db:"previous_position"`
	LastScrapedAt    sql.NullInt64  `db:"last_scraped_at"`
	CreatedAt        int64          `db:"created_at"`
}

func (r businessRow) toDomain() domain.Business {
	return domain.Business{
		ID:               r.ID,
		Name:             r.Name,
		NormalizedName:   r.NormalizedName,
		Phone:            r.Phone,
		PlaceID:          r.PlaceID.String,
		City:             r.City,
		Category:         r.Category,
		Tier:             domain.ParseTier(r.Tier),
		Active:           r.Active,
		ReviewCount:      r.ReviewCount,
		Rating:           r.Rating,
		Score:            r.Score,
		QualityScore:     r.QualityScore,
		VolumeScore:      r.VolumeScore,
		Confidence:       r.Confidence,
		RankPosition:     r.RankPosition,
		PreviousPosition: r.PreviousPosition,
		LastScrapedAt:    millisPtr(r.LastScrapedAt),
		CreatedAt:        fromMillis(r.CreatedAt),
	}
}

var reviewColumns = []string{
	"id", "business_id", "source", "source_review_id", "author_name", "rating", "comment",
	"created_at", "imported_at", "flagged", "displayed", "flag_reason", "duplicate_of",
}

type reviewRow struct {
	ID             int64          `db:"id"`
	BusinessID     int64          `db:"business_id"`
	Source         string         `db:"source"`
	SourceReviewID string         `db:"source_review_id"`
	AuthorName     string         `db:"author_name"`
	Rating         int            `db:"rating"`
	Comment        string         `db:"comment"`
	CreatedAt      int64          `db:"created_at"`
	ImportedAt     int64          `db:"imported_at"`
	Flagged        bool           `db:"flagged"`
	Displayed      bool           `db:"displayed"`
	FlagReason     sql.NullString `db:"flag_reason"`
	DuplicateOf    sql.NullInt64  `db:"duplicate_of"`
}

func (r reviewRow) toDomain() domain.Review {
	review := domain.Review{
		ID:             r.ID,
		SourceReviewID: r.SourceReviewID,
		Source:         domain.Source(r.Source),
		BusinessID:     r.BusinessID,
		AuthorName:     r.AuthorName,
		Rating:         r.Rating,
		Comment:        r.Comment,
		CreatedAt:      fromMillis(r.CreatedAt),
		ImportedAt:     fromMillis(r.ImportedAt),
		Flagged:        r.Flagged,
		Displayed:      r.Displayed,
		FlagReason:     r.FlagReason.String,
	}
	if r.DuplicateOf.Valid {
		id := r.DuplicateOf.Int64
		review.DuplicateOf = &id
	}
	return review
}

var jobColumns = []string{
	"id", "business_id", "source_key", "status", "priority", "retry_count", "last_error",
	"claim_token", "requested_at", "started_at", "finished_at", "updated_at",
}

type jobRow struct {
	ID          int64          `db:"id"`
	BusinessID  int64          `db:"business_id"`
	SourceKey   string         `db:"source_key"`
	Status      string         `db:"status"`
	Priority    int            `db:"priority"`
	RetryCount  int            `db:"retry_count"`
	LastError   sql.NullString `db:"last_error"`
	ClaimToken  sql.NullString `db:"claim_token"`
	RequestedAt int64          `db:"requested_at"`
	StartedAt   sql.NullInt64  `db:"started_at"`
	FinishedAt  sql.NullInt64  `db:"finished_at"`
	UpdatedAt   int64          `db:"updated_at"`
}

func (r jobRow) toDomain() domain.IngestionJob {
	return domain.IngestionJob{
		ID:          r.ID,
		BusinessID:  r.BusinessID,
		SourceKey:   r.SourceKey,
		Status:      domain.JobStatus(r.Status),
		Priority:    r.Priority,
		RetryCount:  r.RetryCount,
		LastError:   r.LastError.String,
		ClaimToken:  r.ClaimToken.String,
		RequestedAt: fromMillis(r.RequestedAt),
		StartedAt:   millisPtr(r.StartedAt),
		FinishedAt:  millisPtr(r.FinishedAt),
		UpdatedAt:   fromMillis(r.UpdatedAt),
	}
}

var rankingColumns = []string{
	"r.business_id", "b.name AS business_name", "r.category", "r.city", "r.total_score",
	"r.quality_score", "r.volume_score", "r.tier_bonus", "r.confidence", "r.quality_multiplier",
	"r.reviews_analyzed", "r.average_rating", "r.keywords", "r.rank_position",
	"r.previous_position", "r.updated_at",
}

type rankingRow struct {
	BusinessID        int64   `db:"business_id"`
	BusinessName      string  `db:"business_name"`
	Category          string  `db:"category"`
	City              string  `db:"city"`
	TotalScore        float64 `db:"total_score"`
	QualityScore      float64 `db:"quality_score"`
	VolumeScore       float64 `db:"volume_score"`
	TierBonus         float64 `db:"tier_bonus"`
	Confidence        float64 `db:"confidence"`
	QualityMultiplier float64 `db:"quality_multiplier"`
	ReviewsAnalyzed   int     `db:"reviews_analyzed"`
	AverageRating     float64 `db:"average_rating"`
	Keywords          string  `db:"keywords"`
	RankPosition      int     `db:"rank_position"`
	PreviousPosition  int     `db:"previous_position"`
	UpdatedAt         int64   `db:"updated_at"`
}

func (r rankingRow) toDomain() domain.RankingRecord {
	var keywords []string
	if r.Keywords != "" {
		_ = json.Unmarshal([]byte(r.Keywords), &keywords)
	}
	return domain.RankingRecord{
		BusinessID:        r.BusinessID,
		BusinessName:      r.BusinessName,
		Category:          r.Category,
		City:              r.City,
		TotalScore:        r.TotalScore,
		QualityScore:      r.QualityScore,
		VolumeScore:       r.VolumeScore,
		TierBonus:         r.TierBonus,
		Confidence:        r.Confidence,
		QualityMultiplier: r.QualityMultiplier,
		ReviewsAnalyzed:   r.ReviewsAnalyzed,
		AverageRating:     r.AverageRating,
		Keywords:          keywords,
		RankPosition:      r.RankPosition,
		PreviousPosition:  r.PreviousPosition,
		UpdatedAt:         fromMillis(r.UpdatedAt),
	}
}

func encodeKeywords(keywords []string) string {
	if len(keywords) == 0 {
		return "[]"
	}
	raw, err := json.Marshal(keywords)
	if err != nil {
		return "[]"
	}
	return string(raw)
}
