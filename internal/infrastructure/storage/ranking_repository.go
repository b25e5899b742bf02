package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"ReviewRanker/internal/domain"
)

const rankingUpsert = `ON CONFLICT (business_id) DO UPDATE SET
	category = excluded.category,
	city = excluded.city,
	total_score = excluded.total_score,
	quality_score = excluded.quality_score,
	volume_score = excluded.volume_score,
	tier_bonus = excluded.tier_bonus,
	confidence = excluded.confidence,
	quality_multiplier = excluded.quality_multiplier,
	reviews_analyzed = excluded.reviews_analyzed,
	average_rating = excluded.average_rating,
	keywords = excluded.keywords,
	updated_at = excluded.updated_at`

// RankingRepository persists ranking records alongside the business score columns.
type RankingRepository struct {
	db *DB
}

func NewRankingRepository(db *DB) *RankingRepository {
	return &RankingRepository{db: db}
}

// TargetsSince selects active businesses with reviews imported at or after since,
// plus every active business that has never been ranked.
func (r *RankingRepository) TargetsSince(ctx context.Context, since time.Time) ([]domain.RankTarget, error) {
	query, args, err := r.db.sb.Select("b.id", "b.name", "b.category", "b.city", "b.tier", "b.review_count", "b.rating").
		From("businesses b").
		Where(sq.Eq{"b.active": true}).
		Where(sq.Or{
			sq.Expr("b.id IN (SELECT business_id FROM reviews WHERE imported_at >= ?)", toMillis(since)),
			sq.Expr("NOT EXISTS (SELECT 1 FROM ranking_records rr WHERE rr.business_id = b.id)"),
		}).
		OrderBy("b.id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build targets query: %w", err)
	}
	var rows []struct {
		ID          int64   `db:"id"`
		Name        string  `db:"name"`
		Category    string  `db:"category"`
		City        string  `db:"city"`
		Tier        string  `db:"tier"`
		ReviewCount int     `db:"review_count"`
		Rating      float64 `db:"rating"`
	}
	if err := r.db.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select ranking targets: %w", err)
	}
	targets := make([]domain.RankTarget, 0, len(rows))
	for _, row := range rows {
		targets = append(targets, domain.RankTarget{
			BusinessID:   row.ID,
			BusinessName: row.Name,
			Category:     row.Category,
			City:         row.City,
			Tier:         domain.ParseTier(row.Tier),
			ReviewCount:  row.ReviewCount,
			Rating:       row.Rating,
		})
	}
	return targets, nil
}

// SaveScore upserts the score fields of a record. Positions are left to SavePositions.
func (r *RankingRepository) SaveScore(ctx context.Context, rec domain.RankingRecord) error {
	return r.db.inTx(ctx, func(tx *sqlx.Tx) error {
		query, args, err := r.db.sb.Insert("ranking_records").
			Columns("business_id", "category", "city", "total_score", "quality_score", "volume_score",
				"tier_bonus", "confidence", "quality_multiplier", "reviews_analyzed", "average_rating",
				"keywords", "updated_at").
			Values(rec.BusinessID, rec.Category, rec.City, rec.TotalScore, rec.QualityScore, rec.VolumeScore,
				rec.TierBonus, rec.Confidence, rec.QualityMultiplier, rec.ReviewsAnalyzed, rec.AverageRating,
				encodeKeywords(rec.Keywords), toMillis(rec.UpdatedAt)).
			Suffix(rankingUpsert).
			ToSql()
		if err != nil {
			return fmt.Errorf("build ranking upsert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert ranking %d: %w", rec.BusinessID, err)
		}

		update, args, err := r.db.sb.Update("businesses").
			Set("score", rec.TotalScore).
			Set("quality_score", rec.QualityScore).
			Set("volume_score", rec.VolumeScore).
			Set("confidence", rec.Confidence).
			Where(sq.Eq{"id": rec.BusinessID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build business score update: %w", err)
		}
		if _, err := tx.ExecContext(ctx, update, args...); err != nil {
			return fmt.Errorf("update business score %d: %w", rec.BusinessID, err)
		}
		return nil
	})
}

// Cohort lists the records of active businesses in a (category, city) cohort, best first.
func (r *RankingRepository) Cohort(ctx context.Context, cohort domain.Cohort) ([]domain.RankingRecord, error) {
	return r.selectRecords(ctx, r.baseSelect().
		Where(sq.Eq{"r.category": cohort.Category, "r.city": cohort.City, "b.active": true}).
		OrderBy("r.total_score DESC", "r.business_id ASC"))
}

// SavePositions writes rank and previous positions for every record.
func (r *RankingRepository) SavePositions(ctx context.Context, records []domain.RankingRecord) error {
	return r.db.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, rec := range records {
			for _, table := range []struct{ name, key string }{
				{"ranking_records", "business_id"},
				{"businesses", "id"},
			} {
				query, args, err := r.db.sb.Update(table.name).
					Set("rank_position", rec.RankPosition).
					Set("previous_position", rec.PreviousPosition).
					Where(sq.Eq{table.key: rec.BusinessID}).
					ToSql()
				if err != nil {
					return fmt.Errorf("build position update: %w", err)
				}
				if _, err := tx.ExecContext(ctx, query, args...); err != nil {
					return fmt.Errorf("update %s position %d: %w", table.name, rec.BusinessID, err)
				}
			}
		}
		return nil
	})
}

// Get returns the ranking of a business, or nil when it has never been ranked.
func (r *RankingRepository) Get(ctx context.Context, businessID int64) (*domain.RankingRecord, error) {
	query, args, err := r.baseSelect().Where(sq.Eq{"r.business_id": businessID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get ranking: %w", err)
	}
	var row rankingRow
	if err := r.db.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get ranking %d: %w", businessID, err)
	}
	rec := row.toDomain()
	return &rec, nil
}

// Top lists ranked active businesses by total score, optionally restricted to a category and city.
func (r *RankingRepository) Top(ctx context.Context, category, city string, limit int) ([]domain.RankingRecord, error) {
	builder := r.baseSelect().
		Where(sq.Gt{"r.rank_position": 0}).
		Where(sq.Eq{"b.active": true})
	if category != "" {
		builder = builder.Where(sq.Eq{"r.category": category})
	}
	if city != "" {
		builder = builder.Where(sq.Eq{"r.city": city})
	}
	builder = builder.OrderBy("r.total_score DESC", "r.business_id ASC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	return r.selectRecords(ctx, builder)
}

func (r *RankingRepository) baseSelect() sq.SelectBuilder {
	return r.db.sb.Select(rankingColumns...).
		From("ranking_records r").
		Join("businesses b ON b.id = r.business_id")
}

func (r *RankingRepository) selectRecords(ctx context.Context, builder sq.SelectBuilder) ([]domain.RankingRecord, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build ranking query: %w", err)
	}
	var rows []rankingRow
	if err := r.db.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select rankings: %w", err)
	}
	out := make([]domain.RankingRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}
