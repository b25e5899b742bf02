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
	"ReviewRanker/internal/identity"
	"ReviewRanker/internal/ports"
)

// BusinessRepository persists the business catalog.
type BusinessRepository struct {
	db *DB
}

func NewBusinessRepository(db *DB) *BusinessRepository {
	return &BusinessRepository{db: db}
}

// Create inserts a business and derives its normalized matching columns.
func (r *BusinessRepository) Create(ctx context.Context, b domain.Business) (domain.Business, error) {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	if b.Tier == "" {
		b.Tier = domain.TierFree
	}
	b.NormalizedName = identity.NormalizeName(b.Name)

	query, args, err := r.db.sb.Insert("businesses").
		Columns("name", "normalized_name", "name_key", "name_tail_key", "phone", "phone_digits", "place_id",
			"city", "category", "tier", "active", "created_at").
		Values(b.Name, b.NormalizedName, identity.NameKey(b.NormalizedName), identity.NameTailKey(b.NormalizedName), b.Phone,
			identity.NormalizePhone(b.Phone), nullableString(b.PlaceID), b.City, b.Category,
			string(b.Tier), b.Active, toMillis(b.CreatedAt)).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return domain.Business{}, fmt.Errorf("build insert business: %w", err)
	}
	if err := r.db.db.QueryRowxContext(ctx, query, args...).Scan(&b.ID); err != nil {
		return domain.Business{}, fmt.Errorf("insert business: %w", err)
	}
	return b, nil
}

// Get loads a business by id.
func (r *BusinessRepository) Get(ctx context.Context, id int64) (domain.Business, error) {
	query, args, err := r.db.sb.Select(businessColumns...).From("businesses").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.Business{}, fmt.Errorf("build get business: %w", err)
	}
	var row businessRow
	if err := r.db.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Business{}, fmt.Errorf("business %d: %w", id, domain.ErrNotFound)
		}
		return domain.Business{}, fmt.Errorf("get business %d: %w", id, err)
	}
	return row.toDomain(), nil
}

// FindCandidates returns the active businesses any of the lookup keys could resolve to.
func (r *BusinessRepository) FindCandidates(ctx context.Context, lookup ports.BusinessLookup) ([]domain.Business, error) {
	var keys sq.Or
	if len(lookup.PlaceIDs) > 0 {
		keys = append(keys, sq.Eq{"place_id": lookup.PlaceIDs})
	}
	if len(lookup.BusinessIDs) > 0 {
		keys = append(keys, sq.Eq{"id": lookup.BusinessIDs})
	}
	if len(lookup.Phones) > 0 {
		keys = append(keys, sq.Eq{"phone_digits": lookup.Phones})
	}
	if len(lookup.NameKeys) > 0 {
		keys = append(keys, sq.Eq{"name_key": lookup.NameKeys})
	}
	if len(lookup.NameTailKeys) > 0 {
		keys = append(keys, sq.Eq{"name_tail_key": lookup.NameTailKeys})
	}
	if len(keys) == 0 {
		return nil, nil
	}

	query, args, err := r.db.sb.Select(businessColumns...).
		From("businesses").
		Where(sq.Eq{"active": true}).
		Where(keys).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build candidate query: %w", err)
	}
	return r.selectBusinesses(ctx, query, args)
}

// NeedingRefresh lists active businesses with a place id that were never scraped or scraped before the cutoff.
func (r *BusinessRepository) NeedingRefresh(ctx context.Context, scrapedBefore time.Time, limit int) ([]domain.Business, error) {
	builder := r.db.sb.Select(businessColumns...).
		From("businesses").
		Where(sq.Eq{"active": true}).
		Where(sq.NotEq{"place_id": nil}).
		Where(sq.Or{sq.Eq{"last_scraped_at": nil}, sq.Lt{"last_scraped_at": toMillis(scrapedBefore)}}).
		OrderBy("COALESCE(last_scraped_at, 0)", "id")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build refresh query: %w", err)
	}
	return r.selectBusinesses(ctx, query, args)
}

// MarkScraped records a successful scrape.
func (r *BusinessRepository) MarkScraped(ctx context.Context, id int64, at time.Time) error {
	query, args, err := r.db.sb.Update("businesses").
		Set("last_scraped_at", toMillis(at)).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark scraped: %w", err)
	}
	res, err := r.db.db.ExecContext(ctx, query, args...)
	if err := execRequireRows(res, err, fmt.Errorf("business %d: %w", id, domain.ErrNotFound)); err != nil {
		return fmt.Errorf("mark scraped: %w", err)
	}
	return nil
}

// SetActive toggles whether a business takes part in refreshes, matching and rankings.
func (r *BusinessRepository) SetActive(ctx context.Context, id int64, active bool) error {
	query, args, err := r.db.sb.Update("businesses").
		Set("active", active).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build set active: %w", err)
	}
	res, err := r.db.db.ExecContext(ctx, query, args...)
	if err := execRequireRows(res, err, fmt.Errorf("business %d: %w", id, domain.ErrNotFound)); err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	return nil
}

// RecountAggregates recomputes review count and rounded average over displayed reviews.
func (r *BusinessRepository) RecountAggregates(ctx context.Context, id int64) (domain.ReviewAggregate, error) {
	var agg domain.ReviewAggregate
	err := r.db.inTx(ctx, func(tx *sqlx.Tx) error {
		query, args, err := r.db.sb.Select("COUNT(*)", "COALESCE(SUM(rating), 0)").
			From("reviews").
			Where(sq.Eq{"business_id": id, "displayed": true}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build aggregate query: %w", err)
		}
		var count int
		var sum int64
		if err := tx.QueryRowxContext(ctx, query, args...).Scan(&count, &sum); err != nil {
			return fmt.Errorf("aggregate reviews: %w", err)
		}
		agg = domain.NewReviewAggregate(id, count, sum)

		update, args, err := r.db.sb.Update("businesses").
			Set("review_count", agg.ReviewCount).
			Set("rating", agg.Rating).
			Where(sq.Eq{"id": id}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build aggregate update: %w", err)
		}
		res, err := tx.ExecContext(ctx, update, args...)
		return execRequireRows(res, err, fmt.Errorf("business %d: %w", id, domain.ErrNotFound))
	})
	if err != nil {
		return domain.ReviewAggregate{}, fmt.Errorf("recount aggregates: %w", err)
	}
	return agg, nil
}

func (r *BusinessRepository) selectBusinesses(ctx context.Context, query string, args []any) ([]domain.Business, error) {
	var rows []businessRow
	if err := r.db.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select businesses: %w", err)
	}
	out := make([]domain.Business, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}
