package storage

import (
	"context"
	"fmt"
	"sort"

	sq "github.com/Masterminds/squirrel"

	"ReviewRanker/internal/domain"
)

// ReviewRepository persists reviews. Rows are flagged, never deleted.
type ReviewRepository struct {
	db *DB
}

func NewReviewRepository(db *DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// ExistingKeys reports which (source, source id) pairs are already stored for any business.
func (r *ReviewRepository) ExistingKeys(ctx context.Context, keys []domain.ReviewKey) (map[domain.ReviewKey]bool, error) {
	found := make(map[domain.ReviewKey]bool, len(keys))
	if len(keys) == 0 {
		return found, nil
	}

	bySource := make(map[domain.Source][]string)
	for _, k := range keys {
		bySource[k.Source] = append(bySource[k.Source], k.SourceReviewID)
	}
	sources := make([]string, 0, len(bySource))
	for s := range bySource {
		sources = append(sources, string(s))
	}
	sort.Strings(sources)

	var cond sq.Or
	for _, s := range sources {
		cond = append(cond, sq.And{
			sq.Eq{"source": s},
			sq.Eq{"source_review_id": bySource[domain.Source(s)]},
		})
	}

	query, args, err := r.db.sb.Select("source", "source_review_id").From("reviews").Where(cond).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build existing keys query: %w", err)
	}
	var rows []struct {
		Source         string `db:"source"`
		SourceReviewID string `db:"source_review_id"`
	}
	if err := r.db.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select existing keys: %w", err)
	}
	for _, row := range rows {
		found[domain.ReviewKey{Source: domain.Source(row.Source), SourceReviewID: row.SourceReviewID}] = true
	}
	return found, nil
}

// ListByBusinesses loads all stored reviews of the given businesses, grouped by business.
func (r *ReviewRepository) ListByBusinesses(ctx context.Context, businessIDs []int64) (map[int64][]domain.Review, error) {
	out := make(map[int64][]domain.Review, len(businessIDs))
	if len(businessIDs) == 0 {
		return out, nil
	}
	query, args, err := r.db.sb.Select(reviewColumns...).
		From("reviews").
		Where(sq.Eq{"business_id": businessIDs}).
		OrderBy("business_id", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list reviews query: %w", err)
	}
	var rows []reviewRow
	if err := r.db.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	for _, row := range rows {
		out[row.BusinessID] = append(out[row.BusinessID], row.toDomain())
	}
	return out, nil
}

// Insert stores a review. A (source, source id) collision yields domain.ErrDuplicateReview.
func (r *ReviewRepository) Insert(ctx context.Context, review domain.Review) (domain.Review, error) {
	var duplicateOf any
	if review.DuplicateOf != nil {
		duplicateOf = *review.DuplicateOf
	}
	query, args, err := r.db.sb.Insert("reviews").
		Columns("business_id", "source", "source_review_id", "author_name", "rating", "comment",
			"created_at", "imported_at", "flagged", "displayed", "flag_reason", "duplicate_of").
		Values(review.BusinessID, string(review.Source), review.SourceReviewID, review.AuthorName,
			review.Rating, review.Comment, toMillis(review.CreatedAt), toMillis(review.ImportedAt),
			review.Flagged, review.Displayed, nullableString(review.FlagReason), duplicateOf).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return domain.Review{}, fmt.Errorf("build insert review: %w", err)
	}
	if err := r.db.db.QueryRowxContext(ctx, query, args...).Scan(&review.ID); err != nil {
		if isUniqueViolation(err) {
			return domain.Review{}, fmt.Errorf("insert review %s/%s: %w", review.Source, review.SourceReviewID, domain.ErrDuplicateReview)
		}
		return domain.Review{}, fmt.Errorf("insert review %s/%s: %w: %v", review.Source, review.SourceReviewID, domain.ErrPersistence, err)
	}
	return review, nil
}

// FlagDuplicate hides a review superseded by a more authoritative copy.
func (r *ReviewRepository) FlagDuplicate(ctx context.Context, reviewID, duplicateOf int64) error {
	query, args, err := r.db.sb.Update("reviews").
		Set("flagged", true).
		Set("displayed", false).
		Set("flag_reason", domain.FlagReasonDuplicate).
		Set("duplicate_of", duplicateOf).
		Where(sq.Eq{"id": reviewID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build flag review: %w", err)
	}
	res, err := r.db.db.ExecContext(ctx, query, args...)
	if err := execRequireRows(res, err, fmt.Errorf("review %d: %w", reviewID, domain.ErrNotFound)); err != nil {
		return fmt.Errorf("flag review: %w", err)
	}
	return nil
}

// RecentComments returns the newest non-empty displayed comments of a business.
func (r *ReviewRepository) RecentComments(ctx context.Context, businessID int64, limit int) ([]string, error) {
	builder := r.db.sb.Select("comment").
		From("reviews").
		Where(sq.Eq{"business_id": businessID, "displayed": true}).
		Where(sq.NotEq{"comment": ""}).
		OrderBy("created_at DESC", "id DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build comments query: %w", err)
	}
	var comments []string
	if err := r.db.db.SelectContext(ctx, &comments, query, args...); err != nil {
		return nil, fmt.Errorf("select comments: %w", err)
	}
	return comments, nil
}
