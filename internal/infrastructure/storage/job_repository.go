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

const (
	activeJobConflict = "ON CONFLICT (business_id) WHERE status IN ('pending', 'processing') DO NOTHING RETURNING id"
	stuckJobError     = "reset after exceeding stuck threshold"
)

// JobRepository stores ingestion jobs. Every transition is a guarded UPDATE so
// concurrent workers cannot both win the same job.
type JobRepository struct {
	db *DB
}

func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db}
}

// Enqueue inserts a pending job unless the business already has a pending or
// processing one, in which case that job is returned with created=false.
func (r *JobRepository) Enqueue(ctx context.Context, job domain.IngestionJob) (domain.IngestionJob, bool, error) {
	now := job.RequestedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	query, args, err := r.db.sb.Insert("ingestion_jobs").
		Columns("business_id", "source_key", "status", "priority", "retry_count", "requested_at", "updated_at").
		Values(job.BusinessID, job.SourceKey, string(domain.JobPending), job.Priority, 0, toMillis(now), toMillis(now)).
		Suffix(activeJobConflict).
		ToSql()
	if err != nil {
		return domain.IngestionJob{}, false, fmt.Errorf("build enqueue: %w", err)
	}

	var id int64
	err = r.db.db.QueryRowxContext(ctx, query, args...).Scan(&id)
	switch {
	case err == nil:
		created, getErr := r.Get(ctx, id)
		return created, true, getErr
	case errors.Is(err, sql.ErrNoRows), isUniqueViolation(err):
		existing, getErr := r.activeFor(ctx, job.BusinessID)
		if getErr != nil {
			return domain.IngestionJob{}, false, fmt.Errorf("load active job: %w", getErr)
		}
		return existing, false, nil
	default:
		return domain.IngestionJob{}, false, fmt.Errorf("enqueue job: %w", err)
	}
}

// Get loads a job by id.
func (r *JobRepository) Get(ctx context.Context, id int64) (domain.IngestionJob, error) {
	return r.getWith(ctx, r.db.db, id)
}

// ClaimNext atomically moves the best pending job to processing, provided fewer
// than maxProcessing jobs are already processing.
func (r *JobRepository) ClaimNext(ctx context.Context, maxProcessing int, token string, now time.Time) (domain.IngestionJob, error) {
	var claimed domain.IngestionJob
	err := r.db.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := r.db.lockQueue(ctx, tx); err != nil {
			return err
		}

		countQuery, args, err := r.db.sb.Select("COUNT(*)").
			From("ingestion_jobs").
			Where(sq.Eq{"status": string(domain.JobProcessing)}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build processing count: %w", err)
		}
		var processing int
		if err := tx.GetContext(ctx, &processing, countQuery, args...); err != nil {
			return fmt.Errorf("count processing: %w", err)
		}
		if processing >= maxProcessing {
			return domain.ErrNoJobAvailable
		}

		pickQuery, args, err := r.db.sb.Select("id").
			From("ingestion_jobs").
			Where(sq.Eq{"status": string(domain.JobPending)}).
			Where(sq.GtOrEq{"priority": 0}).
			OrderBy("priority DESC", "requested_at ASC", "id ASC").
			Limit(1).
			ToSql()
		if err != nil {
			return fmt.Errorf("build pick: %w", err)
		}
		var id int64
		if err := tx.GetContext(ctx, &id, pickQuery, args...); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrNoJobAvailable
			}
			return fmt.Errorf("pick pending job: %w", err)
		}

		updQuery, args, err := r.db.sb.Update("ingestion_jobs").
			Set("status", string(domain.JobProcessing)).
			Set("claim_token", token).
			Set("started_at", toMillis(now)).
			Set("finished_at", nil).
			Set("updated_at", toMillis(now)).
			Where(sq.Eq{"id": id, "status": string(domain.JobPending)}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build claim: %w", err)
		}
		res, err := tx.ExecContext(ctx, updQuery, args...)
		if err := execRequireRows(res, err, domain.ErrNoJobAvailable); err != nil {
			return err
		}

		claimed, err = r.getWith(ctx, tx, id)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrNoJobAvailable) {
			return domain.IngestionJob{}, domain.ErrNoJobAvailable
		}
		return domain.IngestionJob{}, fmt.Errorf("claim job: %w", err)
	}
	return claimed, nil
}

// Complete marks a processing job completed. The claim token must still match;
// otherwise the job was recovered and re-claimed and domain.ErrNotFound is returned.
func (r *JobRepository) Complete(ctx context.Context, id int64, token string, now time.Time) error {
	query, args, err := r.db.sb.Update("ingestion_jobs").
		Set("status", string(domain.JobCompleted)).
		Set("finished_at", toMillis(now)).
		Set("updated_at", toMillis(now)).
		Set("claim_token", nil).
		Where(sq.Eq{"id": id, "status": string(domain.JobProcessing), "claim_token": token}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build complete: %w", err)
	}
	res, err := r.db.db.ExecContext(ctx, query, args...)
	if err := execRequireRows(res, err, fmt.Errorf("processing job %d: %w", id, domain.ErrNotFound)); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

// Fail records an error on a processing job: back to pending while retries
// remain, otherwise failed. The returned job is read in the same transaction,
// so a concurrent re-claim cannot leak into the result.
func (r *JobRepository) Fail(ctx context.Context, id int64, token, lastError string, maxRetries int, now time.Time) (domain.IngestionJob, error) {
	query, args, err := r.failUpdate(lastError, maxRetries, now).
		Where(sq.Eq{"id": id, "status": string(domain.JobProcessing), "claim_token": token}).
		ToSql()
	if err != nil {
		return domain.IngestionJob{}, fmt.Errorf("build fail: %w", err)
	}
	var failed domain.IngestionJob
	err = r.db.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err := execRequireRows(res, err, fmt.Errorf("processing job %d: %w", id, domain.ErrNotFound)); err != nil {
			return err
		}
		failed, err = r.getWith(ctx, tx, id)
		return err
	})
	if err != nil {
		return domain.IngestionJob{}, fmt.Errorf("fail job: %w", err)
	}
	return failed, nil
}

// ResetStuck returns processing jobs started before cutoff to pending (or
// failed once retries are exhausted) and reports the affected jobs.
func (r *JobRepository) ResetStuck(ctx context.Context, cutoff time.Time, maxRetries int, now time.Time) ([]domain.IngestionJob, error) {
	var reset []domain.IngestionJob
	err := r.db.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := r.db.lockQueue(ctx, tx); err != nil {
			return err
		}

		pickQuery, args, err := r.db.sb.Select("id").
			From("ingestion_jobs").
			Where(sq.Eq{"status": string(domain.JobProcessing)}).
			Where(sq.Lt{"started_at": toMillis(cutoff)}).
			OrderBy("id").
			ToSql()
		if err != nil {
			return fmt.Errorf("build stuck query: %w", err)
		}
		var ids []int64
		if err := tx.SelectContext(ctx, &ids, pickQuery, args...); err != nil {
			return fmt.Errorf("select stuck jobs: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		updQuery, args, err := r.failUpdate(stuckJobError, maxRetries, now).
			Where(sq.Eq{"id": ids, "status": string(domain.JobProcessing)}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build stuck reset: %w", err)
		}
		if _, err := tx.ExecContext(ctx, updQuery, args...); err != nil {
			return fmt.Errorf("reset stuck jobs: %w", err)
		}

		for _, id := range ids {
			job, err := r.getWith(ctx, tx, id)
			if err != nil {
				return err
			}
			reset = append(reset, job)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("recover stuck jobs: %w", err)
	}
	return reset, nil
}

// SetPriority changes a job's priority; negative values pause it.
func (r *JobRepository) SetPriority(ctx context.Context, id int64, priority int) error {
	query, args, err := r.db.sb.Update("ingestion_jobs").
		Set("priority", priority).
		Set("updated_at", toMillis(time.Now())).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build set priority: %w", err)
	}
	res, err := r.db.db.ExecContext(ctx, query, args...)
	if err := execRequireRows(res, err, fmt.Errorf("job %d: %w", id, domain.ErrNotFound)); err != nil {
		return fmt.Errorf("set priority: %w", err)
	}
	return nil
}

// CountByStatus returns job counts per status and the number of paused pending jobs.
func (r *JobRepository) CountByStatus(ctx context.Context) (map[domain.JobStatus]int, int, error) {
	query, args, err := r.db.sb.Select("status", "COUNT(*) AS n").
		From("ingestion_jobs").
		GroupBy("status").
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build status counts: %w", err)
	}
	var rows []struct {
		Status string `db:"status"`
		N      int    `db:"n"`
	}
	if err := r.db.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}
	counts := make(map[domain.JobStatus]int, len(rows))
	for _, row := range rows {
		counts[domain.JobStatus(row.Status)] = row.N
	}

	pausedQuery, args, err := r.db.sb.Select("COUNT(*)").
		From("ingestion_jobs").
		Where(sq.Eq{"status": string(domain.JobPending)}).
		Where(sq.Lt{"priority": 0}).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build paused count: %w", err)
	}
	var paused int
	if err := r.db.db.GetContext(ctx, &paused, pausedQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count paused jobs: %w", err)
	}
	return counts, paused, nil
}

func (r *JobRepository) failUpdate(lastError string, maxRetries int, now time.Time) sq.UpdateBuilder {
	return r.db.sb.Update("ingestion_jobs").
		Set("retry_count", sq.Expr("retry_count + 1")).
		Set("last_error", lastError).
		Set("status", sq.Expr("CASE WHEN retry_count + 1 < ? THEN ? ELSE ? END",
			maxRetries, string(domain.JobPending), string(domain.JobFailed))).
		Set("finished_at", sq.Expr("CASE WHEN retry_count + 1 < ? THEN NULL ELSE CAST(? AS BIGINT) END",
			maxRetries, toMillis(now))).
		Set("started_at", nil).
		Set("claim_token", nil).
		Set("updated_at", toMillis(now))
}

func (r *JobRepository) activeFor(ctx context.Context, businessID int64) (domain.IngestionJob, error) {
	query, args, err := r.db.sb.Select(jobColumns...).
		From("ingestion_jobs").
		Where(sq.Eq{"business_id": businessID, "status": []string{string(domain.JobPending), string(domain.JobProcessing)}}).
		ToSql()
	if err != nil {
		return domain.IngestionJob{}, fmt.Errorf("build active job query: %w", err)
	}
	var row jobRow
	if err := r.db.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.IngestionJob{}, fmt.Errorf("active job for business %d: %w", businessID, domain.ErrNotFound)
		}
		return domain.IngestionJob{}, err
	}
	return row.toDomain(), nil
}

func (r *JobRepository) getWith(ctx context.Context, q sqlx.QueryerContext, id int64) (domain.IngestionJob, error) {
	query, args, err := r.db.sb.Select(jobColumns...).From("ingestion_jobs").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.IngestionJob{}, fmt.Errorf("build get job: %w", err)
	}
	var row jobRow
	if err := sqlx.GetContext(ctx, q, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.IngestionJob{}, fmt.Errorf("job %d: %w", id, domain.ErrNotFound)
		}
		return domain.IngestionJob{}, fmt.Errorf("get job %d: %w", id, err)
	}
	return row.toDomain(), nil
}
