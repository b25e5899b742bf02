// Package importer ingests batches of raw reviews: it resolves each record to a
// business, filters duplicates, stores the rest and refreshes the aggregates of
// every business it touched.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"ReviewRanker/internal/dedup"
	"ReviewRanker/internal/domain"
	"ReviewRanker/internal/identity"
	"ReviewRanker/internal/metrics"
	"ReviewRanker/internal/ports"
)

// Config tunes batching and failure handling.
type Config struct {
	BatchSize            int
	BatchDelay           time.Duration
	FailureRateThreshold float64
	ErrorSampleSize      int
	Matching             identity.Options
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		BatchSize:            500,
		FailureRateThreshold: 0.2,
		ErrorSampleSize:      10,
		Matching:             identity.DefaultOptions(),
	}
}

// Deps groups the collaborators of the importer. Notifier and Metrics are optional.
type Deps struct {
	Businesses ports.BusinessRepository
	Reviews    ports.ReviewRepository
	Detector   *dedup.Detector
	Notifier   ports.Notifier
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	Clock      func() time.Time
}

// Result summarizes one Import call.
type Result struct {
	BatchID            string   `json:"batchId"`
	Processed          int      `json:"processed"`
	Created            int      `json:"created"`
	Duplicates         int      `json:"duplicates"`
	BusinessNotFound   int      `json:"businessNotFound"`
	Errors             int      `json:"errors"`
	Superseded         int      `json:"superseded"`
	ErrorSamples       []string `json:"errorSamples,omitempty"`
	AffectedBusinesses []int64  `json:"affectedBusinesses,omitempty"`
	NeedsInspection    bool     `json:"needsInspection"`
}

// FailureRate is the share of processed records that failed.
func (r Result) FailureRate() float64 {
	if r.Processed == 0 {
		return 0
	}
	return float64(r.Errors) / float64(r.Processed)
}

// Importer is safe for concurrent use; imports touching the same business are serialized.
type Importer struct {
	businesses ports.BusinessRepository
	reviews    ports.ReviewRepository
	detector   *dedup.Detector
	notifier   ports.Notifier
	metrics    *metrics.Metrics
	logger     *slog.Logger
	clock      func() time.Time
	cfg        Config
	locks      *businessLocks
}

func New(deps Deps, cfg Config) *Importer {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FailureRateThreshold <= 0 {
		cfg.FailureRateThreshold = def.FailureRateThreshold
	}
	if cfg.ErrorSampleSize <= 0 {
		cfg.ErrorSampleSize = def.ErrorSampleSize
	}
	detector := deps.Detector
	if detector == nil {
		detector = dedup.NewDetector(dedup.DefaultWeights(), dedup.DefaultAuthority())
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Importer{
		businesses: deps.Businesses,
		reviews:    deps.Reviews,
		detector:   detector,
		notifier:   deps.Notifier,
		metrics:    deps.Metrics,
		logger:     logger.With("component", "importer"),
		clock:      clock,
		cfg:        cfg,
		locks:      newBusinessLocks(),
	}
}

// batch is the mutable state of one Import call.
type batch struct {
	result   Result
	affected map[int64]struct{}
}

func (b *batch) sample(limit int, rec domain.ReviewRecord, err error) {
	b.result.Errors++
	if len(b.result.ErrorSamples) < limit {
		b.result.ErrorSamples = append(b.result.ErrorSamples, fmt.Sprintf("%s/%s: %v", rec.Source, rec.SourceReviewID, err))
	}
}

// Import processes the records in chunks. Per-record failures are counted and
// never abort the batch; only context cancellation stops it early.
func (im *Importer) Import(ctx context.Context, records []domain.ReviewRecord) (Result, error) {
	b := &batch{
		result:   Result{BatchID: uuid.NewString()},
		affected: make(map[int64]struct{}),
	}
	logger := im.logger.With("batch_id", b.result.BatchID)
	started := time.Now()

	var runErr error
	for start := 0; start < len(records); start += im.cfg.BatchSize {
		if start > 0 && im.cfg.BatchDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(im.cfg.BatchDelay):
			}
		}
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		end := min(start+im.cfg.BatchSize, len(records))
		im.importChunk(ctx, records[start:end], b)
	}

	im.recount(context.WithoutCancel(ctx), b, logger)
	im.finish(ctx, b, logger, time.Since(started))
	return b.result, runErr
}

func (im *Importer) importChunk(ctx context.Context, chunk []domain.ReviewRecord, b *batch) {
	candidates, err := im.businesses.FindCandidates(ctx, lookupFor(chunk))
	if err != nil {
		im.failChunk(chunk, b, fmt.Errorf("load businesses: %w", err))
		return
	}
	catalog := identity.NewCatalog(candidates, im.cfg.Matching)

	keys := make([]domain.ReviewKey, 0, len(chunk))
	for _, rec := range chunk {
		keys = append(keys, rec.Key())
	}
	existing, err := im.reviews.ExistingKeys(ctx, keys)
	if err != nil {
		im.failChunk(chunk, b, fmt.Errorf("check review keys: %w", err))
		return
	}

	// Records are grouped per business; unresolved ones need no lock.
	groups := make(map[int64][]domain.ReviewRecord)
	var ids []int64
	for _, rec := range chunk {
		m, ok := catalog.Resolve(rec.Hints())
		if !ok {
			if ctx.Err() != nil {
				return
			}
			b.result.Processed++
			if err := validate(rec); err != nil {
				im.recordFailed(b, rec, err)
				continue
			}
			b.result.BusinessNotFound++
			continue
		}
		if _, seen := groups[m.Business.ID]; !seen {
			ids = append(ids, m.Business.ID)
		}
		groups[m.Business.ID] = append(groups[m.Business.ID], rec)
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		im.importBusiness(ctx, id, groups[id], existing, b)
	}
}

// importBusiness holds the business lock from loading its stored reviews until
// the last insert, so dedup always sees reviews committed by concurrent imports.
func (im *Importer) importBusiness(
	ctx context.Context,
	businessID int64,
	records []domain.ReviewRecord,
	existing map[domain.ReviewKey]bool,
	b *batch,
) {
	unlock := im.locks.Lock(businessID)
	defer unlock()

	stored, err := im.reviews.ListByBusinesses(ctx, []int64{businessID})
	if err != nil {
		im.failChunk(records, b, fmt.Errorf("load stored reviews: %w", err))
		return
	}
	reviews := stored[businessID]

	for _, rec := range records {
		if ctx.Err() != nil {
			return
		}
		b.result.Processed++
		if err := im.importRecord(ctx, rec, businessID, existing, &reviews, b); err != nil {
			im.recordFailed(b, rec, err)
		}
	}
}

func (im *Importer) recordFailed(b *batch, rec domain.ReviewRecord, err error) {
	b.sample(im.cfg.ErrorSampleSize, rec, err)
	im.logger.Debug("record failed", "source", rec.Source, "source_id", rec.SourceReviewID, "error", err)
}

// importRecord must run under the business lock.
func (im *Importer) importRecord(
	ctx context.Context,
	rec domain.ReviewRecord,
	businessID int64,
	existing map[domain.ReviewKey]bool,
	stored *[]domain.Review,
	b *batch,
) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", domain.ErrPersistence, r)
		}
	}()

	if err := validate(rec); err != nil {
		return err
	}

	candidate := rec.ToReview(businessID, im.clock())
	decision := im.detector.Decide(candidate, existing[rec.Key()], *stored)
	if decision.Outcome == dedup.Duplicate {
		b.result.Duplicates++
		return nil
	}

	inserted, err := im.reviews.Insert(ctx, candidate)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateReview) {
			existing[rec.Key()] = true
			b.result.Duplicates++
			return nil
		}
		return err
	}
	existing[rec.Key()] = true
	*stored = append(*stored, inserted)
	b.result.Created++
	b.affected[businessID] = struct{}{}

	if decision.Outcome == dedup.Supersedes {
		old := decision.Match
		if err := im.reviews.FlagDuplicate(ctx, old.ID, inserted.ID); err != nil {
			im.logger.Error("flag superseded review", "review_id", old.ID, "duplicate_of", inserted.ID, "error", err)
			return nil
		}
		for i := range *stored {
			if (*stored)[i].ID == old.ID {
				(*stored)[i].Displayed = false
				(*stored)[i].Flagged = true
			}
		}
		b.result.Superseded++
	}
	return nil
}

func (im *Importer) failChunk(chunk []domain.ReviewRecord, b *batch, err error) {
	im.logger.Error("chunk failed", "records", len(chunk), "error", err)
	for _, rec := range chunk {
		b.result.Processed++
		b.sample(im.cfg.ErrorSampleSize, rec, err)
	}
}

func (im *Importer) recount(ctx context.Context, b *batch, logger *slog.Logger) {
	ids := make([]int64, 0, len(b.affected))
	for id := range b.affected {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	b.result.AffectedBusinesses = ids

	for _, id := range ids {
		unlock := im.locks.Lock(id)
		agg, err := im.businesses.RecountAggregates(ctx, id)
		unlock()
		if err != nil {
			logger.Error("recount aggregates", "business_id", id, "error", err)
			continue
		}
		logger.Debug("aggregates refreshed", "business_id", id, "review_count", agg.ReviewCount, "rating", agg.Rating)
	}
}

func (im *Importer) finish(ctx context.Context, b *batch, logger *slog.Logger, elapsed time.Duration) {
	res := &b.result
	res.NeedsInspection = res.Processed > 0 && res.FailureRate() > im.cfg.FailureRateThreshold

	im.metrics.ImportOutcome("created", res.Created)
	im.metrics.ImportOutcome("duplicate", res.Duplicates)
	im.metrics.ImportOutcome("business_not_found", res.BusinessNotFound)
	im.metrics.ImportOutcome("error", res.Errors)
	im.metrics.ImportOutcome("superseded", res.Superseded)
	im.metrics.ImportBatch(res.NeedsInspection)

	attrs := []any{
		"processed", res.Processed,
		"created", res.Created,
		"duplicates", res.Duplicates,
		"business_not_found", res.BusinessNotFound,
		"errors", res.Errors,
		"superseded", res.Superseded,
		"duration", elapsed,
	}
	if !res.NeedsInspection {
		logger.Info("import batch finished", attrs...)
		return
	}

	logger.Error("import batch needs inspection", append(attrs, "failure_rate", res.FailureRate())...)
	if im.notifier == nil {
		return
	}
	details := map[string]string{
		"batch":        res.BatchID,
		"processed":    strconv.Itoa(res.Processed),
		"errors":       strconv.Itoa(res.Errors),
		"failure_rate": strconv.FormatFloat(res.FailureRate(), 'f', 3, 64),
	}
	if len(res.ErrorSamples) > 0 {
		details["first_error"] = res.ErrorSamples[0]
	}
	if err := im.notifier.Alert(context.WithoutCancel(ctx), ports.Alert{Title: "Review import needs inspection", Details: details}); err != nil {
		logger.Warn("operator alert failed", "error", err)
	}
}

func validate(rec domain.ReviewRecord) error {
	switch {
	case rec.SourceReviewID == "":
		return fmt.Errorf("%w: missing source id", domain.ErrConfiguration)
	case rec.Source == "":
		return fmt.Errorf("%w: missing source", domain.ErrConfiguration)
	case rec.Rating < 1 || rec.Rating > 5:
		return fmt.Errorf("%w: rating %d out of range", domain.ErrConfiguration, rec.Rating)
	}
	return nil
}

// lookupFor collects every identity hint of the chunk so only plausible
// businesses are loaded.
func lookupFor(chunk []domain.ReviewRecord) ports.BusinessLookup {
	var lookup ports.BusinessLookup
	places := make(map[string]bool)
	ids := make(map[int64]bool)
	phones := make(map[string]bool)
	names := make(map[string]bool)
	tails := make(map[string]bool)

	for _, rec := range chunk {
		if rec.PlaceID != "" && !places[rec.PlaceID] {
			places[rec.PlaceID] = true
			lookup.PlaceIDs = append(lookup.PlaceIDs, rec.PlaceID)
		}
		if rec.BusinessID > 0 && !ids[rec.BusinessID] {
			ids[rec.BusinessID] = true
			lookup.BusinessIDs = append(lookup.BusinessIDs, rec.BusinessID)
		}
		if digits := identity.NormalizePhone(rec.Phone); digits != "" && !phones[digits] {
			phones[digits] = true
			lookup.Phones = append(lookup.Phones, digits)
		}
		normalized := identity.NormalizeName(rec.BusinessName)
		if key := identity.NameKey(normalized); key != "" && !names[key] {
			names[key] = true
			lookup.NameKeys = append(lookup.NameKeys, key)
		}
		if key := identity.NameTailKey(normalized); key != "" && !tails[key] {
			tails[key] = true
			lookup.NameTailKeys = append(lookup.NameTailKeys, key)
		}
	}
	return lookup
}
