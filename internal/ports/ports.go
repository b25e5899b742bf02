package ports

import (
	"context"
	"time"

	"ReviewRanker/internal/domain"
)

// ReviewSource pulls raw reviews for a place from the upstream listings provider.
type ReviewSource interface {
	FetchReviews(ctx context.Context, placeID string) ([]domain.ReviewRecord, error)
}

// BusinessLookup narrows the catalog to the businesses a batch can possibly reference.
type BusinessLookup struct {
	PlaceIDs     []string
	BusinessIDs  []int64
	Phones       []string
	NameKeys     []string
	NameTailKeys []string
}

// BusinessRepository reads the catalog and maintains derived aggregates.
type BusinessRepository interface {
	Create(ctx context.Context, business domain.Business) (domain.Business, error)
	Get(ctx context.Context, id int64) (domain.Business, error)
	FindCandidates(ctx context.Context, lookup BusinessLookup) ([]domain.Business, error)
	NeedingRefresh(ctx context.Context, scrapedBefore time.Time, limit int) ([]domain.Business, error)
	MarkScraped(ctx context.Context, id int64, at time.Time) error
	SetActive(ctx context.Context, id int64, active bool) error
	RecountAggregates(ctx context.Context, id int64) (domain.ReviewAggregate, error)
}

// ReviewRepository persists reviews; rows are only ever flagged, never deleted.
type ReviewRepository interface {
	ExistingKeys(ctx context.Context, keys []domain.ReviewKey) (map[domain.ReviewKey]bool, error)
	ListByBusinesses(ctx context.Context, businessIDs []int64) (map[int64][]domain.Review, error)
	Insert(ctx context.Context, review domain.Review) (domain.Review, error)
	FlagDuplicate(ctx context.Context, reviewID, duplicateOf int64) error
	RecentComments(ctx context.Context, businessID int64, limit int) ([]string, error)
}

// JobRepository stores ingestion jobs and performs atomic status transitions.
type JobRepository interface {
	Enqueue(ctx context.Context, job domain.IngestionJob) (domain.IngestionJob, bool, error)
	Get(ctx context.Context, id int64) (domain.IngestionJob, error)
	ClaimNext(ctx context.Context, maxProcessing int, token string, now time.Time) (domain.IngestionJob, error)
	Complete(ctx context.Context, id int64, token string, now time.Time) error
	Fail(ctx context.Context, id int64, token, lastError string, maxRetries int, now time.Time) (domain.IngestionJob, error)
	ResetStuck(ctx context.Context, cutoff time.Time, maxRetries int, now time.Time) ([]domain.IngestionJob, error)
	SetPriority(ctx context.Context, id int64, priority int) error
	CountByStatus(ctx context.Context) (map[domain.JobStatus]int, int, error)
}

// RankingRepository persists ranking records and selects what needs rescoring.
type RankingRepository interface {
	TargetsSince(ctx context.Context, since time.Time) ([]domain.RankTarget, error)
	SaveScore(ctx context.Context, record domain.RankingRecord) error
	Cohort(ctx context.Context, cohort domain.Cohort) ([]domain.RankingRecord, error)
	SavePositions(ctx context.Context, records []domain.RankingRecord) error
	Get(ctx context.Context, businessID int64) (*domain.RankingRecord, error)
	Top(ctx context.Context, category, city string, limit int) ([]domain.RankingRecord, error)
}

// RankingReader is the read side consumed by the API and external UI.
type RankingReader interface {
	BusinessRanking(ctx context.Context, businessID int64) (*domain.RankingRecord, error)
	TopRanked(ctx context.Context, category, city string, limit int) ([]domain.RankingRecord, error)
}

// Analysis is the outcome of the optional content classifier.
type Analysis struct {
	QualityMultiplier float64  `json:"qualityMultiplier"`
	Keywords          []string `json:"keywords"`
}

// Classifier scores review text; absence means a neutral multiplier.
type Classifier interface {
	Analyze(ctx context.Context, text string) (Analysis, error)
}

// Alert is an operator-facing message about pipeline failures.
type Alert struct {
	Title   string
	Details map[string]string
}

// Notifier surfaces exhausted retries and failing batches to operators.
type Notifier interface {
	Alert(ctx context.Context, alert Alert) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
