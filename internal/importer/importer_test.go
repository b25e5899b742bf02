package importer_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ReviewRanker/internal/domain"
	"ReviewRanker/internal/importer"
	"ReviewRanker/internal/ports"
	"ReviewRanker/internal/testsupport"
)

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []ports.Alert
}

func (n *recordingNotifier) Alert(_ context.Context, a ports.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
	return nil
}

func newImporter(t *testing.T, store *testsupport.Store, cfg importer.Config, notifier ports.Notifier) *importer.Importer {
	t.Helper()
	return importer.New(importer.Deps{
		Businesses: store.Businesses,
		Reviews:    store.Reviews,
		Notifier:   notifier,
		Logger:     testsupport.DiscardLogger(),
		Clock:      func() time.Time { return testsupport.Epoch },
	}, cfg)
}

func record(id string, placeID string) domain.ReviewRecord {
	return domain.ReviewRecord{
		SourceReviewID: id,
		Source:         domain.SourceGoogle,
		PlaceID:        placeID,
		AuthorName:     "Jane",
		Rating:         5,
		Comment:        "Great service",
		CreatedAt:      testsupport.Epoch.Add(-time.Hour),
	}
}

func TestImportCreatesAndIsIdempotent(t *testing.T) {
	store := testsupport.OpenStore(t)
	ctx := context.Background()
	biz := store.CreateBusiness(t, domain.Business{Name: "Business X", PlaceID: "place-x"})
	imp := newImporter(t, store, importer.DefaultConfig(), nil)

	res, err := imp.Import(ctx, []domain.ReviewRecord{record("r1", "place-x")})
	require.NoError(t, err)
	assert.NotEmpty(t, res.BatchID)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Created)
	assert.Zero(t, res.Duplicates)
	assert.Zero(t, res.BusinessNotFound)
	assert.Equal(t, []int64{biz.ID}, res.AffectedBusinesses)

	got, err := store.Businesses.Get(ctx, biz.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ReviewCount)
	assert.Equal(t, 5.0, got.Rating)

	again, err := imp.Import(ctx, []domain.ReviewRecord{record("r1", "place-x")})
	require.NoError(t, err)
	assert.Zero(t, again.Created)
	assert.Equal(t, 1, again.Duplicates)
	assert.NotEqual(t, res.BatchID, again.BatchID)

	got, err = store.Businesses.Get(ctx, biz.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ReviewCount)
}

func TestImportFlagsNearDuplicateContent(t *testing.T) {
	store := testsupport.OpenStore(t)
	ctx := context.Background()
	store.CreateBusiness(t, domain.Business{Name: "Business X", PlaceID: "place-x"})
	imp := newImporter(t, store, importer.DefaultConfig(), nil)

	first := record("r1", "place-x")
	first.Comment = "Fixed our roof quickly and cleaned up after"
	second := record("r2", "place-x")
	second.Comment = "Fixed our roof quickly and cleaned up after!"
	second.CreatedAt = first.CreatedAt.Add(3 * time.Hour)

	res, err := imp.Import(ctx, []domain.ReviewRecord{first, second})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Duplicates)
}

func TestImportCountsUnresolvedAndMalformedRecords(t *testing.T) {
	store := testsupport.OpenStore(t)
	ctx := context.Background()
	store.CreateBusiness(t, domain.Business{Name: "Business X", PlaceID: "place-x"})
	notifier := &recordingNotifier{}
	imp := newImporter(t, store, importer.DefaultConfig(), notifier)

	bad := record("r2", "place-x")
	bad.Rating = 9
	res, err := imp.Import(ctx, []domain.ReviewRecord{
		record("r1", "place-x"),
		record("r3", "nowhere"),
		bad,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.BusinessNotFound)
	assert.Equal(t, 1, res.Errors)
	require.Len(t, res.ErrorSamples, 1)
	assert.Contains(t, res.ErrorSamples[0], "rating 9 out of range")
	assert.True(t, res.NeedsInspection, "one failure in three is above the 20% threshold")
	require.Len(t, notifier.alerts, 1)
	assert.Equal(t, res.BatchID, notifier.alerts[0].Details["batch"])
}

func TestImportResolvesByPhoneAndFuzzyName(t *testing.T) {
	store := testsupport.OpenStore(t)
	ctx := context.Background()
	byPhone := store.CreateBusiness(t, domain.Business{Name: "Lone Star Plumbing", Phone: "(512) 555-0199"})
	byName := store.CreateBusiness(t, domain.Business{Name: "Hill Country Roofing LLC"})
	imp := newImporter(t, store, importer.DefaultConfig(), nil)

	phone := record("p1", "")
	phone.Phone = "512.555.0199"
	name := record("n1", "")
	name.BusinessName = "Hill Country Roofing"
	name.Comment = "Solid work"

	res, err := imp.Import(ctx, []domain.ReviewRecord{phone, name})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, []int64{byPhone.ID, byName.ID}, res.AffectedBusinesses)
}

func TestImportSupersedesLowerAuthorityCopy(t *testing.T) {
	store := testsupport.OpenStore(t)
	ctx := context.Background()
	biz := store.CreateBusiness(t, domain.Business{Name: "Business X", PlaceID: "place-x"})
	imp := newImporter(t, store, importer.DefaultConfig(), nil)

	manual := record("m1", "place-x")
	manual.Source = domain.SourceManual
	manual.Rating = 4
	_, err := imp.Import(ctx, []domain.ReviewRecord{manual})
	require.NoError(t, err)

	native := record("n1", "place-x")
	native.Source = domain.SourceNative
	native.Rating = 4
	res, err := imp.Import(ctx, []domain.ReviewRecord{native})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Superseded)

	reviews, err := store.Reviews.ListByBusinesses(ctx, []int64{biz.ID})
	require.NoError(t, err)
	require.Len(t, reviews[biz.ID], 2)
	old, current := reviews[biz.ID][0], reviews[biz.ID][1]
	assert.False(t, old.Displayed)
	assert.True(t, old.Flagged)
	require.NotNil(t, old.DuplicateOf)
	assert.Equal(t, current.ID, *old.DuplicateOf)
	assert.True(t, current.Displayed)

	got, err := store.Businesses.Get(ctx, biz.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ReviewCount, "only the displayed copy counts")

	lower := record("g1", "place-x")
	lower.Rating = 4
	res, err = imp.Import(ctx, []domain.ReviewRecord{lower})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Duplicates, "lower authority copy is rejected")
}

func TestImportChunksSeeEarlierChunks(t *testing.T) {
	store := testsupport.OpenStore(t)
	ctx := context.Background()
	store.CreateBusiness(t, domain.Business{Name: "Business X", PlaceID: "place-x"})
	cfg := importer.DefaultConfig()
	cfg.BatchSize = 2
	cfg.BatchDelay = time.Millisecond
	imp := newImporter(t, store, cfg, nil)

	records := []domain.ReviewRecord{record("a", "place-x"), record("b", "place-x"), record("a", "place-x")}
	records[1].AuthorName = "Bob"
	records[1].Comment = "Completely different experience overall"

	res, err := imp.Import(ctx, records)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 1, res.Duplicates)
}

func TestImportStopsOnCancelledContext(t *testing.T) {
	store := testsupport.OpenStore(t)
	store.CreateBusiness(t, domain.Business{Name: "Business X", PlaceID: "place-x"})
	imp := newImporter(t, store, importer.DefaultConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := imp.Import(ctx, []domain.ReviewRecord{record("r1", "place-x")})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, res.Processed)
}

// slowSnapshotReviews lingers after loading stored reviews so two imports can
// overlap between reading the snapshot and inserting.
type slowSnapshotReviews struct {
	ports.ReviewRepository
	mu    sync.Mutex
	calls int
	both  chan struct{}
}

func (r *slowSnapshotReviews) ListByBusinesses(ctx context.Context, ids []int64) (map[int64][]domain.Review, error) {
	out, err := r.ReviewRepository.ListByBusinesses(ctx, ids)
	r.mu.Lock()
	r.calls++
	if r.calls == 2 {
		close(r.both)
	}
	r.mu.Unlock()
	select {
	case <-r.both:
	case <-time.After(200 * time.Millisecond):
	}
	return out, err
}

func TestConcurrentImportsToSameBusinessDedupeContent(t *testing.T) {
	store := testsupport.OpenStore(t)
	ctx := context.Background()
	biz := store.CreateBusiness(t, domain.Business{Name: "Business X", PlaceID: "place-x"})
	imp := importer.New(importer.Deps{
		Businesses: store.Businesses,
		Reviews:    &slowSnapshotReviews{ReviewRepository: store.Reviews, both: make(chan struct{})},
		Logger:     testsupport.DiscardLogger(),
		Clock:      func() time.Time { return testsupport.Epoch },
	}, importer.DefaultConfig())

	var wg sync.WaitGroup
	results := make([]importer.Result, 2)
	for i, id := range []string{"g1", "g2"} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			res, err := imp.Import(ctx, []domain.ReviewRecord{record(id, "place-x")})
			assert.NoError(t, err)
			results[i] = res
		}(i, id)
	}
	wg.Wait()

	assert.Equal(t, 1, results[0].Created+results[1].Created)
	assert.Equal(t, 1, results[0].Duplicates+results[1].Duplicates)

	got, err := store.Businesses.Get(ctx, biz.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ReviewCount)
}

func TestImportFindsNameWithTypoNearStart(t *testing.T) {
	store := testsupport.OpenStore(t)
	ctx := context.Background()
	biz := store.CreateBusiness(t, domain.Business{Name: "Acme Roofing"})
	imp := newImporter(t, store, importer.DefaultConfig(), nil)

	rec := record("t1", "")
	rec.BusinessName = "Acne Roofing"
	res, err := imp.Import(ctx, []domain.ReviewRecord{rec})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Zero(t, res.BusinessNotFound)
	assert.Equal(t, []int64{biz.ID}, res.AffectedBusinesses)
}
