package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ReviewRanker/internal/config"
	"ReviewRanker/internal/domain"
	"ReviewRanker/internal/infrastructure/storage"
)

type cliTestEnv struct {
	baseDir    string
	configPath string
	dsn        string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	base := t.TempDir()
	env := &cliTestEnv{
		baseDir:    base,
		configPath: filepath.Join(base, "config.yaml"),
		dsn:        filepath.Join(base, "cli.db"),
	}
	yaml := fmt.Sprintf("database:\n  driver: sqlite\n  dsn: %q\nscheduler:\n  lockFile: %q\nlogging:\n  level: error\n",
		env.dsn, filepath.Join(base, "cli.lock"))
	require.NoError(t, os.WriteFile(env.configPath, []byte(yaml), 0o600))
	return env
}

func (e *cliTestEnv) seedBusiness(t *testing.T, b domain.Business) domain.Business {
	t.Helper()
	db, err := storage.Open(context.Background(), config.DatabaseConfig{Driver: "sqlite", DSN: e.dsn})
	require.NoError(t, err)
	defer db.Close()

	b.Active = true
	created, err := storage.NewBusinessRepository(db).Create(context.Background(), b)
	require.NoError(t, err)
	return created
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestQueueStatusPrintsTSV(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "queue", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Status\tCount")
	assert.Contains(t, out, "pending\t0")
	assert.Contains(t, out, "processing\t0/")
}

func TestQueueEnqueuePauseResume(t *testing.T) {
	env := setupCLITestEnv(t)
	biz := env.seedBusiness(t, domain.Business{Name: "Alpha Roofing", PlaceID: "place-a", Category: "roofing", City: "austin", Tier: domain.TierPro})

	out, err := env.run(t, "queue", "enqueue", fmt.Sprint(biz.ID))
	require.NoError(t, err)
	assert.Contains(t, out, "Enqueued job 1")
	assert.Contains(t, out, "priority 2")

	out, err = env.run(t, "queue", "enqueue", fmt.Sprint(biz.ID))
	require.NoError(t, err)
	assert.Contains(t, out, "already pending")

	_, err = env.run(t, "queue", "pause", "1")
	require.NoError(t, err)
	out, err = env.run(t, "queue", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "paused\t1")
	assert.Contains(t, out, "pending\t0")

	_, err = env.run(t, "queue", "resume", "1", "--priority", "5")
	require.NoError(t, err)
	out, err = env.run(t, "queue", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "pending\t1")

	_, err = env.run(t, "queue", "pause", "abc")
	assert.Error(t, err)
}

func TestImportThenTop(t *testing.T) {
	env := setupCLITestEnv(t)
	env.seedBusiness(t, domain.Business{Name: "Alpha Roofing", PlaceID: "place-a", Category: "roofing", City: "austin"})

	file := filepath.Join(env.baseDir, "reviews.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"records":[
		{"sourceId":"r1","source":"google","placeId":"place-a","author":"Ann","rating":5,"comment":"New roof in two days, spotless cleanup.","createdAt":"2024-02-01T00:00:00Z"},
		{"sourceId":"r2","source":"google","placeId":"place-a","author":"Bob","rating":4,"comment":"Fair quote and quick repair of the gutter.","createdAt":"2024-02-03T00:00:00Z"}
	]}`), 0o600))

	out, err := env.run(t, "import", file)
	require.NoError(t, err)
	assert.Contains(t, out, `"created": 2`)

	out, err = env.run(t, "top", "--category", "roofing", "--city", "austin")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "1\tAlpha Roofing\troofing\taustin\t"), lines[1])
	assert.Contains(t, lines[1], "\t2\t4.5\tnew")
}

func TestReadRecordsAcceptsBothShapes(t *testing.T) {
	dir := t.TempDir()
	bare := filepath.Join(dir, "bare.json")
	wrapped := filepath.Join(dir, "wrapped.json")
	require.NoError(t, os.WriteFile(bare, []byte(` [{"sourceId":"a"}]`), 0o600))
	require.NoError(t, os.WriteFile(wrapped, []byte(`{"records":[{"sourceId":"b"},{"sourceId":"c"}]}`), 0o600))

	got, err := readRecords(bare)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = readRecords(wrapped)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = readRecords(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestTopRowsFormatsTrend(t *testing.T) {
	rows := topRows([]domain.RankingRecord{
		{BusinessID: 3, RankPosition: 1, PreviousPosition: 3, TotalScore: 89.657, AverageRating: 4.6, ReviewsAnalyzed: 25},
	})
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"1", "#3", "", "", "89.66", "25", "4.6", "up +2"}, rows[0])
}

func TestBusinessDeactivateAndActivate(t *testing.T) {
	env := setupCLITestEnv(t)
	biz := env.seedBusiness(t, domain.Business{Name: "Alpha Roofing", PlaceID: "place-a", Category: "roofing", City: "austin"})

	out, err := env.run(t, "business", "deactivate", fmt.Sprint(biz.ID))
	require.NoError(t, err)
	assert.Contains(t, out, fmt.Sprintf("Business %d deactivated", biz.ID))

	out, err = env.run(t, "business", "activate", fmt.Sprint(biz.ID))
	require.NoError(t, err)
	assert.Contains(t, out, "activated")

	_, err = env.run(t, "business", "deactivate", "424242")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
