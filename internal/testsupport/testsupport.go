// Package testsupport provides shared fixtures for package tests.
package testsupport

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ReviewRanker/internal/config"
	"ReviewRanker/internal/domain"
	"ReviewRanker/internal/infrastructure/storage"
)

// Store bundles a migrated SQLite database with its repositories.
type Store struct {
	DB         *storage.DB
	Businesses *storage.BusinessRepository
	Reviews    *storage.ReviewRepository
	Jobs       *storage.JobRepository
	Rankings   *storage.RankingRepository
}

// OpenStore creates a fresh SQLite database under t.TempDir.
func OpenStore(t testing.TB) *Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "reviewranker.db")
	db, err := storage.Open(context.Background(), config.DatabaseConfig{Driver: "sqlite", DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return &Store{
		DB:         db,
		Businesses: storage.NewBusinessRepository(db),
		Reviews:    storage.NewReviewRepository(db),
		Jobs:       storage.NewJobRepository(db),
		Rankings:   storage.NewRankingRepository(db),
	}
}

// CreateBusiness inserts an active business with the given overrides applied.
func (s *Store) CreateBusiness(t testing.TB, b domain.Business) domain.Business {
	t.Helper()
	b.Active = true
	if b.Category == "" {
		b.Category = "roofing"
	}
	if b.City == "" {
		b.City = "austin"
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = Epoch
	}
	created, err := s.Businesses.Create(context.Background(), b)
	require.NoError(t, err)
	return created
}

// Epoch is a fixed reference time for deterministic tests.
var Epoch = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
