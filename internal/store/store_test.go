package store_test

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/sketchforge/internal/config"
	"github.com/kiranshivaraju/sketchforge/internal/store"
	"github.com/kiranshivaraju/sketchforge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("sketchforge_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, store.RunMigrations(connStr, migrationsDir()))
	// Second run is a no-op.
	require.NoError(t, store.RunMigrations(connStr, migrationsDir()))

	pool, err := store.Connect(ctx, config.DatabaseConfig{URL: connStr, MaxOpenConns: 5, MaxIdleConns: 1, ConnMaxLifetime: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

var base = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func sketchJob(id, user, story string, created time.Time) *models.SketchGenerationJob {
	return &models.SketchGenerationJob{
		ID:        id,
		StoryID:   story,
		UserID:    user,
		Status:    models.SketchStatusPending,
		Style:     "ink",
		Variants:  1,
		CreatedAt: created,
	}
}

// backends runs fn against every Store implementation. The Postgres variant
// is skipped in short mode.
func backends(t *testing.T, fn func(t *testing.T, s store.Store)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, store.NewMemoryStore())
	})
	t.Run("postgres", func(t *testing.T) {
		if testing.Short() {
			t.Skip("skipping integration test")
		}
		fn(t, store.NewPostgresStore(setupTestDB(t)))
	})
}

func TestSketchJob_CreateGetSave(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		require.NoError(t, s.Ping(ctx))

		job := sketchJob("sk-1", "u-1", "st-1", base)
		require.NoError(t, s.CreateSketchJob(ctx, job))
		assert.ErrorIs(t, s.CreateSketchJob(ctx, job), store.ErrDuplicateKey)

		got, err := s.GetSketchJob(ctx, "sk-1")
		require.NoError(t, err)
		assert.Equal(t, models.SketchStatusPending, got.Status)
		assert.Nil(t, got.StartedAt)

		started := base.Add(time.Second)
		done := base.Add(5 * time.Second)
		msg := "provider timeout"
		got.Status = models.SketchStatusFailed
		got.StartedAt = &started
		got.CompletedAt = &done
		got.Error = &msg
		got.Metadata = models.SketchMetadata{Provider: "mock", Cost: 0.04, ProcessingTimeMs: 4000, Attempts: 3}
		require.NoError(t, s.SaveSketchJob(ctx, got))

		again, err := s.GetSketchJob(ctx, "sk-1")
		require.NoError(t, err)
		assert.Equal(t, models.SketchStatusFailed, again.Status)
		require.NotNil(t, again.Error)
		assert.Equal(t, msg, *again.Error)
		assert.True(t, done.Equal(*again.CompletedAt))
		assert.Equal(t, 3, again.Metadata.Attempts)
		assert.InDelta(t, 0.04, again.Metadata.Cost, 1e-9)
	})
}

func TestSketchJob_NotFound(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		_, err := s.GetSketchJob(ctx, "missing")
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.ErrorIs(t, s.SaveSketchJob(ctx, sketchJob("missing", "u", "s", base)), store.ErrNotFound)
	})
}

func TestListSketchJobs_FilterAndOrder(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		require.NoError(t, s.CreateSketchJob(ctx, sketchJob("a", "u-1", "st-1", base)))
		require.NoError(t, s.CreateSketchJob(ctx, sketchJob("b", "u-1", "st-2", base.Add(time.Minute))))
		require.NoError(t, s.CreateSketchJob(ctx, sketchJob("c", "u-2", "st-1", base.Add(2*time.Minute))))

		byUser, err := s.ListSketchJobs(ctx, store.SketchJobFilter{UserID: "u-1"})
		require.NoError(t, err)
		require.Len(t, byUser, 2)
		assert.Equal(t, "b", byUser[0].ID)
		assert.Equal(t, "a", byUser[1].ID)

		byStory, err := s.ListSketchJobs(ctx, store.SketchJobFilter{StoryID: "st-1", Limit: 1})
		require.NoError(t, err)
		require.Len(t, byStory, 1)
		assert.Equal(t, "c", byStory[0].ID)

		recent, err := s.ListSketchJobs(ctx, store.SketchJobFilter{CreatedAfter: base.Add(30 * time.Second)})
		require.NoError(t, err)
		assert.Len(t, recent, 2)

		none, err := s.ListSketchJobs(ctx, store.SketchJobFilter{Status: models.SketchStatusCompleted})
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func TestDeleteSketchJobsCompletedBefore(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		old := sketchJob("old", "u", "s", base)
		oldDone := base.Add(time.Minute)
		old.Status = models.SketchStatusCompleted
		old.CompletedAt = &oldDone

		pending := sketchJob("pending", "u", "s", base)

		fresh := sketchJob("fresh", "u", "s", base)
		freshDone := base.Add(48 * time.Hour)
		fresh.Status = models.SketchStatusFailed
		fresh.CompletedAt = &freshDone

		for _, j := range []*models.SketchGenerationJob{old, pending, fresh} {
			require.NoError(t, s.CreateSketchJob(ctx, j))
		}

		n, err := s.DeleteSketchJobsCompletedBefore(ctx, base.Add(24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		_, err = s.GetSketchJob(ctx, "old")
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = s.GetSketchJob(ctx, "pending")
		assert.NoError(t, err)
	})
}

func TestQuota_Upsert(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		_, err := s.GetQuota(ctx, "u-1")
		assert.ErrorIs(t, err, store.ErrNotFound)

		q := &models.UserQuota{UserID: "u-1", DailyLimit: 10, MonthlyLimit: 100, LastReset: base}
		require.NoError(t, s.SaveQuota(ctx, q))

		q.DailyUsed = 3
		q.MonthlyUsed = 7
		require.NoError(t, s.SaveQuota(ctx, q))

		got, err := s.GetQuota(ctx, "u-1")
		require.NoError(t, err)
		assert.Equal(t, 3, got.DailyUsed)
		assert.Equal(t, 7, got.MonthlyUsed)
		assert.True(t, base.Equal(got.LastReset))
	})
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	job := sketchJob("sk-1", "u", "s", base)
	require.NoError(t, s.CreateSketchJob(ctx, job))

	job.Status = models.SketchStatusCompleted
	got, err := s.GetSketchJob(ctx, "sk-1")
	require.NoError(t, err)
	assert.Equal(t, models.SketchStatusPending, got.Status)

	got.Status = models.SketchStatusFailed
	again, _ := s.GetSketchJob(ctx, "sk-1")
	assert.Equal(t, models.SketchStatusPending, again.Status)
}

func TestRunMigrations_MissingDir(t *testing.T) {
	err := store.RunMigrations("postgres://u:p@127.0.0.1:1/db?sslmode=disable", filepath.Join(t.TempDir(), "missing"))
	assert.ErrorContains(t, err, "init migrations")
}
