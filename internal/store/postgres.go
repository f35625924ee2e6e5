package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/sketchforge/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Sketch jobs ---

const sketchJobColumns = `id, story_id, user_id, status, style, variants, created_at, started_at, completed_at, error, metadata`

func (s *PostgresStore) CreateSketchJob(ctx context.Context, job *models.SketchGenerationJob) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sketch_jobs (`+sketchJobColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		job.ID, job.StoryID, job.UserID, job.Status, job.Style, job.Variants,
		job.CreatedAt, job.StartedAt, job.CompletedAt, job.Error, job.Metadata)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create sketch job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSketchJob(ctx context.Context, id string) (*models.SketchGenerationJob, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sketchJobColumns+` FROM sketch_jobs WHERE id = $1`, id)
	j, err := scanSketchJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get sketch job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) SaveSketchJob(ctx context.Context, job *models.SketchGenerationJob) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sketch_jobs
		 SET status = $2, started_at = $3, completed_at = $4, error = $5, metadata = $6
		 WHERE id = $1`,
		job.ID, job.Status, job.StartedAt, job.CompletedAt, job.Error, job.Metadata)
	if err != nil {
		return fmt.Errorf("save sketch job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListSketchJobs(ctx context.Context, filter SketchJobFilter) ([]*models.SketchGenerationJob, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.UserID != "" {
		add("user_id = $%d", filter.UserID)
	}
	if filter.StoryID != "" {
		add("story_id = $%d", filter.StoryID)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if !filter.CreatedAfter.IsZero() {
		add("created_at >= $%d", filter.CreatedAfter)
	}
	if !filter.CompletedAfter.IsZero() {
		add("completed_at >= $%d", filter.CompletedAfter)
	}

	query := `SELECT ` + sketchJobColumns + ` FROM sketch_jobs`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sketch jobs: %w", err)
	}
	defer rows.Close()

	out := make([]*models.SketchGenerationJob, 0)
	for rows.Next() {
		j, err := scanSketchJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sketch job: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteSketchJobsCompletedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM sketch_jobs
		 WHERE status IN ('completed', 'failed', 'cancelled') AND completed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old sketch jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanSketchJob(row pgx.Row) (*models.SketchGenerationJob, error) {
	var j models.SketchGenerationJob
	err := row.Scan(&j.ID, &j.StoryID, &j.UserID, &j.Status, &j.Style, &j.Variants,
		&j.CreatedAt, &j.StartedAt, &j.CompletedAt, &j.Error, &j.Metadata)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// --- Quotas ---

func (s *PostgresStore) GetQuota(ctx context.Context, userID string) (*models.UserQuota, error) {
	var q models.UserQuota
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, daily_limit, daily_used, monthly_limit, monthly_used, last_reset
		 FROM user_quotas WHERE user_id = $1`, userID,
	).Scan(&q.UserID, &q.DailyLimit, &q.DailyUsed, &q.MonthlyLimit, &q.MonthlyUsed, &q.LastReset)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get quota: %w", err)
	}
	return &q, nil
}

func (s *PostgresStore) SaveQuota(ctx context.Context, q *models.UserQuota) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_quotas (user_id, daily_limit, daily_used, monthly_limit, monthly_used, last_reset)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id) DO UPDATE SET
		   daily_limit = EXCLUDED.daily_limit,
		   daily_used = EXCLUDED.daily_used,
		   monthly_limit = EXCLUDED.monthly_limit,
		   monthly_used = EXCLUDED.monthly_used,
		   last_reset = EXCLUDED.last_reset`,
		q.UserID, q.DailyLimit, q.DailyUsed, q.MonthlyLimit, q.MonthlyUsed, q.LastReset)
	if err != nil {
		return fmt.Errorf("save quota: %w", err)
	}
	return nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
