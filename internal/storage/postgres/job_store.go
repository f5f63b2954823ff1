package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/uncommonlabs/catalog-crawler/internal/catalog"
	"github.com/uncommonlabs/catalog-crawler/internal/store"
)

// JobStore implements store.JobStore on top of Postgres. Status
// transitions are guarded in SQL so a stale caller cannot move a job
// backwards.
type JobStore struct {
	db querier
}

// NewJobStore wraps a pool (or mock) in a JobStore.
func NewJobStore(db querier) *JobStore {
	return &JobStore{db: db}
}

// Create inserts a job in pending state.
func (s *JobStore) Create(ctx context.Context, job catalog.Job) error {
	query := `
		INSERT INTO scraping_jobs (id, target_url, status, products_count, started_at)
		VALUES ($1, $2, $3, $4, $5);
	`
	_, err := s.db.Exec(ctx, query, job.ID, job.TargetURL, catalog.JobStatusPending, 0, job.StartedAt)
	if err != nil {
		return fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	return nil
}

// MarkRunning transitions a pending job to running.
func (s *JobStore) MarkRunning(ctx context.Context, jobID string) error {
	query := `
		UPDATE scraping_jobs
		SET status = $1
		WHERE id = $2 AND status = $3;
	`
	tag, err := s.db.Exec(ctx, query, catalog.JobStatusRunning, jobID, catalog.JobStatusPending)
	if err != nil {
		return fmt.Errorf("mark job %s running: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s is not pending", jobID)
	}
	return nil
}

// MarkCompleted transitions a running job to completed and records the
// final product count.
func (s *JobStore) MarkCompleted(ctx context.Context, jobID string, productsCount int, completedAt time.Time) error {
	query := `
		UPDATE scraping_jobs
		SET status = $1, products_count = $2, completed_at = $3
		WHERE id = $4 AND status = $5;
	`
	tag, err := s.db.Exec(ctx, query, catalog.JobStatusCompleted, productsCount, completedAt, jobID, catalog.JobStatusRunning)
	if err != nil {
		return fmt.Errorf("mark job %s completed: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s is not running", jobID)
	}
	return nil
}

// MarkFailed transitions a running job to failed. The product count keeps
// whatever was stored at creation.
func (s *JobStore) MarkFailed(ctx context.Context, jobID string, completedAt time.Time) error {
	query := `
		UPDATE scraping_jobs
		SET status = $1, completed_at = $2
		WHERE id = $3 AND status = $4;
	`
	tag, err := s.db.Exec(ctx, query, catalog.JobStatusFailed, completedAt, jobID, catalog.JobStatusRunning)
	if err != nil {
		return fmt.Errorf("mark job %s failed: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s is not running", jobID)
	}
	return nil
}

// Get loads one job by ID.
func (s *JobStore) Get(ctx context.Context, jobID string) (catalog.Job, error) {
	query := `
		SELECT id, target_url, status, products_count, started_at, completed_at
		FROM scraping_jobs
		WHERE id = $1;
	`
	job, err := scanJob(s.db.QueryRow(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.Job{}, store.ErrNotFound
		}
		return catalog.Job{}, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return job, nil
}

// List returns the most recent jobs, newest first. A non-positive limit
// falls back to 50.
func (s *JobStore) List(ctx context.Context, limit int) ([]catalog.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, target_url, status, products_count, started_at, completed_at
		FROM scraping_jobs
		ORDER BY started_at DESC
		LIMIT $1;
	`
	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []catalog.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read job rows: %w", err)
	}
	return jobs, nil
}

// GetRunning returns the active job, or store.ErrNotFound when the
// crawler is idle.
func (s *JobStore) GetRunning(ctx context.Context) (catalog.Job, error) {
	query := `
		SELECT id, target_url, status, products_count, started_at, completed_at
		FROM scraping_jobs
		WHERE status = $1
		ORDER BY started_at DESC
		LIMIT 1;
	`
	job, err := scanJob(s.db.QueryRow(ctx, query, catalog.JobStatusRunning))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.Job{}, store.ErrNotFound
		}
		return catalog.Job{}, fmt.Errorf("get running job: %w", err)
	}
	return job, nil
}

func scanJob(row pgx.Row) (catalog.Job, error) {
	var job catalog.Job
	err := row.Scan(
		&job.ID,
		&job.TargetURL,
		&job.Status,
		&job.ProductsCount,
		&job.StartedAt,
		&job.CompletedAt,
	)
	return job, err
}
