package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"phish_server/core/domain"
	"phish_server/core/port/out"
	"phish_server/pkg/snowflake"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ScanJobAdapter implements out.ScanJobRepository on Postgres.
type ScanJobAdapter struct {
	db *sqlx.DB
}

func NewScanJobAdapter(db *sqlx.DB) *ScanJobAdapter {
	return &ScanJobAdapter{db: db}
}

var _ out.ScanJobRepository = (*ScanJobAdapter)(nil)

type scanJobRow struct {
	ID          int64          `db:"id"`
	Status      string         `db:"status"`
	URLs        pq.StringArray `db:"urls"`
	Results     []byte         `db:"results"`
	Error       sql.NullString `db:"error"`
	CreatedAt   time.Time      `db:"created_at"`
	StartedAt   sql.NullTime   `db:"started_at"`
	CompletedAt sql.NullTime   `db:"completed_at"`
}

func (r *scanJobRow) toDomain() (*domain.ScanJob, error) {
	job := &domain.ScanJob{
		ID:        snowflake.ID(r.ID),
		Status:    domain.ScanStatus(r.Status),
		URLs:      []string(r.URLs),
		CreatedAt: r.CreatedAt.UTC(),
	}
	if r.Error.Valid {
		job.Error = r.Error.String
	}
	if r.StartedAt.Valid {
		t := r.StartedAt.Time.UTC()
		job.StartedAt = &t
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time.UTC()
		job.CompletedAt = &t
	}
	if len(r.Results) > 0 {
		if err := json.Unmarshal(r.Results, &job.Results); err != nil {
			return nil, fmt.Errorf("scan job %d results: %w", r.ID, err)
		}
	}
	return job, nil
}

func (a *ScanJobAdapter) Create(ctx context.Context, job *domain.ScanJob) error {
	query := `
		INSERT INTO scan_jobs (id, status, urls, created_at)
		VALUES ($1, $2, $3, $4)`

	_, err := a.db.ExecContext(ctx, query,
		int64(job.ID), string(job.Status), pq.StringArray(job.URLs), job.CreatedAt)
	if err != nil {
		return fmt.Errorf("create scan job: %w", err)
	}
	return nil
}

func (a *ScanJobAdapter) Get(ctx context.Context, id snowflake.ID) (*domain.ScanJob, error) {
	query := `
		SELECT id, status, urls, results, error, created_at, started_at, completed_at
		FROM scan_jobs
		WHERE id = $1`

	var row scanJobRow
	if err := a.db.GetContext(ctx, &row, query, int64(id)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, out.ErrNotFound
		}
		return nil, fmt.Errorf("get scan job: %w", err)
	}
	return row.toDomain()
}

func (a *ScanJobAdapter) MarkRunning(ctx context.Context, id snowflake.ID, at time.Time) (bool, error) {
	query := `
		UPDATE scan_jobs
		SET status = 'running', started_at = $2
		WHERE id = $1 AND status = 'pending'`

	res, err := a.db.ExecContext(ctx, query, int64(id), at)
	if err != nil {
		return false, fmt.Errorf("mark scan job running: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark scan job running: %w", err)
	}
	return n == 1, nil
}

func (a *ScanJobAdapter) Complete(ctx context.Context, id snowflake.ID, results []domain.ScanResult, at time.Time) error {
	data, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("encode scan results: %w", err)
	}

	query := `
		UPDATE scan_jobs
		SET status = 'completed', results = $2, completed_at = $3
		WHERE id = $1 AND status = 'running'`

	return a.finish(ctx, query, int64(id), string(data), at)
}

func (a *ScanJobAdapter) Fail(ctx context.Context, id snowflake.ID, reason string, at time.Time) error {
	query := `
		UPDATE scan_jobs
		SET status = 'failed', error = $2, completed_at = $3
		WHERE id = $1 AND status IN ('pending', 'running')`

	return a.finish(ctx, query, int64(id), reason, at)
}

func (a *ScanJobAdapter) finish(ctx context.Context, query string, args ...any) error {
	res, err := a.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("finish scan job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish scan job: %w", err)
	}
	if n == 0 {
		return out.ErrNotFound
	}
	return nil
}
