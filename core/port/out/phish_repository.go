package out

import (
	"context"
	"errors"
	"time"

	"phish_server/core/domain"
	"phish_server/pkg/snowflake"

	"github.com/google/uuid"
)

// ErrNotFound is returned by repositories when no row matches.
var ErrNotFound = errors.New("not found")

// PredictionRepository is the prediction log.
type PredictionRepository interface {
	Save(ctx context.Context, p *domain.Prediction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Prediction, error)
	Ping(ctx context.Context) error
}

// ScanJobRepository stores scan jobs and their results.
type ScanJobRepository interface {
	Create(ctx context.Context, job *domain.ScanJob) error
	Get(ctx context.Context, id snowflake.ID) (*domain.ScanJob, error)
	// MarkRunning moves a pending job to running. It returns false when the
	// job was not pending.
	MarkRunning(ctx context.Context, id snowflake.ID, at time.Time) (bool, error)
	Complete(ctx context.Context, id snowflake.ID, results []domain.ScanResult, at time.Time) error
	Fail(ctx context.Context, id snowflake.ID, reason string, at time.Time) error
}

// PredictionCache memoizes predictions by key.
type PredictionCache interface {
	Get(ctx context.Context, key string) (*domain.Prediction, bool, error)
	Set(ctx context.Context, key string, p *domain.Prediction, ttl time.Duration) error
	Ping(ctx context.Context) error
}

// JobPublisher hands scan jobs to the worker.
type JobPublisher interface {
	PublishScan(ctx context.Context, id snowflake.ID) error
}
