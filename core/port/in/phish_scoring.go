package in

import (
	"context"

	"phish_server/core/domain"
	"phish_server/pkg/snowflake"

	"github.com/google/uuid"
)

// ScoringService classifies URLs.
type ScoringService interface {
	Predict(ctx context.Context, url string) (*domain.Prediction, error)
	PredictBatch(ctx context.Context, urls []string) ([]domain.BatchItem, error)
	Explain(ctx context.Context, url string) (*domain.Explanation, error)
	GetPrediction(ctx context.Context, id uuid.UUID) (*domain.Prediction, error)
	ModelInfo() domain.ModelInfo
}

// ScanService manages asynchronous scan jobs.
type ScanService interface {
	Create(ctx context.Context, urls []string) (*domain.ScanJob, error)
	Get(ctx context.Context, id snowflake.ID) (*domain.ScanJob, error)
	// Process runs a pending job to completion. It is called by the worker.
	Process(ctx context.Context, id snowflake.ID) error
}
