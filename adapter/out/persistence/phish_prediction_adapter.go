package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"phish_server/core/domain"
	"phish_server/core/feature"
	"phish_server/core/port/out"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PredictionAdapter implements out.PredictionRepository on Postgres.
type PredictionAdapter struct {
	db *sqlx.DB
}

func NewPredictionAdapter(db *sqlx.DB) *PredictionAdapter {
	return &PredictionAdapter{db: db}
}

var _ out.PredictionRepository = (*PredictionAdapter)(nil)

type predictionRow struct {
	ID           uuid.UUID       `db:"id"`
	URL          string          `db:"url"`
	Label        string          `db:"label"`
	Confidence   float64         `db:"confidence"`
	Class        int             `db:"class"`
	ModelVersion string          `db:"model_version"`
	Features     pq.Float64Array `db:"features"`
	CreatedAt    time.Time       `db:"created_at"`
}

func newPredictionRow(p *domain.Prediction) predictionRow {
	return predictionRow{
		ID:           p.ID,
		URL:          p.URL,
		Label:        string(p.Label),
		Confidence:   p.Confidence,
		Class:        p.Class,
		ModelVersion: p.ModelVersion,
		Features:     pq.Float64Array(p.Features.Values()),
		CreatedAt:    p.CreatedAt,
	}
}

func (r *predictionRow) toDomain() (*domain.Prediction, error) {
	vec, err := feature.FromValues(r.Features)
	if err != nil {
		return nil, fmt.Errorf("prediction %s: %w", r.ID, err)
	}
	return &domain.Prediction{
		ID:           r.ID,
		URL:          r.URL,
		Label:        domain.Label(r.Label),
		Confidence:   r.Confidence,
		Class:        r.Class,
		ModelVersion: r.ModelVersion,
		Features:     vec,
		CreatedAt:    r.CreatedAt.UTC(),
	}, nil
}

// Save inserts p. Saving the same id twice is a no-op.
func (a *PredictionAdapter) Save(ctx context.Context, p *domain.Prediction) error {
	query := `
		INSERT INTO predictions (id, url, label, confidence, class, model_version, features, created_at)
		VALUES (:id, :url, :label, :confidence, :class, :model_version, :features, :created_at)
		ON CONFLICT (id) DO NOTHING`

	if _, err := a.db.NamedExecContext(ctx, query, newPredictionRow(p)); err != nil {
		return fmt.Errorf("save prediction: %w", err)
	}
	return nil
}

func (a *PredictionAdapter) GetByID(ctx context.Context, id uuid.UUID) (*domain.Prediction, error) {
	query := `
		SELECT id, url, label, confidence, class, model_version, features, created_at
		FROM predictions
		WHERE id = $1`

	var row predictionRow
	if err := a.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, out.ErrNotFound
		}
		return nil, fmt.Errorf("get prediction: %w", err)
	}
	return row.toDomain()
}

func (a *PredictionAdapter) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}
