package persistence

import (
	"database/sql"
	"testing"
	"time"

	"phish_server/core/domain"
	"phish_server/core/feature"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredictionRow_RoundTrip(t *testing.T) {
	url := "https://secure-login.paypal.com/account/update?x=1"
	p := &domain.Prediction{
		ID:           uuid.New(),
		URL:          url,
		Label:        domain.LabelPhishing,
		Confidence:   0.87,
		Class:        1,
		ModelVersion: "v3",
		Features:     feature.Extract(url),
		CreatedAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	row := newPredictionRow(p)
	assert.Len(t, row.Features, feature.NumFeatures)

	back, err := row.toDomain()
	require.NoError(t, err)
	assert.Equal(t, p, back)
}

func TestPredictionRow_RejectsShortFeatures(t *testing.T) {
	row := predictionRow{ID: uuid.New(), Features: pq.Float64Array{1, 2, 3}}
	_, err := row.toDomain()
	assert.Error(t, err)
}

func TestScanJobRow_ToDomain(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 1, 0, time.UTC)
	row := scanJobRow{
		ID:        42,
		Status:    "completed",
		URLs:      pq.StringArray{"http://a.com/", "http://b.com/"},
		Results:   []byte(`[{"url":"http://a.com/","prediction":"legitimate","confidence":0.1}]`),
		Error:     sql.NullString{},
		CreatedAt: started.Add(-time.Second),
		StartedAt: sql.NullTime{Time: started, Valid: true},
	}

	job, err := row.toDomain()
	require.NoError(t, err)
	assert.Equal(t, int64(42), int64(job.ID))
	assert.Equal(t, domain.ScanCompleted, job.Status)
	assert.Equal(t, []string{"http://a.com/", "http://b.com/"}, job.URLs)
	require.Len(t, job.Results, 1)
	assert.Equal(t, domain.LabelLegitimate, job.Results[0].Label)
	require.NotNil(t, job.StartedAt)
	assert.Equal(t, started, *job.StartedAt)
	assert.Nil(t, job.CompletedAt)

	row.Results = []byte(`{not json`)
	_, err = row.toDomain()
	assert.Error(t, err)
}
