package http

import (
	"context"
	"errors"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"phish_server/core/domain"
	"phish_server/infra/database"
	"phish_server/infra/middleware"
	"phish_server/pkg/apperr"
	"phish_server/pkg/metrics"
	"phish_server/pkg/snowflake"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "S3cReT_Ph1ShK3y"

type fakeScoring struct {
	err     error
	batch   []domain.BatchItem
	stored  map[uuid.UUID]*domain.Prediction
	lastURL string
}

func (f *fakeScoring) Predict(_ context.Context, url string) (*domain.Prediction, error) {
	f.lastURL = url
	if f.err != nil {
		return nil, f.err
	}
	if strings.TrimSpace(url) == "" {
		return nil, apperr.MissingField("url")
	}
	return &domain.Prediction{
		ID:           uuid.New(),
		URL:          url,
		Label:        domain.LabelPhishing,
		Confidence:   0.93,
		Class:        1,
		ModelVersion: "test",
	}, nil
}

func (f *fakeScoring) PredictBatch(_ context.Context, urls []string) ([]domain.BatchItem, error) {
	if len(urls) == 0 {
		return nil, apperr.MissingField("urls")
	}
	return f.batch, nil
}

func (f *fakeScoring) Explain(ctx context.Context, url string) (*domain.Explanation, error) {
	p, err := f.Predict(ctx, url)
	if err != nil {
		return nil, err
	}
	return &domain.Explanation{URL: url, Probabilities: []float64{0.07, 0.93}, Prediction: p}, nil
}

func (f *fakeScoring) GetPrediction(_ context.Context, id uuid.UUID) (*domain.Prediction, error) {
	if p, ok := f.stored[id]; ok {
		return p, nil
	}
	return nil, apperr.NotFound("prediction")
}

func (f *fakeScoring) ModelInfo() domain.ModelInfo {
	return domain.ModelInfo{Version: "test", ScalerKind: "standard", ClassifierKind: "forest"}
}

type fakeScans struct {
	jobs map[snowflake.ID]*domain.ScanJob
	err  error
}

func (f *fakeScans) Create(_ context.Context, urls []string) (*domain.ScanJob, error) {
	if f.err != nil {
		return nil, f.err
	}
	job := &domain.ScanJob{ID: snowflake.ID(42), Status: domain.ScanPending, URLs: urls, CreatedAt: time.Now()}
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeScans) Get(_ context.Context, id snowflake.ID) (*domain.ScanJob, error) {
	if job, ok := f.jobs[id]; ok {
		return job, nil
	}
	return nil, apperr.NotFound("scan")
}

func (f *fakeScans) Process(context.Context, snowflake.ID) error { return nil }

func newApp(scoring *fakeScoring, scans *fakeScans) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(),
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})
	app.Use(middleware.RequestID(), middleware.Recover())

	auth := middleware.NewAuthenticator(middleware.AuthConfig{APIKey: testKey})
	NewLegacyHandler(scoring).Register(app, auth.APIKeyOnly())

	v1 := app.Group("/api/v1", auth.Handler())
	NewPredictHandler(scoring).Register(v1)
	NewScanHandler(scans).Register(v1)
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string, key bool) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if key {
		req.Header.Set(middleware.HeaderAPIKey, testKey)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp.StatusCode, readJSON(t, resp)
}

func readJSON(t *testing.T, resp *nethttp.Response) map[string]any {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return out
}

func TestLegacyPredict(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		key        bool
		scoringErr error
		wantStatus int
		wantError  string
	}{
		{"ok", `{"url":"http://paypa1-login.example.tk/verify"}`, true, nil, 200, ""},
		{"missing key", `{"url":"http://a.com"}`, false, nil, 401, "Unauthorized"},
		{"missing url", `{}`, true, nil, 400, "No URL provided"},
		{"null url", `{"url":null}`, true, nil, 400, "No URL provided"},
		{"blank url", `{"url":"   "}`, true, nil, 400, "No URL provided"},
		{"non-string url", `{"url":17}`, true, nil, 400, "invalid input for 'url': must be a string"},
		{"not json", `url=http://a.com`, true, nil, 400, "request body must be a JSON object"},
		{"model failure", `{"url":"http://a.com"}`, true, apperr.ModelError("classify", errors.New("shape mismatch")), 500, apperr.InternalMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newApp(&fakeScoring{err: tt.scoringErr}, &fakeScans{jobs: map[snowflake.ID]*domain.ScanJob{}})
			status, body := do(t, app, fiber.MethodPost, "/predict", tt.body, tt.key)

			assert.Equal(t, tt.wantStatus, status)
			if tt.wantError != "" {
				assert.Equal(t, map[string]any{"error": tt.wantError}, body)
				return
			}
			assert.Equal(t, "http://paypa1-login.example.tk/verify", body["url"])
			assert.Equal(t, "phishing", body["prediction"])
			assert.InDelta(t, 0.93, body["confidence"], 1e-9)
			assert.Len(t, body, 3)
		})
	}
}

func TestLegacyPredict_IgnoresContentType(t *testing.T) {
	scoring := &fakeScoring{}
	app := newApp(scoring, &fakeScans{jobs: map[snowflake.ID]*domain.ScanJob{}})

	req := httptest.NewRequest(fiber.MethodPost, "/predict", strings.NewReader(`{"url":"http://a.com"}`))
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set(middleware.HeaderAPIKey, testKey)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "http://a.com", scoring.lastURL)
}

func TestV1Predict_Envelope(t *testing.T) {
	app := newApp(&fakeScoring{}, &fakeScans{jobs: map[snowflake.ID]*domain.ScanJob{}})

	status, body := do(t, app, fiber.MethodPost, "/api/v1/predict", `{"url":"http://a.com"}`, true)
	require.Equal(t, 200, status)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["request_id"])

	data := body["data"].(map[string]any)
	assert.Equal(t, "phishing", data["prediction"])
	assert.Equal(t, "test", data["model_version"])
}

func TestV1Predict_ErrorEnvelope(t *testing.T) {
	app := newApp(&fakeScoring{}, &fakeScans{jobs: map[snowflake.ID]*domain.ScanJob{}})

	status, body := do(t, app, fiber.MethodPost, "/api/v1/predict", `{}`, true)
	require.Equal(t, 400, status)
	assert.Equal(t, false, body["success"])
	detail := body["error"].(map[string]any)
	assert.Equal(t, apperr.CodeMissingField, detail["code"])
}

func TestV1PredictBatch(t *testing.T) {
	scoring := &fakeScoring{batch: []domain.BatchItem{
		{URL: "http://a.com", Prediction: &domain.Prediction{URL: "http://a.com", Label: domain.LabelLegitimate}},
		{URL: "", Error: "missing required field: url"},
	}}
	app := newApp(scoring, &fakeScans{jobs: map[snowflake.ID]*domain.ScanJob{}})

	status, body := do(t, app, fiber.MethodPost, "/api/v1/predict/batch", `{"urls":["http://a.com",""]}`, true)
	require.Equal(t, 200, status)

	data := body["data"].(map[string]any)
	assert.EqualValues(t, 2, data["count"])
	assert.Equal(t, "test", data["model_version"])
	items := data["items"].([]any)
	assert.Equal(t, "missing required field: url", items[1].(map[string]any)["error"])
}

func TestV1GetPrediction(t *testing.T) {
	id := uuid.New()
	scoring := &fakeScoring{stored: map[uuid.UUID]*domain.Prediction{id: {ID: id, URL: "http://a.com"}}}
	app := newApp(scoring, &fakeScans{jobs: map[snowflake.ID]*domain.ScanJob{}})

	status, _ := do(t, app, fiber.MethodGet, "/api/v1/predictions/"+id.String(), "", true)
	assert.Equal(t, 200, status)

	status, _ = do(t, app, fiber.MethodGet, "/api/v1/predictions/"+uuid.NewString(), "", true)
	assert.Equal(t, 404, status)

	status, body := do(t, app, fiber.MethodGet, "/api/v1/predictions/not-a-uuid", "", true)
	assert.Equal(t, 400, status)
	assert.Equal(t, apperr.CodeInvalidInput, body["error"].(map[string]any)["code"])
}

func TestV1Scans(t *testing.T) {
	scans := &fakeScans{jobs: map[snowflake.ID]*domain.ScanJob{}}
	app := newApp(&fakeScoring{}, scans)

	req := httptest.NewRequest(fiber.MethodPost, "/api/v1/scans", strings.NewReader(`{"urls":["http://a.com","http://b.com"]}`))
	req.Header.Set(middleware.HeaderAPIKey, testKey)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "/api/v1/scans/42", resp.Header.Get(fiber.HeaderLocation))

	body := readJSON(t, resp)
	data := body["data"].(map[string]any)
	assert.Equal(t, "42", data["id"])
	assert.Equal(t, "pending", data["status"])

	status, body := do(t, app, fiber.MethodGet, "/api/v1/scans/42", "", true)
	require.Equal(t, 200, status)
	assert.Equal(t, "pending", body["data"].(map[string]any)["status"])

	status, _ = do(t, app, fiber.MethodGet, "/api/v1/scans/abc", "", true)
	assert.Equal(t, 400, status)

	status, _ = do(t, app, fiber.MethodGet, "/api/v1/scans/7", "", true)
	assert.Equal(t, 404, status)
}

func TestV1Scans_QueueUnavailable(t *testing.T) {
	app := newApp(&fakeScoring{}, &fakeScans{jobs: map[snowflake.ID]*domain.ScanJob{}, err: apperr.Unavailable("scan queue")})

	status, body := do(t, app, fiber.MethodPost, "/api/v1/scans", `{"urls":["http://a.com"]}`, true)
	assert.Equal(t, 503, status)
	assert.Equal(t, "scan queue is not available", body["error"].(map[string]any)["message"])
}

func TestReady(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("dial tcp 10.0.0.3:5432: connection refused") }

	tests := []struct {
		name       string
		checks     []Check
		wantStatus int
		want       string
	}{
		{"all healthy", []Check{{Name: "model", Required: true, Ping: ok}, {Name: "redis", Ping: ok}}, 200, "ready"},
		{"optional down", []Check{{Name: "model", Required: true, Ping: ok}, {Name: "postgres", Ping: down}}, 200, "degraded"},
		{"required down", []Check{{Name: "model", Required: true, Ping: down}}, 503, "not ready"},
		{"exhausted pool", []Check{{Name: "postgres", Ping: ok, Pool: func() database.PoolStats {
			return database.PoolStats{TotalConns: 10, AcquiredConns: 10, MaxConns: 10}
		}}}, 200, "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			NewHealthHandler(tt.checks...).Register(app)

			resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/ready", nil), -1)
			require.NoError(t, err)
			raw, _ := io.ReadAll(resp.Body)

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Contains(t, string(raw), `"status":"`+tt.want+`"`)
			assert.NotContains(t, string(raw), "connection refused")
		})
	}
}

func TestHealthAndMetrics(t *testing.T) {
	rec := metrics.NewRecorder()
	rec.ObserveScan("created")

	app := fiber.New()
	NewHealthHandler().Register(app)
	app.Get("/metrics", MetricsHandler(rec.Registry))

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/health", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"status": "ok"}, readJSON(t, resp))

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, string(raw), "phish_scan_jobs_total")
}
