// Package scoring turns URLs into phishing predictions.
package scoring

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"phish_server/core/domain"
	"phish_server/core/feature"
	"phish_server/core/port/in"
	"phish_server/core/port/out"
	"phish_server/pkg/apperr"
	"phish_server/pkg/logger"
	"phish_server/pkg/metrics"
	"phish_server/pkg/resilience"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Model is a loaded scaler and classifier pair.
type Model struct {
	Version    string
	Scaler     out.Scaler
	Classifier out.Classifier
	LoadedAt   time.Time
}

// Config tunes the service.
type Config struct {
	CacheTTL         time.Duration
	MaxBatchSize     int
	BatchConcurrency int
	WriteTimeout     time.Duration
}

func DefaultConfig() Config {
	return Config{
		CacheTTL:         time.Hour,
		MaxBatchSize:     100,
		BatchConcurrency: 8,
		WriteTimeout:     3 * time.Second,
	}
}

// Service implements in.ScoringService.
type Service struct {
	model   Model
	cfg     Config
	cache   out.PredictionCache
	repo    out.PredictionRepository
	metrics *metrics.Recorder

	cacheBreaker *resilience.Breaker
	logBreaker   *resilience.Breaker

	group   singleflight.Group
	pending sync.WaitGroup
	log     *logger.Logger
	now     func() time.Time
}

var _ in.ScoringService = (*Service)(nil)

// NewService wires the service. cache and repo may be nil, in which case
// caching and the prediction log are skipped.
func NewService(m Model, cfg Config, cache out.PredictionCache, repo out.PredictionRepository, rec *metrics.Recorder) *Service {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultConfig().MaxBatchSize
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = DefaultConfig().BatchConcurrency
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}
	if rec == nil {
		rec = metrics.NewRecorder()
	}
	return &Service{
		model:        m,
		cfg:          cfg,
		cache:        cache,
		repo:         repo,
		metrics:      rec,
		cacheBreaker: resilience.NewBreaker(resilience.DefaultBreakerConfig("prediction-cache")),
		logBreaker:   resilience.NewBreaker(resilience.DefaultBreakerConfig("prediction-log")),
		log:          logger.WithField("component", "scoring"),
		now:          time.Now,
	}
}

// Predict scores one URL.
func (s *Service) Predict(ctx context.Context, rawURL string) (*domain.Prediction, error) {
	url := strings.TrimSpace(rawURL)
	if url == "" {
		return nil, apperr.MissingField("url")
	}

	key := cacheKey(s.model.Version, url)
	if p, ok := s.lookup(ctx, key); ok {
		return p, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		start := time.Now()
		r, err := s.score(url)
		if err != nil {
			return nil, err
		}
		s.metrics.ObservePrediction(string(r.prediction.Label), time.Since(start))
		s.persist(ctx, key, r.prediction)
		return r.prediction, nil
	})
	if err != nil {
		return nil, err
	}

	// callers sharing a flight must not share the pointer
	p := *v.(*domain.Prediction)
	return &p, nil
}

// PredictBatch scores urls concurrently. Per-URL failures are reported in
// the items; only an invalid batch or a cancelled context fails the call.
func (s *Service) PredictBatch(ctx context.Context, urls []string) ([]domain.BatchItem, error) {
	if len(urls) == 0 {
		return nil, apperr.MissingField("urls")
	}
	if len(urls) > s.cfg.MaxBatchSize {
		return nil, apperr.BatchTooLarge(len(urls), s.cfg.MaxBatchSize)
	}

	items := make([]domain.BatchItem, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.BatchConcurrency)

	for i, u := range urls {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			items[i].URL = u
			p, err := s.Predict(gctx, u)
			if err != nil {
				items[i].Error = apperr.PublicMessage(err)
				return nil
			}
			items[i].Prediction = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return items, nil
}

// Explain returns every intermediate stage of scoring url. The result is
// neither cached nor logged.
func (s *Service) Explain(ctx context.Context, rawURL string) (*domain.Explanation, error) {
	url := strings.TrimSpace(rawURL)
	if url == "" {
		return nil, apperr.MissingField("url")
	}

	r, err := s.score(url)
	if err != nil {
		return nil, err
	}

	scaled, err := feature.FromValues(r.scaled)
	if err != nil {
		return nil, apperr.ModelError("transform", err)
	}

	registered, suffix := registrableDomain(feature.SafeParse(url).Netloc)
	return &domain.Explanation{
		URL:              url,
		Features:         r.prediction.Features,
		Scaled:           scaled.Map(),
		RegisteredDomain: registered,
		PublicSuffix:     suffix,
		Probabilities:    r.proba,
		Prediction:       r.prediction,
	}, nil
}

// GetPrediction fetches a logged prediction.
func (s *Service) GetPrediction(ctx context.Context, id uuid.UUID) (*domain.Prediction, error) {
	if s.repo == nil {
		return nil, apperr.Unavailable("prediction log")
	}
	p, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, out.ErrNotFound) {
		return nil, apperr.NotFound("prediction")
	}
	if err != nil {
		return nil, apperr.DatabaseError("get prediction", err)
	}
	return p, nil
}

// ModelInfo describes the loaded artifacts.
func (s *Service) ModelInfo() domain.ModelInfo {
	return domain.ModelInfo{
		Version:        s.model.Version,
		FeatureNames:   append([]string(nil), feature.Names[:]...),
		ScalerKind:     s.model.Scaler.Kind(),
		ClassifierKind: s.model.Classifier.Kind(),
		LoadedAt:       s.model.LoadedAt,
		Latency:        s.metrics.Latency().ToMap(),
	}
}

// Close waits for in-flight cache and log writes.
func (s *Service) Close() {
	s.pending.Wait()
}

type scored struct {
	prediction *domain.Prediction
	scaled     []float64
	proba      []float64
}

// score runs extraction and inference. Panics anywhere in the model path
// surface as a model error.
func (s *Service) score(url string) (r scored, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.WithField("panic", fmt.Sprintf("%v", rec)).Error("inference panicked")
			err = apperr.ModelError("inference", fmt.Errorf("panic: %v", rec))
		}
	}()

	vec := feature.Extract(url)

	scaled, err := s.model.Scaler.Transform(vec.Values())
	if err != nil {
		return scored{}, apperr.ModelError("scale", err)
	}
	class, err := s.model.Classifier.Predict(scaled)
	if err != nil {
		return scored{}, apperr.ModelError("predict", err)
	}
	proba, err := s.model.Classifier.PredictProba(scaled)
	if err != nil {
		return scored{}, apperr.ModelError("predict_proba", err)
	}
	if len(proba) <= domain.PositiveClass {
		return scored{}, apperr.ModelError("predict_proba", fmt.Errorf("got %d probabilities", len(proba)))
	}

	label := domain.LabelForClass(class)

	return scored{
		prediction: &domain.Prediction{
			ID:           uuid.New(),
			URL:          url,
			Label:        label,
			Confidence:   proba[domain.PositiveClass],
			Class:        class,
			ModelVersion: s.model.Version,
			Features:     vec,
			CreatedAt:    s.now().UTC(),
		},
		scaled: scaled,
		proba:  proba,
	}, nil
}

func (s *Service) lookup(ctx context.Context, key string) (*domain.Prediction, bool) {
	if s.cache == nil {
		return nil, false
	}

	var (
		p  *domain.Prediction
		ok bool
	)
	err := s.cacheBreaker.Execute(func() error {
		var err error
		p, ok, err = s.cache.Get(ctx, key)
		return err
	})
	if err != nil {
		s.log.WithError(err).Debug("cache lookup failed")
		ok = false
	}
	s.metrics.ObserveCache(ok)
	if !ok {
		return nil, false
	}
	p.Cached = true
	return p, true
}

// persist writes to the cache and the prediction log in the background.
// The write outlives the request but not the write timeout.
func (s *Service) persist(ctx context.Context, key string, p *domain.Prediction) {
	if s.cache == nil && s.repo == nil {
		return
	}
	snapshot := *p

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.WriteTimeout)
		defer cancel()

		if s.cache != nil {
			err := s.cacheBreaker.Execute(func() error {
				return s.cache.Set(wctx, key, &snapshot, s.cfg.CacheTTL)
			})
			if err != nil {
				s.log.WithError(err).Debug("cache write failed")
			}
		}
		if s.repo != nil {
			err := s.logBreaker.Execute(func() error {
				return s.repo.Save(wctx, &snapshot)
			})
			if err != nil {
				s.log.WithError(err).WithField("prediction_id", snapshot.ID.String()).Warn("prediction log write failed")
			}
		}
	}()
}

func cacheKey(version, url string) string {
	sum := sha256.Sum256([]byte(url))
	return version + ":" + hex.EncodeToString(sum[:])
}
