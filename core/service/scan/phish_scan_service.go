// Package scan runs asynchronous batches of URLs through the scorer.
package scan

import (
	"context"
	"errors"
	"time"

	"phish_server/core/domain"
	"phish_server/core/port/in"
	"phish_server/core/port/out"
	"phish_server/pkg/apperr"
	"phish_server/pkg/logger"
	"phish_server/pkg/metrics"
	"phish_server/pkg/snowflake"
)

type Config struct {
	MaxURLs      int
	WriteTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxURLs:      100,
		WriteTimeout: 5 * time.Second,
	}
}

// Service implements in.ScanService.
type Service struct {
	cfg       Config
	scorer    in.ScoringService
	repo      out.ScanJobRepository
	publisher out.JobPublisher
	ids       *snowflake.Generator
	metrics   *metrics.Recorder
	log       *logger.Logger
	now       func() time.Time
}

var _ in.ScanService = (*Service)(nil)

// NewService wires the service. repo and publisher may be nil when Postgres
// or Redis is down; scans then report the dependency as unavailable.
func NewService(
	cfg Config,
	scorer in.ScoringService,
	repo out.ScanJobRepository,
	publisher out.JobPublisher,
	ids *snowflake.Generator,
	rec *metrics.Recorder,
) *Service {
	if cfg.MaxURLs <= 0 {
		cfg.MaxURLs = DefaultConfig().MaxURLs
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}
	if rec == nil {
		rec = metrics.NewRecorder()
	}
	return &Service{
		cfg:       cfg,
		scorer:    scorer,
		repo:      repo,
		publisher: publisher,
		ids:       ids,
		metrics:   rec,
		log:       logger.WithField("component", "scan"),
		now:       time.Now,
	}
}

// Create stores a pending job and queues it for the worker.
func (s *Service) Create(ctx context.Context, urls []string) (*domain.ScanJob, error) {
	if len(urls) == 0 {
		return nil, apperr.MissingField("urls")
	}
	if len(urls) > s.cfg.MaxURLs {
		return nil, apperr.BatchTooLarge(len(urls), s.cfg.MaxURLs)
	}
	if s.repo == nil {
		return nil, apperr.Unavailable("scan store")
	}
	if s.publisher == nil {
		return nil, apperr.Unavailable("scan queue")
	}

	id, err := s.ids.Next()
	if err != nil {
		return nil, apperr.InternalWithError(err)
	}

	job := &domain.ScanJob{
		ID:        id,
		Status:    domain.ScanPending,
		URLs:      append([]string(nil), urls...),
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, apperr.DatabaseError("create scan job", err)
	}

	if err := s.publisher.PublishScan(ctx, id); err != nil {
		s.log.WithError(err).WithField("scan_id", id.String()).Error("scan enqueue failed")
		s.fail(id, "enqueue failed")
		return nil, apperr.Unavailable("scan queue")
	}

	s.metrics.ObserveScan("created")
	return job, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.ScanJob, error) {
	if s.repo == nil {
		return nil, apperr.Unavailable("scan store")
	}
	job, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, out.ErrNotFound) {
			return nil, apperr.NotFound("scan job")
		}
		return nil, apperr.DatabaseError("get scan job", err)
	}
	return job, nil
}

// Process scores every URL of a pending job and stores the outcome.
// Redelivered or unknown jobs are skipped without error. A returned error
// means the job could not be claimed and the message should be retried.
func (s *Service) Process(ctx context.Context, id snowflake.ID) error {
	if s.repo == nil {
		return apperr.Unavailable("scan store")
	}
	log := s.log.WithField("scan_id", id.String())

	job, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, out.ErrNotFound) {
			log.Warn("scan job not found, dropping")
			return nil
		}
		return apperr.DatabaseError("get scan job", err)
	}
	if job.Status != domain.ScanPending {
		log.Debug("scan job already %s, skipping", job.Status)
		return nil
	}

	claimed, err := s.repo.MarkRunning(ctx, id, s.now().UTC())
	if err != nil {
		return apperr.DatabaseError("claim scan job", err)
	}
	if !claimed {
		log.Debug("scan job claimed elsewhere")
		return nil
	}

	start := s.now()
	items, err := s.scorer.PredictBatch(ctx, job.URLs)
	if err != nil {
		log.WithError(err).Warn("scan job failed")
		s.fail(id, apperr.PublicMessage(err))
		return nil
	}

	results := make([]domain.ScanResult, len(items))
	for i, item := range items {
		results[i] = domain.ScanResultFromBatch(item)
	}

	wctx, cancel := s.writeContext(ctx)
	defer cancel()
	if err := s.repo.Complete(wctx, id, results, s.now().UTC()); err != nil {
		log.WithError(err).Error("scan job result write failed")
		s.fail(id, apperr.InternalMessage)
		return nil
	}

	s.metrics.ObserveScan(string(domain.ScanCompleted))
	log.WithField("urls", len(job.URLs)).WithDuration(s.now().Sub(start)).Info("scan job completed")
	return nil
}

// fail marks the job failed even when the caller's context is gone.
func (s *Service) fail(id snowflake.ID, reason string) {
	wctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
	defer cancel()
	if err := s.repo.Fail(wctx, id, reason, s.now().UTC()); err != nil {
		s.log.WithError(err).WithField("scan_id", id.String()).Error("scan job fail write failed")
	}
	s.metrics.ObserveScan(string(domain.ScanFailed))
}

func (s *Service) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.cfg.WriteTimeout)
}
