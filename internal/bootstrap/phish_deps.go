package bootstrap

import (
	"context"
	"fmt"

	predcache "phish_server/adapter/out/cache"
	"phish_server/adapter/out/model"
	"phish_server/adapter/out/persistence"
	"phish_server/config"
	"phish_server/core/port/out"
	"phish_server/core/service/scan"
	"phish_server/core/service/scoring"
	"phish_server/infra/database"
	"phish_server/internal/stream"
	"phish_server/pkg/cache"
	"phish_server/pkg/logger"
	"phish_server/pkg/metrics"
	"phish_server/pkg/snowflake"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

const predictionKeyPrefix = "phish:pred"

// Dependencies is everything the API and the worker share. DB, SQLDB and
// Redis are nil when the store is unconfigured or unreachable.
type Dependencies struct {
	Config  *config.Config
	Metrics *metrics.Recorder
	Model   *model.Artifacts

	DB    *pgxpool.Pool
	SQLDB *sqlx.DB
	Redis *redis.Client

	Stream    *stream.RedisStream
	Publisher out.JobPublisher

	Scoring *scoring.Service
	Scans   *scan.Service
}

// NewDependencies loads the model and connects the optional stores. Only a
// model failure is fatal; Postgres and Redis degrade to no-ops.
func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg, Metrics: metrics.NewRecorder()}
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	artifacts, err := model.Load(cfg.ModelManifest)
	if err != nil {
		return nil, nil, fmt.Errorf("load model: %w", err)
	}
	deps.Model = artifacts
	logger.WithFields(map[string]any{
		"version":    artifacts.Version,
		"scaler":     artifacts.Scaler.Kind(),
		"classifier": artifacts.Classifier.Kind(),
	}).Info("model loaded")

	ctx := context.Background()
	cleanups = append(cleanups, deps.connectPostgres(ctx)...)
	cleanups = append(cleanups, deps.connectRedis(ctx)...)

	var (
		predictionRepo out.PredictionRepository
		scanRepo       out.ScanJobRepository
		predictions    out.PredictionCache = predcache.Noop{}
	)
	if deps.SQLDB != nil {
		predictionRepo = persistence.NewPredictionAdapter(deps.SQLDB)
		scanRepo = persistence.NewScanJobAdapter(deps.SQLDB)
	}
	if deps.Redis != nil {
		predictions = predcache.NewPredictionCache(cache.NewRedisCache(deps.Redis, predictionKeyPrefix))
		deps.Stream = stream.NewRedisStream(deps.Redis, cfg.ScanGroup)
		deps.Publisher = stream.NewScanProducer(deps.Stream, cfg.ScanStream)
	}

	deps.Scoring = scoring.NewService(
		scoring.Model{
			Version:    artifacts.Version,
			Scaler:     artifacts.Scaler,
			Classifier: artifacts.Classifier,
			LoadedAt:   artifacts.LoadedAt,
		},
		scoring.Config{
			CacheTTL:         cfg.CacheTTL(),
			MaxBatchSize:     cfg.MaxBatchSize,
			BatchConcurrency: cfg.BatchConcurrency,
		},
		predictions,
		predictionRepo,
		deps.Metrics,
	)
	cleanups = append(cleanups, deps.Scoring.Close)

	ids, err := snowflake.NewGenerator(cfg.SnowflakeNode)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("snowflake: %w", err)
	}
	deps.Scans = scan.NewService(
		scan.Config{MaxURLs: cfg.MaxBatchSize},
		deps.Scoring,
		scanRepo,
		deps.Publisher,
		ids,
		deps.Metrics,
	)

	return deps, cleanup, nil
}

func (d *Dependencies) connectPostgres(ctx context.Context) []func() {
	cfg := d.Config
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, prediction log and scans disabled")
		return nil
	}

	if cfg.MigrateOnStart {
		version, err := database.Migrate(cfg.DatabaseURL)
		if err != nil {
			logger.WithError(err).Error("migration failed, prediction log and scans disabled")
			return nil
		}
		logger.Info("database schema at version %d", version)
	}

	pool, err := database.NewPostgres(ctx, cfg.DatabaseURL, database.DefaultPostgresConfig())
	if err != nil {
		logger.WithError(err).Warn("postgres unavailable, prediction log and scans disabled")
		return nil
	}
	sqlDB, err := database.NewSQLX(ctx, cfg.DatabaseURL, database.DefaultPostgresConfig())
	if err != nil {
		pool.Close()
		logger.WithError(err).Warn("sqlx connection failed, prediction log and scans disabled")
		return nil
	}

	d.DB, d.SQLDB = pool, sqlDB
	logger.Info("postgres connected")
	return []func(){pool.Close, func() { _ = sqlDB.Close() }}
}

func (d *Dependencies) connectRedis(ctx context.Context) []func() {
	if d.Config.RedisURL == "" {
		logger.Warn("REDIS_URL not set, cache and scan queue disabled")
		return nil
	}
	client, err := database.NewRedis(ctx, d.Config.RedisURL, database.DefaultRedisConfig())
	if err != nil {
		logger.WithError(err).Warn("redis unavailable, cache and scan queue disabled")
		return nil
	}
	d.Redis = client
	logger.Info("redis connected")
	return []func(){func() { _ = client.Close() }}
}
