package bootstrap

import (
	"context"
	"errors"
	"strings"

	"phish_server/adapter/in/http"
	"phish_server/infra/database"
	"phish_server/infra/middleware"
	"phish_server/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

var errNotConnected = errors.New("not connected")

// NewAPI builds the HTTP app. The returned func stops background janitors;
// it does not close deps.
func NewAPI(deps *Dependencies) (*fiber.App, func()) {
	cfg := deps.Config

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		StrictRouting:         false,
		CaseSensitive:         false,

		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,

		ServerHeader:       "",
		DisableDefaultDate: true,
	})

	// Global middleware stack (order matters)
	app.Use(middleware.RequestID())
	app.Use(middleware.RequestLogger())
	app.Use(middleware.Recover())
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.Metrics(deps.Metrics))
	app.Use(compress.New(compress.Config{Level: compress.LevelBestSpeed}))

	if origins := strings.Join(cfg.AllowedOrigins, ","); origins != "" && origins != "*" {
		app.Use(cors.New(cors.Config{
			AllowOrigins:  origins,
			AllowMethods:  "GET,POST,OPTIONS",
			AllowHeaders:  "Origin,Content-Type,Accept,Authorization,X-Api-Key,X-Request-ID",
			ExposeHeaders: "X-Request-ID,X-RateLimit-Limit,Retry-After",
			MaxAge:        86400,
		}))
	}

	// Probes (no auth)
	http.NewHealthHandler(readinessChecks(deps)...).Register(app)
	app.Get("/metrics", http.MetricsHandler(deps.Metrics.Registry))

	auth := middleware.NewAuthenticator(middleware.AuthConfig{
		APIKey:    cfg.APIKey,
		JWTSecret: cfg.JWTSecret,
	})
	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		RPS:   cfg.RateLimitRPS,
		Burst: cfg.RateLimitBurst,
	})
	// throttles by address before credentials are checked
	ipLimiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		RPS:   cfg.IPRateLimitRPS,
		Burst: cfg.IPRateLimitBurst,
		PerIP: true,
	})
	ctx, cancel := context.WithCancel(context.Background())
	go limiter.Run(ctx)
	go ipLimiter.Run(ctx)

	bodyLimit := middleware.MaxBodySize(cfg.MaxBodyBytes)

	// Unversioned contract kept for existing clients
	http.NewLegacyHandler(deps.Scoring).Register(app, bodyLimit, ipLimiter.Handler(), auth.APIKeyOnly(), limiter.Handler())

	api := app.Group("/api/v1", bodyLimit, ipLimiter.Handler(), auth.Handler(), limiter.Handler())
	http.NewPredictHandler(deps.Scoring).Register(api)
	http.NewScanHandler(deps.Scans).Register(api)

	logger.Info("API server initialized (model %s)", deps.Model.Version)
	return app, cancel
}

// readinessChecks probes the model and every configured store. Stores are
// optional: losing one degrades the node instead of failing it.
func readinessChecks(deps *Dependencies) []http.Check {
	checks := []http.Check{{
		Name:     "model",
		Required: true,
		Ping: func(context.Context) error {
			if deps.Model == nil || deps.Scoring == nil {
				return errNotConnected
			}
			return nil
		},
	}}

	if deps.Config.DatabaseURL != "" {
		chk := http.Check{Name: "postgres", Ping: notConnected}
		if db := deps.DB; db != nil {
			chk.Ping = db.Ping
			chk.Pool = func() database.PoolStats { return database.PostgresPoolStats(db) }
		}
		checks = append(checks, chk)
	}

	if deps.Config.RedisURL != "" {
		chk := http.Check{Name: "redis", Ping: notConnected}
		if client := deps.Redis; client != nil {
			chk.Ping = func(ctx context.Context) error { return client.Ping(ctx).Err() }
			chk.Pool = func() database.PoolStats { return database.RedisPoolStats(client) }
		}
		checks = append(checks, chk)
	}

	return checks
}

func notConnected(context.Context) error { return errNotConnected }
