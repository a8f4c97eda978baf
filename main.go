package main

import (
	"context"
	"errors"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"phish_server/config"
	"phish_server/internal/bootstrap"
	"phish_server/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if exists (for local development)
	envErr := godotenv.Load()

	mode := flag.String("mode", "all", "Run mode: api, worker, all")
	flag.Parse()

	cfg, err := config.Load()

	logger.Init(logger.Config{
		Level:   logger.ParseLevel(cfg.LogLevel),
		Service: "phish-" + *mode,
		Console: cfg.IsDevelopment(),
	})
	if envErr != nil {
		logger.Debug("No .env file found, using environment variables")
	}
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid config: %v", err)
	}

	runAPI, runWorker := false, false
	switch *mode {
	case "api":
		runAPI = true
	case "worker":
		runWorker = true
	case "all":
		runAPI, runWorker = true, true
	default:
		logger.Fatal("Unknown mode: %s", *mode)
	}

	deps, cleanup, err := bootstrap.NewDependencies(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize dependencies: %v", err)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	apiErrc := make(chan error, 1)
	workerErrc := make(chan error, 1)

	var wk *bootstrap.Worker
	if runWorker {
		wk, err = bootstrap.NewWorker(deps)
		switch {
		case err == nil:
			go func(w *bootstrap.Worker) { workerErrc <- w.Start() }(wk)
		case errors.Is(err, bootstrap.ErrNoQueue) && runAPI:
			logger.Warn("Scan worker disabled: %v", err)
		default:
			logger.Fatal("Failed to initialize worker: %v", err)
		}
	}

	var (
		app     *fiber.App
		stopAPI func()
	)
	if runAPI {
		app, stopAPI = bootstrap.NewAPI(deps)
		go func() {
			addr := ":" + cfg.Port
			logger.Info("Starting API server on %s", addr)
			apiErrc <- app.Listen(addr)
		}()
	}

	wk = wait(ctx, apiErrc, workerErrc, wk, runAPI, cfg.ShutdownTimeout)
	shutdown(app, stopAPI, wk, cfg.ShutdownTimeout)
}

// wait blocks until a signal or a fatal component exit. A worker that dies
// while the API runs is stopped on its own and the API keeps scoring. The
// returned worker is nil once it has been stopped.
func wait(ctx context.Context, apiErrc, workerErrc <-chan error, wk *bootstrap.Worker, apiRunning bool, timeout time.Duration) *bootstrap.Worker {
	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutting down (timeout: %v)...", timeout)
			return wk
		case err := <-apiErrc:
			logger.WithError(err).Error("API server stopped unexpectedly")
			return wk
		case err := <-workerErrc:
			if err == nil {
				err = errors.New("exited without error")
			}
			if !apiRunning {
				logger.WithError(err).Error("Scan worker stopped unexpectedly")
				return wk
			}
			logger.WithError(err).Error("Scan worker stopped, API keeps serving without async scans")
			wk.Stop(timeout)
			wk = nil
			workerErrc = nil
		}
	}
}

// shutdown stops intake first: the listener, then the stream consumer, then
// drains the worker pool. Each stage gets the full timeout.
func shutdown(app *fiber.App, stopAPI func(), wk *bootstrap.Worker, timeout time.Duration) {
	if app != nil {
		if err := app.ShutdownWithTimeout(timeout); err != nil {
			logger.Error("Error shutting down API: %v", err)
		}
		stopAPI()
		logger.Info("API server shut down")
	}
	if wk != nil {
		wk.Stop(timeout)
		s := wk.Stats()
		logger.Info("Worker shut down (processed=%d, dead=%d)", s.Processed, s.Dead)
	}
}
