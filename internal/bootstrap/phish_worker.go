package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"phish_server/adapter/in/worker"
	"phish_server/internal/stream"
	"phish_server/pkg/logger"
)

var ErrNoQueue = errors.New("scan worker needs REDIS_URL")

// Worker consumes scan jobs from the stream and runs them on the pool.
type Worker struct {
	pool     *worker.Pool
	consumer runner
	deps     *Dependencies
	ctx      context.Context
	cancel   context.CancelFunc
	jobs     context.Context
	stopJobs context.CancelFunc
	wg       sync.WaitGroup
	runErr   error
	log      *logger.Logger
}

type runner interface {
	Run(ctx context.Context) error
}

// NewWorker builds a worker on shared dependencies. Without Redis there is
// nothing to consume.
func NewWorker(deps *Dependencies) (*Worker, error) {
	if deps.Stream == nil {
		return nil, ErrNoQueue
	}
	cfg := deps.Config

	poolConfig := worker.DefaultPoolConfig()
	poolConfig.Workers = cfg.WorkerCount
	poolConfig.QueueSize = cfg.WorkerQueueSize
	poolConfig.MaxRetries = cfg.ScanMaxRetries

	// acks go to the stream the consumer reads from
	pool := worker.NewPool(deps.Scans, stream.NewAcker(deps.Stream, cfg.ScanStream), poolConfig)

	ctx, cancel := context.WithCancel(context.Background())
	jobs, stopJobs := context.WithCancel(context.Background())
	return &Worker{
		pool:     pool,
		consumer: stream.NewConsumer(deps.Stream, pool, cfg.ScanStream, cfg.WorkerID),
		deps:     deps,
		ctx:      ctx,
		cancel:   cancel,
		jobs:     jobs,
		stopJobs: stopJobs,
		log:      logger.WithField("component", "worker").WithField("worker_id", cfg.WorkerID),
	}, nil
}

// Start runs the pool and the consumer and blocks until Stop. It returns
// the consumer's error when consumption ends on its own.
func (w *Worker) Start() error {
	// in-flight jobs outlive the consumer until Stop has drained the pool
	if err := w.pool.Start(w.jobs); err != nil {
		return err
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.log.Info("consuming %s as group %s", w.deps.Config.ScanStream, w.deps.Stream.Group())
		if err := w.consumer.Run(w.ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.log.WithError(err).Error("scan consumer stopped")
			w.runErr = fmt.Errorf("scan consumer: %w", err)
			w.cancel()
		}
	}()

	<-w.ctx.Done()
	w.wg.Wait()
	return w.runErr
}

// Stop halts consumption first so nothing new reaches the pool, then drains
// the pool within timeout. Unacked messages are reclaimed by the next worker.
func (w *Worker) Stop(timeout time.Duration) {
	w.cancel()
	w.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	w.pool.Stop(ctx)
	w.stopJobs()
}

func (w *Worker) Stats() worker.PoolStats {
	return w.pool.Stats()
}
