package worker

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"phish_server/core/port/in"
	"phish_server/pkg/logger"

	"github.com/go-pkgz/pool"
)

var ErrPoolStopped = errors.New("worker pool stopped")

// PoolConfig holds worker pool configuration.
type PoolConfig struct {
	Workers        int
	QueueSize      int
	WorkerChanSize int
	JobTimeout     time.Duration
	MaxRetries     int
	RetryBase      time.Duration
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Workers:        4,
		QueueSize:      100,
		WorkerChanSize: 16,
		JobTimeout:     2 * time.Minute,
		MaxRetries:     3,
		RetryBase:      time.Second,
	}
}

// PoolStats is a snapshot of pool counters.
type PoolStats struct {
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
	Retried   int64 `json:"retried"`
	Dead      int64 `json:"dead"`
	Queued    int32 `json:"queued"`
}

// Pool runs scan deliveries on a go-pkgz/pool worker group. Successful and
// dead-lettered deliveries are acked; failed ones are retried with backoff.
type Pool struct {
	scans  in.ScanService
	acker  Acker
	config PoolConfig
	log    *logger.Logger

	group  *pool.WorkerGroup[*Delivery]
	queue  chan *Delivery
	feeder sync.WaitGroup

	tmu     sync.Mutex
	timers  sync.WaitGroup
	pending map[*time.Timer]struct{}

	mu      sync.RWMutex
	started bool
	stopped bool

	processed atomic.Int64
	failed    atomic.Int64
	retried   atomic.Int64
	dead      atomic.Int64
	queued    atomic.Int32
}

func NewPool(scans in.ScanService, acker Acker, config PoolConfig) *Pool {
	def := DefaultPoolConfig()
	if config.Workers <= 0 {
		config.Workers = def.Workers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = def.QueueSize
	}
	if config.WorkerChanSize <= 0 {
		config.WorkerChanSize = def.WorkerChanSize
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = def.JobTimeout
	}
	if config.RetryBase <= 0 {
		config.RetryBase = def.RetryBase
	}
	return &Pool{
		scans:   scans,
		acker:   acker,
		config:  config,
		log:     logger.WithField("component", "worker_pool"),
		queue:   make(chan *Delivery, config.QueueSize),
		pending: make(map[*time.Timer]struct{}),
	}
}

type scanWorker struct {
	pool *Pool
}

// Do implements pool.Worker.
func (w *scanWorker) Do(ctx context.Context, d *Delivery) error {
	w.pool.process(ctx, d)
	return nil
}

// Start launches the workers. ctx bounds in-flight jobs.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}

	// deliveries must not wait for a batch to fill
	p.group = pool.New[*Delivery](p.config.Workers, &scanWorker{pool: p}).
		WithBatchSize(1).
		WithWorkerChanSize(p.config.WorkerChanSize).
		WithContinueOnError()
	if err := p.group.Go(ctx); err != nil {
		return err
	}

	// the worker group is fed from a single goroutine
	p.feeder.Add(1)
	go func() {
		defer p.feeder.Done()
		for d := range p.queue {
			p.group.Submit(d)
		}
	}()

	p.started = true
	p.log.Info("worker pool started with %d workers", p.config.Workers)
	return nil
}

// Submit queues d, blocking while the queue is full.
func (p *Pool) Submit(ctx context.Context, d *Delivery) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.started || p.stopped {
		return ErrPoolStopped
	}
	select {
	case p.queue <- d:
		p.queued.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop drains queued deliveries and waits for the workers.
func (p *Pool) Stop(ctx context.Context) {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	// cancelled retries stay unacked and are reclaimed from the stream later
	p.tmu.Lock()
	for t := range p.pending {
		if t.Stop() {
			p.timers.Done()
		}
		delete(p.pending, t)
	}
	p.tmu.Unlock()
	p.timers.Wait()
	close(p.queue)
	p.feeder.Wait()

	if err := p.group.Close(ctx); err != nil && !errors.Is(err, context.Canceled) {
		p.log.WithError(err).Warn("error closing worker group")
	}

	s := p.Stats()
	p.log.WithFields(map[string]any{
		"processed": s.Processed,
		"failed":    s.Failed,
		"dead":      s.Dead,
	}).Info("worker pool stopped")
}

func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
		Retried:   p.retried.Load(),
		Dead:      p.dead.Load(),
		Queued:    p.queued.Load(),
	}
}

func (p *Pool) process(ctx context.Context, d *Delivery) {
	p.queued.Add(-1)
	log := p.log.WithFields(map[string]any{
		"stream_id": d.StreamID,
		"scan_id":   d.Scan.ScanID.String(),
	})

	jobCtx, cancel := context.WithTimeout(ctx, p.config.JobTimeout)
	err := p.scans.Process(jobCtx, d.Scan.ScanID)
	cancel()

	if err == nil {
		p.processed.Add(1)
		p.ack(d, log)
		return
	}

	p.failed.Add(1)
	log.WithError(err).WithField("attempt", d.Attempt).Warn("scan delivery failed")

	if d.Attempt < p.config.MaxRetries {
		p.retry(d, log)
		return
	}

	p.dead.Add(1)
	log.Error("scan delivery dead-lettered after %d attempts", d.Attempt+1)
	p.ack(d, log)
}

func (p *Pool) retry(d *Delivery, log *logger.Logger) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return
	}

	next := *d
	next.Attempt++
	p.retried.Add(1)

	// exponential backoff with jitter
	delay := p.config.RetryBase<<d.Attempt + time.Duration(rand.Int63n(int64(p.config.RetryBase)/2+1))

	p.timers.Add(1)
	p.tmu.Lock()
	defer p.tmu.Unlock()
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		defer p.timers.Done()
		p.tmu.Lock()
		delete(p.pending, t)
		p.tmu.Unlock()

		p.mu.RLock()
		defer p.mu.RUnlock()
		if p.stopped {
			return
		}
		select {
		case p.queue <- &next:
			p.queued.Add(1)
		default:
			log.Warn("queue full, leaving delivery for reclaim")
		}
	})
	p.pending[t] = struct{}{}
}

func (p *Pool) ack(d *Delivery, log *logger.Logger) {
	if p.acker == nil || d.StreamID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.acker.Ack(ctx, d.StreamID); err != nil {
		log.WithError(err).Warn("ack failed")
	}
}
