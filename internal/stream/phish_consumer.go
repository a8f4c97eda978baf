package stream

import (
	"context"
	"time"

	"phish_server/adapter/in/worker"

	"github.com/goccy/go-json"
)

// Consumer feeds scan messages from a stream into the worker pool.
type Consumer struct {
	stream  *RedisStream
	pool    *worker.Pool
	name    string
	source  string
	minIdle time.Duration
}

func NewConsumer(stream *RedisStream, pool *worker.Pool, source, name string) *Consumer {
	if source == "" {
		source = DefaultScanStream
	}
	return &Consumer{
		stream:  stream,
		pool:    pool,
		name:    name,
		source:  source,
		minIdle: 5 * time.Minute,
	}
}

// Run blocks until ctx is done. Messages left pending by dead consumers are
// reclaimed first.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.stream.CreateGroup(ctx, c.source); err != nil {
		return err
	}

	n, err := c.stream.Reclaim(ctx, c.source, c.name, c.minIdle, c.handle)
	if err != nil {
		c.stream.log.WithError(err).Warn("reclaim of stale scan messages failed")
	} else if n > 0 {
		c.stream.log.Info("reclaimed %d stale scan messages", n)
	}
	if pending, err := c.stream.Pending(ctx, c.source); err == nil && pending > 0 {
		c.stream.log.Info("%d scan messages pending in group %s", pending, c.stream.Group())
	}

	c.stream.Consume(ctx, c.source, c.name, c.handle)
	return nil
}

func (c *Consumer) handle(ctx context.Context, id string, data []byte) error {
	var msg worker.ScanMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.ScanID <= 0 {
		// undecodable messages would be redelivered forever
		c.stream.log.WithField("message_id", id).Warn("dropping malformed scan message")
		return c.stream.Ack(ctx, c.source, id)
	}
	return c.pool.Submit(ctx, &worker.Delivery{StreamID: id, Scan: msg})
}

// NewAcker binds worker acks to the source stream. The pool is built with it
// before the consumer that feeds the pool exists.
func NewAcker(stream *RedisStream, source string) worker.Acker {
	if source == "" {
		source = DefaultScanStream
	}
	return streamAcker{stream: stream, name: source}
}

type streamAcker struct {
	stream *RedisStream
	name   string
}

func (a streamAcker) Ack(ctx context.Context, id string) error {
	return a.stream.Ack(ctx, a.name, id)
}
