package stream

import (
	"context"
	"time"

	"phish_server/adapter/in/worker"
	"phish_server/core/port/out"
	"phish_server/pkg/snowflake"
)

// ScanProducer publishes scan jobs for the worker.
type ScanProducer struct {
	stream *RedisStream
	name   string
}

func NewScanProducer(stream *RedisStream, name string) *ScanProducer {
	if name == "" {
		name = DefaultScanStream
	}
	return &ScanProducer{stream: stream, name: name}
}

var _ out.JobPublisher = (*ScanProducer)(nil)

func (p *ScanProducer) PublishScan(ctx context.Context, id snowflake.ID) error {
	_, err := p.stream.Publish(ctx, p.name, worker.ScanMessage{
		ScanID:     id,
		EnqueuedAt: time.Now().UTC(),
	})
	return err
}
