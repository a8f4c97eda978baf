package worker

import (
	"context"
	"time"

	"phish_server/pkg/snowflake"
)

// ScanMessage is the stream payload announcing a new scan job.
type ScanMessage struct {
	ScanID     snowflake.ID `json:"scan_id"`
	EnqueuedAt time.Time    `json:"enqueued_at"`
}

// Delivery is one stream message handed to the pool.
type Delivery struct {
	StreamID string
	Scan     ScanMessage
	Attempt  int
}

// Acker confirms a delivery with its source.
type Acker interface {
	Ack(ctx context.Context, streamID string) error
}
