package stream

import (
	"context"
	"errors"
	"strings"
	"time"

	"phish_server/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultScanStream = "phish:scan"
	DefaultScanGroup  = "phish-workers"

	payloadField = "data"
)

// Handler processes one stream message and owns its ack. Unacked messages
// stay pending until reclaimed.
type Handler func(ctx context.Context, id string, data []byte) error

// RedisStream is a consumer-group view of Redis streams.
type RedisStream struct {
	client *redis.Client
	group  string
	maxLen int64
	log    *logger.Logger
}

func NewRedisStream(client *redis.Client, group string) *RedisStream {
	if group == "" {
		group = DefaultScanGroup
	}
	return &RedisStream{
		client: client,
		group:  group,
		maxLen: 100000,
		log:    logger.WithField("component", "stream"),
	}
}

func (s *RedisStream) Group() string { return s.group }

func (s *RedisStream) CreateGroup(ctx context.Context, stream string) error {
	err := s.client.XGroupCreateMkStream(ctx, stream, s.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// Publish appends data as JSON and returns the message id.
func (s *RedisStream) Publish(ctx context.Context, stream string, data any) (string, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return "", err
	}

	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]any{payloadField: payload},
	}).Result()
}

// Consume reads new messages for consumer until ctx is done.
func (s *RedisStream) Consume(ctx context.Context, stream, consumer string, handler Handler) {
	for {
		if ctx.Err() != nil {
			return
		}

		streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    s.group,
			Consumer: consumer,
			Streams:  []string{stream, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			s.log.WithError(err).WithField("stream", stream).Warn("stream read failed")
			sleep(ctx, time.Second)
			continue
		}

		for _, st := range streams {
			s.dispatch(ctx, st.Stream, st.Messages, handler)
		}
	}
}

// Reclaim takes over messages pending longer than minIdle, typically left by
// a consumer that died, and runs them through handler.
func (s *RedisStream) Reclaim(ctx context.Context, stream, consumer string, minIdle time.Duration, handler Handler) (int, error) {
	start := "0-0"
	total := 0
	for {
		msgs, next, err := s.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   stream,
			Group:    s.group,
			Consumer: consumer,
			MinIdle:  minIdle,
			Start:    start,
			Count:    50,
		}).Result()
		if err != nil {
			return total, err
		}
		s.dispatch(ctx, stream, msgs, handler)
		total += len(msgs)
		if next == "0-0" || next == "" {
			return total, nil
		}
		start = next
	}
}

func (s *RedisStream) dispatch(ctx context.Context, stream string, msgs []redis.XMessage, handler Handler) {
	for _, msg := range msgs {
		data, ok := msg.Values[payloadField].(string)
		if !ok {
			s.log.WithField("message_id", msg.ID).Warn("message without payload, acking")
			_ = s.Ack(ctx, stream, msg.ID)
			continue
		}
		if err := handler(ctx, msg.ID, []byte(data)); err != nil {
			s.log.WithError(err).WithField("message_id", msg.ID).Warn("handler failed")
		}
	}
}

func (s *RedisStream) Ack(ctx context.Context, stream, id string) error {
	return s.client.XAck(ctx, stream, s.group, id).Err()
}

func (s *RedisStream) Pending(ctx context.Context, stream string) (int64, error) {
	info, err := s.client.XPending(ctx, stream, s.group).Result()
	if err != nil {
		return 0, err
	}
	return info.Count, nil
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
