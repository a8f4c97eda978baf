package cache

import (
	"context"
	"errors"
	"time"

	"phish_server/core/domain"
	"phish_server/core/port/out"
)

// JSONStore is the subset of pkg/cache.RedisCache the adapter needs.
type JSONStore interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Ping(ctx context.Context) error
}

// PredictionCache implements out.PredictionCache on a JSON store.
type PredictionCache struct {
	store JSONStore
}

func NewPredictionCache(store JSONStore) *PredictionCache {
	return &PredictionCache{store: store}
}

var _ out.PredictionCache = (*PredictionCache)(nil)

func (c *PredictionCache) Get(ctx context.Context, key string) (*domain.Prediction, bool, error) {
	var p domain.Prediction
	ok, err := c.store.GetJSON(ctx, key, &p)
	if err != nil || !ok {
		return nil, false, err
	}
	return &p, true, nil
}

func (c *PredictionCache) Set(ctx context.Context, key string, p *domain.Prediction, ttl time.Duration) error {
	return c.store.SetJSON(ctx, key, p, ttl)
}

func (c *PredictionCache) Ping(ctx context.Context) error {
	return c.store.Ping(ctx)
}

// ErrDisabled is reported by Noop.Ping.
var ErrDisabled = errors.New("cache disabled")

// Noop is used when Redis is unavailable: every lookup misses.
type Noop struct{}

var _ out.PredictionCache = Noop{}

func (Noop) Get(context.Context, string) (*domain.Prediction, bool, error) { return nil, false, nil }
func (Noop) Set(context.Context, string, *domain.Prediction, time.Duration) error {
	return nil
}
func (Noop) Ping(context.Context) error { return ErrDisabled }
