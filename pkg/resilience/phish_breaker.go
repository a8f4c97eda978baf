// Package resilience guards calls to optional infrastructure.
package resilience

import (
	"errors"
	"time"

	"phish_server/pkg/logger"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerConfig holds configuration for a circuit breaker.
type BreakerConfig struct {
	Name                string
	MaxHalfOpenRequests uint32        // probes allowed while half-open
	Interval            time.Duration // closed state counter reset
	Timeout             time.Duration // open duration before half-open
	ConsecutiveFailures uint32
	FailureRatio        float64 // applied once MinRequests is reached
	MinRequests         uint32
}

// DefaultBreakerConfig returns sensible defaults.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:                name,
		MaxHalfOpenRequests: 3,
		Interval:            60 * time.Second,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
		FailureRatio:        0.6,
		MinRequests:         10,
	}
}

// Breaker wraps gobreaker with the service's logging and error mapping.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewBreaker creates a breaker from cfg.
func NewBreaker(cfg BreakerConfig) *Breaker {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxHalfOpenRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= cfg.ConsecutiveFailures {
				return true
			}
			if counts.Requests < cfg.MinRequests || counts.Requests == 0 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state changed")
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs fn unless the breaker is open.
func (b *Breaker) Execute(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	return err
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.cb.Name()
}

// State returns "closed", "half-open" or "open".
func (b *Breaker) State() string {
	return b.cb.State().String()
}

// Open reports whether calls are currently rejected.
func (b *Breaker) Open() bool {
	return b.cb.State() == gobreaker.StateOpen
}
