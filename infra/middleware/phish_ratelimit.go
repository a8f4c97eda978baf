package middleware

import (
	"context"
	"math"
	"strconv"
	"sync"
	"time"

	"phish_server/pkg/apperr"
	"phish_server/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

// RateLimitConfig holds configuration for rate limiting
type RateLimitConfig struct {
	RPS             float64
	Burst           int
	ClientExpiry    time.Duration
	CleanupInterval time.Duration
	// PerIP keys every request by IP, also before authentication has run.
	PerIP bool
}

type clientState struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client. Authenticated clients are
// keyed by client id, anonymous ones by IP.
type RateLimiter struct {
	cfg     RateLimitConfig
	mu      sync.Mutex
	clients map[string]*clientState
	now     func() time.Time
}

func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.Burst <= 0 {
		cfg.Burst = int(math.Max(1, math.Ceil(cfg.RPS)))
	}
	if cfg.ClientExpiry <= 0 {
		cfg.ClientExpiry = 5 * time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	return &RateLimiter{
		cfg:     cfg,
		clients: make(map[string]*clientState),
		now:     time.Now,
	}
}

// Run evicts idle clients until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(rl.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := rl.cleanup(); n > 0 {
				logger.Debug("rate limiter evicted %d idle clients", n)
			}
		}
	}
}

func (rl *RateLimiter) cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	removed := 0
	for key, st := range rl.clients {
		if now.Sub(st.lastSeen) > rl.cfg.ClientExpiry {
			delete(rl.clients, key)
			removed++
		}
	}
	return removed
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	st, ok := rl.clients[key]
	if !ok {
		st = &clientState{limiter: rate.NewLimiter(rate.Limit(rl.cfg.RPS), rl.cfg.Burst)}
		rl.clients[key] = st
	}
	st.lastSeen = rl.now()
	return st.limiter
}

// Handler rejects requests over the limit with 429. A non-positive RPS
// disables limiting.
func (rl *RateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if rl.cfg.RPS <= 0 {
			return c.Next()
		}

		key := "ip:" + c.IP()
		if id, ok := c.Locals(LocalClientID).(string); ok && id != "" && !rl.cfg.PerIP {
			key = id
		}

		lim := rl.limiter(key)
		c.Set("X-RateLimit-Limit", strconv.FormatFloat(rl.cfg.RPS, 'f', -1, 64))
		if !lim.AllowN(rl.now(), 1) {
			retry := time.Duration(float64(time.Second) / rl.cfg.RPS)
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(math.Ceil(retry.Seconds()))))
			return apperr.ErrRateLimited
		}
		return c.Next()
	}
}
