package http

import (
	"context"
	"time"

	"phish_server/infra/database"
	"phish_server/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Check is one dependency probed by /ready. A failing required check makes
// the node not ready; an optional one only degrades it.
type Check struct {
	Name     string
	Required bool
	Ping     func(ctx context.Context) error
	Pool     func() database.PoolStats
}

type checkResult struct {
	Status string               `json:"status"`
	Pool   *database.PoolHealth `json:"pool,omitempty"`
}

type HealthHandler struct {
	checks  []Check
	timeout time.Duration
}

func NewHealthHandler(checks ...Check) *HealthHandler {
	return &HealthHandler{checks: checks, timeout: 3 * time.Second}
}

func (h *HealthHandler) Register(router fiber.Router) {
	router.Get("/health", h.Health)
	router.Get("/ready", h.Ready)
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	results := make(map[string]checkResult, len(h.checks))
	ready, degraded := true, false

	for _, chk := range h.checks {
		res := checkResult{Status: "healthy"}
		if chk.Ping != nil {
			if err := chk.Ping(ctx); err != nil {
				// error text stays in the log
				logger.WithError(err).WithField("check", chk.Name).Warn("readiness check failed")
				res.Status = "unhealthy"
			}
		}
		if chk.Pool != nil && res.Status == "healthy" {
			ph := database.AssessPool(chk.Pool())
			res.Pool = &ph
			if ph.Status != database.PoolHealthy {
				res.Status = string(ph.Status)
			}
		}

		switch {
		case res.Status == "healthy":
		case chk.Required:
			ready = false
		default:
			degraded = true
		}
		results[chk.Name] = res
	}

	status, code := "ready", fiber.StatusOK
	switch {
	case !ready:
		status, code = "not ready", fiber.StatusServiceUnavailable
	case degraded:
		status = "degraded"
	}

	return c.Status(code).JSON(fiber.Map{
		"status":    status,
		"checks":    results,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// MetricsHandler exposes reg in the Prometheus text format.
func MetricsHandler(reg *prometheus.Registry) fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
}
