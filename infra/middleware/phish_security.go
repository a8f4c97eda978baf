package middleware

import (
	"strconv"
	"time"

	"phish_server/pkg/metrics"

	"github.com/gofiber/fiber/v2"
)

// SecurityHeaders adds security headers to all responses
func SecurityHeaders() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "no-referrer")
		c.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Set("Cache-Control", "no-store")
		return c.Next()
	}
}

// MaxBodySize limits request body size for specific endpoints
func MaxBodySize(maxBytes int) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if len(c.Body()) > maxBytes {
			return fiber.NewError(fiber.StatusRequestEntityTooLarge, "request body too large")
		}
		return c.Next()
	}
}

// Metrics counts finished requests by route template.
func Metrics(rec *metrics.Recorder) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status, _ = Describe(err)
		}
		// the template keeps label cardinality bounded
		route := c.Route().Path
		if status == fiber.StatusNotFound && route == "/" {
			route = "unmatched"
		}
		rec.ObserveHTTP(c.Method(), route, strconv.Itoa(status))
		rec.ObserveHTTPDuration(c.Method(), route, time.Since(start))
		return err
	}
}
