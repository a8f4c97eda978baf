// Package http exposes the scoring and scan services over Fiber.
package http

import (
	"bytes"
	"time"

	"phish_server/infra/middleware"
	"phish_server/pkg/apperr"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

func respond(c *fiber.Ctx, status int, data any) error {
	requestID, _ := c.Locals(middleware.LocalRequestID).(string)
	return c.Status(status).JSON(APIResponse{
		Success:   true,
		Data:      data,
		RequestID: requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// decodeBody reads a JSON object regardless of the declared content type.
func decodeBody(c *fiber.Ctx, dst any) error {
	body := bytes.TrimSpace(c.Body())
	if len(body) == 0 || body[0] != '{' {
		return apperr.BadRequest("request body must be a JSON object")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return apperr.BadRequest("invalid JSON body")
	}
	return nil
}

// urlField accepts a JSON string. A missing or null url reads as empty.
type urlField struct {
	raw json.RawMessage
}

func (u *urlField) UnmarshalJSON(b []byte) error {
	u.raw = append(u.raw[:0], b...)
	return nil
}

func (u urlField) Value() (string, error) {
	if len(u.raw) == 0 || string(u.raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(u.raw, &s); err != nil {
		return "", apperr.InvalidInput("url", "must be a string")
	}
	return s, nil
}
