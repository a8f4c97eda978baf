package middleware

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"phish_server/pkg/apperr"
	"phish_server/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	LocalRequestID = "request_id"
	LocalClientID  = "client_id"
)

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Success   bool        `json:"success"`
	Error     ErrorDetail `json:"error"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp string      `json:"timestamp"`
}

type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorHandler is the central Fiber error handler. 5xx responses never
// carry the underlying message.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status, detail := LogError(c, err)
		requestID, _ := c.Locals(LocalRequestID).(string)

		return c.Status(status).JSON(ErrorResponse{
			Success:   false,
			Error:     detail,
			RequestID: requestID,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// LogError logs err at a level matching its status and returns what the
// client may see.
func LogError(c *fiber.Ctx, err error) (int, ErrorDetail) {
	status, detail := Describe(err)

	log := logger.WithContext(UserContext(c)).WithField("error_code", detail.Code)
	if cause := causeOf(err); cause != nil {
		log = log.WithError(cause)
	}

	switch {
	case status >= 500:
		if !apperr.IsAppError(err) {
			log = log.WithField("stack", string(debug.Stack()))
		}
		log.Error("request failed: %s %s", c.Method(), c.Path())
	case status == fiber.StatusNotFound || status == fiber.StatusMethodNotAllowed:
		log.Debug("client error: %s", detail.Message)
	default:
		log.Warn("client error: %s", detail.Message)
	}
	return status, detail
}

func causeOf(err error) error {
	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		return appErr.Err
	}
	return err
}

// Describe maps err to the status and body a client may see.
func Describe(err error) (int, ErrorDetail) {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		msg := fe.Message
		if fe.Code >= 500 {
			msg = apperr.InternalMessage
		}
		return fe.Code, ErrorDetail{Code: mapHTTPStatusToCode(fe.Code), Message: msg}
	}

	if !apperr.IsAppError(err) {
		return fiber.StatusInternalServerError, ErrorDetail{
			Code:    apperr.CodeInternalError,
			Message: apperr.InternalMessage,
		}
	}

	e := apperr.AsAppError(err)
	if e.Status >= 500 {
		detail := ErrorDetail{Code: e.Code, Message: apperr.InternalMessage}
		// which dependency is down is safe to say
		if e.Code == apperr.CodeUnavailable {
			detail.Message = e.Message
		}
		return e.Status, detail
	}
	return e.Status, ErrorDetail{Code: e.Code, Message: e.Message, Details: e.Details}
}

// RequestID middleware adds a unique request ID to each request and stores
// it on the user context for the logger.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := c.Get("X-Request-ID")
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.New().String()
		}
		c.Locals(LocalRequestID, requestID)
		c.Set("X-Request-ID", requestID)
		c.SetUserContext(context.WithValue(c.UserContext(), logger.RequestIDKey, requestID))
		return c.Next()
	}
}

// UserContext returns the request context carrying request and client ids.
func UserContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if clientID, ok := c.Locals(LocalClientID).(string); ok && clientID != "" {
		ctx = context.WithValue(ctx, logger.ClientIDKey, clientID)
	}
	return ctx
}

// RequestLogger logs every finished request.
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		// status is final only after the error handler ran
		status := c.Response().StatusCode()
		if err != nil {
			status, _ = Describe(err)
		}

		log := logger.WithContext(UserContext(c)).
			WithFields(map[string]any{
				"method":     c.Method(),
				"path":       c.Path(),
				"status":     status,
				"ip":         c.IP(),
				"user_agent": c.Get(fiber.HeaderUserAgent),
			}).
			WithDuration(time.Since(start))

		switch {
		case status >= 500:
			log.Error("%s %s -> %d", c.Method(), c.Path(), status)
		case status >= 400:
			log.Warn("%s %s -> %d", c.Method(), c.Path(), status)
		default:
			log.Info("%s %s -> %d", c.Method(), c.Path(), status)
		}
		return err
	}
}

// Recover turns handler panics into an opaque 500.
func Recover() fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.WithContext(UserContext(c)).WithFields(map[string]any{
					"panic":  fmt.Sprintf("%v", r),
					"stack":  string(debug.Stack()),
					"path":   c.Path(),
					"method": c.Method(),
				}).Error("panic recovered")
				err = apperr.Internal(apperr.InternalMessage)
			}
		}()
		return c.Next()
	}
}

func mapHTTPStatusToCode(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return apperr.CodeBadRequest
	case fiber.StatusUnauthorized:
		return apperr.CodeUnauthorized
	case fiber.StatusNotFound:
		return apperr.CodeNotFound
	case fiber.StatusRequestEntityTooLarge:
		return apperr.CodeBatchTooLarge
	case fiber.StatusTooManyRequests:
		return apperr.CodeRateLimited
	case fiber.StatusBadGateway, fiber.StatusServiceUnavailable, fiber.StatusGatewayTimeout:
		return apperr.CodeUnavailable
	case fiber.StatusInternalServerError:
		return apperr.CodeInternalError
	default:
		return "HTTP_" + fmt.Sprint(status)
	}
}
