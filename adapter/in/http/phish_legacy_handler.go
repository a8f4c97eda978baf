package http

import (
	"phish_server/core/domain"
	"phish_server/core/port/in"
	"phish_server/infra/middleware"
	"phish_server/pkg/apperr"

	"github.com/gofiber/fiber/v2"
)

const noURLMessage = "No URL provided"

// LegacyHandler keeps the original unversioned /predict contract: a bare
// {"url","prediction","confidence"} body and {"error": "..."} failures.
type LegacyHandler struct {
	scoring in.ScoringService
}

func NewLegacyHandler(scoring in.ScoringService) *LegacyHandler {
	return &LegacyHandler{scoring: scoring}
}

// Register mounts POST /predict behind guards (auth, rate limiting).
func (h *LegacyHandler) Register(router fiber.Router, guards ...fiber.Handler) {
	chain := []fiber.Handler{legacyErrors(), middleware.Recover()}
	chain = append(chain, guards...)
	router.Post("/predict", append(chain, h.Predict)...)
}

type legacyResponse struct {
	URL        string       `json:"url"`
	Prediction domain.Label `json:"prediction"`
	Confidence float64      `json:"confidence"`
}

func (h *LegacyHandler) Predict(c *fiber.Ctx) error {
	url, err := readURL(c)
	if err != nil {
		return err
	}
	p, err := h.scoring.Predict(c.UserContext(), url)
	if err != nil {
		return err
	}
	return c.JSON(legacyResponse{
		URL:        p.URL,
		Prediction: p.Label,
		Confidence: p.Confidence,
	})
}

// legacyErrors renders errors from the rest of the chain in the flat
// {"error": message} shape.
func legacyErrors() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		if err == nil {
			return nil
		}

		status, detail := middleware.LogError(c, err)
		msg := detail.Message
		switch {
		case apperr.IsCode(err, apperr.CodeMissingField):
			msg = noURLMessage
		case status == fiber.StatusUnauthorized:
			msg = "Unauthorized"
		}
		return c.Status(status).JSON(fiber.Map{"error": msg})
	}
}
