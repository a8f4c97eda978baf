package http

import (
	"phish_server/core/domain"
	"phish_server/core/port/in"
	"phish_server/pkg/apperr"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// PredictHandler serves the versioned scoring API.
type PredictHandler struct {
	scoring in.ScoringService
}

func NewPredictHandler(scoring in.ScoringService) *PredictHandler {
	return &PredictHandler{scoring: scoring}
}

// Register registers scoring routes
func (h *PredictHandler) Register(router fiber.Router) {
	router.Post("/predict", h.Predict)
	router.Post("/predict/batch", h.PredictBatch)
	router.Post("/features", h.Explain)
	router.Get("/predictions/:id", h.GetPrediction)
	router.Get("/model", h.Model)
}

type predictRequest struct {
	URL urlField `json:"url"`
}

type batchRequest struct {
	URLs []string `json:"urls"`
}

type batchResponse struct {
	Items []domain.BatchItem `json:"items"`
	Count int                `json:"count"`
	Model string             `json:"model_version"`
}

func (h *PredictHandler) Predict(c *fiber.Ctx) error {
	url, err := readURL(c)
	if err != nil {
		return err
	}
	p, err := h.scoring.Predict(c.UserContext(), url)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, p)
}

func (h *PredictHandler) PredictBatch(c *fiber.Ctx) error {
	var req batchRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	items, err := h.scoring.PredictBatch(c.UserContext(), req.URLs)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, batchResponse{
		Items: items,
		Count: len(items),
		Model: h.scoring.ModelInfo().Version,
	})
}

// Explain returns the features, scaled row and probabilities for one URL.
func (h *PredictHandler) Explain(c *fiber.Ctx) error {
	url, err := readURL(c)
	if err != nil {
		return err
	}
	e, err := h.scoring.Explain(c.UserContext(), url)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, e)
}

func (h *PredictHandler) GetPrediction(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return apperr.InvalidInput("id", "must be a UUID")
	}
	p, err := h.scoring.GetPrediction(c.UserContext(), id)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, p)
}

func (h *PredictHandler) Model(c *fiber.Ctx) error {
	return respond(c, fiber.StatusOK, h.scoring.ModelInfo())
}

func readURL(c *fiber.Ctx) (string, error) {
	var req predictRequest
	if err := decodeBody(c, &req); err != nil {
		return "", err
	}
	return req.URL.Value()
}
