package http

import (
	"phish_server/core/port/in"
	"phish_server/pkg/apperr"
	"phish_server/pkg/snowflake"

	"github.com/gofiber/fiber/v2"
)

// ScanHandler handles asynchronous scan jobs.
type ScanHandler struct {
	scans in.ScanService
}

func NewScanHandler(scans in.ScanService) *ScanHandler {
	return &ScanHandler{scans: scans}
}

// Register registers scan routes
func (h *ScanHandler) Register(router fiber.Router) {
	scans := router.Group("/scans")
	scans.Post("/", h.Create)
	scans.Get("/:id", h.Get)
}

// Create queues a scan and answers 202 with the pending job.
func (h *ScanHandler) Create(c *fiber.Ctx) error {
	var req batchRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	job, err := h.scans.Create(c.UserContext(), req.URLs)
	if err != nil {
		return err
	}
	c.Location("/api/v1/scans/" + job.ID.String())
	return respond(c, fiber.StatusAccepted, job)
}

func (h *ScanHandler) Get(c *fiber.Ctx) error {
	id, err := snowflake.ParseString(c.Params("id"))
	if err != nil {
		return apperr.InvalidInput("id", "must be a scan id")
	}
	job, err := h.scans.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, job)
}
