package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/presenca/internal/registry"
)

// Version is reported by /health.
const Version = "0.1.0"

// ModelStatus reports the face model lifecycle
type ModelStatus interface {
	Ready() bool
	States() []registry.Handle
}

// Pinger checks a backing store
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	models ModelStatus
	db     Pinger
}

// NewHealthHandler builds the probes. A nil db skips the database check.
func NewHealthHandler(models ModelStatus, db Pinger) *HealthHandler {
	return &HealthHandler{models: models, db: db}
}

type HealthResponse struct {
	Status   string            `json:"status"`
	Version  string            `json:"version,omitempty"`
	Models   []registry.Handle `json:"models,omitempty"`
	Database string            `json:"database,omitempty"`
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:  "ok",
		Version: Version,
	})
}

// Ready answers 503 until every model is loaded and the database responds.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	resp := HealthResponse{Status: "ready"}
	ready := true

	if h.models != nil {
		resp.Models = h.models.States()
		if !h.models.Ready() {
			ready = false
		}
	}

	if h.db != nil {
		resp.Database = "up"
		if err := h.db.Ping(c.UserContext()); err != nil {
			resp.Database = "down"
			ready = false
		}
	}

	if !ready {
		resp.Status = "not_ready"
		return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
	}
	return c.JSON(resp)
}
