package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
	"github.com/saturnino-fabrica-de-software/presenca/internal/imaging"
)

// AttendanceService interface for the service
type AttendanceService interface {
	Enroll(ctx context.Context, userID string, img imaging.Source) (*domain.FaceTemplate, error)
	Verify(ctx context.Context, userID string, img imaging.Source) (*domain.AttendanceResult, error)
	Remove(ctx context.Context, userID string) error
}

// AttendanceHandler handles enrollment and attendance requests
type AttendanceHandler struct {
	service AttendanceService
	logger  *slog.Logger
}

// NewAttendanceHandler creates a new AttendanceHandler instance
func NewAttendanceHandler(service AttendanceService, logger *slog.Logger) *AttendanceHandler {
	return &AttendanceHandler{
		service: service,
		logger:  logger,
	}
}

// Enroll POST /v1/templates/:user_id - enroll or replace a face template
func (h *AttendanceHandler) Enroll(c *fiber.Ctx) error {
	userID, err := userIDParam(c)
	if err != nil {
		return err
	}

	img, err := extractImage(c)
	if err != nil {
		return err
	}

	tpl, err := h.service.Enroll(c.UserContext(), userID, img)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(tpl)
}

// Remove DELETE /v1/templates/:user_id - delete a template (LGPD)
func (h *AttendanceHandler) Remove(c *fiber.Ctx) error {
	userID, err := userIDParam(c)
	if err != nil {
		return err
	}

	if err := h.service.Remove(c.UserContext(), userID); err != nil {
		return err
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// Mark POST /v1/attendance/:user_id - liveness plus identity check
func (h *AttendanceHandler) Mark(c *fiber.Ctx) error {
	userID, err := userIDParam(c)
	if err != nil {
		return err
	}

	img, err := extractImage(c)
	if err != nil {
		return err
	}

	result, err := h.service.Verify(c.UserContext(), userID, img)
	if err != nil {
		return err
	}

	return c.JSON(result)
}

func userIDParam(c *fiber.Ctx) (string, error) {
	userID := strings.TrimSpace(c.Params("user_id"))
	if userID == "" {
		return "", domain.ErrValidationFailed.WithError(errors.New("user_id is required"))
	}
	if len(userID) > 255 {
		return "", domain.ErrValidationFailed.WithError(errors.New("user_id is too long"))
	}
	return userID, nil
}

func errInvalidField(name string) error {
	return fmt.Errorf("invalid %s", name)
}
