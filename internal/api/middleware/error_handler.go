package middleware

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
)

// ErrorHandler renders errors as {"error": {...}}. AppErrors keep their
// status and code; context deadlines become TIMEOUT.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		requestID := RequestID(c)

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(fiber.Map{
				"error": fiber.Map{
					"code":       "HTTP_ERROR",
					"message":    fiberErr.Message,
					"request_id": requestID,
				},
			})
		}

		if errors.Is(err, context.DeadlineExceeded) {
			err = domain.ErrTimeout.WithError(err)
		}

		var appErr *domain.AppError
		if errors.As(err, &appErr) {
			if appErr.StatusCode >= 500 {
				logger.Error("internal error",
					slog.String("request_id", requestID),
					slog.String("code", appErr.Code),
					slog.String("message", appErr.Message),
					slog.Any("error", appErr.Err),
				)
			}

			body := fiber.Map{
				"code":       appErr.Code,
				"message":    appErr.Message,
				"request_id": requestID,
			}
			if appErr.StatusCode < 500 && appErr.Err != nil {
				body["details"] = appErr.Err.Error()
			}

			return c.Status(appErr.StatusCode).JSON(fiber.Map{"error": body})
		}

		logger.Error("unhandled error",
			slog.String("request_id", requestID),
			slog.Any("error", err),
			slog.String("path", c.Path()),
		)

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": fiber.Map{
				"code":       "INTERNAL_ERROR",
				"message":    "An unexpected error occurred",
				"request_id": requestID,
			},
		})
	}
}
