package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/etiktak/etiktak_backend/internal/apperr"
)

// ErrorHandler renders every error as {"error": message}. Domain errors are
// mapped through apperr; fiber errors keep their own code.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := apperr.HTTPStatus(err)
		message := apperr.PublicMessage(err)

		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
			message = fe.Message
		}
		if status >= http.StatusInternalServerError {
			logger.Error("request failed",
				slog.String("path", c.Path()),
				slog.String("request_id", RequestIDFrom(c)),
				slog.Any("error", err))
		}
		return c.Status(status).JSON(fiber.Map{"error": message})
	}
}
