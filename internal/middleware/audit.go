package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Audit emits one structured log line per request. Bodies are never logged
// since they carry mobile numbers and passwords.
func Audit(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", c.Response().StatusCode()),
			slog.Duration("duration", time.Since(start)),
		}
		if requestID := RequestIDFrom(c); requestID != "" {
			attrs = append(attrs, slog.String("request_id", requestID))
		}
		if clientID := ClientIDFrom(c); clientID != "" {
			attrs = append(attrs, slog.String("client_id", clientID))
		}
		if err != nil {
			attrs = append(attrs, slog.Any("error", err))
			logger.Warn("request completed", attrs...)
			return err
		}

		logger.Info("request completed", attrs...)
		return nil
	}
}
