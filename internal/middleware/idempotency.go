package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/etiktak/etiktak_backend/internal/hashing"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	idempotencyPrefix    = "idempotency:v2:"
	idempotencyTimeout   = 2 * time.Second
)

// storedResponse is both the reservation and the cached response. Status is
// zero while the first request is still running.
type storedResponse struct {
	Fingerprint string            `json:"fingerprint"`
	Status      int               `json:"status"`
	Body        string            `json:"body,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// Idempotency replays the stored response for a repeated Idempotency-Key on
// unsafe methods. Requests without the header pass straight through, as do
// the paths in skip. Only successful responses are stored, so a failed
// request may be retried with the same key.
//
// A key is bound to the request that first used it: its body and device
// token. Reusing the key for a different request is rejected with 422 and
// never sees the stored response.
func Idempotency(cache *redis.Client, ttl time.Duration, logger *slog.Logger, skip ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch strings.ToUpper(c.Method()) {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		key := c.Get(idempotencyKeyHeader)
		if key == "" || slices.Contains(skip, c.Path()) {
			return c.Next()
		}
		cacheKey := idempotencyPrefix + c.Method() + ":" + c.Path() + ":" + key
		fingerprint := requestFingerprint(c)

		ctx, cancel := context.WithTimeout(context.Background(), idempotencyTimeout)
		defer cancel()

		cached, err := cache.Get(ctx, cacheKey).Result()
		if err == nil {
			var stored storedResponse
			if err := json.Unmarshal([]byte(cached), &stored); err != nil {
				logger.Warn("failed to decode stored idempotent response", slog.String("key", key), slog.Any("error", err))
				return fiber.NewError(fiber.StatusConflict, "duplicate request")
			}
			if stored.Fingerprint != fingerprint {
				logger.Warn("idempotency key reused for a different request", slog.String("key", key), slog.String("path", c.Path()))
				return fiber.NewError(fiber.StatusUnprocessableEntity, "idempotency key already used for a different request")
			}
			if stored.Status == 0 {
				return fiber.NewError(fiber.StatusConflict, "duplicate request currently processing")
			}
			for header, value := range stored.Headers {
				if strings.EqualFold(header, fiber.HeaderContentLength) {
					continue
				}
				c.Set(header, value)
			}
			return c.Status(stored.Status).SendString(stored.Body)
		}
		if !errors.Is(err, redis.Nil) {
			logger.Error("idempotency lookup failed", slog.String("key", key), slog.Any("error", err))
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency store failure")
		}

		marker, err := json.Marshal(storedResponse{Fingerprint: fingerprint})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency reservation failure")
		}
		reserved, err := cache.SetNX(ctx, cacheKey, marker, ttl).Result()
		if err != nil {
			logger.Error("idempotency reservation failed", slog.String("key", key), slog.Any("error", err))
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency reservation failure")
		}
		if !reserved {
			return fiber.NewError(fiber.StatusConflict, "duplicate request currently processing")
		}

		release := func() {
			cleanupCtx, cancel := context.WithTimeout(context.Background(), idempotencyTimeout)
			defer cancel()
			cache.Del(cleanupCtx, cacheKey)
		}

		if err := c.Next(); err != nil {
			release()
			return err
		}
		status := c.Response().StatusCode()
		if status >= fiber.StatusBadRequest {
			release()
			return nil
		}

		stored := storedResponse{
			Fingerprint: fingerprint,
			Status:      status,
			Body:        string(c.Response().Body()),
			Headers:     map[string]string{},
		}
		c.Response().Header.VisitAll(func(k, v []byte) {
			stored.Headers[string(k)] = string(v)
		})

		payload, err := json.Marshal(stored)
		if err != nil {
			logger.Error("failed to encode idempotent response", slog.String("key", key), slog.Any("error", err))
			release()
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency persistence failure")
		}

		persistCtx, persistCancel := context.WithTimeout(context.Background(), idempotencyTimeout)
		defer persistCancel()
		if err := cache.Set(persistCtx, cacheKey, payload, ttl).Err(); err != nil {
			logger.Error("failed to persist idempotent response", slog.String("key", key), slog.Any("error", err))
			release()
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency persistence failure")
		}

		return nil
	}
}

// requestFingerprint identifies the caller and payload a key was issued for.
func requestFingerprint(c *fiber.Ctx) string {
	return hashing.Fingerprint(c.Get(deviceTokenHeader) + "\n" + c.Get(fiber.HeaderContentType) + "\n" + string(c.Body()))
}
