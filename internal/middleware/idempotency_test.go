package middleware

import (
	"io"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/etiktak/etiktak_backend/internal/logging"
)

func setupTestApp(t *testing.T, skip ...string) (*fiber.App, *atomic.Int32, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}

	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	app := fiber.New()
	app.Use(Idempotency(cache, time.Minute, logging.Discard(), skip...))

	var calls atomic.Int32
	app.Post("/resource", func(c *fiber.Ctx) error {
		n := calls.Add(1)
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"call": n})
	})
	app.Post("/failing", func(c *fiber.Ctx) error {
		calls.Add(1)
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict"})
	})

	cleanup := func() {
		cache.Close()
		mr.Close()
	}

	return app, &calls, cleanup
}

func post(t *testing.T, app *fiber.App, path, key string) (int, string) {
	t.Helper()
	return postAs(t, app, path, key, "", "{}")
}

func postAs(t *testing.T, app *fiber.App, path, key, deviceToken, body string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if key != "" {
		req.Header.Set(idempotencyKeyHeader, key)
	}
	if deviceToken != "" {
		req.Header.Set(deviceTokenHeader, deviceToken)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(respBody)
}

func TestIdempotencyWithoutHeaderPassesThrough(t *testing.T) {
	app, calls, cleanup := setupTestApp(t)
	defer cleanup()

	for i := 0; i < 2; i++ {
		if status, _ := post(t, app, "/resource", ""); status != fiber.StatusCreated {
			t.Fatalf("expected %d got %d", fiber.StatusCreated, status)
		}
	}
	if calls.Load() != 2 {
		t.Fatalf("expected handler to run twice, ran %d times", calls.Load())
	}
}

func TestIdempotencyReturnsCachedResponse(t *testing.T) {
	app, calls, cleanup := setupTestApp(t)
	defer cleanup()

	status, payload := post(t, app, "/resource", "abc123")
	if status != fiber.StatusCreated {
		t.Fatalf("expected status %d got %d", fiber.StatusCreated, status)
	}

	// Second request should return the cached response without invoking handler again.
	status, cached := post(t, app, "/resource", "abc123")
	if status != fiber.StatusCreated {
		t.Fatalf("expected cached status %d got %d", fiber.StatusCreated, status)
	}
	if cached != payload {
		t.Fatalf("expected cached payload %s got %s", payload, cached)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected handler to run once, ran %d times", calls.Load())
	}
}

func TestIdempotencyDoesNotStoreFailures(t *testing.T) {
	app, calls, cleanup := setupTestApp(t)
	defer cleanup()

	for i := 0; i < 2; i++ {
		if status, _ := post(t, app, "/failing", "retry-me"); status != fiber.StatusConflict {
			t.Fatalf("expected %d got %d", fiber.StatusConflict, status)
		}
	}
	if calls.Load() != 2 {
		t.Fatalf("expected failed request to be retried, handler ran %d times", calls.Load())
	}
}

func TestIdempotencyKeysAreScopedByPath(t *testing.T) {
	app, calls, cleanup := setupTestApp(t)
	defer cleanup()

	post(t, app, "/resource", "shared")
	post(t, app, "/failing", "shared")
	if calls.Load() != 2 {
		t.Fatalf("expected both handlers to run, got %d calls", calls.Load())
	}
}

func TestIdempotencyRejectsKeyReuseWithDifferentBody(t *testing.T) {
	app, calls, cleanup := setupTestApp(t)
	defer cleanup()

	status, first := postAs(t, app, "/resource", "shared", "", `{"mobileNumber":"111"}`)
	if status != fiber.StatusCreated {
		t.Fatalf("expected %d got %d", fiber.StatusCreated, status)
	}

	status, body := postAs(t, app, "/resource", "shared", "", `{"mobileNumber":"222"}`)
	if status != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected %d got %d", fiber.StatusUnprocessableEntity, status)
	}
	if body == first {
		t.Fatalf("stored response leaked to a different request")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected handler to run once, ran %d times", calls.Load())
	}
}

func TestIdempotencyRejectsKeyReuseByAnotherDevice(t *testing.T) {
	app, calls, cleanup := setupTestApp(t)
	defer cleanup()

	if status, _ := postAs(t, app, "/resource", "shared", "device-a.secret", "{}"); status != fiber.StatusCreated {
		t.Fatalf("expected %d got %d", fiber.StatusCreated, status)
	}
	if status, _ := postAs(t, app, "/resource", "shared", "device-b.secret", "{}"); status != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected %d got %d", fiber.StatusUnprocessableEntity, status)
	}
	if status, _ := postAs(t, app, "/resource", "shared", "device-a.secret", "{}"); status != fiber.StatusCreated {
		t.Fatalf("expected replay for the original device, got %d", status)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected handler to run once, ran %d times", calls.Load())
	}
}

func TestIdempotencySkippedPathsAlwaysRun(t *testing.T) {
	app, calls, cleanup := setupTestApp(t, "/resource")
	defer cleanup()

	_, first := post(t, app, "/resource", "same-key")
	_, second := post(t, app, "/resource", "same-key")
	if first == second {
		t.Fatalf("skipped path must not replay, got %s twice", first)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected handler to run twice, ran %d times", calls.Load())
	}
}
