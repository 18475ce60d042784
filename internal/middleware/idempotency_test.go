package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/crossbank/internal/logging"
)

func setupTestApp(t *testing.T) (*fiber.App, *int, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		cache.Close()
		mr.Close()
	})

	calls := 0
	app := fiber.New()
	app.Use(Idempotency(cache, time.Minute, logging.Discard()))
	app.Post("/transfers", func(c *fiber.Ctx) error {
		calls++
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"status": "aborted", "call": calls})
	})
	app.Post("/other", func(c *fiber.Ctx) error {
		calls++
		return c.SendStatus(fiber.StatusCreated)
	})
	app.Post("/broken", func(c *fiber.Ctx) error {
		calls++
		return fiber.NewError(fiber.StatusBadRequest, "bad body")
	})
	app.Get("/transfers", func(c *fiber.Ctx) error {
		return c.SendString("list")
	})
	return app, &calls, mr
}

func post(t *testing.T, app *fiber.App, path, key string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader("{}"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	return resp
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	app, calls, _ := setupTestApp(t)

	resp := post(t, app, "/transfers", "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected %d got %d", fiber.StatusBadRequest, resp.StatusCode)
	}
	if *calls != 0 {
		t.Fatalf("handler should not run without a key")
	}
}

func TestIdempotencySkipsSafeMethods(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/transfers", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected GET to pass through, got %d", resp.StatusCode)
	}
}

func TestIdempotencyReplaysNonSuccessResponses(t *testing.T) {
	app, calls, _ := setupTestApp(t)

	resp := post(t, app, "/transfers", "abc123")
	if resp.StatusCode != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected status %d got %d", fiber.StatusUnprocessableEntity, resp.StatusCode)
	}
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	resp.Body.Close()

	resp2 := post(t, app, "/transfers", "abc123")
	if resp2.StatusCode != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected cached status %d got %d", fiber.StatusUnprocessableEntity, resp2.StatusCode)
	}
	if resp2.Header.Get("Idempotent-Replayed") != "true" {
		t.Fatalf("expected replay marker header")
	}
	cachedPayload, err := io.ReadAll(resp2.Body)
	if err != nil {
		t.Fatalf("read cached body: %v", err)
	}
	resp2.Body.Close()

	if string(cachedPayload) != string(payload) {
		t.Fatalf("expected cached payload %s got %s", payload, cachedPayload)
	}
	var decoded map[string]any
	if err := json.Unmarshal(cachedPayload, &decoded); err != nil {
		t.Fatalf("cached payload invalid json: %v", err)
	}
	if *calls != 1 {
		t.Fatalf("handler ran %d times", *calls)
	}
}

func TestIdempotencyKeysAreScopedByRoute(t *testing.T) {
	app, calls, _ := setupTestApp(t)

	post(t, app, "/transfers", "same")
	resp := post(t, app, "/other", "same")
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("expected /other to run, got %d", resp.StatusCode)
	}
	if *calls != 2 {
		t.Fatalf("expected both handlers to run, got %d calls", *calls)
	}
}

func TestIdempotencyInProgressConflict(t *testing.T) {
	app, calls, mr := setupTestApp(t)
	if err := mr.Set(idempotencyPrefix+"POST:/transfers:busy", inProgressMarker); err != nil {
		t.Fatalf("seed: %v", err)
	}

	resp := post(t, app, "/transfers", "busy")
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("expected %d got %d", fiber.StatusConflict, resp.StatusCode)
	}
	if *calls != 0 {
		t.Fatalf("handler should not run while a duplicate is in flight")
	}
}

func TestIdempotencyReleasesKeyOnHandlerError(t *testing.T) {
	app, calls, mr := setupTestApp(t)

	resp := post(t, app, "/broken", "retry-me")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected %d got %d", fiber.StatusBadRequest, resp.StatusCode)
	}
	if mr.Exists(idempotencyPrefix + "POST:/broken:retry-me") {
		t.Fatalf("reservation should be released after a handler error")
	}
	post(t, app, "/broken", "retry-me")
	if *calls != 2 {
		t.Fatalf("expected retry to reach the handler, got %d calls", *calls)
	}
}
