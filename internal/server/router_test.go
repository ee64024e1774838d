package server

import (
	"bytes"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"

	"github.com/menucache/menucache/internal/logging"
)

func TestRouterForwardsInScopeRequests(t *testing.T) {
	app, recorder := newTestApp(t, "/Menu/")

	resp, err := app.Test(httptest.NewRequest("GET", "http://menu.local/Menu/index.html", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 204 status, got %d (body=%s)", resp.StatusCode, string(body))
	}
	if recorder.lastPath != "/Menu/index.html" {
		t.Fatalf("expected fetch for /Menu/index.html, got %s", recorder.lastPath)
	}
	if reqID := resp.Header.Get("X-Request-ID"); reqID == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}
	if recorder.lastRequestID != resp.Header.Get("X-Request-ID") {
		t.Fatalf("handler should observe the middleware request id")
	}
}

func TestRouterAcceptsScopeRootWithoutSlash(t *testing.T) {
	app, recorder := newTestApp(t, "/Menu")

	resp, err := app.Test(httptest.NewRequest("GET", "http://menu.local/Menu", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNoContent || recorder.calls != 1 {
		t.Fatalf("expected scope root to be forwarded, got %d", resp.StatusCode)
	}
}

func TestRouterReturns404OutOfScope(t *testing.T) {
	app, recorder := newTestApp(t, "/Menu/")

	resp, err := app.Test(httptest.NewRequest("GET", "http://menu.local/other/index.html", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404 status, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte(`"out_of_scope"`)) {
		t.Fatalf("expected out_of_scope error, got %s", string(body))
	}
	if recorder.calls != 0 {
		t.Fatalf("fetch handler must not run for out-of-scope paths")
	}
}

func TestRouterSkipsFetchForDiagnostics(t *testing.T) {
	app, recorder := newTestApp(t, "/Menu/")
	app.Get("/-/ping", func(c fiber.Ctx) error {
		return c.SendString("pong")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "http://menu.local/-/ping", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != fiber.StatusOK || string(body) != "pong" {
		t.Fatalf("expected diagnostics route, got %d %s", resp.StatusCode, string(body))
	}
	if recorder.calls != 0 {
		t.Fatalf("fetch handler must not run for diagnostics")
	}
}

func TestNewAppRequiresDependencies(t *testing.T) {
	if _, err := NewApp(AppOptions{Fetcher: &fetchRecorder{}, ListenPort: 1}); err == nil {
		t.Fatalf("expected error without logger")
	}
	if _, err := NewApp(AppOptions{Logger: logging.Discard(), ListenPort: 1}); err == nil {
		t.Fatalf("expected error without fetch handler")
	}
	if _, err := NewApp(AppOptions{Logger: logging.Discard(), Fetcher: &fetchRecorder{}}); err == nil {
		t.Fatalf("expected error without listen port")
	}
}

func newTestApp(t *testing.T, scope string) (*fiber.App, *fetchRecorder) {
	t.Helper()

	recorder := &fetchRecorder{}
	app, err := NewApp(AppOptions{
		Logger:     logging.Discard(),
		Fetcher:    recorder,
		Scope:      scope,
		ListenPort: 5000,
	})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}
	return app, recorder
}

type fetchRecorder struct {
	calls         int
	lastPath      string
	lastRequestID string
}

func (p *fetchRecorder) Fetch(c fiber.Ctx) error {
	p.calls++
	p.lastPath = string(c.Request().URI().Path())
	p.lastRequestID = RequestID(c)
	return c.SendStatus(fiber.StatusNoContent)
}
