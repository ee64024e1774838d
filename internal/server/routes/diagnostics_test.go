package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"

	"github.com/menucache/menucache/internal/messaging"
	"github.com/menucache/menucache/internal/metrics"
)

type fakeMessenger struct {
	active bool
	posted []messaging.Message
}

func (f *fakeMessenger) Post(_ context.Context, msg messaging.Message) (messaging.Reply, error) {
	if !f.active {
		return messaging.Reply{}, messaging.ErrNoController
	}
	f.posted = append(f.posted, msg)
	if msg.Type == messaging.TypeGetStatus {
		return messaging.Reply{Version: "v6", CacheNames: []string{"images-v6"}, Timestamp: 1}, nil
	}
	return messaging.Reply{Deleted: []string{"images-v6"}}, nil
}

func newDiagnosticsApp(messenger messaging.Messenger, m *metrics.Metrics) *fiber.App {
	app := fiber.New()
	RegisterDiagnosticsRoutes(app, messenger, m)
	return app
}

func TestStatusRouteReturnsReply(t *testing.T) {
	app := newDiagnosticsApp(&fakeMessenger{active: true}, nil)

	resp, err := app.Test(httptest.NewRequest("GET", "/-/status", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var reply messaging.Reply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if reply.Version != "v6" || len(reply.CacheNames) != 1 {
		t.Fatalf("unexpected reply %+v", reply)
	}
}

func TestMessagesRouteDeliversInvalidation(t *testing.T) {
	messenger := &fakeMessenger{active: true}
	app := newDiagnosticsApp(messenger, nil)

	body := `{"type":"INVALIDATE_CACHE","reason":"content changed","assets":["/a.webp"]}`
	req := httptest.NewRequest("POST", messaging.MessagesPath, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if len(messenger.posted) != 1 || messenger.posted[0].Assets[0] != "/a.webp" {
		t.Fatalf("unexpected posted messages %+v", messenger.posted)
	}
}

func TestMessagesRouteRejectsUnknownType(t *testing.T) {
	app := newDiagnosticsApp(&fakeMessenger{active: true}, nil)

	resp, err := app.Test(httptest.NewRequest("POST", messaging.MessagesPath, strings.NewReader(`{"type":"SKIP_WAITING"}`)))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	resp, err = app.Test(httptest.NewRequest("POST", messaging.MessagesPath, strings.NewReader(`not json`)))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", resp.StatusCode)
	}
}

func TestRoutesReportMissingController(t *testing.T) {
	app := newDiagnosticsApp(&fakeMessenger{}, nil)

	resp, err := app.Test(httptest.NewRequest("GET", "/-/status", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

func TestMetricsRouteServesRegistry(t *testing.T) {
	m := metrics.New()
	m.CacheStore("images-v6")
	app := newDiagnosticsApp(&fakeMessenger{active: true}, m)

	resp, err := app.Test(httptest.NewRequest("GET", "/-/metrics", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `menucache_cache_stores_total{bucket="images-v6"} 1`) {
		t.Fatalf("metrics body missing counter: %s", string(body))
	}
}
