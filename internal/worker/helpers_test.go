package worker

import (
	"mime"
	"net/http"
	"net/http/httptest"
	"path"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/require"

	"github.com/menucache/menucache/internal/cache"
	"github.com/menucache/menucache/internal/config"
	"github.com/menucache/menucache/internal/logging"
	"github.com/menucache/menucache/internal/messaging"
)

// testOrigin 模拟静态站点，body 表中不存在的路径返回 404。
type testOrigin struct {
	*httptest.Server

	mu     sync.Mutex
	bodies map[string]string
	hits   map[string]int
}

func newTestOrigin(t *testing.T, bodies map[string]string) *testOrigin {
	t.Helper()
	o := &testOrigin{bodies: bodies, hits: make(map[string]int)}
	o.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		o.mu.Lock()
		o.hits[r.URL.Path]++
		body, ok := o.bodies[r.URL.Path]
		o.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("ETag", `"`+r.URL.Path+`"`)
		if ct := mime.TypeByExtension(path.Ext(r.URL.Path)); ct != "" {
			w.Header().Set("Content-Type", ct)
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(o.Close)
	return o
}

func (o *testOrigin) set(path, body string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.bodies[path] = body
}

func (o *testOrigin) hitCount(path string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.hits[path]
}

func newTestStore(t *testing.T) cache.Store {
	t.Helper()
	store, err := cache.NewStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func newTestController(t *testing.T, store cache.Store, origin, version string, manifest []string) *Controller {
	t.Helper()
	ctrl, err := New(Options{
		Site: config.SiteConfig{
			Origin:       origin,
			BasePath:     "/Menu/",
			CacheVersion: version,
		},
		Manifest: manifest,
		Store:    store,
		Client:   http.DefaultClient,
		Clients:  messaging.NewClients(),
		Logger:   logging.Discard(),
	})
	require.NoError(t, err)
	return ctrl
}

func newFetchApp(handler fiber.Handler) *fiber.App {
	app := fiber.New()
	app.All("/*", handler)
	return app
}

var siteBodies = map[string]string{
	"/Menu/":                                     "<html>index</html>",
	"/Menu/index.html":                           "<html>index</html>",
	"/Menu/css/style.css":                        "body{}",
	"/Menu/js/app.js":                            "console.log(1)",
	"/Menu/assets/fonts/Inter.woff2":             "font",
	"/Menu/assets/images/logo.png":               "logo",
	"/Menu/assets/images/menu/pt/menu_pt-1.webp": "page-1-webp",
	"/Menu/assets/images/menu/pt/menu_pt-1.jpg":  "page-1-jpg",
}

func siteManifest() []string {
	return []string{
		"/Menu/",
		"/Menu/index.html",
		"/Menu/css/style.css",
		"/Menu/js/app.js",
		"/Menu/assets/fonts/Inter.woff2",
		"/Menu/assets/images/logo.png",
		"/Menu/assets/images/menu/pt/menu_pt-1.webp",
		"/Menu/assets/images/menu/pt/menu_pt-1.jpg",
	}
}

func copyBodies(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
