package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// FetchHandler describes the component that intercepts site requests. It
// allows injecting fake handlers during tests.
type FetchHandler interface {
	Fetch(fiber.Ctx) error
}

// FetchHandlerFunc adapts a function to the FetchHandler interface.
type FetchHandlerFunc func(fiber.Ctx) error

// Fetch makes FetchHandlerFunc satisfy FetchHandler.
func (f FetchHandlerFunc) Fetch(c fiber.Ctx) error {
	return f(c)
}

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger  *logrus.Logger
	Fetcher FetchHandler
	// Scope 是控制器接管的路径前缀，等同于站点 BasePath，为空表示 "/"。
	Scope      string
	ListenPort int
}

const contextKeyRequestID = "_menucache_request_id"

// NewApp builds a Fiber application with request ID and scope middleware plus
// structured error handling.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("fetch handler is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware(opts))

	app.All("/*", func(c fiber.Ctx) error {
		if isDiagnosticsPath(string(c.Request().URI().Path())) {
			return c.Next()
		}
		return opts.Fetcher.Fetch(c)
	})

	return app, nil
}

// requestContextMiddleware 负责生成请求 ID，并拒绝作用域之外的请求。
func requestContextMiddleware(opts AppOptions) fiber.Handler {
	scope := normalizeScope(opts.Scope)
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)

		path := string(c.Request().URI().Path())
		if isDiagnosticsPath(path) || inScope(scope, path) {
			return c.Next()
		}
		return renderOutOfScope(c, opts.Logger, path, scope)
	}
}

func renderOutOfScope(c fiber.Ctx, logger *logrus.Logger, path, scope string) error {
	logger.WithFields(logrus.Fields{
		"action": "scope_check",
		"path":   path,
		"scope":  scope,
	}).Warn("request out of scope")

	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": "out_of_scope",
	})
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func normalizeScope(scope string) string {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return "/"
	}
	if !strings.HasPrefix(scope, "/") {
		scope = "/" + scope
	}
	if !strings.HasSuffix(scope, "/") {
		scope += "/"
	}
	return scope
}

// inScope 允许作用域本身（不带结尾斜杠）以及其下的全部路径。
func inScope(scope, path string) bool {
	if scope == "/" {
		return true
	}
	return strings.HasPrefix(path, scope) || path == strings.TrimSuffix(scope, "/")
}

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, "/-/")
}
