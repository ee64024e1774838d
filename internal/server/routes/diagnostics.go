package routes

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"

	"github.com/menucache/menucache/internal/messaging"
	"github.com/menucache/menucache/internal/metrics"
)

// RegisterDiagnosticsRoutes 暴露 /-/status、/-/messages 与 /-/metrics。
// messenger 通常是 worker.Registration，m 为 nil 时不挂载指标路由。
func RegisterDiagnosticsRoutes(app *fiber.App, messenger messaging.Messenger, m *metrics.Metrics) {
	if app == nil || messenger == nil {
		return
	}

	app.Get("/-/status", func(c fiber.Ctx) error {
		reply, err := messenger.Post(c.Context(), messaging.Status())
		if err != nil {
			return renderMessageError(c, err)
		}
		return c.JSON(reply)
	})

	app.Post(messaging.MessagesPath, func(c fiber.Ctx) error {
		var msg messaging.Message
		if err := json.Unmarshal(c.Body(), &msg); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": messaging.CodeInvalidMessage})
		}
		if err := msg.Validate(); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": messaging.CodeUnknownType})
		}
		reply, err := messenger.Post(c.Context(), msg)
		if err != nil {
			return renderMessageError(c, err)
		}
		return c.JSON(reply)
	})

	if m != nil {
		app.Get("/-/metrics", adaptor.HTTPHandler(m.Handler()))
	}
}

func renderMessageError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, messaging.ErrNoController):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": messaging.CodeNoController})
	case errors.Is(err, messaging.ErrUnknownType):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": messaging.CodeUnknownType})
	case errors.Is(err, messaging.ErrInvalidMessage):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": messaging.CodeInvalidMessage})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}
