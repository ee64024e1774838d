package worker

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/menucache/menucache/internal/logging"
	"github.com/menucache/menucache/internal/messaging"
	"github.com/menucache/menucache/internal/server"
)

// Registration 持有当前生效的控制器。新控制器安装失败时旧控制器继续服务。
type Registration struct {
	mu     sync.RWMutex
	active *Controller

	bypass upstream
	logger *logrus.Entry
}

// NewRegistration 构造注册表，无控制器时请求直接透传到源站。
func NewRegistration(client *http.Client, origin string, logger *logrus.Logger) (*Registration, error) {
	up, err := newUpstream(client, origin)
	if err != nil {
		return nil, err
	}
	return &Registration{
		bypass: up,
		logger: logging.Component(logger, "registration"),
	}, nil
}

// Register 安装 next；成功后切换为生效控制器并执行激活，失败时保留原控制器。
func (r *Registration) Register(ctx context.Context, next *Controller) error {
	if err := next.Install(ctx); err != nil {
		fields := logrus.Fields{"action": "register", "version": next.Version()}
		if prev := r.Active(); prev != nil {
			fields["serving"] = prev.Version()
		}
		r.logger.WithFields(fields).WithError(err).Warn("register_kept_previous")
		return err
	}

	r.mu.Lock()
	prev := r.active
	r.active = next
	r.mu.Unlock()

	if prev != nil && prev != next {
		prev.setState(StateRedundant)
	}
	if _, err := next.Activate(ctx); err != nil {
		r.logger.WithError(err).WithField("version", next.Version()).Warn("activate_failed")
		return err
	}
	r.logger.WithFields(logrus.Fields{"action": "register", "version": next.Version()}).Info("controller_active")
	return nil
}

// Active 返回当前控制器，可能为 nil。
func (r *Registration) Active() *Controller {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Post 把命令交给当前控制器，没有控制器时丢弃并返回 ErrNoController。
func (r *Registration) Post(ctx context.Context, msg messaging.Message) (messaging.Reply, error) {
	active := r.Active()
	if active == nil {
		r.logger.WithFields(logrus.Fields{"action": "post", "type": msg.Type}).Debug("message_dropped")
		return messaging.Reply{}, messaging.ErrNoController
	}
	return active.HandleMessage(ctx, msg)
}

// Subscribe 让页面上下文接收当前控制器转发的命令。
func (r *Registration) Subscribe(client messaging.Client) (func(), error) {
	active := r.Active()
	if active == nil {
		return nil, messaging.ErrNoController
	}
	return active.Clients().Subscribe(client), nil
}

// Fetch 交给当前控制器处理，没有控制器时透传且不写缓存。
func (r *Registration) Fetch(c fiber.Ctx) error {
	if active := r.Active(); active != nil {
		return active.Fetch(c)
	}
	return r.passThrough(c)
}

func (r *Registration) passThrough(c fiber.Ctx) error {
	started := time.Now()
	sitePath := requestPath(c)
	resp, err := r.bypass.forward(c.Context(), c, sitePath)
	if err != nil {
		r.logger.WithError(err).WithField("path", sitePath).Error("bypass_failed")
		return writeError(c, fiber.StatusBadGateway, "upstream_failed")
	}
	defer resp.Body.Close()

	copyResponseHeaders(c, resp.Header)
	if reqID := server.RequestID(c); reqID != "" {
		c.Set("X-Request-ID", reqID)
	}
	c.Status(resp.StatusCode)
	if c.Method() != http.MethodHead {
		if _, err := io.Copy(c.Response().BodyWriter(), resp.Body); err != nil {
			return fiber.NewError(fiber.StatusBadGateway, "proxy stream failed: "+err.Error())
		}
	}
	r.logger.WithFields(logrus.Fields{
		"action":          "bypass",
		"path":            sitePath,
		"upstream_status": resp.StatusCode,
		"elapsed_ms":      time.Since(started).Milliseconds(),
	}).Debug("bypass_complete")
	return nil
}
