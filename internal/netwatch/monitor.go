// Package netwatch 周期性探测源站，判断当前是否联网。
package netwatch

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/menucache/menucache/internal/logging"
)

// Options 配置 Monitor。
type Options struct {
	Client   *http.Client
	Origin   string
	Interval time.Duration
	Timeout  time.Duration
	Logger   *logrus.Logger
}

// Monitor 记录最近一次探测结果，并在离线转为在线时通知订阅者。
type Monitor struct {
	client   *http.Client
	origin   string
	interval time.Duration
	timeout  time.Duration
	logger   *logrus.Entry

	online atomic.Bool

	mu       sync.Mutex
	onOnline []func()
}

// New 构造 Monitor，初始状态视为在线。
func New(opts Options) *Monitor {
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	m := &Monitor{
		client:   client,
		origin:   opts.Origin,
		interval: interval,
		timeout:  opts.Timeout,
		logger:   logging.Component(opts.Logger, "netwatch"),
	}
	m.online.Store(true)
	return m
}

// Online 返回最近一次观测结果。
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// OnOnline 注册离线转在线时的回调。
func (m *Monitor) OnOnline(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOnline = append(m.onOnline, fn)
}

// Run 立即探测一次，随后每个 Interval 探测一次，直到 ctx 结束。
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check 执行一次探测并更新状态，返回是否在线。
func (m *Monitor) Check(ctx context.Context) bool {
	up := m.reachable(ctx)
	if ctx.Err() != nil {
		return m.Online()
	}
	was := m.online.Swap(up)
	switch {
	case up && !was:
		m.logger.WithField("origin", m.origin).Info("network_restored")
		m.mu.Lock()
		callbacks := append([]func(){}, m.onOnline...)
		m.mu.Unlock()
		for _, fn := range callbacks {
			fn()
		}
	case !up && was:
		m.logger.WithField("origin", m.origin).Warn("network_lost")
	}
	return up
}

// reachable 只关心能否得到 HTTP 响应，状态码不影响结论。
func (m *Monitor) reachable(ctx context.Context) bool {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.origin, nil)
	if err != nil {
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}
