// Package worker 实现离线缓存控制器：安装阶段预缓存清单，激活阶段清理旧版本 bucket，
// 之后以缓存优先的方式拦截请求并响应失效命令。
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/menucache/menucache/internal/cache"
	"github.com/menucache/menucache/internal/config"
	"github.com/menucache/menucache/internal/logging"
	"github.com/menucache/menucache/internal/messaging"
	"github.com/menucache/menucache/internal/metrics"
)

// ErrInstallFailed 表示清单中至少一个资源无法获取，本次安装不生效。
var ErrInstallFailed = errors.New("worker: install failed")

const defaultInstallConcurrency = 8

// Options 描述控制器依赖。
type Options struct {
	Site     config.SiteConfig
	Manifest []string
	Store    cache.Store
	Client   *http.Client
	Clients  *messaging.Clients
	Metrics  *metrics.Metrics
	Logger   *logrus.Logger
	// InstallConcurrency 限制安装阶段的并发抓取数。
	InstallConcurrency int
}

// Controller 是某一缓存版本的控制器实例。缓存只由控制器自身修改。
type Controller struct {
	id          string
	version     string
	manifest    []string
	store       cache.Store
	writer      cache.BucketWriter
	upstream    upstream
	clients     *messaging.Clients
	metrics     *metrics.Metrics
	logger      *logrus.Entry
	concurrency int
	now         func() time.Time

	mu    sync.RWMutex
	state State
}

// New 构造处于 parsed 状态的控制器。
func New(opts Options) (*Controller, error) {
	if opts.Store == nil {
		return nil, cache.ErrStoreUnavailable
	}
	if opts.Site.CacheVersion == "" {
		return nil, errors.New("worker: cache version is required")
	}
	up, err := newUpstream(opts.Client, opts.Site.Origin)
	if err != nil {
		return nil, err
	}
	clients := opts.Clients
	if clients == nil {
		clients = messaging.NewClients()
	}
	concurrency := opts.InstallConcurrency
	if concurrency <= 0 {
		concurrency = defaultInstallConcurrency
	}
	id := uuid.NewString()
	return &Controller{
		id:          id,
		version:     opts.Site.CacheVersion,
		manifest:    opts.Manifest,
		store:       opts.Store,
		writer:      cache.NewBucketWriter(opts.Store, cache.BucketSet{Version: opts.Site.CacheVersion}),
		upstream:    up,
		clients:     clients,
		metrics:     opts.Metrics,
		logger:      logging.Component(opts.Logger, "worker").WithFields(logrus.Fields{"version": opts.Site.CacheVersion, "controller": id}),
		concurrency: concurrency,
		now:         time.Now,
		state:       StateParsed,
	}, nil
}

// Version 返回缓存版本。
func (c *Controller) Version() string {
	return c.version
}

// Buckets 返回该版本拥有的 bucket。
func (c *Controller) Buckets() cache.BucketSet {
	return c.writer.Buckets()
}

// Clients 返回转发命令的订阅表。
func (c *Controller) Clients() *messaging.Clients {
	return c.clients
}

// Install 并发抓取整个清单并暂存在内存，全部成功后才写入各自的 bucket。
// 任一资源失败则不写入任何内容，控制器进入 redundant 状态。
func (c *Controller) Install(ctx context.Context) error {
	if err := c.transition(StateParsed, StateInstalling); err != nil {
		return err
	}
	started := time.Now()

	staged := make([]fetched, len(c.manifest))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, sitePath := range c.manifest {
		g.Go(func() error {
			res, err := c.upstream.fetch(gctx, sitePath)
			if err != nil {
				return fmt.Errorf("%s: %w", sitePath, err)
			}
			staged[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return c.failInstall(started, err)
	}

	written := make([]cache.Locator, 0, len(c.manifest))
	for i, sitePath := range c.manifest {
		entry, err := c.writer.Put(ctx, sitePath, bytes.NewReader(staged[i].body), staged[i].header)
		if err != nil {
			c.rollback(written)
			return c.failInstall(started, fmt.Errorf("%s: %w", sitePath, err))
		}
		written = append(written, entry.Locator)
		c.metrics.CacheStore(entry.Locator.Bucket)
	}

	c.setState(StateInstalled)
	c.metrics.Install(true)
	c.logger.WithFields(logrus.Fields{
		"action":     "install",
		"assets":     len(c.manifest),
		"elapsed_ms": time.Since(started).Milliseconds(),
	}).Info("install_complete")
	return nil
}

func (c *Controller) failInstall(started time.Time, cause error) error {
	c.setState(StateRedundant)
	c.metrics.Install(false)
	c.logger.WithFields(logrus.Fields{
		"action":     "install",
		"elapsed_ms": time.Since(started).Milliseconds(),
	}).WithError(cause).Error("install_failed")
	return fmt.Errorf("%w: %v", ErrInstallFailed, cause)
}

func (c *Controller) rollback(written []cache.Locator) {
	for _, loc := range written {
		if err := c.store.Remove(context.Background(), loc); err != nil {
			c.logger.WithError(err).WithField("path", loc.Path).Warn("install_rollback_failed")
		}
	}
}

// Activate 删除磁盘上不属于本版本的全部 bucket，返回被删除的名称。
func (c *Controller) Activate(ctx context.Context) ([]string, error) {
	if err := c.transition(StateInstalled, StateActivating); err != nil {
		return nil, err
	}

	names, err := c.store.Buckets(ctx)
	if err != nil {
		c.setState(StateInstalled)
		return nil, fmt.Errorf("list buckets: %w", err)
	}

	known := c.writer.Buckets()
	var deleted []string
	for _, name := range names {
		if known.Contains(name) {
			continue
		}
		ok, err := c.store.DeleteBucket(ctx, name)
		if err != nil {
			c.logger.WithError(err).WithField("bucket", name).Warn("activate_delete_failed")
			continue
		}
		if ok {
			deleted = append(deleted, name)
			c.metrics.BucketDeleted("activate")
		}
	}

	c.setState(StateActivated)
	c.logger.WithFields(logrus.Fields{
		"action":  "activate",
		"deleted": deleted,
	}).Info("activate_complete")
	return deleted, nil
}

// HandleMessage 处理页面上下文发来的命令。
func (c *Controller) HandleMessage(ctx context.Context, msg messaging.Message) (messaging.Reply, error) {
	if err := msg.Validate(); err != nil {
		return messaging.Reply{}, err
	}

	switch msg.Type {
	case messaging.TypeInvalidateCache:
		return c.invalidate(ctx, msg)
	case messaging.TypeBackgroundCheckRequested:
		n := c.clients.Broadcast(msg)
		c.logger.WithFields(logrus.Fields{"action": "relay", "clients": n}).Debug("background_check_relayed")
		return messaging.Reply{}, nil
	default:
		return c.status(ctx)
	}
}

// invalidate 删除 assets 分类涉及的 bucket，assets 为空时只删除图片 bucket。
func (c *Controller) invalidate(ctx context.Context, msg messaging.Message) (messaging.Reply, error) {
	buckets := c.writer.Buckets()
	var targets []string
	if len(msg.Assets) == 0 {
		targets = []string{buckets.Images()}
	} else {
		seen := make(map[string]struct{})
		for _, a := range msg.Assets {
			name := buckets.BucketFor(a)
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			targets = append(targets, name)
		}
	}

	reply := messaging.Reply{Version: c.version, Timestamp: c.now().UnixMilli()}
	var errs []error
	for _, name := range targets {
		ok, err := c.store.DeleteBucket(ctx, name)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		if ok {
			reply.Deleted = append(reply.Deleted, name)
			c.metrics.BucketDeleted("invalidate")
		}
	}

	c.logger.WithFields(logrus.Fields{
		"action":  "invalidate",
		"reason":  msg.Reason,
		"assets":  len(msg.Assets),
		"deleted": reply.Deleted,
	}).Info("cache_invalidated")
	return reply, errors.Join(errs...)
}

func (c *Controller) status(ctx context.Context) (messaging.Reply, error) {
	names, err := c.store.Buckets(ctx)
	if err != nil {
		return messaging.Reply{}, fmt.Errorf("list buckets: %w", err)
	}
	return messaging.NewReply(c.version, names, c.now()), nil
}
