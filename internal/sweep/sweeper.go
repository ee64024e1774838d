// Package sweep 实现后台资源巡检：按页面上下文挑选资源，分批探测指纹，
// 发现变化时通知缓存控制器失效对应 bucket。
package sweep

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/menucache/menucache/internal/asset"
	"github.com/menucache/menucache/internal/config"
	"github.com/menucache/menucache/internal/detection"
	"github.com/menucache/menucache/internal/logging"
	"github.com/menucache/menucache/internal/messaging"
	"github.com/menucache/menucache/internal/metrics"
	"github.com/menucache/menucache/internal/probe"
	"github.com/menucache/menucache/internal/tasks"
)

// 触发原因
const (
	ReasonInit            = "app initialized"
	ReasonNetworkRestored = "network restored"
	ReasonForegrounded    = "app became active"
	ReasonWorkerRequest   = "service worker request"
	ReasonRetry           = "retry after failure"
	ReasonManual          = "manual trigger"

	// ReasonAssetsChanged 是巡检发出的失效命令原因。
	ReasonAssetsChanged = "background asset changes detected"
)

const (
	taskKind  = "sweep"
	retryKind = "sweep_retry"
)

var (
	// ErrAllProbesFailed 表示本轮全部探测失败，通常意味着源站不可达。
	ErrAllProbesFailed = errors.New("sweep: every probe failed")
	// ErrInFlight 表示已有巡检在执行。
	ErrInFlight = errors.New("sweep: already running")
)

// AssetProber 是巡检依赖的探测能力。
type AssetProber interface {
	Asset(ctx context.Context, desc asset.Descriptor) probe.Result
}

// Options 描述巡检服务的依赖。
type Options struct {
	Config    *config.Config
	Store     *detection.Store
	Prober    AssetProber
	Messenger messaging.Messenger
	Queue     *tasks.Queue
	// Online 报告当前是否联网，为 nil 时视为在线。
	Online func() bool
	// Page 返回当前页面 URL，用于决定巡检范围，为 nil 时按首页处理。
	Page    func() string
	Metrics *metrics.Metrics
	Logger  *logrus.Logger
}

// Summary 汇总一轮巡检。
type Summary struct {
	Context     asset.Context
	Checked     int
	Changed     int
	Recorded    int
	Failed      int
	ChangedURLs []string
	// Cleared 表示分页菜单图片有变化，检测缓存已清空。
	Cleared bool
}

// Sweeper 是进程内唯一的巡检服务。
type Sweeper struct {
	cfg       *config.Config
	store     *detection.Store
	prober    AssetProber
	messenger messaging.Messenger
	queue     *tasks.Queue
	online    func() bool
	page      func() string
	metrics   *metrics.Metrics
	logger    *logrus.Entry
	now       func() time.Time

	running atomic.Bool
}

// New 构造巡检服务。
func New(opts Options) (*Sweeper, error) {
	if opts.Config == nil || opts.Store == nil || opts.Prober == nil || opts.Queue == nil {
		return nil, errors.New("sweep: config, store, prober and queue are required")
	}
	online := opts.Online
	if online == nil {
		online = func() bool { return true }
	}
	page := opts.Page
	if page == nil {
		site := opts.Config.Site
		page = func() string { return site.SitePath("") }
	}
	return &Sweeper{
		cfg:       opts.Config,
		store:     opts.Store,
		prober:    opts.Prober,
		messenger: opts.Messenger,
		queue:     opts.Queue,
		online:    online,
		page:      page,
		metrics:   opts.Metrics,
		logger:    logging.Component(opts.Logger, "sweep"),
		now:       time.Now,
	}, nil
}

// Init 在联网时安排首轮巡检。
func (s *Sweeper) Init() bool {
	if !s.online() {
		return false
	}
	return s.Schedule(ReasonInit)
}

// NetworkRestored 在恢复联网时安排巡检。
func (s *Sweeper) NetworkRestored() bool {
	return s.Schedule(ReasonNetworkRestored)
}

// Foregrounded 仅在距上次巡检超过 ForegroundInterval 时安排巡检。
func (s *Sweeper) Foregrounded(ctx context.Context) bool {
	if !s.online() {
		return false
	}
	last := s.store.LastBackgroundCheck(ctx)
	if !last.IsZero() && s.now().Sub(last) <= s.cfg.Sweep.ForegroundInterval.DurationValue() {
		return false
	}
	return s.Schedule(ReasonForegrounded)
}

// Notify 实现 messaging.Client，接收控制器转发的巡检请求。
func (s *Sweeper) Notify(msg messaging.Message) {
	if msg.Type == messaging.TypeBackgroundCheckRequested {
		s.Schedule(ReasonWorkerRequest)
	}
}

// Schedule 在 TriggerDelay 后执行一轮巡检，已有巡检等待或执行时合并为一次。
func (s *Sweeper) Schedule(reason string) bool {
	if s.running.Load() {
		s.logger.WithField("reason", reason).Debug("sweep_already_running")
		return false
	}
	ok := s.queue.Schedule(taskKind, s.cfg.Sweep.TriggerDelay.DurationValue(), func(ctx context.Context) {
		_, _ = s.run(ctx, reason)
	})
	if ok {
		s.logger.WithField("reason", reason).Info("sweep_scheduled")
	} else {
		s.logger.WithField("reason", reason).Debug("sweep_already_running")
	}
	return ok
}

// Run 以当前页面上下文同步执行一轮巡检。
func (s *Sweeper) Run(ctx context.Context) (Summary, error) {
	return s.run(ctx, ReasonManual)
}

func (s *Sweeper) run(ctx context.Context, reason string) (Summary, error) {
	if !s.running.CompareAndSwap(false, true) {
		return Summary{}, ErrInFlight
	}
	defer s.running.Store(false)

	started := time.Now()
	pageCtx := asset.Classify(s.page(), s.cfg.Site.MenuTypes)
	summary, err := s.sweep(ctx, pageCtx)

	fields := logrus.Fields{
		"action":     "sweep",
		"reason":     reason,
		"context":    pageCtx.Kind.String(),
		"checked":    summary.Checked,
		"changed":    summary.Changed,
		"recorded":   summary.Recorded,
		"failed":     summary.Failed,
		"elapsed_ms": time.Since(started).Milliseconds(),
	}
	s.metrics.SweepRun(err == nil, summary.Changed)
	if err != nil {
		s.logger.WithFields(fields).WithError(err).Warn("sweep_failed")
		if errors.Is(err, ErrAllProbesFailed) && reason != ReasonRetry {
			s.scheduleRetry()
		}
		return summary, err
	}
	s.logger.WithFields(fields).Info("sweep_complete")
	return summary, nil
}

func (s *Sweeper) sweep(ctx context.Context, pageCtx asset.Context) (Summary, error) {
	summary := Summary{Context: pageCtx}
	assets := s.Assets(ctx, pageCtx)
	summary.Checked = len(assets)

	results := s.probeBatched(ctx, assets)
	if err := ctx.Err(); err != nil {
		return summary, err
	}

	var changed []asset.Descriptor
	for i, desc := range assets {
		res := results[i]
		if !res.Found {
			summary.Failed++
			continue
		}
		current := res.Fingerprint()
		stored, ok := s.store.AssetFingerprint(ctx, string(desc.Kind), desc.Identifier())
		switch {
		case !ok:
			s.store.SetAssetFingerprint(ctx, string(desc.Kind), desc.Identifier(), current)
			summary.Recorded++
		case stored != current:
			s.store.SetAssetFingerprint(ctx, string(desc.Kind), desc.Identifier(), current)
			changed = append(changed, desc)
		}
	}

	if summary.Checked > 0 && summary.Failed == summary.Checked {
		return summary, ErrAllProbesFailed
	}

	if len(changed) > 0 {
		summary.Changed = len(changed)
		for _, desc := range changed {
			summary.ChangedURLs = append(summary.ChangedURLs, desc.URL)
			if desc.Kind == asset.KindMenuImage {
				summary.Cleared = true
			}
		}
		s.post(ctx, messaging.Invalidate(ReasonAssetsChanged, summary.ChangedURLs...))
		if summary.Cleared {
			s.store.ClearAll(ctx)
		}
	}

	s.store.SetLastBackgroundCheck(ctx)
	return summary, nil
}

// probeBatched 按 BatchSize 分批探测，批内并发，批间顺序执行并短暂停顿。
func (s *Sweeper) probeBatched(ctx context.Context, assets []asset.Descriptor) []probe.Result {
	results := make([]probe.Result, len(assets))
	size := max(1, s.cfg.Sweep.BatchSize)
	pause := s.cfg.Sweep.BatchPause.DurationValue()
	timeout := s.cfg.Sweep.AssetTimeout.DurationValue()

	for start := 0; start < len(assets); start += size {
		if start > 0 && pause > 0 {
			select {
			case <-time.After(pause):
			case <-ctx.Done():
				return results
			}
		}
		end := min(start+size, len(assets))

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				actx := ctx
				if timeout > 0 {
					var cancel context.CancelFunc
					actx, cancel = context.WithTimeout(ctx, timeout)
					defer cancel()
				}
				results[i] = s.prober.Asset(actx, assets[i])
				return nil
			})
		}
		_ = g.Wait()
	}
	return results
}

func (s *Sweeper) scheduleRetry() {
	delay := s.cfg.Sweep.RetryDelay.DurationValue()
	ok := s.queue.Schedule(retryKind, delay, func(ctx context.Context) {
		if !s.online() {
			s.logger.Debug("sweep_retry_skipped_offline")
			return
		}
		if s.queue.Schedule(taskKind, 0, func(ctx context.Context) {
			_, _ = s.run(ctx, ReasonRetry)
		}) {
			s.logger.WithField("reason", ReasonRetry).Info("sweep_scheduled")
		}
	})
	if ok {
		s.logger.WithField("delay", delay.String()).Info("sweep_retry_scheduled")
	}
}

func (s *Sweeper) post(ctx context.Context, msg messaging.Message) {
	if s.messenger == nil {
		return
	}
	if _, err := s.messenger.Post(ctx, msg); err != nil {
		s.logger.WithError(err).WithField("type", msg.Type).Debug("message_dropped")
	}
}
