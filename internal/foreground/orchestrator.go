// Package foreground 实现菜单页面访问时的页数检测、签名校验与顺序预加载。
package foreground

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/menucache/menucache/internal/asset"
	"github.com/menucache/menucache/internal/config"
	"github.com/menucache/menucache/internal/detection"
	"github.com/menucache/menucache/internal/detector"
	"github.com/menucache/menucache/internal/freshness"
	"github.com/menucache/menucache/internal/logging"
	"github.com/menucache/menucache/internal/messaging"
	"github.com/menucache/menucache/internal/metrics"
	"github.com/menucache/menucache/internal/tasks"
)

// 失效原因
const (
	ReasonContentChanged = "content changed - signature mismatch"
	ReasonNewContent     = "new content detected"
)

var (
	// ErrNotMenuPage 表示页面上下文不是具体菜单页。
	ErrNotMenuPage = errors.New("foreground: page is not a specific menu")
	// ErrPageUnavailable 表示目标页两种格式都无法加载。
	ErrPageUnavailable = errors.New("foreground: page image unavailable")
)

// FadeHook 在切换显示页面之前触发。
type FadeHook func(from, to int)

// Loader 加载一张图片，通常经由缓存控制器，使其进入离线缓存。
type Loader interface {
	Load(ctx context.Context, sitePath string) error
}

// Options 描述一次页面访问的依赖。
type Options struct {
	Site      config.SiteConfig
	Context   asset.Context
	Page      int
	Store     *detection.Store
	Detector  *detector.Detector
	Oracle    *freshness.Oracle
	Prober    detector.ImageProber
	Loader    Loader
	Messenger messaging.Messenger
	Queue     *tasks.Queue
	Metrics   *metrics.Metrics
	Fade      FadeHook
	Logger    *logrus.Logger
}

// Orchestrator 对应一次菜单页面访问。
type Orchestrator struct {
	site      config.SiteConfig
	menuType  string
	language  string
	store     *detection.Store
	detector  *detector.Detector
	oracle    *freshness.Oracle
	prober    detector.ImageProber
	loader    Loader
	messenger messaging.Messenger
	queue     *tasks.Queue
	metrics   *metrics.Metrics
	fade      FadeHook
	logger    *logrus.Entry

	mu         sync.Mutex
	current    int
	total      int
	currentURL string
	preload    context.CancelFunc
	preloadWG  sync.WaitGroup
	preloaded  []int
	probes     int
}

// New 构造编排器，页面上下文必须是具体菜单页。
func New(opts Options) (*Orchestrator, error) {
	if opts.Context.Kind != asset.ContextSpecificMenu {
		return nil, ErrNotMenuPage
	}
	if opts.Store == nil || opts.Detector == nil || opts.Oracle == nil || opts.Prober == nil {
		return nil, errors.New("foreground: store, detector, oracle and prober are required")
	}
	page := opts.Page
	if page < 1 {
		page = 1
	}
	return &Orchestrator{
		site:      opts.Site,
		menuType:  opts.Context.MenuType,
		language:  opts.Context.Language,
		store:     opts.Store,
		detector:  opts.Detector,
		oracle:    opts.Oracle,
		prober:    opts.Prober,
		loader:    opts.Loader,
		messenger: opts.Messenger,
		queue:     opts.Queue,
		metrics:   opts.Metrics,
		fade:      opts.Fade,
		logger: logging.Component(opts.Logger, "foreground").WithFields(logrus.Fields{
			"menu_type": opts.Context.MenuType,
			"language":  opts.Context.Language,
		}),
		current: page,
	}, nil
}

// Load 确定总页数后开始顺序预加载。检测中的任何失败都不会返回给调用方，
// 返回错误只表示 ctx 已取消。
func (o *Orchestrator) Load(ctx context.Context) error {
	started := time.Now()
	if o.store.ReconcileVersion(ctx, o.site.DetectionVersion) {
		o.logger.WithField("version", o.site.DetectionVersion).Info("detection_cache_cleared")
	}

	if count, ok := o.store.PageCount(ctx, o.menuType, o.language); ok {
		trusted, err := o.verify(ctx, count)
		if err != nil {
			return err
		}
		if trusted {
			o.begin(count, "cached", started)
			return nil
		}
	}

	count := o.detect(ctx)
	if err := ctx.Err(); err != nil {
		return err
	}
	o.begin(count, "detected", started)
	return nil
}

// verify 判断已存页数是否可信。签名不一致时清空检测缓存并发出一次失效命令。
func (o *Orchestrator) verify(ctx context.Context, count int) (bool, error) {
	stored, ok := o.store.Signature(ctx, o.menuType, o.language)
	if !ok {
		o.regenerateSignature(count)
		return true, nil
	}

	computed, err := o.oracle.ComputeSignature(ctx, o.menuType, o.language, count)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		o.logger.WithError(err).Warn("signature_unverified_using_cached_count")
		return true, nil
	}
	if freshness.IsUnchanged(stored, computed.Value) {
		return true, nil
	}

	o.metrics.SignatureMismatch()
	cleared := o.store.ClearAll(ctx)
	changed := freshness.ChangedURLs(freshness.Parse(stored), computed)
	o.logger.WithFields(logrus.Fields{
		"action":  "verify",
		"cleared": cleared,
		"changed": changed,
	}).Info("signature_mismatch")
	o.post(ctx, messaging.Invalidate(ReasonContentChanged, changed...))
	return false, nil
}

// detect 运行页数探测并持久化页数与签名。
func (o *Orchestrator) detect(ctx context.Context) int {
	result := o.detector.Detect(ctx, o.menuType, o.language)
	o.mu.Lock()
	o.probes = result.Probes
	o.mu.Unlock()
	o.metrics.Detection(o.menuType)
	o.store.SetPageCount(ctx, o.menuType, o.language, result.Count)

	if sig, err := o.oracle.ComputeSignature(ctx, o.menuType, o.language, result.Count); err == nil {
		o.store.SetSignature(ctx, o.menuType, o.language, sig.Value)
	} else {
		o.logger.WithError(err).Warn("signature_not_stored")
	}

	if estimate := o.site.EstimatedPagesFor(o.menuType, o.language, config.DefaultEstimatedPages); result.Count > estimate {
		o.logger.WithFields(logrus.Fields{"count": result.Count, "estimate": estimate}).Info("new_content_detected")
		o.post(ctx, messaging.Invalidate(ReasonNewContent))
	}
	return result.Count
}

// regenerateSignature 在后台补算缺失的签名，供下次访问比较。
func (o *Orchestrator) regenerateSignature(count int) {
	fn := func(ctx context.Context) {
		sig, err := o.oracle.ComputeSignature(ctx, o.menuType, o.language, count)
		if err != nil {
			o.logger.WithError(err).Debug("signature_regenerate_failed")
			return
		}
		o.store.SetSignature(ctx, o.menuType, o.language, sig.Value)
		o.logger.WithField("signature", sig.Value).Debug("signature_regenerated")
	}
	if o.queue == nil {
		fn(context.Background())
		return
	}
	o.queue.Schedule(fmt.Sprintf("signature_%s_%s", o.menuType, o.language), 0, fn)
}

func (o *Orchestrator) post(ctx context.Context, msg messaging.Message) {
	if o.messenger == nil {
		o.logger.WithField("type", msg.Type).Debug("message_dropped")
		return
	}
	if _, err := o.messenger.Post(ctx, msg); err != nil {
		o.logger.WithError(err).WithField("type", msg.Type).Debug("message_dropped")
	}
}

func (o *Orchestrator) begin(count int, source string, started time.Time) {
	o.mu.Lock()
	o.total = count
	if o.current > count {
		o.current = count
	}
	from := o.current
	o.mu.Unlock()

	o.logger.WithFields(logrus.Fields{
		"action":     "load",
		"source":     source,
		"pages":      count,
		"elapsed_ms": time.Since(started).Milliseconds(),
	}).Info("page_count_resolved")
	o.startPreload(from)
}

// CurrentPage 返回当前显示的页号。
func (o *Orchestrator) CurrentPage() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// TotalPages 返回总页数，Load 完成前为 0。
func (o *Orchestrator) TotalPages() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.total
}

// DetectorProbes 返回本次访问页数探测发出的请求数，信任缓存页数时为 0。
func (o *Orchestrator) DetectorProbes() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.probes
}

// CurrentURL 返回最近一次 GoTo 解析出的图片地址。
func (o *Orchestrator) CurrentURL() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.currentURL
}

// GoTo 切换到 page。越界时不做任何事并返回 false；
// 两种格式都无法加载时保留当前页并返回 ErrPageUnavailable。
func (o *Orchestrator) GoTo(ctx context.Context, page int) (bool, error) {
	o.mu.Lock()
	from, total := o.current, o.total
	o.mu.Unlock()
	if page < 1 || page > total {
		return false, nil
	}

	if o.fade != nil {
		o.fade(from, page)
	}
	res := o.prober.Image(ctx, o.site.BasePath, o.menuType, o.language, page)
	if !res.Found {
		o.logger.WithField("page", page).Error("page_load_failed")
		return false, ErrPageUnavailable
	}
	if o.loader != nil {
		if err := o.loader.Load(ctx, res.URL); err != nil {
			o.logger.WithError(err).WithField("page", page).Warn("page_fetch_failed")
		}
	}

	o.mu.Lock()
	o.current = page
	o.currentURL = res.URL
	o.mu.Unlock()
	o.startPreload(page)
	return true, nil
}

// Preload 按页号升序逐页加载 current 以外的全部页面，每页结束后才开始下一页。
// 返回实际加载成功的页号。
func (o *Orchestrator) Preload(ctx context.Context, current int) []int {
	total := o.TotalPages()
	var loaded []int
	for page := 1; page <= total; page++ {
		if page == current {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		res := o.prober.Image(ctx, o.site.BasePath, o.menuType, o.language, page)
		if !res.Found {
			o.logger.WithField("page", page).Warn("preload_failed")
			continue
		}
		if o.loader != nil {
			if err := o.loader.Load(ctx, res.URL); err != nil {
				o.logger.WithError(err).WithField("page", page).Warn("preload_failed")
				continue
			}
		}
		loaded = append(loaded, page)
		o.logger.WithFields(logrus.Fields{"page": page, "format": res.Format}).Debug("preloaded")
	}
	return loaded
}

// startPreload 取消进行中的预加载，从 current 重新开始。
func (o *Orchestrator) startPreload(current int) {
	ctx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	if o.preload != nil {
		o.preload()
	}
	o.preload = cancel
	o.mu.Unlock()

	o.preloadWG.Add(1)
	go func() {
		defer o.preloadWG.Done()
		loaded := o.Preload(ctx, current)
		o.mu.Lock()
		o.preloaded = loaded
		o.mu.Unlock()
	}()
}

// Wait 等待后台预加载结束，返回最近一轮成功加载的页号。
func (o *Orchestrator) Wait() []int {
	o.preloadWG.Wait()
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]int(nil), o.preloaded...)
}

// Close 停止后台预加载。
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.preload != nil {
		o.preload()
	}
	o.mu.Unlock()
	o.preloadWG.Wait()
}
