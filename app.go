package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/menucache/menucache/internal/asset"
	"github.com/menucache/menucache/internal/cache"
	"github.com/menucache/menucache/internal/config"
	"github.com/menucache/menucache/internal/detection"
	"github.com/menucache/menucache/internal/detector"
	"github.com/menucache/menucache/internal/foreground"
	"github.com/menucache/menucache/internal/freshness"
	"github.com/menucache/menucache/internal/logging"
	"github.com/menucache/menucache/internal/messaging"
	"github.com/menucache/menucache/internal/metrics"
	"github.com/menucache/menucache/internal/netwatch"
	"github.com/menucache/menucache/internal/probe"
	"github.com/menucache/menucache/internal/server"
	"github.com/menucache/menucache/internal/server/routes"
	"github.com/menucache/menucache/internal/sweep"
	"github.com/menucache/menucache/internal/tasks"
	"github.com/menucache/menucache/internal/version"
	"github.com/menucache/menucache/internal/worker"
)

const shutdownTimeout = 10 * time.Second

// runtime 持有各子命令共享的组件。
type runtime struct {
	opts      cliOptions
	cfg       *config.Config
	logger    *logrus.Logger
	kv        detection.KV
	store     *detection.Store
	metrics   *metrics.Metrics
	prober    *probe.Prober
	queue     *tasks.Queue
	upstream  *http.Client
	messenger messaging.Messenger
}

func loadConfig(opts cliOptions) (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(opts.configPath)
	if errors.Is(err, config.ErrInvalid) {
		return nil, nil, runtimeFailure("配置校验失败: %v", err)
	}
	if err != nil {
		return nil, nil, runtimeFailure("加载配置失败: %v", err)
	}
	logger, err := logging.InitLogger(cfg.Global, logging.WithConsole(opts.console))
	if err != nil {
		return nil, nil, runtimeFailure("初始化日志失败: %v", err)
	}
	return cfg, logger, nil
}

func manifestOf(cfg *config.Config) []string {
	return worker.Manifest(cfg)
}

// controllerURL 是本机 serve 进程的地址，detect/sweep 通过它投递消息与加载图片。
func controllerURL(cfg *config.Config) string {
	return fmt.Sprintf("http://127.0.0.1:%d", cfg.Global.ListenPort)
}

func newRuntime(opts cliOptions) (*runtime, error) {
	cfg, logger, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	kv, err := openDetectionKV(cfg, opts.ephemeral)
	if err != nil {
		return nil, runtimeFailure("打开检测存储失败: %v", err)
	}

	m := metrics.New()
	prober := probe.New(probe.Options{
		Client:  server.NewProbeClient(cfg),
		Origin:  cfg.Site.Origin,
		Timeout: cfg.Detector.ProbeTimeout.DurationValue(),
		Rate:    cfg.Detector.ProbeRate,
	})
	m.ProbeCounter(prober.Count)

	upstream := server.NewUpstreamClient(cfg)
	return &runtime{
		opts:      opts,
		cfg:       cfg,
		logger:    logger,
		kv:        kv,
		store:     detection.NewStore(kv, logger),
		metrics:   m,
		prober:    prober,
		queue:     tasks.New(logger),
		upstream:  upstream,
		messenger: messaging.NewHTTPMessenger(upstream, controllerURL(cfg)),
	}, nil
}

func openDetectionKV(cfg *config.Config, ephemeral bool) (detection.KV, error) {
	if ephemeral {
		return detection.NewMemory(), nil
	}
	return detection.OpenSQLite(cfg.Global.StoragePath)
}

func (rt *runtime) close() {
	rt.queue.Close()
	if err := rt.store.Close(); err != nil {
		rt.logger.WithError(err).Warn("detection_store_close_failed")
	}
}

// visit 构造一次菜单页面访问。
func (rt *runtime) visit(pageCtx asset.Context) (*foreground.Orchestrator, error) {
	site := rt.cfg.Site
	det := detector.New(detector.Options{
		Prober:        rt.prober,
		BasePath:      site.BasePath,
		SafetyTimeout: rt.cfg.Detector.SafetyTimeout.DurationValue(),
		Logger:        rt.logger,
	})
	oracle := freshness.New(freshness.Options{
		Prober:     rt.prober,
		BasePath:   site.BasePath,
		SampleSize: rt.cfg.Detector.SampleSize,
		Logger:     rt.logger,
	})
	return foreground.New(foreground.Options{
		Site:      site,
		Context:   pageCtx,
		Page:      1,
		Store:     rt.store,
		Detector:  det,
		Oracle:    oracle,
		Prober:    rt.prober,
		Loader:    foreground.HTTPLoader{Client: rt.upstream, BaseURL: controllerURL(rt.cfg)},
		Messenger: rt.messenger,
		Queue:     rt.queue,
		Metrics:   rt.metrics,
		Logger:    rt.logger,
	})
}

func (rt *runtime) sweeper(page func() string, online func() bool) (*sweep.Sweeper, error) {
	return sweep.New(sweep.Options{
		Config:    rt.cfg,
		Store:     rt.store,
		Prober:    rt.prober,
		Messenger: rt.messenger,
		Queue:     rt.queue,
		Online:    online,
		Page:      page,
		Metrics:   rt.metrics,
		Logger:    rt.logger,
	})
}

// serve 注册控制器并启动 HTTP 服务，直到 ctx 结束。
func (rt *runtime) serve(ctx context.Context) error {
	cfg := rt.cfg
	fields := logging.BaseFields("startup", rt.opts.configPath)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["origin"] = cfg.Site.Origin
	fields["cache_version"] = cfg.Site.CacheVersion
	fields["storage"] = cfg.Global.StoragePath
	fields["version"] = version.Full()
	rt.logger.WithFields(fields).Info("服务启动")

	buckets, err := cache.NewStore(cfg.Global.StoragePath)
	if err != nil {
		return runtimeFailure("初始化缓存目录失败: %v", err)
	}

	reg, err := worker.NewRegistration(rt.upstream, cfg.Site.Origin, rt.logger)
	if err != nil {
		return runtimeFailure("初始化控制器注册失败: %v", err)
	}
	rt.messenger = reg

	controller, err := worker.New(worker.Options{
		Site:     cfg.Site,
		Manifest: worker.Manifest(cfg),
		Store:    buckets,
		Client:   rt.upstream,
		Metrics:  rt.metrics,
		Logger:   rt.logger,
	})
	if err != nil {
		return runtimeFailure("创建控制器失败: %v", err)
	}
	if err := reg.Register(ctx, controller); err != nil {
		// 未安装成功时请求透传到源站，下次启动再尝试安装。
		rt.logger.WithError(err).Warn("controller_install_failed")
	}

	monitor := netwatch.New(netwatch.Options{
		Client:   server.NewProbeClient(cfg),
		Origin:   cfg.Site.OriginURL(cfg.Site.SitePath("")),
		Interval: cfg.Netwatch.Interval.DurationValue(),
		Timeout:  cfg.Netwatch.Timeout.DurationValue(),
		Logger:   rt.logger,
	})

	var lastPage atomic.Value
	lastPage.Store(cfg.Site.SitePath(""))
	sweeper, err := rt.sweeper(func() string { return lastPage.Load().(string) }, monitor.Online)
	if err != nil {
		return runtimeFailure("创建巡检服务失败: %v", err)
	}
	if _, err := reg.Subscribe(sweeper); err != nil {
		rt.logger.WithError(err).Warn("sweep_subscribe_failed")
	}
	monitor.OnOnline(func() { sweeper.NetworkRestored() })

	// 文档请求代表一次页面访问，用来更新巡检范围并触发前台巡检。
	fetcher := server.FetchHandlerFunc(func(c fiber.Ctx) error {
		if c.Method() == fiber.MethodGet && cache.Classify(c.Path()) == cache.ResourceDocument {
			lastPage.Store(c.OriginalURL())
			sweeper.Foregrounded(c.Context())
		}
		return reg.Fetch(c)
	})

	app, err := server.NewApp(server.AppOptions{
		Logger:     rt.logger,
		Fetcher:    fetcher,
		Scope:      cfg.Site.BasePath,
		ListenPort: cfg.Global.ListenPort,
	})
	if err != nil {
		return runtimeFailure("HTTP 服务初始化失败: %v", err)
	}
	routes.RegisterDiagnosticsRoutes(app, reg, rt.metrics)

	go monitor.Run(ctx)
	sweeper.Init()

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- app.Listen(fmt.Sprintf(":%d", cfg.Global.ListenPort), fiber.ListenConfig{
			DisableStartupMessage: true,
		})
	}()

	select {
	case err := <-listenErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return runtimeFailure("HTTP 服务启动失败: %v", err)
		}
		return nil
	case <-ctx.Done():
	}

	rt.logger.WithField("action", "shutdown").Info("服务停止")
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		rt.logger.WithError(err).Warn("shutdown_failed")
	}
	return nil
}
