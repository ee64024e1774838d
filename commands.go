package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/menucache/menucache/internal/asset"
	"github.com/menucache/menucache/internal/logging"
)

func newServeCmd(options func() cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Install the offline cache controller and serve the site",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, options())
		},
	}
}

func newCheckConfigCmd(options func() cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration file and exit",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runCheckConfig(options())
		},
	}
}

func newDetectCmd(options func() cliOptions) *cobra.Command {
	var page string
	var preload bool
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Run one menu page visit and print the resolved page count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := options()
			opts.page = page
			opts.preload = preload
			opts.console = stdErr
			return runDetect(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&page, "page", "", "菜单页面路径，例如 /Menu/pages/menu/menu-pt.html")
	cmd.Flags().BoolVar(&preload, "preload", false, "等待顺序预加载完成")
	_ = cmd.MarkFlagRequired("page")
	return cmd
}

func newSweepCmd(options func() cliOptions) *cobra.Command {
	var page string
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one background asset sweep and print a summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := options()
			opts.page = page
			opts.console = stdErr
			return runSweep(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&page, "page", "", "当前页面路径，决定巡检范围（默认站点首页）")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			printVersion()
		},
	}
}

func runCheckConfig(opts cliOptions) error {
	cfg, logger, err := loadConfig(opts)
	if err != nil {
		return err
	}
	fields := logging.BaseFields("check_config", opts.configPath)
	fields["origin"] = cfg.Site.Origin
	fields["cache_version"] = cfg.Site.CacheVersion
	fields["manifest"] = len(manifestOf(cfg))
	fields["result"] = "ok"
	logger.WithFields(fields).Info("配置校验通过")
	return nil
}

func runServe(ctx context.Context, opts cliOptions) error {
	rt, err := newRuntime(opts)
	if err != nil {
		return err
	}
	defer rt.close()
	return rt.serve(ctx)
}

func runDetect(ctx context.Context, opts cliOptions) error {
	rt, err := newRuntime(opts)
	if err != nil {
		return err
	}
	defer rt.close()

	pageCtx := asset.Classify(opts.page, rt.cfg.Site.MenuTypes)
	if pageCtx.Kind != asset.ContextSpecificMenu {
		return runtimeFailure("%s 不是具体菜单页面（识别为 %s）", opts.page, pageCtx.Kind)
	}
	visit, err := rt.visit(pageCtx)
	if err != nil {
		return runtimeFailure("创建页面访问失败: %v", err)
	}
	if err := visit.Load(ctx); err != nil {
		visit.Close()
		return runtimeFailure("页数检测中断: %v", err)
	}
	var preloaded []int
	if opts.preload {
		preloaded = visit.Wait()
	}
	visit.Close()

	return printJSON(map[string]any{
		"menu_type": pageCtx.MenuType,
		"language":  pageCtx.Language,
		"pages":     visit.TotalPages(),
		"preloaded": preloaded,
		"probes":    visit.DetectorProbes(),
		"requests":  rt.prober.Count(),
	})
}

func runSweep(ctx context.Context, opts cliOptions) error {
	rt, err := newRuntime(opts)
	if err != nil {
		return err
	}
	defer rt.close()

	page := opts.page
	if page == "" {
		page = rt.cfg.Site.SitePath("")
	}
	sweeper, err := rt.sweeper(func() string { return page }, nil)
	if err != nil {
		return runtimeFailure("创建巡检失败: %v", err)
	}
	summary, err := sweeper.Run(ctx)
	if err != nil {
		return runtimeFailure("巡检失败: %v", err)
	}
	return printJSON(map[string]any{
		"context":  summary.Context.Kind.String(),
		"checked":  summary.Checked,
		"changed":  summary.Changed,
		"recorded": summary.Recorded,
		"failed":   summary.Failed,
		"assets":   summary.ChangedURLs,
		"cleared":  summary.Cleared,
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(stdOut)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return runtimeFailure("输出结果失败: %v", err)
	}
	return nil
}

func printVersion() {
	fmt.Fprintln(stdOut, versionString())
}
