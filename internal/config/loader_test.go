package config

import (
	"errors"
	"strings"
	"testing"
)

func TestLoadFailsWithMissingFields(t *testing.T) {
	if _, err := Load(fixture("missing.toml")); err == nil {
		t.Fatalf("缺失字段的配置应返回错误")
	}
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	_, err := loadInline(t, `
LogLevel = "info"
StoragePath = "./data"
UpstreamTimeout = "boom"
`, `
[Site]
Origin = "https://example.github.io"
`)
	if err == nil {
		t.Fatalf("无效 Duration 应失败")
	}
}

func TestLoadNormalizesBasePath(t *testing.T) {
	cfg, err := Load(fixture("valid.toml"))
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.Site.BasePath != "/Menu/" {
		t.Fatalf("BasePath 应补齐结尾斜杠，得到 %q", cfg.Site.BasePath)
	}
}

func TestLoadRejectsUnknownManifestMenuType(t *testing.T) {
	_, err := loadInline(t, siteHeader, `
MenuTypes = ["menu"]

[Manifest.MenuPages.brunch]
pt = 2
`)
	if err == nil {
		t.Fatalf("未声明的菜单类型应失败")
	}
	var fieldErr FieldError
	if !errors.As(err, &fieldErr) || fieldErr.Field != "Manifest.MenuPages[brunch][*]" {
		t.Fatalf("错误应指出字段路径，得到 %v", err)
	}
}

func TestLoadRejectsUnknownLogFormat(t *testing.T) {
	_, err := loadInline(t, `LogFormat = "xml"`+siteHeader, "")
	if err == nil || !strings.Contains(err.Error(), "Global.LogFormat") {
		t.Fatalf("未知日志格式应失败，得到 %v", err)
	}
}

func TestLoadFillsSeriesDefaults(t *testing.T) {
	cfg, err := loadInline(t, siteHeader, "")
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if len(cfg.Site.Languages) != 5 || len(cfg.Site.MenuTypes) != 3 {
		t.Fatalf("语言与菜单类型应使用默认集合，得到 %v %v", cfg.Site.Languages, cfg.Site.MenuTypes)
	}
	if cfg.Site.DetectionVersion != cfg.Site.CacheVersion {
		t.Fatalf("DetectionVersion 默认跟随 CacheVersion")
	}
	if cfg.Global.LogFormat != "json" {
		t.Fatalf("日志格式默认应为 json，得到 %q", cfg.Global.LogFormat)
	}
	if got := cfg.Site.EstimatedPagesFor("menu", "pt", 0); got != 17 {
		t.Fatalf("menu/pt 默认预估应为 17，得到 %d", got)
	}
	if got := cfg.Site.EstimatedPagesFor("menu", "fr", 0); got != 12 {
		t.Fatalf("menu/fr 默认预估应为 12，得到 %d", got)
	}
	if got := cfg.Site.EstimatedPagesFor("wine", "de", 0); got != 6 {
		t.Fatalf("wine/de 默认预估应为 6，得到 %d", got)
	}
	if got := cfg.Site.EstimatedPagesFor("desserts", "pt", DefaultEstimatedPages); got != DefaultEstimatedPages {
		t.Fatalf("未列出的系列应回退到 %d，得到 %d", DefaultEstimatedPages, got)
	}
}
