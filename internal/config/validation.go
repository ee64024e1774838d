package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// seriesToken 限制菜单类型与语言只能出现在 URL 与存储键中安全的字符。
var seriesToken = regexp.MustCompile(`^[a-z0-9]+$`)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.LogFormat != "json" && g.LogFormat != "text" {
		return newFieldError("Global.LogFormat", "仅支持 json 或 text")
	}
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}

	if err := c.validateSite(); err != nil {
		return err
	}
	if err := c.validateManifest(); err != nil {
		return err
	}

	d := c.Detector
	if d.ProbeTimeout.DurationValue() <= 0 {
		return newFieldError("Detector.ProbeTimeout", "必须大于 0")
	}
	if d.SafetyTimeout.DurationValue() < d.ProbeTimeout.DurationValue() {
		return newFieldError("Detector.SafetyTimeout", "不能小于 ProbeTimeout")
	}
	if d.SampleSize < 1 {
		return newFieldError("Detector.SampleSize", "必须大于 0")
	}
	if d.ProbeRate < 0 {
		return newFieldError("Detector.ProbeRate", "不能为负数")
	}

	w := c.Sweep
	if w.BatchSize < 1 {
		return newFieldError("Sweep.BatchSize", "必须大于 0")
	}
	if w.BatchPause.DurationValue() < 0 {
		return newFieldError("Sweep.BatchPause", "不能为负数")
	}
	if w.AssetTimeout.DurationValue() <= 0 {
		return newFieldError("Sweep.AssetTimeout", "必须大于 0")
	}
	if w.RetryDelay.DurationValue() <= 0 {
		return newFieldError("Sweep.RetryDelay", "必须大于 0")
	}
	if w.ProbePages < 1 {
		return newFieldError("Sweep.ProbePages", "必须大于 0")
	}

	if c.Netwatch.Interval.DurationValue() <= 0 {
		return newFieldError("Netwatch.Interval", "必须大于 0")
	}
	return nil
}

func (c *Config) validateSite() error {
	s := c.Site
	if err := validateOrigin(s.Origin); err != nil {
		return newFieldError("Site.Origin", err.Error())
	}
	if s.BasePath != "" && !strings.HasPrefix(s.BasePath, "/") {
		return newFieldError("Site.BasePath", "必须以 / 开头")
	}
	if len(s.Languages) == 0 {
		return newFieldError("Site.Languages", "至少需要一种语言")
	}
	if len(s.MenuTypes) == 0 {
		return newFieldError("Site.MenuTypes", "至少需要一种菜单类型")
	}
	for _, lang := range s.Languages {
		if !seriesToken.MatchString(lang) {
			return newFieldError("Site.Languages", fmt.Sprintf("非法语言标识: %q", lang))
		}
	}
	for _, menuType := range s.MenuTypes {
		if !seriesToken.MatchString(menuType) {
			return newFieldError("Site.MenuTypes", fmt.Sprintf("非法菜单类型: %q", menuType))
		}
	}
	if strings.TrimSpace(s.CacheVersion) == "" {
		return newFieldError("Site.CacheVersion", "不能为空")
	}
	for menuType, byLang := range s.EstimatedPages {
		for lang, n := range byLang {
			if n < 1 {
				return newFieldError(seriesField("Site.EstimatedPages", menuType, lang), "必须大于 0")
			}
		}
	}
	return nil
}

func (c *Config) validateManifest() error {
	for menuType, byLang := range c.Manifest.MenuPages {
		if !c.Site.HasMenuType(menuType) {
			return newFieldError(seriesField("Manifest.MenuPages", menuType, "*"), "未声明的菜单类型")
		}
		for lang, n := range byLang {
			if n < 0 {
				return newFieldError(seriesField("Manifest.MenuPages", menuType, lang), "不能为负数")
			}
		}
	}
	return nil
}

func validateOrigin(raw string) error {
	if raw == "" {
		return errors.New("缺少站点地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，站点: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("站点缺少 Host: %s", raw)
	}
	return nil
}
