package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absStorage, err := filepath.Abs(cfg.Global.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Global.StoragePath = absStorage

	return &cfg, nil
}

// DefaultStoragePath 返回 XDG 数据目录下的默认存储位置。
func DefaultStoragePath() string {
	return filepath.Join(xdg.DataHome, "menucache")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 8000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFormat", "json")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("StoragePath", DefaultStoragePath())
	v.SetDefault("UpstreamTimeout", "30s")
}

// applyDefaults 补齐 viper 无法对嵌套表设置的默认值，取值与站点 JS 版本保持一致。
func applyDefaults(cfg *Config) {
	g := &cfg.Global
	if g.ListenPort == 0 {
		g.ListenPort = 8000
	}
	g.LogFormat = strings.ToLower(strings.TrimSpace(g.LogFormat))
	if g.LogFormat == "" {
		g.LogFormat = "json"
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(30 * time.Second)
	}

	s := &cfg.Site
	if len(s.Languages) == 0 {
		s.Languages = []string{"pt", "en", "fr", "es", "de"}
	}
	if len(s.MenuTypes) == 0 {
		s.MenuTypes = []string{"menu", "wine", "desserts"}
	}
	if s.CacheVersion == "" {
		s.CacheVersion = "v6"
	}
	if s.DetectionVersion == "" {
		s.DetectionVersion = s.CacheVersion
	}
	if s.EstimatedPages == nil {
		s.EstimatedPages = defaultEstimatedPages()
	}
	if s.BasePath != "" && !strings.HasSuffix(s.BasePath, "/") {
		s.BasePath += "/"
	}

	d := &cfg.Detector
	if d.ProbeTimeout.DurationValue() == 0 {
		d.ProbeTimeout = Duration(10 * time.Second)
	}
	if d.SafetyTimeout.DurationValue() == 0 {
		d.SafetyTimeout = Duration(30 * time.Second)
	}
	if d.SampleSize == 0 {
		d.SampleSize = 3
	}

	w := &cfg.Sweep
	if w.BatchSize == 0 {
		w.BatchSize = 5
	}
	if w.BatchPause.DurationValue() == 0 {
		w.BatchPause = Duration(100 * time.Millisecond)
	}
	if w.AssetTimeout.DurationValue() == 0 {
		w.AssetTimeout = Duration(15 * time.Second)
	}
	if w.RetryDelay.DurationValue() == 0 {
		w.RetryDelay = Duration(5 * time.Minute)
	}
	if w.TriggerDelay.DurationValue() == 0 {
		w.TriggerDelay = Duration(time.Second)
	}
	if w.ForegroundInterval.DurationValue() == 0 {
		w.ForegroundInterval = Duration(30 * time.Minute)
	}
	if w.ProbePages == 0 {
		w.ProbePages = 3
	}

	n := &cfg.Netwatch
	if n.Interval.DurationValue() == 0 {
		n.Interval = Duration(30 * time.Second)
	}
	if n.Timeout.DurationValue() == 0 {
		n.Timeout = Duration(5 * time.Second)
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
