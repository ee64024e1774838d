package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述进程级运行参数。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFormat       string   `mapstructure:"LogFormat"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	StoragePath     string   `mapstructure:"StoragePath"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
}

// SiteConfig 描述被缓存的静态菜单站点。
type SiteConfig struct {
	// Origin 是静态站点的 http/https 根地址。
	Origin string `mapstructure:"Origin"`
	// BasePath 为站点部署前缀，本地为空，托管环境通常是 /Menu/。
	BasePath         string                    `mapstructure:"BasePath"`
	Languages        []string                  `mapstructure:"Languages"`
	MenuTypes        []string                  `mapstructure:"MenuTypes"`
	CacheVersion     string                    `mapstructure:"CacheVersion"`
	DetectionVersion string                    `mapstructure:"DetectionVersion"`
	EstimatedPages   map[string]map[string]int `mapstructure:"EstimatedPages"`
}

// ManifestConfig 列出安装阶段需要预缓存的资源。
type ManifestConfig struct {
	Core      []string                  `mapstructure:"Core"`
	Documents []string                  `mapstructure:"Documents"`
	Fonts     []string                  `mapstructure:"Fonts"`
	Images    []string                  `mapstructure:"Images"`
	Videos    []string                  `mapstructure:"Videos"`
	MenuPages map[string]map[string]int `mapstructure:"MenuPages"`
}

// DetectorConfig 控制页数探测与内容签名。
type DetectorConfig struct {
	ProbeTimeout  Duration `mapstructure:"ProbeTimeout"`
	SafetyTimeout Duration `mapstructure:"SafetyTimeout"`
	SampleSize    int      `mapstructure:"SampleSize"`
	ProbeRate     float64  `mapstructure:"ProbeRate"`
}

// SweepConfig 控制后台巡检。
type SweepConfig struct {
	BatchSize          int      `mapstructure:"BatchSize"`
	BatchPause         Duration `mapstructure:"BatchPause"`
	AssetTimeout       Duration `mapstructure:"AssetTimeout"`
	RetryDelay         Duration `mapstructure:"RetryDelay"`
	TriggerDelay       Duration `mapstructure:"TriggerDelay"`
	ForegroundInterval Duration `mapstructure:"ForegroundInterval"`
	ProbePages         int      `mapstructure:"ProbePages"`
	StaticImages       []string `mapstructure:"StaticImages"`
	StaticFonts        []string `mapstructure:"StaticFonts"`
	StaticVideos       []string `mapstructure:"StaticVideos"`
}

// NetwatchConfig 控制联网状态探测。
type NetwatchConfig struct {
	Interval Duration `mapstructure:"Interval"`
	Timeout  Duration `mapstructure:"Timeout"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global   GlobalConfig   `mapstructure:",squash"`
	Site     SiteConfig     `mapstructure:"Site"`
	Manifest ManifestConfig `mapstructure:"Manifest"`
	Detector DetectorConfig `mapstructure:"Detector"`
	Sweep    SweepConfig    `mapstructure:"Sweep"`
	Netwatch NetwatchConfig `mapstructure:"Netwatch"`
}

// DefaultEstimatedPages 是没有任何预估时使用的页数。
const DefaultEstimatedPages = 12

// defaultEstimatedPages 是未配置 EstimatedPages 时的内置预估。
func defaultEstimatedPages() map[string]map[string]int {
	return map[string]map[string]int{
		"menu": {"pt": 17, "en": 17, "fr": 12, "es": 12, "de": 12},
		"wine": {"pt": 6, "en": 6, "fr": 6, "es": 6, "de": 6},
	}
}

// EstimatedPagesFor 返回菜单系列的预估页数，未配置时返回 fallback。
func (s SiteConfig) EstimatedPagesFor(menuType, language string, fallback int) int {
	if byLang, ok := s.EstimatedPages[menuType]; ok {
		if n, ok := byLang[language]; ok && n > 0 {
			return n
		}
	}
	return fallback
}

// HasMenuType 判断菜单类型是否在配置中声明。
func (s SiteConfig) HasMenuType(menuType string) bool {
	for _, m := range s.MenuTypes {
		if m == menuType {
			return true
		}
	}
	return false
}

// OriginURL 拼接 origin 与站内路径。
func (s SiteConfig) OriginURL(path string) string {
	return strings.TrimRight(s.Origin, "/") + "/" + strings.TrimLeft(path, "/")
}

// SitePath 将相对站点根目录的路径拼接到 BasePath 之下。
func (s SiteConfig) SitePath(p string) string {
	base := s.BasePath
	if base == "" {
		base = "/"
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + strings.TrimLeft(p, "/")
}
