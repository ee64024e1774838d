package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/menucache/menucache/internal/config"
)

func TestInitLoggerDefaultsToStdout(t *testing.T) {
	logger, err := InitLogger(config.GlobalConfig{LogLevel: "info"})
	if err != nil {
		t.Fatalf("配置失败: %v", err)
	}
	if logger.Out != os.Stdout {
		t.Fatalf("未指定文件时应输出到 stdout")
	}
	if _, ok := logger.Formatter.(*logrus.JSONFormatter); !ok {
		t.Fatalf("默认应使用 JSON 格式，得到 %T", logger.Formatter)
	}
}

func TestInitLoggerFallsBackToConsole(t *testing.T) {
	dir := t.TempDir()
	blocked := filepath.Join(dir, "blocked")
	if err := os.Mkdir(blocked, 0o755); err != nil {
		t.Fatalf("创建目录失败: %v", err)
	}
	if err := os.Chmod(blocked, 0o000); err != nil {
		t.Fatalf("设置目录权限失败: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(blocked, 0o755) })

	var console bytes.Buffer
	logger, err := InitLogger(config.GlobalConfig{
		LogLevel:    "info",
		LogFilePath: filepath.Join(blocked, "sub", "menucache.log"),
	}, WithConsole(&console))
	if err != nil {
		t.Fatalf("初始化不应失败: %v", err)
	}
	if logger.Out != &console {
		t.Fatalf("fallback 时应退回 console 输出")
	}

	var entry map[string]any
	if err := json.Unmarshal(console.Bytes(), &entry); err != nil {
		t.Fatalf("fallback 警告应为 JSON: %v (%q)", err, console.String())
	}
	if entry["action"] != "logger_fallback" {
		t.Fatalf("应记录 logger_fallback，得到 %v", entry)
	}
}

func TestInitLoggerWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "menucache.log")
	logger, err := InitLogger(config.GlobalConfig{LogLevel: "debug", LogFilePath: path})
	if err != nil {
		t.Fatalf("配置失败: %v", err)
	}
	logger.Info("test")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("预期创建日志文件: %v", err)
	}
}

func TestInitLoggerTextFormat(t *testing.T) {
	var console bytes.Buffer
	logger, err := InitLogger(config.GlobalConfig{LogLevel: "info", LogFormat: "text"}, WithConsole(&console))
	if err != nil {
		t.Fatalf("配置失败: %v", err)
	}
	logger.WithField("menu_type", "wine").Info("page_count_resolved")
	if !strings.Contains(console.String(), "menu_type=wine") {
		t.Fatalf("text 格式应输出 key=value，得到 %q", console.String())
	}
}

func TestInitLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := InitLogger(config.GlobalConfig{LogLevel: "loud"}); err == nil {
		t.Fatalf("未知日志级别应失败")
	}
}

func TestComponentToleratesNilLogger(t *testing.T) {
	entry := Component(nil, "sweep")
	if entry.Data["component"] != "sweep" {
		t.Fatalf("component 字段缺失: %v", entry.Data)
	}
	entry.Info("discarded")
}

func TestSeriesFieldsCarryIdentity(t *testing.T) {
	fields := SeriesFields("detect", "menu", "pt")
	if fields["menu_type"] != "menu" || fields["language"] != "pt" || fields["action"] != "detect" {
		t.Fatalf("unexpected fields: %v", fields)
	}
}
