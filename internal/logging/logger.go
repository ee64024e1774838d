package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/menucache/menucache/internal/config"
)

// Option 调整 InitLogger 的行为。
type Option func(*options)

type options struct {
	console io.Writer
}

// WithConsole 指定未配置日志文件或文件不可用时的输出目标，默认 stdout。
// 向 stdout 打印结果的子命令应把日志引到 stderr。
func WithConsole(w io.Writer) Option {
	return func(o *options) {
		if w != nil {
			o.console = w
		}
	}
}

// InitLogger 根据全局配置构造 logger，并同步到 logrus 的标准 logger。
// 日志文件不可写时退回 console 输出，同时记录一条 logger_fallback 警告。
func InitLogger(cfg config.GlobalConfig, opts ...Option) (*logrus.Logger, error) {
	o := options{console: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("无法解析日志级别: %w", err)
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(formatterFor(cfg.LogFormat))

	output, fallbackErr := openLogFile(cfg)
	if output == nil {
		output = o.console
	}
	logger.SetOutput(output)

	std := logrus.StandardLogger()
	std.SetFormatter(logger.Formatter)
	std.SetOutput(logger.Out)
	std.SetLevel(level)

	if fallbackErr != nil {
		logger.WithFields(logrus.Fields{
			"action": "logger_fallback",
			"path":   cfg.LogFilePath,
		}).Warn(fallbackErr.Error())
	}
	return logger, nil
}

func formatterFor(format string) logrus.Formatter {
	if format == "text" {
		return &logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339}
	}
	return &logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano}
}

// openLogFile 返回按大小轮转的文件输出；未配置时返回 nil。
func openLogFile(cfg config.GlobalConfig) (io.Writer, error) {
	if cfg.LogFilePath == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LogFilePath), 0o755); err != nil {
		return nil, fmt.Errorf("创建日志目录失败: %w", err)
	}
	return &lumberjack.Logger{
		Filename:   cfg.LogFilePath,
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: cfg.LogMaxBackups,
		Compress:   cfg.LogCompress,
		LocalTime:  true,
	}, nil
}
