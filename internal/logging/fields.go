package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供 bucket/资源类型/命中状态字段，供缓存拦截日志复用。
func RequestFields(bucket, resourceType string, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"bucket":        bucket,
		"resource_type": resourceType,
		"cache_hit":     cacheHit,
	}
}

// SeriesFields 标识一个菜单系列（菜单类型 + 语言）。
func SeriesFields(action, menuType, language string) logrus.Fields {
	return logrus.Fields{
		"action":    action,
		"menu_type": menuType,
		"language":  language,
	}
}

// Discard 返回丢弃全部输出的 logger，供测试与未注入 logger 的组件使用。
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// Component 为子系统日志附加 component 字段。
func Component(logger *logrus.Logger, name string) *logrus.Entry {
	if logger == nil {
		logger = Discard()
	}
	return logger.WithField("component", name)
}
