// Package detector 通过逐页探测确定一个菜单系列的页数。
//
// 采用顺序策略：从第 1 页开始，上一页存在才探测下一页，遇到第一个不存在的页即停止。
// 整轮探测只受安全超时约束；MaxPages 仅用于防止源站对任意页号都返回成功时无限探测。
package detector

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/menucache/menucache/internal/asset"
	"github.com/menucache/menucache/internal/logging"
	"github.com/menucache/menucache/internal/probe"
)

// MaxPages 是失控保护，达到时与安全超时一样按 TimedOut 报告。
const MaxPages = 500

// ImageProber 是 Detector 依赖的探测能力。
type ImageProber interface {
	Image(ctx context.Context, basePath, menuType, language string, page int) probe.Result
}

// Options 配置 Detector。
type Options struct {
	Prober        ImageProber
	BasePath      string
	SafetyTimeout time.Duration
	Logger        *logrus.Logger
}

// Detector 无状态，可被多个编排器共享。
type Detector struct {
	prober   ImageProber
	basePath string
	safety   time.Duration
	logger   *logrus.Entry
}

// Result 汇总一次探测。
type Result struct {
	// Count 至少为 1，第 1 页不存在时同样返回 1，避免出现零页状态。
	Count int
	// Probes 为实际探测的页数。
	Probes int
	// TimedOut 表示安全超时或 MaxPages 先于结束条件到达，Count 为已知的最佳值。
	TimedOut bool
	// Formats 记录每个存在页面被找到的格式。
	Formats map[int]asset.Format
}

// New 构造 Detector。
func New(opts Options) *Detector {
	return &Detector{
		prober:   opts.Prober,
		basePath: opts.BasePath,
		safety:   opts.SafetyTimeout,
		logger:   logging.Component(opts.Logger, "detector"),
	}
}

// Detect 顺序探测页面，返回检测到的页数。
func (d *Detector) Detect(ctx context.Context, menuType, language string) Result {
	if d.safety > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.safety)
		defer cancel()
	}

	started := time.Now()
	result := Result{Formats: make(map[int]asset.Format)}
	lastFound := 0

	for page := 1; page <= MaxPages; page++ {
		if ctx.Err() != nil {
			break
		}
		res := d.prober.Image(ctx, d.basePath, menuType, language, page)
		result.Probes++
		if !res.Found {
			break
		}
		lastFound = page
		result.Formats[page] = res.Format
	}

	result.TimedOut = errors.Is(ctx.Err(), context.DeadlineExceeded) || lastFound == MaxPages
	result.Count = max(1, lastFound)

	entry := d.logger.WithFields(logging.SeriesFields("detect", menuType, language)).WithFields(logrus.Fields{
		"count":      result.Count,
		"probes":     result.Probes,
		"timed_out":  result.TimedOut,
		"elapsed_ms": time.Since(started).Milliseconds(),
	})
	if lastFound == 0 {
		entry.Warn("detect_first_page_missing")
	} else {
		entry.Info("detect_complete")
	}
	return result
}
