// Package freshness 通过抽样前几页的指纹判断菜单系列是否发生变化。
package freshness

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/menucache/menucache/internal/detector"
	"github.com/menucache/menucache/internal/fingerprint"
	"github.com/menucache/menucache/internal/logging"
)

// ErrUnavailable 表示所有抽样页都在网络层失败，调用方应信任已存储的页数。
var ErrUnavailable = errors.New("freshness: origin unavailable")

// Separator 连接各页指纹。
const Separator = "-"

// DefaultSampleSize 是抽样页数上限。
const DefaultSampleSize = 3

// PageSample 是签名中的一个序号位置。
type PageSample struct {
	Page        int
	URL         string
	Fingerprint string
	Found       bool
}

// Signature 是按页序拼接的组合签名。
type Signature struct {
	Value string
	Pages []PageSample
}

// Options 配置 Oracle。
type Options struct {
	Prober     detector.ImageProber
	BasePath   string
	SampleSize int
	Logger     *logrus.Logger
}

// Oracle 计算与比较组合签名。
type Oracle struct {
	prober     detector.ImageProber
	basePath   string
	sampleSize int
	logger     *logrus.Entry
}

// New 构造 Oracle。
func New(opts Options) *Oracle {
	size := opts.SampleSize
	if size < 1 {
		size = DefaultSampleSize
	}
	return &Oracle{
		prober:     opts.Prober,
		basePath:   opts.BasePath,
		sampleSize: size,
		logger:     logging.Component(opts.Logger, "freshness"),
	}
}

// SampleSize 返回给定页数下实际抽样的页数。
func (o *Oracle) SampleSize(pageCount int) int {
	return max(1, min(o.sampleSize, pageCount))
}

// ComputeSignature 按页序探测前 min(SampleSize, pageCount) 页。
// 单页失败以占位值代替，保证序号对齐；全部网络失败时返回 ErrUnavailable。
func (o *Oracle) ComputeSignature(ctx context.Context, menuType, language string, pageCount int) (Signature, error) {
	n := o.SampleSize(pageCount)
	sig := Signature{Pages: make([]PageSample, 0, n)}
	parts := make([]string, 0, n)
	transportFailures := 0

	for page := 1; page <= n; page++ {
		res := o.prober.Image(ctx, o.basePath, menuType, language, page)
		sample := PageSample{Page: page, URL: res.URL, Found: res.Found}
		if res.Found {
			sample.Fingerprint = fingerprint.Of(res.Headers)
		}
		if !res.Found || !fingerprint.IsReal(sample.Fingerprint) {
			sample.Fingerprint = fingerprint.Placeholder(page)
		}
		if !res.Found && res.Transport {
			transportFailures++
		}
		sig.Pages = append(sig.Pages, sample)
		parts = append(parts, sample.Fingerprint)
	}

	if transportFailures == n {
		o.logger.WithFields(logging.SeriesFields("signature", menuType, language)).Warn("signature_origin_unavailable")
		return Signature{}, ErrUnavailable
	}

	sig.Value = strings.Join(parts, Separator)
	o.logger.WithFields(logging.SeriesFields("signature", menuType, language)).WithFields(logrus.Fields{
		"sample":    n,
		"signature": sig.Value,
	}).Debug("signature_computed")
	return sig, nil
}

// IsUnchanged 精确比较两个签名。
func IsUnchanged(stored, computed string) bool {
	return stored == computed
}

// ChangedURLs 返回 prev 与 next 在同一序号上指纹不同的页面地址，以 next 中的地址为准。
// prev 只有字符串值时可通过 Parse 还原。
func ChangedURLs(prev, next Signature) []string {
	var urls []string
	for i, sample := range next.Pages {
		if i < len(prev.Pages) && prev.Pages[i].Fingerprint == sample.Fingerprint {
			continue
		}
		if sample.URL != "" {
			urls = append(urls, sample.URL)
		}
	}
	return urls
}

// Parse 将存储的签名值还原为按序号排列的样本，URL 字段为空。
func Parse(value string) Signature {
	sig := Signature{Value: value}
	if value == "" {
		return sig
	}
	// 占位值本身含有分隔符，需要重新拼接
	tokens := strings.Split(value, Separator)
	for i := 0; i < len(tokens); i++ {
		token := tokens[i]
		if token == "fallback" && i+1 < len(tokens) {
			token = token + Separator + tokens[i+1]
			i++
		}
		sig.Pages = append(sig.Pages, PageSample{
			Page:        len(sig.Pages) + 1,
			Fingerprint: token,
			Found:       fingerprint.IsReal(token),
		})
	}
	return sig
}
