// Package probe 通过 HEAD 请求判断资源是否存在，并提取指纹所需的响应头。
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/menucache/menucache/internal/asset"
	"github.com/menucache/menucache/internal/fingerprint"
)

// ErrNotFound 表示上游返回了非 2xx 状态。
var ErrNotFound = errors.New("probe: asset not found")

// Options 描述 Prober 的依赖。
type Options struct {
	Client  *http.Client
	Origin  string
	Timeout time.Duration
	// Rate 为每秒允许发出的探测数，0 表示不限速。
	Rate float64
}

// Prober 在进程内共享，统一限速并统计已发出的探测次数。
type Prober struct {
	client  *http.Client
	origin  string
	timeout time.Duration
	limiter *rate.Limiter
	count   atomic.Int64
}

// New 构造 Prober。
func New(opts Options) *Prober {
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	limit := rate.Inf
	burst := 1
	if opts.Rate > 0 {
		limit = rate.Limit(opts.Rate)
		burst = int(opts.Rate)
		if burst < 1 {
			burst = 1
		}
	}
	return &Prober{
		client:  client,
		origin:  trimRight(opts.Origin),
		timeout: opts.Timeout,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Result 对应一次存在性探测的结果：Found(format) 或 NotFound。
type Result struct {
	Found   bool
	Format  asset.Format
	URL     string
	Headers fingerprint.Headers
	// Transport 标记网络层失败，区别于上游明确返回的 404。
	Transport bool
}

// Fingerprint 返回结果对应的指纹，未找到时返回 Unavailable。
func (r Result) Fingerprint() string {
	if !r.Found {
		return fingerprint.Unavailable
	}
	return fingerprint.Of(r.Headers)
}

// Count 返回累计发出的探测次数。
func (p *Prober) Count() int64 {
	return p.count.Load()
}

// Head 对站内路径发出 HEAD 请求，调用方负责读取响应头，响应体已关闭。
func (p *Prober) Head(ctx context.Context, path string) (*http.Response, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.resolve(path), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Cache-Control", "no-cache")

	p.count.Add(1)
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", path, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, fmt.Errorf("%w: %s status %d", ErrNotFound, path, resp.StatusCode)
	}
	return resp, nil
}

// Asset 依次探测描述符的候选地址，WebP 优先，两个格式都失败才算不存在。
func (p *Prober) Asset(ctx context.Context, desc asset.Descriptor) Result {
	result := Result{URL: desc.URL}
	transportFailures := 0
	candidates := desc.Candidates()

	for i, candidate := range candidates {
		resp, err := p.Head(ctx, candidate)
		if err == nil {
			return Result{
				Found:   true,
				Format:  formatOf(desc, i),
				URL:     candidate,
				Headers: fingerprint.FromResponse(candidate, resp),
			}
		}
		if !errors.Is(err, ErrNotFound) {
			transportFailures++
		}
		if ctx.Err() != nil {
			break
		}
	}

	result.Transport = transportFailures > 0 && transportFailures == len(candidates)
	return result
}

// Image 探测分页菜单图片。
func (p *Prober) Image(ctx context.Context, basePath, menuType, language string, page int) Result {
	return p.Asset(ctx, asset.MenuImage(basePath, menuType, language, page))
}

func (p *Prober) resolve(path string) string {
	if p.origin == "" {
		return path
	}
	if len(path) > 0 && path[0] == '/' {
		return p.origin + path
	}
	return p.origin + "/" + path
}

func formatOf(desc asset.Descriptor, index int) asset.Format {
	if desc.Kind != asset.KindMenuImage {
		return ""
	}
	if index == 0 {
		return asset.FormatWebP
	}
	return asset.FormatJPEG
}

func trimRight(origin string) string {
	for len(origin) > 0 && origin[len(origin)-1] == '/' {
		origin = origin[:len(origin)-1]
	}
	return origin
}
