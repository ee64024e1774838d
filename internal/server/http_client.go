package server

import (
	"errors"
	"net"
	"net/http"
	"net/textproto"
	"time"

	"github.com/menucache/menucache/internal/config"
	"github.com/menucache/menucache/internal/version"
)

// 所有请求都指向同一个源站，连接池按单主机调优。
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          32,
	MaxIdleConnsPerHost:   32,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ForceAttemptHTTP2:     true,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// maxProbeRedirects 限制 HEAD 探测跟随的重定向次数，GitHub Pages 通常只有一次。
const maxProbeRedirects = 3

var errTooManyRedirects = errors.New("too many redirects")

// userAgentTransport 为未显式设置 User-Agent 的请求补上 menucache 标识。
type userAgentTransport struct {
	next http.RoundTripper
}

func (t userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.next.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", version.UserAgent())
	return t.next.RoundTrip(clone)
}

func newTransport() http.RoundTripper {
	return userAgentTransport{next: defaultTransport.Clone()}
}

// NewUpstreamClient 返回共享 http.Client，拦截回源与安装抓取都复用它。
func NewUpstreamClient(cfg *config.Config) *http.Client {
	timeout := 30 * time.Second
	if cfg != nil && cfg.Global.UpstreamTimeout.DurationValue() > 0 {
		timeout = cfg.Global.UpstreamTimeout.DurationValue()
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: newTransport(),
	}
}

// NewProbeClient 返回 HEAD 探测使用的 http.Client。单次探测的超时由调用方的 context 控制，
// 这里只设置一个不短于探测超时的兜底值。
func NewProbeClient(cfg *config.Config) *http.Client {
	timeout := 15 * time.Second
	if cfg != nil {
		timeout = max(cfg.Detector.ProbeTimeout.DurationValue(), cfg.Sweep.AssetTimeout.DurationValue(), time.Second)
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: newTransport(),
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxProbeRedirects {
				return errTooManyRedirects
			}
			return nil
		},
	}
}

// hopByHopHeaders 定义 RFC 7230 中禁止代理转发的头部。
var hopByHopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
	"Proxy-Connection":    {}, // 非标准字段，但部分代理仍使用
}

// CopyHeaders 将 src 中允许透传的头复制到 dst，自动忽略 hop-by-hop 字段。
func CopyHeaders(dst, src http.Header) {
	for key, values := range src {
		if IsHopByHopHeader(key) {
			continue
		}
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

// IsHopByHopHeader reports whether the header should be stripped by proxies.
func IsHopByHopHeader(key string) bool {
	_, ok := hopByHopHeaders[textproto.CanonicalMIMEHeaderKey(key)]
	return ok
}
