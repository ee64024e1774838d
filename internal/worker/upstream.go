package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/menucache/menucache/internal/server"
)

// upstream 负责把请求转发到静态站点源。
type upstream struct {
	client *http.Client
	origin *url.URL
}

func newUpstream(client *http.Client, origin string) (upstream, error) {
	if client == nil {
		client = http.DefaultClient
	}
	parsed, err := url.Parse(strings.TrimRight(origin, "/"))
	if err != nil {
		return upstream{}, fmt.Errorf("parse origin: %w", err)
	}
	return upstream{client: client, origin: parsed}, nil
}

// resolve 拼接源站地址，path 为已解码的站内路径。
func (u upstream) resolve(sitePath, rawQuery string) string {
	target := *u.origin
	target.Path = strings.TrimRight(u.origin.Path, "/") + sitePath
	target.RawPath = ""
	target.RawQuery = rawQuery
	return target.String()
}

// fetched 是一次完整拉取的结果。
type fetched struct {
	body   []byte
	header http.Header
}

// fetch 以 GET 拉取完整正文，非 200 视为失败。
func (u upstream) fetch(ctx context.Context, sitePath string) (fetched, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.resolve(sitePath, ""), nil)
	if err != nil {
		return fetched{}, err
	}
	resp, err := u.client.Do(req)
	if err != nil {
		return fetched{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fetched{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fetched{}, err
	}
	return fetched{body: body, header: storedHeaders(resp.Header)}, nil
}

// storedHeaders 过滤掉逐跳头与由正文决定的长度，其余随条目保存。
func storedHeaders(headers http.Header) http.Header {
	kept := make(http.Header, len(headers))
	for key, values := range headers {
		if server.IsHopByHopHeader(key) || http.CanonicalHeaderKey(key) == "Content-Length" {
			continue
		}
		kept[http.CanonicalHeaderKey(key)] = append([]string(nil), values...)
	}
	return kept
}

// forward 按原方法、请求头与正文转发一次拦截到的请求。
func (u upstream) forward(ctx context.Context, c fiber.Ctx, sitePath string) (*http.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	target := u.resolve(sitePath, string(c.Request().URI().QueryString()))
	req, err := http.NewRequestWithContext(ctx, c.Method(), target, bytesReader(c.Body()))
	if err != nil {
		return nil, err
	}

	server.CopyHeaders(req.Header, fiberHeadersAsHTTP(c))
	req.Header.Del("Accept-Encoding")
	req.Host = u.origin.Host
	req.Header.Set("Host", u.origin.Host)
	req.Header.Set("X-Forwarded-Host", c.Hostname())
	if ip := c.IP(); ip != "" {
		req.Header.Set("X-Forwarded-For", ip)
	}
	return u.client.Do(req)
}

func bytesReader(b []byte) io.Reader {
	if len(b) == 0 {
		return http.NoBody
	}
	return bytes.NewReader(b)
}

func fiberHeadersAsHTTP(c fiber.Ctx) http.Header {
	header := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		header.Add(string(key), string(value))
	})
	return header
}

func copyResponseHeaders(c fiber.Ctx, headers http.Header) {
	for key, values := range headers {
		if server.IsHopByHopHeader(key) {
			continue
		}
		for _, value := range values {
			c.Set(key, value)
		}
	}
}

func writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}
