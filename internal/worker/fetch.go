package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/menucache/menucache/internal/cache"
	"github.com/menucache/menucache/internal/logging"
	"github.com/menucache/menucache/internal/server"
)

// 响应头
const (
	HeaderCache  = "X-Menucache-Cache"
	HeaderBucket = "X-Menucache-Bucket"
)

// Fetch 拦截请求：先在本版本全部 bucket 中查找，命中则连同保存的响应头原样返回，不做新鲜度检查；
// 未命中则回源，200 响应在返回的同时写入按扩展名得到的 bucket。回源失败直接返回 502。
func (c *Controller) Fetch(ctx fiber.Ctx) error {
	started := time.Now()
	requestID := server.RequestID(ctx)
	sitePath := requestPath(ctx)
	method := ctx.Method()

	reqCtx := ctx.Context()
	if reqCtx == nil {
		reqCtx = context.Background()
	}

	bucket := c.writer.Buckets().BucketFor(sitePath)
	if method == http.MethodGet || method == http.MethodHead {
		result, err := c.writer.Match(reqCtx, sitePath)
		switch {
		case err == nil:
			c.metrics.CacheLookup(result.Entry.Locator.Bucket, true)
			return c.serveCache(ctx, result, requestID, started)
		case errors.Is(err, cache.ErrNotFound):
			c.metrics.CacheLookup(bucket, false)
		default:
			c.logger.WithError(err).WithField("path", sitePath).Warn("cache_get_failed")
		}
	}

	resp, err := c.upstream.forward(reqCtx, ctx, sitePath)
	if err != nil {
		c.logResult(sitePath, bucket, requestID, 0, false, started, err)
		return writeError(ctx, fiber.StatusBadGateway, "upstream_failed")
	}
	defer resp.Body.Close()

	shouldStore := method == http.MethodGet && resp.StatusCode == http.StatusOK && c.writer.Enabled()
	copyResponseHeaders(ctx, resp.Header)
	ctx.Set(HeaderCache, "miss")
	if requestID != "" {
		ctx.Set("X-Request-ID", requestID)
	}
	ctx.Status(resp.StatusCode)

	if method == http.MethodHead {
		c.logResult(sitePath, bucket, requestID, resp.StatusCode, false, started, nil)
		return nil
	}

	if !shouldStore {
		_, err = io.Copy(ctx.Response().BodyWriter(), resp.Body)
		c.logResult(sitePath, bucket, requestID, resp.StatusCode, false, started, err)
		if err != nil {
			return fiber.NewError(fiber.StatusBadGateway, fmt.Sprintf("proxy stream failed: %v", err))
		}
		return nil
	}

	reader := io.TeeReader(resp.Body, ctx.Response().BodyWriter())
	entry, err := c.writer.Put(reqCtx, sitePath, reader, storedHeaders(resp.Header))
	c.logResult(sitePath, bucket, requestID, resp.StatusCode, false, started, err)
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, fmt.Sprintf("cache_write_failed: %v", err))
	}
	c.metrics.CacheStore(entry.Locator.Bucket)
	return nil
}

func (c *Controller) serveCache(ctx fiber.Ctx, result *cache.ReadResult, requestID string, started time.Time) error {
	defer result.Reader.Close()
	_, _ = result.Reader.Seek(0, io.SeekStart)

	locator := result.Entry.Locator
	copyResponseHeaders(ctx, result.Entry.Header)
	if result.Entry.Header.Get("Content-Type") == "" {
		if contentType := contentTypeOf(locator.Path); contentType != "" {
			ctx.Set("Content-Type", contentType)
		} else {
			ctx.Response().Header.Del("Content-Type")
		}
	}
	if result.Entry.SizeBytes > 0 {
		ctx.Response().Header.SetContentLength(int(result.Entry.SizeBytes))
	}
	ctx.Set(HeaderCache, "hit")
	ctx.Set(HeaderBucket, locator.Bucket)
	if requestID != "" {
		ctx.Set("X-Request-ID", requestID)
	}
	ctx.Status(fiber.StatusOK)

	if ctx.Method() == http.MethodHead {
		c.logResult(locator.Path, locator.Bucket, requestID, fiber.StatusOK, true, started, nil)
		return nil
	}

	_, err := io.Copy(ctx.Response().BodyWriter(), result.Reader)
	c.logResult(locator.Path, locator.Bucket, requestID, fiber.StatusOK, true, started, err)
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, fmt.Sprintf("read cache failed: %v", err))
	}
	return nil
}

func (c *Controller) logResult(sitePath, bucket, requestID string, status int, cacheHit bool, started time.Time, err error) {
	fields := logging.RequestFields(bucket, string(cache.Classify(sitePath)), cacheHit)
	fields["action"] = "fetch"
	fields["path"] = sitePath
	fields["upstream_status"] = status
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if requestID != "" {
		fields["request_id"] = requestID
	}
	if err != nil {
		c.logger.WithFields(fields).WithError(err).Error("fetch_failed")
		return
	}
	c.logger.WithFields(fields).Debug("fetch_complete")
}

// contentTypeOf 按扩展名推断缓存正文的类型，目录路径视为 HTML 文档。
func contentTypeOf(sitePath string) string {
	if strings.HasSuffix(sitePath, "/") {
		return "text/html; charset=utf-8"
	}
	return mime.TypeByExtension(path.Ext(sitePath))
}

// requestPath 规范化请求路径，保留结尾斜杠以便识别目录文档。
func requestPath(ctx fiber.Ctx) string {
	raw := string(ctx.Request().URI().Path())
	if raw == "" {
		return "/"
	}
	clean := path.Clean("/" + raw)
	if strings.HasSuffix(raw, "/") && clean != "/" {
		clean += "/"
	}
	return clean
}
