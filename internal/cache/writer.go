package cache

import (
	"context"
	"errors"
	"io"
	"net/http"
)

// ErrStoreUnavailable 表示未注入缓存存储实例。
var ErrStoreUnavailable = errors.New("cache store unavailable")

// BucketWriter 将 URL 映射到某一缓存版本的 bucket 上读写。
type BucketWriter struct {
	store   Store
	buckets BucketSet
}

// NewBucketWriter 构造绑定版本的读写器。
func NewBucketWriter(store Store, buckets BucketSet) BucketWriter {
	return BucketWriter{store: store, buckets: buckets}
}

// Enabled 返回当前是否具备缓存能力。
func (w BucketWriter) Enabled() bool {
	return w.store != nil
}

// Buckets 返回绑定的 bucket 集合。
func (w BucketWriter) Buckets() BucketSet {
	return w.buckets
}

// Locate 计算 URL 的条目定位。
func (w BucketWriter) Locate(rawURL string) Locator {
	return Locator{Bucket: w.buckets.BucketFor(rawURL), Path: URLPath(rawURL)}
}

// Put 写入 URL 对应 bucket，header 为随正文保存的源站响应头。
func (w BucketWriter) Put(ctx context.Context, rawURL string, body io.Reader, header http.Header) (*Entry, error) {
	if w.store == nil {
		return nil, ErrStoreUnavailable
	}
	return w.store.Put(ctx, w.Locate(rawURL), body, PutOptions{Header: header})
}

// Match 依次在本版本全部 bucket 中查找 URL，命中即返回。
func (w BucketWriter) Match(ctx context.Context, rawURL string) (*ReadResult, error) {
	if w.store == nil {
		return nil, ErrStoreUnavailable
	}
	p := URLPath(rawURL)
	for _, bucket := range w.buckets.Names() {
		result, err := w.store.Get(ctx, Locator{Bucket: bucket, Path: p})
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}
