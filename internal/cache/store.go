package cache

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"
)

// Store 负责管理磁盘缓存的读写。磁盘布局遵循：
//
//	<StoragePath>/buckets/<Bucket>/<path>            # 实际正文
//	<StoragePath>/buckets/<Bucket>/<dir>/.hdr-<name>  # 源站响应头（可选）
//
// 文件的 ModTime/Size 由文件系统提供。
type Store interface {
	// Get 返回一个可流式读取的缓存条目。若不存在则返回 ErrNotFound。
	Get(ctx context.Context, locator Locator) (*ReadResult, error)

	// Put 通过临时文件 + rename 原子写入正文，失败时清理临时文件。
	Put(ctx context.Context, locator Locator, body io.Reader, opts PutOptions) (*Entry, error)

	// Remove 删除单个条目。
	Remove(ctx context.Context, locator Locator) error

	// Buckets 列出磁盘上现存的全部 bucket 名称，按字典序排列。
	Buckets(ctx context.Context) ([]string, error)

	// DeleteBucket 删除整个 bucket，bucket 不存在时返回 false。
	DeleteBucket(ctx context.Context, name string) (bool, error)
}

// PutOptions 控制写入过程中的可选属性。
type PutOptions struct {
	ModTime time.Time
	// Header 为源站响应头，命中时原样返回；为空则不写响应头文件。
	Header http.Header
}

// Locator 唯一定位一个缓存条目（bucket + URL 路径）。
type Locator struct {
	Bucket string
	Path   string
}

// Entry 表示一次缓存命中结果，包含绝对文件路径及文件信息。
type Entry struct {
	Locator   Locator `json:"locator"`
	FilePath  string  `json:"file_path"`
	SizeBytes int64   `json:"size_bytes"`
	ModTime   time.Time
	// Header 为写入时保存的响应头，可能为空。
	Header http.Header `json:"header,omitempty"`
}

// ReadResult 组合 Entry 与正文 Reader，便于拦截层直接将 Body 流式返回。
type ReadResult struct {
	Entry  Entry
	Reader io.ReadSeekCloser
}

// ErrNotFound 表示缓存不存在。
var ErrNotFound = errors.New("cache entry not found")
