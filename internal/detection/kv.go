// Package detection 持久化页数记录、内容签名、版本标记与后台巡检指纹。
//
// 所有读写都是本地同步操作。后端不可用时读取视为缺失，写入仅记录日志，
// 调用方据此退化为重新探测，而不会把错误暴露给终端用户。
package detection

import (
	"context"
	"errors"
)

// ErrStoreUnavailable 包装后端的底层错误。
var ErrStoreUnavailable = errors.New("detection store unavailable")

// KV 是设备本地的键值存储，多个上下文共享且不加锁，写入遵循后写覆盖。
type KV interface {
	// Get 返回键对应的值，第二个返回值表示是否存在。
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	// Keys 列出以 prefix 开头的所有键。
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}
