// Package messaging 定义页面上下文与离线缓存控制器之间的命令协议。
package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type 是命令类型。
type Type string

const (
	// TypeInvalidateCache 删除 assets 涉及的 bucket，assets 为空时只删除图片 bucket。
	TypeInvalidateCache Type = "INVALIDATE_CACHE"
	// TypeBackgroundCheckRequested 转发给所有打开的页面上下文。
	TypeBackgroundCheckRequested Type = "BACKGROUND_CHECK_REQUESTED"
	// TypeGetStatus 查询控制器版本与 bucket 列表。
	TypeGetStatus Type = "GET_SW_STATUS"
)

var (
	// ErrNoController 表示当前没有可用的控制器，命令被丢弃且不重试。
	ErrNoController = errors.New("messaging: no active controller")
	// ErrUnknownType 表示无法识别的命令类型。
	ErrUnknownType = errors.New("messaging: unknown message type")
	// ErrInvalidMessage 表示命令本身无法解析。
	ErrInvalidMessage = errors.New("messaging: invalid message")
)

// 诊断路由应答中的错误码
const (
	CodeInvalidMessage = "invalid_message"
	CodeUnknownType    = "unknown_type"
	CodeNoController   = "no_controller"
)

// Message 是一条命令。
type Message struct {
	ID     string   `json:"id,omitempty"`
	Type   Type     `json:"type"`
	Reason string   `json:"reason,omitempty"`
	Assets []string `json:"assets,omitempty"`
}

// Reply 是控制器对命令的应答，仅 GET_SW_STATUS 填充全部字段。
type Reply struct {
	Version    string   `json:"version,omitempty"`
	CacheNames []string `json:"cacheNames,omitempty"`
	Timestamp  int64    `json:"timestamp,omitempty"`
	// Deleted 为 INVALIDATE_CACHE 实际删除的 bucket。
	Deleted []string `json:"deleted,omitempty"`
}

// Invalidate 构造一条失效命令。
func Invalidate(reason string, assets ...string) Message {
	return Message{ID: uuid.NewString(), Type: TypeInvalidateCache, Reason: reason, Assets: assets}
}

// BackgroundCheckRequested 构造一条巡检转发命令。
func BackgroundCheckRequested() Message {
	return Message{ID: uuid.NewString(), Type: TypeBackgroundCheckRequested}
}

// Status 构造一条状态查询命令。
func Status() Message {
	return Message{ID: uuid.NewString(), Type: TypeGetStatus}
}

// Validate 校验命令类型。
func (m Message) Validate() error {
	switch m.Type {
	case TypeInvalidateCache, TypeBackgroundCheckRequested, TypeGetStatus:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
}

// NewReply 构造带时间戳的状态应答。
func NewReply(version string, cacheNames []string, now time.Time) Reply {
	return Reply{Version: version, CacheNames: cacheNames, Timestamp: now.UnixMilli()}
}

// Messenger 把命令投递给控制器。
type Messenger interface {
	Post(ctx context.Context, msg Message) (Reply, error)
}

// Client 是可接收控制器转发命令的页面上下文。
type Client interface {
	Notify(msg Message)
}

// ClientFunc 让普通函数满足 Client。
type ClientFunc func(Message)

// Notify 调用 f。
func (f ClientFunc) Notify(msg Message) { f(msg) }
