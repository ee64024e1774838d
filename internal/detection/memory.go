package detection

import (
	"context"
	"sort"
	"strings"

	gocache "github.com/patrickmn/go-cache"
)

type memoryKV struct {
	items *gocache.Cache
}

// NewMemory 返回进程内的 KV，条目永不过期，用于测试与 --ephemeral 运行。
func NewMemory() KV {
	return &memoryKV{items: gocache.New(gocache.NoExpiration, 0)}
}

func (m *memoryKV) Get(_ context.Context, key string) (string, bool, error) {
	raw, ok := m.items.Get(key)
	if !ok {
		return "", false, nil
	}
	value, _ := raw.(string)
	return value, true, nil
}

func (m *memoryKV) Set(_ context.Context, key, value string) error {
	m.items.Set(key, value, gocache.NoExpiration)
	return nil
}

func (m *memoryKV) Delete(_ context.Context, key string) error {
	m.items.Delete(key)
	return nil
}

func (m *memoryKV) Keys(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	for key := range m.items.Items() {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *memoryKV) Close() error {
	m.items.Flush()
	return nil
}
