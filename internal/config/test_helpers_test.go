package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// siteHeader 是内联配置共用的最小站点段落。
const siteHeader = `
StoragePath = "./data"

[Site]
Origin = "https://example.github.io"
`

func fixture(name string) string {
	return filepath.Join("testdata", name)
}

// loadInline 将 siteHeader 与 extra 拼成配置文件后加载。
func loadInline(t *testing.T, header, extra string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	content := strings.TrimSpace(header) + "\n" + strings.TrimSpace(extra) + "\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("写入临时配置失败: %v", err)
	}
	return Load(path)
}
