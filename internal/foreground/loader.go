package foreground

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HTTPLoader 通过控制器地址 GET 图片，响应体被完整读取以便写入缓存。
type HTTPLoader struct {
	Client  *http.Client
	BaseURL string
}

// Load 实现 Loader。
func (l HTTPLoader) Load(ctx context.Context, sitePath string) error {
	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	target := strings.TrimRight(l.BaseURL, "/") + "/" + strings.TrimLeft(sitePath, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("load %s: status %d", sitePath, resp.StatusCode)
	}
	return nil
}
