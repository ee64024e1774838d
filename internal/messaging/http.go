package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// MessagesPath 是控制器接收命令的诊断路由。
const MessagesPath = "/-/messages"

// HTTPMessenger 将命令以 JSON 投递给独立进程中的控制器。
type HTTPMessenger struct {
	client   *http.Client
	endpoint string
}

// NewHTTPMessenger 使用控制器根地址构造投递器。
func NewHTTPMessenger(client *http.Client, controllerURL string) *HTTPMessenger {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPMessenger{
		client:   client,
		endpoint: strings.TrimRight(controllerURL, "/") + MessagesPath,
	}
}

// Post 投递命令并解析应答，控制器不可达时返回 ErrNoController。
func (m *HTTPMessenger) Post(ctx context.Context, msg Message) (Reply, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return Reply{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(payload))
	if err != nil {
		return Reply{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return Reply{}, fmt.Errorf("%w: %v", ErrNoController, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Reply{}, statusError(resp, msg.Type)
	}

	var reply Reply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return Reply{}, fmt.Errorf("decode reply: %w", err)
	}
	return reply, nil
}

// statusError 按应答中的错误码还原哨兵错误，没有错误码时退回到状态码。
func statusError(resp *http.Response, typ Type) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)

	switch {
	case body.Error == CodeNoController:
		return ErrNoController
	case body.Error == CodeUnknownType:
		return fmt.Errorf("%w: %q", ErrUnknownType, typ)
	case body.Error == CodeInvalidMessage:
		return ErrInvalidMessage
	case resp.StatusCode == http.StatusServiceUnavailable:
		return ErrNoController
	case body.Error != "":
		return fmt.Errorf("messaging: status %d: %s", resp.StatusCode, body.Error)
	default:
		return fmt.Errorf("messaging: unexpected status %d", resp.StatusCode)
	}
}
