package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

// maxErrorBody 限制失败响应体的读取长度，仅用于诊断日志。
const maxErrorBody = 64 << 10

// Config 定义上游推荐/搜索后端配置。
type Config struct {
	ScholarshipEndpoint string `yaml:"scholarship_endpoint" json:"scholarship_endpoint"`
	CourseEndpoint      string `yaml:"course_endpoint" json:"course_endpoint"`
	ChatEndpoint        string `yaml:"chat_endpoint" json:"chat_endpoint"`
	Timeout             string `yaml:"timeout" json:"timeout"`
}

// HTTPTimeout 解析超时配置，缺省 30s，显式 0 表示不限制。
func (c Config) HTTPTimeout() time.Duration {
	if c.Timeout == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d < 0 {
		return 30 * time.Second
	}
	return d
}

// NetworkError 表示请求未能发出或未收到响应。
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// UpstreamError 表示收到了失败状态码的响应。
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream http %d", e.Status)
}

// IsNetwork 判断错误链中是否包含 NetworkError。
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// AsUpstream 从错误链中取出 UpstreamError。
func AsUpstream(err error) (*UpstreamError, bool) {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// Client 负责向上游 POST JSON 并解析 JSON 对象响应，不做重试。
type Client struct {
	client *http.Client
	logger *log.Logger
}

// NewClient 创建客户端，httpClient 为空时使用默认 30s 超时。
func NewClient(httpClient *http.Client, logger *log.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = log.New(os.Stdout, "[upstream] ", log.LstdFlags)
	}
	return &Client{client: httpClient, logger: logger}
}

// Post 发送 JSON 请求。成功响应中无法解析或非对象的内容返回空对象，不视为错误。
func (c *Client) Post(ctx context.Context, endpoint string, body any) (map[string]any, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &UpstreamError{Status: resp.StatusCode, Body: string(text)}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Err: fmt.Errorf("read body: %w", err)}
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		c.logger.Printf("malformed response from %s: %v (bytes=%d)", endpoint, err, len(raw))
		return map[string]any{}, nil
	}
	obj, ok := decoded.(map[string]any)
	if !ok {
		c.logger.Printf("non-object response from %s: %T", endpoint, decoded)
		return map[string]any{}, nil
	}
	return obj, nil
}
