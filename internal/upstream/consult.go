package upstream

import (
	"context"
	"fmt"
	"strconv"

	"scholira/internal/model"
)

// ConsultMessage 咨询接口的单条消息。
type ConsultMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ConsultRequest 咨询接口请求体。
type ConsultRequest struct {
	Messages    []ConsultMessage  `json:"messages"`
	UserProfile model.UserProfile `json:"userProfile"`
}

// Consult 调用咨询接口并返回 reply 字段，缺失时返回空字符串。
func (c *Client) Consult(ctx context.Context, endpoint string, req ConsultRequest) (string, error) {
	if req.Messages == nil {
		req.Messages = []ConsultMessage{}
	}
	payload, err := c.Post(ctx, endpoint, req)
	if err != nil {
		return "", fmt.Errorf("consult: %w", err)
	}
	switch v := payload["reply"].(type) {
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	default:
		return "", nil
	}
}
