package search

import (
	"fmt"

	"scholira/internal/upstream"
)

const (
	msgNetwork = "Network error. Please try again."
	msgUnknown = "Something went wrong. Please try again."
)

// Message 将适配器错误转换为面向用户的提示，不暴露响应体。
func Message(err error) string {
	if err == nil {
		return ""
	}
	if upstream.IsNetwork(err) {
		return msgNetwork
	}
	if ue, ok := upstream.AsUpstream(err); ok {
		return fmt.Sprintf("Search failed (status %d). Please try again.", ue.Status)
	}
	return msgUnknown
}
