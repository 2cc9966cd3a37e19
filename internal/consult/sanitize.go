package consult

import (
	"regexp"
	"strings"
)

var (
	thinkBlock     = regexp.MustCompile(`(?is)<think>.*?</think>`)
	reasoningTail  = regexp.MustCompile(`(?is)(^|\n)\s*(reasoning|thought process|analysis)\s*:.*$`)
	excessNewlines = regexp.MustCompile(`\n{3,}`)
)

// SanitizeReply 去掉模型回复中的 <think> 块与末尾的推理段落，合并多余空行。
func SanitizeReply(reply string) string {
	reply = thinkBlock.ReplaceAllString(reply, "")
	reply = reasoningTail.ReplaceAllString(reply, "")
	reply = excessNewlines.ReplaceAllString(reply, "\n\n")
	return strings.TrimSpace(reply)
}
