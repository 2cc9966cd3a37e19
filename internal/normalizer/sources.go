package normalizer

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"scholira/internal/model"
)

const defaultSourceTitle = "Reference"

// Sources 依次查找 sources → groundingSources → references，丢弃没有 uri 的条目。
// 兼容 {"web":{"uri","title"}} 形式的 grounding chunk。
func Sources(payload Payload) []model.GroundingSource {
	items := firstArray(payload, "sources", "groundingSources", "references")
	out := make([]model.GroundingSource, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if web, ok := obj["web"].(map[string]any); ok && pickString(obj, "uri", "url") == "" {
			obj = web
		}
		uri := pickString(obj, "uri", "url")
		if uri == "" {
			continue
		}
		out = append(out, model.GroundingSource{
			Title: pickStringOr(obj, defaultSourceTitle, "title"),
			URI:   uri,
		})
	}
	return out
}

// RawText 原样返回后端附带的自由文本（rawText/text/answer），不做任何改写。
func RawText(payload Payload) string {
	return pickString(payload, "rawText", "text", "answer")
}

var markupTag = regexp.MustCompile(`(?i)</?(p|br|b|i|em|strong|li|ul|ol|div|span|a|h[1-6])\b[^>]*>`)

// DisplayText 供终端展示使用：文本含常见 HTML 标签时仅保留文本内容，否则原样返回。
func DisplayText(text string) string {
	if !markupTag.MatchString(text) {
		return text
	}
	return htmlText(text)
}

func htmlText(fragment string) string {
	node, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		if n.Type == html.ElementNode && (n.Data == "br" || n.Data == "p" || n.Data == "li") && b.Len() > 0 {
			b.WriteString("\n")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)

	if b.Len() == 0 {
		return fragment
	}
	return b.String()
}
