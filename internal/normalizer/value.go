// Package normalizer 将上游返回的弱类型 JSON 转换为稳定的内部模型。
// 所有函数均为纯函数，对任意输入都不会 panic 或返回错误。
package normalizer

import (
	"math"
	"strconv"
)

// Payload 为解码后的 JSON 对象。值只可能是 nil/bool/float64/string/[]any/map[string]any。
type Payload = map[string]any

// firstArray 按优先级返回第一个非空数组，不跨键合并。
func firstArray(payload Payload, keys ...string) []any {
	for _, key := range keys {
		if arr, ok := payload[key].([]any); ok && len(arr) > 0 {
			return arr
		}
	}
	return nil
}

// pickString 按优先级返回第一个非空的字符串或数字字段，不做任何裁剪。
func pickString(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := coerceString(obj[key]); s != "" {
			return s
		}
	}
	return ""
}

func pickStringOr(obj map[string]any, fallback string, keys ...string) string {
	if s := pickString(obj, keys...); s != "" {
		return s
	}
	return fallback
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return ""
	}
}

// pickStrings 返回第一个存在的字符串列表；单个字符串视为单元素列表。结果永不为 nil。
func pickStrings(obj map[string]any, keys ...string) []string {
	for _, key := range keys {
		switch val := obj[key].(type) {
		case []any:
			out := make([]string, 0, len(val))
			for _, item := range val {
				if s := coerceString(item); s != "" {
					out = append(out, s)
				}
			}
			return out
		case string:
			if val != "" {
				return []string{val}
			}
		}
	}
	return []string{}
}

// pickInt 只接受可表示为 int 的非负有限数值，NaN、Inf、负数与越界值视为缺失。
func pickInt(obj map[string]any, keys ...string) (int, bool) {
	for _, key := range keys {
		f, ok := obj[key].(float64)
		if !ok || math.IsNaN(f) || f < 0 || f >= math.MaxInt {
			continue
		}
		return int(f), true
	}
	return 0, false
}
