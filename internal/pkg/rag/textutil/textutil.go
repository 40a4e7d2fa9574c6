// Package textutil 提供 RAG 相关的文本处理工具函数。
package textutil

import (
	"strings"
	"unicode/utf8"
)

// TruncateString 截断字符串到指定的最大 Unicode 字符数。
func TruncateString(s string, maxLen int) string {
	if maxLen < 0 {
		maxLen = 0
	}
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen])
}

// RuneLen 返回 Unicode 字符数。
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}

// LastPathSegment 返回 URL 最后一个 "/" 之后的部分，没有 "/" 时返回原串。
func LastPathSegment(url string) string {
	if i := strings.LastIndex(url, "/"); i >= 0 {
		return url[i+1:]
	}
	return url
}
