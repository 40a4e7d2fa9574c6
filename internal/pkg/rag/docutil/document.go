// Package docutil 负责按 URL 获取 PDF 文档并抽取文本。
package docutil

import (
	"fmt"
	"strings"
)

// ErrorPrefix 失败文档的文本前缀。
const ErrorPrefix = "Error: "

// FetchErrorKind 获取失败的分类。
type FetchErrorKind string

// 失败分类。
const (
	KindUnreachable     FetchErrorKind = "unreachable"
	KindHTTPStatus      FetchErrorKind = "http_status"
	KindContentType     FetchErrorKind = "content_type"
	KindTooLarge        FetchErrorKind = "too_large"
	KindExtractionEmpty FetchErrorKind = "extraction_empty"
	KindTimeout         FetchErrorKind = "timeout"
)

// FetchError 单个文档获取失败。
type FetchError struct {
	Kind    FetchErrorKind
	URL     string
	Message string
	Err     error
}

func (e *FetchError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

// Unwrap returns the underlying error.
func (e *FetchError) Unwrap() error {
	return e.Err
}

func newFetchError(kind FetchErrorKind, url string, err error, format string, args ...any) *FetchError {
	return &FetchError{
		Kind:    kind,
		URL:     url,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// Document 一个 URL 的获取结果：成功时 Text 非空，失败时 Err 非空。
type Document struct {
	URL  string
	Text string
	Err  *FetchError
}

// Ok 是否获取成功。
func (d Document) Ok() bool {
	return d.Err == nil && !IsErrorText(d.Text)
}

// ErrorText 返回失败文档的 "Error: <message>" 文本，成功时返回空串。
func (d Document) ErrorText() string {
	if d.Err != nil {
		return ErrorPrefix + d.Err.Error()
	}
	if IsErrorText(d.Text) {
		return d.Text
	}
	return ""
}

// IsErrorText 判断文本是否为失败标记。
func IsErrorText(text string) bool {
	return strings.HasPrefix(text, strings.TrimSpace(ErrorPrefix))
}
