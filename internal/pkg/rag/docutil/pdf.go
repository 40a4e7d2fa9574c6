package docutil

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/kart-io/logger"
	"github.com/ledongthuc/pdf"
)

// PDFExtractor 从 PDF 字节中抽取文本。
type PDFExtractor interface {
	Extract(data []byte) (string, error)
}

// PlainTextExtractor 基于 ledongthuc/pdf 的逐页纯文本抽取。
// 非空页以 "[Page n]\n" 开头，页之间以空行分隔。
type PlainTextExtractor struct{}

var _ PDFExtractor = PlainTextExtractor{}

// Extract 抽取所有页的文本，单页失败时跳过该页。
func (PlainTextExtractor) Extract(data []byte) (text string, err error) {
	// 损坏的文件可能在解析阶段 panic
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	parts := make([]string, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		pageText, err := extractPage(reader, i)
		if err != nil {
			logger.Warnw("failed to extract pdf page", "page", i, "error", err.Error())
			continue
		}
		if strings.TrimSpace(pageText) == "" {
			continue
		}
		parts = append(parts, FormatPage(i, pageText))
	}
	return strings.Join(parts, "\n\n"), nil
}

func extractPage(reader *pdf.Reader, n int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("page %d: %v", n, r)
		}
	}()

	page := reader.Page(n)
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}

// FormatPage 为单页文本加上页码前缀。
func FormatPage(n int, text string) string {
	return fmt.Sprintf("[Page %d]\n%s", n, text)
}
