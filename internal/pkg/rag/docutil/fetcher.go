package docutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/docquery/pkg/utils/httpclient"
)

// Fetcher 获取单个文档，失败以 Document.Err 表示而不是返回 error。
type Fetcher interface {
	Fetch(ctx context.Context, url string) Document
}

// FetcherConfig HTTPFetcher 配置。
type FetcherConfig struct {
	// Timeout 单个文档的下载超时。
	Timeout time.Duration
	// MaxSize 文档大小上限（字节）。
	MaxSize int64
	// MaxRetries 服务端 5xx 或连接错误时的重试次数。
	MaxRetries int
}

// DefaultFetcherConfig 默认配置：30s、50 MiB、重试 1 次。
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		Timeout:    30 * time.Second,
		MaxSize:    50 << 20,
		MaxRetries: 1,
	}
}

// HTTPFetcher 通过 HTTP GET 下载 PDF 并抽取文本。
type HTTPFetcher struct {
	client    *httpclient.Client
	extractor PDFExtractor
	cfg       FetcherConfig
}

var _ Fetcher = (*HTTPFetcher)(nil)

// FetcherOption configures an HTTPFetcher.
type FetcherOption func(*HTTPFetcher)

// WithExtractor 替换 PDF 文本抽取器。
func WithExtractor(e PDFExtractor) FetcherOption {
	return func(f *HTTPFetcher) {
		if e != nil {
			f.extractor = e
		}
	}
}

// WithHTTPClient 替换底层 HTTP 客户端。
func WithHTTPClient(c *httpclient.Client) FetcherOption {
	return func(f *HTTPFetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// NewHTTPFetcher 创建 HTTPFetcher，零值字段使用默认配置。
func NewHTTPFetcher(cfg FetcherConfig, opts ...FetcherOption) *HTTPFetcher {
	def := DefaultFetcherConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = def.MaxSize
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	f := &HTTPFetcher{
		client:    httpclient.NewClient(cfg.Timeout, cfg.MaxRetries),
		extractor: PlainTextExtractor{},
		cfg:       cfg,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch 下载并抽取文本。重定向由 net/http 自动跟随。
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) Document {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	data, ferr := f.download(ctx, url)
	if ferr != nil {
		logger.Warnw("document fetch failed", "url", url, "kind", string(ferr.Kind), "error", ferr.Error())
		return Document{URL: url, Err: ferr}
	}

	text, err := f.extractor.Extract(data)
	if err != nil {
		ferr = newFetchError(KindExtractionEmpty, url, err, "Failed to extract text from PDF: %v", err)
		logger.Warnw("document extraction failed", "url", url, "error", err.Error())
		return Document{URL: url, Err: ferr}
	}
	if strings.TrimSpace(text) == "" {
		return Document{URL: url, Err: newFetchError(KindExtractionEmpty, url, nil, "No text could be extracted from PDF")}
	}

	logger.Debugw("document fetched", "url", url, "bytes", len(data), "chars", len(text))
	return Document{URL: url, Text: text}
}

func (f *HTTPFetcher) download(ctx context.Context, url string) ([]byte, *FetchError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, newFetchError(KindUnreachable, url, err, "Invalid document URL: %v", err)
	}

	resp, err := f.client.DoRequest(req)
	if err != nil {
		return nil, classifyTransportError(ctx, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, newFetchError(KindHTTPStatus, url, nil, "HTTP error downloading PDF: %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(strings.ToLower(contentType), "pdf") {
		return nil, newFetchError(KindContentType, url, nil, "URL does not point to a PDF file: %s", contentType)
	}

	if resp.ContentLength > f.cfg.MaxSize {
		return nil, newFetchError(KindTooLarge, url, nil, "PDF file too large: %d bytes", resp.ContentLength)
	}

	// Content-Length 可能缺失或不实，读取时再限制一次
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxSize+1))
	if err != nil {
		return nil, classifyTransportError(ctx, url, err)
	}
	if int64(len(data)) > f.cfg.MaxSize {
		return nil, newFetchError(KindTooLarge, url, nil, "PDF file too large: more than %d bytes", f.cfg.MaxSize)
	}
	return data, nil
}

func classifyTransportError(ctx context.Context, url string, err error) *FetchError {
	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		return newFetchError(KindHTTPStatus, url, err, "HTTP error downloading PDF: %d", statusErr.StatusCode)
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return newFetchError(KindTimeout, url, err, "Timeout downloading PDF from %s", url)
	}
	return newFetchError(KindUnreachable, url, err, "Failed to download PDF: %v", err)
}

// FetchAll 以不超过 concurrency 的并发获取所有文档，结果与输入顺序一致。
func FetchAll(ctx context.Context, fetcher Fetcher, urls []string, concurrency int) []Document {
	if concurrency <= 0 {
		concurrency = 1
	}

	docs := make([]Document, len(urls))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, url := range urls {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					docs[i] = Document{URL: url, Err: newFetchError(KindUnreachable, url, nil, "Failed to download PDF: %v", r)}
				}
			}()
			docs[i] = fetcher.Fetch(ctx, url)
		}()
	}

	wg.Wait()
	return docs
}

// Summary 统计成功与失败的文档数。
func Summary(docs []Document) (ok, failed int) {
	for _, d := range docs {
		if d.Ok() {
			ok++
		} else {
			failed++
		}
	}
	return ok, failed
}

// Errors 返回失败文档的 URL 到 "Error: ..." 文本的映射，全部成功时返回 nil。
func Errors(docs []Document) map[string]string {
	var out map[string]string
	for _, d := range docs {
		if d.Ok() {
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[d.URL] = d.ErrorText()
	}
	return out
}

// String implements fmt.Stringer for logging.
func (d Document) String() string {
	if d.Ok() {
		return fmt.Sprintf("Document{url=%s, chars=%d}", d.URL, len(d.Text))
	}
	return fmt.Sprintf("Document{url=%s, error=%s}", d.URL, d.ErrorText())
}
