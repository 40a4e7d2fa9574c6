package biz

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/kart-io/docquery/internal/model"
	"github.com/kart-io/docquery/internal/pkg/rag/docutil"
	"github.com/kart-io/docquery/internal/pkg/rag/vectorindex"
	"github.com/kart-io/docquery/pkg/llm"
)

// mapFetcher 按 URL 返回预设文档，未知 URL 视为不可达。
type mapFetcher struct {
	docs  map[string]string
	calls atomic.Int32
}

func (f *mapFetcher) Fetch(ctx context.Context, url string) docutil.Document {
	f.calls.Add(1)
	text, ok := f.docs[url]
	if !ok {
		return docutil.Document{URL: url, Err: &docutil.FetchError{
			Kind:    docutil.KindUnreachable,
			URL:     url,
			Message: "Failed to download PDF: connection refused",
		}}
	}
	return docutil.Document{URL: url, Text: text}
}

// keywordEmbedder 以关键词出现次数作为向量分量。
type keywordEmbedder struct {
	keywords []string
}

func (e *keywordEmbedder) vector(text string) []float32 {
	lower := strings.ToLower(text)
	v := make([]float32, len(e.keywords))
	for i, k := range e.keywords {
		v[i] = float32(strings.Count(lower, k))
	}
	return v
}

func (e *keywordEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *keywordEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return e.vector(text), nil
}

func (e *keywordEmbedder) Name() string { return "keyword" }

type fakeGenerator struct {
	mu      sync.Mutex
	calls   int
	lastCtx []model.SearchResult
	err     error
	panic   bool
}

func (g *fakeGenerator) Generate(ctx context.Context, query string, results []model.SearchResult) (*Answer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.lastCtx = results
	if g.panic {
		panic("generator exploded")
	}
	if g.err != nil {
		return nil, g.err
	}
	return &Answer{Text: "answer to " + query, Model: "fake-model", ChunksUsed: len(results)}, nil
}

type fakeValidator struct {
	calls atomic.Int32
	err   error
}

func (v *fakeValidator) Validate(ctx context.Context, query, answer string, results []model.SearchResult) (string, error) {
	v.calls.Add(1)
	if v.err != nil {
		return "Could not validate answer", v.err
	}
	return "The answer is grounded in the context.", nil
}

// stubIndex 返回预设检索结果，记录是否被关闭。
type stubIndex struct {
	results   []model.SearchResult
	searchErr error
	closed    atomic.Bool
	n         int
}

func (s *stubIndex) Build(ctx context.Context, passages []model.Passage) error {
	if len(passages) == 0 {
		return vectorindex.ErrEmptyInput
	}
	s.n = len(passages)
	return nil
}

func (s *stubIndex) Search(ctx context.Context, query string, topK int) ([]model.SearchResult, error) {
	return s.results, s.searchErr
}

func (s *stubIndex) Len() int       { return s.n }
func (s *stubIndex) Dimension() int { return 2 }
func (s *stubIndex) Close() error {
	s.closed.Store(true)
	return nil
}

func stubFactory(idx *stubIndex) vectorindex.Factory {
	return func(ctx context.Context) (vectorindex.Index, error) {
		return idx, nil
	}
}

// fakeChat 记录请求并返回固定内容。
type fakeChat struct {
	mu           sync.Mutex
	prompt       string
	systemPrompt string
	opts         llm.GenerateOptions
	model        string
	err          error
}

func (c *fakeChat) Chat(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (*llm.GenerateResponse, error) {
	return nil, errors.New("not used")
}

func (c *fakeChat) Generate(ctx context.Context, prompt, systemPrompt string, opts ...llm.GenerateOption) (*llm.GenerateResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompt = prompt
	c.systemPrompt = systemPrompt
	c.opts = llm.ApplyGenerateOptions(opts...)
	if c.err != nil {
		return nil, c.err
	}
	return &llm.GenerateResponse{Content: "42", Model: c.model}, nil
}

func (c *fakeChat) Name() string { return "fake-chat" }

// syncSubmitter 在后台 goroutine 中执行任务，可模拟拒绝。
type syncSubmitter struct {
	reject error
	wg     sync.WaitGroup
}

func (s *syncSubmitter) Submit(task func()) error {
	if s.reject != nil {
		return s.reject
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		task()
	}()
	return nil
}

// funcRunner 用函数实现 Runner。
type funcRunner func(ctx context.Context, query string, urls []string, opts ...RunOption) *model.QueryResult

func (f funcRunner) Run(ctx context.Context, query string, urls []string, opts ...RunOption) *model.QueryResult {
	return f(ctx, query, urls, opts...)
}
