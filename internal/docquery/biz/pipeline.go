// Package biz 实现文档问答的业务流程：检索流水线与异步任务编排。
package biz

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/kart-io/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kart-io/docquery/internal/model"
	"github.com/kart-io/docquery/internal/pkg/rag/chunker"
	"github.com/kart-io/docquery/internal/pkg/rag/docutil"
	"github.com/kart-io/docquery/internal/pkg/rag/evaluator"
	"github.com/kart-io/docquery/internal/pkg/rag/vectorindex"
	infralog "github.com/kart-io/docquery/pkg/infra/logger"
)

// 流水线返回给调用方的固定文案。
const (
	AnswerAllDocumentsFailed = "Could not process any of the provided documents."
	ErrorAllDocumentsFailed  = "All document processing failed"
	AnswerNoRelevantChunks   = "No relevant information found in the documents for your query."
	answerErrorPrefix        = "An error occurred while processing your query: "
)

const (
	defaultTopK             = 10
	defaultFetchConcurrency = 4
	tracerName              = "github.com/kart-io/docquery/internal/docquery/biz"
)

// PipelineConfig 流水线配置。
type PipelineConfig struct {
	// TopK 检索的片段数。
	TopK int
	// FetchConcurrency 并发下载文档数。
	FetchConcurrency int
	// IndexDir 非空时每次构建后保存索引快照。
	IndexDir string
}

// Runner 执行一次完整查询。
type Runner interface {
	Run(ctx context.Context, query string, urls []string, opts ...RunOption) *model.QueryResult
}

// RunOption 单次运行选项。
type RunOption func(*runOptions)

type runOptions struct {
	validate bool
}

// WithValidation 开关答案校验，默认开启。
func WithValidation(enabled bool) RunOption {
	return func(o *runOptions) {
		o.validate = enabled
	}
}

// Pipeline 获取文档、切分、建索引、检索、生成、校验。
type Pipeline struct {
	fetcher   docutil.Fetcher
	chunker   *chunker.Chunker
	newIndex  vectorindex.Factory
	generator Generator
	validator evaluator.Validator
	config    PipelineConfig
	tracer    trace.Tracer

	snapshotMu sync.Mutex
}

var _ Runner = (*Pipeline)(nil)

// NewPipeline 创建流水线。validator 为 nil 时跳过校验。
func NewPipeline(
	fetcher docutil.Fetcher,
	chunk *chunker.Chunker,
	factory vectorindex.Factory,
	generator Generator,
	validator evaluator.Validator,
	config PipelineConfig,
) *Pipeline {
	if config.TopK <= 0 {
		config.TopK = defaultTopK
	}
	if config.FetchConcurrency <= 0 {
		config.FetchConcurrency = defaultFetchConcurrency
	}
	if chunk == nil {
		chunk = chunker.New()
	}
	return &Pipeline{
		fetcher:   fetcher,
		chunker:   chunk,
		newIndex:  factory,
		generator: generator,
		validator: validator,
		config:    config,
		tracer:    otel.Tracer(tracerName),
	}
}

// Run 执行查询。任何失败都以结果的 Error 字段返回，不会 panic。
func (p *Pipeline) Run(ctx context.Context, query string, urls []string, opts ...RunOption) (result *model.QueryResult) {
	o := runOptions{validate: true}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.Int("docquery.documents", len(urls)),
		attribute.Bool("docquery.validate", o.validate),
	))
	ctx = infralog.ExtractOpenTelemetryFields(ctx)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			infralog.GetLogger(ctx).Errorw("pipeline panic recovered", "panic", fmt.Sprint(r))
			result = errorResult(fmt.Errorf("internal error: %v", r))
		}
		if result.Failed() {
			span.SetStatus(codes.Error, result.Error)
		}
		span.End()
		infralog.GetLogger(ctx).Infow("pipeline finished",
			"documents", len(urls),
			"failed", result.Failed(),
			"duration", time.Since(start).String(),
		)
	}()

	res, err := p.run(ctx, query, urls, o)
	if err != nil {
		span.RecordError(err)
		infralog.GetLogger(ctx).Warnw("pipeline failed", "error", err.Error())
		return errorResult(err)
	}
	return res
}

func (p *Pipeline) run(ctx context.Context, query string, urls []string, o runOptions) (*model.QueryResult, error) {
	// 1. 获取文档
	docs := p.fetchDocuments(ctx, urls)
	okCount, failed := docutil.Summary(docs)
	docErrors := docutil.Errors(docs)
	infralog.GetLogger(ctx).Infow("documents acquired", "ok", okCount, "failed", failed)

	// 2. 全部失败时直接返回
	if okCount == 0 {
		return &model.QueryResult{
			Answer:         AnswerAllDocumentsFailed,
			Error:          ErrorAllDocumentsFailed,
			DocumentErrors: docErrors,
		}, nil
	}

	// 3. 切分
	passages := p.chunker.ChunkDocuments(docs)
	infralog.GetLogger(ctx).Infow("documents chunked", "chunks", len(passages))

	// 4. 建索引
	index, err := p.buildIndex(ctx, passages)
	if index != nil {
		defer closeIndex(index)
	}
	if err != nil {
		return nil, err
	}

	// 5. 检索
	results, err := p.search(ctx, index, query)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		zero := 0
		return &model.QueryResult{
			Answer:      AnswerNoRelevantChunks,
			ChunksFound: &zero,
		}, nil
	}

	// 6. 生成与校验
	answer, err := p.generate(ctx, query, results)
	if err != nil {
		return nil, err
	}

	result := &model.QueryResult{
		Answer: answer.Text,
		Metadata: &model.ResultMetadata{
			ChunksUsed:         answer.ChunksUsed,
			TotalChunks:        len(passages),
			DocumentsProcessed: okCount,
			ModelUsed:          answer.Model,
		},
		DocumentErrors: docErrors,
	}
	if o.validate && p.validator != nil {
		result.ConfidenceNote = p.validate(ctx, query, answer.Text, results)
	}
	return result, nil
}

func (p *Pipeline) fetchDocuments(ctx context.Context, urls []string) []docutil.Document {
	ctx, span := p.tracer.Start(ctx, "pipeline.fetch")
	defer span.End()

	docs := docutil.FetchAll(ctx, p.fetcher, urls, p.config.FetchConcurrency)
	for _, d := range docs {
		if d.Ok() {
			continue
		}
		kind := ""
		if d.Err != nil {
			kind = string(d.Err.Kind)
		}
		infralog.GetLogger(ctx).Warnw("document skipped", "url", d.URL, "kind", kind, "error", d.ErrorText())
	}
	return docs
}

func (p *Pipeline) buildIndex(ctx context.Context, passages []model.Passage) (vectorindex.Index, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.index", trace.WithAttributes(
		attribute.Int("docquery.chunks", len(passages)),
	))
	defer span.End()

	if p.newIndex == nil {
		return nil, errors.New("no vector index configured")
	}
	index, err := p.newIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating index: %w", err)
	}
	if err := index.Build(ctx, passages); err != nil {
		span.RecordError(err)
		return index, fmt.Errorf("building index: %w", err)
	}

	p.snapshot(index)
	return index, nil
}

// snapshot 保存最近一次构建的内存索引，失败只记录日志。
func (p *Pipeline) snapshot(index vectorindex.Index) {
	if p.config.IndexDir == "" {
		return
	}
	s, ok := index.(vectorindex.Snapshotter)
	if !ok {
		return
	}

	p.snapshotMu.Lock()
	defer p.snapshotMu.Unlock()
	if err := s.Save(p.config.IndexDir); err != nil {
		logger.Warnw("index snapshot failed", "dir", p.config.IndexDir, "error", err.Error())
		return
	}
	logger.Debugw("index snapshot saved", "dir", p.config.IndexDir, "chunks", index.Len())
}

func (p *Pipeline) search(ctx context.Context, index vectorindex.Index, query string) ([]model.SearchResult, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.search")
	defer span.End()

	results, err := index.Search(ctx, query, p.config.TopK)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("searching index: %w", err)
	}
	span.SetAttributes(attribute.Int("docquery.results", len(results)))
	return results, nil
}

func (p *Pipeline) generate(ctx context.Context, query string, results []model.SearchResult) (*Answer, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.generate")
	defer span.End()

	if p.generator == nil {
		return nil, errors.New("no answer generator configured")
	}
	answer, err := p.generator.Generate(ctx, query, results)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return answer, nil
}

// validate 校验失败时不返回说明。
func (p *Pipeline) validate(ctx context.Context, query, answer string, results []model.SearchResult) string {
	ctx, span := p.tracer.Start(ctx, "pipeline.validate")
	defer span.End()

	note, err := p.validator.Validate(ctx, query, answer, results)
	if err != nil {
		span.RecordError(err)
		infralog.GetLogger(ctx).Warnw("confidence note dropped", "error", err.Error())
		return ""
	}
	return note
}

func closeIndex(index vectorindex.Index) {
	c, ok := index.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		logger.Warnw("closing index failed", "error", err.Error())
	}
}

func errorResult(err error) *model.QueryResult {
	msg := err.Error()
	return &model.QueryResult{
		Answer: answerErrorPrefix + msg,
		Error:  msg,
	}
}
