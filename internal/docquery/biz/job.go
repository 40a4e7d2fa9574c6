package biz

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/docquery/internal/docquery/metrics"
	"github.com/kart-io/docquery/internal/docquery/store"
	"github.com/kart-io/docquery/internal/model"
	infralog "github.com/kart-io/docquery/pkg/infra/logger"
	"github.com/kart-io/docquery/pkg/utils/id"
)

// 请求校验错误。
var (
	ErrEmptyQuery  = errors.New("query must not be empty")
	ErrNoDocuments = errors.New("at least one document url is required")
)

const defaultJobTimeout = 5 * time.Minute

// Submitter 将任务交给后台执行，*pool.Pool 满足此接口。
type Submitter interface {
	Submit(task func()) error
}

// QueryRequest 一次查询请求。
type QueryRequest struct {
	Query        string
	DocumentURLs []string
	Validate     bool
}

func (r QueryRequest) validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return ErrEmptyQuery
	}
	if len(r.DocumentURLs) == 0 {
		return ErrNoDocuments
	}
	for _, u := range r.DocumentURLs {
		if strings.TrimSpace(u) == "" {
			return fmt.Errorf("%w: empty url in list", ErrNoDocuments)
		}
	}
	return nil
}

// OrchestratorConfig 任务编排配置。
type OrchestratorConfig struct {
	// JobTimeout 单个任务的最长运行时间。
	JobTimeout time.Duration
	// IDs 任务 ID 生成器，默认 ULID。
	IDs id.Generator
	// Clock 时间源，默认 time.Now。
	Clock func() time.Time
	// Metrics 为空时不记录指标。
	Metrics metrics.Recorder
}

// Orchestrator 管理异步查询任务的生命周期。
type Orchestrator struct {
	store   store.JobStore
	runner  Runner
	pool    Submitter
	timeout time.Duration
	ids     id.Generator
	now     func() time.Time
	metrics metrics.Recorder

	// baseCtx 为后台任务的父 context，Shutdown 超时后取消。
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewOrchestrator 创建任务编排器。
func NewOrchestrator(jobs store.JobStore, runner Runner, pool Submitter, cfg OrchestratorConfig) *Orchestrator {
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = defaultJobTimeout
	}
	if cfg.IDs == nil {
		cfg.IDs = id.NewULIDGenerator()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Noop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		store:   jobs,
		runner:  runner,
		pool:    pool,
		timeout: cfg.JobTimeout,
		ids:     cfg.IDs,
		now:     cfg.Clock,
		metrics: cfg.Metrics,
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Submit 保存 pending 任务并交给工作池，立即返回任务快照。
func (o *Orchestrator) Submit(ctx context.Context, req QueryRequest) (*model.Job, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	job := &model.Job{
		JobID:        o.ids.Generate(),
		Status:       model.JobStatusPending,
		CreatedAt:    o.now().UTC(),
		Query:        req.Query,
		DocumentURLs: append([]string(nil), req.DocumentURLs...),
		Validate:     req.Validate,
	}
	if err := o.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}

	o.wg.Add(1)
	err := o.pool.Submit(func() {
		defer o.wg.Done()
		o.run(job.JobID)
	})
	if err != nil {
		o.wg.Done()
		o.metrics.RecordJobRejected(ctx)
		o.abandon(ctx, job.JobID, err)
		return nil, fmt.Errorf("scheduling job %s: %w", job.JobID, err)
	}

	o.metrics.RecordJobSubmitted(ctx)
	infralog.GetLogger(ctx).Infow("job submitted", "job_id", job.JobID, "documents", len(job.DocumentURLs))
	return job.Clone(), nil
}

// abandon 调度失败时经合法路径把任务置为 failed。
func (o *Orchestrator) abandon(ctx context.Context, jobID string, cause error) {
	if _, err := o.store.CompareAndSwap(ctx, jobID, model.JobStatusPending, func(j *model.Job) {
		j.Status = model.JobStatusProcessing
	}); err != nil {
		logger.Errorw("failed to mark unscheduled job", "job_id", jobID, "error", err.Error())
		return
	}
	o.finish(ctx, jobID, &model.QueryResult{Error: "scheduling failed: " + cause.Error()})
}

// run 在工作池中执行任务。
func (o *Orchestrator) run(jobID string) {
	// 状态写入不受 Shutdown 取消影响
	ctx := infralog.WithJobID(context.Background(), jobID)
	log := infralog.GetLogger(ctx)

	job, err := o.store.CompareAndSwap(ctx, jobID, model.JobStatusPending, func(j *model.Job) {
		j.Status = model.JobStatusProcessing
	})
	if err != nil {
		log.Warnw("job not started", "error", err.Error())
		return
	}
	log.Infow("job processing")

	runCtx, cancel := context.WithTimeout(infralog.WithJobID(o.baseCtx, jobID), o.timeout)
	defer cancel()

	result := o.runPipeline(runCtx, metrics.ModeAsync, job.Query, job.DocumentURLs, job.Validate)
	o.finish(ctx, jobID, result)
}

// finish 将 processing 任务置为终态，CompletedAt 与状态在同一次写入中更新。
func (o *Orchestrator) finish(ctx context.Context, jobID string, result *model.QueryResult) {
	completedAt := o.now().UTC()
	job, err := o.store.CompareAndSwap(ctx, jobID, model.JobStatusProcessing, func(j *model.Job) {
		j.CompletedAt = &completedAt
		if result.Failed() {
			j.Status = model.JobStatusFailed
			j.Error = failureMessage(result)
			return
		}
		j.Status = model.JobStatusCompleted
		j.Result = result.Clone()
	})
	if err != nil {
		logger.Errorw("job result not saved", "job_id", jobID, "error", err.Error())
		return
	}
	o.metrics.RecordJobFinished(ctx, string(job.Status), completedAt.Sub(job.CreatedAt))
	logger.Infow("job finished", "job_id", jobID, "status", string(job.Status))
}

// failureMessage 将逐文档错误按 URL 排序拼接到失败信息之后。
func failureMessage(result *model.QueryResult) string {
	if len(result.DocumentErrors) == 0 {
		return result.Error
	}
	urls := make([]string, 0, len(result.DocumentErrors))
	for url := range result.DocumentErrors {
		urls = append(urls, url)
	}
	sort.Strings(urls)

	parts := make([]string, len(urls))
	for i, url := range urls {
		parts[i] = url + ": " + result.DocumentErrors[url]
	}
	return result.Error + ": " + strings.Join(parts, "; ")
}

// runPipeline 执行流水线并记录耗时。
func (o *Orchestrator) runPipeline(ctx context.Context, mode, query string, urls []string, validate bool) *model.QueryResult {
	start := o.now()
	result := o.runner.Run(ctx, query, urls, WithValidation(validate))
	if result == nil {
		result = errorResult(errors.New("pipeline returned no result"))
	}
	o.metrics.RecordPipeline(ctx, mode, result.Failed(), len(urls), o.now().Sub(start))
	return result
}

// GetStatus 返回任务快照，未知 ID 返回 store.ErrJobNotFound。
func (o *Orchestrator) GetStatus(ctx context.Context, jobID string) (*model.Job, error) {
	return o.store.Get(ctx, jobID)
}

// QuerySync 同步执行查询，不创建任务记录。
func (o *Orchestrator) QuerySync(ctx context.Context, req QueryRequest) (*model.QueryResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	return o.runPipeline(ctx, metrics.ModeSync, req.Query, req.DocumentURLs, req.Validate), nil
}

// Shutdown 等待运行中的任务结束，ctx 到期后取消它们并返回 ctx 的错误。
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.cancel()
		return nil
	case <-ctx.Done():
		o.cancel()
		logger.Warnw("shutdown deadline reached, cancelling running jobs")
		return ctx.Err()
	}
}
