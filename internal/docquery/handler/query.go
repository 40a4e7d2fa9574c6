// Package handler provides HTTP handlers for the docquery service.
package handler

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/docquery/internal/docquery/biz"
	"github.com/kart-io/docquery/internal/docquery/store"
	"github.com/kart-io/docquery/internal/model"
	"github.com/kart-io/docquery/pkg/component/storage"
	infralog "github.com/kart-io/docquery/pkg/infra/logger"
	"github.com/kart-io/docquery/pkg/infra/pool"
	"github.com/kart-io/docquery/pkg/utils/errors"
	"github.com/kart-io/docquery/pkg/utils/response"
	"github.com/kart-io/docquery/pkg/utils/validator"
)

const defaultSyncTimeout = 120 * time.Second

// QueryService 处理器依赖的业务接口，*biz.Orchestrator 满足此接口。
type QueryService interface {
	Submit(ctx context.Context, req biz.QueryRequest) (*model.Job, error)
	GetStatus(ctx context.Context, jobID string) (*model.Job, error)
	QuerySync(ctx context.Context, req biz.QueryRequest) (*model.QueryResult, error)
}

// HealthChecker 依赖组件的健康检查，*storage.Manager 满足此接口。
type HealthChecker interface {
	HealthCheckAll(ctx context.Context) []storage.HealthStatus
}

// QueryRequest 查询请求体。
type QueryRequest struct {
	Query        string   `json:"query" validate:"notblank,max=4096"`
	DocumentURLs []string `json:"document_urls" validate:"min=1,max=20,dive,httpurl"`
	// Validate 为空时默认开启答案校验。
	Validate *bool `json:"validate,omitempty"`
}

func (r *QueryRequest) toBiz(validateByDefault bool) biz.QueryRequest {
	validate := validateByDefault
	if r.Validate != nil {
		validate = *r.Validate
	}
	return biz.QueryRequest{
		Query:        r.Query,
		DocumentURLs: r.DocumentURLs,
		Validate:     validate,
	}
}

// SubmitResponse 异步提交结果。
type SubmitResponse struct {
	JobID  string          `json:"job_id"`
	Status model.JobStatus `json:"status"`
}

// HealthResponse 健康检查结果。
type HealthResponse struct {
	Status     string                 `json:"status"`
	Store      string                 `json:"store"`
	Version    string                 `json:"version"`
	Components []storage.HealthStatus `json:"components,omitempty"`
}

// Config 处理器配置。
type Config struct {
	// SyncTimeout 同步查询的最长时间。
	SyncTimeout time.Duration
	// StoreBackend 任务存储名称，用于健康检查输出。
	StoreBackend string
	// Version 服务版本。
	Version string
	// DisableValidation 请求未指定 validate 时关闭答案校验。
	DisableValidation bool
}

// QueryHandler handles docquery HTTP requests.
type QueryHandler struct {
	service QueryService
	health  HealthChecker
	cfg     Config
}

// NewQueryHandler creates a new QueryHandler. health may be nil.
func NewQueryHandler(service QueryService, health HealthChecker, cfg Config) *QueryHandler {
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = defaultSyncTimeout
	}
	return &QueryHandler{service: service, health: health, cfg: cfg}
}

// Root 服务存活提示。
func (h *QueryHandler) Root(c *gin.Context) {
	response.OK(c, gin.H{"message": "Document Query API is running"})
}

// Health 返回服务及依赖组件状态。
func (h *QueryHandler) Health(c *gin.Context) {
	resp := HealthResponse{
		Status:  "healthy",
		Store:   h.cfg.StoreBackend,
		Version: h.cfg.Version,
	}
	status := http.StatusOK

	if h.health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		resp.Components = h.health.HealthCheckAll(ctx)
		for _, comp := range resp.Components {
			if !comp.Healthy {
				resp.Status = "unhealthy"
				status = http.StatusServiceUnavailable
			}
		}
	}

	response.JSON(c, status, response.Success(resp))
}

// Submit 创建异步查询任务，返回 202。
func (h *QueryHandler) Submit(c *gin.Context) {
	var req QueryRequest
	if !bindQuery(c, &req) {
		return
	}

	job, err := h.service.Submit(c.Request.Context(), req.toBiz(!h.cfg.DisableValidation))
	if err != nil {
		response.Fail(c, toErrno(c.Request.Context(), err))
		return
	}

	response.Accepted(c, SubmitResponse{JobID: job.JobID, Status: job.Status})
}

// GetJob 查询任务状态，未知 ID 返回 404。
func (h *QueryHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")

	job, err := h.service.GetStatus(c.Request.Context(), jobID)
	if err != nil {
		response.Fail(c, toErrno(c.Request.Context(), err))
		return
	}

	response.OK(c, job)
}

// QuerySync 同步执行查询，超过 SyncTimeout 返回 408。
func (h *QueryHandler) QuerySync(c *gin.Context) {
	var req QueryRequest
	if !bindQuery(c, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.cfg.SyncTimeout)
	defer cancel()

	result, err := h.service.QuerySync(ctx, req.toBiz(!h.cfg.DisableValidation))
	if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		response.Fail(c, errors.ErrQueryTimeout.WithMessage(
			"Query timeout: the request took too long to process. Use POST /query for long-running queries."))
		return
	}
	if err != nil {
		response.Fail(c, toErrno(c.Request.Context(), err))
		return
	}

	response.OK(c, result)
}

// bindQuery 解析并校验请求体，失败时已写出 400 响应。
func bindQuery(c *gin.Context, req *QueryRequest) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		var verrs *validator.ValidationErrors
		if stderrors.As(err, &verrs) {
			resp := response.Err(errors.ErrInvalidRequest.WithMessage(verrs.Error())).WithData(verrs.ToMap())
			response.JSON(c, http.StatusBadRequest, resp)
			c.Abort()
			return false
		}
		response.Fail(c, errors.ErrInvalidRequest.WithMessage("invalid request body: "+err.Error()))
		return false
	}
	return true
}

// toErrno 将业务错误映射为 API 错误码。
func toErrno(ctx context.Context, err error) *errors.Errno {
	switch {
	case stderrors.Is(err, biz.ErrEmptyQuery), stderrors.Is(err, biz.ErrNoDocuments):
		return errors.ErrInvalidRequest.WithMessage(err.Error())
	case stderrors.Is(err, store.ErrJobNotFound):
		return errors.ErrJobNotFound
	case stderrors.Is(err, pool.ErrPoolOverload):
		return errors.ErrQueueFull.WithCause(err)
	case stderrors.Is(err, pool.ErrPoolClosed):
		return errors.ErrServiceUnavailable.WithCause(err)
	default:
		infralog.LogError(ctx, "request failed", err)
		return errors.ErrJobStore.WithCause(err)
	}
}
