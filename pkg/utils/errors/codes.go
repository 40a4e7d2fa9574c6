package errors

import "net/http"

// 通用错误。
var (
	OK            = Register(New(0, http.StatusOK, "success", "成功"))
	ErrBadRequest = Register(New(MakeCode(ServiceCommon, CategoryRequest, 1), http.StatusBadRequest, "Bad request", "请求错误"))
	ErrNotFound   = Register(New(MakeCode(ServiceCommon, CategoryResource, 1), http.StatusNotFound, "Resource not found", "资源不存在"))
	ErrInternal   = Register(New(MakeCode(ServiceCommon, CategoryInternal, 1), http.StatusInternalServerError, "Internal server error", "服务器内部错误"))
	ErrPanic      = Register(New(MakeCode(ServiceCommon, CategoryInternal, 2), http.StatusInternalServerError, "Internal server error", "服务器内部错误"))
)

// 文档问答服务错误。
var (
	ErrInvalidRequest     = Register(New(MakeCode(ServiceDocQuery, CategoryRequest, 1), http.StatusBadRequest, "Invalid request parameters", "请求参数无效"))
	ErrJobNotFound        = Register(New(MakeCode(ServiceDocQuery, CategoryResource, 1), http.StatusNotFound, "Job not found", "任务不存在"))
	ErrQueueFull          = Register(New(MakeCode(ServiceDocQuery, CategoryRateLimit, 1), http.StatusServiceUnavailable, "Too many queued jobs", "任务队列已满"))
	ErrQueryFailed        = Register(New(MakeCode(ServiceDocQuery, CategoryInternal, 1), http.StatusInternalServerError, "Query failed", "查询失败"))
	ErrJobStore           = Register(New(MakeCode(ServiceDocQuery, CategoryDatabase, 1), http.StatusInternalServerError, "Job store unavailable", "任务存储不可用"))
	ErrServiceUnavailable = Register(New(MakeCode(ServiceDocQuery, CategoryNetwork, 1), http.StatusServiceUnavailable, "Service unavailable", "服务不可用"))
	ErrQueryTimeout       = Register(New(MakeCode(ServiceDocQuery, CategoryTimeout, 1), http.StatusRequestTimeout, "Query timeout", "查询超时"))
)
