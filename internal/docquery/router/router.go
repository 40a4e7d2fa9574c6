// Package router provides docquery service routing.
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/kart-io/logger"
	"go.opentelemetry.io/otel/trace"

	"github.com/kart-io/docquery/internal/docquery/handler"
	"github.com/kart-io/docquery/pkg/infra/middleware"
	"github.com/kart-io/docquery/pkg/utils/validator"
)

// Options 路由中间件配置。
type Options struct {
	// CORS 为空时使用 AllowAllCORSConfig。
	CORS *middleware.CORSConfig
	// EnableStackTrace 在 panic 日志中输出堆栈。
	EnableStackTrace bool
	// TracerProvider 为空时使用全局 provider。
	TracerProvider trace.TracerProvider
	// Metrics 为空时不记录请求指标。
	Metrics middleware.RequestRecorder
	// MetricsHandler 非空时挂载到 MetricsPath。
	MetricsHandler http.Handler
	MetricsPath    string
}

// NewEngine 创建挂载全部中间件与路由的 gin 引擎。
func NewEngine(h *handler.QueryHandler, opts Options) *gin.Engine {
	binding.Validator = validator.Global()

	cors := middleware.AllowAllCORSConfig
	if opts.CORS != nil {
		cors = *opts.CORS
	}

	metricsPath := opts.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}

	engine := gin.New()
	engine.Use(
		middleware.RequestID(),
		middleware.RecoveryWithConfig(middleware.RecoveryConfig{EnableStackTrace: opts.EnableStackTrace}),
		middleware.Logger(),
		middleware.TracingWithConfig(middleware.TracingConfig{
			TracerProvider: opts.TracerProvider,
			SkipPaths:      []string{"/health", metricsPath},
		}),
		middleware.CORSWithConfig(cors),
	)
	if opts.Metrics != nil {
		engine.Use(middleware.Metrics(opts.Metrics, metricsPath))
	}

	Register(engine, h)
	if opts.MetricsHandler != nil {
		engine.GET(metricsPath, gin.WrapH(opts.MetricsHandler))
	}
	return engine
}

// Register registers the docquery routes.
func Register(r gin.IRouter, h *handler.QueryHandler) {
	logger.Info("Registering docquery routes...")

	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	// Query endpoints
	r.POST("/query", h.Submit)
	r.POST("/query-sync", h.QuerySync)

	// Job endpoints
	r.GET("/jobs/:job_id", h.GetJob)

	logger.Info("HTTP routes registered")
}
