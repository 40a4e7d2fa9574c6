// Package metrics 提供 docquery 服务的业务指标收集，以 Prometheus 格式导出。
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	prometheusexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

const meterScope = "github.com/kart-io/docquery/internal/docquery/metrics"

// latencyBuckets 请求耗时分桶（秒）。
var latencyBuckets = []float64{0.05, 0.25, 1, 2.5, 5, 10, 30, 60, 120, 300}

// 流水线运行方式。
const (
	ModeAsync = "async"
	ModeSync  = "sync"
)

// Recorder 业务指标记录接口。
type Recorder interface {
	RecordRequest(ctx context.Context, method, route string, status int, duration time.Duration)
	RecordJobSubmitted(ctx context.Context)
	RecordJobRejected(ctx context.Context)
	RecordJobFinished(ctx context.Context, status string, duration time.Duration)
	RecordPipeline(ctx context.Context, mode string, failed bool, documents int, duration time.Duration)
}

// PoolStats 工作池状态，*pool.Pool 满足此接口。
type PoolStats interface {
	Cap() int
	Running() int
	Waiting() int
}

// Config 指标配置。
type Config struct {
	Namespace      string
	ServiceName    string
	ServiceVersion string
	// Pool 非空时导出工作池使用情况。
	Pool PoolStats
}

// Provider 持有 MeterProvider 与 /metrics 处理器。
type Provider struct {
	mp       *sdkmetric.MeterProvider
	handler  http.Handler
	recorder *recorder
}

// NewProvider 创建使用 Prometheus exporter 的 MeterProvider。
// 使用独立的 registry，不污染 prometheus.DefaultRegisterer。
func NewProvider(_ context.Context, cfg Config) (*Provider, error) {
	reg := prometheus.NewRegistry()

	exporterOpts := []prometheusexporter.Option{prometheusexporter.WithRegisterer(reg)}
	if cfg.Namespace != "" {
		exporterOpts = append(exporterOpts, prometheusexporter.WithNamespace(cfg.Namespace))
	}
	exporter, err := prometheusexporter.New(exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
		sdkmetric.WithView(sdkmetric.NewView(
			sdkmetric.Instrument{Kind: sdkmetric.InstrumentKindHistogram},
			sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: latencyBuckets}},
		)),
	)

	meter := mp.Meter(meterScope)
	rec, err := newRecorder(meter)
	if err != nil {
		_ = mp.Shutdown(context.Background())
		return nil, err
	}
	if cfg.Pool != nil {
		if err := registerPoolGauges(meter, cfg.Pool); err != nil {
			_ = mp.Shutdown(context.Background())
			return nil, err
		}
	}

	return &Provider{
		mp:       mp,
		handler:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		recorder: rec,
	}, nil
}

// Handler 返回 Prometheus 抓取处理器。
func (p *Provider) Handler() http.Handler {
	return p.handler
}

// Recorder 返回指标记录器。
func (p *Provider) Recorder() Recorder {
	return p.recorder
}

// Shutdown 关闭 MeterProvider。
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	return p.mp.Shutdown(ctx)
}

type recorder struct {
	requests        metric.Int64Counter
	requestDuration metric.Float64Histogram
	jobsSubmitted   metric.Int64Counter
	jobsRejected    metric.Int64Counter
	jobsFinished    metric.Int64Counter
	jobDuration     metric.Float64Histogram
	pipelineRuns    metric.Int64Counter
	pipelineDocs    metric.Int64Counter
	pipelineLatency metric.Float64Histogram
}

func newRecorder(meter metric.Meter) (*recorder, error) {
	var (
		r   recorder
		err error
	)
	if r.requests, err = meter.Int64Counter("http.server.requests",
		metric.WithDescription("Total HTTP requests")); err != nil {
		return nil, fmt.Errorf("http.server.requests: %w", err)
	}
	if r.requestDuration, err = meter.Float64Histogram("http.server.duration",
		metric.WithDescription("HTTP request duration in seconds"), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("http.server.duration: %w", err)
	}
	if r.jobsSubmitted, err = meter.Int64Counter("jobs.submitted",
		metric.WithDescription("Jobs accepted for asynchronous processing")); err != nil {
		return nil, fmt.Errorf("jobs.submitted: %w", err)
	}
	if r.jobsRejected, err = meter.Int64Counter("jobs.rejected",
		metric.WithDescription("Jobs the worker pool could not schedule")); err != nil {
		return nil, fmt.Errorf("jobs.rejected: %w", err)
	}
	if r.jobsFinished, err = meter.Int64Counter("jobs.finished",
		metric.WithDescription("Jobs that reached a terminal status")); err != nil {
		return nil, fmt.Errorf("jobs.finished: %w", err)
	}
	if r.jobDuration, err = meter.Float64Histogram("job.duration",
		metric.WithDescription("Time from job creation to completion in seconds"), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("job.duration: %w", err)
	}
	if r.pipelineRuns, err = meter.Int64Counter("pipeline.runs",
		metric.WithDescription("Pipeline runs by mode and outcome")); err != nil {
		return nil, fmt.Errorf("pipeline.runs: %w", err)
	}
	if r.pipelineDocs, err = meter.Int64Counter("pipeline.documents",
		metric.WithDescription("Documents requested across pipeline runs")); err != nil {
		return nil, fmt.Errorf("pipeline.documents: %w", err)
	}
	if r.pipelineLatency, err = meter.Float64Histogram("pipeline.duration",
		metric.WithDescription("Pipeline run duration in seconds"), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("pipeline.duration: %w", err)
	}
	return &r, nil
}

func registerPoolGauges(meter metric.Meter, pool PoolStats) error {
	capacity, err := meter.Int64ObservableGauge("pool.capacity", metric.WithDescription("Worker pool capacity"))
	if err != nil {
		return fmt.Errorf("pool.capacity: %w", err)
	}
	running, err := meter.Int64ObservableGauge("pool.running", metric.WithDescription("Workers currently running jobs"))
	if err != nil {
		return fmt.Errorf("pool.running: %w", err)
	}
	waiting, err := meter.Int64ObservableGauge("pool.waiting", metric.WithDescription("Jobs waiting for a worker"))
	if err != nil {
		return fmt.Errorf("pool.waiting: %w", err)
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(capacity, int64(pool.Cap()))
		o.ObserveInt64(running, int64(pool.Running()))
		o.ObserveInt64(waiting, int64(pool.Waiting()))
		return nil
	}, capacity, running, waiting)
	if err != nil {
		return fmt.Errorf("register pool callback: %w", err)
	}
	return nil
}

func (r *recorder) RecordRequest(ctx context.Context, method, route string, status int, duration time.Duration) {
	r.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status_class", statusClass(status)),
	))
	r.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
	))
}

func (r *recorder) RecordJobSubmitted(ctx context.Context) {
	r.jobsSubmitted.Add(ctx, 1)
}

func (r *recorder) RecordJobRejected(ctx context.Context) {
	r.jobsRejected.Add(ctx, 1)
}

func (r *recorder) RecordJobFinished(ctx context.Context, status string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	r.jobsFinished.Add(ctx, 1, attrs)
	r.jobDuration.Record(ctx, duration.Seconds(), attrs)
}

func (r *recorder) RecordPipeline(ctx context.Context, mode string, failed bool, documents int, duration time.Duration) {
	outcome := "success"
	if failed {
		outcome = "error"
	}
	r.pipelineRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("outcome", outcome),
	))
	r.pipelineDocs.Add(ctx, int64(documents), metric.WithAttributes(attribute.String("mode", mode)))
	r.pipelineLatency.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("mode", mode)))
}

// statusClass 把状态码归为 2xx/4xx/5xx，限制标签基数。
func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}

// Noop 返回不记录任何指标的 Recorder。
func Noop() Recorder {
	return noop{}
}

type noop struct{}

func (noop) RecordRequest(context.Context, string, string, int, time.Duration) {}
func (noop) RecordJobSubmitted(context.Context)                                {}
func (noop) RecordJobRejected(context.Context)                                 {}
func (noop) RecordJobFinished(context.Context, string, time.Duration)          {}
func (noop) RecordPipeline(context.Context, string, bool, int, time.Duration)  {}
