// Package logger provides structured logging utilities with context propagation.
package logger

import (
	"context"
	"fmt"

	"github.com/kart-io/logger"
	"github.com/kart-io/logger/core"
	"go.opentelemetry.io/otel/trace"
)

type contextKey int

const loggerFieldsKey contextKey = iota

// loggerFields holds structured logging fields carried by a context.
type loggerFields struct {
	fields map[string]any
	// order 保持字段写入顺序，日志输出稳定。
	order []string
}

func newLoggerFields() *loggerFields {
	return &loggerFields{fields: make(map[string]any)}
}

func (lf *loggerFields) clone() *loggerFields {
	out := &loggerFields{
		fields: make(map[string]any, len(lf.fields)),
		order:  append([]string(nil), lf.order...),
	}
	for k, v := range lf.fields {
		out.fields[k] = v
	}
	return out
}

func (lf *loggerFields) set(key string, value any) {
	if _, ok := lf.fields[key]; !ok {
		lf.order = append(lf.order, key)
	}
	lf.fields[key] = value
}

func (lf *loggerFields) toSlice() []any {
	if len(lf.order) == 0 {
		return nil
	}
	out := make([]any, 0, len(lf.order)*2)
	for _, k := range lf.order {
		out = append(out, k, lf.fields[k])
	}
	return out
}

func getLoggerFields(ctx context.Context) *loggerFields {
	if lf, ok := ctx.Value(loggerFieldsKey).(*loggerFields); ok {
		return lf
	}
	return newLoggerFields()
}

func withField(ctx context.Context, key string, value any) context.Context {
	lf := getLoggerFields(ctx).clone()
	lf.set(key, value)
	return context.WithValue(ctx, loggerFieldsKey, lf)
}

// WithRequestID adds request_id to the context logger fields.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return withField(ctx, "request_id", requestID)
}

// WithJobID adds job_id to the context logger fields.
func WithJobID(ctx context.Context, jobID string) context.Context {
	if jobID == "" {
		return ctx
	}
	return withField(ctx, "job_id", jobID)
}

// WithFields adds multiple key-value pairs; a trailing key without value is dropped.
func WithFields(ctx context.Context, keysAndValues ...any) context.Context {
	if len(keysAndValues) < 2 {
		return ctx
	}
	lf := getLoggerFields(ctx).clone()
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			lf.set(key, keysAndValues[i+1])
		}
	}
	return context.WithValue(ctx, loggerFieldsKey, lf)
}

// ExtractOpenTelemetryFields copies trace_id and span_id of the active span into the logger fields.
func ExtractOpenTelemetryFields(ctx context.Context) context.Context {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ctx
	}
	lf := getLoggerFields(ctx).clone()
	lf.set("trace_id", sc.TraceID().String())
	lf.set("span_id", sc.SpanID().String())
	return context.WithValue(ctx, loggerFieldsKey, lf)
}

// GetContextFields returns the logger fields stored in ctx, nil when none.
func GetContextFields(ctx context.Context) []any {
	return getLoggerFields(ctx).toSlice()
}

// GetLogger 返回携带 ctx 字段的全局 logger。
func GetLogger(ctx context.Context) core.Logger {
	base := logger.Global()
	if fields := GetContextFields(ctx); len(fields) > 0 {
		return base.With(fields...)
	}
	return base
}

// LogError logs err with its message and Go type under the context fields.
func LogError(ctx context.Context, msg string, err error, keysAndValues ...any) {
	if err == nil {
		return
	}
	fields := append([]any{
		"error", err.Error(),
		"error_type", fmt.Sprintf("%T", err),
	}, keysAndValues...)
	GetLogger(ctx).Errorw(msg, fields...)
}
