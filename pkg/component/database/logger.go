package database

import (
	"context"
	"errors"
	"time"

	gormlogger "gorm.io/gorm/logger"

	"github.com/kart-io/logger/core"

	infralog "github.com/kart-io/docquery/pkg/infra/logger"
)

// GormLogger 将 gorm 日志接入 kart-io/logger。
type GormLogger struct {
	Level         gormlogger.LogLevel
	SlowThreshold time.Duration
}

var _ gormlogger.Interface = (*GormLogger)(nil)

// NewGormLogger creates a GormLogger. 记录未找到不视为错误。
func NewGormLogger(level gormlogger.LogLevel, slowThreshold time.Duration) *GormLogger {
	return &GormLogger{Level: level, SlowThreshold: slowThreshold}
}

// LogMode returns a copy at the given level.
func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *l
	cp.Level = level
	return &cp
}

func (l *GormLogger) log(ctx context.Context) core.Logger {
	return infralog.GetLogger(ctx).With("component", "gorm")
}

// Info logs info messages.
func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.Level >= gormlogger.Info {
		l.log(ctx).Infof(msg, data...)
	}
}

// Warn logs warning messages.
func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.Level >= gormlogger.Warn {
		l.log(ctx).Warnf(msg, data...)
	}
}

// Error logs error messages.
func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.Level >= gormlogger.Error {
		l.log(ctx).Errorf(msg, data...)
	}
}

// Trace logs one executed statement.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.Level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	durationMS := float64(elapsed.Microseconds()) / 1000

	switch {
	case err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound) && l.Level >= gormlogger.Error:
		sql, rows := fc()
		l.log(ctx).Errorw("sql failed", "error", err.Error(), "sql", sql, "rows", rows, "duration_ms", durationMS)
	case l.SlowThreshold > 0 && elapsed > l.SlowThreshold && l.Level >= gormlogger.Warn:
		sql, rows := fc()
		l.log(ctx).Warnw("slow sql", "sql", sql, "rows", rows, "duration_ms", durationMS,
			"threshold_ms", l.SlowThreshold.Milliseconds())
	case l.Level >= gormlogger.Info:
		sql, rows := fc()
		l.log(ctx).Debugw("sql", "sql", sql, "rows", rows, "duration_ms", durationMS)
	}
}
