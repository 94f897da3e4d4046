package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// gormLogger adapts slog to gorm's logger.Interface.
type gormLogger struct {
	logger               *slog.Logger
	logLevel             logger.LogLevel
	ignoreRecordNotFound bool
	slowThreshold        time.Duration
}

// NewGormLogger creates a GORM logger that writes through l.
// Queries are logged at debug level, slow queries at warn, failures at error.
func NewGormLogger(l *slog.Logger, slowThreshold time.Duration) logger.Interface {
	if l == nil {
		l = slog.Default()
	}
	if slowThreshold <= 0 {
		slowThreshold = 200 * time.Millisecond
	}
	return &gormLogger{
		logger:               l,
		logLevel:             logger.Info,
		ignoreRecordNotFound: true,
		slowThreshold:        slowThreshold,
	}
}

// LogMode sets the log level
func (gl *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	newLogger := *gl
	newLogger.logLevel = level
	return &newLogger
}

func (gl *gormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if gl.logLevel >= logger.Info {
		gl.logger.InfoContext(ctx, fmt.Sprintf(msg, data...))
	}
}

func (gl *gormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if gl.logLevel >= logger.Warn {
		gl.logger.WarnContext(ctx, fmt.Sprintf(msg, data...))
	}
}

func (gl *gormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if gl.logLevel >= logger.Error {
		gl.logger.ErrorContext(ctx, fmt.Sprintf(msg, data...))
	}
}

// Trace logs SQL queries with execution time
func (gl *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if gl.logLevel <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	attrs := []any{
		slog.Float64("duration_ms", float64(elapsed.Nanoseconds())/1e6),
		slog.Int64("rows", rows),
		slog.String("sql", sql),
	}

	switch {
	case err != nil && gl.logLevel >= logger.Error && (!gl.ignoreRecordNotFound || !errors.Is(err, gorm.ErrRecordNotFound)):
		attrs = append(attrs, slog.Any("error", err))
		gl.logger.ErrorContext(ctx, "database query failed", attrs...)
	case elapsed > gl.slowThreshold && gl.logLevel >= logger.Warn:
		gl.logger.WarnContext(ctx, "slow SQL query detected", attrs...)
	case gl.logLevel >= logger.Info:
		gl.logger.DebugContext(ctx, "SQL query executed", attrs...)
	}
}
