package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

// GormLogger routes GORM's statement and driver logs into zap. Entries carry
// the trace and span of the statement's context and any fields added with
// With, such as a session id.
type GormLogger struct {
	logger        *zap.Logger
	level         gormlogger.LogLevel
	slowThreshold time.Duration
	logNotFound   bool
	hideParams    bool
}

// GormLoggerOption configures a GormLogger
type GormLoggerOption func(*GormLogger)

// WithSlowThreshold sets the duration above which statements are logged as
// slow. Zero disables slow statement detection.
func WithSlowThreshold(threshold time.Duration) GormLoggerOption {
	return func(l *GormLogger) {
		l.slowThreshold = threshold
	}
}

// WithIgnoreRecordNotFoundError controls whether lookups that find nothing are logged
func WithIgnoreRecordNotFoundError(ignore bool) GormLoggerOption {
	return func(l *GormLogger) {
		l.logNotFound = !ignore
	}
}

// WithParameterizedQueries logs statements with placeholders instead of the
// bound values when hide is true.
func WithParameterizedQueries(hide bool) GormLoggerOption {
	return func(l *GormLogger) {
		l.hideParams = hide
	}
}

// NewGormLogger creates a GORM logger backed by zap
func NewGormLogger(zapLogger *zap.Logger, level gormlogger.LogLevel, opts ...GormLoggerOption) *GormLogger {
	gl := &GormLogger{
		logger:        zapLogger.Named("gorm"),
		level:         level,
		slowThreshold: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(gl)
	}
	return gl
}

// With returns a copy that adds fields to every entry
func (l *GormLogger) With(fields ...zap.Field) *GormLogger {
	child := *l
	child.logger = l.logger.With(fields...)
	return &child
}

// LogMode implements gormlogger.Interface
func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	child := *l
	child.level = level
	return &child
}

// ParamsFilter implements gorm.ParamsFilter. GORM consults it before
// rendering a statement for the logger.
func (l *GormLogger) ParamsFilter(_ context.Context, sql string, params ...any) (string, []any) {
	if l.hideParams {
		return sql, nil
	}
	return sql, params
}

// Info implements gormlogger.Interface
func (l *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	l.printf(ctx, gormlogger.Info, zapcore.InfoLevel, msg, data)
}

// Warn implements gormlogger.Interface
func (l *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	l.printf(ctx, gormlogger.Warn, zapcore.WarnLevel, msg, data)
}

// Error implements gormlogger.Interface
func (l *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	l.printf(ctx, gormlogger.Error, zapcore.ErrorLevel, msg, data)
}

func (l *GormLogger) printf(ctx context.Context, enabledAt gormlogger.LogLevel, lvl zapcore.Level, msg string, data []any) {
	if l.level < enabledAt {
		return
	}
	l.logger.With(traceFields(ctx)...).Sugar().Logf(lvl, msg, data...)
}

// Trace implements gormlogger.Interface. Failed statements are logged at
// error, slow ones at warn and the rest at debug when the level is Info.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	failed := err != nil && (l.logNotFound || !errors.Is(err, gormlogger.ErrRecordNotFound))
	slow := l.slowThreshold > 0 && elapsed > l.slowThreshold

	var (
		msg string
		lvl zapcore.Level
	)
	switch {
	case failed && l.level >= gormlogger.Error:
		msg, lvl = "SQL Error", zapcore.ErrorLevel
	case slow && l.level >= gormlogger.Warn:
		msg, lvl = "Slow SQL", zapcore.WarnLevel
	case err == nil && l.level >= gormlogger.Info:
		msg, lvl = "SQL Query", zapcore.DebugLevel
	default:
		return
	}

	sql, rows := fc()
	fields := append(traceFields(ctx),
		zap.String("sql", sql),
		zap.Duration("elapsed", elapsed),
	)
	// rows is -1 when the statement does not report affected rows
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows", rows))
	}
	if slow {
		fields = append(fields, zap.Duration("threshold", l.slowThreshold))
	}
	if failed {
		fields = append(fields, zap.Error(err))
	}
	l.logger.Log(lvl, msg, fields...)
}

// MapGormLogLevel maps a configured level name to a GORM log level. Debug
// maps to Info since GORM has no finer level; unknown names map to Warn.
func MapGormLogLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "silent", "off":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info", "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}
