// Package telemetry wires OpenTelemetry tracing and metrics into the GORM
// session used by the data-access layer.
package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/tenancy/backend/internal/infrastructure/config"
	"github.com/tenancy/backend/internal/infrastructure/logger"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig holds configuration for database tracing.
type DBTracingConfig struct {
	Enabled         bool          // register otelgorm and the timing callbacks
	LogFullSQL      bool          // include query variables in spans (dev only)
	SlowQueryThresh time.Duration // statements slower than this are flagged
	DBSystem        string        // db.system reported on spans
}

// DefaultDBTracingConfig returns tracing disabled with a 200ms slow threshold.
func DefaultDBTracingConfig() DBTracingConfig {
	return DBTracingConfig{
		SlowQueryThresh: 200 * time.Millisecond,
		DBSystem:        "postgresql",
	}
}

// NewDBTracingConfig derives the tracing configuration from the loaded
// telemetry settings and the database driver in use.
func NewDBTracingConfig(tc config.TelemetryConfig, driver string) DBTracingConfig {
	cfg := DefaultDBTracingConfig()
	cfg.Enabled = tc.DBTraceEnabled
	cfg.LogFullSQL = tc.DBLogFullSQL
	if tc.DBSlowQueryThresh > 0 {
		cfg.SlowQueryThresh = tc.DBSlowQueryThresh
	}
	if driver == config.DriverSQLite {
		cfg.DBSystem = "sqlite"
	}
	return cfg
}

// DBTracingPlugin registers otelgorm plus slow-statement detection on a
// GORM session.
type DBTracingPlugin struct {
	config   DBTracingConfig
	logger   *zap.Logger
	provider trace.TracerProvider
}

// DBTracingOption configures a DBTracingPlugin
type DBTracingOption func(*DBTracingPlugin)

// WithTracerProvider sets the provider otelgorm creates spans from. The
// global provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) DBTracingOption {
	return func(p *DBTracingPlugin) {
		p.provider = tp
	}
}

// NewDBTracingPlugin creates a database tracing plugin.
func NewDBTracingPlugin(cfg DBTracingConfig, l *zap.Logger, opts ...DBTracingOption) *DBTracingPlugin {
	if l == nil {
		l = zap.NewNop()
	}
	p := &DBTracingPlugin{config: cfg, logger: l.Named("db_tracing")}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Register installs otelgorm and the timing callbacks on db. It is a no-op
// when tracing is disabled.
func (p *DBTracingPlugin) Register(db *gorm.DB) error {
	if !p.config.Enabled {
		p.logger.Debug("Database tracing disabled, skipping otelgorm registration")
		return nil
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(p.config.DBSystem)}
	if !p.config.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if p.provider != nil {
		opts = append(opts, otelgorm.WithTracerProvider(p.provider))
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}
	if err := p.registerCallbacks(db); err != nil {
		return err
	}

	p.logger.Info("Database tracing enabled",
		zap.Bool("log_full_sql", p.config.LogFullSQL),
		zap.Duration("slow_query_threshold", p.config.SlowQueryThresh),
		zap.String("db_system", p.config.DBSystem),
	)
	return nil
}

// registerCallbacks hooks the timing pair around every GORM operation kind
func (p *DBTracingPlugin) registerCallbacks(db *gorm.DB) error {
	cb := db.Callback()
	return errors.Join(
		cb.Create().Before("gorm:create").Register("tenancy_timing:before_create", markStart),
		cb.Query().Before("gorm:query").Register("tenancy_timing:before_query", markStart),
		cb.Update().Before("gorm:update").Register("tenancy_timing:before_update", markStart),
		cb.Delete().Before("gorm:delete").Register("tenancy_timing:before_delete", markStart),
		cb.Row().Before("gorm:row").Register("tenancy_timing:before_row", markStart),
		cb.Raw().Before("gorm:raw").Register("tenancy_timing:before_raw", markStart),

		cb.Create().After("gorm:create").Register("tenancy_timing:after_create", p.afterStatement),
		cb.Query().After("gorm:query").Register("tenancy_timing:after_query", p.afterStatement),
		cb.Update().After("gorm:update").Register("tenancy_timing:after_update", p.afterStatement),
		cb.Delete().After("gorm:delete").Register("tenancy_timing:after_delete", p.afterStatement),
		cb.Row().After("gorm:row").Register("tenancy_timing:after_row", p.afterStatement),
		cb.Raw().After("gorm:raw").Register("tenancy_timing:after_raw", p.afterStatement),
	)
}

type contextKey string

const queryStartTimeKey contextKey = "tenancy_query_start_time"

// WithQueryStartTime returns a context recording now as the statement start.
func WithQueryStartTime(ctx context.Context) context.Context {
	return context.WithValue(ctx, queryStartTimeKey, time.Now())
}

func markStart(db *gorm.DB) {
	if db.Statement.Context != nil {
		db.Statement.Context = WithQueryStartTime(db.Statement.Context)
	}
}

// afterStatement annotates the active span and logs statements above the
// slow threshold.
func (p *DBTracingPlugin) afterStatement(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}

	var elapsed time.Duration
	start, timed := ctx.Value(queryStartTimeKey).(time.Time)
	if timed {
		elapsed = time.Since(start)
	}
	slow := timed && p.config.SlowQueryThresh > 0 && elapsed > p.config.SlowQueryThresh

	if slow {
		logger.WithTraceContext(ctx, p.logger).Warn("Slow query",
			zap.String("table", db.Statement.Table),
			zap.Duration("elapsed", elapsed),
			zap.Duration("threshold", p.config.SlowQueryThresh),
			zap.Int64("rows", db.Statement.RowsAffected),
		)
	}

	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	if db.Statement.RowsAffected >= 0 {
		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	}
	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
	}
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}
	if slow {
		span.SetAttributes(
			attribute.Bool("db.slow_query", true),
			attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
		)
		span.AddEvent("slow_query_warning", trace.WithAttributes(
			attribute.Int64("duration_ms", elapsed.Milliseconds()),
			attribute.Int64("threshold_ms", p.config.SlowQueryThresh.Milliseconds()),
		))
	}
}
