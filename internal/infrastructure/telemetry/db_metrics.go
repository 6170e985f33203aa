package telemetry

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/tenancy/backend/internal/infrastructure/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const meterName = "github.com/tenancy/backend/db"

// Attribute keys shared by the database instruments
var (
	AttrDBOperation = attribute.Key("db.operation")
	AttrDBTable     = attribute.Key("db.table")
	AttrDBState     = attribute.Key("db.pool.state")
	AttrDBError     = attribute.Key("db.error")
)

// DBDurationBuckets are bucket boundaries for database query duration (seconds).
var DBDurationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}

// DBMetricsConfig holds configuration for database metrics collection.
type DBMetricsConfig struct {
	Enabled            bool
	SlowQueryThreshold time.Duration
}

// NewDBMetricsConfig derives the metrics configuration from the loaded
// telemetry settings.
func NewDBMetricsConfig(tc config.TelemetryConfig) DBMetricsConfig {
	cfg := DBMetricsConfig{Enabled: tc.DBMetricsEnabled, SlowQueryThreshold: 200 * time.Millisecond}
	if tc.DBSlowQueryThresh > 0 {
		cfg.SlowQueryThreshold = tc.DBSlowQueryThresh
	}
	return cfg
}

// DBMetrics records per-statement counters and latency, and reports pool
// state through an observable gauge read at collection time.
type DBMetrics struct {
	queryTotal     metric.Int64Counter
	queryDuration  metric.Float64Histogram
	slowQueryTotal metric.Int64Counter
	registration   metric.Registration

	config DBMetricsConfig
	logger *zap.Logger
}

// DBMetricsOption configures DBMetrics
type DBMetricsOption func(*dbMetricsOptions)

type dbMetricsOptions struct {
	provider metric.MeterProvider
}

// WithMeterProvider sets the provider instruments are created from. The
// global provider is used otherwise.
func WithMeterProvider(mp metric.MeterProvider) DBMetricsOption {
	return func(o *dbMetricsOptions) {
		o.provider = mp
	}
}

// RegisterDBMetrics creates the database instruments and installs the
// recording callbacks on db. It returns nil when metrics are disabled.
func RegisterDBMetrics(db *gorm.DB, cfg DBMetricsConfig, l *zap.Logger, opts ...DBMetricsOption) (*DBMetrics, error) {
	if l == nil {
		l = zap.NewNop()
	}
	l = l.Named("db_metrics")
	if !cfg.Enabled {
		l.Debug("Database metrics disabled, skipping registration")
		return nil, nil
	}
	if cfg.SlowQueryThreshold <= 0 {
		cfg.SlowQueryThreshold = 200 * time.Millisecond
	}

	o := dbMetricsOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.provider == nil {
		o.provider = otel.GetMeterProvider()
	}
	meter := o.provider.Meter(meterName)

	m := &DBMetrics{config: cfg, logger: l}
	var err error
	if m.queryTotal, err = meter.Int64Counter("db_query_total",
		metric.WithDescription("Total number of database queries by operation type"),
		metric.WithUnit("{query}"),
	); err != nil {
		return nil, err
	}
	if m.queryDuration, err = meter.Float64Histogram("db_query_duration_seconds",
		metric.WithDescription("Database query latency distribution in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(DBDurationBuckets...),
	); err != nil {
		return nil, err
	}
	if m.slowQueryTotal, err = meter.Int64Counter("db_slow_query_total",
		metric.WithDescription("Total number of statements above the slow threshold"),
		metric.WithUnit("{query}"),
	); err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	pool, err := meter.Int64ObservableGauge("db_pool_connections",
		metric.WithDescription("Number of connections in the pool by state"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return nil, err
	}
	m.registration, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stats := sqlDB.Stats()
		o.ObserveInt64(pool, int64(stats.Idle), metric.WithAttributes(AttrDBState.String("idle")))
		o.ObserveInt64(pool, int64(stats.InUse), metric.WithAttributes(AttrDBState.String("in_use")))
		o.ObserveInt64(pool, int64(stats.OpenConnections), metric.WithAttributes(AttrDBState.String("open")))
		o.ObserveInt64(pool, int64(stats.MaxOpenConnections), metric.WithAttributes(AttrDBState.String("max")))
		return nil
	}, pool)
	if err != nil {
		return nil, err
	}

	if err := m.registerCallbacks(db); err != nil {
		_ = m.registration.Unregister()
		return nil, err
	}

	l.Info("Database metrics registered", zap.Duration("slow_query_threshold", cfg.SlowQueryThreshold))
	return m, nil
}

// Stop unregisters the pool gauge callback. Safe to call on a nil receiver.
func (m *DBMetrics) Stop() error {
	if m == nil || m.registration == nil {
		return nil
	}
	return m.registration.Unregister()
}

// RecordQuery records one executed statement.
func (m *DBMetrics) RecordQuery(ctx context.Context, operation, table string, duration time.Duration, err error) {
	operation = strings.ToUpper(operation)
	if operation == "" {
		operation = "UNKNOWN"
	}
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound)

	attrs := metric.WithAttributes(AttrDBOperation.String(operation), AttrDBError.Bool(failed))
	m.queryTotal.Add(ctx, 1, attrs)
	m.queryDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(AttrDBOperation.String(operation)))

	if duration > m.config.SlowQueryThreshold {
		if table == "" {
			table = "unknown"
		}
		m.slowQueryTotal.Add(ctx, 1, metric.WithAttributes(AttrDBTable.String(table)))
	}
}

func (m *DBMetrics) registerCallbacks(db *gorm.DB) error {
	cb := db.Callback()
	record := func(operation string) func(*gorm.DB) {
		return func(tx *gorm.DB) { m.afterStatement(tx, operation) }
	}
	raw := func(tx *gorm.DB) {
		m.afterStatement(tx, detectOperationType(tx.Statement.SQL.String()))
	}
	return errors.Join(
		cb.Create().Before("gorm:create").Register("tenancy_metrics:before_create", markStart),
		cb.Query().Before("gorm:query").Register("tenancy_metrics:before_query", markStart),
		cb.Update().Before("gorm:update").Register("tenancy_metrics:before_update", markStart),
		cb.Delete().Before("gorm:delete").Register("tenancy_metrics:before_delete", markStart),
		cb.Row().Before("gorm:row").Register("tenancy_metrics:before_row", markStart),
		cb.Raw().Before("gorm:raw").Register("tenancy_metrics:before_raw", markStart),

		cb.Create().After("gorm:create").Register("tenancy_metrics:after_create", record("INSERT")),
		cb.Query().After("gorm:query").Register("tenancy_metrics:after_query", record("SELECT")),
		cb.Update().After("gorm:update").Register("tenancy_metrics:after_update", record("UPDATE")),
		cb.Delete().After("gorm:delete").Register("tenancy_metrics:after_delete", record("DELETE")),
		cb.Row().After("gorm:row").Register("tenancy_metrics:after_row", raw),
		cb.Raw().After("gorm:raw").Register("tenancy_metrics:after_raw", raw),
	)
}

func (m *DBMetrics) afterStatement(db *gorm.DB, operation string) {
	ctx := db.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}
	var elapsed time.Duration
	if start, ok := ctx.Value(queryStartTimeKey).(time.Time); ok {
		elapsed = time.Since(start)
	}
	m.RecordQuery(ctx, operation, db.Statement.Table, elapsed, db.Error)
}

// detectOperationType reads the statement verb of raw SQL
func detectOperationType(sql string) string {
	sql = strings.TrimSpace(strings.ToUpper(sql))

	switch {
	case strings.HasPrefix(sql, "SELECT"), strings.HasPrefix(sql, "PRAGMA"):
		return "SELECT"
	case strings.HasPrefix(sql, "INSERT"):
		return "INSERT"
	case strings.HasPrefix(sql, "UPDATE"):
		return "UPDATE"
	case strings.HasPrefix(sql, "DELETE"):
		return "DELETE"
	default:
		return "OTHER"
	}
}
