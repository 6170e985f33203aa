package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tenancy/backend/internal/infrastructure/config"
	"github.com/tenancy/backend/internal/infrastructure/persistence/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB creates an in-memory SQLite database with the tenancy schema
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:?_foreign_keys=1"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

// setupTracerWithRecorder creates a tracer provider with a span recorder
func setupTracerWithRecorder(t *testing.T) (*trace.TracerProvider, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := trace.NewTracerProvider(trace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp, recorder
}

func findAttr(attrs []attribute.KeyValue, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range attrs {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestDefaultDBTracingConfig(t *testing.T) {
	cfg := DefaultDBTracingConfig()

	assert.False(t, cfg.Enabled)
	assert.False(t, cfg.LogFullSQL)
	assert.Equal(t, 200*time.Millisecond, cfg.SlowQueryThresh)
	assert.Equal(t, "postgresql", cfg.DBSystem)
}

func TestNewDBTracingConfig(t *testing.T) {
	t.Run("postgres", func(t *testing.T) {
		cfg := NewDBTracingConfig(config.TelemetryConfig{
			DBTraceEnabled:    true,
			DBSlowQueryThresh: 50 * time.Millisecond,
		}, config.DriverPostgres)

		assert.True(t, cfg.Enabled)
		assert.Equal(t, 50*time.Millisecond, cfg.SlowQueryThresh)
		assert.Equal(t, "postgresql", cfg.DBSystem)
	})

	t.Run("sqlite keeps default threshold", func(t *testing.T) {
		cfg := NewDBTracingConfig(config.TelemetryConfig{DBLogFullSQL: true}, config.DriverSQLite)

		assert.False(t, cfg.Enabled)
		assert.True(t, cfg.LogFullSQL)
		assert.Equal(t, 200*time.Millisecond, cfg.SlowQueryThresh)
		assert.Equal(t, "sqlite", cfg.DBSystem)
	})
}

func TestDBTracingPlugin_Register(t *testing.T) {
	t.Run("disabled is a no-op", func(t *testing.T) {
		db := setupTestDB(t)
		plugin := NewDBTracingPlugin(DefaultDBTracingConfig(), nil)

		require.NoError(t, plugin.Register(db))
		assert.NotContains(t, db.Config.Plugins, "otelgorm")
	})

	t.Run("enabled records statement spans", func(t *testing.T) {
		db := setupTestDB(t)
		tp, recorder := setupTracerWithRecorder(t)

		cfg := DBTracingConfig{Enabled: true, SlowQueryThresh: time.Second, DBSystem: "sqlite"}
		plugin := NewDBTracingPlugin(cfg, zap.NewNop(), WithTracerProvider(tp))
		require.NoError(t, plugin.Register(db))

		ctx, parent := tp.Tracer("test").Start(context.Background(), "unit-of-work")
		require.NoError(t, db.WithContext(ctx).Create(&models.TenantModel{Name: "Acme"}).Error)

		var found models.TenantModel
		require.NoError(t, db.WithContext(ctx).Take(&found, "name = ?", "Acme").Error)
		parent.End()

		spans := recorder.Ended()
		require.Greater(t, len(spans), 1)
		for _, s := range spans[:len(spans)-1] {
			assert.Equal(t, parent.SpanContext().TraceID(), s.SpanContext().TraceID())
		}
	})

	t.Run("double registration fails", func(t *testing.T) {
		db := setupTestDB(t)
		cfg := DBTracingConfig{Enabled: true, SlowQueryThresh: time.Second, DBSystem: "sqlite"}
		plugin := NewDBTracingPlugin(cfg, zap.NewNop())

		require.NoError(t, plugin.Register(db))
		assert.Error(t, plugin.Register(db))
	})
}

func TestDBTracingPlugin_AfterStatement(t *testing.T) {
	t.Run("annotates rows and table", func(t *testing.T) {
		db := setupTestDB(t)
		tp, recorder := setupTracerWithRecorder(t)
		plugin := NewDBTracingPlugin(DBTracingConfig{SlowQueryThresh: time.Hour}, zap.NewNop())
		require.NoError(t, plugin.registerCallbacks(db))

		ctx, span := tp.Tracer("test").Start(context.Background(), "insert")
		batch := []models.TenantModel{{Name: "A"}, {Name: "B"}, {Name: "C"}}
		require.NoError(t, db.WithContext(ctx).Create(&batch).Error)
		span.End()

		spans := recorder.Ended()
		require.Len(t, spans, 1)
		rows, ok := findAttr(spans[0].Attributes(), "db.rows_affected")
		require.True(t, ok)
		assert.Equal(t, int64(3), rows.AsInt64())
		table, ok := findAttr(spans[0].Attributes(), "db.sql.table")
		require.True(t, ok)
		assert.Equal(t, "tenants", table.AsString())
		_, slow := findAttr(spans[0].Attributes(), "db.slow_query")
		assert.False(t, slow)
	})

	t.Run("record not found is not an error", func(t *testing.T) {
		db := setupTestDB(t)
		tp, recorder := setupTracerWithRecorder(t)
		plugin := NewDBTracingPlugin(DefaultDBTracingConfig(), zap.NewNop())
		require.NoError(t, plugin.registerCallbacks(db))

		ctx, span := tp.Tracer("test").Start(context.Background(), "lookup")
		err := db.WithContext(ctx).Take(&models.TenantModel{}, 99999).Error
		require.ErrorIs(t, err, gorm.ErrRecordNotFound)
		span.End()

		spans := recorder.Ended()
		require.Len(t, spans, 1)
		assert.NotEqual(t, codes.Error, spans[0].Status().Code)
	})

	t.Run("constraint violation marks the span", func(t *testing.T) {
		db := setupTestDB(t)
		tp, recorder := setupTracerWithRecorder(t)
		plugin := NewDBTracingPlugin(DefaultDBTracingConfig(), zap.NewNop())
		require.NoError(t, plugin.registerCallbacks(db))

		ctx, span := tp.Tracer("test").Start(context.Background(), "orphan")
		err := db.WithContext(ctx).Create(&models.SiteModel{Name: "Orphan", TenantID: 4242}).Error
		require.Error(t, err)
		span.End()

		spans := recorder.Ended()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Error, spans[0].Status().Code)
	})

	t.Run("slow statements are logged and flagged", func(t *testing.T) {
		db := setupTestDB(t)
		tp, recorder := setupTracerWithRecorder(t)
		core, logs := observer.New(zapcore.WarnLevel)
		plugin := NewDBTracingPlugin(DBTracingConfig{SlowQueryThresh: time.Nanosecond}, zap.New(core))
		require.NoError(t, plugin.registerCallbacks(db))

		ctx, span := tp.Tracer("test").Start(context.Background(), "slow")
		require.NoError(t, db.WithContext(ctx).Create(&models.TenantModel{Name: "Slowpoke"}).Error)
		span.End()

		entries := logs.FilterMessage("Slow query").All()
		require.Len(t, entries, 1)
		assert.Equal(t, "tenants", entries[0].ContextMap()["table"])
		assert.Equal(t, span.SpanContext().TraceID().String(), entries[0].ContextMap()["trace_id"])

		spans := recorder.Ended()
		require.Len(t, spans, 1)
		slow, ok := findAttr(spans[0].Attributes(), "db.slow_query")
		require.True(t, ok)
		assert.True(t, slow.AsBool())
		require.NotEmpty(t, spans[0].Events())
		assert.Equal(t, "slow_query_warning", spans[0].Events()[0].Name)
	})

	t.Run("no span still logs slow statements", func(t *testing.T) {
		db := setupTestDB(t)
		core, logs := observer.New(zapcore.WarnLevel)
		plugin := NewDBTracingPlugin(DBTracingConfig{SlowQueryThresh: time.Nanosecond}, zap.New(core))
		require.NoError(t, plugin.registerCallbacks(db))

		require.NoError(t, db.Create(&models.TenantModel{Name: "Untraced"}).Error)
		assert.Equal(t, 1, logs.FilterMessage("Slow query").Len())
	})
}

func TestWithQueryStartTime(t *testing.T) {
	ctx := WithQueryStartTime(context.Background())

	start, ok := ctx.Value(queryStartTimeKey).(time.Time)
	assert.True(t, ok)
	assert.WithinDuration(t, time.Now(), start, time.Second)
}
