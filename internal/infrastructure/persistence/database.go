package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/tenancy/backend/internal/infrastructure/config"
	"github.com/tenancy/backend/internal/infrastructure/logger"
	"github.com/tenancy/backend/internal/infrastructure/persistence/crud"
	"github.com/tenancy/backend/internal/infrastructure/persistence/models"
	"github.com/tenancy/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Database holds the database connection and hands out sessions
type Database struct {
	DB      *gorm.DB
	driver  string
	logger  *zap.Logger
	opts    []crud.Option
	metrics *telemetry.DBMetrics
}

// NewDatabase opens the configured database, applies pool settings,
// registers tracing and metrics when enabled and, if configured, creates the
// schema.
// opts are applied to every repository the database's sessions create.
func NewDatabase(cfg *config.Config, l *zap.Logger, opts ...crud.Option) (*Database, error) {
	if l == nil {
		l = zap.NewNop()
	}

	dialector, err := dialectorFor(&cfg.Database)
	if err != nil {
		return nil, err
	}

	gormLogger := logger.NewGormLogger(l,
		logger.MapGormLogLevel(cfg.Database.LogLevel),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh),
		logger.WithParameterizedQueries(!cfg.Telemetry.DBLogFullSQL),
	)
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
		PrepareStmt:            cfg.Database.Driver == config.DriverPostgres,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	maxOpen, maxIdle := cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns
	lifetime := time.Duration(cfg.Database.ConnMaxLifetime) * time.Minute
	idleTime := time.Duration(cfg.Database.ConnMaxIdleTime) * time.Minute
	if cfg.Database.Driver == config.DriverSQLite && isMemoryPath(cfg.Database.SQLitePath) {
		// each connection to :memory: is a separate database that dies with it
		maxOpen, maxIdle = 1, 1
		lifetime, idleTime = 0, 0
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(lifetime)
	sqlDB.SetConnMaxIdleTime(idleTime)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	tracing := telemetry.NewDBTracingPlugin(telemetry.NewDBTracingConfig(cfg.Telemetry, cfg.Database.Driver), l)
	if err := tracing.Register(db); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to register database tracing: %w", err)
	}

	metrics, err := telemetry.RegisterDBMetrics(db, telemetry.NewDBMetricsConfig(cfg.Telemetry), l)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to register database metrics: %w", err)
	}

	d := &Database{DB: db, driver: cfg.Database.Driver, logger: l.Named("database"), opts: opts, metrics: metrics}
	if cfg.Database.AutoMigrate {
		if err := d.AutoMigrate(context.Background()); err != nil {
			_ = d.Close()
			return nil, err
		}
	}

	d.logger.Info("Database connected",
		zap.String("driver", cfg.Database.Driver),
		zap.Int("max_open_conns", maxOpen),
	)
	return d, nil
}

func dialectorFor(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return postgres.Open(cfg.DSN()), nil
	case config.DriverSQLite:
		return sqlite.Open(cfg.SQLiteDSN()), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func isMemoryPath(path string) bool {
	return path == ":memory:" || path == "file::memory:"
}

// Driver returns the configured driver name
func (d *Database) Driver() string {
	return d.driver
}

// AutoMigrate creates or updates the tenants and sites tables from the models
func (d *Database) AutoMigrate(ctx context.Context) error {
	if err := d.DB.WithContext(ctx).AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// NewSession starts a unit of work bound to ctx
func (d *Database) NewSession(ctx context.Context) *Session {
	return NewSession(ctx, d.DB, d.logger, d.opts...)
}

// Transaction runs fn in a session bound to a single transaction
func (d *Database) Transaction(ctx context.Context, fn func(s *Session) error) error {
	return d.NewSession(ctx).Transaction(ctx, fn)
}

// Close stops metrics collection and closes the database connection
func (d *Database) Close() error {
	if err := d.metrics.Stop(); err != nil {
		d.logger.Warn("Failed to stop database metrics", zap.Error(err))
	}
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// Ping checks if the database connection is alive
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// ConnectionStats holds database connection pool statistics
type ConnectionStats struct {
	MaxOpenConnections int
	OpenConnections    int
	InUse              int
	Idle               int
	WaitCount          int64
	WaitDuration       time.Duration
	MaxIdleClosed      int64
	MaxIdleTimeClosed  int64
	MaxLifetimeClosed  int64
}

// Stats returns connection pool statistics
func (d *Database) Stats() (ConnectionStats, error) {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return ConnectionStats{}, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	stats := sqlDB.Stats()
	return ConnectionStats{
		MaxOpenConnections: stats.MaxOpenConnections,
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
		WaitCount:          stats.WaitCount,
		WaitDuration:       stats.WaitDuration,
		MaxIdleClosed:      stats.MaxIdleClosed,
		MaxIdleTimeClosed:  stats.MaxIdleTimeClosed,
		MaxLifetimeClosed:  stats.MaxLifetimeClosed,
	}, nil
}
