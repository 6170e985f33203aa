package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/tenancy/backend/internal/infrastructure/logger"
	"github.com/tenancy/backend/internal/infrastructure/persistence/crud"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Session is one unit of work over the database. Its repositories share
// the session's GORM handle and logger. A Session is not safe for
// concurrent use.
type Session struct {
	id      string
	db      *gorm.DB
	logger  *zap.Logger
	opts    []crud.Option
	tenants *TenantCRUD
	sites   *SiteCRUD
}

// NewSession starts a session on db. Every SQL statement and operation log
// it produces carries a generated session_id.
func NewSession(ctx context.Context, db *gorm.DB, l *zap.Logger, opts ...crud.Option) *Session {
	if l == nil {
		l = zap.NewNop()
	}
	id := uuid.NewString()
	ctx, sessionLogger := logger.WithSessionID(ctx, l, id)

	tx := db.WithContext(ctx)
	if gl, ok := db.Logger.(*logger.GormLogger); ok {
		tx = tx.Session(&gorm.Session{Logger: gl.With(zap.String("session_id", id))})
	}
	return bindSession(id, tx, sessionLogger, opts)
}

func bindSession(id string, db *gorm.DB, l *zap.Logger, opts []crud.Option) *Session {
	engineOpts := append(append([]crud.Option{}, opts...), crud.WithLogger(l))
	return &Session{
		id:      id,
		db:      db,
		logger:  l,
		opts:    opts,
		tenants: NewTenantCRUD(db, engineOpts...),
		sites:   NewSiteCRUD(db, engineOpts...),
	}
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// DB returns the session's GORM handle
func (s *Session) DB() *gorm.DB {
	return s.db
}

// Logger returns the session logger
func (s *Session) Logger() *zap.Logger {
	return s.logger
}

// Tenants returns the tenant repository bound to this session
func (s *Session) Tenants() *TenantCRUD {
	return s.tenants
}

// Sites returns the site repository bound to this session
func (s *Session) Sites() *SiteCRUD {
	return s.sites
}

// Transaction runs fn against a session bound to a single transaction.
// Repository calls inside fn commit as savepoints and become durable only
// when fn returns nil.
func (s *Session) Transaction(ctx context.Context, fn func(tx *Session) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(bindSession(s.id, tx, s.logger, s.opts))
	})
}
