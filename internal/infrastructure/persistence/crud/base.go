// Package crud implements the generic data-access engine shared by every
// entity family. A Base is bound to a GORM session, a persisted model type M
// and the create, update and read shapes C, U and R. The per-entity
// conversions are supplied explicitly through a Binding.
//
// Every mutating call commits its own transaction. When the bound session is
// already inside a transaction GORM nests it as a savepoint, so callers can
// group several calls under one outer transaction.
package crud

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/tenancy/backend/internal/domain/shared"
	"github.com/tenancy/backend/internal/infrastructure/logger"
	"github.com/tenancy/backend/internal/infrastructure/validation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

const tracerName = "github.com/tenancy/backend/internal/infrastructure/persistence/crud"

var defaultValidator = sync.OnceValue(validation.New)

// Binding supplies the entity-specific pieces the engine cannot derive.
type Binding[M any, C any, R any] struct {
	// FromCreate builds a new, unsaved record from a create input
	FromCreate func(C) *M
	// ToRead projects a loaded record, relationships included, to its read shape
	ToRead func(*M) R
	// Preload lists relationships loaded with every read
	Preload []string
	// Cascade lists dependents deleted together with a record
	Cascade []Dependent
}

// Dependent describes rows in another table that reference this record and
// are removed before it.
type Dependent struct {
	Model      any    // pointer to the dependent model, e.g. &SiteModel{}
	ForeignKey string // column on the dependent table holding this record's id
}

// Option configures a Base
type Option func(*options)

type options struct {
	logger    *zap.Logger
	validator *validation.Validator
	tracer    trace.Tracer
}

// WithLogger sets the logger used for operation logs
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithValidator sets the validator applied to create and update inputs
func WithValidator(v *validation.Validator) Option {
	return func(o *options) {
		o.validator = v
	}
}

// WithTracer sets the tracer used for operation spans
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		o.tracer = t
	}
}

// Base is the generic CRUD engine. It is not safe for concurrent use; bind
// one Base per unit of work.
type Base[M any, C any, U shared.Updatable, R any] struct {
	db        *gorm.DB
	binding   Binding[M, C, R]
	schema    *schema.Schema
	pk        *schema.Field
	validator *validation.Validator
	logger    *zap.Logger
	tracer    trace.Tracer
}

// New binds the engine to db and the given conversions
func New[M any, C any, U shared.Updatable, R any](db *gorm.DB, binding Binding[M, C, R], opts ...Option) (*Base[M, C, U, R], error) {
	if db == nil {
		return nil, errors.New("crud: nil database session")
	}
	if binding.FromCreate == nil || binding.ToRead == nil {
		return nil, errors.New("crud: binding requires FromCreate and ToRead")
	}

	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(new(M)); err != nil {
		return nil, fmt.Errorf("crud: failed to parse model schema: %w", err)
	}
	pk := stmt.Schema.PrioritizedPrimaryField
	if pk == nil {
		return nil, fmt.Errorf("crud: model %s has no primary key", stmt.Schema.Name)
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.validator == nil {
		o.validator = defaultValidator()
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}

	return &Base[M, C, U, R]{
		db:        db,
		binding:   binding,
		schema:    stmt.Schema,
		pk:        pk,
		validator: o.validator,
		logger:    o.logger.Named("crud").With(zap.String("table", stmt.Schema.Table)),
		tracer:    o.tracer,
	}, nil
}

// MustNew is like New but panics on an invalid binding
func MustNew[M any, C any, U shared.Updatable, R any](db *gorm.DB, binding Binding[M, C, R], opts ...Option) *Base[M, C, U, R] {
	b, err := New[M, C, U](db, binding, opts...)
	if err != nil {
		panic(err)
	}
	return b
}

// Table returns the table name of the bound model
func (b *Base[M, C, U, R]) Table() string {
	return b.schema.Table
}

// DB returns the bound session
func (b *Base[M, C, U, R]) DB() *gorm.DB {
	return b.db
}

// Add validates in, inserts the record it describes, commits, and returns the
// record as reloaded from the store.
func (b *Base[M, C, U, R]) Add(ctx context.Context, in C) (_ *R, err error) {
	ctx, span := b.startSpan(ctx, "add")
	defer func() { endSpan(span, err) }()

	if err := b.validator.Struct(in); err != nil {
		return nil, err
	}

	record := b.binding.FromCreate(in)
	if err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Omit(clause.Associations).Create(record).Error
	}); err != nil {
		b.log(ctx).Warn("Insert failed", zap.Error(err))
		return nil, err
	}

	id, _ := b.idOf(ctx, record)
	fresh, err := b.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if fresh == nil {
		return nil, fmt.Errorf("crud: %s %v vanished after insert", b.schema.Table, id)
	}

	b.log(ctx).Debug("Record added", zap.Any("id", id))
	out := b.binding.ToRead(fresh)
	return &out, nil
}

// Update applies the fields provided in in to the record it identifies.
// Fields that were not provided keep their stored values; fields provided as
// null are written as NULL. Returns nil when the record does not exist.
func (b *Base[M, C, U, R]) Update(ctx context.Context, in U) (_ *R, err error) {
	ctx, span := b.startSpan(ctx, "update")
	defer func() { endSpan(span, err) }()

	if err := b.validator.Struct(in); err != nil {
		return nil, err
	}
	changes, err := b.assignments(in.Fields())
	if err != nil {
		return nil, err
	}

	current, err := b.find(ctx, in.Key())
	if err != nil || current == nil {
		return nil, err
	}

	if len(changes) > 0 {
		if err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return tx.Model(current).Omit(clause.Associations).Updates(changes).Error
		}); err != nil {
			b.log(ctx).Warn("Update failed", zap.Any("id", in.Key()), zap.Error(err))
			return nil, err
		}
	}

	fresh, err := b.find(ctx, in.Key())
	if err != nil || fresh == nil {
		return nil, err
	}

	b.log(ctx).Debug("Record updated", zap.Any("id", in.Key()), zap.Int("fields", len(changes)))
	out := b.binding.ToRead(fresh)
	return &out, nil
}

// Remove deletes the record with the given id together with its declared
// dependents and returns its state from before the delete. Returns nil when
// the record does not exist.
func (b *Base[M, C, U, R]) Remove(ctx context.Context, id any) (_ *R, err error) {
	ctx, span := b.startSpan(ctx, "remove")
	defer func() { endSpan(span, err) }()

	current, err := b.find(ctx, id)
	if err != nil || current == nil {
		return nil, err
	}
	snapshot := b.binding.ToRead(current)
	key, _ := b.idOf(ctx, current)

	var cascaded int64
	if err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, dep := range b.binding.Cascade {
			res := tx.Where(clause.Eq{Column: clause.Column{Name: dep.ForeignKey}, Value: key}).Delete(dep.Model)
			if res.Error != nil {
				return res.Error
			}
			cascaded += res.RowsAffected
		}
		return tx.Omit(clause.Associations).Delete(current).Error
	}); err != nil {
		b.log(ctx).Warn("Delete failed", zap.Any("id", key), zap.Error(err))
		return nil, err
	}

	b.log(ctx).Debug("Record removed", zap.Any("id", key), zap.Int64("cascaded", cascaded))
	return &snapshot, nil
}

// Get returns the record with the given id, or nil when none exists
func (b *Base[M, C, U, R]) Get(ctx context.Context, id any) (_ *R, err error) {
	ctx, span := b.startSpan(ctx, "get")
	defer func() { endSpan(span, err) }()

	record, err := b.find(ctx, id)
	if err != nil || record == nil {
		return nil, err
	}
	out := b.binding.ToRead(record)
	return &out, nil
}

// GetMultiple returns the records matching q, ordered then paginated.
// An empty result is an empty slice, not an error.
func (b *Base[M, C, U, R]) GetMultiple(ctx context.Context, q shared.Query) (_ []R, err error) {
	ctx, span := b.startSpan(ctx, "get_multiple")
	defer func() { endSpan(span, err) }()

	tx, err := b.listQuery(b.preloaded(ctx), q)
	if err != nil {
		return nil, err
	}

	var records []M
	if err := tx.Find(&records).Error; err != nil {
		return nil, err
	}

	out := make([]R, 0, len(records))
	for i := range records {
		out = append(out, b.binding.ToRead(&records[i]))
	}
	span.SetAttributes(attribute.Int("db.result_count", len(out)))
	return out, nil
}

// Count returns the number of records matching f without loading them
func (b *Base[M, C, U, R]) Count(ctx context.Context, f shared.Filter) (_ int64, err error) {
	ctx, span := b.startSpan(ctx, "count")
	defer func() { endSpan(span, err) }()

	tx, err := b.applyFilter(b.db.WithContext(ctx).Model(new(M)), f)
	if err != nil {
		return 0, err
	}

	var count int64
	if err := tx.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// find loads a record by primary key with preloads. A missing record is
// reported as nil without an error.
func (b *Base[M, C, U, R]) find(ctx context.Context, id any) (*M, error) {
	record := new(M)
	err := b.preloaded(ctx).
		Where(clause.Eq{Column: b.pkColumn(), Value: id}).
		Take(record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

// preloaded returns a context-bound session with the binding's preloads
func (b *Base[M, C, U, R]) preloaded(ctx context.Context) *gorm.DB {
	tx := b.db.WithContext(ctx)
	for _, rel := range b.binding.Preload {
		tx = tx.Preload(rel)
	}
	return tx
}

func (b *Base[M, C, U, R]) pkColumn() clause.Column {
	return clause.Column{Table: clause.CurrentTable, Name: b.pk.DBName}
}

// idOf reads the primary key value of a loaded record
func (b *Base[M, C, U, R]) idOf(ctx context.Context, record *M) (any, bool) {
	v, zero := b.pk.ValueOf(ctx, reflect.ValueOf(record).Elem())
	return v, !zero
}

// log returns the operation logger enriched with trace correlation fields
func (b *Base[M, C, U, R]) log(ctx context.Context) *zap.Logger {
	return logger.WithTraceContext(ctx, b.logger)
}

func (b *Base[M, C, U, R]) startSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return b.tracer.Start(ctx, "crud."+b.schema.Table+"."+op,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("db.sql.table", b.schema.Table),
			attribute.String("crud.operation", op),
		),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
