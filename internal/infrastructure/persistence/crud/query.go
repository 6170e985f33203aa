package crud

import (
	"fmt"
	"maps"
	"reflect"
	"slices"

	"github.com/tenancy/backend/internal/domain/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// column resolves a field or column name against the model schema.
// Relationship fields and unknown names are rejected, which also keeps
// caller-supplied names out of the generated SQL.
func (b *Base[M, C, U, R]) column(name string) (*schema.Field, error) {
	field := b.schema.LookUpField(name)
	if field == nil || field.DBName == "" {
		return nil, fmt.Errorf("%w: %s.%s", shared.ErrUnknownField, b.schema.Table, name)
	}
	return field, nil
}

func (b *Base[M, C, U, R]) qualified(field *schema.Field) clause.Column {
	return clause.Column{Table: clause.CurrentTable, Name: field.DBName}
}

// assignments converts the provided fields of an update input into a column
// to value map. The primary key can never be assigned.
func (b *Base[M, C, U, R]) assignments(changes shared.Changes) (map[string]any, error) {
	out := make(map[string]any, len(changes))
	for name, value := range changes {
		field, err := b.column(name)
		if err != nil {
			return nil, err
		}
		if field.PrimaryKey {
			return nil, fmt.Errorf("%w: %s.%s", shared.ErrImmutableField, b.schema.Table, name)
		}
		out[field.DBName] = value
	}
	return out, nil
}

// applyFilter adds the equality and predicate conditions of f to tx
func (b *Base[M, C, U, R]) applyFilter(tx *gorm.DB, f shared.Filter) (*gorm.DB, error) {
	for _, name := range slices.Sorted(maps.Keys(f.Equal)) {
		field, err := b.column(name)
		if err != nil {
			return nil, err
		}
		tx = tx.Where(clause.Eq{Column: b.qualified(field), Value: f.Equal[name]})
	}

	for _, p := range f.Where {
		expr, err := b.predicate(p)
		if err != nil {
			return nil, err
		}
		tx = tx.Where(expr)
	}
	return tx, nil
}

// listQuery applies filtering, ordering and pagination, in that order
func (b *Base[M, C, U, R]) listQuery(tx *gorm.DB, q shared.Query) (*gorm.DB, error) {
	if q.Offset < 0 {
		return nil, fmt.Errorf("%w: offset must not be negative", shared.ErrInvalidInput)
	}
	if q.Limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", shared.ErrInvalidInput)
	}

	tx, err := b.applyFilter(tx, q.Filter)
	if err != nil {
		return nil, err
	}

	for _, name := range q.OrderBy {
		field, err := b.column(name)
		if err != nil {
			return nil, err
		}
		tx = tx.Order(clause.OrderByColumn{Column: b.qualified(field), Desc: q.OrderDesc})
	}

	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	if q.Offset > 0 {
		tx = tx.Offset(q.Offset)
	}
	return tx, nil
}

// predicate translates a structured predicate into a GORM clause
func (b *Base[M, C, U, R]) predicate(p shared.Predicate) (clause.Expression, error) {
	field, err := b.column(p.Field)
	if err != nil {
		return nil, err
	}
	col := b.qualified(field)

	switch p.Op {
	case shared.OpEq, "":
		return clause.Eq{Column: col, Value: p.Value}, nil
	case shared.OpNe:
		return clause.Neq{Column: col, Value: p.Value}, nil
	case shared.OpLt:
		return clause.Lt{Column: col, Value: p.Value}, nil
	case shared.OpLte:
		return clause.Lte{Column: col, Value: p.Value}, nil
	case shared.OpGt:
		return clause.Gt{Column: col, Value: p.Value}, nil
	case shared.OpGte:
		return clause.Gte{Column: col, Value: p.Value}, nil
	case shared.OpLike:
		return clause.Like{Column: col, Value: p.Value}, nil
	case shared.OpIsNull:
		return clause.Eq{Column: col, Value: nil}, nil
	case shared.OpNotNull:
		return clause.Neq{Column: col, Value: nil}, nil
	case shared.OpIn:
		values, err := toSlice(p.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", shared.ErrInvalidInput, p.Field, err)
		}
		return clause.IN{Column: col, Values: values}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported operator %q", shared.ErrInvalidInput, p.Op)
	}
}

// toSlice flattens any slice or array value into []any
func toSlice(v any) ([]any, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("in operator needs a slice, got %T", v)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}
