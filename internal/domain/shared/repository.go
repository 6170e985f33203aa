package shared

import "context"

// CRUD is the data-access contract shared by every entity family.
// ID is the identifier type; C, U and R are the create, update and read shapes.
// Get, Update and Remove return nil without an error when no record matches.
type CRUD[ID any, C any, U any, R any] interface {
	Add(ctx context.Context, in C) (*R, error)
	Update(ctx context.Context, in U) (*R, error)
	Remove(ctx context.Context, id ID) (*R, error)
	Get(ctx context.Context, id ID) (*R, error)
	GetMultiple(ctx context.Context, q Query) ([]R, error)
	Count(ctx context.Context, f Filter) (int64, error)
}

// Updatable is implemented by update shapes. Key identifies the target
// record; Fields reports only the fields the caller provided.
type Updatable interface {
	Key() any
	Fields() Changes
}

// Op is a predicate comparison operator
type Op string

// Supported predicate operators
const (
	OpEq      Op = "eq"
	OpNe      Op = "ne"
	OpLt      Op = "lt"
	OpLte     Op = "lte"
	OpGt      Op = "gt"
	OpGte     Op = "gte"
	OpLike    Op = "like"
	OpIn      Op = "in"
	OpIsNull  Op = "is_null"
	OpNotNull Op = "not_null"
)

// Predicate is a single comparison against a record field
type Predicate struct {
	Field string
	Op    Op
	Value any
}

// Filter selects records. Equal holds exact matches (a nil value matches
// NULL); Where holds arbitrary predicates. All conditions are ANDed.
type Filter struct {
	Equal map[string]any
	Where []Predicate
}

// Query extends Filter with ordering and pagination.
// OrderDesc applies to every OrderBy field. Limit 0 means unbounded.
type Query struct {
	Filter
	Offset    int
	Limit     int
	OrderBy   []string
	OrderDesc bool
}

// Eq is shorthand for an equality filter on a single field
func Eq(field string, value any) Filter {
	return Filter{Equal: map[string]any{field: value}}
}
