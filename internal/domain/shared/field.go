package shared

import (
	"bytes"
	"encoding/json"
)

// Field is a presence-tracking wrapper for update inputs.
//
// The zero value is unset: the stored value must be left alone. A field built
// with Set carries a new value, and one built with Null asks the store to
// overwrite the column with NULL. The JSON form keeps the three states apart:
// an absent key never reaches UnmarshalJSON and stays unset, while a literal
// null becomes an explicit null.
type Field[T any] struct {
	value T
	set   bool
	null  bool
}

// Set returns a field explicitly set to v
func Set[T any](v T) Field[T] {
	return Field[T]{value: v, set: true}
}

// Null returns a field explicitly set to null
func Null[T any]() Field[T] {
	return Field[T]{set: true, null: true}
}

// IsSet reports whether the field was provided, including as null
func (f Field[T]) IsSet() bool {
	return f.set
}

// IsNull reports whether the field was explicitly provided as null
func (f Field[T]) IsNull() bool {
	return f.set && f.null
}

// Get returns the value and whether a non-null value is present
func (f Field[T]) Get() (T, bool) {
	return f.value, f.set && !f.null
}

// Value returns the value to store: nil for an explicit null, the wrapped
// value otherwise. Callers must check IsSet first.
func (f Field[T]) Value() any {
	if f.null {
		return nil
	}
	return f.value
}

// MarshalJSON encodes null for unset and null fields
func (f Field[T]) MarshalJSON() ([]byte, error) {
	if !f.set || f.null {
		return []byte("null"), nil
	}
	return json.Marshal(f.value)
}

// UnmarshalJSON marks the field as set; a literal null marks it null
func (f *Field[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		var zero T
		*f = Field[T]{value: zero, set: true, null: true}
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Field[T]{value: v, set: true}
	return nil
}

// Changes collects the set fields of an update input into a field name to
// value mapping. Explicit nulls map to nil; unset fields are omitted.
type Changes map[string]any

// Put records f under name when it was provided
func Put[T any](c Changes, name string, f Field[T]) {
	if f.IsSet() {
		c[name] = f.Value()
	}
}
