// Package validation is the boundary check for create and update shapes.
// It runs before any store interaction and reports failures as
// *shared.ValidationError.
package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/tenancy/backend/internal/domain/shared"
)

// Validator validates input shapes using struct tags
type Validator struct {
	validate *validator.Validate
}

// New creates a validator that reports json field names and understands
// shared.Field wrappers. Unset and null fields are skipped by omitempty rules;
// set fields are validated against their value, even when it is the zero value.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Use JSON tag names for field names in errors
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	v.RegisterCustomTypeFunc(unwrapField[string], shared.Field[string]{})
	v.RegisterCustomTypeFunc(unwrapField[uint], shared.Field[uint]{})

	return &Validator{validate: v}
}

// unwrapField exposes a set value as a non-nil pointer and anything else as a
// nil pointer, so omitempty only skips fields that were not provided.
func unwrapField[T any](field reflect.Value) any {
	f, ok := field.Interface().(shared.Field[T])
	if !ok {
		return (*T)(nil)
	}
	v, present := f.Get()
	if !present {
		return (*T)(nil)
	}
	return &v
}

// Struct validates s and converts rule failures into a ValidationError
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	details := make([]shared.FieldError, 0, len(validationErrors))
	for _, e := range validationErrors {
		details = append(details, shared.FieldError{
			Field:   e.Field(),
			Message: getValidationMessage(e),
		})
	}
	return shared.NewValidationError(details...)
}

// Decode strictly decodes a JSON document into T and validates it.
// Unknown fields are rejected.
func Decode[T any](v *Validator, data []byte) (T, error) {
	var out T

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, decodeError(err)
	}
	if dec.More() {
		return out, shared.NewValidationError(shared.FieldError{Field: "body", Message: "Unexpected data after JSON document"})
	}

	if err := v.Struct(out); err != nil {
		return out, err
	}
	return out, nil
}

// decodeError maps JSON decoding failures to field details
func decodeError(err error) error {
	msg := err.Error()
	if name, ok := strings.CutPrefix(msg, "json: unknown field "); ok {
		return shared.NewValidationError(shared.FieldError{
			Field:   strings.Trim(name, `"`),
			Message: "Unknown field",
		})
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return shared.NewValidationError(shared.FieldError{
			Field:   typeErr.Field,
			Message: "Must be of type " + typeErr.Type.String(),
		})
	}

	return shared.NewValidationError(shared.FieldError{Field: "body", Message: msg})
}

// getValidationMessage returns a human-readable validation message
func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "min":
		if e.Kind() == reflect.String {
			return "Must be at least " + e.Param() + " characters"
		}
		return "Must be at least " + e.Param()
	case "max":
		if e.Kind() == reflect.String {
			return "Must be at most " + e.Param() + " characters"
		}
		return "Must be at most " + e.Param()
	case "len":
		return "Must be exactly " + e.Param() + " characters"
	case "oneof":
		return "Must be one of: " + e.Param()
	case "gte":
		return "Must be greater than or equal to " + e.Param()
	case "lte":
		return "Must be less than or equal to " + e.Param()
	case "gt":
		return "Must be greater than " + e.Param()
	case "lt":
		return "Must be less than " + e.Param()
	default:
		return "Invalid value"
	}
}
