package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldError is one user-correctable problem with a node payload.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e FieldError) Error() string {
	return e.Field + " " + e.Reason
}

// Errors aggregates every problem found in one validation pass.
type Errors []FieldError

func (e Errors) Error() string {
	parts := make([]string, len(e))
	for i, fieldErr := range e {
		parts[i] = fieldErr.Error()
	}

	return "validation failed: " + strings.Join(parts, "; ")
}

// Fields returns the failing field names in report order.
func (e Errors) Fields() []string {
	fields := make([]string, len(e))
	for i, fieldErr := range e {
		fields[i] = fieldErr.Field
	}

	return fields
}

// AsErrors extracts the aggregated field errors from err.
func AsErrors(err error) (Errors, bool) {
	var errs Errors
	if errors.As(err, &errs) {
		return errs, true
	}

	return nil, false
}

// Prefix qualifies every field with a parent path such as "nodes[greet]".
func (e Errors) Prefix(path string) Errors {
	prefixed := make(Errors, len(e))
	for i, fieldErr := range e {
		prefixed[i] = FieldError{Field: path + "." + fieldErr.Field, Reason: fieldErr.Reason}
	}

	return prefixed
}

func fromValidator(err error) Errors {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return Errors{{Field: "data", Reason: err.Error()}}
	}

	errs := make(Errors, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		errs = append(errs, FieldError{
			Field:  fieldPath(fieldErr.Namespace()),
			Reason: reason(fieldErr),
		})
	}

	return errs
}

// fieldPath drops the leading struct name: "TextData.buttons[0].title" -> "buttons[0].title".
func fieldPath(namespace string) string {
	if _, path, ok := strings.Cut(namespace, "."); ok {
		return path
	}

	return namespace
}

func reason(fieldErr validator.FieldError) string {
	switch fieldErr.Tag() {
	case "required":
		return "is required"
	case requiredForAction:
		return fmt.Sprintf("is required when actionType is %s", fieldErr.Param())
	case "max":
		if isCollection(fieldErr) {
			return fmt.Sprintf("must have at most %s items", fieldErr.Param())
		}

		return fmt.Sprintf("must be at most %s characters", fieldErr.Param())
	case "min":
		if isCollection(fieldErr) {
			return fmt.Sprintf("must have at least %s items", fieldErr.Param())
		}

		return fmt.Sprintf("must be at least %s characters", fieldErr.Param())
	case maxDelay:
		return fmt.Sprintf("must not wait longer than %s", fieldErr.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fieldErr.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fieldErr.Param(), " ", ", "))
	case "url":
		return "must be an absolute URL"
	case "unique":
		return "must not repeat ids"
	case "template":
		return "contains an invalid placeholder"
	case "varname":
		return "must start with a letter or underscore and contain only letters, digits and underscores"
	case "phone":
		return "must be a valid phone number"
	default:
		return fmt.Sprintf("failed %s validation", fieldErr.Tag())
	}
}

func isCollection(fieldErr validator.FieldError) bool {
	switch fieldErr.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return true
	default:
		return false
	}
}
