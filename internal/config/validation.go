package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// MaxEntityNameLength bounds workflow names.
const MaxEntityNameLength = 100

var entityNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors collects every problem found in one document so that
// they can be reported together.
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	switch len(ve) {
	case 0:
		return "no validation errors"
	case 1:
		return ve[0].Error()
	}

	messages := make([]string, len(ve))
	for i, err := range ve {
		messages[i] = err.Error()
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add records a problem with field. The optional value is the offending
// value.
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{Field: field, Value: val, Message: message})
}

// Check records err, if any, and reports whether it did. Errors that are
// not a ValidationError are recorded without a field.
func (ve *ValidationErrors) Check(err error) bool {
	if err == nil {
		return false
	}
	switch e := err.(type) {
	case ValidationError:
		*ve = append(*ve, e)
	case ValidationErrors:
		*ve = append(*ve, e...)
	default:
		*ve = append(*ve, ValidationError{Message: err.Error()})
	}
	return true
}

// OrNil returns ve as an error, or nil when it is empty.
func (ve ValidationErrors) OrNil() error {
	if ve.HasErrors() {
		return ve
	}
	return nil
}

// ValidateOneOf checks if a value is in a list of allowed values
func ValidateOneOf(field, value string, allowed []string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return ValidationError{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}

// ValidateMaxLength checks that value has at most maxLength characters.
func ValidateMaxLength(field, value string, maxLength int) error {
	if n := len([]rune(value)); n > maxLength {
		return ValidationError{
			Field:   field,
			Value:   n,
			Message: fmt.Sprintf("must not exceed %d characters", maxLength),
		}
	}
	return nil
}

// ValidatePositiveDuration checks that a duration is greater than zero
func ValidatePositiveDuration(field string, value time.Duration) error {
	if value <= 0 {
		return ValidationError{Field: field, Value: value, Message: "must be a positive duration"}
	}
	return nil
}

// ValidateEntityName checks that name is usable as a workflow name: not
// empty, at most MaxEntityNameLength characters, letters, digits, dots,
// dashes and underscores only.
func ValidateEntityName(name, entityType string) error {
	if strings.TrimSpace(name) == "" {
		return ValidationError{Field: "name", Message: fmt.Sprintf("is required for %s", entityType)}
	}
	if err := ValidateMaxLength("name", name, MaxEntityNameLength); err != nil {
		return err
	}
	if strings.ContainsAny(name, " \t\r\n") {
		return ValidationError{Field: "name", Value: name, Message: "cannot contain whitespace"}
	}
	if !entityNamePattern.MatchString(name) {
		return ValidationError{
			Field:   "name",
			Value:   name,
			Message: "may only contain letters, digits, '.', '-' and '_' and must start with a letter or digit",
		}
	}
	return nil
}

// FormatValidationError prefixes err with the entity it belongs to.
func FormatValidationError(entityType, entityName string, err error) error {
	if err == nil {
		return nil
	}
	if entityName != "" {
		return fmt.Errorf("validation failed for %s '%s': %w", entityType, entityName, err)
	}
	return fmt.Errorf("validation failed for %s: %w", entityType, err)
}
