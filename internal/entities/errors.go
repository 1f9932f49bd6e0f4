package entities

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDefinitionConflict is matched by every *DefinitionConflictError.
	ErrDefinitionConflict = errors.New("attribute definition conflict")
	// ErrDefinitionNotFound is returned when no definition exists for (entityKind, attributeKey).
	ErrDefinitionNotFound = errors.New("attribute definition not found")
	// ErrConditionNotFound is returned when a condition id does not exist.
	ErrConditionNotFound = errors.New("condition not found")
	// ErrInvalidCondition is returned when a condition fails its write-time checks.
	ErrInvalidCondition = errors.New("invalid condition")
)

// DefinitionConflictError reports a definition that cannot be stored:
// a duplicate (entityKind, attributeKey) or inconsistent metadata.
type DefinitionConflictError struct {
	EntityKind   string
	AttributeKey string
	Reason       string
}

func (e *DefinitionConflictError) Error() string {
	return fmt.Sprintf("attribute definition conflict for %s.%s: %s", e.EntityKind, e.AttributeKey, e.Reason)
}

// Is makes errors.Is(err, ErrDefinitionConflict) succeed.
func (e *DefinitionConflictError) Is(target error) bool {
	return target == ErrDefinitionConflict
}

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// Add appends a field error.
func (e *ValidationError) Add(field, rule, message string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Rule: rule, Message: message})
}
