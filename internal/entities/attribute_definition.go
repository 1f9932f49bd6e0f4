package entities

import (
	"fmt"
	"strings"
	"time"
)

// Validation rule keys understood by AttributeDefinition.ValidationRules.
const (
	RuleMinLength        = "minLength"
	RuleMaxLength        = "maxLength"
	RulePattern          = "pattern"
	RuleMin              = "min"
	RuleMax              = "max"
	RuleAllowedMimeTypes = "allowedMimeTypes"
	RuleMaxSize          = "maxSize"
	RuleExpression       = "expression"
)

var knownRules = map[string]bool{
	RuleMinLength:        true,
	RuleMaxLength:        true,
	RulePattern:          true,
	RuleMin:              true,
	RuleMax:              true,
	RuleAllowedMimeTypes: true,
	RuleMaxSize:          true,
	RuleExpression:       true,
}

// AttributeDefinition describes an attribute slot for an entity kind.
// Example: User.niveau_plongee is a select among debutant, niveau1, niveau2.
type AttributeDefinition struct {
	ID              int64
	EntityKind      string         // Logical entity kind (e.g., "User", "Event")
	AttributeKey    string         // Attribute key (e.g., "niveau_plongee")
	DisplayName     string         // Label shown in forms
	ValueType       ValueType      // Declared type
	Required        bool           // Whether a value must be provided
	DefaultValue    *string        // Raw default, decoded with ValueType
	Options         []string       // Valid choices when ValueType is select
	ValidationRules map[string]any // minLength, maxLength, pattern, min, max, ...
	Active          bool           // Soft-delete flag
	DisplayOrder    int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// String returns kind.key, e.g. "User.niveau_plongee".
func (d *AttributeDefinition) String() string {
	return d.EntityKind + "." + d.AttributeKey
}

// Validate checks the metadata invariants of a definition.
// Violations are reported as *DefinitionConflictError.
func (d *AttributeDefinition) Validate() error {
	conflict := func(reason string) error {
		return &DefinitionConflictError{EntityKind: d.EntityKind, AttributeKey: d.AttributeKey, Reason: reason}
	}

	if strings.TrimSpace(d.EntityKind) == "" {
		return conflict("entity kind is required")
	}
	if strings.TrimSpace(d.AttributeKey) == "" {
		return conflict("attribute key is required")
	}
	if strings.TrimSpace(d.DisplayName) == "" {
		return conflict("display name is required")
	}
	if !d.ValueType.IsValid() {
		return conflict(fmt.Sprintf("unknown value type %q", d.ValueType))
	}

	if d.ValueType == ValueTypeSelect {
		if len(d.Options) == 0 {
			return conflict("select attributes require at least one option")
		}
		seen := make(map[string]bool, len(d.Options))
		for _, opt := range d.Options {
			if opt == "" {
				return conflict("select options must not be empty")
			}
			if seen[opt] {
				return conflict(fmt.Sprintf("duplicate option %q", opt))
			}
			seen[opt] = true
		}
	}

	for rule := range d.ValidationRules {
		if !knownRules[rule] {
			return conflict(fmt.Sprintf("unknown validation rule %q", rule))
		}
	}

	return nil
}

// HasOption reports whether s is one of the select options.
func (d *AttributeDefinition) HasOption(s string) bool {
	for _, opt := range d.Options {
		if opt == s {
			return true
		}
	}
	return false
}
