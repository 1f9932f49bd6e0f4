package entities

import (
	"fmt"
	"strings"
	"time"
)

// Operator names how a condition compares its left value to the operand.
type Operator string

const (
	OperatorEq          Operator = "eq"
	OperatorNeq         Operator = "neq"
	OperatorGt          Operator = "gt"
	OperatorGte         Operator = "gte"
	OperatorLt          Operator = "lt"
	OperatorLte         Operator = "lte"
	OperatorContains    Operator = "contains"
	OperatorNotContains Operator = "notContains"
	OperatorIn          Operator = "in"
	OperatorNotIn       Operator = "notIn"
	OperatorExists      Operator = "exists"
	OperatorNotExists   Operator = "notExists"
)

// Operators lists the known operators.
var Operators = []Operator{
	OperatorEq, OperatorNeq,
	OperatorGt, OperatorGte, OperatorLt, OperatorLte,
	OperatorContains, OperatorNotContains,
	OperatorIn, OperatorNotIn,
	OperatorExists, OperatorNotExists,
}

// IsKnown reports whether op is one of the supported operators.
func (op Operator) IsKnown() bool {
	for _, o := range Operators {
		if o == op {
			return true
		}
	}
	return false
}

// NeedsOperand reports whether op compares against a literal.
func (op Operator) NeedsOperand() bool {
	return op != OperatorExists && op != OperatorNotExists
}

// Condition is a single predicate attached to a gated action.
// Example: User.niveau_plongee in "niveau2,niveau3" for event 7
type Condition struct {
	ID               int64
	OwnerActionID    int64    // Gated action (e.g., event id)
	TargetEntityKind string   // Kind the predicate applies to (e.g., "User")
	AttributeName    string   // Native property or EAV key
	Operator         Operator // Comparison
	Operand          *string  // Right-hand literal; nil for exists/notExists
	ErrorMessage     *string  // Message shown when the condition fails
	Active           bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// String renders the predicate, e.g. `User.niveau_plongee in "niveau2,niveau3"`.
func (c *Condition) String() string {
	s := fmt.Sprintf("%s.%s %s", c.TargetEntityKind, c.AttributeName, c.Operator)
	if c.Operand != nil {
		s += fmt.Sprintf(" %q", *c.Operand)
	}
	return s
}

// OperandText returns the operand or "" when absent.
func (c *Condition) OperandText() string {
	if c.Operand == nil {
		return ""
	}
	return *c.Operand
}

// Validate checks the write-time invariants of a condition.
// Unknown operators are accepted; they are evaluated by policy.
func (c *Condition) Validate() error {
	if c.OwnerActionID <= 0 {
		return fmt.Errorf("%w: owner action ID must be positive", ErrInvalidCondition)
	}
	if strings.TrimSpace(c.TargetEntityKind) == "" {
		return fmt.Errorf("%w: target entity kind is required", ErrInvalidCondition)
	}
	if strings.TrimSpace(c.AttributeName) == "" {
		return fmt.Errorf("%w: attribute name is required", ErrInvalidCondition)
	}
	if c.Operator == "" {
		return fmt.Errorf("%w: operator is required", ErrInvalidCondition)
	}
	if c.Operator.NeedsOperand() && c.Operand == nil {
		return fmt.Errorf("%w: operator %s requires an operand", ErrInvalidCondition, c.Operator)
	}
	return nil
}
