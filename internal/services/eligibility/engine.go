// Package eligibility evaluates the conditions that gate club actions such
// as event registration.
//
// Evaluation is total: malformed values, missing attributes and store
// failures all degrade to a defined boolean instead of an error, so a
// misconfigured rule never aborts the surrounding request.
package eligibility

import (
	"context"
	"log/slog"
	"reflect"
	"strconv"
	"strings"

	"github.com/divingclub/clubattrs/internal/entities"
	"github.com/divingclub/clubattrs/internal/infrastructure/logging"
	"github.com/divingclub/clubattrs/internal/services/codec"
)

// UnknownOperatorPolicy decides the result of an operator the engine does
// not know.
type UnknownOperatorPolicy string

const (
	UnknownOperatorAllow UnknownOperatorPolicy = "allow"
	UnknownOperatorDeny  UnknownOperatorPolicy = "deny"
)

// Policy holds the evaluation switches.
type Policy struct {
	UnknownOperator UnknownOperatorPolicy
	// EAVFallback reads the attribute store when no native accessor matches.
	EAVFallback bool
	// StrictEquality disables cross-type equality for eq/neq.
	StrictEquality bool
}

// DefaultPolicy is permissive on unknown operators, loose on equality and
// falls back to the attribute store.
func DefaultPolicy() Policy {
	return Policy{UnknownOperator: UnknownOperatorAllow, EAVFallback: true}
}

// ValueReader reads typed EAV values. *attributes.Store implements it.
type ValueReader interface {
	Get(ctx context.Context, ownerKind string, ownerID int64, attributeKey string) (entities.Value, error)
}

// EvaluationRecorder observes evaluation outcomes.
type EvaluationRecorder interface {
	RecordEvaluation(operator string, result bool)
}

// Engine evaluates single conditions against entity instances.
type Engine struct {
	resolvers *Resolvers
	values    ValueReader
	policy    Policy
	recorder  EvaluationRecorder
	logger    *slog.Logger
}

// NewEngine creates an engine. values may be nil when EAV fallback is not
// wanted; recorder and logger may be nil.
func NewEngine(resolvers *Resolvers, values ValueReader, policy Policy, recorder EvaluationRecorder, logger *slog.Logger) *Engine {
	if resolvers == nil {
		resolvers = NewResolvers()
	}
	if policy.UnknownOperator == "" {
		policy.UnknownOperator = UnknownOperatorAllow
	}
	return &Engine{
		resolvers: resolvers,
		values:    values,
		policy:    policy,
		recorder:  recorder,
		logger:    logging.OrDiscard(logger),
	}
}

// Policy returns the active policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Evaluate reports whether inst satisfies cond. A condition targeting
// another entity kind is not applicable and evaluates to false.
func (e *Engine) Evaluate(ctx context.Context, cond *entities.Condition, inst entities.Instance) bool {
	result := e.evaluate(ctx, cond, inst)
	if e.recorder != nil && cond != nil {
		e.recorder.RecordEvaluation(string(cond.Operator), result)
	}
	return result
}

func (e *Engine) evaluate(ctx context.Context, cond *entities.Condition, inst entities.Instance) bool {
	if cond == nil || isNilInstance(inst) {
		return false
	}
	if inst.EntityKind() != cond.TargetEntityKind {
		e.logger.Debug("condition not applicable",
			"condition_id", cond.ID,
			"target_kind", cond.TargetEntityKind,
			"instance_kind", inst.EntityKind(),
		)
		return false
	}

	left := e.resolve(ctx, inst, cond.AttributeName)
	return e.apply(cond, left)
}

// isNilInstance also catches typed nil pointers such as (*entities.User)(nil).
func isNilInstance(inst entities.Instance) bool {
	if inst == nil {
		return true
	}
	v := reflect.ValueOf(inst)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

// resolve looks the attribute up on the native accessors first, then in
// the EAV store keyed by the instance's kind and id.
func (e *Engine) resolve(ctx context.Context, inst entities.Instance, name string) entities.Value {
	if v, ok := e.resolvers.Resolve(inst, name); ok {
		return v
	}
	if !e.policy.EAVFallback || e.values == nil || inst.EntityID() <= 0 {
		return entities.Null()
	}

	v, err := e.values.Get(ctx, inst.EntityKind(), inst.EntityID(), name)
	if err != nil {
		e.logger.Warn("attribute lookup failed during evaluation",
			"owner_kind", inst.EntityKind(),
			"owner_id", inst.EntityID(),
			"attribute", name,
			"error", err,
		)
		return entities.Null()
	}
	return v
}

func (e *Engine) apply(cond *entities.Condition, left entities.Value) bool {
	operand := cond.OperandText()

	switch cond.Operator {
	case entities.OperatorEq:
		return e.equal(left, operand)
	case entities.OperatorNeq:
		return !e.equal(left, operand)
	case entities.OperatorGt, entities.OperatorGte, entities.OperatorLt, entities.OperatorLte:
		return compareNumbers(cond.Operator, left, operand)
	case entities.OperatorContains:
		return strings.Contains(left.Text(), operand)
	case entities.OperatorNotContains:
		return !strings.Contains(left.Text(), operand)
	case entities.OperatorIn:
		return inList(left, operand)
	case entities.OperatorNotIn:
		return !inList(left, operand)
	case entities.OperatorExists:
		return !left.IsEmpty()
	case entities.OperatorNotExists:
		return left.IsEmpty()
	default:
		allowed := e.policy.UnknownOperator != UnknownOperatorDeny
		e.logger.Warn("unknown condition operator",
			"condition_id", cond.ID,
			"operator", string(cond.Operator),
			"allowed", allowed,
		)
		return allowed
	}
}

func (e *Engine) equal(left entities.Value, operand string) bool {
	if e.policy.StrictEquality {
		return strictEqual(left, operand)
	}
	return looseEqual(left, operand)
}

// looseEqual compares across types: numeric text equals the number it
// spells, booleans compare by truthiness and dates by instant.
func looseEqual(left entities.Value, operand string) bool {
	switch left.Kind() {
	case entities.KindNull:
		return operand == ""
	case entities.KindBool:
		b, _ := left.AsBool()
		return b == codec.IsTruthy(operand)
	case entities.KindNumber:
		n, _ := left.AsNumber()
		if m, ok := codec.ParseNumber(operand); ok {
			return n == m
		}
		return left.Text() == operand
	case entities.KindString:
		s, _ := left.AsString()
		if a, ok := codec.ParseNumber(s); ok {
			if b, ok := codec.ParseNumber(operand); ok {
				return a == b
			}
		}
		return s == operand
	case entities.KindDate:
		t, _ := left.AsDate()
		if o, ok := codec.ParseDate(operand); ok {
			return t.Equal(o)
		}
		return left.Text() == operand
	default:
		return left.Text() == operand
	}
}

// strictEqual requires the canonical text to match exactly. Booleans read
// as true/false; null never matches.
func strictEqual(left entities.Value, operand string) bool {
	switch left.Kind() {
	case entities.KindNull:
		return false
	case entities.KindBool:
		b, _ := left.AsBool()
		return strconv.FormatBool(b) == operand
	default:
		return left.Text() == operand
	}
}

// compareNumbers is false unless both sides are numeric.
func compareNumbers(op entities.Operator, left entities.Value, operand string) bool {
	var a float64
	switch left.Kind() {
	case entities.KindNumber:
		a, _ = left.AsNumber()
	case entities.KindString:
		s, _ := left.AsString()
		n, ok := codec.ParseNumber(s)
		if !ok {
			return false
		}
		a = n
	default:
		return false
	}

	b, ok := codec.ParseNumber(operand)
	if !ok {
		return false
	}

	switch op {
	case entities.OperatorGt:
		return a > b
	case entities.OperatorGte:
		return a >= b
	case entities.OperatorLt:
		return a < b
	case entities.OperatorLte:
		return a <= b
	}
	return false
}

// inList tests membership of the string form of left in a comma separated
// operand. Items are trimmed; empty items are ignored.
func inList(left entities.Value, operand string) bool {
	needle := left.Text()
	for _, item := range strings.Split(operand, ",") {
		item = strings.TrimSpace(item)
		if item != "" && item == needle {
			return true
		}
	}
	return false
}
