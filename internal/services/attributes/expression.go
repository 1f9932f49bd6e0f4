package attributes

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// ExpressionEngine compiles and evaluates CEL boolean expressions used by
// the "expression" validation rule. The candidate value is bound to the
// variable `value`.
type ExpressionEngine struct {
	env      *cel.Env
	programs sync.Map // expression -> cel.Program
}

// NewExpressionEngine creates the CEL environment.
func NewExpressionEngine() (*ExpressionEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("value", cel.DynType),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &ExpressionEngine{env: env}, nil
}

// Evaluate runs expression against value.
func (e *ExpressionEngine) Evaluate(expression string, value any) (bool, error) {
	program, err := e.program(expression)
	if err != nil {
		return false, err
	}

	result, _, err := program.Eval(map[string]any{"value": value})
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	b, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not evaluate to boolean, got: %T", result.Value())
	}
	return b, nil
}

// ValidateExpression checks that expression compiles to a boolean (or dyn)
// result without evaluating it.
func (e *ExpressionEngine) ValidateExpression(expression string) error {
	_, err := e.compile(expression)
	return err
}

func (e *ExpressionEngine) compile(expression string) (*cel.Ast, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("invalid CEL expression: %w", issues.Err())
	}

	out := ast.OutputType()
	if !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("CEL expression must return boolean, got: %s", out)
	}
	return ast, nil
}

func (e *ExpressionEngine) program(expression string) (cel.Program, error) {
	if p, ok := e.programs.Load(expression); ok {
		return p.(cel.Program), nil
	}

	ast, err := e.compile(expression)
	if err != nil {
		return nil, err
	}
	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	e.programs.Store(expression, program)
	return program, nil
}
