// Package parser reads the textual condition format produced by
// entities.Condition.String, one predicate per line:
//
//	User.niveau_plongee in "niveau2,niveau3" : "Level 2 or 3 required"
//	User.age >= 18
//	User.certificat_medical exists
package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/divingclub/clubattrs/internal/entities"
)

var symbolOperators = map[TokenType]entities.Operator{
	TOKEN_EQ:  entities.OperatorEq,
	TOKEN_NEQ: entities.OperatorNeq,
	TOKEN_LT:  entities.OperatorLt,
	TOKEN_LTE: entities.OperatorLte,
	TOKEN_GT:  entities.OperatorGt,
	TOKEN_GTE: entities.OperatorGte,
}

// Parser turns condition expressions into entities.Condition values.
// The returned conditions carry no owner action and are active.
type Parser struct {
	lexer   *Lexer
	current *Token
	peek    *Token
	errors  []string
}

// NewParser creates a new Parser
func NewParser(lexer *Lexer) *Parser {
	p := &Parser{
		lexer:  lexer,
		errors: []string{},
	}

	// Read two tokens to initialize current and peek
	p.nextToken()
	p.nextToken()

	return p
}

func (p *Parser) nextToken() {
	p.current = p.peek
	tok, err := p.lexer.NextToken()
	if err != nil {
		p.errors = append(p.errors, err.Error())
		p.peek = &Token{Type: TOKEN_EOF}
	} else {
		p.peek = tok
	}
}

func (p *Parser) currentTokenIs(t TokenType) bool {
	return p.current != nil && p.current.Type == t
}

func (p *Parser) peekTokenIs(t TokenType) bool {
	return p.peek != nil && p.peek.Type == t
}

func (p *Parser) expectPeek(t TokenType) bool {
	if p.peekTokenIs(t) {
		p.nextToken()
		return true
	}
	p.peekError(t)
	return false
}

func (p *Parser) peekError(t TokenType) {
	msg := fmt.Sprintf("expected next token to be %s, got %s instead at %d:%d",
		tokenNames[t], tokenNames[p.peek.Type], p.peek.Line, p.peek.Column)
	p.errors = append(p.errors, msg)
}

func (p *Parser) atSeparator() bool {
	return p.currentTokenIs(TOKEN_NEWLINE) || p.currentTokenIs(TOKEN_SEMICOLON) || p.currentTokenIs(TOKEN_EOF)
}

func (p *Parser) peekIsSeparator() bool {
	return p.peekTokenIs(TOKEN_NEWLINE) || p.peekTokenIs(TOKEN_SEMICOLON) || p.peekTokenIs(TOKEN_EOF)
}

func (p *Parser) peekIsOperand() bool {
	return p.peekTokenIs(TOKEN_STRING) || p.peekTokenIs(TOKEN_NUMBER) || p.peekTokenIs(TOKEN_IDENTIFIER)
}

// skipStatement advances to the next separator after an error.
func (p *Parser) skipStatement() {
	for !p.atSeparator() {
		p.nextToken()
	}
}

// Parse reads every condition in the input. All syntax errors are
// reported together, wrapped in entities.ErrInvalidCondition.
func (p *Parser) Parse() ([]*entities.Condition, error) {
	conds := []*entities.Condition{}

	for !p.currentTokenIs(TOKEN_EOF) {
		if p.atSeparator() {
			p.nextToken()
			continue
		}
		before := len(p.errors)
		c := p.parseCondition()
		if c != nil && len(p.errors) == before {
			conds = append(conds, c)
		} else {
			p.skipStatement()
		}
		if !p.atSeparator() {
			p.errors = append(p.errors, fmt.Sprintf("unexpected %s at %d:%d",
				tokenNames[p.current.Type], p.current.Line, p.current.Column))
			p.skipStatement()
		}
	}

	if len(p.errors) > 0 {
		return nil, fmt.Errorf("%w: %s", entities.ErrInvalidCondition, strings.Join(p.errors, "; "))
	}
	return conds, nil
}

// parseCondition leaves current on the token after the condition.
func (p *Parser) parseCondition() *entities.Condition {
	if !p.currentTokenIs(TOKEN_IDENTIFIER) {
		p.errors = append(p.errors, fmt.Sprintf("expected entity kind, got %s at %d:%d",
			tokenNames[p.current.Type], p.current.Line, p.current.Column))
		return nil
	}
	c := &entities.Condition{TargetEntityKind: p.current.Value, Active: true}

	if !p.expectPeek(TOKEN_DOT) || !p.expectPeek(TOKEN_IDENTIFIER) {
		return nil
	}
	c.AttributeName = p.current.Value

	p.nextToken()
	op, ok := p.parseOperator()
	if !ok {
		return nil
	}
	c.Operator = op

	wantsOperand := !op.IsKnown() || op.NeedsOperand()
	if wantsOperand && p.peekIsOperand() {
		p.nextToken()
		operand, err := p.literal()
		if err != nil {
			p.errors = append(p.errors, err.Error())
			return nil
		}
		c.Operand = &operand
	} else if op.IsKnown() && op.NeedsOperand() {
		p.errors = append(p.errors, fmt.Sprintf("operator %s requires an operand at %d:%d",
			op, p.peek.Line, p.peek.Column))
		return nil
	}

	if p.peekTokenIs(TOKEN_COLON) {
		p.nextToken()
		if !p.expectPeek(TOKEN_STRING) {
			return nil
		}
		msg, err := p.literal()
		if err != nil {
			p.errors = append(p.errors, err.Error())
			return nil
		}
		c.ErrorMessage = &msg
	}

	if !p.peekIsSeparator() {
		p.errors = append(p.errors, fmt.Sprintf("unexpected %s after condition at %d:%d",
			tokenNames[p.peek.Type], p.peek.Line, p.peek.Column))
		return nil
	}
	p.nextToken()
	return c
}

func (p *Parser) parseOperator() (entities.Operator, bool) {
	if op, ok := symbolOperators[p.current.Type]; ok {
		return op, true
	}
	if p.currentTokenIs(TOKEN_IDENTIFIER) {
		return entities.Operator(p.current.Value), true
	}
	p.errors = append(p.errors, fmt.Sprintf("expected operator, got %s at %d:%d",
		tokenNames[p.current.Type], p.current.Line, p.current.Column))
	return "", false
}

func (p *Parser) literal() (string, error) {
	if !p.currentTokenIs(TOKEN_STRING) {
		return p.current.Value, nil
	}
	s, err := strconv.Unquote(p.current.Value)
	if err != nil {
		return "", fmt.Errorf("invalid string literal at %d:%d", p.current.Line, p.current.Column)
	}
	return s, nil
}

// Parse is shorthand for NewParser(NewLexer(input)).Parse().
func Parse(input string) ([]*entities.Condition, error) {
	return NewParser(NewLexer(input)).Parse()
}

// ErrNotSingle is returned by ParseCondition when the input holds zero or
// several conditions.
var ErrNotSingle = errors.New("expected exactly one condition")

// ParseCondition parses an input holding exactly one condition.
func ParseCondition(input string) (*entities.Condition, error) {
	conds, err := Parse(input)
	if err != nil {
		return nil, err
	}
	if len(conds) != 1 {
		return nil, fmt.Errorf("%w: %w, got %d", entities.ErrInvalidCondition, ErrNotSingle, len(conds))
	}
	return conds[0], nil
}
