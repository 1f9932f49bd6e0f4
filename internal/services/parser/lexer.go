package parser

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// TokenType represents the type of a token
type TokenType int

const (
	TOKEN_ILLEGAL TokenType = iota
	TOKEN_EOF

	// Identifiers and literals
	TOKEN_IDENTIFIER
	TOKEN_STRING // Quoted, escapes preserved in Value
	TOKEN_NUMBER

	// Comparison operators
	TOKEN_EQ  // ==
	TOKEN_NEQ // !=
	TOKEN_LT  // <
	TOKEN_LTE // <=
	TOKEN_GT  // >
	TOKEN_GTE // >=

	// Delimiters
	TOKEN_DOT
	TOKEN_COLON
	TOKEN_SEMICOLON
	TOKEN_NEWLINE
)

var tokenNames = map[TokenType]string{
	TOKEN_ILLEGAL:    "ILLEGAL",
	TOKEN_EOF:        "EOF",
	TOKEN_IDENTIFIER: "IDENTIFIER",
	TOKEN_STRING:     "STRING",
	TOKEN_NUMBER:     "NUMBER",
	TOKEN_EQ:         "==",
	TOKEN_NEQ:        "!=",
	TOKEN_LT:         "<",
	TOKEN_LTE:        "<=",
	TOKEN_GT:         ">",
	TOKEN_GTE:        ">=",
	TOKEN_DOT:        ".",
	TOKEN_COLON:      ":",
	TOKEN_SEMICOLON:  ";",
	TOKEN_NEWLINE:    "NEWLINE",
}

// Token represents a lexical token
type Token struct {
	Type   TokenType
	Value  string
	Line   int
	Column int
}

// String returns a string representation of the token
func (t *Token) String() string {
	typeName := tokenNames[t.Type]
	if typeName == "" {
		typeName = fmt.Sprintf("UNKNOWN(%d)", t.Type)
	}
	return fmt.Sprintf("%s(%s) at %d:%d", typeName, t.Value, t.Line, t.Column)
}

// Lexer splits condition expressions into tokens.
type Lexer struct {
	input        string
	position     int  // byte offset of ch
	readPosition int  // byte offset after ch
	ch           rune // current rune under examination
	line         int
	column       int
}

// NewLexer creates a new Lexer
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input:  input,
		line:   1,
		column: 0,
	}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	l.position = l.readPosition
	if l.readPosition >= len(l.input) {
		l.ch = 0 // EOF
	} else {
		r, width := utf8.DecodeRuneInString(l.input[l.readPosition:])
		l.ch = r
		l.readPosition += width
	}
	l.column++
}

func (l *Lexer) peekChar() rune {
	if l.readPosition >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPosition:])
	return r
}

// skipBlank skips spaces and tabs; newlines are significant.
func (l *Lexer) skipBlank() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\r' {
		l.readChar()
	}
}

func (l *Lexer) skipComment() {
	for l.ch != '\n' && l.ch != 0 {
		l.readChar()
	}
}

func (l *Lexer) readIdentifier() string {
	position := l.position
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}
	return l.input[position:l.position]
}

func (l *Lexer) readNumber() string {
	position := l.position
	if l.ch == '-' {
		l.readChar()
	}
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	return l.input[position:l.position]
}

// readString returns the literal including its quotes so the parser can
// unquote Go-style escapes.
func (l *Lexer) readString() (string, bool) {
	position := l.position
	for {
		l.readChar()
		switch l.ch {
		case '\\':
			l.readChar()
		case '"':
			l.readChar()
			return l.input[position:l.position], true
		case 0, '\n':
			return l.input[position:l.position], false
		}
	}
}

// NextToken returns the next token
func (l *Lexer) NextToken() (*Token, error) {
	for {
		l.skipBlank()
		if l.ch == '/' && l.peekChar() == '/' {
			l.skipComment()
		} else if l.ch == '#' {
			l.skipComment()
		} else {
			break
		}
	}

	line := l.line
	column := l.column
	two := func(next rune, double, single TokenType, dv, sv string) *Token {
		if l.peekChar() == next {
			l.readChar()
			l.readChar()
			return &Token{Type: double, Value: dv, Line: line, Column: column}
		}
		l.readChar()
		return &Token{Type: single, Value: sv, Line: line, Column: column}
	}

	switch l.ch {
	case '=':
		if l.peekChar() != '=' {
			return nil, fmt.Errorf("illegal character '=' at %d:%d (use ==)", line, column)
		}
		return two('=', TOKEN_EQ, TOKEN_ILLEGAL, "==", "="), nil
	case '!':
		if l.peekChar() != '=' {
			return nil, fmt.Errorf("illegal character '!' at %d:%d", line, column)
		}
		return two('=', TOKEN_NEQ, TOKEN_ILLEGAL, "!=", "!"), nil
	case '<':
		return two('=', TOKEN_LTE, TOKEN_LT, "<=", "<"), nil
	case '>':
		return two('=', TOKEN_GTE, TOKEN_GT, ">=", ">"), nil
	case '.':
		l.readChar()
		return &Token{Type: TOKEN_DOT, Value: ".", Line: line, Column: column}, nil
	case ':':
		l.readChar()
		return &Token{Type: TOKEN_COLON, Value: ":", Line: line, Column: column}, nil
	case ';':
		l.readChar()
		return &Token{Type: TOKEN_SEMICOLON, Value: ";", Line: line, Column: column}, nil
	case '\n':
		l.readChar()
		l.line++
		l.column = 1
		return &Token{Type: TOKEN_NEWLINE, Value: "\n", Line: line, Column: column}, nil
	case '"':
		value, ok := l.readString()
		if !ok {
			return nil, fmt.Errorf("unterminated string at %d:%d", line, column)
		}
		return &Token{Type: TOKEN_STRING, Value: value, Line: line, Column: column}, nil
	case 0:
		return &Token{Type: TOKEN_EOF, Value: "", Line: line, Column: column}, nil
	}

	switch {
	case isLetter(l.ch) || l.ch == '_':
		return &Token{Type: TOKEN_IDENTIFIER, Value: l.readIdentifier(), Line: line, Column: column}, nil
	case isDigit(l.ch) || (l.ch == '-' && isDigit(l.peekChar())):
		return &Token{Type: TOKEN_NUMBER, Value: l.readNumber(), Line: line, Column: column}, nil
	default:
		return nil, fmt.Errorf("illegal character '%c' at %d:%d", l.ch, line, column)
	}
}

func isLetter(ch rune) bool {
	return unicode.IsLetter(ch)
}

// isDigit accepts ASCII digits only so numbers stay plain decimals.
func isDigit(ch rune) bool {
	return '0' <= ch && ch <= '9'
}
