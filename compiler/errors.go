package compiler

import (
	"errors"
	"fmt"
)

// Source errors. All abort compilation.
var (
	ErrUnexpectedCharacter = errors.New("unexpected character")
	ErrUnexpectedToken     = errors.New("unexpected token")
	ErrUnexpectedEOF       = errors.New("unexpected end of input")
	ErrUnsupported         = errors.New("unsupported syntax")
	ErrTooManyArguments    = errors.New("too many arguments")
)

// SyntaxError reports a lexer or compiler failure at a source position.
type SyntaxError struct {
	Err     error     // one of the sentinel errors above
	Token   Token     // offending token; Literal holds the character for ErrUnexpectedCharacter
	Want    TokenType // expected token kind, valid when HasWant
	HasWant bool
	Pos     Position
}

func (e *SyntaxError) Error() string {
	switch {
	case e.Err == ErrUnexpectedCharacter:
		return fmt.Sprintf("%s: %v %q", e.Pos, e.Err, e.Token.Literal)
	case e.Err == ErrUnexpectedEOF && e.HasWant:
		return fmt.Sprintf("%s: %v, expected %s", e.Pos, e.Err, e.Want)
	case e.Err == ErrUnexpectedEOF:
		return fmt.Sprintf("%s: %v", e.Pos, e.Err)
	case e.HasWant:
		return fmt.Sprintf("%s: %v %s, expected %s", e.Pos, e.Err, e.Token, e.Want)
	default:
		return fmt.Sprintf("%s: %v %s", e.Pos, e.Err, e.Token)
	}
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}

func unexpected(tok Token) *SyntaxError {
	if tok.Type == TokenEOF {
		return &SyntaxError{Err: ErrUnexpectedEOF, Token: tok, Pos: tok.Pos}
	}
	return &SyntaxError{Err: ErrUnexpectedToken, Token: tok, Pos: tok.Pos}
}

func expected(tok Token, want TokenType) *SyntaxError {
	e := unexpected(tok)
	e.Want = want
	e.HasWant = true
	return e
}
