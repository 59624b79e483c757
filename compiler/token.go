package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota

	// Literals
	TokenNumber     // 42
	TokenString     // "hello"
	TokenIdentifier // foo, bar_2

	// Punctuation
	TokenDot       // .
	TokenEquals    // =
	TokenSemicolon // ;
	TokenLParen    // (
	TokenRParen    // )
	TokenComma     // ,
	TokenMinus     // -

	// Reserved words
	TokenTrue
	TokenFalse
	TokenNil
	TokenIf
	TokenThen
	TokenElse
	TokenElseIf
	TokenWhile
	TokenDo
	TokenEnd
	TokenAlloc
)

var tokenNames = map[TokenType]string{
	TokenEOF:        "EOF",
	TokenNumber:     "NUMBER",
	TokenString:     "STRING",
	TokenIdentifier: "IDENTIFIER",
	TokenDot:        ".",
	TokenEquals:     "=",
	TokenSemicolon:  ";",
	TokenLParen:     "(",
	TokenRParen:     ")",
	TokenComma:      ",",
	TokenMinus:      "-",
	TokenTrue:       "true",
	TokenFalse:      "false",
	TokenNil:        "nil",
	TokenIf:         "IF",
	TokenThen:       "THEN",
	TokenElse:       "ELSE",
	TokenElseIf:     "ELSEIF",
	TokenWhile:      "WHILE",
	TokenDo:         "DO",
	TokenEnd:        "END",
	TokenAlloc:      "ALLOC",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// IsKeyword reports whether t is a reserved word.
func (t TokenType) IsKeyword() bool {
	return t >= TokenTrue && t <= TokenAlloc
}

// Position is a location in source text. Line is 1-based, Column is
// 0-based and counts characters, not bytes.
type Position struct {
	Offset int // byte offset
	Line   int
	Column int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string   // the raw text; strings keep their quotes
	Pos     Position // start position
}

func (t Token) String() string {
	if t.Type == TokenEOF {
		return "EOF"
	}
	if len(t.Literal) > 20 {
		return fmt.Sprintf("%s(%q...)", t.Type, t.Literal[:20])
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}

// End returns the position just past the token, assuming it does not span
// lines.
func (t Token) End() Position {
	n := 0
	for range t.Literal {
		n++
	}
	return Position{Offset: t.Pos.Offset + len(t.Literal), Line: t.Pos.Line, Column: t.Pos.Column + n}
}

// Reserved words mapped to their token types. Matching is case-sensitive.
var reservedWords = map[string]TokenType{
	"true":   TokenTrue,
	"false":  TokenFalse,
	"nil":    TokenNil,
	"IF":     TokenIf,
	"THEN":   TokenThen,
	"ELSE":   TokenElse,
	"ELSEIF": TokenElseIf,
	"WHILE":  TokenWhile,
	"DO":     TokenDo,
	"END":    TokenEnd,
	"ALLOC":  TokenAlloc,
}

// Keywords returns the reserved words in declaration order.
func Keywords() []string {
	out := make([]string, 0, len(reservedWords))
	for t := TokenTrue; t <= TokenAlloc; t++ {
		out = append(out, tokenNames[t])
	}
	return out
}

// LookupIdent returns the keyword token type for ident, or TokenIdentifier.
func LookupIdent(ident string) TokenType {
	if t, ok := reservedWords[ident]; ok {
		return t
	}
	return TokenIdentifier
}
