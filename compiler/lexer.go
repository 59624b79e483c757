package compiler

import (
	"unicode/utf8"
)

// commentChar starts a line comment.
const commentChar = '♥'

// ---------------------------------------------------------------------------
// Lexer: Tokenizer for source text
// ---------------------------------------------------------------------------

// Lexer tokenizes source text one token at a time.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      rune // current character, 0 at end of input
	eof     bool
	line    int // line of ch (1-based)
	col     int // column of ch (0-based, in characters)
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input, line: 1, col: -1}
	l.readChar()
	return l
}

// readChar advances to the next character.
func (l *Lexer) readChar() {
	if l.ch == '\n' && !l.eof {
		l.line++
		l.col = -1
	}
	if l.readPos >= len(l.input) {
		l.ch = 0
		l.eof = true
		l.pos = len(l.input)
		l.col++
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
	l.col++
}

// position returns the position of the current character.
func (l *Lexer) position() Position {
	return Position{Offset: l.pos, Line: l.line, Column: l.col}
}

// skipWhitespaceAndComments skips spaces, carriage returns, newlines and
// line comments.
func (l *Lexer) skipWhitespaceAndComments() {
	for !l.eof {
		switch l.ch {
		case ' ', '\r', '\n':
			l.readChar()
		case commentChar:
			for !l.eof && l.ch != '\n' {
				l.readChar()
			}
		default:
			return
		}
	}
}

// NextToken returns the next token. At end of input it returns a TokenEOF
// token; every later call does the same.
func (l *Lexer) NextToken() (Token, error) {
	l.skipWhitespaceAndComments()

	pos := l.position()
	if l.eof {
		return Token{Type: TokenEOF, Pos: pos}, nil
	}

	single := func(t TokenType) (Token, error) {
		lit := string(l.ch)
		l.readChar()
		return Token{Type: t, Literal: lit, Pos: pos}, nil
	}

	switch {
	case l.ch == '.':
		return single(TokenDot)
	case l.ch == '=':
		return single(TokenEquals)
	case l.ch == ';':
		return single(TokenSemicolon)
	case l.ch == '(':
		return single(TokenLParen)
	case l.ch == ')':
		return single(TokenRParen)
	case l.ch == ',':
		return single(TokenComma)
	case l.ch == '-':
		return single(TokenMinus)
	case l.ch == '"':
		return l.readString(pos)
	case isDigit(l.ch):
		start := l.pos
		for !l.eof && isDigit(l.ch) {
			l.readChar()
		}
		return Token{Type: TokenNumber, Literal: l.input[start:l.pos], Pos: pos}, nil
	case isLetter(l.ch):
		start := l.pos
		for !l.eof && (isLetter(l.ch) || isDigit(l.ch) || l.ch == '_') {
			l.readChar()
		}
		lit := l.input[start:l.pos]
		return Token{Type: LookupIdent(lit), Literal: lit, Pos: pos}, nil
	}

	bad := Token{Type: TokenEOF, Literal: string(l.ch), Pos: pos}
	return bad, &SyntaxError{Err: ErrUnexpectedCharacter, Token: bad, Pos: pos}
}

// readString reads a double-quoted string. The literal keeps both quotes.
func (l *Lexer) readString(pos Position) (Token, error) {
	start := l.pos
	l.readChar() // opening quote
	for !l.eof && l.ch != '"' {
		l.readChar()
	}
	if l.eof {
		end := Token{Type: TokenEOF, Pos: l.position()}
		return end, &SyntaxError{Err: ErrUnexpectedEOF, Token: end, Want: TokenString, HasWant: true, Pos: pos}
	}
	l.readChar() // closing quote
	return Token{Type: TokenString, Literal: l.input[start:l.pos], Pos: pos}, nil
}

// Tokenize lexes all of input. The result always ends with a TokenEOF
// token.
func Tokenize(input string) ([]Token, error) {
	l := NewLexer(input)
	var tokens []Token
	for {
		tok, err := l.NextToken()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens, nil
		}
	}
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
