package compiler

import (
	"errors"
	"testing"
)

func TestLexerTokens(t *testing.T) {
	input := `x = foo(1, "a b"); o.f_2 - IF THEN ELSE ELSEIF WHILE DO END ALLOC true false nil`
	expected := []struct {
		typ     TokenType
		literal string
	}{
		{TokenIdentifier, "x"},
		{TokenEquals, "="},
		{TokenIdentifier, "foo"},
		{TokenLParen, "("},
		{TokenNumber, "1"},
		{TokenComma, ","},
		{TokenString, `"a b"`},
		{TokenRParen, ")"},
		{TokenSemicolon, ";"},
		{TokenIdentifier, "o"},
		{TokenDot, "."},
		{TokenIdentifier, "f_2"},
		{TokenMinus, "-"},
		{TokenIf, "IF"},
		{TokenThen, "THEN"},
		{TokenElse, "ELSE"},
		{TokenElseIf, "ELSEIF"},
		{TokenWhile, "WHILE"},
		{TokenDo, "DO"},
		{TokenEnd, "END"},
		{TokenAlloc, "ALLOC"},
		{TokenTrue, "true"},
		{TokenFalse, "false"},
		{TokenNil, "nil"},
		{TokenEOF, ""},
	}

	tokens, err := Tokenize(input)
	if err != nil {
		t.Fatal(err)
	}
	if len(tokens) != len(expected) {
		t.Fatalf("got %d tokens, want %d: %v", len(tokens), len(expected), tokens)
	}
	for i, exp := range expected {
		if tokens[i].Type != exp.typ || tokens[i].Literal != exp.literal {
			t.Errorf("token %d = %s, want %s(%q)", i, tokens[i], exp.typ, exp.literal)
		}
	}
}

func TestLexerKeywordsAreCaseSensitive(t *testing.T) {
	tokens, err := Tokenize("if True NIL While")
	if err != nil {
		t.Fatal(err)
	}
	for _, tok := range tokens[:4] {
		if tok.Type != TokenIdentifier {
			t.Errorf("%q lexed as %s, want IDENTIFIER", tok.Literal, tok.Type)
		}
	}
}

func TestLexerPositions(t *testing.T) {
	tokens, err := Tokenize("a = 1;\n  bb\r\n♥ note\n  \"s\"")
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		i         int
		line, col int
		literal   string
	}{
		{0, 1, 0, "a"},
		{1, 1, 2, "="},
		{2, 1, 4, "1"},
		{3, 1, 5, ";"},
		{4, 2, 2, "bb"},
		{5, 4, 2, `"s"`},
	}
	for _, tt := range tests {
		tok := tokens[tt.i]
		if tok.Literal != tt.literal || tok.Pos.Line != tt.line || tok.Pos.Column != tt.col {
			t.Errorf("token %d = %s at %s, want %q at %d:%d", tt.i, tok, tok.Pos, tt.literal, tt.line, tt.col)
		}
	}
}

func TestLexerComment(t *testing.T) {
	tokens, err := Tokenize("♥ the whole line\nx ♥ trailing")
	if err != nil {
		t.Fatal(err)
	}
	if len(tokens) != 2 || tokens[0].Literal != "x" || tokens[1].Type != TokenEOF {
		t.Errorf("tokens = %v", tokens)
	}
}

func TestLexerNumbersAreUnsignedIntegers(t *testing.T) {
	tokens, err := Tokenize("12.5")
	if err != nil {
		t.Fatal(err)
	}
	want := []TokenType{TokenNumber, TokenDot, TokenNumber, TokenEOF}
	for i, typ := range want {
		if tokens[i].Type != typ {
			t.Errorf("token %d = %s, want %s", i, tokens[i].Type, typ)
		}
	}
}

func TestLexerUnexpectedCharacter(t *testing.T) {
	for _, input := range []string{"x = 1 + 2;", "a\tb", "#", "é"} {
		_, err := Tokenize(input)
		if !errors.Is(err, ErrUnexpectedCharacter) {
			t.Errorf("Tokenize(%q) = %v, want ErrUnexpectedCharacter", input, err)
		}
	}

	_, err := Tokenize("ok + 1")
	var se *SyntaxError
	if !errors.As(err, &se) {
		t.Fatalf("err = %T", err)
	}
	if se.Token.Literal != "+" || se.Pos.Column != 3 {
		t.Errorf("error names %q at %s", se.Token.Literal, se.Pos)
	}
}

func TestLexerUnterminatedString(t *testing.T) {
	_, err := Tokenize(`x = "open`)
	var se *SyntaxError
	if !errors.As(err, &se) || !errors.Is(err, ErrUnexpectedEOF) {
		t.Fatalf("err = %v, want ErrUnexpectedEOF", err)
	}
	if !se.HasWant || se.Want != TokenString {
		t.Errorf("want = %s, HasWant = %v", se.Want, se.HasWant)
	}
}

func TestLexerEmptyInput(t *testing.T) {
	tokens, err := Tokenize("  \n ")
	if err != nil {
		t.Fatal(err)
	}
	if len(tokens) != 1 || tokens[0].Type != TokenEOF {
		t.Errorf("tokens = %v", tokens)
	}
}
