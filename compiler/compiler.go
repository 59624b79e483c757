package compiler

import (
	"strconv"

	"github.com/chazu/chainsaw/vm"
)

// maxArgs is the largest argument count a CALL or INVOKE can encode.
const maxArgs = 255

// Symbols assigns the runtime-wide ids the compiler embeds in
// instructions. *vm.Runtime implements it.
type Symbols interface {
	GlobalIndex(name string) uint32
	FieldID(name string) uint32
	InternString(s string) uint32
}

// ---------------------------------------------------------------------------
// Compiler: Single-pass token stream to module
// ---------------------------------------------------------------------------

// Compiler turns a token stream into a Module in one left-to-right pass.
// Ids are requested from Symbols on first textual appearance, so a failed
// compile may leave new globals and fields behind.
type Compiler struct {
	tokens  []Token
	pos     int
	syms    Symbols
	builder *vm.ModuleBuilder
}

// Compile compiles a complete token stream. A trailing TokenEOF is
// optional.
func Compile(tokens []Token, syms Symbols) (*vm.Module, error) {
	c := &Compiler{tokens: tokens, syms: syms, builder: vm.NewModuleBuilder()}
	for !c.atEnd() {
		if err := c.statement(); err != nil {
			return nil, err
		}
	}
	c.builder.Emit(vm.OpHalt)
	return c.builder.Build(), nil
}

// CompileSource lexes and compiles src.
func CompileSource(src string, syms Symbols) (*vm.Module, error) {
	tokens, err := Tokenize(src)
	if err != nil {
		return nil, err
	}
	return Compile(tokens, syms)
}

// ---------------------------------------------------------------------------
// Token cursor
// ---------------------------------------------------------------------------

// peek returns the current token, or a TokenEOF token past the end.
func (c *Compiler) peek() Token {
	if c.pos < len(c.tokens) {
		return c.tokens[c.pos]
	}
	return c.eofToken()
}

func (c *Compiler) eofToken() Token {
	if n := len(c.tokens); n > 0 {
		last := c.tokens[n-1]
		if last.Type == TokenEOF {
			return last
		}
		return Token{Type: TokenEOF, Pos: last.End()}
	}
	return Token{Type: TokenEOF, Pos: Position{Line: 1}}
}

func (c *Compiler) next() Token {
	tok := c.peek()
	if c.pos < len(c.tokens) {
		c.pos++
	}
	return tok
}

func (c *Compiler) atEnd() bool {
	return c.peek().Type == TokenEOF
}

func (c *Compiler) check(t TokenType) bool {
	return c.peek().Type == t
}

// expect consumes a token of type t or fails with the expected kind.
func (c *Compiler) expect(t TokenType) (Token, error) {
	tok := c.next()
	if tok.Type != t {
		return tok, expected(tok, t)
	}
	return tok, nil
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// statement compiles one statement.
func (c *Compiler) statement() error {
	tok := c.peek()
	switch tok.Type {
	case TokenSemicolon:
		c.next()
		return nil

	case TokenNil, TokenTrue, TokenFalse, TokenNumber, TokenString, TokenIdentifier, TokenAlloc:
		if err := c.member(); err != nil {
			return err
		}
		if _, err := c.expect(TokenSemicolon); err != nil {
			return err
		}
		c.builder.Emit(vm.OpPop)
		return nil

	case TokenIf:
		return c.ifStatement()

	case TokenWhile:
		return c.whileStatement()

	case TokenMinus:
		return &SyntaxError{Err: ErrUnsupported, Token: tok, Pos: tok.Pos}
	}
	return unexpected(tok)
}

// block compiles statements until one of the terminators is next. The
// terminator is left unconsumed.
func (c *Compiler) block(terminators ...TokenType) error {
	for {
		tok := c.peek()
		for _, t := range terminators {
			if tok.Type == t {
				return nil
			}
		}
		if tok.Type == TokenEOF {
			return expected(tok, terminators[0])
		}
		if err := c.statement(); err != nil {
			return err
		}
	}
}

// whileStatement compiles WHILE cond DO body END.
//
//	start: <cond>
//	       JMP_IF_FALSE exit
//	       <body>
//	       JMP start
//	exit:
func (c *Compiler) whileStatement() error {
	c.next() // WHILE

	start := c.builder.NewLabel()
	exit := c.builder.NewLabel()

	c.builder.Mark(start)
	if err := c.member(); err != nil {
		return err
	}
	c.builder.EmitJump(vm.OpJmpIfFalse, exit)

	if _, err := c.expect(TokenDo); err != nil {
		return err
	}
	if err := c.block(TokenEnd); err != nil {
		return err
	}
	c.next() // END

	c.builder.EmitJump(vm.OpJmp, start)
	c.builder.Mark(exit)
	return nil
}

// ifStatement compiles IF/ELSEIF/ELSE/END. Each arm after the first is
// entered through the previous arm's JMP_IF_FALSE; each arm ends with a
// JMP past the END.
//
//	      <cond>
//	      JMP_IF_FALSE next1
//	      <arm>
//	      JMP end
//	next1: <cond>          ELSEIF
//	      JMP_IF_FALSE next2
//	      <arm>
//	      JMP end
//	next2: <arm>           ELSE
//	end:
func (c *Compiler) ifStatement() error {
	c.next() // IF

	end := c.builder.NewLabel()

	if err := c.member(); err != nil {
		return err
	}
	next := c.builder.NewLabel()
	c.builder.EmitJump(vm.OpJmpIfFalse, next)
	if _, err := c.expect(TokenThen); err != nil {
		return err
	}

	hasElse := false
	for {
		if err := c.block(TokenEnd, TokenElseIf, TokenElse); err != nil {
			return err
		}
		tok := c.next()
		switch tok.Type {
		case TokenEnd:
			if !hasElse {
				c.builder.Mark(next)
			}
			c.builder.Mark(end)
			return nil

		case TokenElseIf:
			if hasElse {
				return unexpected(tok)
			}
			c.builder.EmitJump(vm.OpJmp, end)
			c.builder.Mark(next)
			if err := c.member(); err != nil {
				return err
			}
			next = c.builder.NewLabel()
			c.builder.EmitJump(vm.OpJmpIfFalse, next)
			if _, err := c.expect(TokenThen); err != nil {
				return err
			}

		case TokenElse:
			if hasElse {
				return unexpected(tok)
			}
			hasElse = true
			c.builder.EmitJump(vm.OpJmp, end)
			c.builder.Mark(next)
		}
	}
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// member compiles an atom followed by any number of .name suffixes.
func (c *Compiler) member() error {
	if err := c.atom(); err != nil {
		return err
	}

	for c.check(TokenDot) {
		c.next()
		name := c.next()
		if name.Type != TokenIdentifier {
			return expected(name, TokenIdentifier)
		}
		fid := c.syms.FieldID(name.Literal)

		switch c.peek().Type {
		case TokenEquals:
			c.next()
			if err := c.member(); err != nil {
				return err
			}
			c.builder.EmitIndex(vm.OpIndexSet, fid)

		case TokenLParen:
			argc, err := c.arguments()
			if err != nil {
				return err
			}
			c.builder.EmitInvoke(argc, fid)

		default:
			c.builder.EmitIndex(vm.OpIndexGet, fid)
		}
	}
	return nil
}

// atom compiles a literal, ALLOC, or an identifier with its optional
// store or call.
func (c *Compiler) atom() error {
	tok := c.next()
	switch tok.Type {
	case TokenIdentifier:
		gid := c.syms.GlobalIndex(tok.Literal)
		switch c.peek().Type {
		case TokenEquals:
			c.next()
			if err := c.member(); err != nil {
				return err
			}
			c.builder.EmitIndex(vm.OpStore, gid)
		case TokenLParen:
			c.builder.EmitIndex(vm.OpLoad, gid)
			argc, err := c.arguments()
			if err != nil {
				return err
			}
			c.builder.EmitCall(argc)
		default:
			c.builder.EmitIndex(vm.OpLoad, gid)
		}

	case TokenString:
		lit := tok.Literal
		c.builder.EmitIndex(vm.OpLoadString, c.syms.InternString(lit[1:len(lit)-1]))

	case TokenNumber:
		f, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			// Only digit runs reach here; ParseFloat saturates to +Inf with ErrRange.
			if ne, ok := err.(*strconv.NumError); !ok || ne.Err != strconv.ErrRange {
				return unexpected(tok)
			}
		}
		c.builder.EmitIndex(vm.OpLoadConst, c.builder.AddConstant(f))

	case TokenTrue:
		c.builder.Emit(vm.OpLoadTrue)
	case TokenFalse:
		c.builder.Emit(vm.OpLoadFalse)
	case TokenNil:
		c.builder.Emit(vm.OpLoadNil)
	case TokenAlloc:
		c.builder.Emit(vm.OpAlloc)

	default:
		return unexpected(tok)
	}
	return nil
}

// arguments compiles '(' args? ')' and returns the argument count. A
// trailing comma is allowed.
func (c *Compiler) arguments() (uint8, error) {
	open, err := c.expect(TokenLParen)
	if err != nil {
		return 0, err
	}
	argc := 0
	for !c.check(TokenRParen) {
		if err := c.member(); err != nil {
			return 0, err
		}
		argc++
		if argc > maxArgs {
			return 0, &SyntaxError{Err: ErrTooManyArguments, Token: open, Pos: open.Pos}
		}
		if !c.check(TokenComma) {
			break
		}
		c.next()
	}
	if _, err := c.expect(TokenRParen); err != nil {
		return 0, err
	}
	return uint8(argc), nil
}
