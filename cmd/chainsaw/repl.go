package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/peterh/liner"

	"github.com/chazu/chainsaw/collector"
	"github.com/chazu/chainsaw/compiler"
	"github.com/chazu/chainsaw/driver"
	"github.com/chazu/chainsaw/manifest"
	"github.com/chazu/chainsaw/vm"
	"github.com/chazu/chainsaw/vm/dist"
)

const (
	promptMain = "chainsaw> "
	promptCont = "     ...> "
	banner     = "chainsaw REPL. Type :help for commands, :exit to quit."
)

const replHelp = `:exit      quit
:heap      show every heap slot
:globals   list global bindings
:dis       disassemble the last program
:gc        collect now
:help      this text`

// session is the REPL state shared by the line loop and the commands.
type session struct {
	d    *driver.Driver
	out  io.Writer
	last *vm.Module

	// interrupt scopes one evaluation; nil means SIGINT.
	interrupt func(context.Context) (context.Context, context.CancelFunc)
}

// command runs a ':' command. It reports whether the REPL should exit.
func (s *session) command(ctx context.Context, line string) bool {
	rt := s.d.Runtime()
	switch strings.TrimSpace(line) {
	case ":exit", ":quit":
		return true
	case ":heap":
		collector.WriteSnapshot(s.out, dist.Snapshot(rt, ""))
	case ":globals":
		for _, g := range rt.Globals() {
			fmt.Fprintf(s.out, "  [%2d] %s = %s\n", g.Index, g.Name, rt.FormatValue(g.Value))
		}
	case ":dis":
		if s.last == nil {
			fmt.Fprintln(s.out, "nothing compiled yet")
			break
		}
		fmt.Fprintln(s.out, vm.Disassemble(s.last))
	case ":gc":
		stats, err := s.d.Collect(ctx)
		if err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
			break
		}
		fmt.Fprintf(s.out, "freed %d, kept %d, live %d\n", stats.Freed, stats.Kept, stats.Live)
	case ":help":
		fmt.Fprintln(s.out, replHelp)
	default:
		fmt.Fprintln(s.out, "unknown command. Type :help for commands.")
	}
	return false
}

// eval compiles and runs one complete input. An interrupt aborts this
// run only; the session keeps going.
func (s *session) eval(ctx context.Context, src string) error {
	m, err := s.d.Compile(src)
	if err != nil {
		return err
	}
	s.last = m

	interrupt := s.interrupt
	if interrupt == nil {
		interrupt = func(ctx context.Context) (context.Context, context.CancelFunc) {
			return signal.NotifyContext(ctx, os.Interrupt)
		}
	}
	runCtx, stop := interrupt(ctx)
	defer stop()
	return s.d.Run(runCtx, m)
}

// incomplete reports whether src ends before its last construct does, so
// the REPL should keep reading.
func incomplete(src string) bool {
	_, err := compiler.CompileSource(src, vm.NewRuntime())
	return errors.Is(err, compiler.ErrUnexpectedEOF)
}

// linerCollector asks for marks on the REPL's own line editor so prompts
// and collection answers share one terminal.
type linerCollector struct {
	ln  *liner.State
	out io.Writer
}

func (c linerCollector) Collect(ctx context.Context, snap *dist.HeapSnapshot) ([]bool, error) {
	collector.WriteSnapshot(c.out, snap)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line, err := c.ln.Prompt("keep> ")
		if err != nil {
			return nil, collector.ErrNoAnswer
		}
		marks, perr := collector.ParseMarks(line, snap)
		if perr == nil {
			return marks, nil
		}
		fmt.Fprintln(c.out, perr)
	}
}

func runREPL(ctx context.Context, m *manifest.Manifest, stdout, stderr io.Writer) int {
	fmt.Fprintln(stdout, banner)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	histPath := m.HistoryPath()
	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	var coll collector.Collector = linerCollector{ln: ln, out: stdout}
	if m.Collector.Mode != string(collector.ModePrompt) {
		c, err := newCollector(m, os.Stdin, stdout)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		coll = c
	}

	rt := newRuntime(m, stdout)
	s := &session{d: newDriver(rt, m, coll), out: stdout}

	for {
		src, ok := readInput(ln)
		if !ok {
			fmt.Fprintln(stdout)
			return 0
		}
		trimmed := strings.TrimSpace(src)
		if trimmed == "" {
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(src, "\n", " "))

		if strings.HasPrefix(trimmed, ":") {
			if s.command(ctx, trimmed) {
				return 0
			}
			continue
		}
		if err := s.eval(ctx, src); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
	}
}

// readInput reads lines until they form a complete program. It returns
// false at end of input.
func readInput(ln *liner.State) (string, bool) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, liner.ErrPromptAborted) {
			return "", true
		}
		if err != nil {
			return "", false
		}

		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		src := b.String()
		if strings.HasPrefix(strings.TrimSpace(src), ":") || !incomplete(src) {
			return src, true
		}
	}
}
