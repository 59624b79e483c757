package collector

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/chazu/chainsaw/vm/dist"
)

// ErrNoAnswer is returned when the prompt's input ends before a valid
// answer was read.
var ErrNoAnswer = errors.New("collector: input closed before an answer")

// Prompt asks a person at a terminal which slots to keep. It prints every
// slot with its contents and the roots, then reads one line:
//
//	0 2 5     keep slots 0, 2 and 5
//	all       keep everything
//	none      keep nothing
//	reach     keep what is reachable from the roots
//
// Invalid lines are reported and the question is asked again.
type Prompt struct {
	in  *bufio.Reader
	out io.Writer

	once  sync.Once
	lines chan promptLine
}

type promptLine struct {
	text string
	err  error
}

// NewPrompt creates a prompt reading answers from in and writing to out.
func NewPrompt(in io.Reader, out io.Writer) *Prompt {
	return &Prompt{in: bufio.NewReader(in), out: out}
}

// Collect shows snap and waits for an answer. Cancelling ctx abandons the
// wait; a line typed afterwards answers the next collection.
func (p *Prompt) Collect(ctx context.Context, snap *dist.HeapSnapshot) ([]bool, error) {
	p.once.Do(func() {
		p.lines = make(chan promptLine)
		go p.readLines()
	})

	WriteSnapshot(p.out, snap)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fmt.Fprint(p.out, "keep> ")

		var in promptLine
		select {
		case <-ctx.Done():
			fmt.Fprintln(p.out)
			return nil, ctx.Err()
		case l, ok := <-p.lines:
			if !ok {
				return nil, ErrNoAnswer
			}
			in = l
		}

		if in.text == "" && in.err != nil {
			if in.err == io.EOF {
				return nil, ErrNoAnswer
			}
			return nil, in.err
		}
		marks, perr := ParseMarks(in.text, snap)
		if perr == nil {
			return marks, nil
		}
		fmt.Fprintf(p.out, "%v\n", perr)
		if in.err != nil {
			return nil, ErrNoAnswer
		}
	}
}

// readLines feeds p.lines one line at a time until the input fails, then
// closes the channel.
func (p *Prompt) readLines() {
	defer close(p.lines)
	for {
		line, err := p.in.ReadString('\n')
		p.lines <- promptLine{text: line, err: err}
		if err != nil {
			return
		}
	}
}

// ParseMarks turns a prompt answer into a mark vector for snap.
func ParseMarks(answer string, snap *dist.HeapSnapshot) ([]bool, error) {
	marks := make([]bool, snap.Size())
	fields := strings.Fields(answer)
	if len(fields) == 0 {
		return nil, errors.New("type slot numbers, all, none or reach")
	}
	if len(fields) == 1 {
		switch strings.ToLower(fields[0]) {
		case "all":
			for i := range marks {
				marks[i] = true
			}
			return marks, nil
		case "none":
			return marks, nil
		case "reach":
			return snap.Reachable(), nil
		}
	}
	for _, f := range fields {
		for _, part := range strings.Split(f, ",") {
			if part == "" {
				continue
			}
			n, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("not a slot number: %q", part)
			}
			if n < 0 || n >= len(marks) {
				return nil, fmt.Errorf("slot %d out of range [0,%d)", n, len(marks))
			}
			marks[n] = true
		}
	}
	return marks, nil
}

// WriteSnapshot prints a human-readable heap listing.
func WriteSnapshot(w io.Writer, snap *dist.HeapSnapshot) {
	if snap.CycleID != "" {
		fmt.Fprintf(w, "heap exhausted at instruction %04d (cycle %s)\n", snap.IP, snap.CycleID)
	}
	for _, s := range snap.Slots {
		switch {
		case s.Free():
			fmt.Fprintf(w, "  [%2d] free -> %d\n", s.Addr, s.Next)
		case s.ExternType != "":
			fmt.Fprintf(w, "  [%2d] Extern<%s>\n", s.Addr, s.ExternType)
		default:
			parts := make([]string, len(s.Fields))
			for i, f := range s.Fields {
				parts[i] = f.Name + ": " + f.Value.Text
			}
			if len(parts) == 0 {
				fmt.Fprintf(w, "  [%2d] Object {}\n", s.Addr)
			} else {
				fmt.Fprintf(w, "  [%2d] Object { %s }\n", s.Addr, strings.Join(parts, ", "))
			}
		}
	}
	var roots []string
	for _, g := range snap.Globals {
		if g.Value.Ref != nil {
			roots = append(roots, fmt.Sprintf("%s=%d", g.Name, *g.Value.Ref))
		}
	}
	for i, v := range snap.Stack {
		if v.Ref != nil {
			roots = append(roots, fmt.Sprintf("stack[%d]=%d", i, *v.Ref))
		}
	}
	if len(roots) > 0 {
		fmt.Fprintf(w, "roots: %s\n", strings.Join(roots, " "))
	}
}
