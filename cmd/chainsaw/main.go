// Chainsaw CLI - runs programs, hosts the REPL, and serves collectors and
// the language server.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/chainsaw/collector"
	"github.com/chazu/chainsaw/driver"
	"github.com/chazu/chainsaw/manifest"
	"github.com/chazu/chainsaw/natives"
	"github.com/chazu/chainsaw/server"
	"github.com/chazu/chainsaw/vm"
	"github.com/chazu/chainsaw/vm/dist"
)

var log = commonlog.GetLogger("chainsaw.cli")

// options holds the parsed command line.
type options struct {
	heap           int
	mode           string
	remote         string
	maxFruitless   int
	verbosity      int
	logFile        string
	serveCollector string
	serveRuntime   string
	lsp            bool
	dumpHeap       bool
	dis            bool
	initConfig     bool
	paths          []string

	set map[string]bool // flags given explicitly
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	o := &options{set: make(map[string]bool)}
	fs := flag.NewFlagSet("chainsaw", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.IntVar(&o.heap, "heap", manifest.DefaultHeapSlots, "Heap capacity in slots")
	fs.StringVar(&o.mode, "collector", manifest.DefaultMode, "Collector: prompt, keep-all, reachable or remote")
	fs.StringVar(&o.remote, "remote", manifest.DefaultRemote, "Collector service URL (with -collector remote)")
	fs.IntVar(&o.maxFruitless, "max-fruitless", manifest.DefaultMaxFruitless, "Zero-yield collections tolerated at one instruction")
	fs.IntVar(&o.verbosity, "v", 0, "Log verbosity")
	fs.StringVar(&o.logFile, "log", "", "Log file (default stderr)")
	fs.StringVar(&o.serveCollector, "serve-collector", "", "Serve the prompt collector on this address")
	fs.StringVar(&o.serveRuntime, "serve", "", "Serve a hosted runtime on this address")
	fs.BoolVar(&o.lsp, "lsp", false, "Serve the language server on stdio")
	fs.BoolVar(&o.dumpHeap, "dump-heap", false, "Print the heap as JSON after running")
	fs.BoolVar(&o.dis, "dis", false, "Print the disassembly instead of running")
	fs.BoolVar(&o.initConfig, "init", false, "Write a default chainsaw.toml in the current directory")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: chainsaw [options] [file]\n\n")
		fmt.Fprintf(stderr, "Runs a program, or starts the REPL when no file is given.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  chainsaw prog.nac                       # Run, asking which slots to keep\n")
		fmt.Fprintf(stderr, "  chainsaw -collector reachable prog.nac  # Run with an automatic collector\n")
		fmt.Fprintf(stderr, "  chainsaw -serve-collector :7070         # Answer collections for remote runs\n")
		fmt.Fprintf(stderr, "  chainsaw -collector remote prog.nac     # Ask the collector on :7070\n")
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })
	o.paths = fs.Args()
	return o, nil
}

// applyTo overrides manifest values with explicitly set flags.
func (o *options) applyTo(m *manifest.Manifest) error {
	if o.set["heap"] {
		m.Heap.Slots = o.heap
	}
	if o.set["collector"] {
		m.Collector.Mode = o.mode
	}
	if o.set["remote"] {
		m.Collector.Remote = o.remote
	}
	if o.set["max-fruitless"] {
		n := o.maxFruitless
		m.Collector.MaxFruitless = &n
	}
	if o.set["v"] {
		m.Log.Verbosity = o.verbosity
	}
	if o.set["log"] {
		m.Log.File = o.logFile
	}
	return m.Validate()
}

func loadManifest() (*manifest.Manifest, error) {
	m, err := manifest.FindAndLoad(".")
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = manifest.Default()
	}
	return m, nil
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if o.initConfig {
		if err := manifest.Default().Write("."); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "wrote %s\n", manifest.FileName)
		return 0
	}

	m, err := loadManifest()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if err := o.applyTo(m); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	var logPath *string
	if m.Log.File != "" {
		logPath = &m.Log.File
	}
	commonlog.Configure(m.Log.Verbosity, logPath)
	if m.Dir != "" {
		log.Infof("using %s in %s", manifest.FileName, m.Dir)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case o.lsp:
		rt := newRuntime(m, io.Discard)
		if err := server.NewLSP(driver.New(rt)).Run(); err != nil {
			fmt.Fprintf(stderr, "LSP error: %v\n", err)
			return 1
		}
		return 0

	case o.serveCollector != "":
		srv := server.New(server.WithCollector(collector.NewPrompt(stdin, stderr)))
		defer srv.Stop()
		if err := srv.ListenAndServe(ctx, o.serveCollector); err != nil {
			fmt.Fprintf(stderr, "Server error: %v\n", err)
			return 1
		}
		return 0

	case o.serveRuntime != "":
		var out bytes.Buffer
		rt := newRuntime(m, &out)
		coll, err := newCollector(m, stdin, stderr)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		srv := server.New(server.WithRuntime(newDriver(rt, m, coll), &out))
		defer srv.Stop()
		if err := srv.ListenAndServe(ctx, o.serveRuntime); err != nil {
			fmt.Fprintf(stderr, "Server error: %v\n", err)
			return 1
		}
		return 0
	}

	path := m.EntryPath()
	if len(o.paths) > 0 {
		path = o.paths[0]
	}
	if path == "" {
		// Interrupts belong to the evaluation in progress, not the session.
		replCtx, stopREPL := signal.NotifyContext(context.Background(), syscall.SIGTERM)
		defer stopREPL()
		return runREPL(replCtx, m, stdout, stderr)
	}

	src, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	coll, err := newCollector(m, stdin, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	rt := newRuntime(m, stdout)
	return runFile(ctx, newDriver(rt, m, coll), string(src), o, stdout, stderr)
}

// runFile compiles src and either disassembles or runs it.
func runFile(ctx context.Context, d *driver.Driver, src string, o *options, stdout, stderr io.Writer) int {
	mod, err := d.Compile(src)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if o.dis {
		fmt.Fprintln(stdout, vm.Disassemble(mod))
		return 0
	}

	status := 0
	if err := d.Run(ctx, mod); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		status = 1
	}
	if o.dumpHeap {
		data, err := dist.SnapshotJSON(dist.Snapshot(d.Runtime(), ""))
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, string(data))
	}
	return status
}

func newRuntime(m *manifest.Manifest, out io.Writer) *vm.Runtime {
	rt := vm.NewRuntimeWithHeap(m.Heap.Slots)
	natives.Register(rt, natives.Config{
		Out:     out,
		Math:    m.MathEnabled(),
		Buffers: m.BuffersEnabled(),
	})
	return rt
}

func newDriver(rt *vm.Runtime, m *manifest.Manifest, c collector.Collector) *driver.Driver {
	return driver.New(rt,
		driver.WithCollector(c),
		driver.WithMaxFruitless(m.MaxFruitless()),
	)
}

// newCollector builds the collector named by the manifest. Prompts read
// from in and write to out.
func newCollector(m *manifest.Manifest, in io.Reader, out io.Writer) (collector.Collector, error) {
	mode, err := collector.ParseMode(m.Collector.Mode)
	if err != nil {
		return nil, err
	}
	switch mode {
	case collector.ModeKeepAll:
		return collector.KeepAll{}, nil
	case collector.ModeReachable:
		return collector.Reachable{}, nil
	case collector.ModeRemote:
		return collector.NewRemote(m.Collector.Remote, nil), nil
	default:
		return collector.NewPrompt(in, out), nil
	}
}
