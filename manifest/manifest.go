// Package manifest handles chainsaw.toml project configuration.
package manifest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/chazu/chainsaw/collector"
)

// FileName is the manifest file looked up by Load and FindAndLoad.
const FileName = "chainsaw.toml"

// Defaults applied to anything the file leaves unset.
const (
	DefaultHeapSlots    = 20
	DefaultMode         = string(collector.ModePrompt)
	DefaultRemote       = "http://localhost:7070"
	DefaultMaxFruitless = 1
	DefaultHistory      = ".chainsaw_history"
)

// Manifest represents a chainsaw.toml project configuration.
type Manifest struct {
	Project   Project         `toml:"project"`
	Heap      HeapConfig      `toml:"heap"`
	Collector CollectorConfig `toml:"collector"`
	Log       LogConfig       `toml:"log"`
	Natives   NativesConfig   `toml:"natives"`
	REPL      REPLConfig      `toml:"repl"`

	// Dir is the directory containing the chainsaw.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name  string `toml:"name"`
	Entry string `toml:"entry"`
}

// HeapConfig sizes the slot heap.
type HeapConfig struct {
	Slots int `toml:"slots"`
}

// CollectorConfig selects who answers collection requests.
type CollectorConfig struct {
	Mode   string `toml:"mode"`
	Remote string `toml:"remote"`
	// MaxFruitless is a pointer so that an explicit 0 survives defaulting.
	MaxFruitless *int `toml:"max-fruitless"`
}

// LogConfig is handed to commonlog.Configure.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// NativesConfig toggles the optional native groups.
type NativesConfig struct {
	Math    *bool `toml:"math"`
	Buffers *bool `toml:"buffers"`
}

// REPLConfig configures the interactive prompt.
type REPLConfig struct {
	History string `toml:"history"`
}

// Default returns the configuration used when no chainsaw.toml exists.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

// Load parses a chainsaw.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return m, nil
}

// Parse decodes manifest text and applies defaults. Unknown keys are an
// error so that typos do not silently fall back to defaults.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %q", undecoded[0].String())
	}
	m.applyDefaults()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a chainsaw.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

func (m *Manifest) applyDefaults() {
	if m.Heap.Slots == 0 {
		m.Heap.Slots = DefaultHeapSlots
	}
	if m.Collector.Mode == "" {
		m.Collector.Mode = DefaultMode
	}
	if m.Collector.Remote == "" {
		m.Collector.Remote = DefaultRemote
	}
	if m.Collector.MaxFruitless == nil {
		n := DefaultMaxFruitless
		m.Collector.MaxFruitless = &n
	}
	if m.Natives.Math == nil {
		m.Natives.Math = boolPtr(true)
	}
	if m.Natives.Buffers == nil {
		m.Natives.Buffers = boolPtr(true)
	}
	if m.REPL.History == "" {
		m.REPL.History = DefaultHistory
	}
}

// Validate rejects values no component could honour.
func (m *Manifest) Validate() error {
	if m.Heap.Slots < 0 {
		return fmt.Errorf("heap.slots must not be negative, got %d", m.Heap.Slots)
	}
	if n := m.MaxFruitless(); n < 0 {
		return fmt.Errorf("collector.max-fruitless must not be negative, got %d", n)
	}
	if _, err := collector.ParseMode(m.Collector.Mode); err != nil {
		return err
	}
	return nil
}

// MaxFruitless returns the configured tolerance for zero-yield collections.
func (m *Manifest) MaxFruitless() int {
	if m.Collector.MaxFruitless == nil {
		return DefaultMaxFruitless
	}
	return *m.Collector.MaxFruitless
}

// MathEnabled reports whether the math natives are registered.
func (m *Manifest) MathEnabled() bool { return m.Natives.Math == nil || *m.Natives.Math }

// BuffersEnabled reports whether the buffer natives are registered.
func (m *Manifest) BuffersEnabled() bool { return m.Natives.Buffers == nil || *m.Natives.Buffers }

// EntryPath returns the absolute path of the entry script, or "" if unset.
func (m *Manifest) EntryPath() string {
	if m.Project.Entry == "" {
		return ""
	}
	if filepath.IsAbs(m.Project.Entry) {
		return m.Project.Entry
	}
	return filepath.Join(m.Dir, m.Project.Entry)
}

// HistoryPath returns where the REPL keeps its line history.
func (m *Manifest) HistoryPath() string {
	if filepath.IsAbs(m.REPL.History) || m.Dir == "" {
		return m.REPL.History
	}
	return filepath.Join(m.Dir, m.REPL.History)
}

// Encode renders the manifest as TOML.
func (m *Manifest) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write creates dir/chainsaw.toml from m. An existing file is not overwritten.
func (m *Manifest) Write(dir string) error {
	path := filepath.Join(dir, FileName)
	data, err := m.Encode()
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("cannot create %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func boolPtr(b bool) *bool { return &b }
