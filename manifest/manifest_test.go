package manifest

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	tomlContent := `
[project]
name = "test-app"
entry = "main.nac"

[heap]
slots = 4

[collector]
mode = "remote"
remote = "http://gc.local:9000"
max-fruitless = 0

[log]
verbosity = 2
file = "chainsaw.log"

[natives]
math = false
`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "test-app" {
		t.Errorf("project name = %q, want test-app", m.Project.Name)
	}
	if m.Heap.Slots != 4 {
		t.Errorf("heap slots = %d, want 4", m.Heap.Slots)
	}
	if m.Collector.Mode != "remote" || m.Collector.Remote != "http://gc.local:9000" {
		t.Errorf("collector = %+v", m.Collector)
	}
	if m.MaxFruitless() != 0 {
		t.Errorf("max-fruitless = %d, want explicit 0", m.MaxFruitless())
	}
	if m.Log.Verbosity != 2 || m.Log.File != "chainsaw.log" {
		t.Errorf("log = %+v", m.Log)
	}
	if m.MathEnabled() {
		t.Error("math = true, want false")
	}
	if !m.BuffersEnabled() {
		t.Error("buffers should default to true")
	}
	if want := filepath.Join(m.Dir, "main.nac"); m.EntryPath() != want {
		t.Errorf("entry path = %q, want %q", m.EntryPath(), want)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("[project]\nname = \"minimal\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Heap.Slots != DefaultHeapSlots {
		t.Errorf("heap slots = %d, want %d", m.Heap.Slots, DefaultHeapSlots)
	}
	if m.Collector.Mode != DefaultMode {
		t.Errorf("mode = %q, want %q", m.Collector.Mode, DefaultMode)
	}
	if m.MaxFruitless() != DefaultMaxFruitless {
		t.Errorf("max-fruitless = %d", m.MaxFruitless())
	}
	if m.EntryPath() != "" {
		t.Errorf("entry path = %q, want empty", m.EntryPath())
	}
	if m.HistoryPath() != filepath.Join(m.Dir, DefaultHistory) {
		t.Errorf("history = %q", m.HistoryPath())
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"syntax", "[heap\nslots = 1", ""},
		{"unknown key", "[heap]\nsize = 3", "heap.size"},
		{"bad mode", "[collector]\nmode = \"manual\"", "manual"},
		{"negative slots", "[heap]\nslots = -1", "heap.slots"},
		{"negative fruitless", "[collector]\nmax-fruitless = -2", "max-fruitless"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.content))
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.want != "" && !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestDefault(t *testing.T) {
	m := Default()
	if err := m.Validate(); err != nil {
		t.Fatalf("default manifest invalid: %v", err)
	}
	if m.Heap.Slots != DefaultHeapSlots || !m.MathEnabled() || !m.BuffersEnabled() {
		t.Errorf("default = %+v", m)
	}
	if m.HistoryPath() != DefaultHistory {
		t.Errorf("history without a dir = %q", m.HistoryPath())
	}
}

func TestWriteThenLoad(t *testing.T) {
	dir := t.TempDir()
	m := Default()
	m.Project.Name = "roundtrip"
	m.Heap.Slots = 7
	if err := m.Write(dir); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Project.Name != "roundtrip" || loaded.Heap.Slots != 7 {
		t.Errorf("loaded = %+v", loaded)
	}

	if err := m.Write(dir); !errors.Is(err, fs.ErrExist) {
		t.Errorf("second Write err = %v, want fs.ErrExist", err)
	}
}

func TestFindAndLoad(t *testing.T) {
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}

	tomlContent := `[project]
name = "found-project"
`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Project.Name != "found-project" {
		t.Errorf("project name = %q, want found-project", m.Project.Name)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no chainsaw.toml exists")
	}
}
