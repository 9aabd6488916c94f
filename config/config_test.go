package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chazu/tarray/vm"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[heap]
capacity-words = 4096
gc-attempts = 3
relocate = true
sweep-interval = "250ms"
sweep-pressure = 0.75

[loader]
name = "app"
max-object-words = 1024

[log]
verbosity = 2
path = "tarray.log"
`)

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Heap.CapacityWords != 4096 || c.Heap.GCAttempts != 3 || !c.Heap.Relocate {
		t.Errorf("heap = %+v", c.Heap)
	}
	if c.Heap.SweepInterval.Duration != 250*time.Millisecond {
		t.Errorf("sweep-interval = %v", c.Heap.SweepInterval.Duration)
	}
	if c.Heap.SweepPressure != 0.75 || c.Options().SweepPressure != 0.75 {
		t.Errorf("sweep-pressure = %v", c.Heap.SweepPressure)
	}
	if c.Heap.MarkChunk != vm.DefaultMarkChunk {
		t.Errorf("mark-chunk default = %d", c.Heap.MarkChunk)
	}
	if c.Loader.Name != "app" || c.Loader.MaxObjectWords != 1024 {
		t.Errorf("loader = %+v", c.Loader)
	}
	if p := c.LogPath(); p == nil || *p != "tarray.log" || c.Log.Verbosity != 2 {
		t.Errorf("log = %+v", c.Log)
	}
	if !filepath.IsAbs(c.Path) {
		t.Errorf("Path = %q, want absolute", c.Path)
	}

	opts := c.Options()
	if opts.LoaderName != "app" || opts.Heap.CapacityWords != 4096 || opts.SweepInterval != 250*time.Millisecond {
		t.Errorf("Options() = %+v", opts)
	}
}

func TestDefault(t *testing.T) {
	c := Default()
	if c.Heap.CapacityWords != vm.DefaultCapacityWords || c.Heap.GCAttempts != 1 {
		t.Errorf("heap = %+v", c.Heap)
	}
	if c.Loader.Name != vm.DefaultLoaderName || c.Loader.MaxObjectWords != vm.DefaultMaxObjectWords {
		t.Errorf("loader = %+v", c.Loader)
	}
	if c.LogPath() != nil {
		t.Error("default log path should be stderr")
	}
	if c.Options().SweepInterval != 0 {
		t.Error("background sweeping enabled by default")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"syntax", "[heap\ncapacity-words = 1"},
		{"negative capacity", "[heap]\ncapacity-words = -1"},
		{"negative attempts", "[heap]\ngc-attempts = -2"},
		{"negative metadata", "[loader]\nmetadata-limit-words = -8"},
		{"bad duration", "[heap]\nsweep-interval = \"soon\""},
		{"pressure above one", "[heap]\nsweep-pressure = 1.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, tt.content)
			if _, err := Load(dir); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "[loader]\nname = \"found\"\n")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	c, err := FindAndLoad(nested)
	if err != nil {
		t.Fatal(err)
	}
	if c.Loader.Name != "found" {
		t.Errorf("Loader.Name = %q, want found", c.Loader.Name)
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("Load of an empty directory succeeded")
	}
}
