// Package config handles tarray.toml runtime configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/chazu/tarray/vm"
)

// FileName is the configuration file looked up by FindAndLoad.
const FileName = "tarray.toml"

// Config represents a tarray.toml file.
type Config struct {
	Heap   Heap   `toml:"heap"`
	Loader Loader `toml:"loader"`
	Log    Log    `toml:"log"`

	// Path is the file the configuration was read from (set at load time).
	Path string `toml:"-"`
}

// Heap configures the heap and its collector.
type Heap struct {
	CapacityWords int64    `toml:"capacity-words"`
	GCAttempts    int      `toml:"gc-attempts"`
	Relocate      bool     `toml:"relocate"`
	MarkChunk     int      `toml:"mark-chunk"`
	SweepInterval Duration `toml:"sweep-interval"`
	SweepPressure float64  `toml:"sweep-pressure"`
}

// Loader configures the boot loader.
type Loader struct {
	Name               string `toml:"name"`
	MaxObjectWords     int64  `toml:"max-object-words"`
	MetadataLimitWords int    `toml:"metadata-limit-words"`
}

// Log configures commonlog.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	Path      string `toml:"path"`
}

// Duration is a time.Duration written as a string ("30s") in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load parses the tarray.toml file in dir.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	return LoadFile(path)
}

// LoadFile parses the configuration file at path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	c.Path, err = filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	c.applyDefaults()
	return &c, nil
}

// FindAndLoad walks up from startDir to find a tarray.toml file and loads
// it. Returns Default() if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

func (c *Config) validate() error {
	switch {
	case c.Heap.CapacityWords < 0:
		return fmt.Errorf("heap.capacity-words must not be negative")
	case c.Heap.GCAttempts < 0:
		return fmt.Errorf("heap.gc-attempts must not be negative")
	case c.Loader.MaxObjectWords < 0:
		return fmt.Errorf("loader.max-object-words must not be negative")
	case c.Loader.MetadataLimitWords < 0:
		return fmt.Errorf("loader.metadata-limit-words must not be negative")
	case c.Heap.SweepPressure < 0 || c.Heap.SweepPressure > 1:
		return fmt.Errorf("heap.sweep-pressure must be between 0 and 1")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Heap.CapacityWords == 0 {
		c.Heap.CapacityWords = vm.DefaultCapacityWords
	}
	if c.Heap.GCAttempts == 0 {
		c.Heap.GCAttempts = 1
	}
	if c.Heap.MarkChunk == 0 {
		c.Heap.MarkChunk = vm.DefaultMarkChunk
	}
	if c.Loader.Name == "" {
		c.Loader.Name = vm.DefaultLoaderName
	}
	if c.Loader.MaxObjectWords == 0 {
		c.Loader.MaxObjectWords = vm.DefaultMaxObjectWords
	}
}

// Options converts the configuration to vm.Options.
func (c *Config) Options() vm.Options {
	return vm.Options{
		LoaderName: c.Loader.Name,
		Loader: vm.LoaderOptions{
			MaxObjectWords:     c.Loader.MaxObjectWords,
			MetadataLimitWords: c.Loader.MetadataLimitWords,
		},
		Heap: vm.HeapOptions{
			CapacityWords: c.Heap.CapacityWords,
			GCAttempts:    c.Heap.GCAttempts,
			Relocate:      c.Heap.Relocate,
			MarkChunk:     c.Heap.MarkChunk,
		},
		SweepInterval: c.Heap.SweepInterval.Duration,
		SweepPressure: c.Heap.SweepPressure,
	}
}

// LogPath returns the log file path, or nil for stderr.
func (c *Config) LogPath() *string {
	if c.Log.Path == "" {
		return nil
	}
	return &c.Log.Path
}
