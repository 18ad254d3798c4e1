// Package config handles pyframe.toml runtime configuration.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/chazu/pyframe/vm"
)

// FileName is the configuration file looked up by Load and FindAndLoad.
const FileName = "pyframe.toml"

// StoreEnv overrides the configured store path.
const StoreEnv = "PYFRAME_STORE"

// Config represents a pyframe.toml configuration.
type Config struct {
	Runtime Runtime `toml:"runtime"`
	Log     Log     `toml:"log"`
	Store   Store   `toml:"store"`

	// Dir is the directory containing the pyframe.toml file (set at load time).
	Dir string `toml:"-"`
}

// Runtime configures execution contexts.
type Runtime struct {
	InitialCapacity int `toml:"initial-capacity"`
	TracebackLimit  int `toml:"traceback-limit"`
	MaxDepth        int `toml:"max-depth"`
}

// Log configures logging.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Store configures traceback persistence.
type Store struct {
	Path string `toml:"path"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	opts := vm.DefaultOptions()
	return &Config{
		Runtime: Runtime{
			InitialCapacity: opts.InitialCapacity,
			TracebackLimit:  opts.TracebackLimit,
			MaxDepth:        opts.MaxDepth,
		},
	}
}

// Load parses a pyframe.toml file from the given directory. Keys missing
// from the file keep their defaults.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	if err := toml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	if c.Runtime.InitialCapacity < 0 || c.Runtime.TracebackLimit < 0 || c.Runtime.MaxDepth < 0 {
		return nil, fmt.Errorf("%s: runtime limits must not be negative", path)
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find a pyframe.toml file,
// then loads it. Returns the defaults if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
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
			// Reached root
			return Default(), nil
		}
		dir = parent
	}
}

// Options converts the runtime section to execution context options.
func (c *Config) Options() vm.Options {
	return vm.Options{
		InitialCapacity: c.Runtime.InitialCapacity,
		TracebackLimit:  c.Runtime.TracebackLimit,
		MaxDepth:        c.Runtime.MaxDepth,
	}
}

// StorePath resolves the snapshot database: the PYFRAME_STORE variable,
// then the configured path relative to the config directory, then
// ~/.pyframe/tracebacks.db.
func (c *Config) StorePath() (string, error) {
	if p := os.Getenv(StoreEnv); p != "" {
		return p, nil
	}
	if p := c.Store.Path; p != "" {
		if filepath.IsAbs(p) || c.Dir == "" {
			return p, nil
		}
		return filepath.Join(c.Dir, p), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home dir: %w", err)
	}
	return filepath.Join(home, ".pyframe", "tracebacks.db"), nil
}

// LogFile returns the configured log file, or nil for stderr. Relative
// paths are taken from the config directory.
func (c *Config) LogFile() *string {
	if c.Log.File == "" {
		return nil
	}
	p := c.Log.File
	if !filepath.IsAbs(p) && c.Dir != "" {
		p = filepath.Join(c.Dir, p)
	}
	return &p
}

// Encode writes c in pyframe.toml form.
func (c *Config) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}
