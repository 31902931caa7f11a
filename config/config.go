// Package config loads dualc's settings from a YAML file with environment
// overrides.
//
// Precedence, lowest first: built-in defaults, the YAML file, then DUALC_*
// environment variables. The result is validated before it is returned.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	dcerrors "github.com/sbl8/dualc/errors"
)

// MaxFileSize bounds the config file read.
const MaxFileSize = 1 << 20

// Config is the full settings tree.
type Config struct {
	Log      Log      `yaml:"log"`
	Compiler Compiler `yaml:"compiler"`
	Store    Store    `yaml:"store"`
	Runtime  Runtime  `yaml:"runtime"`
}

// Log configures the process logger.
type Log struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`
}

// Compiler configures compilation.
type Compiler struct {
	// CacheSize is the number of plans kept in the in-memory LRU.
	CacheSize int `yaml:"cache_size" validate:"min=0,max=1000000"`
	// Specialize turns on table specialization for every descriptor.
	Specialize bool `yaml:"specialize"`
	MaxPasses  int  `yaml:"max_passes" validate:"min=1,max=65536"`
}

// Store configures the persistent plan store. An empty Path with InMemory
// off disables it.
type Store struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

// Enabled reports whether a plan store should be opened.
func (s Store) Enabled() bool { return s.InMemory || s.Path != "" }

// Runtime configures execution.
type Runtime struct {
	// Fallback retries a fast plan on the general backend after NotRank1.
	Fallback bool `yaml:"fallback"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Log:      Log{Level: "info"},
		Compiler: Compiler{CacheSize: 256, MaxPasses: 256},
		Runtime:  Runtime{Fallback: true},
	}
}

var validate = validator.New()

// Validate checks every field.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return dcerrors.Wrap(err, dcerrors.CodeMalformedDescriptor, dcerrors.CategoryIO, "invalid configuration")
	}
	return nil
}

// Load reads path (if non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		info, err := os.Stat(path)
		if err != nil {
			return cfg, err
		}
		if info.Size() > MaxFileSize {
			return cfg, fmt.Errorf("config file %s is %d bytes, limit is %d", path, info.Size(), MaxFileSize)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, dcerrors.Wrap(err, dcerrors.CodeMalformedDescriptor, dcerrors.CategoryIO, "config file is not valid YAML").
				WithContext("path", path)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overrides fields from DUALC_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	boolean := func(key string, dst *bool) error {
		v, ok := lookup(key)
		if !ok {
			return nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = b
		return nil
	}
	integer := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str("DUALC_LOG_LEVEL", &c.Log.Level)
	str("DUALC_STORE_PATH", &c.Store.Path)
	for _, err := range []error{
		boolean("DUALC_LOG_JSON", &c.Log.JSON),
		boolean("DUALC_SPECIALIZE", &c.Compiler.Specialize),
		boolean("DUALC_STORE_IN_MEMORY", &c.Store.InMemory),
		boolean("DUALC_FALLBACK", &c.Runtime.Fallback),
		integer("DUALC_CACHE_SIZE", &c.Compiler.CacheSize),
		integer("DUALC_MAX_PASSES", &c.Compiler.MaxPasses),
	} {
		if err != nil {
			return err
		}
	}
	c.Log.Level = strings.ToLower(c.Log.Level)
	return nil
}
