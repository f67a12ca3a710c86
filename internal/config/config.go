// Package config handles bulfinch run configuration, read from a TOML or
// YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Color modes for terminal output.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// Config controls how scripts are run.
type Config struct {
	// Trace logs every executed instruction at debug level.
	Trace bool `toml:"trace" yaml:"trace"`
	// LogLevel is a logrus level name.
	LogLevel string `toml:"log_level" yaml:"log_level"`
	// InstructionLimit caps instructions per run; 0 means unlimited.
	InstructionLimit int `toml:"instruction_limit" yaml:"instruction_limit"`
	// MaxFrames caps call depth; 0 selects the VM default.
	MaxFrames int `toml:"max_frames" yaml:"max_frames"`
	// ScriptExt is the extension `bulfinch test` looks for in directories.
	ScriptExt string `toml:"script_ext" yaml:"script_ext"`
	// Color is auto, always or never.
	Color string `toml:"color" yaml:"color"`

	// Path is the file the configuration was read from (set at load time).
	Path string `toml:"-" yaml:"-"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		ScriptExt: ".bf",
		Color:     ColorAuto,
	}
}

// Load reads the configuration at path, choosing the decoder by extension.
// An empty path returns the defaults. Fields absent from the file keep
// their default values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse error in %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse error in %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q (want .toml, .yaml or .yml)", ext)
	}
	cfg.Path = path
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects out-of-range values.
func (c *Config) Validate() error {
	if c.InstructionLimit < 0 {
		return fmt.Errorf("instruction_limit must not be negative, got %d", c.InstructionLimit)
	}
	if c.MaxFrames < 0 {
		return fmt.Errorf("max_frames must not be negative, got %d", c.MaxFrames)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if !strings.HasPrefix(c.ScriptExt, ".") {
		return fmt.Errorf("script_ext must start with a dot, got %q", c.ScriptExt)
	}
	switch c.Color {
	case ColorAuto, ColorAlways, ColorNever:
	default:
		return fmt.Errorf("color must be %s, %s or %s, got %q", ColorAuto, ColorAlways, ColorNever, c.Color)
	}
	return nil
}

// Level returns the parsed log level. Validate must have passed.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}
