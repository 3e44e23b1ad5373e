// Package config loads the project configuration file.
//
// The file is YAML and every key is optional:
//
//	store: symbol_hashes
//	format: structured
//	prefix: symslash
//	keep_static: false
//
// Command-line flags override the file, and the file overrides built-in
// defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/symslash/internal/codec"
	"github.com/roach88/symslash/internal/ident"
)

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = ".symslash.yaml"

// DefaultStore is the store path used when neither flag nor file names one.
const DefaultStore = "symbol_hashes"

// Config is the project configuration.
type Config struct {
	// Store is the symbol store path. Relative paths are resolved against
	// the working directory, not the config file.
	Store string `yaml:"store"`

	// Format is the store format: auto, legacy or structured.
	Format codec.Format `yaml:"format"`

	// Prefix of opaque identifiers.
	Prefix ident.Prefix `yaml:"prefix"`

	// KeepStatic leaves the static symbol table in hashed objects.
	KeepStatic bool `yaml:"keep_static"`

	// Path is the file the configuration was read from, or "" for defaults.
	Path string `yaml:"-"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Store:  DefaultStore,
		Format: codec.FormatAuto,
		Prefix: ident.DefaultPrefix,
	}
}

// Load reads the configuration at path. Keys missing from the file keep
// their defaults. Unknown keys are errors.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	cfg.Path = path

	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDefault reads DefaultFile from dir, or returns Default when the file
// does not exist.
func LoadDefault(dir string) (Config, error) {
	path := filepath.Join(dir, DefaultFile)
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

func (c *Config) validate() error {
	if c.Store == "" {
		return fmt.Errorf("store must not be empty")
	}
	format, err := codec.ParseFormat(string(c.Format))
	if err != nil {
		return err
	}
	c.Format = format
	prefix, err := ident.ParsePrefix(string(c.Prefix))
	if err != nil {
		return err
	}
	c.Prefix = prefix
	return nil
}
