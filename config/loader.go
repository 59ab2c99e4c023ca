package config

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/c360/flightrelay/errors"
)

// DefaultEnvFile is read when present. A missing file is not an error.
const DefaultEnvFile = ".env"

// LookupFunc resolves an environment key.
type LookupFunc func(key string) (string, bool)

// Loader assembles a Config from defaults, a YAML file and the environment.
type Loader struct {
	lookup  LookupFunc
	envFile string
	dotenv  map[string]string
}

// LoaderOption configures a Loader
type LoaderOption func(*Loader)

// WithLookup replaces os.LookupEnv, mainly for tests.
func WithLookup(fn LookupFunc) LoaderOption {
	return func(l *Loader) {
		if fn != nil {
			l.lookup = fn
		}
	}
}

// WithEnvFile changes the dotenv file. An empty path disables it.
func WithEnvFile(path string) LoaderOption {
	return func(l *Loader) {
		l.envFile = path
	}
}

// NewLoader creates a loader reading the process environment.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		lookup:  os.LookupEnv,
		envFile: DefaultEnvFile,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load builds and validates the configuration. path names an optional YAML
// file; pass "" to skip it.
func (l *Loader) Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := l.loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := l.loadEnvFile(); err != nil {
		return nil, err
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) loadFile(path string, cfg *Config) error {
	data, err := readConfigFile(path)
	if err != nil {
		return errors.WrapInvalid(err, "Loader", "Load", "read config file")
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return errors.WrapInvalid(fmt.Errorf("parse %s: %w", path, err), "Loader", "Load", "decode yaml")
	}
	return nil
}

func (l *Loader) loadEnvFile() error {
	if l.envFile == "" {
		return nil
	}
	values, err := godotenv.Read(l.envFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return errors.WrapInvalid(err, "Loader", "Load", "read env file")
	}
	l.dotenv = values
	return nil
}

// get returns the process value first, then the dotenv value.
func (l *Loader) get(key string) (string, bool, error) {
	val, ok := l.lookup(key)
	if !ok {
		val, ok = l.dotenv[key]
	}
	if !ok || val == "" {
		return "", false, nil
	}
	if err := checkEnvValue(key, val); err != nil {
		return "", false, errors.WrapInvalid(err, "Loader", "Load", "validate env")
	}
	return val, true, nil
}
