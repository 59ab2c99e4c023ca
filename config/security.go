package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/c360/flightrelay/errors"
)

const (
	maxConfigSize = 1 << 20 // relay.yaml is a few hundred bytes
	maxEnvValLen  = 8192
	maxPathLen    = 4096
)

// checkConfigPath accepts any YAML path the operator names, relative paths
// outside the working directory included.
func checkConfigPath(path string) error {
	switch {
	case path == "":
		return fmt.Errorf("%w: empty config path", errors.ErrInvalidConfig)
	case len(path) > maxPathLen:
		return fmt.Errorf("%w: config path is %d bytes, limit %d", errors.ErrInvalidConfig, len(path), maxPathLen)
	case strings.ContainsRune(path, 0):
		return fmt.Errorf("%w: null byte in config path", errors.ErrInvalidConfig)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return nil
	default:
		return fmt.Errorf("%w: only YAML config files allowed: %s", errors.ErrInvalidConfig, path)
	}
}

// readConfigFile reads the relay YAML file. Symlinks are followed so
// mounted config maps work; the target must be a small regular file.
func readConfigFile(path string) ([]byte, error) {
	if err := checkConfigPath(path); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", errors.ErrInvalidConfig, path)
	}
	if info.Size() > maxConfigSize {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", errors.ErrInvalidConfig, path, info.Size(), maxConfigSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err)
	}
	return data, nil
}

// checkEnvValue rejects values no setting could hold. Secrets are never
// echoed back in the error.
func checkEnvValue(key, value string) error {
	if len(value) > maxEnvValLen {
		return fmt.Errorf("%w: %s is %d bytes, limit %d", errors.ErrInvalidConfig, key, len(value), maxEnvValLen)
	}
	if strings.ContainsRune(value, 0) {
		return fmt.Errorf("%w: null byte in %s", errors.ErrInvalidConfig, key)
	}
	return nil
}
