package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/renameio"
	"gopkg.in/yaml.v3"
)

// ErrConfigExists is returned by WriteDefault when the file is already there
// and force is not set.
var ErrConfigExists = errors.New("config file already exists")

// GenerateYAML renders cfg as a YAML document.
func GenerateYAML(cfg *Config) ([]byte, error) {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	header := []byte("# geofs configuration. Environment variables GEOFS_<SECTION>_<KEY> override these values.\n")
	return append(header, out...), nil
}

// WriteDefault writes the default configuration to path, or to the default
// location when path is empty, and returns the path written.
func WriteDefault(path string, force bool) (string, error) {
	if path == "" {
		path = DefaultConfigPath()
	}
	if _, err := os.Stat(path); err == nil && !force {
		return path, fmt.Errorf("%w: %s", ErrConfigExists, path)
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return path, err
	}

	data, err := GenerateYAML(Default())
	if err != nil {
		return path, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return path, fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return path, fmt.Errorf("failed to write config: %w", err)
	}
	return path, nil
}
