package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrConfigNotFound reports an explicitly requested config file that does not exist.
var ErrConfigNotFound = errors.New("config file not found")

// Loaded is the resolved config plus where it came from.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	// Exists is false when no file was found at the default path and the
	// built-in defaults are in effect.
	Exists bool
}

// Load resolves and reads the config file. A file passed explicitly must
// exist; a missing file at the default XDG path silently yields Default().
func Load(explicitPath string) (Loaded, error) {
	path, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}
	explicit := strings.TrimSpace(explicitPath) != ""

	content, found, err := readConfigFile(path)
	switch {
	case err != nil:
		return Loaded{}, err
	case !found && explicit:
		return Loaded{}, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
	case !found:
		return Loaded{Path: path, Config: Default()}, nil
	}

	cfg, warnings, err := Parse(content, Default())
	if err != nil {
		return Loaded{}, fmt.Errorf("parse config %q: %w", path, err)
	}
	return Loaded{Path: path, Config: cfg, Warnings: warnings, Exists: true}, nil
}

func readConfigFile(path string) (string, bool, error) {
	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read config %q: %w", path, err)
	}
	return string(content), true, nil
}
