package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultStateDir returns the default vocaris state directory.
// VOCARIS_STATE_DIR overrides it.
func DefaultStateDir() (string, error) {
	if dir := os.Getenv("VOCARIS_STATE_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}

	return filepath.Join(home, ".local", "state", "vocaris"), nil
}

// DefaultConfigDir returns the directory holding the global config file.
func DefaultConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "vocaris"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}

	return filepath.Join(home, ".config", "vocaris"), nil
}

// WorkingDir returns the current working directory.
func WorkingDir() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	return cwd, nil
}
