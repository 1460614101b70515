package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// ConfigDir returns the XDG config directory for redp.
func ConfigDir() (string, error) {
	// Explicit override (useful for tests and portable installs)
	if override := os.Getenv("REDP_CONFIG_DIR"); override != "" {
		return override, nil
	}

	var base string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		base = xdg
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("get home directory: %w", err)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, appName), nil
}

// CacheDir returns the XDG cache directory holding the lock, log and default state database.
func CacheDir() (string, error) {
	if override := os.Getenv("REDP_CACHE_DIR"); override != "" {
		return override, nil
	}

	var base string
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		base = xdg
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("get home directory: %w", err)
		}
		base = filepath.Join(home, ".cache")
	}
	return filepath.Join(base, appName), nil
}
