package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// configDirName is a directory in the user's config directory where civicfeed configuration is stored
	configDirName string = "civicfeed"
)

// ConfigDir returns the civicfeed directory inside the user's config directory
func ConfigDir() (string, error) {
	userConfigDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot obtain user config dir: %w", err)
	}
	return filepath.Join(userConfigDir, configDirName), nil
}

// MustConfigDir is ConfigDir for flag defaults, where an error cannot be returned
func MustConfigDir() string {
	dir, err := ConfigDir()
	if err != nil {
		panic(err)
	}
	return dir
}
