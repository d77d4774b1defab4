package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// dataDirName is the subdirectory within the user's data directory where feed snapshots are stored
	dataDirName = "snapshots"
)

// SnapshotDataDir returns the directory feed snapshots are kept in
func SnapshotDataDir() (string, error) {
	var dataDir string

	if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
		dataDir = xdgDataHome
	} else {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot obtain user home dir: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "civicfeed", dataDirName), nil
}
