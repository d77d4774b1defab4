package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// DefaultSnapshot is the snapshot name used when none is given
const DefaultSnapshot = "feed"

// Store keeps feed snapshots as yaml files, one per name
type Store struct {
	dataDir string
}

// NewStore creates a store rooted at dataDir
func NewStore(dataDir string) *Store {
	return &Store{
		dataDir: dataDir,
	}
}

// ValidateName rejects snapshot names that cannot be used as a file name
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid snapshot name %q", name)
	}
	return nil
}

func (s *Store) ensureDataDir() error {
	return os.MkdirAll(s.dataDir, 0755)
}

func (s *Store) snapshotPath(name string) string {
	return filepath.Join(s.dataDir, name+".yaml")
}

// Save writes a snapshot, replacing an earlier one of the same name
func (s *Store) Save(snapshot Snapshot) error {
	if err := ValidateName(snapshot.Name); err != nil {
		return err
	}
	if err := s.ensureDataDir(); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	data, err := yaml.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := os.WriteFile(s.snapshotPath(snapshot.Name), data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}
	return nil
}

// Load reads a snapshot. A snapshot that was never saved yields nil without an error.
func (s *Store) Load(name string) (*Snapshot, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.snapshotPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var snapshot Snapshot
	if err := yaml.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snapshot, nil
}

// Exists checks whether a snapshot was saved
func (s *Store) Exists(name string) bool {
	if ValidateName(name) != nil {
		return false
	}
	_, err := os.Stat(s.snapshotPath(name))
	return err == nil
}

// List describes all stored snapshots, sorted by name
func (s *Store) List() ([]SnapshotListItem, error) {
	if err := s.ensureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}

	var items []SnapshotListItem
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".yaml")
		snapshot, err := s.Load(name)
		if err != nil || snapshot == nil {
			logrus.WithError(err).WithField("snapshot", name).Warn("Skipping unreadable snapshot")
			continue
		}
		items = append(items, SnapshotListItem{
			Name:        name,
			LastFetched: snapshot.LastFetched,
			IssueCount:  len(snapshot.Issues),
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

// Delete removes a snapshot. Deleting a missing snapshot is not an error.
func (s *Store) Delete(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := os.Remove(s.snapshotPath(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete snapshot file: %w", err)
	}
	return nil
}

// DataDir returns the directory snapshots are stored in
func (s *Store) DataDir() string {
	return s.dataDir
}
