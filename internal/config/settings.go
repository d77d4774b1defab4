package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

const (
	settingsFileName = "settings.yaml"

	// DefaultPostRoute is the share link route used when none is configured
	DefaultPostRoute = "posts"
)

// Environment variables read by civicfeed
const (
	EnvAPIBase   = "CIVIC_API_BASE"
	EnvWSURL     = "CIVIC_WS_URL"
	EnvPostRoute = "CIVIC_POST_ROUTE"
	EnvOrigin    = "CIVIC_ORIGIN"
	EnvToken     = "CIVIC_TOKEN"
)

// Settings are the persistent defaults of civicfeed. Flags override them.
type Settings struct {
	// APIBase is the base URL of the issue store
	APIBase string `yaml:"apiBase"`
	// WSURL is the realtime channel; empty disables realtime updates
	WSURL string `yaml:"wsUrl"`
	// PostRoute is the path segment of share links
	PostRoute string `yaml:"postRoute"`
	// Origin is the public site share links point to
	Origin string `yaml:"origin"`
	// TokenFile holds the bearer token issued by the identity provider
	TokenFile string `yaml:"tokenFile"`

	// Token comes from the environment only and is never written to disk
	Token string `yaml:"-"`
}

// SettingsPath returns the default location of the settings file
func SettingsPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, settingsFileName), nil
}

// LoadSettings reads settings from path. A missing file yields empty settings.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Settings{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	var settings Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings file: %w", err)
	}
	return &settings, nil
}

// Save writes the settings to path
func (s *Settings) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	return nil
}

// ApplyEnv overrides settings with the environment variables that are set
func (s *Settings) ApplyEnv(lookup func(string) (string, bool)) {
	for env, field := range map[string]*string{
		EnvAPIBase:   &s.APIBase,
		EnvWSURL:     &s.WSURL,
		EnvPostRoute: &s.PostRoute,
		EnvOrigin:    &s.Origin,
		EnvToken:     &s.Token,
	} {
		if value, ok := lookup(env); ok && strings.TrimSpace(value) != "" {
			*field = strings.TrimSpace(value)
		}
	}
}

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
		logrus.WithField("file", path).Debug("Loaded environment file")
	}
	return nil
}

// Load assembles settings from the settings file at path and the
// environment, after loading .env from the working directory
func Load(path string) (*Settings, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	settings, err := LoadSettings(path)
	if err != nil {
		return nil, err
	}
	settings.ApplyEnv(os.LookupEnv)
	return settings, nil
}
