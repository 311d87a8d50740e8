// Package config manages blockcast configuration and the .blockcast directory
// structure: the server to publish to, the saved session and local recordings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	Dir           = ".blockcast"
	ConfigFile    = "config"
	RecordingsDir = "recordings"
	VideosDir     = "videos"

	DefaultServerURL = "http://localhost:8720"
)

// Config represents the blockcast configuration
type Config struct {
	ServerURL      string    `toml:"server_url"`
	Username       string    `toml:"username,omitempty"`
	Token          string    `toml:"token,omitempty"`
	TokenExpiresAt time.Time `toml:"token_expires_at"`
	path           string    // path to .blockcast directory
}

// FindRoot finds the .blockcast directory by walking up from start.
func FindRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}

	for {
		candidate := filepath.Join(dir, Dir)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not a blockcast workspace (or any parent up to root)")
		}
		dir = parent
	}
}

// Load loads the configuration found from the current directory.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return LoadFrom(cwd)
}

// LoadFrom loads the configuration found by walking up from dir.
func LoadFrom(dir string) (*Config, error) {
	root, err := FindRoot(dir)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(root, ConfigFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.path = root
	return &cfg, nil
}

// Save writes the configuration. The file holds a session token, so it is
// only readable by its owner.
func (c *Config) Save() error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(filepath.Join(c.path, ConfigFile), data, 0600)
}

// Path returns the path to the .blockcast directory
func (c *Config) Path() string {
	return c.path
}

// RecordingsPath returns where local recordings are kept.
func (c *Config) RecordingsPath() string {
	return filepath.Join(c.path, RecordingsDir)
}

// VideosPath returns where captured videos are kept before upload.
func (c *Config) VideosPath() string {
	return filepath.Join(c.path, VideosDir)
}

// SetSession stores a login.
func (c *Config) SetSession(username, token string, expiresAt time.Time) {
	c.Username = username
	c.Token = token
	c.TokenExpiresAt = expiresAt.UTC()
}

// ClearSession forgets the saved token but keeps the username.
func (c *Config) ClearSession() {
	c.Token = ""
	c.TokenExpiresAt = time.Time{}
}

// SessionValid reports whether a saved token exists and has not expired at now.
func (c *Config) SessionValid(now time.Time) bool {
	return c.Token != "" && now.Before(c.TokenExpiresAt)
}

// Initialize creates a new .blockcast directory in dir.
func Initialize(dir, serverURL string) (*Config, error) {
	root := filepath.Join(dir, Dir)

	if _, err := os.Stat(root); err == nil {
		return nil, fmt.Errorf("blockcast workspace already exists")
	}

	for _, sub := range []string{root, filepath.Join(root, RecordingsDir), filepath.Join(root, VideosDir)} {
		if err := os.MkdirAll(sub, 0755); err != nil {
			os.RemoveAll(root)
			return nil, fmt.Errorf("failed to create %s: %w", sub, err)
		}
	}

	if serverURL == "" {
		serverURL = DefaultServerURL
	}
	cfg := &Config{ServerURL: serverURL, path: root}

	if err := cfg.Save(); err != nil {
		// Cleanup on failure
		os.RemoveAll(root)
		return nil, err
	}
	return cfg, nil
}
