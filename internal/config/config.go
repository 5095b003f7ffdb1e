// Package config handles loading and managing mailmirror configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the mailmirror configuration.
type Config struct {
	Data     DataConfig        `toml:"data"`
	Remote   RemoteConfig      `toml:"remote"`
	Sync     SyncConfig        `toml:"sync"`
	Server   ServerConfig      `toml:"server"`
	Accounts []AccountSchedule `toml:"accounts"`

	// Computed paths (not from config file)
	HomeDir string `toml:"-"`
}

// DataConfig holds data storage configuration.
type DataConfig struct {
	DataDir string `toml:"data_dir"`
}

// RemoteConfig holds remote message-store configuration.
type RemoteConfig struct {
	BaseURL       string `toml:"base_url"`
	ClientSecrets string `toml:"client_secrets"` // OAuth client secrets file
}

// SyncConfig holds sync-related configuration.
type SyncConfig struct {
	BatchSize    int `toml:"batch_size"`
	Concurrency  int `toml:"concurrency"`
	RateLimitQPS int `toml:"rate_limit_qps"`
}

// ServerConfig holds HTTP API server configuration.
type ServerConfig struct {
	APIPort int    `toml:"api_port"` // HTTP server port (default: 8080)
	APIKey  string `toml:"api_key"`  // API authentication key
}

// AccountSchedule defines the sync schedule for a single source.
type AccountSchedule struct {
	Source   string `toml:"source"`   // source identity, e.g. account email
	Schedule string `toml:"schedule"` // Cron expression (e.g., "0 2 * * *" for 2am daily)
	Enabled  bool   `toml:"enabled"`  // Whether scheduled sync is active
}

// DefaultHome returns the default mailmirror home directory.
// Respects the MAILMIRROR_HOME environment variable.
func DefaultHome() string {
	if h := os.Getenv("MAILMIRROR_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mailmirror"
	}
	return filepath.Join(home, ".mailmirror")
}

// Load reads the configuration from the specified file.
// If path is empty, uses the default location (~/.mailmirror/config.toml).
func Load(path string) (*Config, error) {
	homeDir := DefaultHome()

	if path == "" {
		path = filepath.Join(homeDir, "config.toml")
	}

	cfg := &Config{
		HomeDir: homeDir,
		// Defaults
		Data: DataConfig{
			DataDir: homeDir,
		},
		Sync: SyncConfig{
			BatchSize:    25,
			Concurrency:  8,
			RateLimitQPS: 5,
		},
		Server: ServerConfig{
			APIPort: 8080,
		},
		Accounts: []AccountSchedule{},
	}

	// Config file is optional - use defaults if not present
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// Expand ~ in paths
	cfg.Data.DataDir = expandPath(cfg.Data.DataDir)
	cfg.Remote.ClientSecrets = expandPath(cfg.Remote.ClientSecrets)

	return cfg, nil
}

// DatabasePath returns the path to the SQLite database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Data.DataDir, "mailmirror.db")
}

// TokensDir returns the path to the OAuth tokens directory.
func (c *Config) TokensDir() string {
	return filepath.Join(c.Data.DataDir, "tokens")
}

// ScheduledAccounts returns accounts with scheduling enabled.
func (c *Config) ScheduledAccounts() []AccountSchedule {
	var scheduled []AccountSchedule
	for _, acc := range c.Accounts {
		if acc.Enabled && acc.Schedule != "" {
			scheduled = append(scheduled, acc)
		}
	}
	return scheduled
}

// GetAccountSchedule returns the schedule for a specific source.
// Returns nil if the source is not configured for scheduling.
func (c *Config) GetAccountSchedule(source string) *AccountSchedule {
	for i := range c.Accounts {
		if c.Accounts[i].Source == source {
			return &c.Accounts[i]
		}
	}
	return nil
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
