package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Ning0612/ocsync/internal/domain"
	"github.com/Ning0612/ocsync/internal/logger"
)

// Config is the complete ocsync configuration.
type Config struct {
	Account AccountConfig `mapstructure:"account"`
	Storage StorageConfig `mapstructure:"storage"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Log     LogConfig     `mapstructure:"log"`
}

// AccountConfig identifies the ownCloud account and how to authenticate.
// Token wins over OAuth, and OAuth wins over Username/Password.
type AccountConfig struct {
	Name               string `mapstructure:"name"`
	ServerURL          string `mapstructure:"server_url"`
	Username           string `mapstructure:"username"`
	Password           string `mapstructure:"password"`
	Token              string `mapstructure:"token"`
	OAuthClientID      string `mapstructure:"oauth_client_id"`
	OAuthClientSecret  string `mapstructure:"oauth_client_secret"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

// UsesOAuth reports whether tokens come from the stored OAuth grant.
func (a AccountConfig) UsesOAuth() bool {
	return a.Token == "" && a.OAuthClientID != ""
}

// StorageConfig 本機儲存位置
type StorageConfig struct {
	// DataDir holds the database, trusted certificates and the lock.
	DataDir string `mapstructure:"data_dir"`
	// SaveDir holds downloaded copies, one subdirectory per account.
	SaveDir string `mapstructure:"save_dir"`
}

// SyncConfig tunes the coordinator, the transfer engine and the observer.
type SyncConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	GraceDelay time.Duration `mapstructure:"grace_delay"`
	Workers    int           `mapstructure:"workers"`
	// KeepInSync holds remote path globs marked kept in sync on discovery.
	KeepInSync []string `mapstructure:"keep_in_sync"`
	// Ignore holds local name globs the observer never reports.
	Ignore   []string      `mapstructure:"ignore"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// LogConfig mirrors logger.Config in config-file form.
type LogConfig struct {
	Level   string        `mapstructure:"level"`
	Format  string        `mapstructure:"format"`
	Console bool          `mapstructure:"console"`
	File    LogFileConfig `mapstructure:"file"`
}

type LogFileConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// Validate checks that the configuration is complete and consistent.
// It fills in the account name when it can be derived.
func (c *Config) Validate() error {
	if c.Account.ServerURL == "" {
		return fmt.Errorf("%w: account.server_url is required", domain.ErrConfigInvalid)
	}
	u, err := url.Parse(c.Account.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: account.server_url must be an http(s) URL: %q", domain.ErrConfigInvalid, c.Account.ServerURL)
	}
	if c.Account.Token == "" && c.Account.OAuthClientID == "" && c.Account.Username == "" {
		return fmt.Errorf("%w: account needs a token, an oauth client or a username", domain.ErrConfigInvalid)
	}
	if c.Account.Name == "" {
		if c.Account.Username == "" {
			return fmt.Errorf("%w: account.name is required without a username", domain.ErrConfigInvalid)
		}
		c.Account.Name = c.Account.Username + "@" + u.Host
	}
	if strings.ContainsAny(c.Account.Name, `/\`) {
		return fmt.Errorf("%w: account.name must not contain path separators", domain.ErrConfigInvalid)
	}

	if c.Storage.DataDir == "" || c.Storage.SaveDir == "" {
		return fmt.Errorf("%w: storage.data_dir and storage.save_dir are required", domain.ErrConfigInvalid)
	}
	if c.Sync.Workers < 1 {
		return fmt.Errorf("%w: sync.workers must be at least 1", domain.ErrConfigInvalid)
	}
	if c.Sync.Interval < 0 || c.Sync.GraceDelay < 0 || c.Sync.Debounce < 0 {
		return fmt.Errorf("%w: sync durations must not be negative", domain.ErrConfigInvalid)
	}
	if c.Log.File.Enabled && c.Log.File.Path == "" {
		return fmt.Errorf("%w: log.file.path is required when file logging is enabled", domain.ErrConfigInvalid)
	}
	return nil
}

// DatabasePath is the FileRecord store.
func (c *Config) DatabasePath() string {
	return filepath.Join(ExpandPath(c.Storage.DataDir), "ocsync.db")
}

// HistoryPath is the sync history database.
func (c *Config) HistoryPath() string {
	return filepath.Join(ExpandPath(c.Storage.DataDir), "history.db")
}

// CertPath is the PEM bundle of certificates the user accepted.
func (c *Config) CertPath() string {
	return filepath.Join(ExpandPath(c.Storage.DataDir), "trusted.pem")
}

// TokenPath is the stored OAuth token.
func (c *Config) TokenPath() string {
	return filepath.Join(ExpandPath(c.Storage.DataDir), "token.json")
}

// JournalPath is the pending transfer journal.
func (c *Config) JournalPath() string {
	return filepath.Join(ExpandPath(c.Storage.DataDir), "transfers.db")
}

// LockDir holds instance locks.
func (c *Config) LockDir() string {
	return filepath.Join(ExpandPath(c.Storage.DataDir), "locks")
}

// AccountSaveDir is where the account's downloads live.
func (c *Config) AccountSaveDir() string {
	return filepath.Join(ExpandPath(c.Storage.SaveDir), c.Account.Name)
}

// LoggerConfig converts the log section for logger.Init.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:   logger.ParseLevel(c.Log.Level),
		Format:  logger.ParseFormat(c.Log.Format),
		Console: c.Log.Console,
		File: logger.FileConfig{
			Enabled:    c.Log.File.Enabled,
			Path:       ExpandPath(c.Log.File.Path),
			MaxSizeMB:  c.Log.File.MaxSizeMB,
			MaxAgeDays: c.Log.File.MaxAgeDays,
			MaxBackups: c.Log.File.MaxBackups,
			Compress:   c.Log.File.Compress,
		},
	}
}

// ExpandPath expands ~ and environment variables in a path
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			switch {
			case len(path) == 1:
				path = home
			case path[1] == '/' || path[1] == filepath.Separator:
				path = filepath.Join(home, path[2:])
			}
		}
	}
	return filepath.Clean(os.ExpandEnv(path))
}
