package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Ning0612/ocsync/internal/domain"
)

// EnvPrefix prefixes environment overrides, e.g. OCSYNC_ACCOUNT_PASSWORD.
const EnvPrefix = "OCSYNC"

// DefaultConfigPaths returns the default paths to search for config files
func DefaultConfigPaths() []string {
	paths := []string{".", "./configs"}

	if configDir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(configDir, "ocsync"))
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".ocsync"))
	}
	return paths
}

// defaultDataDir lives under the user config dir when there is one.
func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "ocsync")
	}
	return "~/.ocsync"
}

func newViper() *viper.Viper {
	v := viper.New()

	// 所有 key 都需要預設值，AutomaticEnv 才能覆寫
	v.SetDefault("account.name", "")
	v.SetDefault("account.server_url", "")
	v.SetDefault("account.username", "")
	v.SetDefault("account.password", "")
	v.SetDefault("account.token", "")
	v.SetDefault("account.oauth_client_id", "")
	v.SetDefault("account.oauth_client_secret", "")
	v.SetDefault("account.insecure_skip_verify", false)

	v.SetDefault("storage.data_dir", defaultDataDir())
	v.SetDefault("storage.save_dir", filepath.Join(defaultDataDir(), "files"))

	v.SetDefault("sync.interval", 5*time.Minute)
	v.SetDefault("sync.grace_delay", time.Duration(0))
	v.SetDefault("sync.workers", 2)
	v.SetDefault("sync.keep_in_sync", []string{})
	v.SetDefault("sync.ignore", []string{"**/.~lock.*", "**/*.swp", "**/~$*", "**/.DS_Store"})
	v.SetDefault("sync.debounce", 500*time.Millisecond)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.console", true)
	v.SetDefault("log.file.enabled", false)
	v.SetDefault("log.file.path", "")
	v.SetDefault("log.file.max_size_mb", 10)
	v.SetDefault("log.file.max_age_days", 30)
	v.SetDefault("log.file.max_backups", 5)
	v.SetDefault("log.file.compress", true)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads and parses a configuration file
// If path is empty, searches default locations for config.yaml
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, p := range DefaultConfigPaths() {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return nil, domain.ErrConfigNotFound
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}

	return decode(v)
}

// LoadFromString parses configuration from a YAML string
func LoadFromString(yamlContent string) (*Config, error) {
	v := newViper()
	v.SetConfigType("yaml")

	if err := v.ReadConfig(strings.NewReader(yamlContent)); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
