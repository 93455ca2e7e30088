package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Ning0612/ocsync/internal/domain"
	"github.com/Ning0612/ocsync/internal/logger"
)

const sampleConfig = `
account:
  server_url: https://cloud.example.com
  username: alice
  password: s3cret
storage:
  data_dir: /tmp/ocsync-test/data
  save_dir: /tmp/ocsync-test/files
sync:
  interval: 2m
  grace_delay: 250ms
  keep_in_sync:
    - /Documents/**
log:
  level: debug
  format: json
`

func TestLoadFromString(t *testing.T) {
	cfg, err := LoadFromString(sampleConfig)
	if err != nil {
		t.Fatalf("LoadFromString() error = %v", err)
	}

	if cfg.Account.Name != "alice@cloud.example.com" {
		t.Errorf("Expected derived account name, got %q", cfg.Account.Name)
	}
	if cfg.Sync.Interval != 2*time.Minute {
		t.Errorf("Expected 2m interval, got %v", cfg.Sync.Interval)
	}
	if cfg.Sync.GraceDelay != 250*time.Millisecond {
		t.Errorf("Expected 250ms grace delay, got %v", cfg.Sync.GraceDelay)
	}
	if cfg.Sync.Workers != 2 {
		t.Errorf("Expected default 2 workers, got %d", cfg.Sync.Workers)
	}
	if len(cfg.Sync.KeepInSync) != 1 || cfg.Sync.KeepInSync[0] != "/Documents/**" {
		t.Errorf("Expected keep_in_sync pattern, got %v", cfg.Sync.KeepInSync)
	}
	if len(cfg.Sync.Ignore) == 0 {
		t.Error("Expected default ignore globs")
	}
}

func TestLoadFromString_EnvOverride(t *testing.T) {
	t.Setenv("OCSYNC_ACCOUNT_PASSWORD", "from-env")
	t.Setenv("OCSYNC_SYNC_WORKERS", "4")

	cfg, err := LoadFromString(sampleConfig)
	if err != nil {
		t.Fatalf("LoadFromString() error = %v", err)
	}
	if cfg.Account.Password != "from-env" {
		t.Errorf("Expected env password, got %q", cfg.Account.Password)
	}
	if cfg.Sync.Workers != 4 {
		t.Errorf("Expected 4 workers from env, got %d", cfg.Sync.Workers)
	}
}

func TestLoadFromString_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing server", "account:\n  username: alice\n"},
		{"bad scheme", "account:\n  server_url: ftp://host\n  username: alice\n"},
		{"no credentials", "account:\n  server_url: https://host\n"},
		{"token without name", "account:\n  server_url: https://host\n  token: abc\n"},
		{"oauth without name", "account:\n  server_url: https://host\n  oauth_client_id: app\n"},
		{"zero workers", "account:\n  server_url: https://host\n  username: a\nsync:\n  workers: 0\n"},
		{"malformed yaml", "account: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromString(tt.yaml)
			if !errors.Is(err, domain.ErrConfigInvalid) {
				t.Errorf("Expected ErrConfigInvalid, got %v", err)
			}
		})
	}
}

func TestLoadFromString_OAuth(t *testing.T) {
	cfg, err := LoadFromString("account:\n  name: work\n  server_url: https://host\n  oauth_client_id: app\n  oauth_client_secret: shh\n")
	if err != nil {
		t.Fatalf("LoadFromString() error = %v", err)
	}
	if !cfg.Account.UsesOAuth() {
		t.Error("Expected oauth account")
	}
	if filepath.Base(cfg.TokenPath()) != "token.json" {
		t.Errorf("Unexpected token path %q", cfg.TokenPath())
	}

	cfg.Account.Token = "static"
	if cfg.Account.UsesOAuth() {
		t.Error("Expected static token to win over oauth")
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Account.ServerURL != "https://cloud.example.com" {
		t.Errorf("Expected server url, got %q", cfg.Account.ServerURL)
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, domain.ErrConfigNotFound) {
		t.Errorf("Expected ErrConfigNotFound, got %v", err)
	}
}

func TestConfig_Paths(t *testing.T) {
	cfg, err := LoadFromString(sampleConfig)
	if err != nil {
		t.Fatalf("LoadFromString() error = %v", err)
	}

	if got := cfg.DatabasePath(); got != filepath.Join("/tmp/ocsync-test/data", "ocsync.db") {
		t.Errorf("Unexpected database path %q", got)
	}
	if got := cfg.AccountSaveDir(); got != filepath.Join("/tmp/ocsync-test/files", "alice@cloud.example.com") {
		t.Errorf("Unexpected save dir %q", got)
	}
}

func TestConfig_LoggerConfig(t *testing.T) {
	cfg, _ := LoadFromString(sampleConfig)
	lc := cfg.LoggerConfig()

	if lc.Level != logger.LevelDebug {
		t.Errorf("Expected debug level, got %v", lc.Level)
	}
	if lc.Format != logger.FormatJSON {
		t.Errorf("Expected json format, got %v", lc.Format)
	}
	if lc.File.Enabled {
		t.Error("Expected file logging disabled by default")
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := ExpandPath("~/ocsync"); got != filepath.Join(home, "ocsync") {
		t.Errorf("Expected %q, got %q", filepath.Join(home, "ocsync"), got)
	}

	t.Setenv("OCSYNC_TEST_DIR", "/srv/data")
	if got := ExpandPath("$OCSYNC_TEST_DIR/db"); got != "/srv/data/db" {
		t.Errorf("Expected /srv/data/db, got %q", got)
	}
}
