package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("MAILMIRROR_HOME", tmpDir)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Data.DataDir != tmpDir {
		t.Errorf("Data.DataDir = %q, want %q", cfg.Data.DataDir, tmpDir)
	}
	if cfg.Sync.BatchSize != 25 || cfg.Sync.Concurrency != 8 || cfg.Sync.RateLimitQPS != 5 {
		t.Errorf("unexpected sync defaults: %+v", cfg.Sync)
	}
	if cfg.Server.APIPort != 8080 {
		t.Errorf("Server.APIPort = %d, want 8080", cfg.Server.APIPort)
	}
	if cfg.Server.APIKey != "" {
		t.Errorf("Server.APIKey = %q, want empty", cfg.Server.APIKey)
	}
	if len(cfg.Accounts) != 0 {
		t.Errorf("Accounts = %v, want empty slice", cfg.Accounts)
	}
	if cfg.DatabasePath() != filepath.Join(tmpDir, "mailmirror.db") {
		t.Errorf("DatabasePath() = %q", cfg.DatabasePath())
	}
}

func TestLoadFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("MAILMIRROR_HOME", tmpDir)

	configContent := `
[data]
data_dir = "/srv/mailmirror"

[remote]
base_url = "https://mail.example.com/api/v1"

[sync]
batch_size = 50
rate_limit_qps = 2

[server]
api_port = 9090
api_key = "test-secret-key"

[[accounts]]
source = "test@example.com"
schedule = "0 2 * * *"
enabled = true

[[accounts]]
source = "other@example.com"
schedule = "0 3 * * *"
enabled = false
`
	configPath := filepath.Join(tmpDir, "config.toml")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Data.DataDir != "/srv/mailmirror" {
		t.Errorf("Data.DataDir = %q", cfg.Data.DataDir)
	}
	if cfg.Remote.BaseURL != "https://mail.example.com/api/v1" {
		t.Errorf("Remote.BaseURL = %q", cfg.Remote.BaseURL)
	}
	if cfg.Sync.BatchSize != 50 {
		t.Errorf("Sync.BatchSize = %d, want 50", cfg.Sync.BatchSize)
	}
	// Unset keys keep their defaults.
	if cfg.Sync.Concurrency != 8 {
		t.Errorf("Sync.Concurrency = %d, want default 8", cfg.Sync.Concurrency)
	}
	if cfg.Server.APIPort != 9090 || cfg.Server.APIKey != "test-secret-key" {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}

	wantAccounts := []AccountSchedule{
		{Source: "test@example.com", Schedule: "0 2 * * *", Enabled: true},
		{Source: "other@example.com", Schedule: "0 3 * * *", Enabled: false},
	}
	if diff := cmp.Diff(wantAccounts, cfg.Accounts); diff != "" {
		t.Errorf("Accounts mismatch (-want +got):\n%s", diff)
	}
}

func TestScheduledAccounts(t *testing.T) {
	cfg := &Config{
		Accounts: []AccountSchedule{
			{Source: "enabled@example.com", Schedule: "0 2 * * *", Enabled: true},
			{Source: "disabled@example.com", Schedule: "0 3 * * *", Enabled: false},
			{Source: "noschedule@example.com", Schedule: "", Enabled: true},
			{Source: "both@example.com", Schedule: "0 4 * * *", Enabled: true},
		},
	}

	scheduled := cfg.ScheduledAccounts()
	if len(scheduled) != 2 {
		t.Fatalf("len(ScheduledAccounts()) = %d, want 2", len(scheduled))
	}
	if scheduled[0].Source != "enabled@example.com" || scheduled[1].Source != "both@example.com" {
		t.Errorf("unexpected scheduled accounts: %+v", scheduled)
	}
}

func TestGetAccountSchedule(t *testing.T) {
	cfg := &Config{
		Accounts: []AccountSchedule{
			{Source: "a@example.com", Schedule: "0 2 * * *", Enabled: true},
		},
	}
	if got := cfg.GetAccountSchedule("a@example.com"); got == nil || got.Schedule != "0 2 * * *" {
		t.Errorf("GetAccountSchedule = %+v", got)
	}
	if got := cfg.GetAccountSchedule("missing@example.com"); got != nil {
		t.Errorf("expected nil for unknown source, got %+v", got)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	if got := expandPath("~/secrets.json"); got != filepath.Join(home, "secrets.json") {
		t.Errorf("expandPath = %q", got)
	}
	if got := expandPath("/abs/path"); got != "/abs/path" {
		t.Errorf("expandPath should leave absolute paths alone, got %q", got)
	}
	if got := expandPath(""); got != "" {
		t.Errorf("expandPath(\"\") = %q", got)
	}
}
