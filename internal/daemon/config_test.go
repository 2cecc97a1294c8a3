package daemon

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "127.0.0.1")
	}
	if cfg.API.Port != 7420 {
		t.Errorf("API.Port = %d, want %d", cfg.API.Port, 7420)
	}
	if cfg.Governance.QuorumPercent != 30 {
		t.Errorf("Governance.QuorumPercent = %d, want %d", cfg.Governance.QuorumPercent, 30)
	}
	if cfg.Governance.PassThresholdPercent != 60 {
		t.Errorf("Governance.PassThresholdPercent = %d, want %d", cfg.Governance.PassThresholdPercent, 60)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("Storage.Driver = %q, want %q", cfg.Storage.Driver, "sqlite")
	}
	if !cfg.Keeper.Enabled {
		t.Error("Keeper.Enabled should be true by default")
	}
	if cfg.KeeperInterval() != time.Minute {
		t.Errorf("KeeperInterval = %s, want 1m", cfg.KeeperInterval())
	}
	if got := cfg.EngineConfig().VotingPeriod; got != 7*24*time.Hour {
		t.Errorf("VotingPeriod = %s, want 168h", got)
	}

	// No owner yet
	if err := cfg.Validate(); err == nil {
		t.Error("default config without owner should not validate")
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"90s", 90 * time.Second},
		{"168h", 168 * time.Hour},
		{" 2m ", 2 * time.Minute},
		{"", time.Hour},     // Default
		{"soon", time.Hour}, // Default
		{"-5m", time.Hour},  // Default
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseDuration(tt.input, time.Hour)
			if got != tt.want {
				t.Errorf("parseDuration(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoadConfig_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.API.Port != DefaultConfig().API.Port {
		t.Errorf("port = %d", cfg.API.Port)
	}
}

func TestLoadConfig_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFile)
	data := `
[api]
port = 9000

[governance]
owner = "founder"
voting_period = "48h"
quorum_percent = 50

[storage]
driver = "memory"

[keeper]
interval = "15s"
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	ec := cfg.EngineConfig()
	if ec.Owner != "founder" || ec.VotingPeriod != 48*time.Hour {
		t.Errorf("engine config = %+v", ec)
	}
	if ec.Params.QuorumPercent != 50 || ec.Params.PassThresholdPercent != 60 {
		t.Errorf("params = %+v", ec.Params)
	}
	if cfg.Addr() != "127.0.0.1:9000" {
		t.Errorf("addr = %q", cfg.Addr())
	}
	if cfg.KeeperInterval() != 15*time.Second {
		t.Errorf("keeper interval = %s", cfg.KeeperInterval())
	}
	if cfg.Keeper.Caller != "keeper" {
		t.Errorf("keeper caller = %q, want default", cfg.Keeper.Caller)
	}
}

func TestLoadConfig_UnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFile)
	if err := os.WriteFile(path, []byte("[api]\nprot = 1\n"), 0600); err != nil {
		t.Fatal(err)
	}
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "api.prot") {
		t.Errorf("err = %v, want unknown key api.prot", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.API.Port = 0 }},
		{"bad driver", func(c *Config) { c.Storage.Driver = "postgres" }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
		{"keeper without caller", func(c *Config) { c.Keeper.Caller = " " }},
		{"quorum out of range", func(c *Config) { c.Governance.QuorumPercent = 0 }},
		{"threshold at half", func(c *Config) { c.Governance.PassThresholdPercent = 50 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Governance.Owner = "founder"
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestWriteConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", ConfigFile)
	cfg := DefaultConfig()
	cfg.Governance.Owner = "founder"
	cfg.Notify.NATSURL = "nats://127.0.0.1:4222"

	if err := WriteConfig(path, cfg); err != nil {
		t.Fatalf("WriteConfig: %v", err)
	}
	got, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got != cfg {
		t.Errorf("round trip = %+v, want %+v", got, cfg)
	}
}

func TestHome_Env(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GUILD_HOME", dir)

	if Home() != dir {
		t.Errorf("Home = %q, want %q", Home(), dir)
	}
	if ConfigPath() != filepath.Join(dir, ConfigFile) {
		t.Errorf("ConfigPath = %q", ConfigPath())
	}
	cfg := DefaultConfig()
	if cfg.DataDir() != dir {
		t.Errorf("DataDir = %q", cfg.DataDir())
	}
}
