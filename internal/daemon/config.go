// Package daemon holds the configuration of the guild daemon.
package daemon

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/tutu-network/guild/internal/domain"
	"github.com/tutu-network/guild/internal/infra/governance"
)

// ConfigFile is the config file name inside the guild home.
const ConfigFile = "config.toml"

// Config is the full guild configuration, loaded from config.toml.
type Config struct {
	API        APIConfig        `toml:"api"`
	Governance GovernanceConfig `toml:"governance"`
	Storage    StorageConfig    `toml:"storage"`
	Notify     NotifyConfig     `toml:"notify"`
	Log        LogConfig        `toml:"log"`
	Metrics    MetricsConfig    `toml:"metrics"`
	Keeper     KeeperConfig     `toml:"keeper"`
}

// APIConfig configures the HTTP listener.
type APIConfig struct {
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	Timeout string `toml:"timeout"` // Per-request deadline, e.g. "30s"
}

// GovernanceConfig seeds a fresh group. Owner must match the stored owner
// on every later start.
type GovernanceConfig struct {
	Owner                string `toml:"owner"`
	VotingPeriod         string `toml:"voting_period"` // e.g. "168h"
	QuorumPercent        uint64 `toml:"quorum_percent"`
	PassThresholdPercent uint64 `toml:"pass_threshold_percent"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver string `toml:"driver"` // "sqlite" or "memory"
	Dir    string `toml:"dir"`    // Empty means the guild home
}

// NotifyConfig configures external event delivery. An empty URL disables it.
type NotifyConfig struct {
	NATSURL       string `toml:"nats_url"`
	SubjectPrefix string `toml:"subject_prefix"`
	ClientName    string `toml:"client_name"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // console or json
}

// MetricsConfig toggles the /metrics endpoint.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// KeeperConfig configures the background executor of due proposals.
type KeeperConfig struct {
	Enabled  bool   `toml:"enabled"`
	Interval string `toml:"interval"` // e.g. "1m"
	Caller   string `toml:"caller"`   // Account recorded on keeper executions
}

// ─── Defaults ───────────────────────────────────────────────────────────────

const (
	defaultAPITimeout     = 30 * time.Second
	defaultKeeperInterval = time.Minute
)

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	params := domain.DefaultParams()
	return Config{
		API: APIConfig{
			Host:    "127.0.0.1",
			Port:    7420,
			Timeout: "30s",
		},
		Governance: GovernanceConfig{
			VotingPeriod:         "168h",
			QuorumPercent:        params.QuorumPercent,
			PassThresholdPercent: params.PassThresholdPercent,
		},
		Storage: StorageConfig{
			Driver: "sqlite",
		},
		Notify: NotifyConfig{
			SubjectPrefix: "guild.events",
			ClientName:    "guild",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Keeper: KeeperConfig{
			Enabled:  true,
			Interval: "1m",
			Caller:   "keeper",
		},
	}
}

// ─── Loading ────────────────────────────────────────────────────────────────

// Home returns the guild home directory: $GUILD_HOME, or ~/.guild.
func Home() string {
	if h := os.Getenv("GUILD_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".guild"
	}
	return filepath.Join(home, ".guild")
}

// ConfigPath returns the default config file location.
func ConfigPath() string {
	return filepath.Join(Home(), ConfigFile)
}

// LoadConfig decodes the TOML file at path over the defaults. A missing
// file yields the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return cfg, fmt.Errorf("parse %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	return cfg, nil
}

// WriteConfig writes cfg to path as TOML, creating parent directories.
func WriteConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

// Validate checks the values a daemon cannot start without.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Governance.Owner) == "" {
		return errors.New("config: governance.owner must be set")
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("config: api.port %d out of range", c.API.Port)
	}
	switch c.Storage.Driver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("config: unknown storage.driver %q", c.Storage.Driver)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("config: unknown log.format %q", c.Log.Format)
	}
	if c.Keeper.Enabled && strings.TrimSpace(c.Keeper.Caller) == "" {
		return errors.New("config: keeper.caller must be set when the keeper is enabled")
	}
	return c.EngineConfig().Validate()
}

// ─── Derived Values ─────────────────────────────────────────────────────────

// Addr returns the listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.API.Host, strconv.Itoa(c.API.Port))
}

// DataDir returns the storage directory.
func (c Config) DataDir() string {
	if c.Storage.Dir != "" {
		return c.Storage.Dir
	}
	return Home()
}

// EngineConfig converts the governance section for the engine.
func (c Config) EngineConfig() governance.EngineConfig {
	return governance.EngineConfig{
		Owner:        strings.TrimSpace(c.Governance.Owner),
		VotingPeriod: parseDuration(c.Governance.VotingPeriod, governance.DefaultVotingPeriod),
		Params: domain.Params{
			QuorumPercent:        c.Governance.QuorumPercent,
			PassThresholdPercent: c.Governance.PassThresholdPercent,
		},
	}
}

// APITimeout returns the per-request deadline.
func (c Config) APITimeout() time.Duration {
	return parseDuration(c.API.Timeout, defaultAPITimeout)
}

// KeeperInterval returns the keeper sweep interval.
func (c Config) KeeperInterval() time.Duration {
	return parseDuration(c.Keeper.Interval, defaultKeeperInterval)
}

// parseDuration parses s, falling back to def when s is empty, invalid,
// or not positive.
func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d <= 0 {
		return def
	}
	return d
}
