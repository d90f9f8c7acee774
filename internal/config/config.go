// Package config provides centralized configuration for the trading core.
// Structural settings (venue URLs, fee table, networks) load from a YAML
// file; secrets (bot credentials, encryption key, backup destination token)
// come from environment variables and are held as opaque strings, never
// parsed, per spec.md's External Interfaces section.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Network is a blockchain network identifier, e.g. "SOL", "TON", "ETH".
// Networks and token symbols are uppercase ASCII throughout the core.
type Network string

// TokenInfo describes a token's decimal precision for a network, used only
// to format amounts for display; all arithmetic happens on money.Money.
type TokenInfo struct {
	Symbol   string `yaml:"symbol"`
	Decimals int32  `yaml:"decimals"`
}

// Config is the fully resolved, immutable configuration the composition
// root hands to every engine.
type Config struct {
	// Venues maps "network.venue" -> base URL, e.g. "SOL.orca" ->
	// "https://api.orca.so".
	Venues map[string]string `yaml:"venues"`

	// Tokens maps network -> list of known tokens on that network, used for
	// decimal-aware display formatting.
	Tokens map[Network][]TokenInfo `yaml:"tokens"`

	// Fees is the platform fee table, loaded from the TRADECORE_FEES env var
	// as a JSON literal (falls back to the YAML value when unset).
	Fees FeeConfig `yaml:"fees"`

	// Scheduler job periods, overridable for tests.
	Scheduler SchedulerConfig `yaml:"scheduler"`

	// Copy-trading parameters.
	CopyTrading CopyTradingConfig `yaml:"copy_trading"`

	// API is the JSON-RPC-shaped HTTP surface + metrics listen address.
	API APIConfig `yaml:"api"`

	// Logging controls the charmbracelet/log level.
	Logging LoggingConfig `yaml:"logging"`

	// Storage controls the SQLite data directory.
	Storage StorageConfig `yaml:"storage"`

	// Secrets are opaque strings read from the environment, never logged.
	Secrets Secrets `yaml:"-"`
}

// FeeConfig holds the platform's fee basis points per concern.
type FeeConfig struct {
	P2PTakerBps  int64 `json:"p2p_taker_bps" yaml:"p2p_taker_bps"`
	P2PMakerBps  int64 `json:"p2p_maker_bps" yaml:"p2p_maker_bps"`
	SwapBps      int64 `json:"swap_bps" yaml:"swap_bps"`
}

// DefaultFeeConfig mirrors the teacher's static-table-of-sane-defaults
// pattern (cf. SupportedCoins), generalized to a config-supplied table since
// fees are operationally tunable.
func DefaultFeeConfig() FeeConfig {
	return FeeConfig{P2PTakerBps: 50, P2PMakerBps: 0, SwapBps: 0}
}

// SchedulerConfig overrides the default job periods from spec.md §4.6.
type SchedulerConfig struct {
	SweepExpiredEvery  time.Duration `yaml:"sweep_expired_every"`
	FeeNotifyEvery     time.Duration `yaml:"fee_notify_every"`
	BackupSnapshotEvery time.Duration `yaml:"backup_snapshot_every"`
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		SweepExpiredEvery:   60 * time.Second,
		FeeNotifyEvery:      24 * time.Hour,
		BackupSnapshotEvery: 6 * time.Hour,
	}
}

// CopyTradingConfig configures the OrderCompleted -> follower-order fan-out.
type CopyTradingConfig struct {
	Ratio         string `yaml:"ratio"` // decimal string, e.g. "0.10"
	MinBalanceUSD string `yaml:"min_balance_usd"`
}

func DefaultCopyTradingConfig() CopyTradingConfig {
	return CopyTradingConfig{Ratio: "0.10", MinBalanceUSD: "10"}
}

// APIConfig configures the HTTP listener for the JSON-RPC-shaped surface
// and Prometheus scrape endpoint.
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

func DefaultAPIConfig() APIConfig {
	return APIConfig{ListenAddr: "127.0.0.1:8090"}
}

// LoggingConfig mirrors pkg/logging.Config's YAML shape.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// StorageConfig controls where the SQLite database file lives.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// Secrets holds opaque environment-sourced values. None of these are
// parsed by the core, and none is handed to another component; the only
// check is that cmd/tradecore refuses to start when EncryptionKey is empty.
type Secrets struct {
	BotCredential   string
	EncryptionKey   string
	BackupDestToken string
}

// Env var names for secrets, per spec.md §6.
const (
	EnvBotCredential   = "TRADECORE_BOT_CREDENTIAL"
	EnvEncryptionKey   = "TRADECORE_ENCRYPTION_KEY"
	EnvBackupDestToken = "TRADECORE_BACKUP_DEST_TOKEN"
	EnvFeesJSON        = "TRADECORE_FEES"
)

// Default returns a Config with every sane default filled in, no venues
// configured (the composition root must supply at least one per network it
// serves).
func Default() *Config {
	return &Config{
		Venues:      map[string]string{},
		Tokens:      map[Network][]TokenInfo{},
		Fees:        DefaultFeeConfig(),
		Scheduler:   DefaultSchedulerConfig(),
		CopyTrading: DefaultCopyTradingConfig(),
		API:         DefaultAPIConfig(),
		Logging:     LoggingConfig{Level: "info"},
		Storage:     StorageConfig{DataDir: "./data"},
	}
}

// Load reads a YAML config file at path (if it exists; a missing file is
// not an error, Default() is used instead) and layers environment-sourced
// secrets and the fee-table override on top.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.Secrets = Secrets{
		BotCredential:   os.Getenv(EnvBotCredential),
		EncryptionKey:   os.Getenv(EnvEncryptionKey),
		BackupDestToken: os.Getenv(EnvBackupDestToken),
	}

	if raw := os.Getenv(EnvFeesJSON); raw != "" {
		var fees FeeConfig
		if err := json.Unmarshal([]byte(raw), &fees); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", EnvFeesJSON, err)
		}
		cfg.Fees = fees
	}

	return cfg, nil
}

// VenueURL returns the configured base URL for a (network, venue) pair.
func (c *Config) VenueURL(network, venue string) (string, bool) {
	url, ok := c.Venues[network+"."+venue]
	return url, ok
}

// VenuesForNetwork returns the venue names configured for a network.
func (c *Config) VenuesForNetwork(network string) []string {
	prefix := network + "."
	var names []string
	for key := range c.Venues {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			names = append(names, key[len(prefix):])
		}
	}
	return names
}

// TokenDecimals returns the decimal precision for a token on a network, or
// ok == false if unknown.
func (c *Config) TokenDecimals(network Network, symbol string) (int32, bool) {
	for _, t := range c.Tokens[network] {
		if t.Symbol == symbol {
			return t.Decimals, true
		}
	}
	return 0, false
}
