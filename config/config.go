package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var ErrInvalid = errors.New("config: invalid")

// Config holds all configurable parameters for the application
type Config struct {
	Port       int    `json:"port"`
	StorageDir string `json:"storage_dir"`

	Log   LogConfig   `json:"log"`
	Clock ClockConfig `json:"clock"`

	// Owner deploys and administers every ledger.
	Owner     common.Address `json:"owner"`
	Token     TokenConfig    `json:"token"`
	SwapToken TokenConfig    `json:"swap_token"`
	Ledgers   LedgerAddrs    `json:"ledgers"`

	TokenomicsPath    string `json:"tokenomics_path"`
	BeneficiariesPath string `json:"beneficiaries_path"`
	// StrategicAllocation and PrivateAllocation name the tokenomics rows
	// sold through the sale and swap ledgers.
	StrategicAllocation string `json:"strategic_allocation"`
	PrivateAllocation   string `json:"private_allocation"`

	Swap    SwapConfig    `json:"swap"`
	Journal JournalConfig `json:"journal"`

	CommitIntervalMs int `json:"commit_interval_ms"`
}

type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"` // "terminal" or "json"
}

// ClockConfig selects a manual clock starting at Start for local runs.
type ClockConfig struct {
	Manual bool   `json:"manual"`
	Start  uint64 `json:"start"`
}

// TokenConfig describes a token contract. Supply is in whole tokens and is
// minted to the owner at genesis.
type TokenConfig struct {
	Name    string         `json:"name"`
	Symbol  string         `json:"symbol"`
	Address common.Address `json:"address"`
	Supply  string         `json:"supply"`
}

// LedgerAddrs are the custody holder addresses of each ledger.
type LedgerAddrs struct {
	Vesting common.Address `json:"vesting"`
	Sale    common.Address `json:"sale"`
	Swap    common.Address `json:"swap"`
}

type SwapConfig struct {
	Ratio           uint64 `json:"ratio"`
	SaleDurationSec uint64 `json:"sale_duration_sec"`
}

// JournalConfig selects the event store. An empty DSN keeps events in
// memory.
type JournalConfig struct {
	DSN             string `json:"dsn"`
	Buffer          int    `json:"buffer"`
	BatchSize       int    `json:"batch_size"`
	FlushIntervalMs int    `json:"flush_interval_ms"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Port:                8080,
		StorageDir:          "./storage/statedb",
		Log:                 LogConfig{Level: "info", Format: "terminal"},
		TokenomicsPath:      "config/tokenomics.json",
		BeneficiariesPath:   "config/beneficiaries.json",
		StrategicAllocation: "strategic",
		PrivateAllocation:   "private",
		Swap:                SwapConfig{Ratio: 30, SaleDurationSec: 60 * 60 * 24 * 30},
		Journal:             JournalConfig{Buffer: 1024, BatchSize: 100, FlushIntervalMs: 1000},
		CommitIntervalMs:    5000,
	}
}

// Load reads and parses the config.json file. Unset fields keep their
// defaults.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads the default config from config.json in the current directory
func LoadDefault() (*Config, error) {
	return Load("config/config.json")
}

// Validate checks the fields the service cannot start without.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d", ErrInvalid, c.Port)
	}
	if c.Owner == (common.Address{}) {
		return fmt.Errorf("%w: owner is required", ErrInvalid)
	}
	if c.Token.Address == (common.Address{}) || c.SwapToken.Address == (common.Address{}) {
		return fmt.Errorf("%w: token addresses are required", ErrInvalid)
	}
	if c.Token.Address == c.SwapToken.Address {
		return fmt.Errorf("%w: token and swap token share an address", ErrInvalid)
	}
	seen := map[common.Address]string{}
	for name, addr := range map[string]common.Address{
		"vesting": c.Ledgers.Vesting,
		"sale":    c.Ledgers.Sale,
		"swap":    c.Ledgers.Swap,
	} {
		if addr == (common.Address{}) {
			return fmt.Errorf("%w: %s ledger address is required", ErrInvalid, name)
		}
		if other, dup := seen[addr]; dup {
			return fmt.Errorf("%w: %s and %s ledgers share an address", ErrInvalid, name, other)
		}
		seen[addr] = name
	}
	if c.Swap.Ratio == 0 {
		return fmt.Errorf("%w: swap ratio must be positive", ErrInvalid)
	}
	switch c.Log.Format {
	case "terminal", "json":
	default:
		return fmt.Errorf("%w: log format %q", ErrInvalid, c.Log.Format)
	}
	if c.CommitIntervalMs <= 0 {
		return fmt.Errorf("%w: commit interval must be positive", ErrInvalid)
	}
	return nil
}

func (c *Config) CommitInterval() time.Duration {
	return time.Duration(c.CommitIntervalMs) * time.Millisecond
}

func (j JournalConfig) FlushInterval() time.Duration {
	return time.Duration(j.FlushIntervalMs) * time.Millisecond
}
