package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

// Config describes the tierd daemon configuration.
type Config struct {
	ListenAddress   string `toml:"ListenAddress"`
	LedgerRPCURL    string `toml:"LedgerRPCURL"`
	ContractAddress string `toml:"ContractAddress"`
	// SpecialTierIDs lists fidelity/partner tiers that stay ownable while
	// closed for new purchases.
	SpecialTierIDs []uint64 `toml:"SpecialTierIDs"`

	CallTimeoutSeconds     int64   `toml:"CallTimeoutSeconds"`
	RefreshIntervalSeconds int64   `toml:"RefreshIntervalSeconds"`
	RefreshConcurrency     int     `toml:"RefreshConcurrency"`
	LedgerReadsPerSecond   float64 `toml:"LedgerReadsPerSecond"`
	LedgerReadBurst        int     `toml:"LedgerReadBurst"`

	SnapshotPath string `toml:"SnapshotPath"`
	SeedPath     string `toml:"SeedPath"`

	FidelityEndpoint string `toml:"FidelityEndpoint"`
	FidelityAPIKey   string `toml:"FidelityAPIKey"`

	LogPath       string `toml:"LogPath"`
	LogMaxSizeMB  int    `toml:"LogMaxSizeMB"`
	LogMaxBackups int    `toml:"LogMaxBackups"`
	LogMaxAgeDays int    `toml:"LogMaxAgeDays"`
}

// Load reads the configuration from the given path. A missing file produces
// a default configuration persisted back to the path so operators have a
// template to edit.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		ListenAddress:          ":8440",
		LedgerRPCURL:           "http://127.0.0.1:8545",
		CallTimeoutSeconds:     5,
		RefreshIntervalSeconds: 60,
		RefreshConcurrency:     4,
		LedgerReadsPerSecond:   20,
		LedgerReadBurst:        10,
		SnapshotPath:           "./tierd-data/snapshot.db",
		LogMaxSizeMB:           100,
		LogMaxBackups:          3,
		LogMaxAgeDays:          28,
	}
}

func createDefault(path string) (*Config, error) {
	cfg := defaultConfig()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("config: wrote template to %s; set ContractAddress and restart", path)
}

func persist(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create dir %s: %w", dir, err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("config: create %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return fmt.Errorf("config: encode %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	def := defaultConfig()
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = def.ListenAddress
	}
	if c.CallTimeoutSeconds <= 0 {
		c.CallTimeoutSeconds = def.CallTimeoutSeconds
	}
	if c.RefreshIntervalSeconds <= 0 {
		c.RefreshIntervalSeconds = def.RefreshIntervalSeconds
	}
	if c.RefreshConcurrency <= 0 {
		c.RefreshConcurrency = def.RefreshConcurrency
	}
	if c.LedgerReadBurst <= 0 {
		c.LedgerReadBurst = def.LedgerReadBurst
	}
	if strings.TrimSpace(c.SnapshotPath) == "" {
		c.SnapshotPath = def.SnapshotPath
	}
	if c.LogMaxSizeMB <= 0 {
		c.LogMaxSizeMB = def.LogMaxSizeMB
	}
	if c.LogMaxBackups <= 0 {
		c.LogMaxBackups = def.LogMaxBackups
	}
	if c.LogMaxAgeDays <= 0 {
		c.LogMaxAgeDays = def.LogMaxAgeDays
	}
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.LedgerRPCURL) == "" {
		return fmt.Errorf("config: LedgerRPCURL required")
	}
	if strings.TrimSpace(c.ContractAddress) == "" {
		return fmt.Errorf("config: ContractAddress required")
	}
	if !common.IsHexAddress(strings.TrimSpace(c.ContractAddress)) {
		return fmt.Errorf("config: invalid ContractAddress %q", c.ContractAddress)
	}
	return nil
}

// CallTimeout returns the per-read timeout as a duration.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutSeconds) * time.Second
}

// RefreshInterval returns the background refresh cadence as a duration.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalSeconds) * time.Second
}
