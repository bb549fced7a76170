// Package config loads and validates the daemon's YAML configuration,
// mirroring neo-go's pkg/config.ProtocolConfiguration: struct-tagged fields,
// a Validate method, and documented defaults.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Storage backend identifiers selectable under StorageConfiguration.Backend.
const (
	BackendMemory  = "memory"
	BackendBolt    = "bolt"
	BackendLevelDB = "leveldb"
)

// Config is the top-level daemon configuration.
type Config struct {
	Billing     BillingConfiguration     `yaml:"BillingConfiguration"`
	Storage     StorageConfiguration     `yaml:"StorageConfiguration"`
	Limits      LimitsConfiguration      `yaml:"LimitsConfiguration"`
	Application ApplicationConfiguration `yaml:"ApplicationConfiguration"`
}

// BillingConfiguration bounds the Billing Engine and Scheduler's block-driven
// behavior (spec.md §2/§4.2/§4.3 defaults).
type BillingConfiguration struct {
	// BillingFrequency is F, the contract_id mod F slotting modulus.
	BillingFrequency uint64 `yaml:"BillingFrequency"`
	// DistributionFrequency is the number of billing cycles between reward
	// distributions.
	DistributionFrequency uint32 `yaml:"DistributionFrequency"`
	// GracePeriodBlocks is how long a contract may sit in GracePeriod before
	// being deleted OutOfFunds. 2880 blocks approximates 6h at the
	// 7.5s/block-equivalent seconds model the original pallet assumes.
	GracePeriodBlocks uint64 `yaml:"GracePeriodBlocks"`
	// DefaultPricingPolicyID is the single global pricing policy consulted
	// for name contracts and reward distribution.
	DefaultPricingPolicyID uint32 `yaml:"DefaultPricingPolicyID"`
	// PriceCacheSize bounds the price oracle's per-block LRU cache.
	PriceCacheSize int `yaml:"PriceCacheSize"`
}

// DefaultBillingConfiguration mirrors the runtime constants of the original
// pallet.
func DefaultBillingConfiguration() BillingConfiguration {
	return BillingConfiguration{
		BillingFrequency:       600,
		DistributionFrequency:  24,
		GracePeriodBlocks:      2880,
		DefaultPricingPolicyID: 1,
		PriceCacheSize:         64,
	}
}

// Validate checks BillingConfiguration for internal consistency.
func (b BillingConfiguration) Validate() error {
	if b.BillingFrequency == 0 {
		return errors.New("BillingFrequency must be nonzero")
	}
	if b.DistributionFrequency == 0 {
		return errors.New("DistributionFrequency must be nonzero")
	}
	if b.GracePeriodBlocks == 0 {
		return errors.New("GracePeriodBlocks must be nonzero")
	}
	if b.DefaultPricingPolicyID == 0 {
		return errors.New("DefaultPricingPolicyID must be nonzero")
	}
	return nil
}

// StorageConfiguration selects the registry's persistence backend.
type StorageConfiguration struct {
	Backend string `yaml:"Backend"`
	Path    string `yaml:"Path"`
}

// Validate checks StorageConfiguration for internal consistency.
func (s StorageConfiguration) Validate() error {
	switch s.Backend {
	case BackendMemory:
		return nil
	case BackendBolt, BackendLevelDB:
		if s.Path == "" {
			return fmt.Errorf("Path is required for %s storage backend", s.Backend)
		}
		return nil
	default:
		return fmt.Errorf("unknown storage backend: %s", s.Backend)
	}
}

// LimitsConfiguration mirrors registry.Limits for YAML configurability.
type LimitsConfiguration struct {
	MaxNameLength           int `yaml:"MaxNameLength"`
	MaxDeploymentDataLength int `yaml:"MaxDeploymentDataLength"`
	MaxSolutionProviders    int `yaml:"MaxSolutionProviders"`
}

// DefaultLimitsConfiguration mirrors registry.DefaultLimits.
func DefaultLimitsConfiguration() LimitsConfiguration {
	return LimitsConfiguration{
		MaxNameLength:           64,
		MaxDeploymentDataLength: 64 * 1024,
		MaxSolutionProviders:    5,
	}
}

// Validate checks LimitsConfiguration for internal consistency.
func (l LimitsConfiguration) Validate() error {
	if l.MaxNameLength <= 0 {
		return errors.New("MaxNameLength must be positive")
	}
	if l.MaxDeploymentDataLength <= 0 {
		return errors.New("MaxDeploymentDataLength must be positive")
	}
	if l.MaxSolutionProviders <= 0 {
		return errors.New("MaxSolutionProviders must be positive")
	}
	return nil
}

// ApplicationConfiguration configures the daemon's ambient surfaces: the
// websocket event feed and the Prometheus metrics endpoint.
type ApplicationConfiguration struct {
	NotifyAddress  string `yaml:"NotifyAddress"`
	MetricsAddress string `yaml:"MetricsAddress"`
}

// Validate checks ApplicationConfiguration for internal consistency.
func (a ApplicationConfiguration) Validate() error {
	if a.NotifyAddress == "" {
		return errors.New("NotifyAddress must be set")
	}
	if a.MetricsAddress == "" {
		return errors.New("MetricsAddress must be set")
	}
	return nil
}

// Default returns a Config with documented defaults and an in-memory
// storage backend.
func Default() Config {
	return Config{
		Billing: DefaultBillingConfiguration(),
		Storage: StorageConfiguration{Backend: BackendMemory},
		Limits:  DefaultLimitsConfiguration(),
		Application: ApplicationConfiguration{
			NotifyAddress:  ":7000",
			MetricsAddress: ":7001",
		},
	}
}

// Load reads and parses a YAML configuration file at path, filling in
// documented defaults for anything the file doesn't set.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every sub-section of Config for internal consistency.
func (c Config) Validate() error {
	if err := c.Billing.Validate(); err != nil {
		return fmt.Errorf("BillingConfiguration: %w", err)
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("StorageConfiguration: %w", err)
	}
	if err := c.Limits.Validate(); err != nil {
		return fmt.Errorf("LimitsConfiguration: %w", err)
	}
	if err := c.Application.Validate(); err != nil {
		return fmt.Errorf("ApplicationConfiguration: %w", err)
	}
	return nil
}
