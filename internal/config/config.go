// Package config loads and validates the node's immutable boot-time configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration struct, read once at boot (§6).
// It is never mutated after Load returns; callers receive a value copy.
type Config struct {
	NodeType string `yaml:"node_type" validate:"required,oneof=validator observer"`
	DataDir  string `yaml:"data_dir" validate:"required"`
	LogLevel string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`

	Network   NetworkConfig   `yaml:"network"`
	Consensus ConsensusConfig `yaml:"consensus"`
	Storage   StorageConfig   `yaml:"storage"`
	Security  SecurityConfig  `yaml:"security"`
}

// NetworkConfig contains P2P networking settings for the network collaborator (§6).
type NetworkConfig struct {
	ListenAddr     string   `yaml:"listen_addr" validate:"required"`
	BootstrapNodes []string `yaml:"bootstrap_nodes"`
	MaxPeers       int      `yaml:"max_peers" validate:"min=1"`
}

// ConsensusConfig holds the consensus parameters of spec.md §6's configuration table.
type ConsensusConfig struct {
	SuperNodeCount            int           `yaml:"super_node_count" validate:"min=1"`
	BlockTimeSeconds          int           `yaml:"block_time_seconds" validate:"min=1"`
	VRFCollectionTimeoutMS    int           `yaml:"vrf_collection_timeout_ms" validate:"min=1"`
	BlockProductionTimeoutMS  int           `yaml:"block_production_timeout_ms" validate:"min=1"`
	RewardedTopX              int           `yaml:"rewarded_top_x" validate:"min=1"`
	PoWBaseDifficulty         int64         `yaml:"pow_base_difficulty" validate:"min=1"`
	MaxTransactionsPerBlock   int           `yaml:"max_transactions_per_block" validate:"min=1"`
	MaxBlockSizeBytes         int64         `yaml:"max_block_size_bytes" validate:"min=1"`
	MinStakeCore              uint64        `yaml:"min_stake_core"`
	MinStakeRotate            uint64        `yaml:"min_stake_rotate"`
	EpochLength               uint64        `yaml:"epoch_length" validate:"min=1"`
	PoWTimeoutSeconds         int           `yaml:"pow_timeout_seconds" validate:"min=1"`
	MiningPollIterations      int           `yaml:"mining_poll_iterations" validate:"min=1"`
	Validator                *ValidatorKey `yaml:"validator,omitempty"`
}

// ValidatorKey is parsed and validated at Load; the node does not read it,
// and local block production does not depend on Enabled.
type ValidatorKey struct {
	Enabled        bool   `yaml:"enabled"`
	PrivateKeyPath string `yaml:"private_key_path" validate:"required_if=Enabled true"`
}

// StorageConfig points at the external KV engine the storage facades (C9) wrap.
type StorageConfig struct {
	Engine string `yaml:"engine" validate:"required,oneof=memory leveldb"`
	Path   string `yaml:"path"`
}

// SecurityConfig carries key material locations. Keystore path only; no secrets inline.
type SecurityConfig struct {
	KeystorePath string `yaml:"keystore_path"`
}

// BlockTime returns block_time_seconds as a time.Duration.
func (c ConsensusConfig) BlockTime() time.Duration {
	return time.Duration(c.BlockTimeSeconds) * time.Second
}

// VRFCollectionTimeout returns vrf_collection_timeout_ms as a time.Duration.
func (c ConsensusConfig) VRFCollectionTimeout() time.Duration {
	return time.Duration(c.VRFCollectionTimeoutMS) * time.Millisecond
}

// BlockProductionTimeout returns block_production_timeout_ms as a time.Duration.
func (c ConsensusConfig) BlockProductionTimeout() time.Duration {
	return time.Duration(c.BlockProductionTimeoutMS) * time.Millisecond
}

// PoWTimeout returns pow_timeout_seconds as a time.Duration.
func (c ConsensusConfig) PoWTimeout() time.Duration {
	return time.Duration(c.PoWTimeoutSeconds) * time.Second
}

// Quorum returns ceil(2*N/3) for the configured super-node count.
func (c ConsensusConfig) Quorum() int {
	return (2*c.SuperNodeCount + 2) / 3
}

// Default returns the configuration defaults of spec.md §6's table.
func Default() Config {
	return Config{
		NodeType: "validator",
		DataDir:  "./data",
		LogLevel: "info",
		Network: NetworkConfig{
			ListenAddr: "0.0.0.0:30303",
			MaxPeers:   50,
		},
		Consensus: ConsensusConfig{
			SuperNodeCount:           50,
			BlockTimeSeconds:         3,
			VRFCollectionTimeoutMS:   3000,
			BlockProductionTimeoutMS: 5000,
			RewardedTopX:             15,
			PoWBaseDifficulty:        2_500_000,
			MaxTransactionsPerBlock:  1000,
			MaxBlockSizeBytes:        2 * 1024 * 1024,
			MinStakeCore:             100_000,
			MinStakeRotate:           50_000,
			EpochLength:              100,
			PoWTimeoutSeconds:        3,
			MiningPollIterations:     4096,
		},
		Storage: StorageConfig{
			Engine: "memory",
		},
	}
}

var validate = validator.New()

// Load reads, parses, and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
