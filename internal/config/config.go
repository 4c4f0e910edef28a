// Package config loads operator node configuration from the process
// environment (spec §6). The node is headless: there is no flag surface or
// config file, only env vars, following the field-by-field defaulting
// pattern of the teacher's node.Config / DefaultNodeConfig.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/danvaneijck/chance-staking-operator/internal/errs"
)

// Network selects the chain id and default RPC endpoint.
type Network string

const (
	Testnet Network = "testnet"
	Mainnet Network = "mainnet"
)

// ChainID returns the chain id string associated with the network.
func (n Network) ChainID() string {
	if n == Mainnet {
		return "injective-1"
	}
	return "injective-888"
}

// Config holds all configuration for the operator node, loaded once at
// startup from the environment.
type Config struct {
	Mnemonic string

	Network Network

	DrandOracleAddress       string
	StakingHubAddress        string
	RewardDistributorAddress string

	// GRPCEndpoint is the chain node's gRPC endpoint (host:port). Defaults
	// per network when unset.
	GRPCEndpoint string

	// TokenDenom is the staking token the snapshot engine enumerates
	// holders of.
	TokenDenom string

	DrandPollInterval  time.Duration
	EpochCheckInterval time.Duration
	DrawCheckInterval  time.Duration

	DrandAPIURL    string
	DrandChainHash string

	LogLevel string

	// SecretsPath is the path to the pending-secrets persistence file.
	// Not an env var in spec §6; defaults to ./data/pending_secrets.json
	// per spec §6's "Persisted state" section.
	SecretsPath string
}

// Default returns a Config with the defaults named in spec §6.
func Default() *Config {
	return &Config{
		Network:            Testnet,
		DrandPollInterval:  10 * time.Second,
		EpochCheckInterval: 60 * time.Second,
		DrawCheckInterval:  30 * time.Second,
		LogLevel:           "info",
		SecretsPath:        "./data/pending_secrets.json",
	}
}

// Load reads configuration from the process environment, applying defaults
// for unset optional values, and validates the result.
func Load() (*Config, error) {
	cfg := Default()

	cfg.Mnemonic = os.Getenv("MNEMONIC")

	if v := os.Getenv("NETWORK"); v != "" {
		cfg.Network = Network(v)
	}

	cfg.DrandOracleAddress = os.Getenv("DRAND_ORACLE_ADDRESS")
	cfg.StakingHubAddress = os.Getenv("STAKING_HUB_ADDRESS")
	cfg.RewardDistributorAddress = os.Getenv("REWARD_DISTRIBUTOR_ADDRESS")
	cfg.TokenDenom = os.Getenv("TOKEN_DENOM")

	if v := os.Getenv("CHAIN_GRPC_ENDPOINT"); v != "" {
		cfg.GRPCEndpoint = v
	} else if cfg.Network == Mainnet {
		cfg.GRPCEndpoint = "sentry.chain.grpc.injective.network:443"
	} else {
		cfg.GRPCEndpoint = "testnet.sentry.chain.grpc.injective.network:443"
	}

	if v := os.Getenv("DRAND_POLL_INTERVAL"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return nil, fmt.Errorf("%w: DRAND_POLL_INTERVAL: %v", errs.Config, err)
		}
		cfg.DrandPollInterval = d
	}
	if v := os.Getenv("EPOCH_CHECK_INTERVAL"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return nil, fmt.Errorf("%w: EPOCH_CHECK_INTERVAL: %v", errs.Config, err)
		}
		cfg.EpochCheckInterval = d
	}
	if v := os.Getenv("DRAW_CHECK_INTERVAL"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return nil, fmt.Errorf("%w: DRAW_CHECK_INTERVAL: %v", errs.Config, err)
		}
		cfg.DrawCheckInterval = d
	}

	cfg.DrandAPIURL = os.Getenv("DRAND_API_URL")
	cfg.DrandChainHash = os.Getenv("DRAND_CHAIN_HASH")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SECRETS_PATH"); v != "" {
		cfg.SecretsPath = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for correctness, per spec §6's required
// fields and §7's ConfigError category.
func (c *Config) Validate() error {
	if c.Mnemonic == "" {
		return fmt.Errorf("%w: MNEMONIC is required", errs.Config)
	}
	switch c.Network {
	case Testnet, Mainnet:
	default:
		return fmt.Errorf("%w: NETWORK must be testnet or mainnet, got %q", errs.Config, c.Network)
	}
	if c.DrandOracleAddress == "" {
		return fmt.Errorf("%w: DRAND_ORACLE_ADDRESS is required", errs.Config)
	}
	if c.StakingHubAddress == "" {
		return fmt.Errorf("%w: STAKING_HUB_ADDRESS is required", errs.Config)
	}
	if c.RewardDistributorAddress == "" {
		return fmt.Errorf("%w: REWARD_DISTRIBUTOR_ADDRESS is required", errs.Config)
	}
	if c.TokenDenom == "" {
		return fmt.Errorf("%w: TOKEN_DENOM is required", errs.Config)
	}
	if c.DrandAPIURL == "" {
		return fmt.Errorf("%w: DRAND_API_URL is required", errs.Config)
	}
	if c.DrandChainHash == "" {
		return fmt.Errorf("%w: DRAND_CHAIN_HASH is required", errs.Config)
	}
	if c.DrandPollInterval <= 0 || c.EpochCheckInterval <= 0 || c.DrawCheckInterval <= 0 {
		return fmt.Errorf("%w: loop intervals must be positive", errs.Config)
	}
	return nil
}

func parseSeconds(v string) (time.Duration, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be a positive integer, got %d", n)
	}
	return time.Duration(n) * time.Second, nil
}
