package config

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/danvaneijck/chance-staking-operator/internal/errs"
)

func clearEnv(t *testing.T) {
	t.Helper()
	vars := []string{
		"MNEMONIC", "NETWORK", "DRAND_ORACLE_ADDRESS", "STAKING_HUB_ADDRESS",
		"REWARD_DISTRIBUTOR_ADDRESS", "TOKEN_DENOM", "CHAIN_GRPC_ENDPOINT",
		"DRAND_POLL_INTERVAL", "EPOCH_CHECK_INTERVAL",
		"DRAW_CHECK_INTERVAL", "DRAND_API_URL", "DRAND_CHAIN_HASH", "LOG_LEVEL",
		"SECRETS_PATH",
	}
	for _, v := range vars {
		os.Unsetenv(v)
	}
}

func TestLoadMissingMnemonic(t *testing.T) {
	clearEnv(t)
	_, err := Load()
	if !errors.Is(err, errs.Config) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	clearEnv(t)
	os.Setenv("MNEMONIC", "test test test test test test test test test test test junk")
	os.Setenv("DRAND_ORACLE_ADDRESS", "inj1oracle")
	os.Setenv("STAKING_HUB_ADDRESS", "inj1hub")
	os.Setenv("REWARD_DISTRIBUTOR_ADDRESS", "inj1dist")
	os.Setenv("TOKEN_DENOM", "factory/inj1x/chance")
	os.Setenv("DRAND_API_URL", "https://drand.example/api")
	os.Setenv("DRAND_CHAIN_HASH", "deadbeef")
	os.Setenv("DRAW_CHECK_INTERVAL", "45")
	defer clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Network != Testnet {
		t.Errorf("Network = %v, want testnet default", cfg.Network)
	}
	if cfg.Network.ChainID() != "injective-888" {
		t.Errorf("ChainID = %v", cfg.Network.ChainID())
	}
	if cfg.DrandPollInterval != 10*time.Second {
		t.Errorf("DrandPollInterval = %v, want default 10s", cfg.DrandPollInterval)
	}
	if cfg.DrawCheckInterval != 45*time.Second {
		t.Errorf("DrawCheckInterval = %v, want 45s override", cfg.DrawCheckInterval)
	}
	if cfg.SecretsPath != "./data/pending_secrets.json" {
		t.Errorf("SecretsPath = %v", cfg.SecretsPath)
	}
	if cfg.GRPCEndpoint != "testnet.sentry.chain.grpc.injective.network:443" {
		t.Errorf("GRPCEndpoint = %v, want testnet default", cfg.GRPCEndpoint)
	}
}

func TestLoadInvalidInterval(t *testing.T) {
	clearEnv(t)
	os.Setenv("MNEMONIC", "m")
	os.Setenv("DRAND_ORACLE_ADDRESS", "a")
	os.Setenv("STAKING_HUB_ADDRESS", "b")
	os.Setenv("REWARD_DISTRIBUTOR_ADDRESS", "c")
	os.Setenv("DRAND_API_URL", "https://x")
	os.Setenv("DRAND_CHAIN_HASH", "h")
	os.Setenv("EPOCH_CHECK_INTERVAL", "-5")
	defer clearEnv(t)

	_, err := Load()
	if !errors.Is(err, errs.Config) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestNetworkChainID(t *testing.T) {
	if Mainnet.ChainID() != "injective-1" {
		t.Errorf("mainnet chain id = %v", Mainnet.ChainID())
	}
}
