// Package config loads process configuration from the environment. It is
// parsed once in main and injected into services; nothing else reads env
// vars directly.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/modulo-ai/paygate/types"
)

// NetworkConfig holds the per-network chain parameters.
type NetworkConfig struct {
	ChainID int64
	RPCURL  string
}

// FacilitatorMode selects the payment backend implementation.
type FacilitatorMode string

const (
	FacilitatorModeMock   FacilitatorMode = "mock"
	FacilitatorModeRemote FacilitatorMode = "remote"
)

// Config is the full process configuration.
type Config struct {
	Networks map[types.Network]NetworkConfig

	FacilitatorMode    FacilitatorMode
	FacilitatorBaseURL string

	// MasterKey is the raw base64 value of VAULT_MASTER_KEY. Length is
	// validated lazily by the vault at first use, not here.
	MasterKey string

	// DefaultNetwork and AssetContract identify the token used for
	// module payments on this deployment.
	DefaultNetwork types.Network
	AssetContract  string

	DatabaseURL      string
	RedisURL         string
	StaticAPIKey     string
	SessionSecret    string
	ListenAddr       string
	DefaultAssetName string
	DefaultAssetVer  string
}

var networkEnvVars = map[types.Network]struct {
	rpcVar  string
	chainID int64
}{
	types.NetworkBase:        {"RPC_URL_BASE", 8453},
	types.NetworkBaseSepolia: {"RPC_URL_BASE_SEPOLIA", 84532},
	types.NetworkSepolia:     {"RPC_URL_SEPOLIA", 11155111},
}

// Load reads configuration from the environment. A missing or odd-length
// master key is logged as a warning here and becomes a hard error on first
// vault use.
func Load(logger *slog.Logger) (*Config, error) {
	cfg := &Config{
		Networks:           make(map[types.Network]NetworkConfig),
		FacilitatorMode:    FacilitatorMode(envOr("FACILITATOR_MODE", string(FacilitatorModeMock))),
		FacilitatorBaseURL: os.Getenv("FACILITATOR_BASE_URL"),
		MasterKey:          os.Getenv("VAULT_MASTER_KEY"),
		DefaultNetwork:     types.Network(envOr("NETWORK", string(types.NetworkBaseSepolia))),
		AssetContract:      os.Getenv("ASSET_CONTRACT"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           os.Getenv("REDIS_URL"),
		StaticAPIKey:       os.Getenv("STATIC_API_KEY"),
		SessionSecret:      os.Getenv("SESSION_SECRET"),
		ListenAddr:         envOr("LISTEN_ADDR", ":8402"),
		DefaultAssetName:   envOr("ASSET_NAME", "USD Coin"),
		DefaultAssetVer:    envOr("ASSET_VERSION", "2"),
	}

	for network, env := range networkEnvVars {
		rpcURL := os.Getenv(env.rpcVar)
		if rpcURL == "" {
			continue
		}
		chainID := env.chainID
		if override := os.Getenv(env.rpcVar + "_CHAIN_ID"); override != "" {
			parsed, err := strconv.ParseInt(override, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid chain id override for %s: %v", network, err)
			}
			chainID = parsed
		}
		cfg.Networks[network] = NetworkConfig{ChainID: chainID, RPCURL: rpcURL}
	}

	switch cfg.FacilitatorMode {
	case FacilitatorModeMock, FacilitatorModeRemote:
	default:
		return nil, fmt.Errorf("unknown FACILITATOR_MODE %q", cfg.FacilitatorMode)
	}

	if cfg.FacilitatorMode == FacilitatorModeRemote && cfg.FacilitatorBaseURL == "" {
		return nil, fmt.Errorf("FACILITATOR_BASE_URL is required in remote mode")
	}

	if cfg.MasterKey == "" {
		logger.Warn("VAULT_MASTER_KEY is not set; vault operations will fail on first use")
	}
	if cfg.SessionSecret == "" {
		logger.Warn("SESSION_SECRET is not set; session passes cannot be issued")
	}

	return cfg, nil
}

// Network returns the chain parameters for a network, or false when the
// network has no configured RPC endpoint.
func (c *Config) Network(n types.Network) (NetworkConfig, bool) {
	nc, ok := c.Networks[n]
	return nc, ok
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
