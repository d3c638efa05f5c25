// Package config loads ChainClaw's YAML configuration, generalizing the
// teacher's configs.Config (single RPC + per-contract ABI map) to the full
// surface spec.md §6 enumerates: per-chain RPC overrides, poll intervals,
// default user limits, confirmation multiplier, shutdown timeout, and
// secret *names* (never secret values) for the risk oracle, simulation
// service, and quote aggregator.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root of config.yml.
type Config struct {
	DataDir          string                 `yaml:"data_dir"`
	LogLevel         string                 `yaml:"log_level"`
	Chains           map[int64]ChainConfig  `yaml:"chains"`
	Secrets          SecretNames            `yaml:"secrets"`
	Poll             PollConfig             `yaml:"poll"`
	DefaultLimits    UserLimitsConfig       `yaml:"default_user_limits"`
	ConfirmationMult float64                `yaml:"confirmation_threshold_multiplier"`
	ShutdownTimeoutS int                    `yaml:"shutdown_timeout_seconds"`
	MEV              MEVConfig              `yaml:"mev"`
}

// ChainConfig is one entry of the RPC override table (spec.md §4.2).
type ChainConfig struct {
	RPCURL        string `yaml:"rpc_url"`
	DefaultRPCURL string `yaml:"default_rpc_url"`
}

// SecretNames names the environment variables carrying credentials; the
// values themselves are never written to config.yml or persisted (spec.md §6).
type SecretNames struct {
	EncryptedPrivateKeyEnv string `yaml:"encrypted_private_key_env"`
	DecryptionKeyEnv       string `yaml:"decryption_key_env"`
	RiskOracleKeyEnv       string `yaml:"risk_oracle_key_env"`
	SimulationKeyEnv       string `yaml:"simulation_key_env"`
	QuoteAggregatorKeyEnv  string `yaml:"quote_aggregator_key_env"`
}

// PollConfig holds every background engine's tick interval.
type PollConfig struct {
	DCAIntervalSeconds        int `yaml:"dca_interval_seconds"`
	LimitOrderIntervalSeconds int `yaml:"limit_order_interval_seconds"`
	WhaleIntervalSeconds      int `yaml:"whale_interval_seconds"`
	SignalsIntervalSeconds    int `yaml:"signals_interval_seconds"`
	DeliveryIntervalSeconds   int `yaml:"delivery_interval_seconds"`
}

// UserLimitsConfig is the fallback applied when a user has no UserLimits row.
type UserLimitsConfig struct {
	MaxPerTxUSD     float64 `yaml:"max_per_tx_usd"`
	MaxPerDayUSD    float64 `yaml:"max_per_day_usd"`
	CooldownSeconds int64   `yaml:"cooldown_seconds"`
	SlippageBps     int     `yaml:"slippage_bps"`
}

// MEVConfig controls private-relayer routing (spec.md §4.8 stage 8).
type MEVConfig struct {
	Enabled          bool             `yaml:"enabled"`
	PublicChainIDs   []int64          `yaml:"public_chain_ids"`
	RelayerRPCByChain map[int64]string `yaml:"relayer_rpc_by_chain"`
}

// Load reads and parses config.yml, matching the teacher's LoadConfig.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.ShutdownTimeoutS == 0 {
		c.ShutdownTimeoutS = 30
	}
	if c.ConfirmationMult == 0 {
		c.ConfirmationMult = 0.5
	}
	if c.Poll.DCAIntervalSeconds == 0 {
		c.Poll.DCAIntervalSeconds = 60
	}
	if c.Poll.LimitOrderIntervalSeconds == 0 {
		c.Poll.LimitOrderIntervalSeconds = 15
	}
	if c.Poll.WhaleIntervalSeconds == 0 {
		c.Poll.WhaleIntervalSeconds = 12
	}
	if c.Poll.SignalsIntervalSeconds == 0 {
		c.Poll.SignalsIntervalSeconds = 30
	}
	if c.Poll.DeliveryIntervalSeconds == 0 {
		c.Poll.DeliveryIntervalSeconds = 10
	}
	if c.DefaultLimits.MaxPerTxUSD == 0 {
		c.DefaultLimits.MaxPerTxUSD = 1000
	}
	if c.DefaultLimits.MaxPerDayUSD == 0 {
		c.DefaultLimits.MaxPerDayUSD = 5000
	}
	if c.DefaultLimits.CooldownSeconds == 0 {
		c.DefaultLimits.CooldownSeconds = 30
	}
	if c.DefaultLimits.SlippageBps == 0 {
		c.DefaultLimits.SlippageBps = 50
	}
}

// ShutdownTimeout returns the configured shutdown deadline as a duration.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutS) * time.Second
}

// RPCFor returns the RPC URL for a chain, falling back to the built-in
// default when no override is configured (spec.md §4.2).
func (c *Config) RPCFor(chainID int64) string {
	cc, ok := c.Chains[chainID]
	if !ok {
		return ""
	}
	if cc.RPCURL != "" {
		return cc.RPCURL
	}
	return cc.DefaultRPCURL
}

// EncryptedPrivateKey reads the encrypted key and decryption key from the
// environment, mirroring cmd/main.go's ENC_PK/KEY handling.
func (c *Config) EncryptedPrivateKey() (encrypted, key string, err error) {
	encEnv := c.Secrets.EncryptedPrivateKeyEnv
	keyEnv := c.Secrets.DecryptionKeyEnv
	if encEnv == "" {
		encEnv = "ENC_PK"
	}
	if keyEnv == "" {
		keyEnv = "KEY"
	}
	encrypted = os.Getenv(encEnv)
	key = os.Getenv(keyEnv)
	if encrypted == "" || key == "" {
		return "", "", fmt.Errorf("encrypted private key or decryption key not set (%s/%s)", encEnv, keyEnv)
	}
	return encrypted, key, nil
}
