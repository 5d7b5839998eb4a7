// Package config provides a reusable loader for the indexer's configuration
// files and environment variables: viper-backed, versioned,
// mapstructure-tagged.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/symbioticfi/points-indexer/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Chain is one of the supported chain selectors.
type Chain string

const (
	ChainHolesky Chain = "holesky"
	ChainSepolia Chain = "sepolia"
	ChainMainnet Chain = "mainnet"
)

func (c Chain) Valid() bool {
	switch c {
	case ChainHolesky, ChainSepolia, ChainMainnet:
		return true
	default:
		return false
	}
}

// Config is the unified configuration for either binary (cmd/indexer,
// cmd/apiserver). Only the sections each binary needs are read, but both
// share one loader so there is a single source of truth for the store DSN.
type Config struct {
	Chain struct {
		Selector   Chain  `mapstructure:"selector" json:"selector"`
		RPCURL     string `mapstructure:"rpc_url" json:"rpc_url"`
		StartBlock uint64 `mapstructure:"start_block" json:"start_block"` // vault factory creation block
	} `mapstructure:"chain" json:"chain"`

	Store struct {
		DSN      string `mapstructure:"dsn" json:"dsn"`
		MaxConns int32  `mapstructure:"max_conns" json:"max_conns"`
	} `mapstructure:"store" json:"store"`

	Prices struct {
		CMCAPIKey     string `mapstructure:"cmc_api_key" json:"cmc_api_key"`
		AlchemyAPIKey string `mapstructure:"alchemy_api_key" json:"alchemy_api_key"`
	} `mapstructure:"prices" json:"prices"`

	Driver struct {
		PollInterval     time.Duration `mapstructure:"poll_interval" json:"poll_interval"`
		SnapshotInterval uint64        `mapstructure:"snapshot_interval" json:"snapshot_interval"`
		RetryAttempts    int           `mapstructure:"retry_attempts" json:"retry_attempts"`
		RetryBaseBackoff time.Duration `mapstructure:"retry_base_backoff" json:"retry_base_backoff"`
	} `mapstructure:"driver" json:"driver"`

	API struct {
		ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`
	} `mapstructure:"api" json:"api"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
	} `mapstructure:"logging" json:"logging"`
}

// defaults carries the tuning the binaries share (200-block snapshot cadence,
// 5-attempt retry budget) so a config file only needs to override what it
// actually changes.
func defaults() Config {
	var c Config
	c.Driver.PollInterval = 12 * time.Second
	c.Driver.SnapshotInterval = 200
	c.Driver.RetryAttempts = 5
	c.Driver.RetryBaseBackoff = 500 * time.Millisecond
	c.Store.MaxConns = 10
	c.API.ListenAddr = ":8090"
	c.Logging.Level = "info"
	return c
}

// Load reads configuration from a file (if present) and environment
// variables, merging over the package defaults. env selects an optional
// per-chain overlay file (e.g. "holesky").
func Load(configPath, env string) (*Config, error) {
	_ = godotenv.Load(".env") // a .env file is optional; real deployments set real env vars

	cfg := defaults()

	v := viper.New()
	v.SetConfigType("yaml")
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("load config %s", configPath))
		}
	}
	if env == "" {
		env = utils.EnvOrDefault("INDEXER_ENV", "")
	}
	if env != "" {
		overlay := viper.New()
		overlay.SetConfigName(env)
		overlay.AddConfigPath(".")
		if err := overlay.ReadInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config overlay", env))
		}
		if err := v.MergeConfigMap(overlay.AllSettings()); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config overlay", env))
		}
	}

	v.SetEnvPrefix("INDEXER")
	v.AutomaticEnv()

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	if cfg.Chain.Selector != "" && !cfg.Chain.Selector.Valid() {
		return nil, fmt.Errorf("invalid chain selector %q", cfg.Chain.Selector)
	}
	return &cfg, nil
}
