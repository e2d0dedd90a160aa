// Package config loads the extraction worker's configuration tree from
// defaults and an optional YAML file (plus the LLM API key from the
// environment), following the teacher's conduit configuration layering.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full worker configuration tree.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Graph       GraphConfig       `mapstructure:"graph"`
	LLM         LLMConfig         `mapstructure:"llm"`
	CheckCreate CheckCreateConfig `mapstructure:"check_create"`
	Cache       CacheConfig       `mapstructure:"cache"`
	JobStore    JobStoreConfig    `mapstructure:"job_store"`
}

// ServerConfig is the job API's HTTP bind.
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// GraphConfig configures the worker's single graph client, which serves
// every job; a job request's api_base field is not read.
type GraphConfig struct {
	APIBase        string        `mapstructure:"api_base"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// LLMConfig selects and configures the LLM provider. APIKey is
// intentionally env-only. MaxRetries, BackoffBaseSeconds and
// BackoffCapSeconds are not passed to the providers: the retry loop in
// internal/extract/retry.go uses its own fixed constants.
type LLMConfig struct {
	Provider           string `mapstructure:"provider"` // "gemini" or "ollama"
	Model              string `mapstructure:"model"`
	Endpoint           string `mapstructure:"endpoint"`
	APIKey             string `mapstructure:"-"`
	TimeoutSeconds     int    `mapstructure:"timeout_seconds"`
	MaxRetries         int    `mapstructure:"max_retries"`
	BackoffBaseSeconds int    `mapstructure:"backoff_base_seconds"`
	BackoffCapSeconds  int    `mapstructure:"backoff_cap_seconds"`
}

// CheckCreateConfig makes the §4.5 timing constants configurable so tests
// can use a near-zero settle delay without changing production defaults.
type CheckCreateConfig struct {
	ConcurrencyCeiling int `mapstructure:"concurrency_ceiling"`
	SettleMillis       int `mapstructure:"settle_millis"`
	RetryDelayMillis   int `mapstructure:"retry_delay_millis"`
	JitterMillis       int `mapstructure:"jitter_millis"`
}

// CacheConfig is §4.5.1's optional resolution cache.
type CacheConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	RedisAddr  string `mapstructure:"redis_addr"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

// JobStoreConfig is the SQLite DSN for the local job ledger.
type JobStoreConfig struct {
	DSN string `mapstructure:"dsn"`
}

// DefaultServerConfig returns the production default HTTP bind.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{Addr: ":8090", ReadTimeout: 10 * time.Second, WriteTimeout: 30 * time.Second}
}

// DefaultGraphConfig returns the production default graph client timeout.
func DefaultGraphConfig() GraphConfig {
	return GraphConfig{RequestTimeout: 30 * time.Second}
}

// DefaultLLMConfig returns the spec's fixed retry/backoff defaults (3
// retries, 15s/120s backoff, 120s per-attempt timeout).
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:           "gemini",
		TimeoutSeconds:     120,
		MaxRetries:         3,
		BackoffBaseSeconds: 15,
		BackoffCapSeconds:  120,
	}
}

// DefaultCheckCreateConfig returns the spec's fixed check-create timing.
func DefaultCheckCreateConfig() CheckCreateConfig {
	return CheckCreateConfig{
		ConcurrencyCeiling: 20,
		SettleMillis:       100,
		RetryDelayMillis:   150,
		JitterMillis:       100,
	}
}

// DefaultCacheConfig returns the resolution cache defaults (disabled by
// default; the check-create protocol works correctly without it).
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{Enabled: false, RedisAddr: "localhost:6379", TTLSeconds: 5}
}

// DefaultJobStoreConfig returns the default WAL-mode SQLite DSN.
func DefaultJobStoreConfig() JobStoreConfig {
	return JobStoreConfig{DSN: "kgextractor-jobs.db?_journal_mode=WAL&_foreign_keys=ON"}
}

// DefaultConfig returns the full tree of production defaults.
func DefaultConfig() *Config {
	return &Config{
		Server:      DefaultServerConfig(),
		Graph:       DefaultGraphConfig(),
		LLM:         DefaultLLMConfig(),
		CheckCreate: DefaultCheckCreateConfig(),
		Cache:       DefaultCacheConfig(),
		JobStore:    DefaultJobStoreConfig(),
	}
}

// Load reads configuration from defaults and an optional
// kgextractor-worker.yaml file, in increasing precedence, following the
// teacher's viper layering in internal/config and internal/kb/kag_config.go.
// The only setting taken from the environment is the LLM API key, read from
// KGEXTRACTOR_LLM_API_KEY: AutomaticEnv is enabled, but no nested key is
// bound to an environment variable, so Unmarshal sees no environment values.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName("kgextractor-worker")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/kgextractor")

	v.SetEnvPrefix("KGEXTRACTOR")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.LLM.APIKey = v.GetString("llm_api_key")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every sub-config for internal consistency.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if c.LLM.Provider != "gemini" && c.LLM.Provider != "ollama" {
		return fmt.Errorf("llm.provider must be \"gemini\" or \"ollama\", got %q", c.LLM.Provider)
	}
	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("llm.max_retries must not be negative")
	}
	if c.CheckCreate.ConcurrencyCeiling <= 0 {
		return fmt.Errorf("check_create.concurrency_ceiling must be positive")
	}
	if c.Cache.Enabled && c.Cache.RedisAddr == "" {
		return fmt.Errorf("cache.redis_addr must be set when cache.enabled is true")
	}
	if c.JobStore.DSN == "" {
		return fmt.Errorf("job_store.dsn must not be empty")
	}
	return nil
}
