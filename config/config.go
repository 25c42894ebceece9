// Package config loads engine configuration from a JSON file with
// environment-variable overrides.
package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Provider Provider `json:"provider"`
	Engine   Engine   `json:"engine"`
	Memory   Memory   `json:"memory"`
	Cache    Cache    `json:"cache"`
	Delivery Delivery `json:"delivery"`
	Storage  Storage  `json:"storage"`
}

type Provider struct {
	APIKey    string `json:"api_key" env:"COMPANION_PROVIDER_API_KEY"`
	Model     string `json:"model" env:"COMPANION_PROVIDER_MODEL"`
	MaxTokens int64  `json:"max_tokens" env:"COMPANION_PROVIDER_MAX_TOKENS"`
}

type Engine struct {
	Window         int `json:"window" env:"COMPANION_ENGINE_WINDOW"`
	Attempts       int `json:"attempts" env:"COMPANION_ENGINE_ATTEMPTS"`
	BackoffSeconds int `json:"backoff_seconds" env:"COMPANION_ENGINE_BACKOFF_SECONDS"`
	TimeoutSeconds int `json:"timeout_seconds" env:"COMPANION_ENGINE_TIMEOUT_SECONDS"`
	MaxReplyLength int `json:"max_reply_length" env:"COMPANION_ENGINE_MAX_REPLY_LENGTH"`
}

type Memory struct {
	TopK int `json:"top_k" env:"COMPANION_MEMORY_TOP_K"`
}

type Cache struct {
	Enabled    bool `json:"enabled" env:"COMPANION_CACHE_ENABLED"`
	MaxEntries int  `json:"max_entries" env:"COMPANION_CACHE_MAX_ENTRIES"`
	TTLSeconds int  `json:"ttl_seconds" env:"COMPANION_CACHE_TTL_SECONDS"`
}

type Delivery struct {
	HeartbeatSeconds int `json:"heartbeat_seconds" env:"COMPANION_DELIVERY_HEARTBEAT_SECONDS"`
}

type Storage struct {
	DBPath string `json:"db_path" env:"COMPANION_STORAGE_DB_PATH"`
}

func Default() *Config {
	return &Config{
		Provider: Provider{
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 1024,
		},
		Engine: Engine{
			Window:         20,
			Attempts:       3,
			BackoffSeconds: 2,
			TimeoutSeconds: 30,
			MaxReplyLength: 2000,
		},
		Memory: Memory{
			TopK: 5,
		},
		Cache: Cache{
			Enabled:    true,
			MaxEntries: 10000,
			TTLSeconds: 3600,
		},
		Delivery: Delivery{
			HeartbeatSeconds: 30,
		},
		Storage: Storage{
			DBPath: "companion.db",
		},
	}
}

// Load reads the config file at path (missing file uses defaults) and
// applies environment overrides on top.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Backoff() time.Duration {
	return time.Duration(c.Engine.BackoffSeconds) * time.Second
}

func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.Engine.TimeoutSeconds) * time.Second
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Delivery.HeartbeatSeconds) * time.Second
}
