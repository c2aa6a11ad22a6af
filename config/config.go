// Package config provides configuration loading for autoflow services.
// Configuration is layered: built-in defaults, then an optional YAML file,
// then environment variable overrides for the connection endpoints.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete service configuration.
type Config struct {
	Engine EngineConfig `yaml:"engine"`
	Redis  RedisConfig  `yaml:"redis"`
	Mongo  MongoConfig  `yaml:"mongo"`
	AI     AIConfig     `yaml:"ai"`
}

// EngineConfig configures the workflow engine.
type EngineConfig struct {
	// CacheTTL bounds how long hot execution documents stay cached.
	CacheTTL time.Duration `yaml:"cache_ttl"`
	// LockTTL bounds how long an execution lock may be held.
	LockTTL time.Duration `yaml:"lock_ttl"`
	// LockAcquireTimeout bounds how long a step waits for a contended lock.
	LockAcquireTimeout time.Duration `yaml:"lock_acquire_timeout"`
}

// RedisConfig configures the Redis connection backing locks, cache, quotas,
// and event streams.
type RedisConfig struct {
	// Addr is the host:port of the Redis server.
	Addr string `yaml:"addr"`
	// Password authenticates the connection when set.
	Password string `yaml:"password"`
	// DB selects the logical database.
	DB int `yaml:"db"`
}

// MongoConfig configures the MongoDB connection backing workflow and
// execution storage.
type MongoConfig struct {
	// URI is the Mongo connection string.
	URI string `yaml:"uri"`
	// Database is the database name.
	Database string `yaml:"database"`
}

// AIConfig configures the AI provider fleet.
type AIConfig struct {
	// DefaultProvider is the provider used when no policy entry matches.
	DefaultProvider string `yaml:"default_provider"`
	// Providers configures the registered providers by name.
	Providers map[string]ProviderConfig `yaml:"providers"`
	// Policy maps task types to preferred provider names.
	Policy map[string]string `yaml:"policy"`
}

// ProviderConfig configures one AI provider.
type ProviderConfig struct {
	// APIKey authenticates against the provider. Usually set via the
	// provider's own environment variable instead of the file.
	APIKey string `yaml:"api_key"`
	// Model is the default model identifier.
	Model string `yaml:"model"`
	// DailyTokenLimit caps tokens per UTC day. Zero means unlimited.
	DailyTokenLimit int64 `yaml:"daily_token_limit"`
	// RequestsPerMinute throttles calls to the provider.
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	// CostPerMillionTokens estimates request cost from token usage.
	CostPerMillionTokens float64 `yaml:"cost_per_million_tokens"`
	// Fallbacks lists provider names to try when this provider fails.
	Fallbacks []string `yaml:"fallbacks"`
}

// Default returns a Config with built-in defaults.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			CacheTTL:           30 * time.Minute,
			LockTTL:            30 * time.Second,
			LockAcquireTimeout: 10 * time.Second,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Mongo: MongoConfig{
			URI:      "mongodb://localhost:27017",
			Database: "autoflow",
		},
		AI: AIConfig{},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path, and environment overrides, in that order. An empty path skips the
// file layer.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}
	if c.Mongo.URI == "" {
		return fmt.Errorf("mongo.uri is required")
	}
	if c.Mongo.Database == "" {
		return fmt.Errorf("mongo.database is required")
	}
	if len(c.AI.Providers) > 0 && c.AI.DefaultProvider == "" {
		return fmt.Errorf("ai.default_provider is required when providers are configured")
	}
	if c.AI.DefaultProvider != "" {
		if _, ok := c.AI.Providers[c.AI.DefaultProvider]; !ok {
			return fmt.Errorf("ai.default_provider %q is not configured", c.AI.DefaultProvider)
		}
	}
	return nil
}

// applyEnv overrides connection endpoints from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv("AUTOFLOW_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("AUTOFLOW_REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("AUTOFLOW_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.Redis.DB = db
		}
	}
	if v := os.Getenv("AUTOFLOW_MONGO_URI"); v != "" {
		c.Mongo.URI = v
	}
	if v := os.Getenv("AUTOFLOW_MONGO_DATABASE"); v != "" {
		c.Mongo.Database = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.setProviderKey("openai", v)
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		c.setProviderKey("anthropic", v)
	}
}

func (c *Config) setProviderKey(name, key string) {
	if c.AI.Providers == nil {
		return
	}
	p, ok := c.AI.Providers[name]
	if !ok || p.APIKey != "" {
		return
	}
	p.APIKey = key
	c.AI.Providers[name] = p
}
