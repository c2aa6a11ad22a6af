package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "localhost:6379", cfg.Redis.Addr)
	require.Equal(t, "mongodb://localhost:27017", cfg.Mongo.URI)
	require.Equal(t, "autoflow", cfg.Mongo.Database)
	require.Equal(t, 30*time.Minute, cfg.Engine.CacheTTL)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
engine:
  cache_ttl: 5m
redis:
  addr: redis.internal:6380
ai:
  default_provider: openai
  providers:
    openai:
      model: gpt-4o-mini
      daily_token_limit: 100000
      fallbacks: [anthropic]
    anthropic:
      model: claude-sonnet-4-5
  policy:
    summarization: anthropic
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 5*time.Minute, cfg.Engine.CacheTTL)
	require.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	require.Equal(t, "mongodb://localhost:27017", cfg.Mongo.URI)
	require.Equal(t, "openai", cfg.AI.DefaultProvider)
	require.Equal(t, int64(100000), cfg.AI.Providers["openai"].DailyTokenLimit)
	require.Equal(t, []string{"anthropic"}, cfg.AI.Providers["openai"].Fallbacks)
	require.Equal(t, "anthropic", cfg.AI.Policy["summarization"])
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("AUTOFLOW_REDIS_ADDR", "redis.prod:6379")
	t.Setenv("AUTOFLOW_MONGO_DATABASE", "autoflow_prod")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "redis.prod:6379", cfg.Redis.Addr)
	require.Equal(t, "autoflow_prod", cfg.Mongo.Database)
}

func TestLoadEnvFillsProviderKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
ai:
  default_provider: openai
  providers:
    openai:
      model: gpt-4o-mini
`), 0o600))
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "sk-test", cfg.AI.Providers["openai"].APIKey)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Redis.Addr = ""
	require.ErrorContains(t, cfg.Validate(), "redis.addr")

	cfg = Default()
	cfg.AI.Providers = map[string]ProviderConfig{"openai": {}}
	require.ErrorContains(t, cfg.Validate(), "ai.default_provider")

	cfg = Default()
	cfg.AI.DefaultProvider = "mistral"
	require.ErrorContains(t, cfg.Validate(), "not configured")
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
