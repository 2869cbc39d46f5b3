package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "choreloop.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 512, cfg.Cache.Size)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL.Std())
	assert.Equal(t, int64(1000), cfg.Log.MaxLength)
	assert.Equal(t, int64(300), cfg.Resolver.Window)
	assert.Equal(t, 3*time.Second, cfg.Protocol.Countdown.Std())
	assert.Equal(t, 250*time.Millisecond, cfg.Protocol.ConfirmBuffer.Std())
	require.NoError(t, cfg.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	path := writeConfig(t, `
redis:
  addr: kv.internal:6380
  db: 2
cache:
  size: 64
  ttl: 90s
resolver:
  window: 150
protocol:
  countdown: 5s
  token_ttl: 1m
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "kv.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, 64, cfg.Cache.Size)
	assert.Equal(t, 90*time.Second, cfg.Cache.TTL.Std())
	assert.Equal(t, int64(150), cfg.Resolver.Window)
	assert.Equal(t, 5*time.Second, cfg.Protocol.Countdown.Std())
	assert.Equal(t, time.Minute, cfg.Protocol.TokenTTL.Std())

	// Untouched sections keep their defaults.
	assert.Equal(t, int64(1000), cfg.Log.MaxLength)
	assert.Equal(t, 150*time.Millisecond, cfg.Protocol.InitiateDelay.Std())
}

func TestLoad_BadDuration(t *testing.T) {
	path := writeConfig(t, "cache:\n  ttl: soon\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.Redis.Addr = "" }},
		{"zero cache", func(c *Config) { c.Cache.Size = 0 }},
		{"zero log bound", func(c *Config) { c.Log.MaxLength = 0 }},
		{"zero window", func(c *Config) { c.Resolver.Window = 0 }},
		{"buffer swallows countdown", func(c *Config) { c.Protocol.ConfirmBuffer = c.Protocol.Countdown }},
		{"token dies mid-countdown", func(c *Config) { c.Protocol.TokenTTL = Duration(time.Second) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
