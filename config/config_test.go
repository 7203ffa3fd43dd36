package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadConfigurationDefaults(t *testing.T) {
	cfg, err := ReadConfiguration("", GetFlagSet())
	require.NoError(t, err)
	assert.Equal(t, "localhost:8000", cfg.Addr)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "lobby", cfg.DefaultRoom)
	assert.Empty(t, cfg.AllowedOrigins)
	assert.Equal(t, int64(4096), cfg.MaxMessageSize)
	assert.Equal(t, 256, cfg.SendBuffer)
	assert.Equal(t, 1024, cfg.UrlCacheSize)
	assert.Equal(t, 20.0, cfg.RateLimit.EventsPerSecond)
	assert.Equal(t, 40, cfg.RateLimit.Burst)
	assert.Equal(t, "@every 30s", cfg.Presence.SweepSpec)
	assert.Equal(t, 2*time.Minute, cfg.Presence.IdleAfter)
	assert.Equal(t, 10*time.Minute, cfg.Presence.AwayAfter)
	assert.False(t, cfg.DisablePrivateFallback)
}

func TestReadConfigurationDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.toml"), []byte(`
addr = ":9000"
default_room = "hall"
allowed_origins = ["https://example.com"]
`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.toml"), []byte(`
[presence]
idle_after = "30s"

[rate_limit]
burst = 5
`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte(`addr = "nope"`), 0o600))

	cfg, err := ReadConfiguration(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, "hall", cfg.DefaultRoom)
	assert.Equal(t, []string{"https://example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, 30*time.Second, cfg.Presence.IdleAfter)
	assert.Equal(t, 10*time.Minute, cfg.Presence.AwayAfter)
	assert.Equal(t, 5, cfg.RateLimit.Burst)
}

func TestReadConfigurationOverrides(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(file, []byte("addr = \":9000\"\nlog_level = \"WARN\"\n"), 0o600))
	t.Setenv("LSPAGECHAT_LOG_LEVEL", "DEBUG")
	t.Setenv("LSPAGECHAT_PRESENCE_SWEEP_SPEC", "@every 1m")

	flagSet := GetFlagSet()
	require.NoError(t, flagSet.Parse([]string{"--addr", ":9100", "--ssl-cert", "cert.pem"}))
	cfg, err := ReadConfiguration(file, flagSet)
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.Addr)
	assert.Equal(t, "cert.pem", cfg.SSLCert)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "@every 1m", cfg.Presence.SweepSpec)
	// unset flags do not shadow the defaults
	assert.Equal(t, "lobby", cfg.DefaultRoom)
}

func TestReadConfigurationMissingFile(t *testing.T) {
	_, err := ReadConfiguration(filepath.Join(t.TempDir(), "missing.toml"), nil)
	assert.Error(t, err)
}
