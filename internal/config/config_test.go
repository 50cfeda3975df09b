package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown mode", func(c *Config) { c.Mode = "worker" }},
		{"unknown log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"bad postgres port", func(c *Config) { c.Postgres.Port = 0 }},
		{"pool min above max", func(c *Config) { c.Postgres.PoolMinConns = 20 }},
		{"empty redis addr", func(c *Config) { c.Redis.Addr = "" }},
		{"bad server port", func(c *Config) { c.Server.Port = 70_000 }},
		{"bad oracle bond", func(c *Config) { c.Oracle.MinBond = "1.5" }},
		{"negative challenge bond", func(c *Config) { c.Resolution.ChallengeBond = "-1" }},
		{"zero challenge period", func(c *Config) { c.Resolution.ChallengePeriod = duration{} }},
		{"sweeper without interval", func(c *Config) { c.Sweeper.Interval = duration{} }},
		{"archiver without bucket", func(c *Config) {
			c.Archiver.Enabled = true
			c.S3.Bucket = ""
		}},
		{"chain without key", func(c *Config) {
			c.Chain.Enabled = true
			c.Chain.RPCURL = "https://polygon-rpc.com"
		}},
		{"membership without url", func(c *Config) { c.Membership.Enabled = true }},
		{"rate limit without window", func(c *Config) {
			c.Server.RateLimit = 10
			c.Server.RateLimitWindow = duration{}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "sweep"
log_level = "debug"

[server]
enabled = false
port = 9100

[resolution]
challenge_period = "12h"
challenge_bond = "5000"
bond_token = "usdc"

[sweeper]
enabled = true
interval = "30s"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, "sweep", cfg.Mode)
	require.Equal(t, "debug", cfg.LogLevel)
	require.False(t, cfg.Server.Enabled)
	require.Equal(t, 9100, cfg.Server.Port)
	require.Equal(t, 12*time.Hour, cfg.Resolution.ChallengePeriod.Duration)
	require.Equal(t, "5000", cfg.Resolution.ChallengeBond)
	require.Equal(t, "5000", cfg.ResolutionChallengeBond().String())
	require.Equal(t, 30*time.Second, cfg.Sweeper.Interval.Duration)

	// Untouched sections keep their defaults.
	require.Equal(t, "localhost:6379", cfg.Redis.Addr)
	require.Equal(t, 2*time.Hour, cfg.Oracle.LivenessPeriod.Duration)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
port = 9100
`), 0o600))

	t.Setenv("FRIENDBET_SERVER_PORT", "9200")
	t.Setenv("FRIENDBET_POSTGRES_PASSWORD", "hunter2")
	t.Setenv("FRIENDBET_MODE", "serve")
	t.Setenv("FRIENDBET_SWEEPER_INTERVAL", "5m")
	t.Setenv("FRIENDBET_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 9200, cfg.Server.Port, "env wins over file")
	require.Equal(t, "hunter2", cfg.Postgres.Password)
	require.Equal(t, "serve", cfg.Mode)
	require.Equal(t, 5*time.Minute, cfg.Sweeper.Interval.Duration)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Server.APIKey = "secret"
	cfg.Postgres.Password = "secret"
	cfg.Chain.PrivateKey = "secret"
	cfg.Notify.TelegramToken = "secret"

	red := RedactedConfig(&cfg)
	require.NotEqual(t, "secret", red.Server.APIKey)
	require.NotEqual(t, "secret", red.Postgres.Password)
	require.NotEqual(t, "secret", red.Chain.PrivateKey)
	require.NotEqual(t, "secret", red.Notify.TelegramToken)

	// Redaction must not leak back into the source config.
	require.Equal(t, "secret", cfg.Server.APIKey)
}

func TestParseAmount(t *testing.T) {
	v, ok := parseAmount("")
	require.True(t, ok)
	require.Equal(t, "0", v.String())

	v, ok = parseAmount(" 1000000000000000000 ")
	require.True(t, ok)
	require.Equal(t, "1000000000000000000", v.String())

	for _, bad := range []string{"-1", "1.5", "0x10", "ten"} {
		_, ok := parseAmount(bad)
		require.False(t, ok, bad)
	}
}
