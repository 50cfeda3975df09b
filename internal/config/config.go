// Package config defines the top-level configuration for the friend market
// engine and provides validation helpers.
package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by FRIENDBET_* environment variables.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Chain      ChainConfig      `toml:"chain"`
	Membership MembershipConfig `toml:"membership"`
	Oracle     OracleConfig     `toml:"oracle"`
	Resolution ResolutionConfig `toml:"resolution"`
	Sweeper    SweeperConfig    `toml:"sweeper"`
	Archiver   ArchiverConfig   `toml:"archiver"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RequireSig  bool     `toml:"require_sig"`
	// RateLimit is requests per window per client IP; 0 disables limiting.
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the archiver.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ChainConfig holds on-chain settlement parameters. When disabled, the vault
// tracks balances in the ledger only and fund movement is a no-op.
type ChainConfig struct {
	Enabled          bool   `toml:"enabled"`
	RPCURL           string `toml:"rpc_url"`
	ChainID          int64  `toml:"chain_id"`
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	GasLimit         uint64 `toml:"gas_limit"`
}

// MembershipConfig holds the external capability service. When disabled,
// every address may create every market type.
type MembershipConfig struct {
	Enabled bool   `toml:"enabled"`
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
}

// OracleConfig holds oracle adapter parameters.
type OracleConfig struct {
	GammaHost string `toml:"gamma_host"`
	// LivenessPeriod is how long an asserted outcome stays disputable.
	LivenessPeriod duration `toml:"liveness_period"`
	// MinBond is the smallest acceptable assertion bond, a base-10 integer
	// string in the token's smallest unit.
	MinBond string `toml:"min_bond"`
}

// ResolutionConfig holds the optimistic resolution flow parameters.
type ResolutionConfig struct {
	ChallengePeriod duration `toml:"challenge_period"`
	// ChallengeBond is the exact bond a challenger must post, a base-10
	// integer string. Empty or "0" disables bonding.
	ChallengeBond string `toml:"challenge_bond"`
	BondToken     string `toml:"bond_token"`
	// Operator adjudicates disputes on markets without a named arbitrator.
	Operator string `toml:"operator"`
}

// SweeperConfig holds the deadline worker parameters.
type SweeperConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval duration `toml:"interval"`
}

// ArchiverConfig holds the audit/market archival parameters.
type ArchiverConfig struct {
	Enabled       bool `toml:"enabled"`
	RetentionDays int  `toml:"retention_days"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       0,
			RateLimitWindow: duration{time.Second},
		},
		Postgres: PostgresConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "friendbet-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Chain: ChainConfig{
			Enabled:  false,
			ChainID:  137,
			GasLimit: 100_000,
		},
		Membership: MembershipConfig{
			Enabled: false,
		},
		Oracle: OracleConfig{
			GammaHost:      "https://gamma-api.polymarket.com",
			LivenessPeriod: duration{2 * time.Hour},
			MinBond:        "0",
		},
		Resolution: ResolutionConfig{
			ChallengePeriod: duration{24 * time.Hour},
			ChallengeBond:   "0",
		},
		Sweeper: SweeperConfig{
			Enabled:  true,
			Interval: duration{time.Minute},
		},
		Archiver: ArchiverConfig{
			Enabled:       false,
			RetentionDays: 90,
		},
		Notify: NotifyConfig{
			Events: []string{
				"market.resolution_finalized",
				"market.dispute_resolved",
				"market.winnings_claimed",
				"error",
			},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve": true,
	"sweep": true,
	"full":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, sweep, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 — only required when the archiver depends on it.
	if c.S3.Enabled || c.Archiver.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Chain — on-chain settlement needs an RPC endpoint and a key source.
	if c.Chain.Enabled {
		if c.Chain.RPCURL == "" {
			errs = append(errs, "chain: rpc_url must not be empty when chain is enabled")
		}
		if c.Chain.ChainID <= 0 {
			errs = append(errs, "chain: chain_id must be positive")
		}
		if c.Chain.PrivateKey == "" && c.Chain.EncryptedKeyPath == "" {
			errs = append(errs, "chain: either private_key or encrypted_key_path must be set")
		}
		if c.Chain.EncryptedKeyPath != "" && c.Chain.KeyPassword == "" {
			errs = append(errs, "chain: key_password is required when encrypted_key_path is set")
		}
	}

	// Membership
	if c.Membership.Enabled && c.Membership.BaseURL == "" {
		errs = append(errs, "membership: base_url must not be empty when membership is enabled")
	}

	// Oracle
	if _, ok := parseAmount(c.Oracle.MinBond); !ok {
		errs = append(errs, fmt.Sprintf("oracle: min_bond %q is not a base-10 integer", c.Oracle.MinBond))
	}
	if c.Oracle.LivenessPeriod.Duration < 0 {
		errs = append(errs, "oracle: liveness_period must not be negative")
	}

	// Resolution
	if _, ok := parseAmount(c.Resolution.ChallengeBond); !ok {
		errs = append(errs, fmt.Sprintf("resolution: challenge_bond %q is not a base-10 integer", c.Resolution.ChallengeBond))
	}
	if c.Resolution.ChallengePeriod.Duration <= 0 {
		errs = append(errs, "resolution: challenge_period must be > 0")
	}

	// Sweeper
	if c.Sweeper.Enabled && c.Sweeper.Interval.Duration <= 0 {
		errs = append(errs, "sweeper: interval must be > 0 when enabled")
	}

	// Archiver
	if c.Archiver.Enabled && c.Archiver.RetentionDays < 1 {
		errs = append(errs, "archiver: retention_days must be >= 1 when enabled")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit > 0 && c.Server.RateLimitWindow.Duration <= 0 {
			errs = append(errs, "server: rate_limit_window must be > 0 when rate_limit is set")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// OracleMinBond returns the parsed oracle.min_bond. Call Validate first;
// unparseable values fall back to zero here.
func (c *Config) OracleMinBond() *big.Int {
	if v, ok := parseAmount(c.Oracle.MinBond); ok {
		return v
	}
	return big.NewInt(0)
}

// ResolutionChallengeBond returns the parsed resolution.challenge_bond. Call
// Validate first; unparseable values fall back to zero here.
func (c *Config) ResolutionChallengeBond() *big.Int {
	if v, ok := parseAmount(c.Resolution.ChallengeBond); ok {
		return v
	}
	return big.NewInt(0)
}

// parseAmount parses a non-negative base-10 integer string. Empty strings
// parse as zero.
func parseAmount(s string) (*big.Int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return big.NewInt(0), true
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, false
	}
	return v, true
}
