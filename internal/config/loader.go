package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies FRIENDBET_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known FRIENDBET_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Server ──
	setBool(&cfg.Server.Enabled, "FRIENDBET_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "FRIENDBET_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "FRIENDBET_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "FRIENDBET_SERVER_API_KEY")
	setBool(&cfg.Server.RequireSig, "FRIENDBET_SERVER_REQUIRE_SIG")
	setInt(&cfg.Server.RateLimit, "FRIENDBET_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "FRIENDBET_SERVER_RATE_LIMIT_WINDOW")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "FRIENDBET_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "FRIENDBET_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "FRIENDBET_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "FRIENDBET_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "FRIENDBET_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "FRIENDBET_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "FRIENDBET_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "FRIENDBET_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "FRIENDBET_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "FRIENDBET_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "FRIENDBET_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "FRIENDBET_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "FRIENDBET_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "FRIENDBET_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "FRIENDBET_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "FRIENDBET_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "FRIENDBET_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "FRIENDBET_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "FRIENDBET_S3_REGION")
	setStr(&cfg.S3.Bucket, "FRIENDBET_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "FRIENDBET_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "FRIENDBET_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "FRIENDBET_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "FRIENDBET_S3_FORCE_PATH_STYLE")

	// ── Chain ──
	setBool(&cfg.Chain.Enabled, "FRIENDBET_CHAIN_ENABLED")
	setStr(&cfg.Chain.RPCURL, "FRIENDBET_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "FRIENDBET_CHAIN_CHAIN_ID")
	setStr(&cfg.Chain.PrivateKey, "FRIENDBET_CHAIN_PRIVATE_KEY")
	setStr(&cfg.Chain.EncryptedKeyPath, "FRIENDBET_CHAIN_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Chain.KeyPassword, "FRIENDBET_CHAIN_KEY_PASSWORD")
	setUint64(&cfg.Chain.GasLimit, "FRIENDBET_CHAIN_GAS_LIMIT")

	// ── Membership ──
	setBool(&cfg.Membership.Enabled, "FRIENDBET_MEMBERSHIP_ENABLED")
	setStr(&cfg.Membership.BaseURL, "FRIENDBET_MEMBERSHIP_BASE_URL")
	setStr(&cfg.Membership.APIKey, "FRIENDBET_MEMBERSHIP_API_KEY")

	// ── Oracle ──
	setStr(&cfg.Oracle.GammaHost, "FRIENDBET_ORACLE_GAMMA_HOST")
	setDuration(&cfg.Oracle.LivenessPeriod, "FRIENDBET_ORACLE_LIVENESS_PERIOD")
	setStr(&cfg.Oracle.MinBond, "FRIENDBET_ORACLE_MIN_BOND")

	// ── Resolution ──
	setDuration(&cfg.Resolution.ChallengePeriod, "FRIENDBET_RESOLUTION_CHALLENGE_PERIOD")
	setStr(&cfg.Resolution.ChallengeBond, "FRIENDBET_RESOLUTION_CHALLENGE_BOND")
	setStr(&cfg.Resolution.BondToken, "FRIENDBET_RESOLUTION_BOND_TOKEN")
	setStr(&cfg.Resolution.Operator, "FRIENDBET_RESOLUTION_OPERATOR")

	// ── Sweeper ──
	setBool(&cfg.Sweeper.Enabled, "FRIENDBET_SWEEPER_ENABLED")
	setDuration(&cfg.Sweeper.Interval, "FRIENDBET_SWEEPER_INTERVAL")

	// ── Archiver ──
	setBool(&cfg.Archiver.Enabled, "FRIENDBET_ARCHIVER_ENABLED")
	setInt(&cfg.Archiver.RetentionDays, "FRIENDBET_ARCHIVER_RETENTION_DAYS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "FRIENDBET_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "FRIENDBET_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "FRIENDBET_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "FRIENDBET_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "FRIENDBET_MODE")
	setStr(&cfg.LogLevel, "FRIENDBET_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
