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
// built-in defaults, applies OOADAPTER_* environment variable overrides, and
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

// applyEnvOverrides reads well-known OOADAPTER_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "OOADAPTER_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "OOADAPTER_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "OOADAPTER_WALLET_KEY_PASSWORD")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "OOADAPTER_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "OOADAPTER_CHAIN_ID")
	setDuration(&cfg.Chain.TxTimeout, "OOADAPTER_CHAIN_TX_TIMEOUT")
	setStr(&cfg.Chain.OracleAddress, "OOADAPTER_CHAIN_ORACLE_ADDRESS")
	setStr(&cfg.Chain.SettlementAddress, "OOADAPTER_CHAIN_SETTLEMENT_ADDRESS")
	setStr(&cfg.Chain.AllowListAddress, "OOADAPTER_CHAIN_ALLOWLIST_ADDRESS")
	setStr(&cfg.Chain.AdapterAddress, "OOADAPTER_CHAIN_ADAPTER_ADDRESS")

	// ── Adapter ──
	setDuration(&cfg.Adapter.EmergencySafetyPeriod, "OOADAPTER_EMERGENCY_SAFETY_PERIOD")
	setInt(&cfg.Adapter.MaxAncillaryData, "OOADAPTER_MAX_ANCILLARY_DATA")
	setStringSlice(&cfg.Adapter.Admins, "OOADAPTER_ADMINS")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "OOADAPTER_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "OOADAPTER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "OOADAPTER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "OOADAPTER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "OOADAPTER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "OOADAPTER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "OOADAPTER_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "OOADAPTER_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "OOADAPTER_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "OOADAPTER_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "OOADAPTER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "OOADAPTER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "OOADAPTER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "OOADAPTER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "OOADAPTER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "OOADAPTER_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "OOADAPTER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "OOADAPTER_S3_REGION")
	setStr(&cfg.S3.Bucket, "OOADAPTER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "OOADAPTER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "OOADAPTER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "OOADAPTER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "OOADAPTER_S3_FORCE_PATH_STYLE")

	// ── Worker ──
	setBool(&cfg.Worker.Enabled, "OOADAPTER_WORKER_ENABLED")
	setDuration(&cfg.Worker.PollInterval, "OOADAPTER_WORKER_POLL_INTERVAL")
	setInt(&cfg.Worker.BatchSize, "OOADAPTER_WORKER_BATCH_SIZE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "OOADAPTER_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "OOADAPTER_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Cron, "OOADAPTER_ARCHIVE_CRON")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "OOADAPTER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "OOADAPTER_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "OOADAPTER_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "OOADAPTER_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "OOADAPTER_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "OOADAPTER_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "OOADAPTER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "OOADAPTER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "OOADAPTER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "OOADAPTER_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "OOADAPTER_MODE")
	setStr(&cfg.LogLevel, "OOADAPTER_LOG_LEVEL")
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
