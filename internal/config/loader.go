package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies BONDWIZARD_* environment variable overrides, and
// returns the final Config. A missing file is not an error so deployments can
// configure through the environment alone. The returned Config has NOT been
// validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known BONDWIZARD_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "BONDWIZARD_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "BONDWIZARD_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "BONDWIZARD_WALLET_KEY_PASSWORD")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "BONDWIZARD_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "BONDWIZARD_CHAIN_CHAIN_ID")
	setStr(&cfg.Chain.BondFactory, "BONDWIZARD_CHAIN_BOND_FACTORY")
	setDuration(&cfg.Chain.ReceiptPollInterval, "BONDWIZARD_CHAIN_RECEIPT_POLL_INTERVAL")
	setInt(&cfg.Chain.GasBufferPct, "BONDWIZARD_CHAIN_GAS_BUFFER_PCT")

	// ── Indexer ──
	setStr(&cfg.Indexer.GraphQLURL, "BONDWIZARD_INDEXER_GRAPHQL_URL")
	setStr(&cfg.Indexer.APIKey, "BONDWIZARD_INDEXER_API_KEY")
	setStr(&cfg.Indexer.AppURL, "BONDWIZARD_INDEXER_APP_URL")
	setDuration(&cfg.Indexer.CacheTTL, "BONDWIZARD_INDEXER_CACHE_TTL")

	// ── Price feed ──
	setStr(&cfg.PriceFeed.BaseURL, "BONDWIZARD_PRICEFEED_BASE_URL")
	setStr(&cfg.PriceFeed.Platform, "BONDWIZARD_PRICEFEED_PLATFORM")
	setStr(&cfg.PriceFeed.APIKey, "BONDWIZARD_PRICEFEED_API_KEY")
	setStr(&cfg.PriceFeed.APISecret, "BONDWIZARD_PRICEFEED_API_SECRET")
	setDuration(&cfg.PriceFeed.CacheTTL, "BONDWIZARD_PRICEFEED_CACHE_TTL")
	setInt(&cfg.PriceFeed.RateLimit, "BONDWIZARD_PRICEFEED_RATE_LIMIT")
	setDuration(&cfg.PriceFeed.RateWindow, "BONDWIZARD_PRICEFEED_RATE_WINDOW")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "BONDWIZARD_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // platform alias
	setStr(&cfg.Postgres.Host, "BONDWIZARD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "BONDWIZARD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "BONDWIZARD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "BONDWIZARD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "BONDWIZARD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "BONDWIZARD_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "BONDWIZARD_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "BONDWIZARD_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "BONDWIZARD_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "BONDWIZARD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "BONDWIZARD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "BONDWIZARD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "BONDWIZARD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "BONDWIZARD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "BONDWIZARD_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "BONDWIZARD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "BONDWIZARD_S3_REGION")
	setStr(&cfg.S3.Bucket, "BONDWIZARD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "BONDWIZARD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "BONDWIZARD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "BONDWIZARD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "BONDWIZARD_S3_FORCE_PATH_STYLE")

	// ── Snapshot ──
	setBool(&cfg.Snapshot.Enabled, "BONDWIZARD_SNAPSHOT_ENABLED")
	setDuration(&cfg.Snapshot.Interval, "BONDWIZARD_SNAPSHOT_INTERVAL")
	setStr(&cfg.Snapshot.Prefix, "BONDWIZARD_SNAPSHOT_PREFIX")
	setInt(&cfg.Snapshot.Keep, "BONDWIZARD_SNAPSHOT_KEEP")

	// ── Server ──
	setInt(&cfg.Server.Port, "BONDWIZARD_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "BONDWIZARD_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "BONDWIZARD_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "BONDWIZARD_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "BONDWIZARD_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "BONDWIZARD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "BONDWIZARD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "BONDWIZARD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "BONDWIZARD_NOTIFY_EVENTS")

	// ── Wizard ──
	setInt(&cfg.Wizard.MaxMaturityYears, "BONDWIZARD_WIZARD_MAX_MATURITY_YEARS")
	setDuration(&cfg.Wizard.SessionTTL, "BONDWIZARD_WIZARD_SESSION_TTL")
	setDuration(&cfg.Wizard.LockTTL, "BONDWIZARD_WIZARD_LOCK_TTL")

	// ── Top-level ──
	setStr(&cfg.Mode, "BONDWIZARD_MODE")
	setStr(&cfg.LogLevel, "BONDWIZARD_LOG_LEVEL")
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
