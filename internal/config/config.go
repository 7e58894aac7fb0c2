// Package config defines the top-level configuration for the bond wizard
// backend and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by BONDWIZARD_* environment variables.
type Config struct {
	Wallet    WalletConfig    `toml:"wallet"`
	Chain     ChainConfig     `toml:"chain"`
	Indexer   IndexerConfig   `toml:"indexer"`
	PriceFeed PriceFeedConfig `toml:"pricefeed"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Snapshot  SnapshotConfig  `toml:"snapshot"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Wizard    WizardConfig    `toml:"wizard"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// WalletConfig holds the issuer key. Exactly one source is used: the raw
// hex key wins over the encrypted key file.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ChainConfig holds the JSON-RPC endpoint and contract addresses.
type ChainConfig struct {
	RPCURL              string   `toml:"rpc_url"`
	ChainID             int64    `toml:"chain_id"`
	BondFactory         string   `toml:"bond_factory"`
	ReceiptPollInterval duration `toml:"receipt_poll_interval"`
	GasBufferPct        int      `toml:"gas_buffer_pct"`
}

// IndexerConfig holds the bond subgraph endpoint.
type IndexerConfig struct {
	GraphQLURL string   `toml:"graphql_url"`
	APIKey     string   `toml:"api_key"`
	AppURL     string   `toml:"app_url"`
	CacheTTL   duration `toml:"cache_ttl"`
}

// PriceFeedConfig holds the USD quote provider and its rate budget.
type PriceFeedConfig struct {
	BaseURL    string   `toml:"base_url"`
	Platform   string   `toml:"platform"`
	APIKey     string   `toml:"api_key"`
	APISecret  string   `toml:"api_secret"`
	CacheTTL   duration `toml:"cache_ttl"`
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
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

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// SnapshotConfig controls the offering refresh loop and its archive.
type SnapshotConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval duration `toml:"interval"`
	Prefix   string   `toml:"prefix"`
	Keep     int      `toml:"keep"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
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

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// WizardConfig holds creation session limits.
type WizardConfig struct {
	MaxMaturityYears int      `toml:"max_maturity_years"`
	SessionTTL       duration `toml:"session_ttl"`
	LockTTL          duration `toml:"lock_ttl"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL:              "http://localhost:8545",
			ChainID:             1,
			ReceiptPollInterval: duration{2 * time.Second},
			GasBufferPct:        20,
		},
		Indexer: IndexerConfig{
			CacheTTL: duration{5 * time.Minute},
		},
		PriceFeed: PriceFeedConfig{
			BaseURL:    "https://api.coingecko.com/api/v3",
			Platform:   "ethereum",
			CacheTTL:   duration{time.Minute},
			RateLimit:  30,
			RateWindow: duration{time.Minute},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "bondwizard",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "bondwizard",
			ForcePathStyle: true,
		},
		Snapshot: SnapshotConfig{
			Enabled:  true,
			Interval: duration{5 * time.Minute},
			Prefix:   "offerings",
			Keep:     288,
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"bond_created", "bond_failed"},
		},
		Wizard: WizardConfig{
			MaxMaturityYears: 10,
			SessionTTL:       duration{2 * time.Hour},
			LockTTL:          duration{10 * time.Minute},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":   true,
	"snapshot": true,
	"full":     true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// ServesAPI reports whether the mode runs the HTTP API and wizard sessions.
func (c *Config) ServesAPI() bool {
	m := strings.ToLower(c.Mode)
	return m == "server" || m == "full"
}

// RunsSnapshots reports whether the mode runs the offering refresh loop.
func (c *Config) RunsSnapshots() bool {
	m := strings.ToLower(c.Mode)
	return m == "snapshot" || (m == "full" && c.Snapshot.Enabled)
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, snapshot, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet and chain are only needed where transactions are signed.
	if c.ServesAPI() {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for mode "+c.Mode)
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
		if c.Chain.RPCURL == "" {
			errs = append(errs, "chain: rpc_url must not be empty")
		}
		if c.Chain.ChainID <= 0 {
			errs = append(errs, "chain: chain_id must be positive")
		}
		if !common.IsHexAddress(c.Chain.BondFactory) {
			errs = append(errs, fmt.Sprintf("chain: bond_factory must be a hex address, got %q", c.Chain.BondFactory))
		}
		if c.Chain.GasBufferPct < 0 || c.Chain.GasBufferPct > 100 {
			errs = append(errs, fmt.Sprintf("chain: gas_buffer_pct must be 0-100, got %d", c.Chain.GasBufferPct))
		}
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Wizard.MaxMaturityYears < 1 {
			errs = append(errs, "wizard: max_maturity_years must be >= 1")
		}
		if c.Wizard.SessionTTL.Duration <= 0 {
			errs = append(errs, "wizard: session_ttl must be > 0")
		}
	}

	if c.Indexer.GraphQLURL == "" {
		errs = append(errs, "indexer: graphql_url must not be empty")
	}

	if c.PriceFeed.BaseURL == "" {
		errs = append(errs, "pricefeed: base_url must not be empty")
	}
	if c.PriceFeed.RateLimit < 1 {
		errs = append(errs, "pricefeed: rate_limit must be >= 1")
	}
	if (c.PriceFeed.APIKey == "") != (c.PriceFeed.APISecret == "") {
		errs = append(errs, "pricefeed: api_key and api_secret must be set together")
	}

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

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.RunsSnapshots() {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.Snapshot.Interval.Duration < time.Second {
			errs = append(errs, "snapshot: interval must be at least 1s")
		}
		if c.Snapshot.Keep < 0 {
			errs = append(errs, "snapshot: keep must be >= 0")
		}
	}

	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
