package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	cfg.Chain.BondFactory = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	cfg.Indexer.GraphQLURL = "https://indexer.example/subgraphs/bonds"
	return cfg
}

func TestValidate(t *testing.T) {
	testcases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "unknown mode", mutate: func(c *Config) { c.Mode = "trade" }, wantErr: `unknown mode "trade"`},
		{name: "missing key", mutate: func(c *Config) { c.Wallet.PrivateKey = "" }, wantErr: "wallet: either private_key"},
		{name: "snapshot mode needs no key", mutate: func(c *Config) {
			c.Mode = "snapshot"
			c.Wallet.PrivateKey = ""
			c.Chain.BondFactory = ""
		}},
		{name: "encrypted key without password", mutate: func(c *Config) {
			c.Wallet.PrivateKey = ""
			c.Wallet.EncryptedKeyPath = "/keys/issuer.json"
		}, wantErr: "key_password is required"},
		{name: "bad factory", mutate: func(c *Config) { c.Chain.BondFactory = "factory" }, wantErr: "bond_factory must be a hex address"},
		{name: "price feed secret pair", mutate: func(c *Config) { c.PriceFeed.APIKey = "k" }, wantErr: "api_key and api_secret"},
		{name: "pool bounds", mutate: func(c *Config) { c.Postgres.PoolMinConns = 20 }, wantErr: "pool_min_conns must not exceed"},
		{name: "snapshot interval", mutate: func(c *Config) { c.Snapshot.Interval = duration{} }, wantErr: "snapshot: interval"},
		{name: "snapshot disabled skips s3", mutate: func(c *Config) {
			c.Snapshot.Enabled = false
			c.S3.Bucket = ""
		}},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestValidateAggregates(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "nope"
	cfg.LogLevel = "loud"
	cfg.Redis.Addr = ""
	err := cfg.Validate()
	require.ErrorContains(t, err, "unknown mode")
	require.ErrorContains(t, err, "unknown log_level")
	require.ErrorContains(t, err, "redis: addr")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "server"

[chain]
chain_id = 11155111
receipt_poll_interval = "500ms"

[wizard]
session_ttl = "30m"
`), 0o600))

	t.Setenv("BONDWIZARD_CHAIN_BOND_FACTORY", "0x5FbDB2315678afecb367f032d93F642f64180aa3")
	t.Setenv("BONDWIZARD_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("BONDWIZARD_WIZARD_MAX_MATURITY_YEARS", "5")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "server", cfg.Mode)
	require.Equal(t, int64(11155111), cfg.Chain.ChainID)
	require.Equal(t, 500*time.Millisecond, cfg.Chain.ReceiptPollInterval.Duration)
	require.Equal(t, 30*time.Minute, cfg.Wizard.SessionTTL.Duration)
	require.Equal(t, 5, cfg.Wizard.MaxMaturityYears)
	require.Equal(t, "0x5FbDB2315678afecb367f032d93F642f64180aa3", cfg.Chain.BondFactory)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	// Untouched sections keep their defaults.
	require.Equal(t, "localhost:6379", cfg.Redis.Addr)

	_, err = Load(filepath.Join(dir, "missing.toml"))
	require.NoError(t, err)
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.Password = "pg"
	cfg.Server.APIKey = "api"
	cfg.PriceFeed.APISecret = "shh"

	out := RedactedConfig(&cfg)
	require.Equal(t, "***", out.Wallet.PrivateKey)
	require.Equal(t, "***", out.Postgres.Password)
	require.Equal(t, "***", out.Server.APIKey)
	require.Equal(t, "***", out.PriceFeed.APISecret)
	require.Empty(t, out.Redis.Password)

	out.Server.CORSOrigins[0] = "mutated"
	require.NotEqual(t, "mutated", cfg.Server.CORSOrigins[0])
	require.NotEqual(t, "***", cfg.Wallet.PrivateKey)
}
