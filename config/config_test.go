package config

import (
	"os"
	"testing"

	"cryptofolio/internal/models"
)

// writeTempConfig creates a minimal configuration file required for LoadConfig
// and returns its path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp file: %v", err)
	}
	t.Cleanup(func() { os.Remove(f.Name()) })
	return f.Name()
}

const minimalConfig = `app:
  name: "TestApp"
  version: "1.0"
providers:
  binance:
    enabled: true
user:
  exchanges:
    - name: binance
      api_key: "key"
      api_secret: "secret"
      active: true
  wallets:
    - name: cold
      address: "bc1qtest"
      type: Bitcoin
      active: true
`

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t, minimalConfig)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.App.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.App.Name)
	}
	if !cfg.Providers.Binance.Enabled {
		t.Errorf("binance provider should be enabled")
	}
	if len(cfg.User.Exchanges) != 1 || cfg.User.Exchanges[0].Name != "binance" {
		t.Errorf("unexpected exchanges: %+v", cfg.User.Exchanges)
	}
	if len(cfg.User.Wallets) != 1 || cfg.User.Wallets[0].Type != models.ChainBitcoin {
		t.Errorf("unexpected wallets: %+v", cfg.User.Wallets)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeTempConfig(t, minimalConfig)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Errorf("unexpected server address default: %s", cfg.Server.Address)
	}
	if cfg.Aggregator.BaseCurrency != "USD" {
		t.Errorf("unexpected base currency default: %s", cfg.Aggregator.BaseCurrency)
	}
	if cfg.Aggregator.OriginTimeoutSeconds != 60 {
		t.Errorf("unexpected origin timeout default: %d", cfg.Aggregator.OriginTimeoutSeconds)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("unexpected logging defaults: %s/%s", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoadConfigMissingAppName(t *testing.T) {
	path := writeTempConfig(t, `app:
  version: "1.0"
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected validation error for missing app.name")
	}
}

func TestLoadConfigWalletValidation(t *testing.T) {
	path := writeTempConfig(t, `app:
  name: "TestApp"
  version: "1.0"
user:
  wallets:
    - name: broken
      type: Bitcoin
      active: true
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected validation error for missing wallet address")
	}
}

func TestLoadConfigExplorerKeyRequired(t *testing.T) {
	t.Setenv("ETHERSCAN_API_KEY", "")
	path := writeTempConfig(t, `app:
  name: "TestApp"
  version: "1.0"
providers:
  ethereum:
    enabled: true
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected validation error for missing etherscan key")
	}
}

func TestLoadConfigExplorerKeyFromEnv(t *testing.T) {
	t.Setenv("ETHERSCAN_API_KEY", "env-key")
	path := writeTempConfig(t, `app:
  name: "TestApp"
  version: "1.0"
providers:
  ethereum:
    enabled: true
    api_key: "file-key"
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Providers.Ethereum.APIKey != "env-key" {
		t.Errorf("environment key should win: %s", cfg.Providers.Ethereum.APIKey)
	}
}

func TestResolveEnvSpecificPath(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	got := resolveEnvSpecificPath("", "config/config.yml", map[string]string{
		environmentProduction: "config/config.production.yml",
	})
	if got != "config/config.production.yml" {
		t.Errorf("unexpected path: %s", got)
	}
}

func TestResolveEnvSpecificPathExplicitWins(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	got := resolveEnvSpecificPath("custom.yml", "config/config.yml", map[string]string{
		environmentProduction: "config/config.production.yml",
	})
	if got != "custom.yml" {
		t.Errorf("explicit path should win: %s", got)
	}
}
