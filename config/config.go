package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"cryptofolio/internal/models"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Server     ServerConfig     `yaml:"server"`
	Aggregator AggregatorConfig `yaml:"aggregator"`
	Pricing    PricingConfig    `yaml:"pricing"`
	Providers  ProvidersConfig  `yaml:"providers"`
	User       models.User      `yaml:"user"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ServerConfig struct {
	Address string `yaml:"address"`
}

type AggregatorConfig struct {
	// FailFast aborts the whole aggregation on the first provider error
	// instead of degrading to partial results.
	FailFast bool `yaml:"fail_fast"`
	// BaseCurrency is the fiat currency all asset values are quoted in.
	BaseCurrency string `yaml:"base_currency"`
	// OriginTimeoutSeconds bounds how long a single origin may take.
	OriginTimeoutSeconds int `yaml:"origin_timeout_seconds"`
	// NameFallback is used when a ticker cannot be resolved to a display name.
	NameFallback string `yaml:"name_fallback"`
}

type PricingConfig struct {
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type ProvidersConfig struct {
	Binance   ExchangeProviderConfig `yaml:"binance"`
	Kraken    ExchangeProviderConfig `yaml:"kraken"`
	Kucoin    ExchangeProviderConfig `yaml:"kucoin"`
	Bybit     ExchangeProviderConfig `yaml:"bybit"`
	CryptoCom ExchangeProviderConfig `yaml:"cryptocom"`
	Bitcoin   ChainProviderConfig    `yaml:"bitcoin"`
	Ethereum  ChainProviderConfig    `yaml:"ethereum"`
	BSC       ChainProviderConfig    `yaml:"bsc"`
}

type ExchangeProviderConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

type ChainProviderConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	APIKey  string `yaml:"api_key"`
	// RequestsPerSecond paces explorer calls; zero uses the client default.
	RequestsPerSecond int `yaml:"requests_per_second"`
}

type LoggingConfig struct {
	Level         string `yaml:"level"`
	Format        string `yaml:"format"`
	Output        string `yaml:"output"`
	MaxAge        int    `yaml:"max_age"`
	DashboardName string `yaml:"dashboard_name"`
}

const defaultConfigPath = "config/config.yml"

var envConfigPaths = map[string]string{
	environmentProduction: "config/config.production.yml",
	environmentStaging:    "config/config.staging.yml",
}

func LoadConfig(path string) (*Config, error) {
	path = resolveEnvSpecificPath(path, defaultConfigPath, envConfigPaths)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Explorer API keys come from the environment when set, so credentials
	// stay out of checked-in configuration.
	if v := os.Getenv("ETHERSCAN_API_KEY"); v != "" {
		config.Providers.Ethereum.APIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("BSCSCAN_API_KEY"); v != "" {
		config.Providers.BSC.APIKey = strings.TrimSpace(v)
	}

	applyDefaults(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Aggregator.BaseCurrency == "" {
		cfg.Aggregator.BaseCurrency = "USD"
	}
	if cfg.Aggregator.OriginTimeoutSeconds <= 0 {
		cfg.Aggregator.OriginTimeoutSeconds = 60
	}
	if cfg.Pricing.TimeoutSeconds <= 0 {
		cfg.Pricing.TimeoutSeconds = 10
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validateConfig(cfg *Config) error {
	if cfg.App.Name == "" {
		return fmt.Errorf("app.name is required")
	}
	if cfg.App.Version == "" {
		return fmt.Errorf("app.version is required")
	}

	if cfg.Providers.Ethereum.Enabled && cfg.Providers.Ethereum.APIKey == "" {
		return fmt.Errorf("providers.ethereum.api_key is required when the ethereum provider is enabled")
	}
	if cfg.Providers.BSC.Enabled && cfg.Providers.BSC.APIKey == "" {
		return fmt.Errorf("providers.bsc.api_key is required when the bsc provider is enabled")
	}

	for i, wallet := range cfg.User.Wallets {
		if wallet.Address == "" {
			return fmt.Errorf("user.wallets[%d].address is required", i)
		}
		if wallet.Type == "" {
			return fmt.Errorf("user.wallets[%d].type is required", i)
		}
	}
	strict := IsProductionLike(AppEnvironment())
	for i, acct := range cfg.User.Exchanges {
		if acct.Name == "" {
			return fmt.Errorf("user.exchanges[%d].name is required", i)
		}
		if strict && acct.Active && acct.APIKey == "" {
			return fmt.Errorf("user.exchanges[%d].api_key is required for active exchanges", i)
		}
	}

	return nil
}
