package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"cryptofolio/config"
	"cryptofolio/internal/aggregator"
	"cryptofolio/internal/models"
	"cryptofolio/internal/names"
	"cryptofolio/internal/pricing"
	"cryptofolio/internal/provider"
	"cryptofolio/internal/provider/blockchain"
	"cryptofolio/internal/provider/exchange"
	"cryptofolio/internal/server"
	"cryptofolio/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.App.Name,
		"version": cfg.App.Version,
	}).Info("starting cryptofolio")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.InitCloudWatch("", "")
	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	prices := pricing.NewClient(cfg.Pricing.URL, time.Duration(cfg.Pricing.TimeoutSeconds)*time.Second)
	deps := provider.Deps{
		Prices:       prices,
		Names:        names.NewResolver(cfg.Aggregator.NameFallback),
		BaseCurrency: cfg.Aggregator.BaseCurrency,
	}

	registry := buildRegistry(deps, cfg)
	agg := aggregator.New(registry, cfg.User, cfg.Aggregator)
	api := server.New(cfg.Server, agg)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- api.Run(ctx)
	}()

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
		cancel()
		select {
		case <-serverErr:
		case <-time.After(30 * time.Second):
			log.Warn("graceful shutdown timeout exceeded")
		}
	case err := <-serverErr:
		if err != nil {
			log.WithError(err).Error("api server failed")
			os.Exit(1)
		}
	}

	log.Info("cryptofolio stopped")
}

// buildRegistry wires an adapter constructor for every enabled provider.
// Disabled providers are simply absent from the table, so accounts and
// wallets referencing them are skipped during aggregation.
func buildRegistry(deps provider.Deps, cfg *config.Config) *provider.Registry {
	registry := provider.NewRegistry(deps)
	providers := cfg.Providers

	if providers.Binance.Enabled {
		registry.RegisterExchange("binance", func(deps provider.Deps, account models.ExchangeAccount) (provider.Provider, error) {
			return exchange.NewBinance(deps, account, providers.Binance)
		})
	}
	if providers.Kraken.Enabled {
		registry.RegisterExchange("kraken", func(deps provider.Deps, account models.ExchangeAccount) (provider.Provider, error) {
			return exchange.NewKraken(deps, account, providers.Kraken)
		})
	}
	if providers.Kucoin.Enabled {
		registry.RegisterExchange("kucoin", func(deps provider.Deps, account models.ExchangeAccount) (provider.Provider, error) {
			return exchange.NewKucoin(deps, account, providers.Kucoin)
		})
	}
	if providers.Bybit.Enabled {
		registry.RegisterExchange("bybit", func(deps provider.Deps, account models.ExchangeAccount) (provider.Provider, error) {
			return exchange.NewBybit(deps, account, providers.Bybit)
		})
	}
	if providers.CryptoCom.Enabled {
		registry.RegisterExchange("cryptocom", func(deps provider.Deps, account models.ExchangeAccount) (provider.Provider, error) {
			return exchange.NewCryptoCom(deps, account, providers.CryptoCom)
		})
	}

	if providers.Bitcoin.Enabled {
		registry.RegisterChain(models.ChainBitcoin, func(deps provider.Deps, wallet models.Wallet) (provider.Provider, error) {
			return blockchain.NewBitcoin(deps, wallet, providers.Bitcoin)
		})
	}
	if providers.Ethereum.Enabled {
		registry.RegisterChain(models.ChainEthereum, func(deps provider.Deps, wallet models.Wallet) (provider.Provider, error) {
			return blockchain.NewEthereum(deps, wallet, providers.Ethereum)
		})
	}
	if providers.BSC.Enabled {
		registry.RegisterChain(models.ChainBSC, func(deps provider.Deps, wallet models.Wallet) (provider.Provider, error) {
			return blockchain.NewBSC(deps, wallet, providers.BSC)
		})
	}

	return registry
}
