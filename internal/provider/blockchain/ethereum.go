package blockchain

import (
	"cryptofolio/config"
	"cryptofolio/internal/convert"
	"cryptofolio/internal/models"
	"cryptofolio/internal/provider"
	"cryptofolio/internal/record"
	"cryptofolio/logger"
)

const defaultEtherscanURL = "https://api.etherscan.io/api"

// NewEthereum builds a wallet provider backed by the etherscan API.
func NewEthereum(deps provider.Deps, wallet models.Wallet, cfg config.ChainProviderConfig) (provider.Provider, error) {
	baseURL := cfg.URL
	if baseURL == "" {
		baseURL = defaultEtherscanURL
	}
	return &evmProvider{
		client:        newExplorerClient(baseURL, cfg.APIKey, cfg.RequestsPerSecond, "ethereum-provider"),
		wallet:        wallet,
		deps:          deps,
		factory:       record.NewFactory(models.OriginWallet, wallet.Name),
		log:           logger.GetLogger().WithComponent("ethereum-provider"),
		nativeTicker:  "ETH",
		tokenTxType:   "ERC20 - Token Transfer Event",
		nativeDecimal: convert.EtherDecimals,
	}, nil
}
