package blockchain

import (
	"cryptofolio/config"
	"cryptofolio/internal/convert"
	"cryptofolio/internal/models"
	"cryptofolio/internal/provider"
	"cryptofolio/internal/record"
	"cryptofolio/logger"
)

const defaultBscscanURL = "https://api.bscscan.com/api"

// NewBSC builds a wallet provider backed by the bscscan API. The chain is
// etherscan-compatible, only the native coin and token-event label differ.
func NewBSC(deps provider.Deps, wallet models.Wallet, cfg config.ChainProviderConfig) (provider.Provider, error) {
	baseURL := cfg.URL
	if baseURL == "" {
		baseURL = defaultBscscanURL
	}
	return &evmProvider{
		client:        newExplorerClient(baseURL, cfg.APIKey, cfg.RequestsPerSecond, "bsc-provider"),
		wallet:        wallet,
		deps:          deps,
		factory:       record.NewFactory(models.OriginWallet, wallet.Name),
		log:           logger.GetLogger().WithComponent("bsc-provider"),
		nativeTicker:  "BNB",
		tokenTxType:   "BEP20 - Token Transfer Event",
		nativeDecimal: convert.BNBDecimals,
	}, nil
}
