// Package names resolves a ticker symbol to a human-readable currency name.
package names

import "strings"

// wellKnown covers the assets seen most often across provider responses.
// Token adapters usually learn names straight from transfer events, so this
// table only backs tickers where the provider reports nothing.
var wellKnown = map[string]string{
	"BTC":   "Bitcoin",
	"ETH":   "Ethereum",
	"BNB":   "BNB",
	"USDT":  "Tether",
	"USDC":  "USD Coin",
	"XRP":   "XRP",
	"ADA":   "Cardano",
	"SOL":   "Solana",
	"DOGE":  "Dogecoin",
	"DOT":   "Polkadot",
	"MATIC": "Polygon",
	"LTC":   "Litecoin",
	"LINK":  "Chainlink",
	"ATOM":  "Cosmos",
	"XLM":   "Stellar",
	"TRX":   "TRON",
	"AVAX":  "Avalanche",
	"EUR":   "Euro",
	"USD":   "US Dollar",
}

// Resolver maps tickers to display names, falling back to a configurable
// default when the ticker is unknown. Failing to resolve is not an error.
type Resolver struct {
	fallback string
}

func NewResolver(fallback string) *Resolver {
	return &Resolver{fallback: fallback}
}

func (r *Resolver) Name(ticker string) string {
	if name, ok := wellKnown[strings.ToUpper(ticker)]; ok {
		return name
	}
	return r.fallback
}
