package models

// ChainType tags a wallet with the blockchain it lives on.
type ChainType string

const (
	ChainBitcoin  ChainType = "Bitcoin"
	ChainEthereum ChainType = "Ethereum"
	ChainBSC      ChainType = "BSC"
)

// Wallet is a configured blockchain origin. Consumed read-only by the
// aggregation pipeline; persistence belongs to the surrounding application.
type Wallet struct {
	Name    string    `json:"name" yaml:"name"`
	Address string    `json:"address" yaml:"address"`
	Type    ChainType `json:"type" yaml:"type"`
	Active  bool      `json:"isActive" yaml:"active"`
}

// ExchangeAccount is a configured exchange credential.
type ExchangeAccount struct {
	Name       string `json:"name" yaml:"name"`
	APIKey     string `json:"-" yaml:"api_key"`
	APISecret  string `json:"-" yaml:"api_secret"`
	Passphrase string `json:"-" yaml:"passphrase"`
	Active     bool   `json:"isActive" yaml:"active"`
}

// User holds the set of origins one aggregation request runs against.
type User struct {
	Exchanges []ExchangeAccount `yaml:"exchanges"`
	Wallets   []Wallet          `yaml:"wallets"`
}
