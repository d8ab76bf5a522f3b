package models

import (
	"github.com/shopspring/decimal"
)

// OriginType identifies the kind of data source a record came from.
type OriginType string

const (
	OriginExchange OriginType = "Exchange"
	OriginWallet   OriginType = "Wallet"
)

// Well-known activity actions. Action stays a plain string because providers
// are allowed to report their own labels (e.g. Kraken journal types).
const (
	ActionBought      = "Bought"
	ActionSold        = "Sold"
	ActionDeposit     = "Deposit"
	ActionWithdraw    = "Withdraw"
	ActionTransferred = "Transferred"
	ActionIn          = "In"
	ActionOut         = "Out"
	ActionUnknown     = "Unknown"
)

// Asset is one held balance of a currency or token on a single origin.
// Balance and Value are computed from the same provider snapshot; a zero
// balance is filtered before an Asset is ever built.
type Asset struct {
	ID         string          `json:"id"`
	OriginType OriginType      `json:"originType"`
	OriginName string          `json:"originName"`
	Name       string          `json:"name"`
	Symbol     string          `json:"symbol"`
	Balance    decimal.Decimal `json:"balance"`
	Value      decimal.Decimal `json:"value"`
}

// Activity is one historical transaction or event on a single origin.
// Date is RFC 3339 when the provider reports a usable timestamp, empty
// otherwise. Details carries the raw provider payload for audit purposes.
type Activity struct {
	ID              string          `json:"id"`
	OriginType      OriginType      `json:"originType"`
	OriginName      string          `json:"originName"`
	Action          string          `json:"action"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Date            string          `json:"date,omitempty"`
	TransactionType string          `json:"transactionType,omitempty"`
	Status          string          `json:"status,omitempty"`
	Details         map[string]any  `json:"details,omitempty"`
}
