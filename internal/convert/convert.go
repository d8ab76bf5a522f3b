// Package convert performs exact base-unit conversions for on-chain amounts.
// Everything runs on decimal arithmetic; float64 never touches a value path.
package convert

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidNumeric marks input that cannot be parsed as a number.
var ErrInvalidNumeric = errors.New("invalid numeric value")

// Per-chain decimal places. Token contracts carry their own and go through
// FromBaseUnits directly.
const (
	BitcoinDecimals int32 = 8
	EtherDecimals   int32 = 18
	BNBDecimals     int32 = 18
)

// FromBaseUnits converts a smallest-unit amount (satoshi, wei, token base
// units) into whole-coin units: value / 10^places.
func FromBaseUnits(value string, places int32) (decimal.Decimal, error) {
	d, err := parse(value)
	if err != nil {
		return decimal.Zero, err
	}
	return d.Shift(-places), nil
}

// ToBaseUnits is the exact inverse of FromBaseUnits: value * 10^places.
func ToBaseUnits(value decimal.Decimal, places int32) decimal.Decimal {
	return value.Shift(places)
}

func SatoshiToBTC(satoshi string) (decimal.Decimal, error) {
	return FromBaseUnits(satoshi, BitcoinDecimals)
}

func BTCToSatoshi(btc decimal.Decimal) decimal.Decimal {
	return ToBaseUnits(btc, BitcoinDecimals)
}

func WeiToEther(wei string) (decimal.Decimal, error) {
	return FromBaseUnits(wei, EtherDecimals)
}

func EtherToWei(eth decimal.Decimal) decimal.Decimal {
	return ToBaseUnits(eth, EtherDecimals)
}

func WeiToBNB(wei string) (decimal.Decimal, error) {
	return FromBaseUnits(wei, BNBDecimals)
}

func parse(value string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return decimal.Zero, fmt.Errorf("%w: empty input", ErrInvalidNumeric)
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidNumeric, value)
	}
	return d, nil
}
