package convert

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestFromBaseUnits(t *testing.T) {
	cases := []struct {
		value  string
		places int32
		want   string
	}{
		{"100000000", 8, "1"},
		{"123456789", 8, "1.23456789"},
		{"1", 8, "0.00000001"},
		{"1000000000000000000", 18, "1"},
		{"1500000000000000000", 18, "1.5"},
		{"1", 18, "0.000000000000000001"},
		{"0", 18, "0"},
		{"42", 0, "42"},
	}
	for _, tc := range cases {
		got, err := FromBaseUnits(tc.value, tc.places)
		if err != nil {
			t.Fatalf("FromBaseUnits(%q, %d) failed: %v", tc.value, tc.places, err)
		}
		if got.String() != tc.want {
			t.Errorf("FromBaseUnits(%q, %d) = %s, want %s", tc.value, tc.places, got, tc.want)
		}
	}
}

func TestFromBaseUnitsInvalid(t *testing.T) {
	for _, value := range []string{"", "  ", "abc", "1.2.3"} {
		if _, err := FromBaseUnits(value, 8); !errors.Is(err, ErrInvalidNumeric) {
			t.Errorf("FromBaseUnits(%q) should return ErrInvalidNumeric, got %v", value, err)
		}
	}
}

// Converting to base units and back must be exact at every supported scale.
func TestRoundTrip(t *testing.T) {
	value := decimal.RequireFromString("12345.678901234567891234")
	for places := int32(0); places <= 18; places++ {
		back, err := FromBaseUnits(ToBaseUnits(value, places).String(), places)
		if err != nil {
			t.Fatalf("round trip at %d places failed: %v", places, err)
		}
		if !back.Equal(value) {
			t.Errorf("round trip at %d places: got %s, want %s", places, back, value)
		}
	}
}

func TestChainHelpers(t *testing.T) {
	btc, err := SatoshiToBTC("250000000")
	if err != nil {
		t.Fatalf("SatoshiToBTC failed: %v", err)
	}
	if btc.String() != "2.5" {
		t.Errorf("SatoshiToBTC = %s, want 2.5", btc)
	}
	if BTCToSatoshi(btc).String() != "250000000" {
		t.Errorf("BTCToSatoshi = %s, want 250000000", BTCToSatoshi(btc))
	}

	eth, err := WeiToEther("1000000000000000000")
	if err != nil {
		t.Fatalf("WeiToEther failed: %v", err)
	}
	if eth.String() != "1" {
		t.Errorf("WeiToEther = %s, want 1", eth)
	}
	if EtherToWei(eth).String() != "1000000000000000000" {
		t.Errorf("EtherToWei = %s", EtherToWei(eth))
	}

	bnb, err := WeiToBNB("500000000000000000")
	if err != nil {
		t.Fatalf("WeiToBNB failed: %v", err)
	}
	if bnb.String() != "0.5" {
		t.Errorf("WeiToBNB = %s, want 0.5", bnb)
	}
}
