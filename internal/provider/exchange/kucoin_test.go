package exchange

import (
	"testing"

	kcdeposit "github.com/Kucoin/kucoin-universal-sdk/sdk/golang/pkg/generate/account/deposit"
	kcwithdrawal "github.com/Kucoin/kucoin-universal-sdk/sdk/golang/pkg/generate/account/withdrawal"

	"cryptofolio/internal/models"
	"cryptofolio/internal/record"
	"cryptofolio/logger"
)

func strPtr(s string) *string { return &s }

func int64Ptr(v int64) *int64 { return &v }

func newTestKucoinProvider() *kucoinProvider {
	return &kucoinProvider{
		factory: record.NewFactory(models.OriginExchange, "kucoin"),
		log:     logger.GetLogger().WithComponent("kucoin-provider"),
	}
}

// The SDK leaves absent history fields nil; mapping must tolerate that.
func TestKucoinDepositActivity(t *testing.T) {
	p := newTestKucoinProvider()

	act, ok := p.depositActivity(kcdeposit.GetDepositHistoryItems{
		Currency:  strPtr("BTC"),
		Amount:    strPtr("0.5"),
		Status:    strPtr("SUCCESS"),
		CreatedAt: int64Ptr(1700000000000),
	})
	if !ok {
		t.Fatalf("expected a mapped activity")
	}
	if act.Action != models.ActionDeposit || act.Currency != "BTC" {
		t.Errorf("unexpected mapping: %+v", act)
	}
	if act.Amount.String() != "0.5" {
		t.Errorf("amount = %s, want 0.5", act.Amount)
	}
	if act.Date != "2023-11-14T22:13:20Z" {
		t.Errorf("date = %s", act.Date)
	}
	if _, present := act.Details["raw"]; !present {
		t.Errorf("details should carry the raw provider record: %v", act.Details)
	}
}

func TestKucoinDepositActivityNilFields(t *testing.T) {
	p := newTestKucoinProvider()

	if _, ok := p.depositActivity(kcdeposit.GetDepositHistoryItems{}); ok {
		t.Errorf("item without an amount should be dropped")
	}

	act, ok := p.depositActivity(kcdeposit.GetDepositHistoryItems{Amount: strPtr("1")})
	if !ok {
		t.Fatalf("amount alone should be enough to map")
	}
	if act.Currency != "" || act.Status != "" || act.Date != "" {
		t.Errorf("nil fields should map to empty values: %+v", act)
	}
}

func TestKucoinWithdrawalActivity(t *testing.T) {
	p := newTestKucoinProvider()

	act, ok := p.withdrawalActivity(kcwithdrawal.GetWithdrawalHistoryItems{
		Currency:  strPtr("ETH"),
		Amount:    strPtr("2.25"),
		Status:    strPtr("PROCESSING"),
		CreatedAt: int64Ptr(1700000000000),
	})
	if !ok {
		t.Fatalf("expected a mapped activity")
	}
	if act.Action != models.ActionWithdraw || act.Currency != "ETH" || act.Status != "PROCESSING" {
		t.Errorf("unexpected mapping: %+v", act)
	}

	if _, ok := p.withdrawalActivity(kcwithdrawal.GetWithdrawalHistoryItems{Amount: strPtr("junk")}); ok {
		t.Errorf("unparsable amount should be dropped")
	}
}
