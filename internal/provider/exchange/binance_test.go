package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"cryptofolio/config"
	"cryptofolio/internal/models"
	"cryptofolio/internal/pricing"
	"cryptofolio/internal/provider"
)

const binanceSnapshotBody = `{
	"code": 200,
	"msg": "",
	"snapshotVos": [
		{
			"type": "spot",
			"updateTime": 1700000000000,
			"data": {
				"totalAssetOfBtc": "0.1",
				"balances": [
					{"asset": "BTC", "free": "0.1", "locked": "0.02"},
					{"asset": "DUST", "free": "0", "locked": "0"}
				]
			}
		},
		{
			"type": "spot",
			"updateTime": 1700090000000,
			"data": {
				"totalAssetOfBtc": "0",
				"balances": [{"asset": "GHOST", "free": "99", "locked": "0"}]
			}
		}
	]
}`

func newTestBinanceProvider(t *testing.T, handler http.HandlerFunc, priceBody string, priceCalls *atomic.Int32) *binanceProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	priceServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if priceCalls != nil {
			priceCalls.Add(1)
		}
		w.Write([]byte(priceBody))
	}))
	t.Cleanup(priceServer.Close)

	deps := provider.Deps{
		Prices:       pricing.NewClient(priceServer.URL, time.Second),
		BaseCurrency: "USD",
	}
	p, err := NewBinance(deps, models.ExchangeAccount{
		Name:      "binance",
		APIKey:    "key",
		APISecret: "secret",
		Active:    true,
	}, config.ExchangeProviderConfig{Enabled: true, URL: server.URL})
	if err != nil {
		t.Fatalf("NewBinance failed: %v", err)
	}
	return p.(*binanceProvider)
}

// The latest snapshot with a zero totalAssetOfBtc must be ignored in favor of
// the newest non-empty one, and the merged tickers priced in one batch.
func TestBinanceAssetsMergesSnapshots(t *testing.T) {
	var priceCalls atomic.Int32
	p := newTestBinanceProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sapi/v1/accountSnapshot" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("type") == "SPOT" {
			w.Write([]byte(binanceSnapshotBody))
			return
		}
		w.Write([]byte(`{"code":200,"msg":"","snapshotVos":[]}`))
	}, `{"BTC":{"USD":50000}}`, &priceCalls)

	assets, err := p.Assets(context.Background())
	if err != nil {
		t.Fatalf("Assets failed: %v", err)
	}
	if len(assets) != 1 {
		t.Fatalf("expected 1 asset, got %d: %+v", len(assets), assets)
	}
	if assets[0].Symbol != "BTC" {
		t.Errorf("empty snapshot should be skipped, got %s", assets[0].Symbol)
	}
	if got := assets[0].Balance.String(); got != "0.12" {
		t.Errorf("free+locked = %s, want 0.12", got)
	}
	if got := assets[0].Value.String(); got != "6000" {
		t.Errorf("value = %s, want 6000", got)
	}
	if n := priceCalls.Load(); n != 1 {
		t.Errorf("expected one price batch across account types, got %d", n)
	}
}

func TestBinanceActivitiesFiatHistory(t *testing.T) {
	p := newTestBinanceProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sapi/v1/fiat/orders" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("transactionType") == "0" {
			w.Write([]byte(`{"code":"000000","message":"success","data":[{"orderNo":"o1","fiatCurrency":"USD","indicatedAmount":"100","amount":"99","totalFee":"1","method":"card","status":"Successful","createTime":1700000000000}],"total":1,"success":true}`))
			return
		}
		w.Write([]byte(`{"code":"000000","message":"success","data":[],"total":0,"success":true}`))
	}, `{}`, nil)

	activities, err := p.Activities(context.Background())
	if err != nil {
		t.Fatalf("Activities failed: %v", err)
	}
	if len(activities) != 1 {
		t.Fatalf("expected 1 activity, got %d", len(activities))
	}
	act := activities[0]
	if act.Action != models.ActionDeposit {
		t.Errorf("action = %s, want Deposit", act.Action)
	}
	if got := act.Amount.String(); got != "100" {
		t.Errorf("amount = %s, want the indicated amount 100", got)
	}
	if !strings.HasPrefix(act.Date, "2023-11-14") {
		t.Errorf("unexpected date: %s", act.Date)
	}
	if _, ok := act.Details["raw"]; !ok {
		t.Errorf("details should carry the raw provider record: %v", act.Details)
	}
}
