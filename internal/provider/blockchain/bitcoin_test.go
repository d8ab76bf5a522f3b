package blockchain

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"cryptofolio/config"
	"cryptofolio/internal/models"
	"cryptofolio/internal/provider"
	"cryptofolio/internal/retry"
)

func newTestBtcClient(t *testing.T, handler http.HandlerFunc) *btcClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return newBtcClient(server.URL)
}

func TestBtcAddress(t *testing.T) {
	client := newTestBtcClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/address/bc1qtest" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{"err_no":0,"data":{"address":"bc1qtest","balance":250000000,"tx_count":3}}`))
	})

	info, err := client.address(context.Background(), "bc1qtest")
	if err != nil {
		t.Fatalf("address failed: %v", err)
	}
	if info.Balance != 250000000 || info.TxCount != 3 {
		t.Errorf("unexpected address info: %+v", info)
	}
}

func TestBtcRateLimitBodyClassifiesAsRateLimited(t *testing.T) {
	client := newTestBtcClient(t, func(w http.ResponseWriter, r *http.Request) {
		// btc.com answers throttled requests with an HTML page.
		w.Write([]byte(`<html><body>Too many requests</body></html>`))
	})

	_, err := client.address(context.Background(), "bc1qtest")
	if err == nil {
		t.Fatalf("expected decode error")
	}
	if ClassifyBitcoinError(err) != retry.RateLimited {
		t.Errorf("non-JSON body should classify as RateLimited, got %v", err)
	}
}

func TestBtcAPIErrorIsFatal(t *testing.T) {
	client := newTestBtcClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"err_no":1,"message":"invalid address"}`))
	})

	_, err := client.address(context.Background(), "bogus")
	if err == nil {
		t.Fatalf("expected error")
	}
	if ClassifyBitcoinError(err) != retry.Fatal {
		t.Errorf("API error should classify as Fatal")
	}
}

func TestBitcoinDirection(t *testing.T) {
	p := &bitcoinProvider{wallet: models.Wallet{Address: "bc1qwallet"}}

	outgoing := btcTransaction{
		Inputs:  []btcTxInput{{PrevAddresses: []string{"bc1qwallet"}}},
		Outputs: []btcTxOutput{{Addresses: []string{"bc1qother"}}},
	}
	if got := p.direction(outgoing); got != models.ActionOut {
		t.Errorf("spending tx = %s, want Out", got)
	}

	incoming := btcTransaction{
		Inputs:  []btcTxInput{{PrevAddresses: []string{"bc1qother"}}},
		Outputs: []btcTxOutput{{Addresses: []string{"bc1qwallet", "bc1qchange"}}},
	}
	if got := p.direction(incoming); got != models.ActionIn {
		t.Errorf("receiving tx = %s, want In", got)
	}

	unrelated := btcTransaction{
		Inputs:  []btcTxInput{{PrevAddresses: []string{"bc1qother"}}},
		Outputs: []btcTxOutput{{Addresses: []string{"bc1qother"}}},
	}
	if got := p.direction(unrelated); got != models.ActionUnknown {
		t.Errorf("unrelated tx = %s, want Unknown", got)
	}
}

// bech32 addresses are case-insensitive; explorers may report them uppercase.
func TestBitcoinDirectionIgnoresAddressCase(t *testing.T) {
	p := &bitcoinProvider{wallet: models.Wallet{Address: "bc1qwallet"}}

	outgoing := btcTransaction{
		Inputs: []btcTxInput{{PrevAddresses: []string{"BC1QWALLET"}}},
	}
	if got := p.direction(outgoing); got != models.ActionOut {
		t.Errorf("uppercase input address = %s, want Out", got)
	}

	incoming := btcTransaction{
		Outputs: []btcTxOutput{{Addresses: []string{"BC1QWALLET"}}},
	}
	if got := p.direction(incoming); got != models.ActionIn {
		t.Errorf("uppercase output address = %s, want In", got)
	}
}

func TestBitcoinActivities(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/address/bc1qwallet/tx" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{"err_no":0,"data":{"list":[
			{"hash":"btc-tx-1","block_time":1700000000,"confirmations":6,
			 "balance_diff":-50000000,
			 "inputs":[{"prev_addresses":["bc1qwallet"],"prev_value":60000000}],
			 "outputs":[{"addresses":["bc1qother"],"value":50000000},{"addresses":["bc1qchange"],"value":9000000}]}
		]}}`))
	}))
	t.Cleanup(server.Close)

	p, err := NewBitcoin(provider.Deps{BaseCurrency: "USD"},
		models.Wallet{Name: "cold", Address: "bc1qwallet", Type: models.ChainBitcoin, Active: true},
		config.ChainProviderConfig{Enabled: true, URL: server.URL})
	if err != nil {
		t.Fatalf("NewBitcoin failed: %v", err)
	}

	activities, err := p.Activities(context.Background())
	if err != nil {
		t.Fatalf("Activities failed: %v", err)
	}
	if len(activities) != 1 {
		t.Fatalf("expected one activity, got %d", len(activities))
	}

	act := activities[0]
	if act.Action != models.ActionOut || act.Currency != "BTC" {
		t.Errorf("unexpected mapping: %+v", act)
	}
	if act.Amount.String() != "0.5" {
		t.Errorf("amount = %s, want 0.5", act.Amount)
	}
	if act.TransactionType != "Transaction" || act.Status != "Confirmed" {
		t.Errorf("unexpected labels: %+v", act)
	}
	if act.Date != "2023-11-14T22:13:20Z" {
		t.Errorf("date = %s", act.Date)
	}

	from, _ := act.Details["from"].([]string)
	to, _ := act.Details["to"].([]string)
	if len(from) != 1 || from[0] != "bc1qwallet" {
		t.Errorf("from = %v", from)
	}
	if len(to) != 2 || to[0] != "bc1qother" || to[1] != "bc1qchange" {
		t.Errorf("to = %v", to)
	}
	raw, ok := act.Details["raw"].(map[string]any)
	if !ok {
		t.Fatalf("details should nest the raw payload: %v", act.Details)
	}
	if raw["hash"] != "btc-tx-1" {
		t.Errorf("raw payload incomplete: %v", raw)
	}
}

func TestBtcTransactionsEmptyData(t *testing.T) {
	client := newTestBtcClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"err_no":0,"data":null}`))
	})

	txs, err := client.transactions(context.Background(), "bc1qtest")
	if err != nil {
		t.Fatalf("transactions failed: %v", err)
	}
	if len(txs) != 0 {
		t.Errorf("expected no transactions, got %d", len(txs))
	}
}
