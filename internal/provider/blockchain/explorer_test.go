package blockchain

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"cryptofolio/internal/retry"
)

func newTestExplorer(t *testing.T, handler http.HandlerFunc) *explorerClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return newExplorerClient(server.URL, "test-key", 100, "test-explorer")
}

func TestExplorerBalance(t *testing.T) {
	client := newTestExplorer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("action"); got != "balance" {
			t.Errorf("unexpected action: %s", got)
		}
		if got := r.URL.Query().Get("apikey"); got != "test-key" {
			t.Errorf("api key not forwarded: %s", got)
		}
		w.Write([]byte(`{"status":"1","message":"OK","result":"1500000000000000000"}`))
	})

	balance, err := client.Balance(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if balance != "1500000000000000000" {
		t.Errorf("unexpected balance: %s", balance)
	}
}

func TestExplorerNoTransactionsIsEmpty(t *testing.T) {
	client := newTestExplorer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"0","message":"No transactions found","result":[]}`))
	})

	_, err := client.NormalTransactions(context.Background(), "0xabc")
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
	if ClassifyExplorerError(err) != retry.Empty {
		t.Errorf("ErrNoData should classify as Empty")
	}
}

func TestExplorerRateLimit(t *testing.T) {
	client := newTestExplorer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"0","message":"NOTOK","result":"Max rate limit reached"}`))
	})

	_, err := client.Balance(context.Background(), "0xabc")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if ClassifyExplorerError(err) != retry.RateLimited {
		t.Errorf("ErrRateLimited should classify as RateLimited")
	}
}

func TestExplorerGenericErrorIsFatal(t *testing.T) {
	client := newTestExplorer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"0","message":"NOTOK","result":"Invalid API Key"}`))
	})

	_, err := client.Balance(context.Background(), "0xabc")
	if err == nil {
		t.Fatalf("expected error")
	}
	if ClassifyExplorerError(err) != retry.Fatal {
		t.Errorf("unknown API error should classify as Fatal")
	}
}

func TestExplorerTokenTransfers(t *testing.T) {
	client := newTestExplorer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("action"); got != "tokentx" {
			t.Errorf("unexpected action: %s", got)
		}
		w.Write([]byte(`{"status":"1","message":"OK","result":[
			{"hash":"0x1","from":"0xabc","to":"0xdef","value":"1000000","tokenSymbol":"USDC","tokenDecimal":"6","timeStamp":"1700000000","confirmations":"10","contractAddress":"0xc0ffee"}
		]}`))
	})

	transfers, err := client.TokenTransfers(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("TokenTransfers failed: %v", err)
	}
	if len(transfers) != 1 {
		t.Fatalf("expected 1 transfer, got %d", len(transfers))
	}
	tr := transfers[0]
	if tr.TokenSymbol != "USDC" || tr.TokenDecimal != "6" || tr.ContractAddress != "0xc0ffee" {
		t.Errorf("unexpected transfer: %+v", tr)
	}
}
