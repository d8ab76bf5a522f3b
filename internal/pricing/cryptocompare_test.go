package pricing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestRatesBatchesOneRequest(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if got := r.URL.Path; got != "/data/pricemulti" {
			t.Errorf("unexpected path: %s", got)
		}
		if got := r.URL.Query().Get("fsyms"); got != "BTC,ETH,USDT" {
			t.Errorf("unexpected fsyms: %s", got)
		}
		if got := r.URL.Query().Get("tsyms"); got != "USD" {
			t.Errorf("unexpected tsyms: %s", got)
		}
		w.Write([]byte(`{"BTC":{"USD":64000.5},"ETH":{"USD":2600},"USDT":{"USD":1}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	rates, err := client.Rates(context.Background(), []string{"BTC", "ETH", "USDT"}, "USD")
	if err != nil {
		t.Fatalf("Rates failed: %v", err)
	}
	if requests != 1 {
		t.Errorf("expected a single batched request, got %d", requests)
	}
	if !rates.Rate("BTC", "USD").Equal(decimal.RequireFromString("64000.5")) {
		t.Errorf("unexpected BTC rate: %s", rates.Rate("BTC", "USD"))
	}
	if !rates.Rate("USDT", "USD").Equal(decimal.NewFromInt(1)) {
		t.Errorf("unexpected USDT rate: %s", rates.Rate("USDT", "USD"))
	}
}

func TestRatesUnknownTickerIsZero(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"BTC":{"USD":64000}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	rates, err := client.Rates(context.Background(), []string{"BTC", "NOPE"}, "USD")
	if err != nil {
		t.Fatalf("Rates failed: %v", err)
	}
	if !rates.Rate("NOPE", "USD").IsZero() {
		t.Errorf("missing ticker should price at zero, got %s", rates.Rate("NOPE", "USD"))
	}
}

func TestRatesEmptyTickerList(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", time.Second)
	rates, err := client.Rates(context.Background(), nil, "USD")
	if err != nil {
		t.Fatalf("Rates failed: %v", err)
	}
	if len(rates) != 0 {
		t.Errorf("expected empty map, got %v", rates)
	}
}

func TestRatesAPIErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Response":"Error","Message":"fsyms param is invalid"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	_, err := client.Rates(context.Background(), []string{"???"}, "USD")
	var lookupErr *LookupError
	if !errors.As(err, &lookupErr) {
		t.Fatalf("expected LookupError, got %v", err)
	}
	if lookupErr.Message != "fsyms param is invalid" {
		t.Errorf("unexpected message: %s", lookupErr.Message)
	}
}

func TestRatesHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	_, err := client.Rates(context.Background(), []string{"BTC"}, "USD")
	var lookupErr *LookupError
	if !errors.As(err, &lookupErr) {
		t.Fatalf("expected LookupError, got %v", err)
	}
	if lookupErr.StatusCode != http.StatusBadGateway {
		t.Errorf("unexpected status: %d", lookupErr.StatusCode)
	}
}
