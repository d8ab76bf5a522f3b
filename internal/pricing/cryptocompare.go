// Package pricing resolves current spot rates for batches of tickers against
// one fiat currency through the CryptoCompare multi-symbol endpoint. One
// network call covers the whole batch; callers must never price one asset at
// a time.
package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cryptofolio/logger"
)

const defaultBaseURL = "https://min-api.cryptocompare.com"

// RateMap maps ticker -> fiat currency -> spot rate.
type RateMap map[string]map[string]decimal.Decimal

// Rate returns the spot rate for ticker in fiat, or zero when the pricing
// response did not carry it. Missing tickers are unresolvable, not errors.
func (m RateMap) Rate(ticker, fiat string) decimal.Decimal {
	if quotes, ok := m[ticker]; ok {
		if rate, ok := quotes[fiat]; ok {
			return rate
		}
	}
	return decimal.Zero
}

// LookupError reports a failed pricing batch. Retrying is the caller's
// decision, not this client's.
type LookupError struct {
	StatusCode int
	Message    string
}

func (e *LookupError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("price lookup failed: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("price lookup failed: %s", e.Message)
}

// Client is a CryptoCompare REST client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *logger.Entry
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		log:        logger.GetLogger().WithComponent("pricing"),
	}
}

// Rates fetches spot rates for all tickers against fiat in a single call.
func (c *Client) Rates(ctx context.Context, tickers []string, fiat string) (RateMap, error) {
	if len(tickers) == 0 {
		return RateMap{}, nil
	}

	query := url.Values{}
	query.Set("fsyms", strings.Join(tickers, ","))
	query.Set("tsyms", fiat)

	endpoint := c.baseURL + "/data/pricemulti?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building price request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &LookupError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &LookupError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &LookupError{Message: err.Error()}
	}

	// CryptoCompare reports failures inside a 200 body.
	var apiErr struct {
		Response string `json:"Response"`
		Message  string `json:"Message"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Response == "Error" {
		return nil, &LookupError{Message: apiErr.Message}
	}

	var rates RateMap
	if err := json.Unmarshal(body, &rates); err != nil {
		return nil, &LookupError{Message: fmt.Sprintf("malformed payload: %v", err)}
	}

	c.log.WithFields(logger.Fields{
		"tickers":     len(tickers),
		"fiat":        fiat,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("fetched spot rates")
	logger.IncrementPriceLookup(len(tickers))

	return rates, nil
}
