package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cryptofolio/config"
	"cryptofolio/internal/models"
	"cryptofolio/internal/provider"
	"cryptofolio/internal/record"
	"cryptofolio/internal/retry"
	"cryptofolio/logger"
)

const defaultKrakenURL = "https://api.kraken.com"

// KrakenError carries the error strings of a Kraken API response. Kraken
// prefixes each with a severity class, e.g. "EAPI:Rate limit exceeded".
type KrakenError struct {
	Messages []string
}

func (e *KrakenError) Error() string {
	return "kraken: " + strings.Join(e.Messages, "; ")
}

// ClassifyKrakenError maps Kraken failures onto retry classes.
func ClassifyKrakenError(err error) retry.Class {
	var krakenErr *KrakenError
	if errors.As(err, &krakenErr) {
		for _, msg := range krakenErr.Messages {
			switch {
			case strings.Contains(msg, "Rate limit"):
				return retry.RateLimited
			case strings.HasPrefix(msg, "EGeneral:Temporary"),
				strings.HasPrefix(msg, "EService:"):
				return retry.Transient
			}
		}
		return retry.Fatal
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return retry.Transient
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return retry.Transient
	}
	return retry.Fatal
}

type krakenClient struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
}

type krakenResponse struct {
	Error  []string        `json:"error"`
	Result json.RawMessage `json:"result"`
}

// private calls an authenticated endpoint. The signature is
// HMAC-SHA512(path + SHA256(nonce + postdata)) keyed with the decoded secret.
func (c *krakenClient) private(ctx context.Context, path string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	nonce := strconv.FormatInt(time.Now().UnixMilli(), 10)
	params.Set("nonce", nonce)
	postdata := params.Encode()

	secret, err := base64.StdEncoding.DecodeString(c.apiSecret)
	if err != nil {
		return fmt.Errorf("decoding kraken secret: %w", err)
	}
	digest := sha256.Sum256([]byte(nonce + postdata))
	mac := hmac.New(sha512.New, secret)
	mac.Write([]byte(path))
	mac.Write(digest[:])

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(postdata))
	if err != nil {
		return fmt.Errorf("building kraken request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("API-Key", c.apiKey)
	req.Header.Set("API-Sign", base64.StdEncoding.EncodeToString(mac.Sum(nil)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("kraken returned HTTP %d", resp.StatusCode)
	}

	var envelope krakenResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("malformed kraken response: %w", err)
	}
	if len(envelope.Error) > 0 {
		return &KrakenError{Messages: envelope.Error}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(envelope.Result, out)
}

// normalizeKrakenAsset strips Kraken's X/Z class prefixes and renames XBT
// to the conventional BTC ticker.
func normalizeKrakenAsset(asset string) string {
	if len(asset) == 4 && (asset[0] == 'X' || asset[0] == 'Z') {
		asset = asset[1:]
	}
	if asset == "XBT" {
		return "BTC"
	}
	return asset
}

type krakenTrade struct {
	Pair      string  `json:"pair"`
	Time      float64 `json:"time"`
	Type      string  `json:"type"`
	OrderType string  `json:"ordertype"`
	Price     string  `json:"price"`
	Cost      string  `json:"cost"`
	Fee       string  `json:"fee"`
	Volume    string  `json:"vol"`
}

type krakenTradesResult struct {
	Trades map[string]krakenTrade `json:"trades"`
	Count  int                    `json:"count"`
}

type krakenTransfer struct {
	Method string  `json:"method"`
	Asset  string  `json:"asset"`
	RefID  string  `json:"refid"`
	TxID   string  `json:"txid"`
	Amount string  `json:"amount"`
	Fee    string  `json:"fee"`
	Time   float64 `json:"time"`
	Status string  `json:"status"`
}

type krakenProvider struct {
	client  *krakenClient
	deps    provider.Deps
	factory record.Factory
	log     *logger.Entry
}

// NewKraken builds an exchange provider over the Kraken private REST API.
func NewKraken(deps provider.Deps, account models.ExchangeAccount, cfg config.ExchangeProviderConfig) (provider.Provider, error) {
	baseURL := cfg.URL
	if baseURL == "" {
		baseURL = defaultKrakenURL
	}
	return &krakenProvider{
		client: &krakenClient{
			baseURL:    baseURL,
			apiKey:     account.APIKey,
			apiSecret:  account.APISecret,
			httpClient: &http.Client{Timeout: 10 * time.Second},
		},
		deps:    deps,
		factory: record.NewFactory(models.OriginExchange, account.Name),
		log:     logger.GetLogger().WithComponent("kraken-provider"),
	}, nil
}

func (p *krakenProvider) Origin() string {
	return p.factory.OriginName()
}

func (p *krakenProvider) Assets(ctx context.Context) ([]models.Asset, error) {
	policy := exchangeRetryPolicy(ClassifyKrakenError)
	balances, err := retry.Do(ctx, policy, func() (map[string]string, error) {
		var result map[string]string
		if err := p.client.private(ctx, "/0/private/Balance", nil, &result); err != nil {
			return nil, err
		}
		return result, nil
	})
	if err != nil {
		return nil, provider.WrapError(p.Origin(), err)
	}

	held := make(map[string]decimal.Decimal)
	for asset, raw := range balances {
		balance, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, provider.WrapError(p.Origin(), err)
		}
		if !balance.IsPositive() {
			continue
		}
		ticker := normalizeKrakenAsset(asset)
		held[ticker] = held[ticker].Add(balance)
	}
	if len(held) == 0 {
		return nil, nil
	}

	tickers := make([]string, 0, len(held))
	for ticker := range held {
		tickers = append(tickers, ticker)
	}
	rates, err := p.deps.Prices.Rates(ctx, tickers, p.deps.BaseCurrency)
	if err != nil {
		return nil, provider.WrapError(p.Origin(), err)
	}

	assets := make([]models.Asset, 0, len(held))
	for _, ticker := range tickers {
		balance := held[ticker]
		value := balance.Mul(rates.Rate(ticker, p.deps.BaseCurrency))
		assets = append(assets, p.factory.Asset(p.deps.DisplayName(ticker), ticker, balance, value))
	}
	return assets, nil
}

func (p *krakenProvider) trades(ctx context.Context) ([]models.Activity, error) {
	policy := exchangeRetryPolicy(ClassifyKrakenError)
	result, err := retry.Do(ctx, policy, func() (krakenTradesResult, error) {
		var res krakenTradesResult
		if err := p.client.private(ctx, "/0/private/TradesHistory", nil, &res); err != nil {
			return krakenTradesResult{}, err
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}

	activities := make([]models.Activity, 0, len(result.Trades))
	for txid, trade := range result.Trades {
		amount, err := decimal.NewFromString(trade.Volume)
		if err != nil {
			return nil, err
		}
		action := models.ActionBought
		if trade.Type == "sell" {
			action = models.ActionSold
		}
		activities = append(activities, p.factory.Activity(record.ActivityParams{
			Action:          action,
			Amount:          amount,
			Currency:        trade.Pair,
			Date:            time.Unix(int64(trade.Time), 0).UTC().Format(time.RFC3339),
			TransactionType: "Trade",
			Status:          "Closed",
			Details:         map[string]any{"raw": trade, "txid": txid},
		}))
	}
	return activities, nil
}

func (p *krakenProvider) transfers(ctx context.Context, path, action, label string) ([]models.Activity, error) {
	policy := exchangeRetryPolicy(ClassifyKrakenError)
	entries, err := retry.Do(ctx, policy, func() ([]krakenTransfer, error) {
		var res []krakenTransfer
		if err := p.client.private(ctx, path, nil, &res); err != nil {
			return nil, err
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}

	activities := make([]models.Activity, 0, len(entries))
	for _, entry := range entries {
		amount, err := decimal.NewFromString(entry.Amount)
		if err != nil {
			return nil, err
		}
		activities = append(activities, p.factory.Activity(record.ActivityParams{
			Action:          action,
			Amount:          amount,
			Currency:        normalizeKrakenAsset(entry.Asset),
			Date:            time.Unix(int64(entry.Time), 0).UTC().Format(time.RFC3339),
			TransactionType: label,
			Status:          entry.Status,
			Details:         map[string]any{"raw": entry},
		}))
	}
	return activities, nil
}

// Activities merges trades, deposits and withdrawals. A failing sub-step is
// logged and skipped so one endpoint outage does not blank the whole origin.
func (p *krakenProvider) Activities(ctx context.Context) ([]models.Activity, error) {
	var activities []models.Activity
	var failures int

	steps := []struct {
		name string
		call func(context.Context) ([]models.Activity, error)
	}{
		{"trades", p.trades},
		{"deposits", func(ctx context.Context) ([]models.Activity, error) {
			return p.transfers(ctx, "/0/private/DepositStatus", models.ActionDeposit, "Deposit")
		}},
		{"withdrawals", func(ctx context.Context) ([]models.Activity, error) {
			return p.transfers(ctx, "/0/private/WithdrawStatus", models.ActionWithdraw, "Withdraw")
		}},
	}

	var lastErr error
	for _, step := range steps {
		batch, err := step.call(ctx)
		if err != nil {
			failures++
			lastErr = err
			p.log.WithError(err).WithFields(logger.Fields{"step": step.name}).Warn("activity step failed")
			continue
		}
		activities = append(activities, batch...)
	}

	if failures == len(steps) {
		return nil, provider.WrapError(p.Origin(), lastErr)
	}
	return activities, nil
}
