package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
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

const defaultCryptoComURL = "https://api.crypto.com/exchange/v1"

// CryptoComError carries the non-zero code of a Crypto.com response.
type CryptoComError struct {
	Code    int
	Message string
}

func (e *CryptoComError) Error() string {
	return fmt.Sprintf("crypto.com error %d: %s", e.Code, e.Message)
}

// ErrCryptoComThrottled marks an HTTP 429 from the gateway.
var ErrCryptoComThrottled = errors.New("crypto.com: throttled")

// ClassifyCryptoComError maps Crypto.com failures onto retry classes.
func ClassifyCryptoComError(err error) retry.Class {
	if errors.Is(err, ErrCryptoComThrottled) {
		return retry.RateLimited
	}
	var apiErr *CryptoComError
	if errors.As(err, &apiErr) {
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

type cryptoComClient struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
}

type cryptoComRequest struct {
	ID     int64          `json:"id"`
	Method string         `json:"method"`
	APIKey string         `json:"api_key"`
	Params map[string]any `json:"params"`
	Nonce  int64          `json:"nonce"`
	Sig    string         `json:"sig"`
}

type cryptoComResponse struct {
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// paramsString flattens params into the canonical string the signature
// covers: keys sorted, each key concatenated with its value.
func paramsString(params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		switch v := params[k].(type) {
		case string:
			b.WriteString(v)
		case int:
			b.WriteString(strconv.Itoa(v))
		case int64:
			b.WriteString(strconv.FormatInt(v, 10))
		case bool:
			b.WriteString(strconv.FormatBool(v))
		default:
			raw, _ := json.Marshal(v)
			b.Write(raw)
		}
	}
	return b.String()
}

// call posts one signed JSON-RPC request. The signature is HMAC-SHA256 over
// method + id + api_key + params + nonce.
func (c *cryptoComClient) call(ctx context.Context, method string, params map[string]any, out any) error {
	if params == nil {
		params = map[string]any{}
	}
	nonce := time.Now().UnixMilli()
	id := nonce

	payload := method + strconv.FormatInt(id, 10) + c.apiKey + paramsString(params) + strconv.FormatInt(nonce, 10)
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(payload))

	body, err := json.Marshal(cryptoComRequest{
		ID:     id,
		Method: method,
		APIKey: c.apiKey,
		Params: params,
		Nonce:  nonce,
		Sig:    hex.EncodeToString(mac.Sum(nil)),
	})
	if err != nil {
		return fmt.Errorf("encoding crypto.com request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building crypto.com request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrCryptoComThrottled
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var envelope cryptoComResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("malformed crypto.com response: %w", err)
	}
	if envelope.Code != 0 {
		return &CryptoComError{Code: envelope.Code, Message: envelope.Message}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(envelope.Result, out)
}

type cryptoComBalanceResult struct {
	Data []struct {
		TotalAvailableBalance string `json:"total_available_balance"`
		PositionBalances      []struct {
			InstrumentName string `json:"instrument_name"`
			Quantity       string `json:"quantity"`
			MarketValue    string `json:"market_value"`
		} `json:"position_balances"`
	} `json:"data"`
}

type cryptoComTransactionsResult struct {
	Data []struct {
		AccountID        string `json:"account_id"`
		EventDate        string `json:"event_date"`
		JournalType      string `json:"journal_type"`
		JournalID        string `json:"journal_id"`
		TransactionQty   string `json:"transaction_qty"`
		TransactionCost  string `json:"transaction_cost"`
		Side             string `json:"side"`
		InstrumentName   string `json:"instrument_name"`
		EventTimestampMs string `json:"event_timestamp_ms"`
		TradeID          string `json:"trade_id"`
		OrderID          string `json:"order_id"`
	} `json:"data"`
}

type cryptoComProvider struct {
	client  *cryptoComClient
	deps    provider.Deps
	factory record.Factory
	log     *logger.Entry
}

// NewCryptoCom builds an exchange provider over the Crypto.com exchange API.
func NewCryptoCom(deps provider.Deps, account models.ExchangeAccount, cfg config.ExchangeProviderConfig) (provider.Provider, error) {
	baseURL := cfg.URL
	if baseURL == "" {
		baseURL = defaultCryptoComURL
	}
	return &cryptoComProvider{
		client: &cryptoComClient{
			baseURL:    strings.TrimRight(baseURL, "/"),
			apiKey:     account.APIKey,
			apiSecret:  account.APISecret,
			httpClient: &http.Client{Timeout: 10 * time.Second},
		},
		deps:    deps,
		factory: record.NewFactory(models.OriginExchange, account.Name),
		log:     logger.GetLogger().WithComponent("cryptocom-provider"),
	}, nil
}

func (p *cryptoComProvider) Origin() string {
	return p.factory.OriginName()
}

func (p *cryptoComProvider) Assets(ctx context.Context) ([]models.Asset, error) {
	policy := exchangeRetryPolicy(ClassifyCryptoComError)
	result, err := retry.Do(ctx, policy, func() (cryptoComBalanceResult, error) {
		var res cryptoComBalanceResult
		if err := p.client.call(ctx, "private/user-balance", nil, &res); err != nil {
			return cryptoComBalanceResult{}, err
		}
		return res, nil
	})
	if err != nil {
		return nil, provider.WrapError(p.Origin(), err)
	}

	p.log.WithFields(logger.Fields{"accounts": len(result.Data)}).Debug("fetched user balance")

	var assets []models.Asset
	for _, account := range result.Data {
		for _, position := range account.PositionBalances {
			balance, err := decimal.NewFromString(position.Quantity)
			if err != nil {
				return nil, provider.WrapError(p.Origin(), err)
			}
			if !balance.IsPositive() {
				continue
			}
			// The balance payload already carries each position's
			// market value.
			value := decimal.Zero
			if position.MarketValue != "" {
				value, err = decimal.NewFromString(position.MarketValue)
				if err != nil {
					return nil, provider.WrapError(p.Origin(), err)
				}
			}
			ticker := position.InstrumentName
			assets = append(assets, p.factory.Asset(
				p.deps.DisplayName(ticker), ticker, balance, value))
		}
	}
	return assets, nil
}

// journalAction translates a Crypto.com journal type into a canonical
// action. Unrecognized journal types pass through untouched.
func journalAction(journalType, side string) string {
	switch journalType {
	case "DEPOSIT":
		return models.ActionDeposit
	case "WITHDRAW", "WITHDRAWAL":
		return models.ActionWithdraw
	case "TRADING":
		switch side {
		case "BUY":
			return models.ActionBought
		case "SELL":
			return models.ActionSold
		}
		return models.ActionTransferred
	}
	if journalType == "" {
		return models.ActionUnknown
	}
	return journalType
}

func (p *cryptoComProvider) Activities(ctx context.Context) ([]models.Activity, error) {
	policy := exchangeRetryPolicy(ClassifyCryptoComError)
	result, err := retry.Do(ctx, policy, func() (cryptoComTransactionsResult, error) {
		var res cryptoComTransactionsResult
		if err := p.client.call(ctx, "private/get-transactions", nil, &res); err != nil {
			return cryptoComTransactionsResult{}, err
		}
		return res, nil
	})
	if err != nil {
		return nil, provider.WrapError(p.Origin(), err)
	}

	activities := make([]models.Activity, 0, len(result.Data))
	for _, entry := range result.Data {
		amount, err := decimal.NewFromString(entry.TransactionQty)
		if err != nil {
			return nil, provider.WrapError(p.Origin(), err)
		}
		activities = append(activities, p.factory.Activity(record.ActivityParams{
			Action:          journalAction(entry.JournalType, entry.Side),
			Amount:          amount.Abs(),
			Currency:        entry.InstrumentName,
			Date:            millisToRFC3339(entry.EventTimestampMs),
			TransactionType: entry.JournalType,
			Status:          "Settled",
			Details:         map[string]any{"raw": entry},
		}))
	}
	return activities, nil
}
