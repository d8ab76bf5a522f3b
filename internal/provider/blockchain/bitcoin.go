package blockchain

import (
	"context"
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

	"cryptofolio/config"
	"cryptofolio/internal/convert"
	"cryptofolio/internal/models"
	"cryptofolio/internal/provider"
	"cryptofolio/internal/record"
	"cryptofolio/internal/retry"
	"cryptofolio/logger"
)

const defaultBtcURL = "https://chain.api.btc.com"

// ClassifyBitcoinError maps btc.com failures onto retry classes. The API
// answers rate-limited requests with an HTML page instead of JSON, so a
// syntax error on decode means throttling, not a broken response.
func ClassifyBitcoinError(err error) retry.Class {
	var synErr *json.SyntaxError
	if errors.As(err, &synErr) {
		return retry.RateLimited
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

type btcClient struct {
	baseURL    string
	httpClient *http.Client
}

func newBtcClient(baseURL string) *btcClient {
	if baseURL == "" {
		baseURL = defaultBtcURL
	}
	return &btcClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *btcClient) retryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: 5,
		Delay:       time.Second,
		Classify:    ClassifyBitcoinError,
	}
}

type btcResponse struct {
	ErrNo   int             `json:"err_no"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *btcClient) call(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building btc.com request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var envelope btcResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return err
	}
	if envelope.ErrNo != 0 {
		return fmt.Errorf("btc.com error %d: %s", envelope.ErrNo, envelope.Message)
	}
	if out == nil || len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil
	}
	return json.Unmarshal(envelope.Data, out)
}

type btcAddress struct {
	Address  string `json:"address"`
	Balance  int64  `json:"balance"`
	Received int64  `json:"received"`
	Sent     int64  `json:"sent"`
	TxCount  int64  `json:"tx_count"`
}

type btcTxInput struct {
	PrevAddresses []string `json:"prev_addresses"`
	PrevValue     int64    `json:"prev_value"`
}

type btcTxOutput struct {
	Addresses []string `json:"addresses"`
	Value     int64    `json:"value"`
}

type btcTransaction struct {
	BlockHeight   int64         `json:"block_height"`
	BlockTime     int64         `json:"block_time"`
	Confirmations int64         `json:"confirmations"`
	Hash          string        `json:"hash"`
	Fee           int64         `json:"fee"`
	BalanceDiff   int64         `json:"balance_diff"`
	IsCoinbase    bool          `json:"is_coinbase"`
	Inputs        []btcTxInput  `json:"inputs"`
	Outputs       []btcTxOutput `json:"outputs"`
}

type btcTxPage struct {
	List       []btcTransaction `json:"list"`
	Page       int              `json:"page"`
	PageSize   int              `json:"pagesize"`
	TotalCount int              `json:"total_count"`
}

func (c *btcClient) address(ctx context.Context, addr string) (*btcAddress, error) {
	var info btcAddress
	if err := c.call(ctx, "/v3/address/"+addr, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *btcClient) transactions(ctx context.Context, addr string) ([]btcTransaction, error) {
	var page btcTxPage
	if err := c.call(ctx, "/v3/address/"+addr+"/tx", &page); err != nil {
		return nil, err
	}
	return page.List, nil
}

type bitcoinProvider struct {
	client  *btcClient
	wallet  models.Wallet
	deps    provider.Deps
	factory record.Factory
	log     *logger.Entry
}

// NewBitcoin builds a wallet provider backed by the btc.com explorer.
func NewBitcoin(deps provider.Deps, wallet models.Wallet, cfg config.ChainProviderConfig) (provider.Provider, error) {
	return &bitcoinProvider{
		client:  newBtcClient(cfg.URL),
		wallet:  wallet,
		deps:    deps,
		factory: record.NewFactory(models.OriginWallet, wallet.Name),
		log:     logger.GetLogger().WithComponent("bitcoin-provider"),
	}, nil
}

func (p *bitcoinProvider) Origin() string {
	return p.factory.OriginName()
}

func (p *bitcoinProvider) Assets(ctx context.Context) ([]models.Asset, error) {
	info, err := retry.Do(ctx, p.client.retryPolicy(), func() (*btcAddress, error) {
		return p.client.address(ctx, p.wallet.Address)
	})
	if err != nil {
		return nil, provider.WrapError(p.Origin(), err)
	}
	if info == nil || info.Balance == 0 {
		return nil, nil
	}
	p.log.WithFields(logger.Fields{"tx_count": info.TxCount}).Debug("fetched address info")

	balance, err := convert.SatoshiToBTC(strconv.FormatInt(info.Balance, 10))
	if err != nil {
		return nil, provider.WrapError(p.Origin(), err)
	}

	rates, err := p.deps.Prices.Rates(ctx, []string{"BTC"}, p.deps.BaseCurrency)
	if err != nil {
		return nil, provider.WrapError(p.Origin(), err)
	}
	value := balance.Mul(rates.Rate("BTC", p.deps.BaseCurrency))

	return []models.Asset{
		p.factory.Asset(p.deps.DisplayName("BTC"), "BTC", balance, value),
	}, nil
}

// direction inspects the transaction's inputs and outputs for the wallet
// address. Spending appears as a previous output owned by the wallet.
// Matching is case-insensitive: bech32 addresses are valid in either case.
func (p *bitcoinProvider) direction(tx btcTransaction) string {
	for _, input := range tx.Inputs {
		for _, addr := range input.PrevAddresses {
			if strings.EqualFold(addr, p.wallet.Address) {
				return models.ActionOut
			}
		}
	}
	for _, output := range tx.Outputs {
		for _, addr := range output.Addresses {
			if strings.EqualFold(addr, p.wallet.Address) {
				return models.ActionIn
			}
		}
	}
	return models.ActionUnknown
}

func (p *bitcoinProvider) Activities(ctx context.Context) ([]models.Activity, error) {
	txs, err := retry.Do(ctx, p.client.retryPolicy(), func() ([]btcTransaction, error) {
		return p.client.transactions(ctx, p.wallet.Address)
	})
	if err != nil {
		return nil, provider.WrapError(p.Origin(), err)
	}

	activities := make([]models.Activity, 0, len(txs))
	for _, tx := range txs {
		diff := tx.BalanceDiff
		if diff < 0 {
			diff = -diff
		}
		amount, err := convert.SatoshiToBTC(strconv.FormatInt(diff, 10))
		if err != nil {
			return nil, provider.WrapError(p.Origin(), err)
		}

		date := ""
		if tx.BlockTime > 0 {
			date = time.Unix(tx.BlockTime, 0).UTC().Format(time.RFC3339)
		}

		var from, to []string
		for _, input := range tx.Inputs {
			from = append(from, input.PrevAddresses...)
		}
		for _, output := range tx.Outputs {
			to = append(to, output.Addresses...)
		}
		details := detailsMap(tx)
		if details == nil {
			details = map[string]any{}
		}
		details["from"] = from
		details["to"] = to

		activities = append(activities, p.factory.Activity(record.ActivityParams{
			Action:          p.direction(tx),
			Amount:          amount,
			Currency:        "BTC",
			Date:            date,
			TransactionType: "Transaction",
			Status:          StatusFromConfirmations(tx.Confirmations),
			Details:         details,
		}))
	}
	return activities, nil
}
