package exchange

import (
	"context"
	"errors"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"

	"cryptofolio/config"
	"cryptofolio/internal/models"
	"cryptofolio/internal/provider"
	"cryptofolio/internal/record"
	"cryptofolio/internal/retry"
	"cryptofolio/logger"
)

const (
	binanceCodeTooManyRequests = -1003
	binanceCodeNoRecords       = -5011
)

// ClassifyBinanceError maps Binance API failures onto retry classes.
func ClassifyBinanceError(err error) retry.Class {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case binanceCodeTooManyRequests:
			return retry.RateLimited
		case binanceCodeNoRecords:
			return retry.Empty
		default:
			return retry.Fatal
		}
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

func exchangeRetryPolicy(classify retry.Classifier) retry.Policy {
	return retry.Policy{
		MaxAttempts: 3,
		Delay:       500 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Exponential: true,
		Classify:    classify,
	}
}

type binanceProvider struct {
	client  *binance.Client
	deps    provider.Deps
	factory record.Factory
	log     *logger.Entry
}

// NewBinance builds an exchange provider over the Binance REST API.
func NewBinance(deps provider.Deps, account models.ExchangeAccount, cfg config.ExchangeProviderConfig) (provider.Provider, error) {
	client := binance.NewClient(account.APIKey, account.APISecret)
	if cfg.URL != "" {
		client.BaseURL = cfg.URL
	}
	return &binanceProvider{
		client:  client,
		deps:    deps,
		factory: record.NewFactory(models.OriginExchange, account.Name),
		log:     logger.GetLogger().WithComponent("binance-provider"),
	}, nil
}

func (p *binanceProvider) Origin() string {
	return p.factory.OriginName()
}

// snapshotIsEmpty reports whether a daily snapshot holds nothing. Binance
// keeps emitting snapshots with a zero totalAssetOfBtc after an account type
// is drained.
func snapshotIsEmpty(data *binance.SnapshotData) bool {
	if data == nil {
		return true
	}
	total, err := decimal.NewFromString(data.TotalAssetOfBtc)
	return err != nil || total.IsZero()
}

// snapshotBalances pulls the latest non-empty daily snapshot for one account
// type and returns its balances keyed by ticker.
func (p *binanceProvider) snapshotBalances(ctx context.Context, accountType string) (map[string]decimal.Decimal, error) {
	policy := exchangeRetryPolicy(ClassifyBinanceError)
	snapshot, err := retry.Do(ctx, policy, func() (*binance.Snapshot, error) {
		return p.client.NewGetAccountSnapshotService().Type(accountType).Limit(30).Do(ctx)
	})
	if err != nil {
		return nil, err
	}

	totals := make(map[string]decimal.Decimal)
	if snapshot == nil {
		return totals, nil
	}

	var latest *binance.SnapshotVos
	for _, vos := range snapshot.Snapshot {
		if snapshotIsEmpty(vos.Data) {
			continue
		}
		if latest == nil || vos.UpdateTime > latest.UpdateTime {
			latest = vos
		}
	}
	if latest == nil {
		return totals, nil
	}

	add := func(ticker, amount string) error {
		if amount == "" {
			return nil
		}
		value, err := decimal.NewFromString(amount)
		if err != nil {
			return err
		}
		if value.IsZero() {
			return nil
		}
		totals[ticker] = totals[ticker].Add(value)
		return nil
	}

	for _, balance := range latest.Data.Balances {
		if err := add(balance.Asset, balance.Free); err != nil {
			return nil, err
		}
		if err := add(balance.Asset, balance.Locked); err != nil {
			return nil, err
		}
	}
	for _, asset := range latest.Data.UserAssets {
		if err := add(asset.Asset, asset.NetAsset); err != nil {
			return nil, err
		}
	}
	for _, asset := range latest.Data.Assets {
		if err := add(asset.Asset, asset.MarginBalance); err != nil {
			return nil, err
		}
	}
	return totals, nil
}

func (p *binanceProvider) Assets(ctx context.Context) ([]models.Asset, error) {
	// The three account types are independent; fetch them concurrently and
	// merge by ticker afterwards.
	accountTypes := []string{"SPOT", "MARGIN", "FUTURES"}
	partial := make([]map[string]decimal.Decimal, len(accountTypes))
	errs := make([]error, len(accountTypes))

	var wg sync.WaitGroup
	for i, accountType := range accountTypes {
		wg.Add(1)
		go func(i int, accountType string) {
			defer wg.Done()
			partial[i], errs[i] = p.snapshotBalances(ctx, accountType)
		}(i, accountType)
	}
	wg.Wait()

	totals := make(map[string]decimal.Decimal)
	for i := range accountTypes {
		if errs[i] != nil {
			return nil, provider.WrapError(p.Origin(), errs[i])
		}
		for ticker, balance := range partial[i] {
			totals[ticker] = totals[ticker].Add(balance)
		}
	}

	tickers := make([]string, 0, len(totals))
	for ticker, balance := range totals {
		if balance.IsPositive() {
			tickers = append(tickers, ticker)
		}
	}
	if len(tickers) == 0 {
		return nil, nil
	}
	p.log.WithFields(logger.Fields{"tickers": len(tickers)}).Debug("merged account snapshots")

	rates, err := p.deps.Prices.Rates(ctx, tickers, p.deps.BaseCurrency)
	if err != nil {
		return nil, provider.WrapError(p.Origin(), err)
	}

	assets := make([]models.Asset, 0, len(tickers))
	for _, ticker := range tickers {
		balance := totals[ticker]
		value := balance.Mul(rates.Rate(ticker, p.deps.BaseCurrency))
		assets = append(assets, p.factory.Asset(p.deps.DisplayName(ticker), ticker, balance, value))
	}
	return assets, nil
}

func (p *binanceProvider) fiatHistory(ctx context.Context, transactionType binance.TransactionType, action, label string) ([]models.Activity, error) {
	policy := exchangeRetryPolicy(ClassifyBinanceError)
	history, err := retry.Do(ctx, policy, func() (*binance.FiatDepositWithdrawHistory, error) {
		return p.client.NewFiatDepositWithdrawHistoryService().TransactionType(transactionType).Do(ctx)
	})
	if err != nil {
		return nil, err
	}
	if history == nil {
		return nil, nil
	}

	activities := make([]models.Activity, 0, len(history.Data))
	for _, item := range history.Data {
		amount, err := decimal.NewFromString(item.IndicatedAmount)
		if err != nil {
			return nil, err
		}
		activities = append(activities, p.factory.Activity(record.ActivityParams{
			Action:          action,
			Amount:          amount,
			Currency:        item.FiatCurrency,
			Date:            time.UnixMilli(item.CreateTime).UTC().Format(time.RFC3339),
			TransactionType: label,
			Status:          item.Status,
			Details:         map[string]any{"raw": item},
		}))
	}
	return activities, nil
}

func (p *binanceProvider) Activities(ctx context.Context) ([]models.Activity, error) {
	deposits, err := p.fiatHistory(ctx, binance.TransactionTypeDeposit, models.ActionDeposit, "Fiat Deposit")
	if err != nil {
		return nil, provider.WrapError(p.Origin(), err)
	}
	withdrawals, err := p.fiatHistory(ctx, binance.TransactionTypeWithdraw, models.ActionWithdraw, "Fiat Withdraw")
	if err != nil {
		return nil, provider.WrapError(p.Origin(), err)
	}
	return append(deposits, withdrawals...), nil
}
