package exchange

import (
	"context"
	"errors"
	"net"
	"net/url"
	"time"

	sdkapi "github.com/Kucoin/kucoin-universal-sdk/sdk/golang/pkg/api"
	kcaccount "github.com/Kucoin/kucoin-universal-sdk/sdk/golang/pkg/generate/account/account"
	kcdeposit "github.com/Kucoin/kucoin-universal-sdk/sdk/golang/pkg/generate/account/deposit"
	kcwithdrawal "github.com/Kucoin/kucoin-universal-sdk/sdk/golang/pkg/generate/account/withdrawal"
	sdktype "github.com/Kucoin/kucoin-universal-sdk/sdk/golang/pkg/types"
	"github.com/shopspring/decimal"

	"cryptofolio/config"
	"cryptofolio/internal/models"
	"cryptofolio/internal/provider"
	"cryptofolio/internal/record"
	"cryptofolio/internal/retry"
	"cryptofolio/logger"
)

const defaultKucoinURL = "https://api.kucoin.com"

// ClassifyKucoinError maps KuCoin SDK failures onto retry classes. The SDK
// wraps HTTP transport errors, so network conditions are the retryable case.
func ClassifyKucoinError(err error) retry.Class {
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

type kucoinProvider struct {
	accountAPI    kcaccount.AccountAPI
	depositAPI    kcdeposit.DepositAPI
	withdrawalAPI kcwithdrawal.WithdrawalAPI
	deps          provider.Deps
	factory       record.Factory
	log           *logger.Entry
}

// NewKucoin builds an exchange provider over the KuCoin universal SDK.
func NewKucoin(deps provider.Deps, account models.ExchangeAccount, cfg config.ExchangeProviderConfig) (provider.Provider, error) {
	baseURL := cfg.URL
	if baseURL == "" {
		baseURL = defaultKucoinURL
	}

	transportOpt := sdktype.NewTransportOptionBuilder().
		SetTimeout(10 * time.Second).
		Build()
	option := sdktype.NewClientOptionBuilder().
		WithKey(account.APIKey).
		WithSecret(account.APISecret).
		WithPassphrase(account.Passphrase).
		WithSpotEndpoint(baseURL).
		WithTransportOption(transportOpt).
		Build()

	service := sdkapi.NewClient(option).RestService().GetAccountService()
	return &kucoinProvider{
		accountAPI:    service.GetAccountAPI(),
		depositAPI:    service.GetDepositAPI(),
		withdrawalAPI: service.GetWithdrawalAPI(),
		deps:          deps,
		factory:       record.NewFactory(models.OriginExchange, account.Name),
		log:           logger.GetLogger().WithComponent("kucoin-provider"),
	}, nil
}

func (p *kucoinProvider) Origin() string {
	return p.factory.OriginName()
}

func (p *kucoinProvider) Assets(ctx context.Context) ([]models.Asset, error) {
	policy := exchangeRetryPolicy(ClassifyKucoinError)
	resp, err := retry.Do(ctx, policy, func() (*kcaccount.GetSpotAccountListResp, error) {
		req := kcaccount.NewGetSpotAccountListReqBuilder().Build()
		return p.accountAPI.GetSpotAccountList(req, ctx)
	})
	if err != nil {
		return nil, provider.WrapError(p.Origin(), err)
	}
	if resp == nil {
		return nil, nil
	}

	// The same currency can appear once per account type (main, trade).
	held := make(map[string]decimal.Decimal)
	var tickers []string
	for _, entry := range resp.Data {
		balance, err := decimal.NewFromString(entry.Balance)
		if err != nil {
			return nil, provider.WrapError(p.Origin(), err)
		}
		if !balance.IsPositive() {
			continue
		}
		if _, ok := held[entry.Currency]; !ok {
			tickers = append(tickers, entry.Currency)
		}
		held[entry.Currency] = held[entry.Currency].Add(balance)
	}
	if len(tickers) == 0 {
		return nil, nil
	}
	p.log.WithFields(logger.Fields{"tickers": len(tickers)}).Debug("fetched spot accounts")

	rates, err := p.deps.Prices.Rates(ctx, tickers, p.deps.BaseCurrency)
	if err != nil {
		return nil, provider.WrapError(p.Origin(), err)
	}

	assets := make([]models.Asset, 0, len(tickers))
	for _, ticker := range tickers {
		balance := held[ticker]
		value := balance.Mul(rates.Rate(ticker, p.deps.BaseCurrency))
		assets = append(assets, p.factory.Asset(p.deps.DisplayName(ticker), ticker, balance, value))
	}
	return assets, nil
}

// The SDK generates optional response fields as pointers; absent values fall
// back to zero values here.
func strVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func millisVal(v *int64) string {
	if v == nil || *v <= 0 {
		return ""
	}
	return time.UnixMilli(*v).UTC().Format(time.RFC3339)
}

// depositActivity maps one SDK deposit item onto a canonical activity.
// Items without a usable amount are dropped, not failed.
func (p *kucoinProvider) depositActivity(item kcdeposit.GetDepositHistoryItems) (models.Activity, bool) {
	amount, err := decimal.NewFromString(strVal(item.Amount))
	if err != nil {
		p.log.WithFields(logger.Fields{"currency": strVal(item.Currency)}).Warn("skipping deposit with unusable amount")
		return models.Activity{}, false
	}
	return p.factory.Activity(record.ActivityParams{
		Action:          models.ActionDeposit,
		Amount:          amount,
		Currency:        strVal(item.Currency),
		Date:            millisVal(item.CreatedAt),
		TransactionType: "Deposit",
		Status:          strVal(item.Status),
		Details:         map[string]any{"raw": item},
	}), true
}

func (p *kucoinProvider) withdrawalActivity(item kcwithdrawal.GetWithdrawalHistoryItems) (models.Activity, bool) {
	amount, err := decimal.NewFromString(strVal(item.Amount))
	if err != nil {
		p.log.WithFields(logger.Fields{"currency": strVal(item.Currency)}).Warn("skipping withdrawal with unusable amount")
		return models.Activity{}, false
	}
	return p.factory.Activity(record.ActivityParams{
		Action:          models.ActionWithdraw,
		Amount:          amount,
		Currency:        strVal(item.Currency),
		Date:            millisVal(item.CreatedAt),
		TransactionType: "Withdraw",
		Status:          strVal(item.Status),
		Details:         map[string]any{"raw": item},
	}), true
}

func (p *kucoinProvider) deposits(ctx context.Context) ([]models.Activity, error) {
	policy := exchangeRetryPolicy(ClassifyKucoinError)
	resp, err := retry.Do(ctx, policy, func() (*kcdeposit.GetDepositHistoryResp, error) {
		req := kcdeposit.NewGetDepositHistoryReqBuilder().Build()
		return p.depositAPI.GetDepositHistory(req, ctx)
	})
	if err != nil || resp == nil {
		return nil, err
	}

	activities := make([]models.Activity, 0, len(resp.Items))
	for _, item := range resp.Items {
		if activity, ok := p.depositActivity(item); ok {
			activities = append(activities, activity)
		}
	}
	return activities, nil
}

func (p *kucoinProvider) withdrawals(ctx context.Context) ([]models.Activity, error) {
	policy := exchangeRetryPolicy(ClassifyKucoinError)
	resp, err := retry.Do(ctx, policy, func() (*kcwithdrawal.GetWithdrawalHistoryResp, error) {
		req := kcwithdrawal.NewGetWithdrawalHistoryReqBuilder().Build()
		return p.withdrawalAPI.GetWithdrawalHistory(req, ctx)
	})
	if err != nil || resp == nil {
		return nil, err
	}

	activities := make([]models.Activity, 0, len(resp.Items))
	for _, item := range resp.Items {
		if activity, ok := p.withdrawalActivity(item); ok {
			activities = append(activities, activity)
		}
	}
	return activities, nil
}

func (p *kucoinProvider) Activities(ctx context.Context) ([]models.Activity, error) {
	deposits, err := p.deposits(ctx)
	if err != nil {
		return nil, provider.WrapError(p.Origin(), err)
	}
	withdrawals, err := p.withdrawals(ctx)
	if err != nil {
		return nil, provider.WrapError(p.Origin(), err)
	}
	return append(deposits, withdrawals...), nil
}
