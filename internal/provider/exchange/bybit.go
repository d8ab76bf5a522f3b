package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	bybit "github.com/bybit-exchange/bybit.go.api"
	"github.com/shopspring/decimal"

	"cryptofolio/config"
	"cryptofolio/internal/models"
	"cryptofolio/internal/provider"
	"cryptofolio/internal/record"
	"cryptofolio/internal/retry"
	"cryptofolio/logger"
)

const bybitCodeRateLimited = 10006

// BybitError carries the retCode of a failed Bybit v5 response.
type BybitError struct {
	Code    int
	Message string
}

func (e *BybitError) Error() string {
	return fmt.Sprintf("bybit error %d: %s", e.Code, e.Message)
}

// ClassifyBybitError maps Bybit failures onto retry classes.
func ClassifyBybitError(err error) retry.Class {
	var bybitErr *BybitError
	if errors.As(err, &bybitErr) {
		if bybitErr.Code == bybitCodeRateLimited {
			return retry.RateLimited
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

type bybitProvider struct {
	client  *bybit.Client
	deps    provider.Deps
	factory record.Factory
	log     *logger.Entry
}

// NewBybit builds an exchange provider over the Bybit v5 unified account API.
func NewBybit(deps provider.Deps, account models.ExchangeAccount, cfg config.ExchangeProviderConfig) (provider.Provider, error) {
	var client *bybit.Client
	if cfg.URL != "" {
		client = bybit.NewBybitHttpClient(account.APIKey, account.APISecret, bybit.WithBaseURL(cfg.URL))
	} else {
		client = bybit.NewBybitHttpClient(account.APIKey, account.APISecret)
	}
	return &bybitProvider{
		client:  client,
		deps:    deps,
		factory: record.NewFactory(models.OriginExchange, account.Name),
		log:     logger.GetLogger().WithComponent("bybit-provider"),
	}, nil
}

func (p *bybitProvider) Origin() string {
	return p.factory.OriginName()
}

// decodeResult re-marshals the untyped Result of a Bybit response into a
// concrete struct, the same trick the SDK examples use.
func decodeResult(resp *bybit.ServerResponse, out any) error {
	if resp.RetCode != 0 {
		return &BybitError{Code: resp.RetCode, Message: resp.RetMsg}
	}
	payload, err := json.Marshal(resp.Result)
	if err != nil {
		return fmt.Errorf("marshaling bybit result: %w", err)
	}
	return json.Unmarshal(payload, out)
}

type bybitWalletResult struct {
	List []struct {
		AccountType string `json:"accountType"`
		TotalEquity string `json:"totalEquity"`
		Coin        []struct {
			Coin          string `json:"coin"`
			WalletBalance string `json:"walletBalance"`
			UsdValue      string `json:"usdValue"`
		} `json:"coin"`
	} `json:"list"`
}

func (p *bybitProvider) Assets(ctx context.Context) ([]models.Asset, error) {
	policy := exchangeRetryPolicy(ClassifyBybitError)
	wallet, err := retry.Do(ctx, policy, func() (bybitWalletResult, error) {
		params := map[string]interface{}{"accountType": "UNIFIED"}
		resp, err := p.client.NewUtaBybitServiceWithParams(params).GetAccountWallet(ctx)
		if err != nil {
			return bybitWalletResult{}, err
		}
		var result bybitWalletResult
		if err := decodeResult(resp, &result); err != nil {
			return bybitWalletResult{}, err
		}
		return result, nil
	})
	if err != nil {
		return nil, provider.WrapError(p.Origin(), err)
	}

	p.log.WithFields(logger.Fields{"accounts": len(wallet.List)}).Debug("fetched wallet balance")

	var assets []models.Asset
	for _, account := range wallet.List {
		for _, coin := range account.Coin {
			balance, err := decimal.NewFromString(coin.WalletBalance)
			if err != nil {
				return nil, provider.WrapError(p.Origin(), err)
			}
			if !balance.IsPositive() {
				continue
			}
			// Bybit reports the USD value alongside the balance, no
			// separate price lookup needed.
			value := decimal.Zero
			if coin.UsdValue != "" {
				value, err = decimal.NewFromString(coin.UsdValue)
				if err != nil {
					return nil, provider.WrapError(p.Origin(), err)
				}
			}
			assets = append(assets, p.factory.Asset(
				p.deps.DisplayName(coin.Coin), coin.Coin, balance, value))
		}
	}
	return assets, nil
}

type bybitDepositResult struct {
	Rows []struct {
		Coin      string `json:"coin"`
		Chain     string `json:"chain"`
		Amount    string `json:"amount"`
		TxID      string `json:"txID"`
		Status    int    `json:"status"`
		SuccessAt string `json:"successAt"`
	} `json:"rows"`
}

type bybitWithdrawResult struct {
	Rows []struct {
		Coin       string `json:"coin"`
		Chain      string `json:"chain"`
		Amount     string `json:"amount"`
		TxID       string `json:"txID"`
		Status     string `json:"status"`
		CreateTime string `json:"createTime"`
	} `json:"rows"`
}

func bybitDepositStatus(status int) string {
	switch status {
	case 3:
		return "Success"
	case 4:
		return "Failed"
	default:
		return "Pending"
	}
}

func millisToRFC3339(millis string) string {
	value, err := strconv.ParseInt(millis, 10, 64)
	if err != nil || value <= 0 {
		return ""
	}
	return time.UnixMilli(value).UTC().Format(time.RFC3339)
}

func (p *bybitProvider) Activities(ctx context.Context) ([]models.Activity, error) {
	policy := exchangeRetryPolicy(ClassifyBybitError)

	deposits, err := retry.Do(ctx, policy, func() (bybitDepositResult, error) {
		resp, err := p.client.NewUtaBybitServiceNoParams().GetDepositRecords(ctx)
		if err != nil {
			return bybitDepositResult{}, err
		}
		var result bybitDepositResult
		if err := decodeResult(resp, &result); err != nil {
			return bybitDepositResult{}, err
		}
		return result, nil
	})
	if err != nil {
		return nil, provider.WrapError(p.Origin(), err)
	}

	withdrawals, err := retry.Do(ctx, policy, func() (bybitWithdrawResult, error) {
		resp, err := p.client.NewUtaBybitServiceNoParams().GetWithdrawalRecords(ctx)
		if err != nil {
			return bybitWithdrawResult{}, err
		}
		var result bybitWithdrawResult
		if err := decodeResult(resp, &result); err != nil {
			return bybitWithdrawResult{}, err
		}
		return result, nil
	})
	if err != nil {
		return nil, provider.WrapError(p.Origin(), err)
	}

	activities := make([]models.Activity, 0, len(deposits.Rows)+len(withdrawals.Rows))
	for _, row := range deposits.Rows {
		amount, err := decimal.NewFromString(row.Amount)
		if err != nil {
			return nil, provider.WrapError(p.Origin(), err)
		}
		activities = append(activities, p.factory.Activity(record.ActivityParams{
			Action:          models.ActionDeposit,
			Amount:          amount,
			Currency:        row.Coin,
			Date:            millisToRFC3339(row.SuccessAt),
			TransactionType: "Deposit",
			Status:          bybitDepositStatus(row.Status),
			Details:         map[string]any{"raw": row},
		}))
	}
	for _, row := range withdrawals.Rows {
		amount, err := decimal.NewFromString(row.Amount)
		if err != nil {
			return nil, provider.WrapError(p.Origin(), err)
		}
		activities = append(activities, p.factory.Activity(record.ActivityParams{
			Action:          models.ActionWithdraw,
			Amount:          amount,
			Currency:        row.Coin,
			Date:            millisToRFC3339(row.CreateTime),
			TransactionType: "Withdraw",
			Status:          row.Status,
			Details:         map[string]any{"raw": row},
		}))
	}
	return activities, nil
}
