package blockchain

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"cryptofolio/internal/convert"
	"cryptofolio/internal/models"
	"cryptofolio/internal/provider"
	"cryptofolio/internal/record"
	"cryptofolio/internal/retry"
	"cryptofolio/logger"
)

// evmProvider serves any etherscan-compatible chain. The chain-specific
// pieces (native ticker, transfer-event label) come from the constructor.
type evmProvider struct {
	client  *explorerClient
	wallet  models.Wallet
	deps    provider.Deps
	factory record.Factory
	log     *logger.Entry

	nativeTicker  string
	tokenTxType   string
	nativeDecimal int32
}

func (p *evmProvider) Origin() string {
	return p.factory.OriginName()
}

type tokenInfo struct {
	contract string
	name     string
	symbol   string
	decimals int32
}

// discoverTokens derives the set of token contracts the wallet has ever
// touched from its transfer history. The explorer has no direct "list my
// tokens" endpoint.
func (p *evmProvider) discoverTokens(ctx context.Context) ([]tokenInfo, error) {
	policy := p.client.retryPolicy()
	transfers, err := retry.Do(ctx, policy, func() ([]TokenTransfer, error) {
		return p.client.TokenTransfers(ctx, p.wallet.Address)
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]tokenInfo)
	for _, tr := range transfers {
		if _, ok := seen[tr.ContractAddress]; ok {
			continue
		}
		places, err := strconv.ParseInt(tr.TokenDecimal, 10, 32)
		if err != nil {
			p.log.WithFields(logger.Fields{
				"contract": tr.ContractAddress,
				"decimal":  tr.TokenDecimal,
			}).Warn("skipping token with unparsable decimals")
			continue
		}
		seen[tr.ContractAddress] = tokenInfo{
			contract: tr.ContractAddress,
			name:     tr.TokenName,
			symbol:   tr.TokenSymbol,
			decimals: int32(places),
		}
	}

	tokens := make([]tokenInfo, 0, len(seen))
	for _, t := range seen {
		tokens = append(tokens, t)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].contract < tokens[j].contract })
	return tokens, nil
}

func (p *evmProvider) Assets(ctx context.Context) ([]models.Asset, error) {
	policy := p.client.retryPolicy()

	rawBalance, err := retry.Do(ctx, policy, func() (string, error) {
		return p.client.Balance(ctx, p.wallet.Address)
	})
	if err != nil {
		return nil, provider.WrapError(p.Origin(), err)
	}
	nativeBalance := decimal.Zero
	if rawBalance != "" {
		nativeBalance, err = convert.FromBaseUnits(rawBalance, p.nativeDecimal)
		if err != nil {
			return nil, provider.WrapError(p.Origin(), err)
		}
	}

	tokens, err := p.discoverTokens(ctx)
	if err != nil {
		return nil, provider.WrapError(p.Origin(), err)
	}

	// One price batch covers the native coin and every discovered token.
	tickers := []string{p.nativeTicker}
	for _, t := range tokens {
		tickers = append(tickers, t.symbol)
	}
	rates, err := p.deps.Prices.Rates(ctx, tickers, p.deps.BaseCurrency)
	if err != nil {
		return nil, provider.WrapError(p.Origin(), err)
	}

	var assets []models.Asset
	if nativeBalance.IsPositive() {
		value := nativeBalance.Mul(rates.Rate(p.nativeTicker, p.deps.BaseCurrency))
		assets = append(assets, p.factory.Asset(
			p.deps.DisplayName(p.nativeTicker), p.nativeTicker, nativeBalance, value))
	}

	for _, token := range tokens {
		token := token
		raw, err := retry.Do(ctx, policy, func() (string, error) {
			return p.client.TokenBalance(ctx, p.wallet.Address, token.contract)
		})
		if err != nil {
			return nil, provider.WrapError(p.Origin(), err)
		}
		if raw == "" {
			continue
		}
		balance, err := convert.FromBaseUnits(raw, token.decimals)
		if err != nil {
			return nil, provider.WrapError(p.Origin(), err)
		}
		if !balance.IsPositive() {
			continue
		}
		value := balance.Mul(rates.Rate(token.symbol, p.deps.BaseCurrency))
		name := token.name
		if name == "" {
			name = p.deps.DisplayName(token.symbol)
		}
		assets = append(assets, p.factory.Asset(name, token.symbol, balance, value))
	}
	return assets, nil
}

func (p *evmProvider) Activities(ctx context.Context) ([]models.Activity, error) {
	policy := p.client.retryPolicy()

	normal, err := retry.Do(ctx, policy, func() ([]NormalTransaction, error) {
		return p.client.NormalTransactions(ctx, p.wallet.Address)
	})
	if err != nil {
		return nil, provider.WrapError(p.Origin(), err)
	}

	internal, err := retry.Do(ctx, policy, func() ([]InternalTransaction, error) {
		return p.client.InternalTransactions(ctx, p.wallet.Address)
	})
	if err != nil {
		return nil, provider.WrapError(p.Origin(), err)
	}

	transfers, err := retry.Do(ctx, policy, func() ([]TokenTransfer, error) {
		return p.client.TokenTransfers(ctx, p.wallet.Address)
	})
	if err != nil {
		return nil, provider.WrapError(p.Origin(), err)
	}

	activities := make([]models.Activity, 0, len(normal)+len(internal)+len(transfers))

	for _, tx := range normal {
		amount, err := convert.FromBaseUnits(tx.Value, p.nativeDecimal)
		if err != nil {
			return nil, provider.WrapError(p.Origin(), err)
		}
		status := statusFromConfirmationsString(tx.Confirmations)
		if tx.IsError == "1" {
			status = "Failed"
		}
		activities = append(activities, p.factory.Activity(record.ActivityParams{
			Action:          Direction(p.wallet.Address, tx.From, tx.To),
			Amount:          amount,
			Currency:        p.nativeTicker,
			Date:            unixToRFC3339(tx.TimeStamp),
			TransactionType: "Normal Transaction",
			Status:          status,
			Details:         detailsMap(tx),
		}))
	}

	for _, tx := range internal {
		amount, err := convert.FromBaseUnits(tx.Value, p.nativeDecimal)
		if err != nil {
			return nil, provider.WrapError(p.Origin(), err)
		}
		activities = append(activities, p.factory.Activity(record.ActivityParams{
			Action:          Direction(p.wallet.Address, tx.From, tx.To),
			Amount:          amount,
			Currency:        p.nativeTicker,
			Date:            unixToRFC3339(tx.TimeStamp),
			TransactionType: "Internal Transaction",
			Status:          fmt.Sprintf("isError: %s", tx.IsError),
			Details:         detailsMap(tx),
		}))
	}

	for _, tr := range transfers {
		places, err := strconv.ParseInt(tr.TokenDecimal, 10, 32)
		if err != nil {
			p.log.WithFields(logger.Fields{
				"hash":    tr.Hash,
				"decimal": tr.TokenDecimal,
			}).Warn("skipping transfer with unparsable token decimals")
			continue
		}
		amount, err := convert.FromBaseUnits(tr.Value, int32(places))
		if err != nil {
			return nil, provider.WrapError(p.Origin(), err)
		}
		activities = append(activities, p.factory.Activity(record.ActivityParams{
			Action:          Direction(p.wallet.Address, tr.From, tr.To),
			Amount:          amount,
			Currency:        tr.TokenSymbol,
			Date:            unixToRFC3339(tr.TimeStamp),
			TransactionType: p.tokenTxType,
			Status:          statusFromConfirmationsString(tr.Confirmations),
			Details:         detailsMap(tr),
		}))
	}

	return activities, nil
}

// detailsMap keeps the full explorer payload on the activity for audit,
// nested under a raw key so canonical fields never collide with it.
func detailsMap(v any) map[string]any {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return map[string]any{"raw": m}
}
