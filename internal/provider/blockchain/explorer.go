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
	"strings"
	"time"

	"golang.org/x/time/rate"

	"cryptofolio/internal/retry"
	"cryptofolio/logger"
)

// Errors surfaced by the etherscan API family. The upstream has no structured
// error codes for these conditions, so detection falls back to the exact
// message strings the API documents.
var (
	// ErrNoData is the "No transactions found" condition: a successful
	// query over an address with no history. Recoverable-empty, not a
	// failure.
	ErrNoData = errors.New("explorer: no data for query")
	// ErrRateLimited is the "Max rate limit reached" condition.
	ErrRateLimited = errors.New("explorer: rate limited")
)

// explorerClient talks to an etherscan-compatible block explorer (etherscan,
// bscscan). One instance serves one chain.
type explorerClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logger.Entry
}

func newExplorerClient(baseURL, apiKey string, requestsPerSecond int, component string) *explorerClient {
	if requestsPerSecond <= 0 {
		// etherscan free tier allows 5 req/s.
		requestsPerSecond = 5
	}
	return &explorerClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		log:        logger.GetLogger().WithComponent(component),
	}
}

// retryPolicy mirrors the generous limits block explorers need: rate-limit
// responses are frequent and clear up within a second.
func (c *explorerClient) retryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: 999,
		Delay:       time.Second,
		Classify:    ClassifyExplorerError,
	}
}

// ClassifyExplorerError maps explorer failures onto retry classes.
func ClassifyExplorerError(err error) retry.Class {
	switch {
	case errors.Is(err, ErrNoData):
		return retry.Empty
	case errors.Is(err, ErrRateLimited):
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

type explorerResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

func (c *explorerClient) call(ctx context.Context, action string, extra url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	query := url.Values{}
	query.Set("module", "account")
	query.Set("action", action)
	if c.apiKey != "" {
		query.Set("apikey", c.apiKey)
	}
	for k, vs := range extra {
		for _, v := range vs {
			query.Set(k, v)
		}
	}

	endpoint := c.baseURL + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("building explorer request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("explorer returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var envelope explorerResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("malformed explorer response: %w", err)
	}

	if envelope.Status != "1" {
		resultText := strings.Trim(string(envelope.Result), `"`)
		switch {
		case strings.Contains(envelope.Message, "No transactions found"):
			return ErrNoData
		case strings.Contains(resultText, "Max rate limit reached"),
			strings.Contains(envelope.Message, "Max rate limit reached"):
			c.log.WithFields(logger.Fields{"action": action}).Debug("explorer rate limit hit")
			return ErrRateLimited
		default:
			return fmt.Errorf("explorer error: %s - %s", envelope.Message, resultText)
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("decoding explorer result: %w", err)
	}
	return nil
}

// Balance returns the native-coin balance of address in base units.
func (c *explorerClient) Balance(ctx context.Context, address string) (string, error) {
	params := url.Values{}
	params.Set("address", address)
	params.Set("tag", "latest")

	var balance string
	if err := c.call(ctx, "balance", params, &balance); err != nil {
		return "", err
	}
	return balance, nil
}

// TokenBalance returns the token balance of address for one contract, in the
// token's base units.
func (c *explorerClient) TokenBalance(ctx context.Context, address, contract string) (string, error) {
	params := url.Values{}
	params.Set("address", address)
	params.Set("contractaddress", contract)
	params.Set("tag", "latest")

	var balance string
	if err := c.call(ctx, "tokenbalance", params, &balance); err != nil {
		return "", err
	}
	return balance, nil
}

// NormalTransaction is one entry of the explorer txlist action. All fields
// arrive as strings.
type NormalTransaction struct {
	BlockNumber       string `json:"blockNumber"`
	TimeStamp         string `json:"timeStamp"`
	Hash              string `json:"hash"`
	Nonce             string `json:"nonce"`
	BlockHash         string `json:"blockHash"`
	TransactionIndex  string `json:"transactionIndex"`
	From              string `json:"from"`
	To                string `json:"to"`
	Value             string `json:"value"`
	Gas               string `json:"gas"`
	GasPrice          string `json:"gasPrice"`
	IsError           string `json:"isError"`
	TxReceiptStatus   string `json:"txreceipt_status"`
	Input             string `json:"input"`
	ContractAddress   string `json:"contractAddress"`
	CumulativeGasUsed string `json:"cumulativeGasUsed"`
	GasUsed           string `json:"gasUsed"`
	Confirmations     string `json:"confirmations"`
	MethodID          string `json:"methodId"`
	FunctionName      string `json:"functionName"`
}

// InternalTransaction is one entry of the txlistinternal action.
type InternalTransaction struct {
	BlockNumber     string `json:"blockNumber"`
	TimeStamp       string `json:"timeStamp"`
	Hash            string `json:"hash"`
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"`
	ContractAddress string `json:"contractAddress"`
	Input           string `json:"input"`
	Type            string `json:"type"`
	Gas             string `json:"gas"`
	GasUsed         string `json:"gasUsed"`
	TraceID         string `json:"traceId"`
	IsError         string `json:"isError"`
	ErrCode         string `json:"errCode"`
}

// TokenTransfer is one entry of the tokentx action.
type TokenTransfer struct {
	BlockNumber       string `json:"blockNumber"`
	TimeStamp         string `json:"timeStamp"`
	Hash              string `json:"hash"`
	Nonce             string `json:"nonce"`
	BlockHash         string `json:"blockHash"`
	From              string `json:"from"`
	ContractAddress   string `json:"contractAddress"`
	To                string `json:"to"`
	Value             string `json:"value"`
	TokenName         string `json:"tokenName"`
	TokenSymbol       string `json:"tokenSymbol"`
	TokenDecimal      string `json:"tokenDecimal"`
	TransactionIndex  string `json:"transactionIndex"`
	Gas               string `json:"gas"`
	GasPrice          string `json:"gasPrice"`
	GasUsed           string `json:"gasUsed"`
	CumulativeGasUsed string `json:"cumulativeGasUsed"`
	Input             string `json:"input"`
	Confirmations     string `json:"confirmations"`
}

func (c *explorerClient) NormalTransactions(ctx context.Context, address string) ([]NormalTransaction, error) {
	params := url.Values{}
	params.Set("address", address)
	params.Set("sort", "asc")

	var txs []NormalTransaction
	if err := c.call(ctx, "txlist", params, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

func (c *explorerClient) InternalTransactions(ctx context.Context, address string) ([]InternalTransaction, error) {
	params := url.Values{}
	params.Set("address", address)
	params.Set("sort", "asc")

	var txs []InternalTransaction
	if err := c.call(ctx, "txlistinternal", params, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

func (c *explorerClient) TokenTransfers(ctx context.Context, address string) ([]TokenTransfer, error) {
	params := url.Values{}
	params.Set("address", address)
	params.Set("sort", "asc")

	var events []TokenTransfer
	if err := c.call(ctx, "tokentx", params, &events); err != nil {
		return nil, err
	}
	return events, nil
}
