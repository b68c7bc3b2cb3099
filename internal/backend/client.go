// Package backend implements the token service against the remote Prophet
// quoting/order backend. Quotes and order status come straight from the
// backend; transfers and signing are relayed through the wallet session.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prophet-exchange/prophet-chat/internal/token"
	"github.com/prophet-exchange/prophet-chat/internal/wallet"
	"github.com/prophet-exchange/prophet-chat/pkg/logging"
)

// DefaultMinterAddresses routes deposits per source token. KRC20 is the
// fallback for any token without an explicit entry.
var DefaultMinterAddresses = map[string]string{
	"KAS":   "kaspa:qpgmt2dn8wcqf0436n0kueap7yx82n7raurlj6aqjc3t3wm9y5ssqtg9e4lsm",
	"KRC20": "kaspa:qz9cqmddjppjyth8rngevfs767m5nvm0480nlgs5ve8d6aegv4g9xzu2tgg0u",
}

// Client talks to the Prophet backend and implements token.Service.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	session     *wallet.Session
	minterAddrs map[string]string
	priorityFee float64
	log         *logging.Logger

	// DEX asset cache
	assetsMu      sync.RWMutex
	assets        map[string]bool
	assetsFetched time.Time
	refreshEvery  time.Duration
}

// ClientConfig holds construction parameters for a Client.
type ClientConfig struct {
	BaseURL string
	Session *wallet.Session

	// RequestTimeout bounds each HTTP call. Default 30s.
	RequestTimeout time.Duration

	// AssetRefreshInterval is how long the DEX asset cache stays fresh.
	// Default 5 minutes.
	AssetRefreshInterval time.Duration

	// PriorityFee is passed to KRC-20 transfers, in KAS.
	PriorityFee float64

	// MinterAddresses overrides DefaultMinterAddresses when set.
	MinterAddresses map[string]string
}

// NewClient creates a backend client.
func NewClient(cfg *ClientConfig) *Client {
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	refreshEvery := cfg.AssetRefreshInterval
	if refreshEvery == 0 {
		refreshEvery = 5 * time.Minute
	}
	minterAddrs := cfg.MinterAddresses
	if minterAddrs == nil {
		minterAddrs = DefaultMinterAddresses
	}

	return &Client{
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient:   &http.Client{Timeout: timeout},
		session:      cfg.Session,
		minterAddrs:  minterAddrs,
		priorityFee:  cfg.PriorityFee,
		log:          logging.GetDefault().Component("backend"),
		assets:       make(map[string]bool),
		refreshEvery: refreshEvery,
	}
}

// GetTokens returns the session's token list (base currency plus KRC-20
// balances reported by the wallet).
func (c *Client) GetTokens(ctx context.Context) ([]token.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.session.Tokens(), nil
}

// IsTokenAvailable reports whether the DEX lists the symbol. The asset
// cache is refreshed lazily when stale; the base currency is always
// available.
func (c *Client) IsTokenAvailable(ctx context.Context, symbol string) (bool, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == token.BaseCurrency {
		return true, nil
	}

	c.assetsMu.RLock()
	stale := time.Since(c.assetsFetched) > c.refreshEvery
	c.assetsMu.RUnlock()

	if stale {
		if err := c.RefreshAssets(ctx); err != nil {
			return false, err
		}
	}

	c.assetsMu.RLock()
	defer c.assetsMu.RUnlock()
	return c.assets[symbol], nil
}

// RefreshAssets fetches the DEX asset list and replaces the cache.
func (c *Client) RefreshAssets(ctx context.Context) error {
	var result struct {
		Assets []struct {
			Symbol   string `json:"symbol"`
			Decimals int    `json:"decimals"`
		} `json:"assets"`
	}

	if err := c.get(ctx, "/assets/"+token.BaseCurrency, &result); err != nil {
		return fmt.Errorf("failed to fetch available tokens: %w", err)
	}

	assets := make(map[string]bool, len(result.Assets))
	for _, a := range result.Assets {
		assets[strings.ToUpper(a.Symbol)] = true
	}

	c.assetsMu.Lock()
	c.assets = assets
	c.assetsFetched = time.Now()
	c.assetsMu.Unlock()

	c.log.Debug("Asset list refreshed", "count", len(assets))
	return nil
}

// GetPriceQuote fetches a quote for the trade. Backend amounts arrive in
// base units and are scaled to human units by chainDecimal.
func (c *Client) GetPriceQuote(ctx context.Context, fromToken, toToken, amount string) (*token.PriceQuote, error) {
	req := map[string]string{
		"fromToken": fromToken,
		"toToken":   toToken,
		"amount":    amount,
	}

	var result struct {
		Quote struct {
			OutAmount    float64 `json:"outAmount"`
			ServiceFee   float64 `json:"serviceFee"`
			Slippage     string  `json:"slippage"`
			ChainDecimal int     `json:"chainDecimal"`
			PriceImpact  float64 `json:"priceImpact"`
		} `json:"quote"`
	}

	if err := c.post(ctx, "/quote", req, &result); err != nil {
		return nil, fmt.Errorf("quote failed: %w", err)
	}

	scale := math.Pow(10, float64(result.Quote.ChainDecimal))
	toAmount := result.Quote.OutAmount / scale

	quote := &token.PriceQuote{
		FromAmount:   amount,
		ToAmount:     toAmount,
		Fee:          result.Quote.ServiceFee / scale,
		Slippage:     result.Quote.Slippage,
		ChainDecimal: result.Quote.ChainDecimal,
		PriceImpact:  result.Quote.PriceImpact,
	}
	if fromAmount, err := strconv.ParseFloat(amount, 64); err == nil && fromAmount > 0 {
		quote.ExchangeRate = toAmount / fromAmount
	}

	return quote, nil
}

// CheckOrderStatus returns the backend's status string for an order.
func (c *Client) CheckOrderStatus(ctx context.Context, orderID string) (string, error) {
	req := map[string]string{"orderId": orderID}

	var result struct {
		Status string `json:"status"`
	}

	if err := c.post(ctx, "/order-status", req, &result); err != nil {
		return "", fmt.Errorf("status check failed: %w", err)
	}

	return result.Status, nil
}

// minterAddress returns the deposit address for a source token.
func (c *Client) minterAddress(fromToken string) string {
	if addr, ok := c.minterAddrs[strings.ToUpper(strings.TrimSpace(fromToken))]; ok {
		return addr
	}
	return c.minterAddrs["KRC20"]
}

// get performs a GET request and decodes the JSON response.
func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, result)
}

// post performs a POST request with a JSON body and decodes the response.
func (c *Client) post(ctx context.Context, path string, body, result interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if result == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(result)
}
