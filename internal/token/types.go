// Package token defines the trading types shared between the chat flow,
// the exchange backend client, and the order reconciliation engine.
package token

import "errors"

// BaseCurrency is the network's native token. It is the implicit spend
// currency of a buy flow and can never be the purchase target.
const BaseCurrency = "KAS"

// Token errors.
var (
	ErrTokenNotFound = errors.New("token not found")
	ErrBaseCurrency  = errors.New("cannot buy base currency directly")
)

// Token is a tradable asset with the caller's current balance.
type Token struct {
	Symbol   string `json:"symbol"`
	Balance  string `json:"balance"`
	Decimals int    `json:"decimals"`
}

// PriceQuote is a backend-computed projection for a candidate trade.
// Amounts and rates are authoritative on the backend side; the core only
// renders them.
type PriceQuote struct {
	FromAmount   string  `json:"fromAmount"`
	ToAmount     float64 `json:"toAmount"`
	ExchangeRate float64 `json:"exchangeRate"`
	Fee          float64 `json:"fee"`
	Slippage     string  `json:"slippage"`
	ChainDecimal int     `json:"chainDecimal"`
	PriceImpact  float64 `json:"priceImpact"`
}

// SwapResult is the outcome of submitting a swap or buy to the backend.
type SwapResult struct {
	Success bool   `json:"success"`
	TxHash  string `json:"txHash"`
	OrderID string `json:"orderId,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Order status vocabulary. The backend owns the full set; these are the
// values the engine gives special treatment to.
const (
	StatusSubmitted = "submitted"
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusRefunded  = "refunded"
	StatusUnknown   = "unknown"
)

// IsTerminalStatus reports whether no further status transitions are
// expected for an order.
func IsTerminalStatus(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusRefunded:
		return true
	}
	return false
}
