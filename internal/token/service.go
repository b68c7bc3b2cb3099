package token

import "context"

// Service is the collaborator contract the chat flow and the reconciliation
// engine consume. The production implementation talks to the remote
// quoting/order backend plus the user's wallet; tests substitute fakes.
type Service interface {
	// GetTokens returns the tokens available to the connected session,
	// including current balances.
	GetTokens(ctx context.Context) ([]Token, error)

	// IsTokenAvailable reports whether the DEX lists the given symbol.
	IsTokenAvailable(ctx context.Context, symbol string) (bool, error)

	// GetPriceQuote returns a quote for swapping amount of fromToken into
	// toToken. Amount is a decimal string in human units.
	GetPriceQuote(ctx context.Context, fromToken, toToken, amount string) (*PriceQuote, error)

	// ExecuteSwap submits a swap of amount fromToken into toToken.
	ExecuteSwap(ctx context.Context, fromToken, toToken string, amount float64) (*SwapResult, error)

	// ExecuteBuy submits a purchase of toToken spending the base currency.
	ExecuteBuy(ctx context.Context, toToken string, amount float64) (*SwapResult, error)

	// CheckOrderStatus returns the backend's current status string for an
	// order.
	CheckOrderStatus(ctx context.Context, orderID string) (string, error)
}
