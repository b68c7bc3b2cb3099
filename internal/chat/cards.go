package chat

import (
	"fmt"
	"html"
	"math"
	"strconv"

	"github.com/prophet-exchange/prophet-chat/internal/token"
)

// MinReceived computes the worst-case output after slippage, in human
// units. Display-layer math only; the backend quote stays authoritative.
func MinReceived(quote *token.PriceQuote) float64 {
	slippage, _ := strconv.ParseFloat(quote.Slippage, 64)
	return quote.ToAmount * (1 - slippage/100) / math.Pow(10, float64(quote.ChainDecimal))
}

// ExchangeRate computes the displayed per-unit rate from a quote.
func ExchangeRate(quote *token.PriceQuote) float64 {
	fromAmount, err := strconv.ParseFloat(quote.FromAmount, 64)
	if err != nil || fromAmount == 0 {
		return 0
	}
	return quote.ToAmount / fromAmount
}

// QuoteCard renders the swap summary card shown before confirmation.
func QuoteCard(fromToken, toToken string, quote *token.PriceQuote) string {
	from := html.EscapeString(fromToken)
	to := html.EscapeString(toToken)
	rate := strconv.FormatFloat(ExchangeRate(quote), 'f', 6, 64)

	return fmt.Sprintf(`<div class="quote-summary">
  <div class="quote-title">💱 Swap Summary</div>
  <div class="quote-details">
    <div class="quote-row">
      <span class="label">From:</span>
      <span class="value">💰 %s %s</span>
    </div>
    <div class="quote-row">
      <span class="label">To:</span>
      <span class="value">🎯 %v %s</span>
    </div>
    <div class="quote-row">
      <span class="value">📊 1 %s = %s %s</span>
    </div>
    <div class="quote-row">
      <span class="label">Price Impact:</span>
      <span class="value">📉 %v%%</span>
    </div>
    <div class="quote-row fee">
      <span class="label">Min Received:</span>
      <span class="value">🔒 %.4f %s</span>
    </div>
    <div class="quote-row fee">
      <span class="label">Service Fee:</span>
      <span class="value">🏷️ %.4f %s</span>
    </div>
  </div>
  <div class="quote-confirm">Ready to complete this swap? 🚀</div>
</div>`,
		html.EscapeString(quote.FromAmount), from,
		quote.ToAmount, to,
		from, rate, to,
		quote.PriceImpact,
		MinReceived(quote), to,
		quote.Fee, to,
	)
}

// ConfirmationCard renders the order-submitted card emitted after a
// successful execution.
func ConfirmationCard(orderID string, amount float64, fromToken string, toAmount float64, toToken, txLink string) string {
	return fmt.Sprintf(`<div class="order-confirmation">
  <div class="confirmation-header">
    <span class="icon">✅</span>
    <span class="title">Order Submitted Successfully</span>
  </div>
  <div class="confirmation-details">
    <div class="detail-row">
      <span class="label">Order ID:</span>
      <span class="value">%s</span>
    </div>
    <div class="detail-group">
      <div class="group-title">Swap Details</div>
      <div class="detail-row">
        <span class="label">From:</span>
        <span class="value">%v %s</span>
      </div>
      <div class="detail-row">
        <span class="label">To:</span>
        <span class="value">%v %s</span>
      </div>
    </div>
    <div class="status-message">
      <span class="icon">🔄</span>
      <span>Your order is being processed by the DEX</span>
    </div>
    <div class="notification-message">
      <span class="icon">🔔</span>
      <span>You'll be notified when the order completes</span>
    </div>
  </div>
  <div class="transaction-link">
    %s
  </div>
</div>`,
		html.EscapeString(orderID),
		amount, html.EscapeString(fromToken),
		toAmount, html.EscapeString(toToken),
		txLink,
	)
}

// StatusMessage renders the notification for an order status change.
// Unrecognized non-empty statuses fall back to a generic line.
func StatusMessage(status string, amount float64, fromToken, toToken string, toAmount float64, txLink string) string {
	from := html.EscapeString(fromToken)
	to := html.EscapeString(toToken)

	switch status {
	case token.StatusPending:
		return fmt.Sprintf("⏳ Your transaction has been verified and is now processing with DEX. Swapping %v %s to %s...\n\n%s",
			amount, from, to, txLink)
	case token.StatusCompleted:
		return fmt.Sprintf("✅ Your swap of %v %s to %v %s has been completed successfully!\n\n%s",
			amount, from, toAmount, to, txLink)
	case token.StatusFailed:
		return fmt.Sprintf("❌ Your swap of %v %s to %s has failed. Please try again.\n\n%s",
			amount, from, to, txLink)
	case token.StatusRefunded:
		return fmt.Sprintf("↩️ Your swap of %v %s has been refunded.\n\n%s",
			amount, from, txLink)
	default:
		return fmt.Sprintf("Status: %s", html.EscapeString(status))
	}
}
