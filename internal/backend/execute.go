package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/prophet-exchange/prophet-chat/internal/token"
	"github.com/prophet-exchange/prophet-chat/pkg/helpers"
)

// ExecuteSwap sends the source amount to the minter address and registers
// the resulting transaction as an order with the backend. A rejected or
// failed wallet send returns an unsuccessful result rather than an error;
// errors are reserved for backend failures.
func (c *Client) ExecuteSwap(ctx context.Context, fromToken, toToken string, amount float64) (*token.SwapResult, error) {
	account, err := c.session.Account()
	if err != nil {
		return nil, err
	}
	signer := c.session.Signer()
	if signer == nil {
		return nil, fmt.Errorf("no wallet signer attached")
	}

	amountStr := strconv.FormatFloat(amount, 'f', -1, 64)
	amountSompi, err := helpers.KASToSompi(amountStr)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amountStr, err)
	}
	minter := c.minterAddress(fromToken)

	var txHash string
	if fromToken == token.BaseCurrency {
		txHash, err = signer.SendKaspa(ctx, minter, amountSompi)
	} else {
		txHash, err = signer.SendKRC20(ctx, fromToken, amountSompi, minter, c.priorityFee)
	}
	if err != nil || txHash == "" {
		c.log.Warn("Wallet send failed", "fromToken", fromToken, "error", err)
		return &token.SwapResult{Success: false, Error: "transaction was not sent"}, nil
	}

	c.log.Info("Transfer sent", "txHash", txHash, "fromToken", fromToken, "toToken", toToken)

	orderID, err := c.submitOrder(ctx, txHash, fromToken, toToken, amountStr, account)
	if err != nil {
		// The transfer is already on chain; surface the hash so the
		// order can be retried or reconciled manually.
		return &token.SwapResult{Success: false, TxHash: txHash, Error: err.Error()}, nil
	}

	return &token.SwapResult{Success: true, TxHash: txHash, OrderID: orderID}, nil
}

// ExecuteBuy is a swap with the base currency fixed as the source.
func (c *Client) ExecuteBuy(ctx context.Context, toToken string, amount float64) (*token.SwapResult, error) {
	return c.ExecuteSwap(ctx, token.BaseCurrency, toToken, amount)
}

// submitOrder runs the two-phase order registration: prepare on the
// backend, sign the returned message hash with the wallet, then submit.
func (c *Client) submitOrder(ctx context.Context, txHash, fromToken, toToken, amount, account string) (string, error) {
	signer := c.session.Signer()

	publicKey, err := signer.PublicKey(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get public key: %w", err)
	}

	prepareReq := map[string]string{
		"transactionHash": txHash,
		"fromToken":       fromToken,
		"toToken":         toToken,
		"amount":          amount,
		"fromAddress":     account,
		"publicKey":       publicKey,
	}

	var prepared struct {
		Status      string          `json:"status"`
		MessageHash string          `json:"messageHash"`
		OrderParams json.RawMessage `json:"orderParams"`
		Error       string          `json:"error"`
	}
	if err := c.post(ctx, "/prepare-order", prepareReq, &prepared); err != nil {
		return "", fmt.Errorf("prepare order failed: %w", err)
	}
	if prepared.Status != "prepared" || prepared.MessageHash == "" {
		if prepared.Error != "" {
			return "", fmt.Errorf("prepare order rejected: %s", prepared.Error)
		}
		return "", fmt.Errorf("prepare order rejected: status %q", prepared.Status)
	}

	signature, err := signer.SignMessage(ctx, prepared.MessageHash)
	if err != nil {
		return "", fmt.Errorf("failed to sign order: %w", err)
	}

	submitReq := map[string]interface{}{
		"orderParams": prepared.OrderParams,
		"fromAddress": account,
		"publicKey":   publicKey,
		"signature":   signature,
	}

	var submitted struct {
		OrderID string `json:"orderId"`
		Status  string `json:"status"`
		Error   string `json:"error"`
	}
	if err := c.post(ctx, "/submit-order", submitReq, &submitted); err != nil {
		return "", fmt.Errorf("submit order failed: %w", err)
	}
	if submitted.OrderID == "" {
		if submitted.Error != "" {
			return "", fmt.Errorf("submit order rejected: %s", submitted.Error)
		}
		return "", fmt.Errorf("submit order rejected: no order id")
	}

	c.log.Info("Order registered", "orderId", submitted.OrderID, "txHash", txHash)
	return submitted.OrderID, nil
}
