package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// walletCallTimeout bounds how long a relayed wallet call may sit waiting
// for the user to approve or reject it in the extension.
const walletCallTimeout = 2 * time.Minute

var errSignerClosed = errors.New("wallet channel closed")

type walletResult struct {
	result json.RawMessage
	err    error
}

// remoteSigner relays signing calls to the browser wallet on the other
// end of the widget socket. Each call becomes a wallet_request frame with
// a unique ID; the matching wallet_response resolves it.
type remoteSigner struct {
	client *Client

	mu      sync.Mutex
	pending map[string]chan walletResult
	closed  bool
}

func newRemoteSigner(client *Client) *remoteSigner {
	return &remoteSigner{
		client:  client,
		pending: make(map[string]chan walletResult),
	}
}

// call sends one wallet request and blocks until the widget responds, the
// context ends, or the approval window expires.
func (r *remoteSigner) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal wallet params: %w", err)
	}

	id := uuid.NewString()
	ch := make(chan walletResult, 1)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, errSignerClosed
	}
	r.pending[id] = ch
	r.mu.Unlock()

	frame, err := json.Marshal(Frame{Type: "wallet_request", ID: id, Method: method, Params: paramsJSON})
	if err != nil {
		r.drop(id)
		return nil, err
	}
	if !r.client.enqueue(frame) {
		r.drop(id)
		return nil, errSignerClosed
	}

	select {
	case res := <-ch:
		return res.result, res.err
	case <-ctx.Done():
		r.drop(id)
		return nil, ctx.Err()
	case <-time.After(walletCallTimeout):
		r.drop(id)
		return nil, fmt.Errorf("wallet did not respond to %s", method)
	}
}

// resolve completes a pending call from a wallet_response frame.
func (r *remoteSigner) resolve(id string, result json.RawMessage, errText string) {
	r.mu.Lock()
	ch, ok := r.pending[id]
	delete(r.pending, id)
	r.mu.Unlock()

	if !ok {
		return
	}

	if errText != "" {
		ch <- walletResult{err: errors.New(errText)}
		return
	}
	ch <- walletResult{result: result}
}

func (r *remoteSigner) drop(id string) {
	r.mu.Lock()
	delete(r.pending, id)
	r.mu.Unlock()
}

// close fails every outstanding call.
func (r *remoteSigner) close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	for id, ch := range r.pending {
		ch <- walletResult{err: errSignerClosed}
		delete(r.pending, id)
	}
}

// stringCall unwraps a wallet call whose result is a single JSON string.
func (r *remoteSigner) stringCall(ctx context.Context, method string, params interface{}) (string, error) {
	raw, err := r.call(ctx, method, params)
	if err != nil {
		return "", err
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", fmt.Errorf("unexpected %s result: %w", method, err)
	}
	return value, nil
}

// SendKaspa relays a base-currency transfer to the wallet.
func (r *remoteSigner) SendKaspa(ctx context.Context, toAddress string, amountSompi uint64) (string, error) {
	return r.stringCall(ctx, "sendKaspa", map[string]interface{}{
		"toAddress": toAddress,
		"sompi":     amountSompi,
	})
}

// SendKRC20 relays a KRC-20 transfer inscription to the wallet.
func (r *remoteSigner) SendKRC20(ctx context.Context, tick string, amountSompi uint64, toAddress string, priorityFee float64) (string, error) {
	return r.stringCall(ctx, "sendKRC20", map[string]interface{}{
		"tick":        tick,
		"amountSompi": amountSompi,
		"toAddress":   toAddress,
		"priorityFee": priorityFee,
	})
}

// SignMessage relays a message-signing request to the wallet.
func (r *remoteSigner) SignMessage(ctx context.Context, message string) (string, error) {
	return r.stringCall(ctx, "signMessage", map[string]interface{}{
		"message": message,
	})
}

// PublicKey fetches the connected account's public key from the wallet.
func (r *remoteSigner) PublicKey(ctx context.Context) (string, error) {
	return r.stringCall(ctx, "getPublicKey", map[string]interface{}{})
}
