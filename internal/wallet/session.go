// Package wallet holds the per-widget wallet session context. Key handling
// and transaction signing live in the user's wallet extension; the daemon
// only sees the Signer boundary.
package wallet

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/prophet-exchange/prophet-chat/internal/token"
	"github.com/prophet-exchange/prophet-chat/pkg/helpers"
)

// Wallet errors.
var ErrNotConnected = errors.New("no account connected")

// Signer is the wallet-extension boundary. Implementations relay the calls
// to the connected browser wallet; tests use fakes.
type Signer interface {
	// SendKaspa sends amountSompi of KAS to an address and returns the
	// transaction ID.
	SendKaspa(ctx context.Context, toAddress string, amountSompi uint64) (string, error)

	// SendKRC20 submits a KRC-20 transfer inscription and returns the
	// reveal transaction ID.
	SendKRC20(ctx context.Context, tick string, amountSompi uint64, toAddress string, priorityFee float64) (string, error)

	// SignMessage signs an order message hash.
	SignMessage(ctx context.Context, message string) (string, error)

	// PublicKey returns the connected account's public key.
	PublicKey(ctx context.Context) (string, error)
}

// Balance is the session's base-currency balance in sompi.
type Balance struct {
	Confirmed   uint64 `json:"confirmed"`
	Unconfirmed uint64 `json:"unconfirmed"`
	Total       uint64 `json:"total"`
}

// KRC20Balance is one token balance as reported by the wallet.
type KRC20Balance struct {
	Tick    string `json:"tick"`
	Balance string `json:"balance"`
	Dec     string `json:"dec"`
	Locked  string `json:"locked"`
}

// Session is the explicitly owned wallet context for one widget instance.
// It is constructed on attach and torn down on detach; nothing here is a
// process-wide singleton.
type Session struct {
	mu sync.RWMutex

	signer    Signer
	account   string
	connected bool
	balance   *Balance
	krc20     []KRC20Balance
}

// SessionConfig holds construction parameters for a Session.
type SessionConfig struct {
	Signer Signer
}

// NewSession creates a disconnected session.
func NewSession(cfg *SessionConfig) *Session {
	return &Session{signer: cfg.Signer}
}

// Connect binds the session to an account.
func (s *Session) Connect(account string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.account = account
	s.connected = account != ""
}

// Disconnect clears the session state.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.account = ""
	s.connected = false
	s.balance = nil
	s.krc20 = nil
}

// IsConnected reports whether an account is bound.
func (s *Session) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Account returns the connected account address.
func (s *Session) Account() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected {
		return "", ErrNotConnected
	}
	return s.account, nil
}

// Signer returns the wallet signer.
func (s *Session) Signer() Signer {
	return s.signer
}

// SetBalances stores the latest balances pushed by the wallet.
func (s *Session) SetBalances(balance *Balance, krc20 []KRC20Balance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balance = balance
	s.krc20 = append([]KRC20Balance(nil), krc20...)
}

// Tokens builds the token list for the session: the base currency followed
// by every KRC-20 balance the wallet reported.
func (s *Session) Tokens() []token.Token {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tokens []token.Token
	if s.balance != nil {
		tokens = append(tokens, token.Token{
			Symbol:   token.BaseCurrency,
			Balance:  helpers.SompiToKAS(s.balance.Total),
			Decimals: helpers.KaspaDecimals,
		})
	}

	for _, b := range s.krc20 {
		decimals, err := strconv.Atoi(b.Dec)
		if err != nil {
			decimals = helpers.KaspaDecimals
		}
		tokens = append(tokens, token.Token{
			Symbol:   b.Tick,
			Balance:  b.Balance,
			Decimals: decimals,
		})
	}

	return tokens
}
