package wallet

import (
	"testing"

	"github.com/prophet-exchange/prophet-chat/internal/token"
)

func TestSessionLifecycle(t *testing.T) {
	session := NewSession(&SessionConfig{})

	if session.IsConnected() {
		t.Error("new session should not be connected")
	}
	if _, err := session.Account(); err != ErrNotConnected {
		t.Errorf("Account() on disconnected session = %v, want ErrNotConnected", err)
	}

	session.Connect("kaspa:qq0example")
	if !session.IsConnected() {
		t.Error("session should be connected after Connect")
	}
	account, err := session.Account()
	if err != nil {
		t.Fatalf("Account() error = %v", err)
	}
	if account != "kaspa:qq0example" {
		t.Errorf("Account() = %s, want kaspa:qq0example", account)
	}

	session.Disconnect()
	if session.IsConnected() {
		t.Error("session should not be connected after Disconnect")
	}
	if tokens := session.Tokens(); len(tokens) != 0 {
		t.Errorf("Tokens() after disconnect = %v, want empty", tokens)
	}
}

func TestSessionTokens(t *testing.T) {
	session := NewSession(&SessionConfig{})
	session.Connect("kaspa:qq0example")
	session.SetBalances(
		&Balance{Confirmed: 100000000000, Total: 100000000000},
		[]KRC20Balance{
			{Tick: "PINTL", Balance: "500.00", Dec: "8"},
			{Tick: "NACHO", Balance: "750.00", Dec: "8"},
		},
	)

	tokens := session.Tokens()
	if len(tokens) != 3 {
		t.Fatalf("len(tokens) = %d, want 3", len(tokens))
	}
	if tokens[0].Symbol != token.BaseCurrency {
		t.Errorf("tokens[0].Symbol = %s, want %s", tokens[0].Symbol, token.BaseCurrency)
	}
	if tokens[0].Balance != "1000" {
		t.Errorf("tokens[0].Balance = %s, want 1000", tokens[0].Balance)
	}
	if tokens[1].Symbol != "PINTL" || tokens[2].Symbol != "NACHO" {
		t.Errorf("krc20 tokens = %s, %s, want PINTL, NACHO", tokens[1].Symbol, tokens[2].Symbol)
	}
	if tokens[1].Decimals != 8 {
		t.Errorf("tokens[1].Decimals = %d, want 8", tokens[1].Decimals)
	}
}
