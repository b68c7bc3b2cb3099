package flow

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/prophet-exchange/prophet-chat/internal/chat"
	"github.com/prophet-exchange/prophet-chat/internal/event"
	"github.com/prophet-exchange/prophet-chat/internal/storage"
	"github.com/prophet-exchange/prophet-chat/internal/token"
)

type fakeService struct {
	tokens    []token.Token
	available map[string]bool
	quote     *token.PriceQuote
	quoteErr  error
	result    *token.SwapResult
	execErr   error

	quoteCalls int
	swapCalls  int
	buyCalls   int

	// onQuote runs while the quote fetch is "in flight", before it returns.
	onQuote func()
}

func (f *fakeService) GetTokens(ctx context.Context) ([]token.Token, error) {
	return f.tokens, nil
}

func (f *fakeService) IsTokenAvailable(ctx context.Context, symbol string) (bool, error) {
	return f.available[symbol], nil
}

func (f *fakeService) GetPriceQuote(ctx context.Context, fromToken, toToken, amount string) (*token.PriceQuote, error) {
	f.quoteCalls++
	if f.onQuote != nil {
		f.onQuote()
	}
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	quote := *f.quote
	quote.FromAmount = amount
	return &quote, nil
}

func (f *fakeService) ExecuteSwap(ctx context.Context, fromToken, toToken string, amount float64) (*token.SwapResult, error) {
	f.swapCalls++
	return f.result, f.execErr
}

func (f *fakeService) ExecuteBuy(ctx context.Context, toToken string, amount float64) (*token.SwapResult, error) {
	f.buyCalls++
	return f.result, f.execErr
}

func (f *fakeService) CheckOrderStatus(ctx context.Context, orderID string) (string, error) {
	return "", nil
}

type recorder struct {
	messages []chat.MessageData
	errors   []chat.MessageData
}

func (r *recorder) last(t *testing.T) chat.MessageData {
	t.Helper()
	if len(r.messages) == 0 {
		t.Fatal("no messages emitted")
	}
	return r.messages[len(r.messages)-1]
}

func newTestController(t *testing.T, svc token.Service) (*Controller, *recorder, *storage.Storage) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "prophet-flow-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store, err := storage.New(&storage.Config{DataDir: tmpDir})
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	bus := event.NewBus()
	rec := &recorder{}
	bus.Subscribe(event.TopicMessage, func(msg chat.MessageData) {
		rec.messages = append(rec.messages, msg)
	})
	bus.Subscribe(event.TopicError, func(msg chat.MessageData) {
		rec.errors = append(rec.errors, msg)
	})

	controller := NewController(&ControllerConfig{
		Service:     svc,
		Store:       store,
		Bus:         bus,
		ExplorerURL: "https://kas.fyi/transaction",
	})

	return controller, rec, store
}

func defaultService() *fakeService {
	return &fakeService{
		tokens: []token.Token{
			{Symbol: "KAS", Balance: "1000", Decimals: 8},
			{Symbol: "PINTL", Balance: "500", Decimals: 8},
			{Symbol: "NACHO", Balance: "750", Decimals: 8},
		},
		available: map[string]bool{"PINTL": true, "NACHO": true},
		quote: &token.PriceQuote{
			ToAmount:     100,
			Slippage:     "1",
			ChainDecimal: 8,
			Fee:          0.5,
		},
		result: &token.SwapResult{Success: true, TxHash: "h1", OrderID: "o1"},
	}
}

func TestSwapFlowHappyPath(t *testing.T) {
	svc := defaultService()
	controller, rec, store := newTestController(t, svc)
	ctx := context.Background()

	controller.HandleCommand(ctx, "/swap")
	msg := rec.last(t)
	if msg.Buttons == nil || msg.Buttons.Type != chat.ButtonsTokenSelect {
		t.Fatalf("expected token_select buttons, got %+v", msg.Buttons)
	}
	if len(msg.Buttons.Tokens) != 3 {
		t.Errorf("from-token list has %d tokens, want 3", len(msg.Buttons.Tokens))
	}
	if controller.State().Step() != StepFromToken {
		t.Errorf("step = %v, want StepFromToken", controller.State().Step())
	}

	controller.HandleAction(ctx, "select-token", "PINTL")
	msg = rec.last(t)
	if msg.Buttons == nil {
		t.Fatal("to-token message should carry buttons")
	}
	for _, tok := range msg.Buttons.Tokens {
		if tok.Symbol == "PINTL" {
			t.Error("to-token list must exclude the chosen from-token")
		}
	}
	if len(msg.Buttons.Tokens) != 2 {
		t.Errorf("to-token list has %d tokens, want 2", len(msg.Buttons.Tokens))
	}

	controller.HandleAction(ctx, "select-token", "NACHO")
	if controller.State().Step() != StepAmount {
		t.Errorf("step = %v, want StepAmount", controller.State().Step())
	}

	controller.HandleAmount(ctx, "25")
	if controller.State().Step() != StepConfirm {
		t.Errorf("step = %v, want StepConfirm", controller.State().Step())
	}
	if controller.State().Quote() == nil {
		t.Fatal("quote should be stored at the confirm step")
	}
	msg = rec.last(t)
	if msg.Buttons == nil || msg.Buttons.Type != chat.ButtonsConfirm {
		t.Errorf("quote message buttons = %+v, want confirm", msg.Buttons)
	}
	if !strings.Contains(msg.Text, "Swap Summary") {
		t.Error("quote message should contain the summary card")
	}

	controller.HandleAction(ctx, "confirm", "")
	if svc.swapCalls != 1 {
		t.Errorf("swapCalls = %d, want 1", svc.swapCalls)
	}

	order, err := store.GetPendingOrder(storage.OrderKey("h1"))
	if err != nil {
		t.Fatalf("GetPendingOrder(order_h1) error = %v", err)
	}
	if order.Status != token.StatusSubmitted {
		t.Errorf("order status = %s, want submitted", order.Status)
	}
	if order.OrderID != "o1" || order.FromToken != "PINTL" || order.ToToken != "NACHO" {
		t.Errorf("order = %+v, want o1 PINTL→NACHO", order)
	}

	if controller.State().Step() != StepNone {
		t.Errorf("step after confirm = %v, want StepNone", controller.State().Step())
	}
	if !strings.Contains(rec.last(t).Text, "Order Submitted Successfully") {
		t.Error("confirmation card should be emitted")
	}
}

func TestBuyBaseCurrencyRejected(t *testing.T) {
	svc := defaultService()
	controller, rec, _ := newTestController(t, svc)

	controller.HandleCommand(context.Background(), "/buy KAS")

	if len(rec.errors) != 1 {
		t.Fatalf("errors = %d, want 1", len(rec.errors))
	}
	if !strings.Contains(rec.errors[0].Text, "base currency") {
		t.Errorf("error = %q, want base currency rejection", rec.errors[0].Text)
	}
	if controller.State().Step() != StepNone {
		t.Errorf("step = %v, want StepNone", controller.State().Step())
	}
	if svc.swapCalls+svc.buyCalls != 0 {
		t.Error("execution must not be called for a rejected buy")
	}
}

func TestBuyUnknownTokenRejected(t *testing.T) {
	svc := defaultService()
	controller, rec, _ := newTestController(t, svc)

	controller.HandleCommand(context.Background(), "/buy DOGE")

	if len(rec.errors) != 1 {
		t.Fatalf("errors = %d, want 1", len(rec.errors))
	}
	if controller.State().Step() != StepNone {
		t.Errorf("step = %v, want StepNone", controller.State().Step())
	}
}

func TestBuyInlineTokenFlow(t *testing.T) {
	svc := defaultService()
	controller, rec, store := newTestController(t, svc)
	ctx := context.Background()

	controller.HandleCommand(ctx, "/buy nacho")
	if controller.State().Step() != StepBuyAmount {
		t.Fatalf("step = %v, want StepBuyAmount", controller.State().Step())
	}
	if !strings.Contains(rec.last(t).Text, "KAS") {
		t.Error("buy-amount prompt should be in the base currency")
	}

	controller.HandleAmount(ctx, "50")
	if controller.State().Step() != StepBuyConfirm {
		t.Fatalf("step = %v, want StepBuyConfirm", controller.State().Step())
	}

	controller.HandleAction(ctx, "confirm", "")
	if svc.buyCalls != 1 || svc.swapCalls != 0 {
		t.Errorf("calls = buy %d swap %d, want buy path only", svc.buyCalls, svc.swapCalls)
	}

	order, err := store.GetPendingOrder(storage.OrderKey("h1"))
	if err != nil {
		t.Fatalf("GetPendingOrder() error = %v", err)
	}
	if order.FromToken != token.BaseCurrency || order.ToToken != "NACHO" {
		t.Errorf("order = %+v, want KAS→NACHO", order)
	}
}

func TestBuyWithoutTokenPromptsSelection(t *testing.T) {
	svc := defaultService()
	controller, rec, _ := newTestController(t, svc)

	controller.HandleCommand(context.Background(), "/buy")
	if controller.State().Step() != StepBuyToken {
		t.Fatalf("step = %v, want StepBuyToken", controller.State().Step())
	}

	msg := rec.last(t)
	if msg.Buttons == nil {
		t.Fatal("buy prompt should carry token buttons")
	}
	for _, tok := range msg.Buttons.Tokens {
		if tok.Symbol == token.BaseCurrency {
			t.Error("buy list must exclude the base currency")
		}
	}
}

func TestInvalidAmountLeavesStep(t *testing.T) {
	svc := defaultService()
	controller, rec, _ := newTestController(t, svc)
	ctx := context.Background()

	controller.HandleCommand(ctx, "/buy NACHO")

	for _, input := range []string{"-5", "0", "abc", "NaN"} {
		controller.HandleAmount(ctx, input)
		if controller.State().Step() != StepBuyAmount {
			t.Errorf("HandleAmount(%q): step = %v, want StepBuyAmount unchanged", input, controller.State().Step())
		}
	}
	if svc.quoteCalls != 0 {
		t.Errorf("quoteCalls = %d, want 0 for invalid input", svc.quoteCalls)
	}
	if len(rec.errors) != 4 {
		t.Errorf("errors = %d, want 4", len(rec.errors))
	}
	for _, e := range rec.errors {
		if !strings.Contains(e.Text, "valid positive number") {
			t.Errorf("error = %q, want valid-positive-number message", e.Text)
		}
	}
}

func TestStaleQuoteDropped(t *testing.T) {
	svc := defaultService()
	controller, _, _ := newTestController(t, svc)
	ctx := context.Background()

	controller.HandleCommand(ctx, "/buy NACHO")

	// The user abandons the flow while the quote fetch is in flight.
	svc.onQuote = func() { controller.Reset() }

	controller.HandleAmount(ctx, "25")
	if controller.State().Step() != StepNone {
		t.Errorf("step = %v, want StepNone (stale quote must not advance the flow)", controller.State().Step())
	}
	if controller.State().Quote() != nil {
		t.Error("stale quote must not be stored")
	}
}

func TestQuoteErrorResetsFlow(t *testing.T) {
	svc := defaultService()
	svc.quoteErr = errors.New("backend down")
	controller, rec, _ := newTestController(t, svc)
	ctx := context.Background()

	controller.HandleCommand(ctx, "/buy NACHO")
	controller.HandleAmount(ctx, "25")

	if controller.State().Step() != StepNone {
		t.Errorf("step = %v, want StepNone after service error", controller.State().Step())
	}
	if len(rec.errors) == 0 {
		t.Error("service error should be reported to the user")
	}
}

func TestExecutionFailureResetsWithoutOrder(t *testing.T) {
	svc := defaultService()
	svc.result = &token.SwapResult{Success: false, Error: "insufficient balance"}
	controller, rec, store := newTestController(t, svc)
	ctx := context.Background()

	controller.HandleCommand(ctx, "/buy NACHO")
	controller.HandleAmount(ctx, "25")
	controller.HandleAction(ctx, "confirm", "")

	if controller.State().Step() != StepNone {
		t.Errorf("step = %v, want StepNone", controller.State().Step())
	}
	if keys, _ := store.ListOrderKeys(); len(keys) != 0 {
		t.Errorf("order keys = %v, want none after a failed execution", keys)
	}
	if !strings.Contains(rec.errors[len(rec.errors)-1].Text, "insufficient balance") {
		t.Error("execution error should carry the underlying reason")
	}
}

func TestCancelResetsFlow(t *testing.T) {
	svc := defaultService()
	controller, rec, _ := newTestController(t, svc)
	ctx := context.Background()

	controller.HandleCommand(ctx, "/buy NACHO")
	controller.HandleAction(ctx, "cancel", "")

	if controller.State().Step() != StepNone {
		t.Errorf("step = %v, want StepNone", controller.State().Step())
	}
	if !strings.Contains(rec.last(t).Text, "cancelled") {
		t.Errorf("message = %q, want cancellation notice", rec.last(t).Text)
	}
}

func TestUnknownActionResets(t *testing.T) {
	svc := defaultService()
	controller, rec, _ := newTestController(t, svc)
	ctx := context.Background()

	controller.HandleCommand(ctx, "/swap")
	controller.HandleAction(ctx, "teleport", "")

	if controller.State().Step() != StepNone {
		t.Errorf("step = %v, want StepNone after unknown action", controller.State().Step())
	}
	if len(rec.errors) == 0 || !strings.Contains(rec.errors[len(rec.errors)-1].Text, "Unknown action") {
		t.Error("unknown action should report an error")
	}
}

func TestUnknownCommandLeavesState(t *testing.T) {
	svc := defaultService()
	controller, rec, _ := newTestController(t, svc)
	ctx := context.Background()

	controller.HandleCommand(ctx, "/swap")
	stepBefore := controller.State().Step()

	controller.HandleCommand(ctx, "hello there")
	if controller.State().Step() != stepBefore {
		t.Errorf("step = %v, want %v unchanged", controller.State().Step(), stepBefore)
	}
	if !strings.Contains(rec.last(t).Text, "Unknown command") {
		t.Errorf("message = %q, want unknown-command hint", rec.last(t).Text)
	}
}

func TestSameTokenSwapRejectedInline(t *testing.T) {
	svc := defaultService()
	controller, _, _ := newTestController(t, svc)
	ctx := context.Background()

	controller.HandleCommand(ctx, "/swap")
	controller.HandleAction(ctx, "select-token", "PINTL")
	controller.HandleAction(ctx, "select-token", "PINTL")

	if controller.State().Step() != StepToToken {
		t.Errorf("step = %v, want StepToToken unchanged", controller.State().Step())
	}
}
