package flow

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/prophet-exchange/prophet-chat/internal/chat"
	"github.com/prophet-exchange/prophet-chat/internal/event"
	"github.com/prophet-exchange/prophet-chat/internal/storage"
	"github.com/prophet-exchange/prophet-chat/internal/token"
	"github.com/prophet-exchange/prophet-chat/pkg/logging"
)

// Controller drives one widget's swap conversation. All entry points catch
// service failures, emit a single user-facing error, and reset the flow so
// it can never be left stuck in an unrecoverable step. Pure input
// rejections (bad amount, unknown command) leave the state untouched so
// the user can retry.
type Controller struct {
	state       *State
	service     token.Service
	store       *storage.Storage
	bus         *event.Bus
	explorerURL string
	log         *logging.Logger
}

// ControllerConfig holds construction parameters for a Controller.
type ControllerConfig struct {
	Service     token.Service
	Store       *storage.Storage
	Bus         *event.Bus
	ExplorerURL string
}

// NewController creates a controller with a fresh flow state.
func NewController(cfg *ControllerConfig) *Controller {
	return &Controller{
		state:       NewState(),
		service:     cfg.Service,
		store:       cfg.Store,
		bus:         cfg.Bus,
		explorerURL: cfg.ExplorerURL,
		log:         logging.GetDefault().Component("flow"),
	}
}

// State exposes the flow state for tests and the transport layer.
func (c *Controller) State() *State { return c.state }

// Reset abandons any in-progress flow. Persisted orders are unaffected.
func (c *Controller) Reset() {
	c.state.Reset()
}

// HandleCommand parses a slash command. Unrecognized text emits a hint
// without touching the flow.
func (c *Controller) HandleCommand(ctx context.Context, text string) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		c.emit(chat.Bot("Unknown command. Try /swap or /buy [TOKEN]."))
		return
	}

	switch strings.ToLower(fields[0]) {
	case "/swap":
		c.startSwap(ctx)
	case "/buy":
		symbol := ""
		if len(fields) > 1 {
			symbol = strings.ToUpper(fields[1])
		}
		c.startBuy(ctx, symbol)
	default:
		c.emit(chat.Bot("Unknown command. Try /swap or /buy [TOKEN]."))
	}
}

// HandleAction dispatches a button action from the widget.
func (c *Controller) HandleAction(ctx context.Context, action, value string) {
	switch action {
	case "select-token":
		c.selectToken(ctx, strings.ToUpper(strings.TrimSpace(value)))
	case "confirm":
		c.confirm(ctx)
	case "cancel":
		c.state.Reset()
		c.emit(chat.Bot("Transaction cancelled."))
	default:
		c.log.Warn("Unknown action", "action", action)
		c.state.Reset()
		c.emitError(fmt.Sprintf("Unknown action: %s", action))
	}
}

// startSwap begins a from→to swap flow with the full token list.
func (c *Controller) startSwap(ctx context.Context) {
	c.state.Reset()

	tokens, err := c.service.GetTokens(ctx)
	if err != nil {
		c.serviceError("Failed to load your tokens.", err)
		return
	}

	c.state.SetStep(StepFromToken)
	c.emit(chat.BotWithButtons("Which token do you want to swap from?", &chat.Buttons{
		Type:   chat.ButtonsTokenSelect,
		Tokens: tokens,
	}))
}

// startBuy begins a buy flow. An inline symbol is validated immediately;
// otherwise the user picks from the list.
func (c *Controller) startBuy(ctx context.Context, symbol string) {
	c.state.Reset()

	if symbol != "" {
		if symbol == token.BaseCurrency {
			c.emitError(fmt.Sprintf("You cannot buy %s directly, it is the base currency. Pick a token to buy with it instead.", token.BaseCurrency))
			return
		}

		gen := c.state.Generation()
		available, err := c.service.IsTokenAvailable(ctx, symbol)
		if err != nil {
			c.serviceError("Failed to check token availability.", err)
			return
		}
		if c.state.Generation() != gen {
			return
		}
		if !available {
			c.emitError(fmt.Sprintf("Token %s is not available for trading.", symbol))
			return
		}

		c.state.SetToToken(symbol)
		c.state.SetStep(StepBuyAmount)
		c.emit(chat.Bot(fmt.Sprintf("How much %s do you want to spend on %s?", token.BaseCurrency, symbol)))
		return
	}

	tokens, err := c.service.GetTokens(ctx)
	if err != nil {
		c.serviceError("Failed to load the token list.", err)
		return
	}

	c.state.SetStep(StepBuyToken)
	c.emit(chat.BotWithButtons("Which token do you want to buy?", &chat.Buttons{
		Type:   chat.ButtonsTokenSelect,
		Tokens: excludeToken(tokens, token.BaseCurrency),
	}))
}

// selectToken advances the token-selection sub-flow. The transition depends
// entirely on the current step; any other step means the UI and the flow
// have desynced, so the flow resets.
func (c *Controller) selectToken(ctx context.Context, symbol string) {
	switch c.state.Step() {
	case StepFromToken:
		c.state.SetFromToken(symbol)
		c.state.SetStep(StepToToken)

		gen := c.state.Generation()
		tokens, err := c.service.GetTokens(ctx)
		if err != nil {
			c.serviceError("Failed to load the token list.", err)
			return
		}
		if c.state.Generation() != gen {
			return
		}

		c.emit(chat.BotWithButtons(fmt.Sprintf("Swapping from %s. Which token do you want to receive?", symbol), &chat.Buttons{
			Type:   chat.ButtonsTokenSelect,
			Tokens: excludeToken(tokens, symbol),
		}))

	case StepToToken:
		if symbol == c.state.FromToken() {
			c.emitError("You cannot swap a token for itself. Pick a different token.")
			return
		}
		c.state.SetToToken(symbol)
		c.state.SetStep(StepAmount)
		c.emit(chat.Bot(fmt.Sprintf("How much %s do you want to swap?", c.state.FromToken())))

	case StepBuyToken:
		if symbol == token.BaseCurrency {
			c.emitError(fmt.Sprintf("You cannot buy %s directly, it is the base currency.", token.BaseCurrency))
			return
		}
		c.state.SetToToken(symbol)
		c.state.SetStep(StepBuyAmount)
		c.emit(chat.Bot(fmt.Sprintf("How much %s do you want to spend on %s?", token.BaseCurrency, symbol)))

	default:
		c.log.Warn("Token selected outside a selection step", "step", c.state.Step())
		c.state.Reset()
		c.emitError("That selection is no longer valid. Start over with /swap or /buy.")
	}
}

// HandleAmount validates a spend amount, fetches a quote, and advances to
// the matching confirm step. Invalid input never mutates the flow.
func (c *Controller) HandleAmount(ctx context.Context, amountText string) {
	step := c.state.Step()
	if step != StepAmount && step != StepBuyAmount {
		c.log.Warn("Amount received outside an amount step", "step", step)
		c.state.Reset()
		c.emitError("I wasn't expecting an amount. Start over with /swap or /buy.")
		return
	}

	amount, err := strconv.ParseFloat(strings.TrimSpace(amountText), 64)
	if err != nil || math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		c.emitError("Please enter a valid positive number.")
		return
	}

	fromToken := c.state.FromToken()
	toToken := c.state.ToToken()
	nextStep := StepConfirm
	if step == StepBuyAmount {
		fromToken = token.BaseCurrency
		nextStep = StepBuyConfirm
	}

	gen := c.state.Generation()
	quote, err := c.service.GetPriceQuote(ctx, fromToken, toToken, amountText)
	if err != nil {
		c.serviceError("Failed to fetch a quote. Please try again.", err)
		return
	}
	if c.state.Generation() != gen {
		c.log.Debug("Dropping stale quote", "fromToken", fromToken, "toToken", toToken)
		return
	}

	c.state.SetFromToken(fromToken)
	c.state.SetAmount(amount)
	c.state.SetQuote(quote)
	c.state.SetStep(nextStep)

	c.emit(chat.BotWithButtons(chat.QuoteCard(fromToken, toToken, quote), &chat.Buttons{
		Type:   chat.ButtonsConfirm,
		Action: "confirm",
	}))
}

// confirm executes the trade. Whatever the outcome, the flow resets:
// confirmation is a one-shot action per flow instance.
func (c *Controller) confirm(ctx context.Context) {
	step := c.state.Step()
	if step != StepConfirm && step != StepBuyConfirm {
		c.log.Warn("Confirm received outside a confirm step", "step", step)
		c.state.Reset()
		c.emitError("There is nothing to confirm. Start over with /swap or /buy.")
		return
	}

	snap := c.state.Snapshot()
	defer c.state.Reset()

	var (
		result *token.SwapResult
		err    error
	)
	if step == StepBuyConfirm {
		result, err = c.service.ExecuteBuy(ctx, snap.ToToken, snap.Amount)
	} else {
		result, err = c.service.ExecuteSwap(ctx, snap.FromToken, snap.ToToken, snap.Amount)
	}
	if err != nil {
		c.serviceError("Swap execution failed. Please try again.", err)
		return
	}
	if !result.Success || result.OrderID == "" {
		reason := result.Error
		if reason == "" {
			reason = "the order was not accepted"
		}
		c.log.Warn("Execution rejected", "reason", reason, "txHash", result.TxHash)
		c.emitError(fmt.Sprintf("Swap failed: %s", reason))
		return
	}

	order := &storage.PendingOrder{
		TxHash:      result.TxHash,
		FromToken:   snap.FromToken,
		ToToken:     snap.ToToken,
		Amount:      snap.Amount,
		ToAmount:    snap.Quote.ToAmount,
		Status:      token.StatusSubmitted,
		OrderID:     result.OrderID,
		LastChecked: time.Now().UnixMilli(),
	}
	if err := c.store.SavePendingOrder(order); err != nil {
		// The order exists on the backend either way; reconciliation just
		// cannot track it. Tell the user the submission succeeded.
		c.log.Error("Failed to persist pending order", "orderId", result.OrderID, "error", err)
	}

	txLink := chat.TransactionLink(c.explorerURL, result.TxHash)
	c.emit(chat.Bot(chat.ConfirmationCard(result.OrderID, snap.Amount, snap.FromToken, snap.Quote.ToAmount, snap.ToToken, txLink)))
}

func (c *Controller) emit(msg chat.MessageData) {
	c.bus.Publish(event.TopicMessage, msg)
}

func (c *Controller) emitError(text string) {
	c.bus.Publish(event.TopicError, chat.Bot(text))
}

// serviceError logs the underlying failure, reports a single user-facing
// message, and resets the flow.
func (c *Controller) serviceError(userText string, err error) {
	c.log.Error("Token service call failed", "error", err)
	c.state.Reset()
	c.emitError(userText)
}

// excludeToken filters one symbol out of a token list.
func excludeToken(tokens []token.Token, symbol string) []token.Token {
	filtered := make([]token.Token, 0, len(tokens))
	for _, t := range tokens {
		if t.Symbol != symbol {
			filtered = append(filtered, t)
		}
	}
	return filtered
}
