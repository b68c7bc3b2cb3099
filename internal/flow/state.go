// Package flow implements the conversational swap flow: a strict linear
// step tracker plus the controller that drives it from user commands.
package flow

import "github.com/prophet-exchange/prophet-chat/internal/token"

// Step is the current position within a swap or buy conversation.
type Step int

const (
	StepNone Step = iota
	StepFromToken
	StepToToken
	StepAmount
	StepConfirm
	StepBuyToken
	StepBuyAmount
	StepBuyConfirm
)

// String returns the step name for logs.
func (s Step) String() string {
	switch s {
	case StepNone:
		return "none"
	case StepFromToken:
		return "from_token"
	case StepToToken:
		return "to_token"
	case StepAmount:
		return "amount"
	case StepConfirm:
		return "confirm"
	case StepBuyToken:
		return "buy_token"
	case StepBuyAmount:
		return "buy_amount"
	case StepBuyConfirm:
		return "buy_confirm"
	}
	return "unknown"
}

// State tracks one in-progress flow. It is a pure data holder owned by a
// single controller; validation lives in the controller, and the UI layer
// serializes operations, so no locking happens here.
type State struct {
	step       Step
	fromToken  string
	toToken    string
	amount     float64
	quote      *token.PriceQuote
	generation uint64
}

// Snapshot is an immutable copy of the flow state. The quote is copied so
// callers cannot reach back into the live state.
type Snapshot struct {
	Step      Step
	FromToken string
	ToToken   string
	Amount    float64
	Quote     *token.PriceQuote
}

// NewState creates a flow state positioned at StepNone.
func NewState() *State {
	return &State{}
}

// Step returns the current step.
func (s *State) Step() Step { return s.step }

// SetStep advances the flow to a step.
func (s *State) SetStep(step Step) { s.step = step }

// FromToken returns the selected source token, or "" if unset.
func (s *State) FromToken() string { return s.fromToken }

// SetFromToken stores the source token.
func (s *State) SetFromToken(symbol string) { s.fromToken = symbol }

// ToToken returns the selected target token, or "" if unset.
func (s *State) ToToken() string { return s.toToken }

// SetToToken stores the target token.
func (s *State) SetToToken(symbol string) { s.toToken = symbol }

// Amount returns the validated spend amount, or 0 if unset.
func (s *State) Amount() float64 { return s.amount }

// SetAmount stores a validated spend amount.
func (s *State) SetAmount(amount float64) { s.amount = amount }

// Quote returns the stored quote, or nil outside a confirm step.
func (s *State) Quote() *token.PriceQuote { return s.quote }

// SetQuote stores the quote snapshot for the confirm step.
func (s *State) SetQuote(quote *token.PriceQuote) { s.quote = quote }

// Generation returns the current flow generation. The counter advances on
// every Reset, so a caller that captured it before suspending on a network
// call can detect that its flow was abandoned mid-flight.
func (s *State) Generation() uint64 { return s.generation }

// Reset clears every field back to the initial values and advances the
// generation. Idempotent apart from the counter.
func (s *State) Reset() {
	s.step = StepNone
	s.fromToken = ""
	s.toToken = ""
	s.amount = 0
	s.quote = nil
	s.generation++
}

// Snapshot returns an immutable copy of the current state.
func (s *State) Snapshot() Snapshot {
	snap := Snapshot{
		Step:      s.step,
		FromToken: s.fromToken,
		ToToken:   s.toToken,
		Amount:    s.amount,
	}
	if s.quote != nil {
		quote := *s.quote
		snap.Quote = &quote
	}
	return snap
}
