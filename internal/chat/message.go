// Package chat defines the message envelope the core emits to the widget
// presentation layer, plus the rich HTML fragments for quote and order
// cards. The widget renders core-authored HTML as-is, so everything
// user-derived is escaped here.
package chat

import (
	"fmt"
	"html"
	"sync/atomic"
	"time"

	"github.com/prophet-exchange/prophet-chat/internal/token"
)

// MessageType distinguishes user-originated from bot-originated messages.
type MessageType string

const (
	MessageTypeUser MessageType = "user"
	MessageTypeBot  MessageType = "bot"
)

// ButtonsType enumerates the interactive affordances a message may carry.
type ButtonsType string

const (
	ButtonsTokenSelect   ButtonsType = "token_select"
	ButtonsConfirm       ButtonsType = "confirm"
	ButtonsConnectWallet ButtonsType = "connect_wallet"
	ButtonsQuickBuy      ButtonsType = "quick_buy"
)

// Buttons describes the interactive controls attached to a message.
type Buttons struct {
	Type    ButtonsType   `json:"type"`
	Tokens  []token.Token `json:"tokens,omitempty"`
	Action  string        `json:"action,omitempty"`
	Symbol  string        `json:"symbol,omitempty"`
}

// MessageData is one chat message delivered to the presentation layer.
type MessageData struct {
	ID      int64       `json:"id"`
	Type    MessageType `json:"type"`
	Text    string      `json:"text"`
	Buttons *Buttons    `json:"buttons,omitempty"`
}

// lastID guarantees strictly increasing message IDs even when two messages
// land in the same millisecond.
var lastID atomic.Int64

// NextID returns a unique, time-ordered message ID.
func NextID() int64 {
	now := time.Now().UnixMilli()
	for {
		last := lastID.Load()
		if now <= last {
			now = last + 1
		}
		if lastID.CompareAndSwap(last, now) {
			return now
		}
	}
}

// Bot builds a plain bot message.
func Bot(text string) MessageData {
	return MessageData{ID: NextID(), Type: MessageTypeBot, Text: text}
}

// BotWithButtons builds a bot message with attached controls.
func BotWithButtons(text string, buttons *Buttons) MessageData {
	return MessageData{ID: NextID(), Type: MessageTypeBot, Text: text, Buttons: buttons}
}

// TransactionLink renders the explorer anchor for a transaction hash.
func TransactionLink(explorerURL, txHash string) string {
	return fmt.Sprintf(`🔎 <a href="%s/%s">View Transaction</a>`, explorerURL, html.EscapeString(txHash))
}
