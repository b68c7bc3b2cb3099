package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/prophet-exchange/prophet-chat/internal/chat"
	"github.com/prophet-exchange/prophet-chat/internal/event"
	"github.com/prophet-exchange/prophet-chat/internal/flow"
	"github.com/prophet-exchange/prophet-chat/internal/wallet"
	"github.com/prophet-exchange/prophet-chat/pkg/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // the widget embeds on arbitrary pages
	},
}

// Frame is the envelope for every message crossing the socket.
type Frame struct {
	Type string `json:"type"`

	// Inbound fields
	Text    string                `json:"text,omitempty"`
	Action  string                `json:"action,omitempty"`
	Value   string                `json:"value,omitempty"`
	Account string                `json:"account,omitempty"`
	Balance *wallet.Balance       `json:"balance,omitempty"`
	KRC20   []wallet.KRC20Balance `json:"krc20,omitempty"`

	// Wallet-relay fields
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`

	// Outbound chat payload
	Data *chat.MessageData `json:"data,omitempty"`
}

// Client is one connected widget instance.
type Client struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	inbound chan Frame

	// dispatchDone closes when the dispatch loop has drained and reset
	// the controller. The flow state is only ever touched from that
	// goroutine, so teardown must wait on it.
	dispatchDone chan struct{}

	session    *wallet.Session
	controller *flow.Controller
	signer     *remoteSigner
	subs       []*event.Subscription
	log        *logging.Logger

	// closeMu serializes teardown against late bus deliveries.
	closeMu sync.Mutex
	closed  bool
}

// handleWS upgrades the connection and wires a fresh session, signer, and
// controller for the widget.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("WebSocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		id:           uuid.NewString(),
		conn:         conn,
		send:         make(chan []byte, 256),
		inbound:      make(chan Frame, 16),
		dispatchDone: make(chan struct{}),
		log:          s.log,
	}
	client.signer = newRemoteSigner(client)
	client.session = wallet.NewSession(&wallet.SessionConfig{Signer: client.signer})
	client.controller = flow.NewController(&flow.ControllerConfig{
		Service:     s.newService(client.session),
		Store:       s.store,
		Bus:         s.bus,
		ExplorerURL: s.explorerURL,
	})

	client.subs = append(client.subs,
		s.bus.Subscribe(event.TopicMessage, client.forward("message")),
		s.bus.Subscribe(event.TopicError, client.forward("error")),
	)

	s.log.Debug("Widget connected", "client", client.id)

	go client.writePump()
	go client.dispatchLoop()
	go client.readPump()
}

// forward builds a bus handler that pushes chat messages to the socket.
func (c *Client) forward(frameType string) event.Handler {
	return func(msg chat.MessageData) {
		data, err := json.Marshal(Frame{Type: frameType, Data: &msg})
		if err != nil {
			return
		}

		c.closeMu.Lock()
		defer c.closeMu.Unlock()
		if c.closed {
			return
		}
		select {
		case c.send <- data:
		default:
			c.log.Warn("Send buffer full, dropping message", "client", c.id)
		}
	}
}

// enqueue pushes a raw frame to the write pump. Returns false once the
// client has been torn down.
func (c *Client) enqueue(data []byte) bool {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		c.log.Warn("Send buffer full, dropping frame", "client", c.id)
		return false
	}
}

// readPump reads frames from the socket. Wallet responses are resolved
// inline so a flow operation blocked on a signature can complete; chat
// input is handed to the dispatch loop, which serializes it.
func (c *Client) readPump() {
	defer c.teardown()

	c.conn.SetReadLimit(8192)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Debug("WebSocket read error", "client", c.id, "error", err)
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(message, &frame); err != nil {
			c.log.Debug("Dropping malformed frame", "client", c.id, "error", err)
			continue
		}

		switch frame.Type {
		case "wallet_response":
			c.signer.resolve(frame.ID, frame.Result, frame.Error)
		case "connect":
			c.session.Connect(frame.Account)
		case "balances":
			c.session.SetBalances(frame.Balance, frame.KRC20)
		default:
			// Everything touching the flow controller, including the
			// reset on "disconnect", goes through the dispatch loop.
			select {
			case c.inbound <- frame:
			default:
				c.log.Warn("Inbound buffer full, dropping frame", "client", c.id, "type", frame.Type)
			}
		}
	}
}

// dispatchLoop serializes flow operations for this widget. One operation
// runs at a time, matching the one-flow-per-widget model; no other
// goroutine may touch the controller.
func (c *Client) dispatchLoop() {
	defer close(c.dispatchDone)

	ctx := context.Background()
	for frame := range c.inbound {
		switch frame.Type {
		case "command":
			c.controller.HandleCommand(ctx, frame.Text)
		case "action":
			c.controller.HandleAction(ctx, frame.Action, frame.Value)
		case "amount":
			c.controller.HandleAmount(ctx, frame.Value)
		case "disconnect":
			c.session.Disconnect()
			c.controller.Reset()
		default:
			c.log.Debug("Unknown frame type", "client", c.id, "type", frame.Type)
		}
	}

	// Channel closed: the socket is gone, abandon any in-progress flow.
	c.controller.Reset()
}

// writePump writes outbound frames and keeps the connection alive.
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// teardown unwinds everything tied to this widget instance. The signer
// is failed first so a dispatch operation blocked on a wallet call
// returns promptly; the controller reset itself happens on the dispatch
// goroutine once the inbound channel drains.
func (c *Client) teardown() {
	for _, sub := range c.subs {
		sub.Unsubscribe()
	}
	c.signer.close()

	c.closeMu.Lock()
	c.closed = true
	close(c.inbound)
	close(c.send)
	c.closeMu.Unlock()

	<-c.dispatchDone
	c.session.Disconnect()
	c.conn.Close()
	c.log.Debug("Widget disconnected", "client", c.id)
}
