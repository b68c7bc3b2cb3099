// Package reconcile polls persisted pending orders against the backend
// until each reaches a terminal status, announcing transitions to the
// chat surface along the way.
package reconcile

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prophet-exchange/prophet-chat/internal/chat"
	"github.com/prophet-exchange/prophet-chat/internal/event"
	"github.com/prophet-exchange/prophet-chat/internal/storage"
	"github.com/prophet-exchange/prophet-chat/internal/token"
	"github.com/prophet-exchange/prophet-chat/pkg/logging"
)

// DefaultInterval is the poll period between reconciliation cycles.
const DefaultInterval = 10 * time.Second

// Engine is the background order-status poller. Orders live in durable
// storage keyed by transaction hash, so a fresh process picks up the same
// in-flight set on its first cycle.
type Engine struct {
	store       *storage.Storage
	service     token.Service
	bus         *event.Bus
	explorerURL string
	interval    time.Duration
	log         *logging.Logger

	// announced dedups (orderId, status) pairs within this process;
	// entries are dropped when the order resolves.
	announced map[string]bool

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// EngineConfig holds construction parameters for an Engine.
type EngineConfig struct {
	Store       *storage.Storage
	Service     token.Service
	Bus         *event.Bus
	ExplorerURL string

	// Interval between poll cycles. Default DefaultInterval.
	Interval time.Duration
}

// NewEngine creates a reconciliation engine.
func NewEngine(cfg *EngineConfig) *Engine {
	interval := cfg.Interval
	if interval == 0 {
		interval = DefaultInterval
	}

	return &Engine{
		store:       cfg.Store,
		service:     cfg.Service,
		bus:         cfg.Bus,
		explorerURL: cfg.ExplorerURL,
		interval:    interval,
		log:         logging.GetDefault().Component("reconcile"),
		announced:   make(map[string]bool),
	}
}

// Start launches the poll loop. The first cycle runs immediately so
// restarts resume tracking without waiting a full interval.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return fmt.Errorf("reconciliation engine already running")
	}

	ctx, e.cancel = context.WithCancel(ctx)
	e.running = true

	e.wg.Add(1)
	go e.run(ctx)

	e.log.Info("Order reconciliation started", "interval", e.interval)
	return nil
}

// Stop halts the poll loop and waits for the current cycle to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	cancel := e.cancel
	e.mu.Unlock()

	cancel()
	e.wg.Wait()
	e.log.Info("Order reconciliation stopped")
}

func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.cycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.cycle(ctx)
		}
	}
}

// cycle processes every persisted pending order once. Failures are
// isolated per order; a bad record or a failed status query never aborts
// the rest of the batch.
func (e *Engine) cycle(ctx context.Context) {
	keys, err := e.store.ListOrderKeys()
	if err != nil {
		e.log.Error("Failed to list pending orders", "error", err)
		return
	}

	for _, key := range keys {
		if ctx.Err() != nil {
			return
		}
		if err := e.processOrder(ctx, key); err != nil {
			e.log.Warn("Order reconciliation failed, will retry next cycle", "key", key, "error", err)
		}
	}
}

// processOrder polls one order and advances it. A corrupt stored record is
// left in place and retried next cycle.
func (e *Engine) processOrder(ctx context.Context, key string) error {
	order, err := e.store.GetPendingOrder(key)
	if err != nil {
		return err
	}

	status, err := e.service.CheckOrderStatus(ctx, order.OrderID)
	if err != nil {
		return fmt.Errorf("status query for order %s: %w", order.OrderID, err)
	}

	announceKey := order.OrderID + "_" + status
	shouldAnnounce := status != order.Status &&
		status != token.StatusUnknown &&
		status != order.LastAnnounced &&
		!e.announced[announceKey]

	if shouldAnnounce {
		txLink := chat.TransactionLink(e.explorerURL, order.TxHash)
		text := chat.StatusMessage(status, order.Amount, order.FromToken, order.ToToken, order.ToAmount, txLink)
		e.bus.Publish(event.TopicMessage, chat.Bot(text))
		e.announced[announceKey] = true
		e.log.Info("Order status changed", "orderId", order.OrderID, "from", order.Status, "to", status)
	}

	if token.IsTerminalStatus(status) {
		e.dropAnnounced(order.OrderID)
		if err := e.store.DeletePendingOrder(key); err != nil {
			return fmt.Errorf("delete resolved order %s: %w", key, err)
		}
		return nil
	}

	// The unknown sentinel carries no information, so the stored status
	// is kept for the next comparison.
	if status != token.StatusUnknown && status != "" {
		order.Status = status
	}
	if shouldAnnounce {
		order.LastAnnounced = status
	}
	order.LastChecked = time.Now().UnixMilli()

	return e.store.SavePendingOrder(order)
}

// dropAnnounced clears the dedup entries for a resolved order.
func (e *Engine) dropAnnounced(orderID string) {
	prefix := orderID + "_"
	for key := range e.announced {
		if strings.HasPrefix(key, prefix) {
			delete(e.announced, key)
		}
	}
}
