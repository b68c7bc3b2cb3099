// Package event provides the typed publish/subscribe bus connecting the
// swap flow and the reconciliation engine to the presentation layer.
package event

import (
	"sync"

	"github.com/prophet-exchange/prophet-chat/internal/chat"
)

// Topic identifies a stream of messages on the bus.
type Topic string

const (
	// TopicMessage carries normal conversation messages.
	TopicMessage Topic = "message"
	// TopicError carries user-facing error messages.
	TopicError Topic = "error"
)

// Handler receives published messages for a topic.
type Handler func(msg chat.MessageData)

// Subscription represents an active handler registration. Callers must
// Unsubscribe on teardown so handlers never leak across widget instances.
type Subscription struct {
	bus   *Bus
	topic Topic
	id    uint64
}

// Unsubscribe removes the handler from the bus. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.bus == nil {
		return
	}
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if handlers, ok := s.bus.handlers[s.topic]; ok {
		delete(handlers, s.id)
	}
}

// Bus is a minimal in-process event bus. Delivery is synchronous and in
// registration order; handlers must not block.
type Bus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[Topic]map[uint64]Handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[Topic]map[uint64]Handler)}
}

// Subscribe registers a handler for a topic.
func (b *Bus) Subscribe(topic Topic, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	if b.handlers[topic] == nil {
		b.handlers[topic] = make(map[uint64]Handler)
	}
	b.handlers[topic][b.nextID] = handler

	return &Subscription{bus: b, topic: topic, id: b.nextID}
}

// Publish delivers msg to every handler subscribed to topic.
func (b *Bus) Publish(topic Topic, msg chat.MessageData) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers[topic]))
	for _, h := range b.handlers[topic] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(msg)
	}
}
