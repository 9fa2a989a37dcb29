package bus

import (
	"context"
	"log/slog"
	"sync"
)

const inboundBuffer = 256

// MessageBus is the in-process hub connecting the gateway transport to the
// room dispatcher: a buffered inbound queue plus fan-out event broadcast.
type MessageBus struct {
	mu          sync.RWMutex
	subscribers map[string]EventHandler
	inbound     chan InboundMessage
}

// NewMessageBus creates an in-process message bus.
func NewMessageBus() *MessageBus {
	return &MessageBus{
		subscribers: make(map[string]EventHandler),
		inbound:     make(chan InboundMessage, inboundBuffer),
	}
}

// Subscribe registers an event handler under an id, replacing any previous
// handler with the same id.
func (b *MessageBus) Subscribe(id string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[id] = handler
}

// Unsubscribe removes a handler. Safe to call for unknown ids.
func (b *MessageBus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, id)
}

// Broadcast delivers an event to every subscriber. Handlers run on the
// caller's goroutine and must not block.
func (b *MessageBus) Broadcast(event Event) {
	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.subscribers))
	for _, h := range b.subscribers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}

// PublishInbound queues a message for the dispatcher. Drops with a warning
// when the queue is full rather than blocking the transport.
func (b *MessageBus) PublishInbound(msg InboundMessage) {
	select {
	case b.inbound <- msg:
	default:
		slog.Warn("bus.inbound_dropped", "room", msg.RoomID, "sender", msg.SenderID)
	}
}

// ConsumeInbound blocks until a message is available or ctx is done.
// The bool result is false when the context was cancelled.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case msg := <-b.inbound:
		return msg, true
	case <-ctx.Done():
		return InboundMessage{}, false
	}
}
