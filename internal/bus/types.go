package bus

import "context"

// InboundMessage is a room message entering the coordination pipeline.
type InboundMessage struct {
	MessageID  string `json:"message_id"`
	RoomID     string `json:"room_id"`
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name"`
	SenderType string `json:"sender_type"` // "user", "bot", "system"
	Content    string `json:"content"`
}

// Event is a server-side event to broadcast to WebSocket clients.
// RoomID scopes delivery; empty means every client.
type Event struct {
	Name    string      `json:"name"`
	RoomID  string      `json:"room_id,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// EventHandler handles a broadcast event.
type EventHandler func(Event)

// EventPublisher abstracts event broadcast + subscription.
// Used by the gateway server and mode strategies to decouple from the
// concrete MessageBus.
type EventPublisher interface {
	Subscribe(id string, handler EventHandler)
	Unsubscribe(id string)
	Broadcast(event Event)
}

// MessageRouter abstracts inbound message flow between the transport and the
// room dispatcher.
type MessageRouter interface {
	PublishInbound(msg InboundMessage)
	ConsumeInbound(ctx context.Context) (InboundMessage, bool)
}
