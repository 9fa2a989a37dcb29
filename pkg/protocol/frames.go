package protocol

import "encoding/json"

// ProtocolVersion is bumped on breaking wire changes.
const ProtocolVersion = 1

// Request is an RPC call from a client.
type Request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response answers a Request, matched by ID.
type Response struct {
	ID      string      `json:"id"`
	OK      bool        `json:"ok"`
	Payload interface{} `json:"payload,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// EventFrame is a server-pushed event. RoomID scopes delivery: frames with a
// room id are only delivered to clients joined to that room.
type EventFrame struct {
	Type    string      `json:"type"` // always "event"
	Name    string      `json:"name"`
	RoomID  string      `json:"room_id,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// NewEvent builds a room-scoped event frame.
func NewEvent(name, roomID string, payload interface{}) *EventFrame {
	return &EventFrame{Type: "event", Name: name, RoomID: roomID, Payload: payload}
}
