package protocol

// RPC method name constants.
const (
	// System
	MethodConnect = "connect"
	MethodHealth  = "health"
	MethodStatus  = "status"

	// Rooms
	MethodRoomsJoin     = "rooms.join"
	MethodRoomsLeave    = "rooms.leave"
	MethodRoomsSettings = "rooms.settings"

	// Chat
	MethodChatSend    = "chat.send"
	MethodChatAbort   = "chat.abort"
	MethodChatHistory = "chat.history"
)
