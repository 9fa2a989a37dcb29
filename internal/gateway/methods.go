package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/roomcast/internal/bus"
	"github.com/nextlevelbuilder/roomcast/internal/store"
	"github.com/nextlevelbuilder/roomcast/pkg/protocol"
)

// HandlerFunc handles one RPC method for a client.
type HandlerFunc func(ctx context.Context, c *Client, req protocol.Request) protocol.Response

// MethodRouter dispatches RPC requests by method name. connect and health
// are the only methods allowed before authentication.
type MethodRouter struct {
	server   *Server
	handlers map[string]HandlerFunc
}

// NewMethodRouter creates the router with the full method surface
// registered.
func NewMethodRouter(s *Server) *MethodRouter {
	r := &MethodRouter{server: s, handlers: make(map[string]HandlerFunc)}

	r.Register(protocol.MethodConnect, r.handleConnect)
	r.Register(protocol.MethodHealth, r.handleHealth)
	r.Register(protocol.MethodStatus, r.handleStatus)
	r.Register(protocol.MethodRoomsJoin, r.handleRoomsJoin)
	r.Register(protocol.MethodRoomsLeave, r.handleRoomsLeave)
	r.Register(protocol.MethodRoomsSettings, r.handleRoomsSettings)
	r.Register(protocol.MethodChatSend, r.handleChatSend)
	r.Register(protocol.MethodChatAbort, r.handleChatAbort)
	r.Register(protocol.MethodChatHistory, r.handleChatHistory)

	return r
}

// Register binds a handler to a method name.
func (r *MethodRouter) Register(method string, h HandlerFunc) {
	r.handlers[method] = h
}

// Handle dispatches one request and returns its response.
func (r *MethodRouter) Handle(ctx context.Context, c *Client, req protocol.Request) protocol.Response {
	h, ok := r.handlers[req.Method]
	if !ok {
		return errResponse(req, "unknown method: "+req.Method)
	}

	if r.server.cfg.Gateway.Token != "" && !c.Authenticated() {
		switch req.Method {
		case protocol.MethodConnect, protocol.MethodHealth:
		default:
			return errResponse(req, "not authenticated; call connect first")
		}
	}

	return h(ctx, c, req)
}

func okResponse(req protocol.Request, payload interface{}) protocol.Response {
	return protocol.Response{ID: req.ID, OK: true, Payload: payload}
}

func errResponse(req protocol.Request, msg string) protocol.Response {
	return protocol.Response{ID: req.ID, OK: false, Error: msg}
}

func (r *MethodRouter) handleConnect(ctx context.Context, c *Client, req protocol.Request) protocol.Response {
	var params struct {
		Token string `json:"token"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}

	if token := r.server.cfg.Gateway.Token; token != "" && params.Token != token {
		slog.Warn("security.auth_rejected", "client", c.id)
		return errResponse(req, "invalid token")
	}

	c.setAuthenticated()
	return okResponse(req, map[string]interface{}{
		"client_id": c.id,
		"protocol":  protocol.ProtocolVersion,
	})
}

func (r *MethodRouter) handleHealth(ctx context.Context, c *Client, req protocol.Request) protocol.Response {
	return okResponse(req, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int(time.Since(r.server.startedAt).Seconds()),
	})
}

func (r *MethodRouter) handleStatus(ctx context.Context, c *Client, req protocol.Request) protocol.Response {
	rooms := map[string]interface{}{}
	for _, roomID := range r.server.registry.Active() {
		orch, ok := r.server.registry.Get(roomID)
		if !ok {
			continue
		}
		rooms[roomID] = map[string]interface{}{
			"mode":         orch.Settings().ResponseMode,
			"bots":         len(orch.Roster()),
			"active_turns": r.server.supervisor.Active(roomID),
		}
	}
	return okResponse(req, map[string]interface{}{
		"protocol": protocol.ProtocolVersion,
		"rooms":    rooms,
	})
}

// handleRoomsJoin starts (or attaches to) a room session: the room record
// is created on first join, supplied bots are persisted, and every
// persisted bot is registered with the room's orchestrator.
func (r *MethodRouter) handleRoomsJoin(ctx context.Context, c *Client, req protocol.Request) protocol.Response {
	var params struct {
		RoomID string      `json:"room_id"`
		Name   string      `json:"name,omitempty"`
		Bots   []store.Bot `json:"bots,omitempty"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}
	if params.RoomID == "" {
		return errResponse(req, "room_id is required")
	}
	if c.InRoom(params.RoomID) {
		return errResponse(req, "already joined")
	}

	room, err := r.server.stores.Rooms.GetRoom(ctx, params.RoomID)
	if errors.Is(err, store.ErrNotFound) {
		room = &store.Room{
			ID:       params.RoomID,
			Name:     params.Name,
			Settings: r.server.cfg.Rooms,
		}
		if err := r.server.stores.Rooms.UpsertRoom(ctx, room); err != nil {
			slog.Error("rooms.join create failed", "room", params.RoomID, "error", err)
			return errResponse(req, "failed to create room")
		}
	} else if err != nil {
		slog.Error("rooms.join load failed", "room", params.RoomID, "error", err)
		return errResponse(req, "failed to load room")
	}

	for i := range params.Bots {
		b := params.Bots[i]
		b.RoomID = params.RoomID
		if b.ID == "" || b.Name == "" {
			return errResponse(req, "bots require id and name")
		}
		if err := r.server.stores.Rooms.UpsertBot(ctx, &b); err != nil {
			slog.Error("rooms.join bot upsert failed", "room", params.RoomID, "bot", b.ID, "error", err)
			return errResponse(req, "failed to register bot "+b.ID)
		}
	}

	orch := r.server.registry.GetOrCreate(params.RoomID, &room.Settings)
	bots, err := r.server.stores.Rooms.ListBots(ctx, params.RoomID)
	if err != nil {
		slog.Error("rooms.join bot list failed", "room", params.RoomID, "error", err)
		return errResponse(req, "failed to load bots")
	}
	for _, b := range bots {
		orch.RegisterBot(b)
	}

	c.JoinRoom(params.RoomID)
	r.server.acquireRoom(params.RoomID)

	return okResponse(req, map[string]interface{}{
		"room": room,
		"bots": bots,
	})
}

func (r *MethodRouter) handleRoomsLeave(ctx context.Context, c *Client, req protocol.Request) protocol.Response {
	var params struct {
		RoomID string `json:"room_id"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}
	if !c.LeaveRoom(params.RoomID) {
		return errResponse(req, "not in room")
	}
	r.server.releaseRoom(params.RoomID)
	return okResponse(req, map[string]interface{}{"left": params.RoomID})
}

// handleRoomsSettings updates room settings at runtime: persisted first,
// then applied to the live orchestrator if the room has an active session.
func (r *MethodRouter) handleRoomsSettings(ctx context.Context, c *Client, req protocol.Request) protocol.Response {
	var params struct {
		RoomID   string             `json:"room_id"`
		Settings store.RoomSettings `json:"settings"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}
	if !c.InRoom(params.RoomID) {
		return errResponse(req, "not in room")
	}

	if err := r.server.stores.Rooms.UpdateSettings(ctx, params.RoomID, params.Settings); err != nil {
		slog.Error("rooms.settings persist failed", "room", params.RoomID, "error", err)
		return errResponse(req, "failed to update settings")
	}

	if orch, ok := r.server.registry.Get(params.RoomID); ok {
		prev := orch.Settings()
		orch.SetSettings(params.Settings)
		if interviewConfigChanged(prev, params.Settings) {
			orch.Interview.Reset()
		}
	}

	return okResponse(req, map[string]interface{}{"room_id": params.RoomID})
}

func interviewConfigChanged(prev, next store.RoomSettings) bool {
	return prev.InterviewerBotID != next.InterviewerBotID ||
		prev.InterviewHandoff != next.InterviewHandoff ||
		prev.InterviewMaxQuestions != next.InterviewMaxQuestions
}

// handleChatSend persists the message, broadcasts it to the room, and
// queues it for the dispatcher. The turn pipeline runs asynchronously; the
// response only acknowledges acceptance.
func (r *MethodRouter) handleChatSend(ctx context.Context, c *Client, req protocol.Request) protocol.Response {
	var params struct {
		RoomID     string `json:"room_id"`
		Content    string `json:"content"`
		SenderName string `json:"sender_name,omitempty"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}
	if !c.InRoom(params.RoomID) {
		return errResponse(req, "not in room")
	}
	if params.Content == "" {
		return errResponse(req, "content is required")
	}
	if !r.server.rateLimiter.Allow(c.id) {
		return errResponse(req, "rate limit exceeded")
	}

	senderName := params.SenderName
	if senderName == "" {
		senderName = "user"
	}
	msg := &store.Message{
		ID:         uuid.Must(uuid.NewV7()),
		RoomID:     params.RoomID,
		SenderID:   c.id,
		SenderName: senderName,
		SenderType: "user",
		Content:    params.Content,
	}
	if err := r.server.stores.Messages.AppendMessage(ctx, msg); err != nil {
		slog.Error("chat.send persist failed", "room", params.RoomID, "error", err)
		return errResponse(req, "failed to store message")
	}

	r.server.events.Broadcast(bus.Event{
		Name:    protocol.EventChatMessage,
		RoomID:  params.RoomID,
		Payload: msg,
	})

	r.server.inbound.PublishInbound(bus.InboundMessage{
		MessageID:  msg.ID.String(),
		RoomID:     msg.RoomID,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		SenderType: msg.SenderType,
		Content:    msg.Content,
	})

	return okResponse(req, map[string]interface{}{"message_id": msg.ID})
}

// handleChatAbort cancels in-flight turns: one bot's turn when bot_id is
// given, otherwise every task in the room.
func (r *MethodRouter) handleChatAbort(ctx context.Context, c *Client, req protocol.Request) protocol.Response {
	var params struct {
		RoomID string `json:"room_id"`
		BotID  string `json:"bot_id,omitempty"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}
	if !c.InRoom(params.RoomID) {
		return errResponse(req, "not in room")
	}

	if params.BotID != "" {
		cancelled := r.server.supervisor.Cancel(params.RoomID, params.BotID)
		return okResponse(req, map[string]interface{}{"cancelled": cancelled})
	}
	r.server.supervisor.CancelRoom(params.RoomID)
	return okResponse(req, map[string]interface{}{"cancelled": true})
}

func (r *MethodRouter) handleChatHistory(ctx context.Context, c *Client, req protocol.Request) protocol.Response {
	var params struct {
		RoomID string `json:"room_id"`
		Limit  int    `json:"limit,omitempty"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}
	if !c.InRoom(params.RoomID) {
		return errResponse(req, "not in room")
	}
	if params.Limit <= 0 || params.Limit > 500 {
		params.Limit = 100
	}

	msgs, err := r.server.stores.Messages.RecentMessages(ctx, params.RoomID, params.Limit)
	if err != nil {
		slog.Error("chat.history failed", "room", params.RoomID, "error", err)
		return errResponse(req, "failed to load history")
	}
	return okResponse(req, map[string]interface{}{"messages": msgs})
}
