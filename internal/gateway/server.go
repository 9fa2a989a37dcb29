package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/roomcast/internal/bus"
	"github.com/nextlevelbuilder/roomcast/internal/config"
	"github.com/nextlevelbuilder/roomcast/internal/orchestrator"
	"github.com/nextlevelbuilder/roomcast/internal/store"
	"github.com/nextlevelbuilder/roomcast/internal/supervisor"
	"github.com/nextlevelbuilder/roomcast/pkg/protocol"
)

// Server is the WebSocket gateway: it owns client connections, room
// membership refcounts, and the RPC method surface.
type Server struct {
	cfg        *config.Config
	events     bus.EventPublisher
	inbound    bus.MessageRouter
	stores     store.Stores
	registry   *orchestrator.Registry
	supervisor *supervisor.Supervisor
	router     *MethodRouter

	upgrader    websocket.Upgrader
	rateLimiter *RateLimiter

	mu          sync.RWMutex
	clients     map[string]*Client
	roomClients map[string]int // live connections per room

	httpServer *http.Server
	mux        *http.ServeMux

	startedAt time.Time
}

// NewServer creates a gateway server.
func NewServer(cfg *config.Config, events bus.EventPublisher, inbound bus.MessageRouter, stores store.Stores, registry *orchestrator.Registry, sup *supervisor.Supervisor) *Server {
	s := &Server{
		cfg:         cfg,
		events:      events,
		inbound:     inbound,
		stores:      stores,
		registry:    registry,
		supervisor:  sup,
		clients:     make(map[string]*Client),
		roomClients: make(map[string]int),
		startedAt:   time.Now(),
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	s.rateLimiter = NewRateLimiter(cfg.Gateway.RateLimitRPM, 5)
	s.router = NewMethodRouter(s)
	return s
}

// checkOrigin validates the Origin header against the configured whitelist.
// No configuration allows everything (dev mode); an empty Origin header
// (non-browser clients) is always allowed.
func (s *Server) checkOrigin(r *http.Request) bool {
	allowed := s.cfg.Gateway.AllowedOrigins
	if len(allowed) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if origin == a || a == "*" {
			return true
		}
	}
	slog.Warn("security.cors_rejected", "origin", origin)
	return false
}

// BuildMux creates and caches the HTTP mux with all routes registered.
func (s *Server) BuildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	s.mux = mux
	return mux
}

// Start listens until ctx is cancelled, then drains with a short grace
// period.
func (s *Server) Start(ctx context.Context) error {
	mux := s.BuildMux()

	addr := fmt.Sprintf("%s:%d", s.cfg.Gateway.Host, s.cfg.Gateway.Port)
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	slog.Info("gateway starting", "addr", addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("gateway server: %w", err)
	}
	return nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(conn, s)
	s.registerClient(client)

	defer func() {
		s.unregisterClient(client)
		client.Close()
	}()

	client.Run(r.Context())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","protocol":%d}`, protocol.ProtocolVersion)
}

func (s *Server) registerClient(c *Client) {
	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()

	s.events.Subscribe(c.id, func(event bus.Event) {
		c.SendEvent(*protocol.NewEvent(event.Name, event.RoomID, event.Payload))
	})

	slog.Info("client connected", "id", c.id)
}

func (s *Server) unregisterClient(c *Client) {
	s.events.Unsubscribe(c.id)
	s.rateLimiter.Forget(c.id)

	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()

	// A dropped connection counts as leaving every room it had joined.
	for _, roomID := range c.Rooms() {
		s.releaseRoom(roomID)
	}

	slog.Info("client disconnected", "id", c.id)
}

// acquireRoom bumps the room's connection refcount.
func (s *Server) acquireRoom(roomID string) {
	s.mu.Lock()
	s.roomClients[roomID]++
	s.mu.Unlock()
}

// releaseRoom drops the refcount; at zero the room session is torn down:
// in-flight turns cancelled, the orchestrator discarded.
func (s *Server) releaseRoom(roomID string) {
	s.mu.Lock()
	s.roomClients[roomID]--
	last := s.roomClients[roomID] <= 0
	if last {
		delete(s.roomClients, roomID)
	}
	s.mu.Unlock()

	if last {
		s.supervisor.CancelRoom(roomID)
		s.registry.Remove(roomID)
		slog.Info("room session ended", "room", roomID)
	}
}

// BroadcastEvent sends an event frame to every connected client; each
// client filters by its own room membership.
func (s *Server) BroadcastEvent(frame protocol.EventFrame) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, client := range s.clients {
		client.SendEvent(frame)
	}
}

// StartTestServer listens on a random localhost port and returns the
// address plus a start function. Used by integration tests.
func StartTestServer(s *Server, ctx context.Context) (addr string, start func()) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic("listen: " + err.Error())
	}

	s.httpServer = &http.Server{Handler: mux}
	addr = ln.Addr().String()

	start = func() {
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			s.httpServer.Shutdown(shutdownCtx)
		}()
		s.httpServer.Serve(ln)
	}

	return addr, start
}
