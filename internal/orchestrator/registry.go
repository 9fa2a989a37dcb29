package orchestrator

import (
	"log/slog"
	"sync"

	"github.com/nextlevelbuilder/roomcast/internal/store"
)

// Registry holds one live orchestrator per active room. The transport
// layer owns its lifecycle: GetOrCreate on first join, Remove when the
// last client leaves.
type Registry struct {
	mu       sync.Mutex
	rooms    map[string]*Orchestrator
	defaults store.RoomSettings
}

// NewRegistry creates a registry with defaults applied to rooms that have
// no persisted settings.
func NewRegistry(defaults store.RoomSettings) *Registry {
	return &Registry{
		rooms:    make(map[string]*Orchestrator),
		defaults: defaults,
	}
}

// SetDefaults replaces the defaults for future rooms (config hot-reload).
// Live orchestrators keep their current settings.
func (r *Registry) SetDefaults(defaults store.RoomSettings) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaults = defaults
}

// GetOrCreate returns the room's orchestrator, creating it when absent.
// settings overrides the defaults when non-nil (persisted room settings).
func (r *Registry) GetOrCreate(roomID string, settings *store.RoomSettings) *Orchestrator {
	r.mu.Lock()
	defer r.mu.Unlock()

	if orch, ok := r.rooms[roomID]; ok {
		return orch
	}
	s := r.defaults
	if settings != nil {
		s = *settings
	}
	orch := New(roomID, s)
	r.rooms[roomID] = orch
	slog.Info("orchestrator.created", "room", roomID, "mode", s.ResponseMode)
	return orch
}

// Get returns the room's orchestrator if a session is active.
func (r *Registry) Get(roomID string) (*Orchestrator, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	orch, ok := r.rooms[roomID]
	return orch, ok
}

// Remove discards a room's orchestrator. Called when the last connection
// to the room closes; the state is a cache, not a source of truth.
func (r *Registry) Remove(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[roomID]; ok {
		delete(r.rooms, roomID)
		slog.Info("orchestrator.removed", "room", roomID)
	}
}

// Active returns the ids of rooms with live orchestrators.
func (r *Registry) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		out = append(out, id)
	}
	return out
}
