// Package orchestrator owns per-room turn coordination state: the bot
// roster, roles, cooldowns, respondent selection, routing cursors, and the
// transient mode state for debate/consensus/interview sessions.
//
// An Orchestrator is a purely in-memory, per-process cache created when a
// room session starts and discarded when the last client leaves; the source
// of truth for membership lives in the store.
package orchestrator

import (
	"sort"
	"sync"
	"time"

	"github.com/nextlevelbuilder/roomcast/internal/store"
)

// Role classifies a bot's part in the room.
type Role string

const (
	RoleDefault    Role = "default"
	RoleLead       Role = "lead"
	RoleReviewer   Role = "reviewer"
	RoleObserver   Role = "observer"
	RoleSpecialist Role = "specialist"
)

// Mode is a response-mode name.
type Mode string

const (
	ModeParallel   Mode = "parallel"
	ModeSequential Mode = "sequential"
	ModeChain      Mode = "chain"
	ModeRouter     Mode = "router"
	ModeDebate     Mode = "debate"
	ModeWaterfall  Mode = "waterfall"
	ModeRelay      Mode = "relay"
	ModeConsensus  Mode = "consensus"
	ModeInterview  Mode = "interview"
)

// ParseMode validates a mode string, falling back to parallel.
func ParseMode(s string) Mode {
	switch Mode(s) {
	case ModeParallel, ModeSequential, ModeChain, ModeRouter, ModeDebate,
		ModeWaterfall, ModeRelay, ModeConsensus, ModeInterview:
		return Mode(s)
	}
	return ModeParallel
}

// SenderTypeSystem marks automated messages; they never trigger responses.
const SenderTypeSystem = "system"

type cooldownEntry struct {
	lastResponse time.Time
	responding   bool
}

// Orchestrator is the per-room coordination aggregate. All state mutation
// goes through its mutex so selection, cooldown updates, and cursor
// advances are atomic with respect to each other.
type Orchestrator struct {
	RoomID string

	mu        sync.Mutex
	bots      map[string]store.Bot
	order     []string // registration order; map iteration is random
	cooldowns map[string]*cooldownEntry
	settings  store.RoomSettings

	routerCursor int // router round_robin strategy
	relayCursor  int // relay mode

	Debate    *DebateState
	Consensus *ConsensusState
	Interview *InterviewState

	now func() time.Time // test hook
}

// New creates an orchestrator for a room with the given settings.
func New(roomID string, settings store.RoomSettings) *Orchestrator {
	return &Orchestrator{
		RoomID:    roomID,
		bots:      make(map[string]store.Bot),
		cooldowns: make(map[string]*cooldownEntry),
		settings:  settings,
		Debate:    &DebateState{},
		Consensus: &ConsensusState{},
		Interview: &InterviewState{},
		now:       time.Now,
	}
}

// RegisterBot adds or updates a bot. Idempotent: re-registering keeps the
// bot's position in roster order and its cooldown state.
func (o *Orchestrator) RegisterBot(b store.Bot) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if b.Role == "" {
		b.Role = string(RoleDefault)
	}
	if _, known := o.bots[b.ID]; !known {
		o.order = append(o.order, b.ID)
	}
	o.bots[b.ID] = b
	if _, ok := o.cooldowns[b.ID]; !ok {
		o.cooldowns[b.ID] = &cooldownEntry{}
	}
}

// RemoveBot drops a bot from the roster and its cooldown entry.
func (o *Orchestrator) RemoveBot(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	delete(o.bots, id)
	delete(o.cooldowns, id)
	for i, bid := range o.order {
		if bid == id {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
}

// Bot returns a bot by id.
func (o *Orchestrator) Bot(id string) (store.Bot, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	b, ok := o.bots[id]
	return b, ok
}

// Roster returns all bots in registration order.
func (o *Orchestrator) Roster() []store.Bot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.rosterLocked()
}

func (o *Orchestrator) rosterLocked() []store.Bot {
	out := make([]store.Bot, 0, len(o.order))
	for _, id := range o.order {
		if b, ok := o.bots[id]; ok {
			out = append(out, b)
		}
	}
	return out
}

// Role returns a bot's role, defaulting when unknown.
func (o *Orchestrator) Role(id string) Role {
	o.mu.Lock()
	defer o.mu.Unlock()
	if b, ok := o.bots[id]; ok && b.Role != "" {
		return Role(b.Role)
	}
	return RoleDefault
}

// Settings returns a copy of the room settings.
func (o *Orchestrator) Settings() store.RoomSettings {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.settings
}

// SetSettings replaces the room settings (rooms.settings method).
func (o *Orchestrator) SetSettings(s store.RoomSettings) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.settings = s
}

// MarkResponding flags a bot as mid-turn; it is excluded from selection
// until MarkDone.
func (o *Orchestrator) MarkResponding(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if cd, ok := o.cooldowns[id]; ok {
		cd.responding = true
	} else {
		o.cooldowns[id] = &cooldownEntry{responding: true}
	}
}

// MarkDone clears the responding flag and opens the cooldown window.
// Idempotent; called on every turn outcome including cancellation, so a bot
// can never stay stuck in responding state.
func (o *Orchestrator) MarkDone(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	cd, ok := o.cooldowns[id]
	if !ok {
		cd = &cooldownEntry{}
		o.cooldowns[id] = cd
	}
	cd.responding = false
	cd.lastResponse = o.now()
}

// IsOnCooldown reports whether a bot is mid-turn or inside its cooldown
// window after the last completed turn.
func (o *Orchestrator) IsOnCooldown(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.isOnCooldownLocked(id)
}

func (o *Orchestrator) isOnCooldownLocked(id string) bool {
	cd, ok := o.cooldowns[id]
	if !ok {
		return false
	}
	if cd.responding {
		return true
	}
	if cd.lastResponse.IsZero() || o.settings.CooldownSeconds <= 0 {
		return false
	}
	return o.now().Sub(cd.lastResponse) < time.Duration(o.settings.CooldownSeconds)*time.Second
}

// SelectRespondents decides which bots respond to a message.
//
// System messages never trigger responses (prevents automation loops).
// Explicit mentions always win and bypass cooldown: a human's direct
// request must never be silently dropped. Without mentions, auto-relevance
// picks a single voice: the first eligible bot, lead roles first.
func (o *Orchestrator) SelectRespondents(message, senderType, excludeBotID string) []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	if senderType == SenderTypeSystem {
		return nil
	}

	mentioned := ParseMentions(message, o.rosterLocked())
	if len(mentioned) > 0 {
		out := make([]string, 0, len(mentioned))
		for _, id := range mentioned {
			if id != excludeBotID {
				out = append(out, id)
			}
		}
		return out
	}

	if !o.settings.AutoRelevance {
		return nil
	}

	var candidates []string
	for _, id := range o.order {
		b, ok := o.bots[id]
		if !ok || id == excludeBotID {
			continue
		}
		if Role(b.Role) == RoleObserver {
			continue
		}
		if o.isOnCooldownLocked(id) {
			continue
		}
		candidates = append(candidates, id)
	}
	if len(candidates) == 0 {
		return nil
	}

	// Lead bots take precedence; the sort is stable so registration order
	// breaks ties among equals.
	sort.SliceStable(candidates, func(i, j int) bool {
		li := Role(o.bots[candidates[i]].Role) == RoleLead
		lj := Role(o.bots[candidates[j]].Role) == RoleLead
		return li && !lj
	})

	// Auto mode speaks with one voice at a time.
	return candidates[:1]
}

// NextRelayBot advances the relay cursor and returns the bot whose turn it
// is. Each bot gets a turn before any repeats.
func (o *Orchestrator) NextRelayBot() (store.Bot, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.order) == 0 {
		return store.Bot{}, false
	}
	idx := o.relayCursor % len(o.order)
	o.relayCursor = (idx + 1) % len(o.order)
	b, ok := o.bots[o.order[idx]]
	return b, ok
}

// NextRoundRobin advances the router's round-robin cursor over eligible
// (non-observer) bots.
func (o *Orchestrator) NextRoundRobin() (store.Bot, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var eligible []store.Bot
	for _, id := range o.order {
		if b, ok := o.bots[id]; ok && Role(b.Role) != RoleObserver {
			eligible = append(eligible, b)
		}
	}
	if len(eligible) == 0 {
		return store.Bot{}, false
	}
	idx := o.routerCursor % len(eligible)
	o.routerCursor = (idx + 1) % len(eligible)
	return eligible[idx], true
}

// FirstWithRole returns the first roster bot with the given role.
func (o *Orchestrator) FirstWithRole(role Role) (store.Bot, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, id := range o.order {
		if b, ok := o.bots[id]; ok && Role(b.Role) == role {
			return b, true
		}
	}
	return store.Bot{}, false
}

// FirstEligible returns the first non-observer roster bot, optionally
// skipping one id. Used for judge/synthesizer/interviewer fallbacks.
func (o *Orchestrator) FirstEligible(skipID string) (store.Bot, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, id := range o.order {
		if id == skipID {
			continue
		}
		if b, ok := o.bots[id]; ok && Role(b.Role) != RoleObserver {
			return b, true
		}
	}
	return store.Bot{}, false
}
