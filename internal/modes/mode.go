// Package modes implements the response-mode strategies that drive bot
// turns for a room. Each mode is a distinct, hand-built strategy with its
// own concurrency and ordering contract behind one Strategy interface and
// a single dispatch point; this is deliberately not a workflow engine.
package modes

import (
	"context"
	"time"

	"github.com/nextlevelbuilder/roomcast/internal/bus"
	"github.com/nextlevelbuilder/roomcast/internal/engine"
	"github.com/nextlevelbuilder/roomcast/internal/orchestrator"
	"github.com/nextlevelbuilder/roomcast/internal/store"
	"github.com/nextlevelbuilder/roomcast/internal/supervisor"
)

// Deps bundles everything a strategy needs to drive turns for one room.
type Deps struct {
	Orch       *orchestrator.Orchestrator
	Engine     engine.Engine
	Events     bus.EventPublisher
	Supervisor *supervisor.Supervisor
	Messages   store.MessageStore

	// Inbound receives completed bot replies so peers can react to them,
	// e.g. a bot @-mentioning another bot. The dispatcher excludes the
	// sender from its own reply's selection, which breaks self-loops.
	Inbound bus.MessageRouter

	// TurnTimeout is the wall-clock ceiling per individual bot turn.
	// Zero disables the deadline (tests).
	TurnTimeout time.Duration
}

// Strategy executes one response-mode's turn plan for a triggering message.
// Implementations must call mark-responding/mark-done around every turn so
// cooldown state stays correct on every outcome, and must isolate per-bot
// failures per the mode's contract.
type Strategy interface {
	Name() orchestrator.Mode
	Execute(ctx context.Context, d *Deps, respondents []string, msg store.Message) error
}

// For is the single dispatch point from a mode name to its strategy.
func For(mode orchestrator.Mode) Strategy {
	switch mode {
	case orchestrator.ModeSequential:
		return Sequential{}
	case orchestrator.ModeChain:
		return Chain{}
	case orchestrator.ModeWaterfall:
		return Waterfall{}
	case orchestrator.ModeRouter:
		return Router{}
	case orchestrator.ModeRelay:
		return Relay{}
	case orchestrator.ModeDebate:
		return Debate{}
	case orchestrator.ModeConsensus:
		return Consensus{}
	case orchestrator.ModeInterview:
		return Interview{}
	default:
		return Parallel{}
	}
}
