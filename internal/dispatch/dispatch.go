// Package dispatch consumes inbound room messages and turns each one into
// a mode-strategy invocation for the room's active session.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/roomcast/internal/bus"
	"github.com/nextlevelbuilder/roomcast/internal/engine"
	"github.com/nextlevelbuilder/roomcast/internal/modes"
	"github.com/nextlevelbuilder/roomcast/internal/orchestrator"
	"github.com/nextlevelbuilder/roomcast/internal/store"
	"github.com/nextlevelbuilder/roomcast/internal/supervisor"
)

// Dispatcher drains the inbound queue for the process. One strategy
// invocation runs per triggering message, under a supervised task keyed by
// the mode tag so chat.abort can cancel a whole mode run.
type Dispatcher struct {
	Inbound    bus.MessageRouter
	Events     bus.EventPublisher
	Registry   *orchestrator.Registry
	Engine     engine.Engine
	Supervisor *supervisor.Supervisor
	Messages   store.MessageStore

	TurnTimeout time.Duration
}

// Run consumes until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		msg, ok := d.Inbound.ConsumeInbound(ctx)
		if !ok {
			return ctx.Err()
		}
		d.handle(ctx, msg)
	}
}

// messageID resolves the triggering message id, which doubles as the mode
// session key. An unparseable id gets a fresh one so distinct messages
// never collapse onto uuid.Nil.
func messageID(raw string) uuid.UUID {
	if id, err := uuid.Parse(raw); err == nil {
		return id
	}
	return uuid.Must(uuid.NewV7())
}

func (d *Dispatcher) handle(ctx context.Context, in bus.InboundMessage) {
	if in.SenderType == orchestrator.SenderTypeSystem {
		return
	}

	orch, ok := d.Registry.Get(in.RoomID)
	if !ok {
		slog.Debug("dispatch.no_session", "room", in.RoomID)
		return
	}

	// A bot's own reply must not re-trigger itself.
	exclude := ""
	if in.SenderType == "bot" {
		exclude = in.SenderID
	}

	mode := orchestrator.ParseMode(orch.Settings().ResponseMode)
	respondents := orch.SelectRespondents(in.Content, in.SenderType, exclude)

	// Relay ignores selection entirely; every other mode needs someone.
	if len(respondents) == 0 && mode != orchestrator.ModeRelay {
		return
	}

	msg := store.Message{
		ID:         messageID(in.MessageID),
		RoomID:     in.RoomID,
		SenderID:   in.SenderID,
		SenderName: in.SenderName,
		SenderType: in.SenderType,
		Content:    in.Content,
	}

	deps := &modes.Deps{
		Orch:        orch,
		Engine:      d.Engine,
		Events:      d.Events,
		Supervisor:  d.Supervisor,
		Messages:    d.Messages,
		Inbound:     d.Inbound,
		TurnTimeout: d.TurnTimeout,
	}
	strategy := modes.For(mode)

	slog.Info("dispatch.message",
		"room", in.RoomID, "mode", strategy.Name(), "respondents", len(respondents))

	d.Supervisor.Spawn(ctx, in.RoomID, "_"+string(strategy.Name()), func(tctx context.Context) {
		if err := strategy.Execute(tctx, deps, respondents, msg); err != nil {
			slog.Warn("dispatch.mode_failed",
				"room", in.RoomID, "mode", strategy.Name(), "error", err)
		}
	})
}
