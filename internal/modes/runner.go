package modes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/nextlevelbuilder/roomcast/internal/bus"
	"github.com/nextlevelbuilder/roomcast/internal/engine"
	"github.com/nextlevelbuilder/roomcast/internal/store"
	"github.com/nextlevelbuilder/roomcast/internal/tracing"
	"github.com/nextlevelbuilder/roomcast/pkg/protocol"
)

func (d *Deps) notify(name string, payload interface{}) {
	if d.Events == nil {
		return
	}
	d.Events.Broadcast(bus.Event{Name: name, RoomID: d.Orch.RoomID, Payload: payload})
}

// recent loads the transcript slice used by context builders. A store
// failure degrades to an empty transcript rather than aborting the turn.
func (d *Deps) recent(ctx context.Context) []store.Message {
	if d.Messages == nil {
		return nil
	}
	msgs, err := d.Messages.RecentMessages(ctx, d.Orch.RoomID, 50)
	if err != nil {
		slog.Warn("turn.history_unavailable", "room", d.Orch.RoomID, "error", err)
		return nil
	}
	return msgs
}

// notifySkipped reports a bot whose turn was intentionally not started.
func (d *Deps) notifySkipped(bot store.Bot, reason string) {
	d.notify(protocol.EventBotSkipped, map[string]interface{}{
		"bot_id":   bot.ID,
		"bot_name": bot.Name,
		"reason":   reason,
	})
}

// notifyFailure surfaces a room-scoped error naming the affected bot so the
// room's view of who failed and why stays accurate.
func (d *Deps) notifyFailure(bot store.Bot, kind, message string) {
	d.notify(protocol.EventBotError, map[string]interface{}{
		"bot_id":   bot.ID,
		"bot_name": bot.Name,
		"kind":     kind,
		"message":  message,
	})
}

// runTurn drives one complete bot turn: cooldown bookkeeping, the engine
// call with a per-turn deadline, streaming notifications, failure
// classification, and persistence of the reply. The returned error is
// already surfaced to the room; callers only use it to apply their mode's
// continue/stop policy.
func (d *Deps) runTurn(ctx context.Context, bot store.Bot, input string) (string, error) {
	d.Orch.MarkResponding(bot.ID)
	defer d.Orch.MarkDone(bot.ID)

	d.notify(protocol.EventBotThinking, map[string]interface{}{
		"bot_id":   bot.ID,
		"bot_name": bot.Name,
	})

	tctx := ctx
	var cancel context.CancelFunc
	if d.TurnTimeout > 0 {
		tctx, cancel = context.WithTimeout(ctx, d.TurnTimeout)
		defer cancel()
	}

	spanCtx, span := tracing.Tracer().Start(tctx, "bot.turn")
	span.SetAttributes(
		attribute.String("room.id", d.Orch.RoomID),
		attribute.String("bot.id", bot.ID),
		attribute.String("bot.name", bot.Name),
	)
	defer span.End()

	start := time.Now()
	spec := engine.BotSpec{
		ID:           bot.ID,
		Name:         bot.Name,
		Provider:     bot.Provider,
		Model:        bot.Model,
		SystemPrompt: bot.SystemPrompt,
	}

	result, err := d.Engine.Run(spanCtx, spec, input, func(ev engine.Event) {
		switch ev.Type {
		case engine.EventTextDelta:
			d.notify(protocol.EventBotDelta, map[string]interface{}{
				"bot_id":  bot.ID,
				"content": ev.Text,
			})
		case engine.EventToolStart:
			d.notify(protocol.EventBotTool, map[string]interface{}{
				"bot_id": bot.ID,
				"tool":   ev.Tool,
				"phase":  "start",
			})
		case engine.EventToolEnd:
			d.notify(protocol.EventBotTool, map[string]interface{}{
				"bot_id": bot.ID,
				"tool":   ev.Tool,
				"phase":  "end",
			})
		}
	})

	if err != nil {
		kind, message := classifyTurnError(err, bot, d.TurnTimeout)
		span.SetStatus(codes.Error, kind)
		slog.Warn("turn.failed",
			"room", d.Orch.RoomID, "bot", bot.ID, "kind", kind, "error", err)
		d.notifyFailure(bot, kind, message)
		return "", err
	}

	span.SetStatus(codes.Ok, "")

	// The turn finished; persist even if the parent context is being torn
	// down, so a completed reply is never lost to a late cancel.
	persistCtx, persistCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer persistCancel()

	reply := &store.Message{
		ID:         uuid.Must(uuid.NewV7()),
		RoomID:     d.Orch.RoomID,
		SenderID:   bot.ID,
		SenderName: bot.Name,
		SenderType: "bot",
		Content:    result.Content,
	}
	if d.Messages != nil && result.Content != "" {
		if perr := d.Messages.AppendMessage(persistCtx, reply); perr != nil {
			slog.Error("turn.persist_failed", "room", d.Orch.RoomID, "bot", bot.ID, "error", perr)
		}
	}

	if result.Content != "" {
		d.notify(protocol.EventChatMessage, reply)
		// Feed the reply back through the inbound pipeline so peers it
		// addresses get their own turns.
		if d.Inbound != nil {
			d.Inbound.PublishInbound(bus.InboundMessage{
				MessageID:  reply.ID.String(),
				RoomID:     reply.RoomID,
				SenderID:   reply.SenderID,
				SenderName: reply.SenderName,
				SenderType: "bot",
				Content:    reply.Content,
			})
		}
	}
	d.notify(protocol.EventBotDone, map[string]interface{}{
		"bot_id":      bot.ID,
		"bot_name":    bot.Name,
		"tools":       result.ToolCalls,
		"usage":       result.Usage,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	return result.Content, nil
}

// classifyTurnError maps a turn failure onto the error taxonomy so clients
// can message cancellation, timeout, and budget exhaustion differently.
func classifyTurnError(err error, bot store.Bot, timeout time.Duration) (kind, message string) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return protocol.FailKindTimeout,
			fmt.Sprintf("%s timed out after %s", bot.Name, timeout)
	case errors.Is(err, context.Canceled):
		return protocol.FailKindCancelled,
			fmt.Sprintf("%s's turn was cancelled", bot.Name)
	case errors.Is(err, engine.ErrBudgetExceeded):
		return protocol.FailKindBudget,
			fmt.Sprintf("%s stopped: usage budget exceeded", bot.Name)
	default:
		return protocol.FailKindError,
			fmt.Sprintf("%s failed to respond", bot.Name)
	}
}
