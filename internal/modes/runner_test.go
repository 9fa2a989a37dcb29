package modes

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/roomcast/internal/engine"
	"github.com/nextlevelbuilder/roomcast/internal/store"
	"github.com/nextlevelbuilder/roomcast/pkg/protocol"
)

func TestRunTurnSuccess(t *testing.T) {
	h := newHarness(store.RoomSettings{CooldownSeconds: 30}, store.Bot{ID: "a", Name: "Alpha"})
	h.eng.replies["a"] = "the answer"

	out, err := h.deps.runTurn(context.Background(), mustBot(t, h, "a"), "input")
	if err != nil {
		t.Fatalf("runTurn: %v", err)
	}
	if out != "the answer" {
		t.Errorf("out = %q", out)
	}

	if got := h.pub.named(protocol.EventBotThinking); len(got) != 1 {
		t.Error("missing thinking event")
	}
	if got := h.pub.named(protocol.EventBotDelta); len(got) != 1 {
		t.Error("missing delta event")
	}
	if got := h.pub.named(protocol.EventBotDone); len(got) != 1 {
		t.Error("missing done event")
	}
	if got := h.pub.named(protocol.EventChatMessage); len(got) != 1 {
		t.Error("reply not broadcast as chat message")
	}

	// Reply persisted as a bot message.
	msgs, _ := h.msgs.RecentMessages(context.Background(), h.roomID, 10)
	if len(msgs) != 1 || msgs[0].SenderType != "bot" || msgs[0].Content != "the answer" {
		t.Errorf("persisted = %+v", msgs)
	}

	// Turn complete: cooldown window open, responding cleared.
	if !h.orch.IsOnCooldown("a") {
		t.Error("cooldown window should be open after the turn")
	}
}

func TestRunTurnFailureKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind string
	}{
		{"cancelled", context.Canceled, protocol.FailKindCancelled},
		{"timeout", context.DeadlineExceeded, protocol.FailKindTimeout},
		{"budget", engine.ErrBudgetExceeded, protocol.FailKindBudget},
		{"generic", errors.New("boom"), protocol.FailKindError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(store.RoomSettings{}, store.Bot{ID: "a", Name: "Alpha"})
			h.eng.errs["a"] = tt.err

			_, err := h.deps.runTurn(context.Background(), mustBot(t, h, "a"), "input")
			if err == nil {
				t.Fatal("expected error")
			}

			failures := h.pub.named(protocol.EventBotError)
			if len(failures) != 1 {
				t.Fatalf("failure events = %d, want 1", len(failures))
			}
			if got := h.pub.payloadField(failures[0], "kind"); got != tt.kind {
				t.Errorf("kind = %v, want %v", got, tt.kind)
			}

			// Nothing persisted, no done event, cooldown not stuck in
			// responding.
			msgs, _ := h.msgs.RecentMessages(context.Background(), h.roomID, 10)
			if len(msgs) != 0 {
				t.Error("failed turn must not persist a reply")
			}
			if len(h.pub.named(protocol.EventBotDone)) != 0 {
				t.Error("failed turn must not emit done")
			}
		})
	}
}

func TestRunTurnCancelClearsResponding(t *testing.T) {
	h := newHarness(store.RoomSettings{CooldownSeconds: 0}, store.Bot{ID: "a", Name: "Alpha"})
	gate := make(chan struct{})
	h.eng.block["a"] = gate

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.deps.runTurn(ctx, mustBot(t, h, "a"), "input")
	}()

	// Wait for the turn to be in flight.
	deadline := time.After(time.Second)
	for !h.orch.IsOnCooldown("a") {
		select {
		case <-deadline:
			t.Fatal("turn never started")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	<-done

	if h.orch.IsOnCooldown("a") {
		t.Error("responding flag stuck after cancellation")
	}
}

func TestRunTurnTimeout(t *testing.T) {
	h := newHarness(store.RoomSettings{}, store.Bot{ID: "a", Name: "Alpha"})
	h.deps.TurnTimeout = 20 * time.Millisecond
	h.eng.block["a"] = make(chan struct{}) // never opened

	_, err := h.deps.runTurn(context.Background(), mustBot(t, h, "a"), "input")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}

	failures := h.pub.named(protocol.EventBotError)
	if len(failures) != 1 || h.pub.payloadField(failures[0], "kind") != protocol.FailKindTimeout {
		t.Errorf("timeout not classified: %v", failures)
	}
}

func TestRunTurnPublishesReplyInbound(t *testing.T) {
	h := newHarness(store.RoomSettings{}, store.Bot{ID: "a", Name: "Alpha"})
	inbound := &captureInbound{}
	h.deps.Inbound = inbound
	h.eng.replies["a"] = "@Beta your turn"

	if _, err := h.deps.runTurn(context.Background(), mustBot(t, h, "a"), "input"); err != nil {
		t.Fatalf("runTurn: %v", err)
	}

	got := inbound.all()
	if len(got) != 1 {
		t.Fatalf("inbound messages = %d, want 1", len(got))
	}
	m := got[0]
	if m.SenderType != "bot" || m.SenderID != "a" || m.Content != "@Beta your turn" {
		t.Errorf("inbound reply = %+v", m)
	}
	if id, err := uuid.Parse(m.MessageID); err != nil || id == uuid.Nil {
		t.Errorf("inbound reply needs a real message id, got %q", m.MessageID)
	}
}

func TestRunTurnFailureNotPublishedInbound(t *testing.T) {
	h := newHarness(store.RoomSettings{}, store.Bot{ID: "a", Name: "Alpha"})
	inbound := &captureInbound{}
	h.deps.Inbound = inbound
	h.eng.errs["a"] = errors.New("boom")

	h.deps.runTurn(context.Background(), mustBot(t, h, "a"), "input")

	if got := inbound.all(); len(got) != 0 {
		t.Errorf("failed turn published %d inbound messages", len(got))
	}
}

func mustBot(t *testing.T, h *harness, id string) store.Bot {
	t.Helper()
	b, ok := h.orch.Bot(id)
	if !ok {
		t.Fatalf("bot %s not registered", id)
	}
	return b
}
