package dispatch

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/roomcast/internal/bus"
	"github.com/nextlevelbuilder/roomcast/internal/engine"
	"github.com/nextlevelbuilder/roomcast/internal/orchestrator"
	"github.com/nextlevelbuilder/roomcast/internal/store"
	"github.com/nextlevelbuilder/roomcast/internal/supervisor"
)

type countingEngine struct {
	mu      sync.Mutex
	calls   []string
	replies map[string]string
}

func (c *countingEngine) Run(ctx context.Context, bot engine.BotSpec, input string, sink func(engine.Event)) (*engine.Result, error) {
	c.mu.Lock()
	c.calls = append(c.calls, bot.ID)
	reply, ok := c.replies[bot.ID]
	c.mu.Unlock()
	if !ok {
		reply = "ok"
	}
	return &engine.Result{Content: reply}, nil
}

func (c *countingEngine) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

type nullMessages struct{}

func (nullMessages) AppendMessage(context.Context, *store.Message) error { return nil }
func (nullMessages) RecentMessages(context.Context, string, int) ([]store.Message, error) {
	return nil, nil
}

func testDispatcher(settings store.RoomSettings, bots ...store.Bot) (*Dispatcher, *countingEngine, *orchestrator.Registry) {
	eng := &countingEngine{}
	registry := orchestrator.NewRegistry(settings)
	orch := registry.GetOrCreate("room-1", nil)
	for _, b := range bots {
		orch.RegisterBot(b)
	}
	msgBus := bus.NewMessageBus()
	d := &Dispatcher{
		Inbound:    msgBus,
		Events:     msgBus,
		Registry:   registry,
		Engine:     eng,
		Supervisor: supervisor.New(),
		Messages:   nullMessages{},
	}
	return d, eng, registry
}

func inboundFrom(senderType, content string) bus.InboundMessage {
	return bus.InboundMessage{
		MessageID:  uuid.Must(uuid.NewV7()).String(),
		RoomID:     "room-1",
		SenderID:   "u1",
		SenderName: "user",
		SenderType: senderType,
		Content:    content,
	}
}

func waitForCalls(t *testing.T, eng *countingEngine, want int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for eng.count() < want {
		select {
		case <-deadline:
			t.Fatalf("engine calls = %d, want %d", eng.count(), want)
		case <-time.After(time.Millisecond):
		}
	}
}

func TestDispatchTriggersStrategy(t *testing.T) {
	d, eng, _ := testDispatcher(
		store.RoomSettings{AutoRelevance: true, ResponseMode: "parallel"},
		store.Bot{ID: "a", Name: "Alpha"},
	)

	d.handle(context.Background(), inboundFrom("user", "hello"))
	waitForCalls(t, eng, 1)
}

func TestDispatchSkipsSystemMessages(t *testing.T) {
	d, eng, _ := testDispatcher(
		store.RoomSettings{AutoRelevance: true, ResponseMode: "parallel"},
		store.Bot{ID: "a", Name: "Alpha"},
	)

	d.handle(context.Background(), inboundFrom("system", "@Alpha automated notice"))
	time.Sleep(20 * time.Millisecond)
	if eng.count() != 0 {
		t.Error("system messages must never trigger turns")
	}
}

func TestDispatchSkipsWithoutSession(t *testing.T) {
	d, eng, registry := testDispatcher(
		store.RoomSettings{AutoRelevance: true, ResponseMode: "parallel"},
		store.Bot{ID: "a", Name: "Alpha"},
	)
	registry.Remove("room-1")

	d.handle(context.Background(), inboundFrom("user", "hello"))
	time.Sleep(20 * time.Millisecond)
	if eng.count() != 0 {
		t.Error("no active session means no turns")
	}
}

func TestDispatchNoRespondentsNoTurn(t *testing.T) {
	d, eng, _ := testDispatcher(
		// Auto relevance off and no mention: nobody selected.
		store.RoomSettings{AutoRelevance: false, ResponseMode: "parallel"},
		store.Bot{ID: "a", Name: "Alpha"},
	)

	d.handle(context.Background(), inboundFrom("user", "hello"))
	time.Sleep(20 * time.Millisecond)
	if eng.count() != 0 {
		t.Error("empty selection must not start turns")
	}
}

func TestDispatchRelayRunsWithEmptySelection(t *testing.T) {
	d, eng, _ := testDispatcher(
		store.RoomSettings{AutoRelevance: false, ResponseMode: "relay"},
		store.Bot{ID: "a", Name: "Alpha"},
	)

	d.handle(context.Background(), inboundFrom("user", "hello"))
	waitForCalls(t, eng, 1)
}

func TestDispatchBotReplyExcludesSelf(t *testing.T) {
	d, eng, _ := testDispatcher(
		store.RoomSettings{AutoRelevance: true, ResponseMode: "parallel"},
		store.Bot{ID: "a", Name: "Alpha"},
		store.Bot{ID: "b", Name: "Beta"},
	)

	in := inboundFrom("bot", "@Alpha @Beta my thoughts")
	in.SenderID = "a"
	d.handle(context.Background(), in)
	waitForCalls(t, eng, 1)

	time.Sleep(20 * time.Millisecond)
	eng.mu.Lock()
	defer eng.mu.Unlock()
	if len(eng.calls) != 1 || eng.calls[0] != "b" {
		t.Errorf("calls = %v, sender must be excluded", eng.calls)
	}
}

func TestBotReplyTriggersMentionedPeer(t *testing.T) {
	d, eng, _ := testDispatcher(
		store.RoomSettings{AutoRelevance: false, ResponseMode: "parallel"},
		store.Bot{ID: "a", Name: "Alpha"},
		store.Bot{ID: "b", Name: "Beta"},
	)
	eng.replies = map[string]string{"a": "@Beta what do you think?"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	d.Inbound.PublishInbound(inboundFrom("user", "@Alpha kick us off"))

	// Alpha's reply re-enters the pipeline and pulls Beta in; Beta's
	// reply mentions nobody, so the chain stops there.
	waitForCalls(t, eng, 2)
	time.Sleep(20 * time.Millisecond)

	eng.mu.Lock()
	defer eng.mu.Unlock()
	if !reflect.DeepEqual(eng.calls, []string{"a", "b"}) {
		t.Errorf("calls = %v, Alpha's mention must trigger Beta", eng.calls)
	}
}

func TestMessageIDFallback(t *testing.T) {
	want := uuid.Must(uuid.NewV7())
	if got := messageID(want.String()); got != want {
		t.Errorf("parseable id changed: %v", got)
	}

	first := messageID("not-a-uuid")
	second := messageID("not-a-uuid")
	if first == uuid.Nil || second == uuid.Nil {
		t.Fatal("fallback produced the nil id")
	}
	if first == second {
		t.Error("distinct unparseable messages must not share an id")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	d, _, _ := testDispatcher(store.RoomSettings{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not exit on cancellation")
	}
}
