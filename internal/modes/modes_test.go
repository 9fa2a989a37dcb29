package modes

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/roomcast/internal/bus"
	"github.com/nextlevelbuilder/roomcast/internal/engine"
	"github.com/nextlevelbuilder/roomcast/internal/orchestrator"
	"github.com/nextlevelbuilder/roomcast/internal/store"
	"github.com/nextlevelbuilder/roomcast/internal/supervisor"
)

// fakeEngine scripts per-bot outcomes. Replies are keyed by bot id; a bot
// with an error entry fails its turn, everyone else succeeds with the
// scripted (or default) content.
type fakeEngine struct {
	mu      sync.Mutex
	replies map[string]string
	errs    map[string]error
	calls   []fakeCall
	block   map[string]chan struct{} // optional per-bot gate
}

type fakeCall struct {
	BotID string
	Input string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		replies: make(map[string]string),
		errs:    make(map[string]error),
		block:   make(map[string]chan struct{}),
	}
}

func (f *fakeEngine) Run(ctx context.Context, bot engine.BotSpec, input string, sink func(engine.Event)) (*engine.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fakeCall{BotID: bot.ID, Input: input})
	gate := f.block[bot.ID]
	reply, scripted := f.replies[bot.ID]
	err := f.errs[bot.ID]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if !scripted {
		reply = bot.Name + " says hi"
	}
	sink(engine.Event{Type: engine.EventTextDelta, Text: reply})
	return &engine.Result{Content: reply, Usage: engine.Usage{TotalTokens: 7}}, nil
}

func (f *fakeEngine) callsFor(botID string) []fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fakeCall
	for _, c := range f.calls {
		if c.BotID == botID {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeEngine) callOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.BotID
	}
	return out
}

// capturePublisher records broadcast events for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	events []bus.Event
}

func (p *capturePublisher) Subscribe(string, bus.EventHandler) {}
func (p *capturePublisher) Unsubscribe(string)                 {}

func (p *capturePublisher) Broadcast(e bus.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *capturePublisher) named(name string) []bus.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []bus.Event
	for _, e := range p.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

func (p *capturePublisher) payloadField(e bus.Event, key string) interface{} {
	m, ok := e.Payload.(map[string]interface{})
	if !ok {
		return nil
	}
	return m[key]
}

// captureInbound records replies fed back to the inbound queue.
type captureInbound struct {
	mu   sync.Mutex
	msgs []bus.InboundMessage
}

func (c *captureInbound) PublishInbound(m bus.InboundMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, m)
}

func (c *captureInbound) ConsumeInbound(ctx context.Context) (bus.InboundMessage, bool) {
	return bus.InboundMessage{}, false
}

func (c *captureInbound) all() []bus.InboundMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]bus.InboundMessage(nil), c.msgs...)
}

// memMessages is an in-memory MessageStore.
type memMessages struct {
	mu   sync.Mutex
	msgs []store.Message
}

func (m *memMessages) AppendMessage(ctx context.Context, msg *store.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.ID == uuid.Nil {
		msg.ID = uuid.Must(uuid.NewV7())
	}
	m.msgs = append(m.msgs, *msg)
	return nil
}

func (m *memMessages) RecentMessages(ctx context.Context, roomID string, limit int) ([]store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Message
	for _, msg := range m.msgs {
		if msg.RoomID == roomID {
			out = append(out, msg)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type harness struct {
	orch   *orchestrator.Orchestrator
	eng    *fakeEngine
	pub    *capturePublisher
	msgs   *memMessages
	deps   *Deps
	roomID string
}

func newHarness(settings store.RoomSettings, bots ...store.Bot) *harness {
	orch := orchestrator.New("room-1", settings)
	for _, b := range bots {
		orch.RegisterBot(b)
	}
	eng := newFakeEngine()
	pub := &capturePublisher{}
	msgs := &memMessages{}
	return &harness{
		orch:   orch,
		eng:    eng,
		pub:    pub,
		msgs:   msgs,
		roomID: "room-1",
		deps: &Deps{
			Orch:       orch,
			Engine:     eng,
			Events:     pub,
			Supervisor: supervisor.New(),
			Messages:   msgs,
		},
	}
}

func triggerMessage(content string) store.Message {
	return store.Message{
		ID:         uuid.Must(uuid.NewV7()),
		RoomID:     "room-1",
		SenderID:   "u1",
		SenderName: "user",
		SenderType: "user",
		Content:    content,
	}
}
