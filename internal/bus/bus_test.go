package bus

import (
	"context"
	"testing"
	"time"
)

func TestBroadcastFanout(t *testing.T) {
	b := NewMessageBus()

	var got1, got2 []string
	b.Subscribe("c1", func(e Event) { got1 = append(got1, e.Name) })
	b.Subscribe("c2", func(e Event) { got2 = append(got2, e.Name) })

	b.Broadcast(Event{Name: "chat.message", RoomID: "r1"})

	if len(got1) != 1 || len(got2) != 1 {
		t.Fatalf("fanout incomplete: %v %v", got1, got2)
	}

	b.Unsubscribe("c1")
	b.Broadcast(Event{Name: "bot.done", RoomID: "r1"})

	if len(got1) != 1 {
		t.Error("unsubscribed handler still invoked")
	}
	if len(got2) != 2 {
		t.Error("remaining handler missed event")
	}
}

func TestSubscribeReplacesHandler(t *testing.T) {
	b := NewMessageBus()

	var first, second int
	b.Subscribe("c1", func(Event) { first++ })
	b.Subscribe("c1", func(Event) { second++ })

	b.Broadcast(Event{Name: "health"})
	if first != 0 || second != 1 {
		t.Errorf("replacement failed: first=%d second=%d", first, second)
	}
}

func TestInboundRoundTrip(t *testing.T) {
	b := NewMessageBus()
	b.PublishInbound(InboundMessage{MessageID: "m1", RoomID: "r1", Content: "hi"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msg, ok := b.ConsumeInbound(ctx)
	if !ok || msg.MessageID != "m1" {
		t.Fatalf("ConsumeInbound = %+v, %v", msg, ok)
	}
}

func TestConsumeInboundHonorsContext(t *testing.T) {
	b := NewMessageBus()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, ok := b.ConsumeInbound(ctx); ok {
		t.Fatal("cancelled context must stop consumption")
	}
}

func TestInboundDropsWhenFull(t *testing.T) {
	b := NewMessageBus()
	for i := 0; i < inboundBuffer+10; i++ {
		b.PublishInbound(InboundMessage{RoomID: "r1"})
	}
	// The queue holds exactly its buffer; the overflow was dropped, not
	// blocked on.
	count := 0
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	for {
		if _, ok := b.ConsumeInbound(ctx); !ok {
			break
		}
		count++
	}
	if count != inboundBuffer {
		t.Errorf("queued = %d, want %d", count, inboundBuffer)
	}
}
