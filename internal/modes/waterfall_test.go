package modes

import (
	"context"
	"reflect"
	"testing"

	"github.com/nextlevelbuilder/roomcast/internal/store"
	"github.com/nextlevelbuilder/roomcast/pkg/protocol"
)

func TestWaterfallStopsOnResolved(t *testing.T) {
	h := newHarness(store.RoomSettings{
		WaterfallConditions: map[string]string{
			"a": "always_continue",
			"b": "resolved",
			"c": "always_continue",
		},
	},
		store.Bot{ID: "a", Name: "Alpha"},
		store.Bot{ID: "b", Name: "Beta"},
		store.Bot{ID: "c", Name: "Gamma"},
	)
	h.eng.replies["a"] = "passing this along"
	h.eng.replies["b"] = "This is now resolved."

	err := Waterfall{}.Execute(context.Background(), h.deps, []string{"a", "b", "c"}, triggerMessage("help"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	// The third bot's turn must never start.
	if got := h.eng.callOrder(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("call order = %v, want [a b]", got)
	}

	// And it must be told it was skipped.
	skips := h.pub.named(protocol.EventBotSkipped)
	if len(skips) != 1 {
		t.Fatalf("skipped events = %d, want 1", len(skips))
	}
	if got := h.pub.payloadField(skips[0], "bot_id"); got != "c" {
		t.Errorf("skipped bot = %v, want c", got)
	}
}

func TestWaterfallShouldStop(t *testing.T) {
	tests := []struct {
		name   string
		cond   string
		output string
		stop   bool
	}{
		{"always continue", "always_continue", "whatever resolved", false},
		{"unset condition continues", "", "short", false},
		{"resolved hit", "resolved", "Marking this RESOLVED now", true},
		{"resolved miss", "resolved", "still investigating", false},
		{"confidence colon", "confidence_high", "Confidence: HIGH on this", true},
		{"confidence prose", "confidence_high", "my confidence is high here", true},
		{"confidence miss", "confidence_high", "confidence: low", false},
		{"short response stops", "short_response", "done.", true},
		{"long response continues", "short_response", string(make([]byte, 400)), false},
		{"empty output never stops", "short_response", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := waterfallShouldStop(tt.cond, tt.output); got != tt.stop {
				t.Errorf("waterfallShouldStop(%q, ...) = %v, want %v", tt.cond, got, tt.stop)
			}
		})
	}
}

func TestWaterfallFailedBotDoesNotStop(t *testing.T) {
	h := newHarness(store.RoomSettings{
		WaterfallConditions: map[string]string{"a": "resolved"},
	},
		store.Bot{ID: "a", Name: "Alpha"},
		store.Bot{ID: "b", Name: "Beta"},
	)
	h.eng.errs["a"] = context.DeadlineExceeded

	if err := (Waterfall{}).Execute(context.Background(), h.deps, []string{"a", "b"}, triggerMessage("go")); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := h.eng.callOrder(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("cascade should continue past a failed bot: %v", got)
	}
}

func TestWaterfallRunsAllWithoutStop(t *testing.T) {
	h := newHarness(store.RoomSettings{},
		store.Bot{ID: "a", Name: "Alpha"},
		store.Bot{ID: "b", Name: "Beta"},
	)

	if err := (Waterfall{}).Execute(context.Background(), h.deps, []string{"a", "b"}, triggerMessage("go")); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := h.eng.callOrder(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("call order = %v", got)
	}
	if got := h.pub.named(protocol.EventWaterfallStep); len(got) != 2 {
		t.Errorf("step events = %d, want 2", len(got))
	}
}
