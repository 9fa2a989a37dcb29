package orchestrator

import (
	"reflect"
	"testing"
	"time"

	"github.com/nextlevelbuilder/roomcast/internal/store"
)

func testOrchestrator(settings store.RoomSettings, bots ...store.Bot) *Orchestrator {
	o := New("room-1", settings)
	for _, b := range bots {
		o.RegisterBot(b)
	}
	return o
}

func TestRegisterBotIdempotent(t *testing.T) {
	o := testOrchestrator(store.RoomSettings{},
		store.Bot{ID: "a", Name: "Alpha"},
		store.Bot{ID: "b", Name: "Beta"},
	)

	// Re-registering keeps roster position.
	o.RegisterBot(store.Bot{ID: "a", Name: "Alpha2"})

	roster := o.Roster()
	if len(roster) != 2 {
		t.Fatalf("roster size = %d, want 2", len(roster))
	}
	if roster[0].ID != "a" || roster[0].Name != "Alpha2" {
		t.Errorf("first bot = %+v, want updated Alpha in position 0", roster[0])
	}

	o.RemoveBot("a")
	if got := o.Roster(); len(got) != 1 || got[0].ID != "b" {
		t.Errorf("after remove, roster = %v", got)
	}
}

func TestCooldownLifecycle(t *testing.T) {
	o := testOrchestrator(store.RoomSettings{CooldownSeconds: 30},
		store.Bot{ID: "a", Name: "Alpha"},
	)

	now := time.Now()
	o.now = func() time.Time { return now }

	if o.IsOnCooldown("a") {
		t.Fatal("fresh bot should not be on cooldown")
	}

	o.MarkResponding("a")
	if !o.IsOnCooldown("a") {
		t.Fatal("responding bot must be on cooldown")
	}

	o.MarkDone("a")
	if !o.IsOnCooldown("a") {
		t.Fatal("bot inside the cooldown window must be on cooldown")
	}

	now = now.Add(31 * time.Second)
	if o.IsOnCooldown("a") {
		t.Fatal("cooldown must expire after the window")
	}

	// MarkDone is idempotent.
	o.MarkDone("a")
	o.MarkDone("a")
	now = now.Add(31 * time.Second)
	if o.IsOnCooldown("a") {
		t.Fatal("repeated MarkDone must not wedge the cooldown")
	}
}

func TestCooldownDisabled(t *testing.T) {
	o := testOrchestrator(store.RoomSettings{CooldownSeconds: 0},
		store.Bot{ID: "a", Name: "Alpha"},
	)
	o.MarkResponding("a")
	o.MarkDone("a")
	if o.IsOnCooldown("a") {
		t.Fatal("cooldown_seconds=0 disables the window")
	}
}

func TestSelectRespondents(t *testing.T) {
	settings := store.RoomSettings{CooldownSeconds: 30, AutoRelevance: true}

	tests := []struct {
		name       string
		bots       []store.Bot
		setup      func(o *Orchestrator)
		message    string
		senderType string
		exclude    string
		want       []string
	}{
		{
			name:       "system sender never triggers",
			bots:       []store.Bot{{ID: "a", Name: "Alpha"}},
			message:    "@Alpha please",
			senderType: "system",
			want:       nil,
		},
		{
			name:       "mention wins",
			bots:       []store.Bot{{ID: "a", Name: "Alpha"}, {ID: "b", Name: "Beta"}},
			message:    "@Beta take this",
			senderType: "user",
			want:       []string{"b"},
		},
		{
			name: "mention bypasses cooldown",
			bots: []store.Bot{{ID: "a", Name: "Alpha"}},
			setup: func(o *Orchestrator) {
				o.MarkResponding("a")
			},
			message:    "@Alpha still you",
			senderType: "user",
			want:       []string{"a"},
		},
		{
			name:       "bot cannot trigger itself",
			bots:       []store.Bot{{ID: "a", Name: "Alpha"}, {ID: "b", Name: "Beta"}},
			message:    "@Alpha @Beta thoughts?",
			senderType: "bot",
			exclude:    "a",
			want:       []string{"b"},
		},
		{
			name:       "auto relevance picks one voice",
			bots:       []store.Bot{{ID: "a", Name: "Alpha"}, {ID: "b", Name: "Beta"}},
			message:    "anyone?",
			senderType: "user",
			want:       []string{"a"},
		},
		{
			name: "lead preferred over registration order",
			bots: []store.Bot{
				{ID: "a", Name: "Alpha"},
				{ID: "b", Name: "Beta", Role: "lead"},
			},
			message:    "anyone?",
			senderType: "user",
			want:       []string{"b"},
		},
		{
			name: "observer never auto-selected",
			bots: []store.Bot{
				{ID: "a", Name: "Alpha", Role: "observer"},
				{ID: "b", Name: "Beta"},
			},
			message:    "anyone?",
			senderType: "user",
			want:       []string{"b"},
		},
		{
			name: "cooldown excludes from auto selection",
			bots: []store.Bot{{ID: "a", Name: "Alpha"}, {ID: "b", Name: "Beta"}},
			setup: func(o *Orchestrator) {
				o.MarkResponding("a")
			},
			message:    "anyone?",
			senderType: "user",
			want:       []string{"b"},
		},
		{
			name: "all on cooldown yields nobody",
			bots: []store.Bot{{ID: "a", Name: "Alpha"}},
			setup: func(o *Orchestrator) {
				o.MarkResponding("a")
			},
			message:    "anyone?",
			senderType: "user",
			want:       nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := testOrchestrator(settings, tt.bots...)
			if tt.setup != nil {
				tt.setup(o)
			}
			got := o.SelectRespondents(tt.message, tt.senderType, tt.exclude)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SelectRespondents() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSelectRespondentsAutoRelevanceOff(t *testing.T) {
	o := testOrchestrator(store.RoomSettings{AutoRelevance: false},
		store.Bot{ID: "a", Name: "Alpha"},
	)
	if got := o.SelectRespondents("anyone?", "user", ""); got != nil {
		t.Errorf("auto_relevance=false must select nobody, got %v", got)
	}
	if got := o.SelectRespondents("@Alpha you", "user", ""); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("mentions still work with auto_relevance off, got %v", got)
	}
}

func TestNextRelayBot(t *testing.T) {
	o := testOrchestrator(store.RoomSettings{},
		store.Bot{ID: "a", Name: "Alpha"},
		store.Bot{ID: "b", Name: "Beta"},
		store.Bot{ID: "c", Name: "Gamma"},
	)

	var got []string
	for i := 0; i < 6; i++ {
		b, ok := o.NextRelayBot()
		if !ok {
			t.Fatal("relay bot expected")
		}
		got = append(got, b.ID)
	}
	want := []string{"a", "b", "c", "a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("relay order = %v, want %v", got, want)
	}
}

func TestNextRoundRobinSkipsObservers(t *testing.T) {
	o := testOrchestrator(store.RoomSettings{},
		store.Bot{ID: "a", Name: "Alpha", Role: "observer"},
		store.Bot{ID: "b", Name: "Beta"},
		store.Bot{ID: "c", Name: "Gamma"},
	)

	var got []string
	for i := 0; i < 4; i++ {
		b, ok := o.NextRoundRobin()
		if !ok {
			t.Fatal("round robin bot expected")
		}
		got = append(got, b.ID)
	}
	want := []string{"b", "c", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round robin order = %v, want %v", got, want)
	}
}

func TestRoleFallbacks(t *testing.T) {
	o := testOrchestrator(store.RoomSettings{},
		store.Bot{ID: "a", Name: "Alpha", Role: "observer"},
		store.Bot{ID: "b", Name: "Beta"},
		store.Bot{ID: "c", Name: "Gamma", Role: "reviewer"},
	)

	if b, ok := o.FirstWithRole(RoleReviewer); !ok || b.ID != "c" {
		t.Errorf("FirstWithRole(reviewer) = %v %v", b, ok)
	}
	if _, ok := o.FirstWithRole(RoleLead); ok {
		t.Error("FirstWithRole(lead) should miss")
	}
	if b, ok := o.FirstEligible("b"); !ok || b.ID != "c" {
		t.Errorf("FirstEligible(skip b) = %v %v, want c", b, ok)
	}
	if b, ok := o.FirstEligible(""); !ok || b.ID != "b" {
		t.Errorf("FirstEligible() = %v %v, want b", b, ok)
	}
}

func TestParseModeFallback(t *testing.T) {
	if got := ParseMode("debate"); got != ModeDebate {
		t.Errorf("ParseMode(debate) = %v", got)
	}
	if got := ParseMode("bogus"); got != ModeParallel {
		t.Errorf("ParseMode(bogus) = %v, want parallel", got)
	}
}
