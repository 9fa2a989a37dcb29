package orchestrator

import (
	"reflect"
	"testing"

	"github.com/nextlevelbuilder/roomcast/internal/store"
)

func mentionRoster() []store.Bot {
	return []store.Bot{
		{ID: "b1", Name: "Coach"},
		{ID: "b2", Name: "CoachPro"},
		{ID: "b3", Name: "Sage"},
	}
}

func TestParseMentions(t *testing.T) {
	roster := mentionRoster()

	tests := []struct {
		name    string
		message string
		want    []string
	}{
		{"no at sign", "hello coach", nil},
		{"simple mention", "hey @Coach what do you think", []string{"b1"}},
		{"case insensitive", "hey @coach", []string{"b1"}},
		{"exact word boundary", "ping @Coaching about it", nil},
		{"longer name not shadowed", "ask @CoachPro instead", []string{"b2"}},
		{"both names", "@Coach and @CoachPro please weigh in", []string{"b1", "b2"}},
		{"punctuation after", "thanks @Sage!", []string{"b3"}},
		{"mid sentence comma", "ok @Coach, go ahead", []string{"b1"}},
		{"email-like is not a mention", "mail coach@coach.example please", nil},
		{"double at rejected", "weird @@Coach token", nil},
		{"all selects roster order", "@all standup time", []string{"b1", "b2", "b3"}},
		{"all inside word ignored", "see @allocation docs", nil},
		{"unknown name", "@Nobody around?", nil},
		{"multibyte letter before", "café@Coach", nil},
		{"cjk letter before", "问问@Coach", nil},
		{"multibyte punctuation before", "«@Coach» please", []string{"b1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseMentions(tt.message, roster)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseMentions(%q) = %v, want %v", tt.message, got, tt.want)
			}
		})
	}
}

func TestParseMentionsEmptyRoster(t *testing.T) {
	if got := ParseMentions("@all hello", nil); len(got) != 0 {
		t.Errorf("expected no mentions on empty roster, got %v", got)
	}
}
