package modes

import (
	"context"
	"strings"

	"github.com/nextlevelbuilder/roomcast/internal/orchestrator"
	"github.com/nextlevelbuilder/roomcast/internal/store"
	"github.com/nextlevelbuilder/roomcast/internal/supervisor"
	"github.com/nextlevelbuilder/roomcast/pkg/protocol"
)

// Interview handoff trigger modes.
const (
	HandoffKeyword = "keyword"
	HandoffAuto    = "auto"
	HandoffManual  = "manual"
)

// handoffMarker is the in-text signal an interviewer emits when it has
// gathered enough to bring in the specialists.
const handoffMarker = "[HANDOFF]"

// cancelKeywords are the user phrases that end the interview early in
// keyword and manual trigger modes.
var cancelKeywords = []string{"cancel", "stop interview", "skip interview", "handoff"}

// Interview runs a single interviewer turn per message until a handoff
// fires, then replaces the interviewer with all remaining eligible
// specialists running concurrently.
//
// What fires the handoff depends on the trigger mode: keyword listens for
// the marker, a user cancel phrase, and the question cap; manual listens
// for the user phrase only; auto listens for the marker and the cap.
type Interview struct{}

func (Interview) Name() orchestrator.Mode { return orchestrator.ModeInterview }

func (Interview) Execute(ctx context.Context, d *Deps, respondents []string, msg store.Message) error {
	settings := d.Orch.Settings()
	trigger := settings.InterviewHandoff
	if trigger == "" {
		trigger = HandoffAuto
	}

	if msg.SenderType == "user" && trigger != HandoffAuto && matchesCancelKeyword(msg.Content) {
		if d.Orch.Interview.Trigger("user_request") {
			notifyHandoff(d, "user_request")
		}
	}

	if d.Orch.Interview.Triggered() {
		return runSpecialists(ctx, d, settings)
	}

	interviewer, ok := interviewerBot(d, settings)
	if !ok {
		return nil
	}

	input := d.Orch.BuildInterviewContext(interviewer.ID, d.recent(ctx))
	out, err := d.runTurn(ctx, interviewer, input)
	if err != nil {
		return nil
	}

	asked := d.Orch.Interview.IncrementQuestion()
	d.notify(protocol.EventInterviewProgress, map[string]interface{}{
		"bot_id":   interviewer.ID,
		"bot_name": interviewer.Name,
		"asked":    asked,
		"max":      settings.InterviewMaxQuestions,
	})

	reason := ""
	switch {
	case trigger != HandoffManual && strings.Contains(out, handoffMarker):
		reason = "handoff_marker"
	case trigger != HandoffManual && settings.InterviewMaxQuestions > 0 && asked >= settings.InterviewMaxQuestions:
		reason = "max_questions"
	}
	if reason != "" && d.Orch.Interview.Trigger(reason) {
		notifyHandoff(d, reason)
		return runSpecialists(ctx, d, settings)
	}
	return nil
}

func notifyHandoff(d *Deps, reason string) {
	d.notify(protocol.EventInterviewHandoff, map[string]interface{}{
		"reason": reason,
	})
}

func matchesCancelKeyword(content string) bool {
	lower := strings.ToLower(strings.TrimSpace(content))
	for _, kw := range cancelKeywords {
		if lower == kw {
			return true
		}
	}
	return false
}

// interviewerBot resolves the interviewer: the configured bot, else the
// first non-observer on the roster.
func interviewerBot(d *Deps, settings store.RoomSettings) (store.Bot, bool) {
	if settings.InterviewerBotID != "" {
		if b, ok := d.Orch.Bot(settings.InterviewerBotID); ok {
			return b, true
		}
	}
	return d.Orch.FirstEligible("")
}

// runSpecialists runs every remaining eligible bot concurrently in place of
// the interviewer.
func runSpecialists(ctx context.Context, d *Deps, settings store.RoomSettings) error {
	interviewerID := ""
	if b, ok := interviewerBot(d, settings); ok {
		interviewerID = b.ID
	}

	recent := d.recent(ctx)
	var tasks []*supervisor.Task
	for _, bot := range d.Orch.Roster() {
		if bot.ID == interviewerID || orchestrator.Role(bot.Role) == orchestrator.RoleObserver {
			continue
		}
		input := d.Orch.BuildRoomContext(bot.ID, recent)
		b := bot
		tasks = append(tasks, d.Supervisor.Spawn(ctx, d.Orch.RoomID, b.ID, func(tctx context.Context) {
			d.runTurn(tctx, b, input)
		}))
	}
	for _, t := range tasks {
		t.Wait()
	}
	return nil
}
