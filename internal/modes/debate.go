package modes

import (
	"context"

	"github.com/nextlevelbuilder/roomcast/internal/orchestrator"
	"github.com/nextlevelbuilder/roomcast/internal/store"
	"github.com/nextlevelbuilder/roomcast/pkg/protocol"
)

// defaultDebateRounds applies when the room does not configure a count.
const defaultDebateRounds = 2

// Debate runs a fixed number of rounds in which every respondent argues in
// turn, building a shared transcript, then optionally hands the full
// transcript to a judge for a verdict. A bot failing mid-round is recorded
// as absent for that round; the debate continues.
type Debate struct{}

func (Debate) Name() orchestrator.Mode { return orchestrator.ModeDebate }

func (Debate) Execute(ctx context.Context, d *Deps, respondents []string, msg store.Message) error {
	settings := d.Orch.Settings()
	rounds := settings.DebateRounds
	if rounds <= 0 {
		rounds = defaultDebateRounds
	}

	d.Orch.Debate.Begin(msg.ID.String())
	recent := d.recent(ctx)

	for round := 0; round < rounds; round++ {
		for _, id := range respondents {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			bot, ok := d.Orch.Bot(id)
			if !ok {
				d.notifyFailure(store.Bot{ID: id, Name: id}, protocol.FailKindError, "bot is not registered in this room")
				continue
			}
			position := settings.DebatePositions[bot.ID]

			d.notify(protocol.EventDebateRound, map[string]interface{}{
				"round":    round + 1,
				"total":    rounds,
				"bot_id":   bot.ID,
				"bot_name": bot.Name,
				"position": position,
			})

			input := d.Orch.BuildDebateContext(bot.ID, recent, round, rounds, position)
			out, err := d.runTurn(ctx, bot, input)
			if err != nil || out == "" {
				continue
			}
			d.Orch.Debate.Append(orchestrator.DebateEntry{
				Round:    round,
				BotID:    bot.ID,
				BotName:  bot.Name,
				Position: position,
				Content:  out,
			})
		}
	}

	judge, ok := debateJudge(d, settings)
	if !ok {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	d.notify(protocol.EventDebateJudge, map[string]interface{}{
		"bot_id":   judge.ID,
		"bot_name": judge.Name,
	})
	input := d.Orch.BuildJudgeContext(judge.ID, recent)
	d.runTurn(ctx, judge, input)
	return nil
}

// debateJudge resolves the judge. The debate is judged only when settings
// name one; a missing configured bot falls back to the first reviewer, then
// the first eligible bot.
func debateJudge(d *Deps, settings store.RoomSettings) (store.Bot, bool) {
	if settings.JudgeBotID == "" {
		return store.Bot{}, false
	}
	if b, ok := d.Orch.Bot(settings.JudgeBotID); ok {
		return b, true
	}
	if b, ok := d.Orch.FirstWithRole(orchestrator.RoleReviewer); ok {
		return b, true
	}
	return d.Orch.FirstEligible("")
}
