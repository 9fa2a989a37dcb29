package modes

import (
	"context"

	"github.com/nextlevelbuilder/roomcast/internal/orchestrator"
	"github.com/nextlevelbuilder/roomcast/internal/store"
	"github.com/nextlevelbuilder/roomcast/pkg/protocol"
)

// Sequential runs bots one after another in respondent order. Later bots
// are unaffected by earlier bots' content; a failing bot is skipped and
// the sequence continues.
type Sequential struct{}

func (Sequential) Name() orchestrator.Mode { return orchestrator.ModeSequential }

func (Sequential) Execute(ctx context.Context, d *Deps, respondents []string, msg store.Message) error {
	recent := d.recent(ctx)

	for _, id := range respondents {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		bot, ok := d.Orch.Bot(id)
		if !ok {
			d.notifyFailure(store.Bot{ID: id, Name: id}, protocol.FailKindError, "bot is not registered in this room")
			continue
		}
		input := d.Orch.BuildRoomContext(bot.ID, recent)
		d.runTurn(ctx, bot, input)
	}
	return nil
}
