package modes

import (
	"context"

	"github.com/nextlevelbuilder/roomcast/internal/orchestrator"
	"github.com/nextlevelbuilder/roomcast/internal/store"
	"github.com/nextlevelbuilder/roomcast/internal/supervisor"
	"github.com/nextlevelbuilder/roomcast/pkg/protocol"
)

// Parallel is the default mode: one task per respondent, started
// concurrently, each running independently to completion or failure.
type Parallel struct{}

func (Parallel) Name() orchestrator.Mode { return orchestrator.ModeParallel }

func (Parallel) Execute(ctx context.Context, d *Deps, respondents []string, msg store.Message) error {
	if len(respondents) == 0 {
		return nil
	}
	recent := d.recent(ctx)

	var tasks []*supervisor.Task
	for _, id := range respondents {
		bot, ok := d.Orch.Bot(id)
		if !ok {
			d.notifyFailure(store.Bot{ID: id, Name: id}, protocol.FailKindError, "bot is not registered in this room")
			continue
		}
		input := d.Orch.BuildRoomContext(bot.ID, recent)
		tasks = append(tasks, d.Supervisor.Spawn(ctx, d.Orch.RoomID, bot.ID, func(tctx context.Context) {
			d.runTurn(tctx, bot, input)
		}))
	}

	for _, t := range tasks {
		t.Wait()
	}
	return nil
}
