package modes

import (
	"context"

	"github.com/nextlevelbuilder/roomcast/internal/orchestrator"
	"github.com/nextlevelbuilder/roomcast/internal/store"
	"github.com/nextlevelbuilder/roomcast/pkg/protocol"
)

// Relay gives each bot a turn in strict rotation. The cursor advances on
// every triggering message regardless of mentions, so every bot speaks once
// before any bot speaks twice.
type Relay struct{}

func (Relay) Name() orchestrator.Mode { return orchestrator.ModeRelay }

func (Relay) Execute(ctx context.Context, d *Deps, respondents []string, msg store.Message) error {
	bot, ok := d.Orch.NextRelayBot()
	if !ok {
		return nil
	}

	d.notify(protocol.EventRelayDecision, map[string]interface{}{
		"bot_id":   bot.ID,
		"bot_name": bot.Name,
	})

	input := d.Orch.BuildRoomContext(bot.ID, d.recent(ctx))
	d.runTurn(ctx, bot, input)
	return nil
}
