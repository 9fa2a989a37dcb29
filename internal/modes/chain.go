package modes

import (
	"context"

	"github.com/nextlevelbuilder/roomcast/internal/orchestrator"
	"github.com/nextlevelbuilder/roomcast/internal/store"
	"github.com/nextlevelbuilder/roomcast/pkg/protocol"
)

// Chain runs bots sequentially like Sequential, but each bot additionally
// receives all prior bots' output so later bots build on earlier text.
// A failed bot is simply absent from subsequent context.
type Chain struct{}

func (Chain) Name() orchestrator.Mode { return orchestrator.ModeChain }

func (Chain) Execute(ctx context.Context, d *Deps, respondents []string, msg store.Message) error {
	recent := d.recent(ctx)
	total := len(respondents)
	var prior []orchestrator.ChainOutput

	for i, id := range respondents {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		bot, ok := d.Orch.Bot(id)
		if !ok {
			d.notifyFailure(store.Bot{ID: id, Name: id}, protocol.FailKindError, "bot is not registered in this room")
			continue
		}

		d.notify(protocol.EventChainStep, map[string]interface{}{
			"step":     i + 1,
			"total":    total,
			"bot_id":   bot.ID,
			"bot_name": bot.Name,
		})

		input := d.Orch.BuildChainContext(bot.ID, recent, prior)
		out, err := d.runTurn(ctx, bot, input)
		if err == nil && out != "" {
			prior = append(prior, orchestrator.ChainOutput{BotName: bot.Name, Content: out})
		}
	}
	return nil
}
