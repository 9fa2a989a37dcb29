package modes

import (
	"context"
	"strings"

	"github.com/nextlevelbuilder/roomcast/internal/orchestrator"
	"github.com/nextlevelbuilder/roomcast/internal/store"
	"github.com/nextlevelbuilder/roomcast/pkg/protocol"
)

// Waterfall condition names, configured per bot in room settings. After a
// bot's turn its condition decides whether the cascade continues; on stop,
// every remaining bot is explicitly marked skipped and no further turns run.
const (
	CondAlwaysContinue = "always_continue"
	CondResolved       = "resolved"
	CondConfidenceHigh = "confidence_high"
	CondShortResponse  = "short_response"
)

// shortResponseMax is the output length below which short_response stops
// the cascade.
const shortResponseMax = 280

// Waterfall runs bots like Chain, but inspects each output against the
// bot's configured stop condition before starting the next turn.
type Waterfall struct{}

func (Waterfall) Name() orchestrator.Mode { return orchestrator.ModeWaterfall }

func (Waterfall) Execute(ctx context.Context, d *Deps, respondents []string, msg store.Message) error {
	recent := d.recent(ctx)
	settings := d.Orch.Settings()
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

		d.notify(protocol.EventWaterfallStep, map[string]interface{}{
			"step":     i + 1,
			"total":    total,
			"bot_id":   bot.ID,
			"bot_name": bot.Name,
		})

		input := d.Orch.BuildChainContext(bot.ID, recent, prior)
		out, err := d.runTurn(ctx, bot, input)
		if err != nil {
			// A failed bot neither contributes nor stops the cascade.
			continue
		}
		if out != "" {
			prior = append(prior, orchestrator.ChainOutput{BotName: bot.Name, Content: out})
		}

		cond := settings.WaterfallConditions[bot.ID]
		if waterfallShouldStop(cond, out) {
			for _, remID := range respondents[i+1:] {
				if rem, ok := d.Orch.Bot(remID); ok {
					d.notifySkipped(rem, "waterfall stopped: "+cond)
				}
			}
			d.notify(protocol.EventWaterfallStep, map[string]interface{}{
				"step":      i + 1,
				"total":     total,
				"bot_id":    bot.ID,
				"stopped":   true,
				"condition": cond,
			})
			break
		}
	}
	return nil
}

func waterfallShouldStop(cond, output string) bool {
	switch cond {
	case CondResolved:
		lower := strings.ToLower(output)
		return strings.Contains(lower, "resolved")
	case CondConfidenceHigh:
		lower := strings.ToLower(output)
		return strings.Contains(lower, "confidence: high") ||
			strings.Contains(lower, "confidence is high")
	case CondShortResponse:
		return len(output) > 0 && len(output) < shortResponseMax
	default: // always_continue or unset
		return false
	}
}
