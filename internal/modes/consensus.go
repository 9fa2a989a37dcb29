package modes

import (
	"context"
	"errors"

	"github.com/nextlevelbuilder/roomcast/internal/orchestrator"
	"github.com/nextlevelbuilder/roomcast/internal/store"
	"github.com/nextlevelbuilder/roomcast/internal/supervisor"
	"github.com/nextlevelbuilder/roomcast/pkg/protocol"
)

// ErrNoResponses is surfaced when every contributor turn fails and there is
// nothing to synthesize.
var ErrNoResponses = errors.New("consensus: no responses collected")

// Consensus runs two phases: all contributor bots answer concurrently, then
// a synthesizer runs exactly once over the collected responses. Phase two
// strictly waits on the barrier; it never starts while a contributor is
// still in flight.
type Consensus struct{}

func (Consensus) Name() orchestrator.Mode { return orchestrator.ModeConsensus }

func (Consensus) Execute(ctx context.Context, d *Deps, respondents []string, msg store.Message) error {
	synth, ok := consensusSynthesizer(d)
	if !ok {
		return Parallel{}.Execute(ctx, d, respondents, msg)
	}

	// Every non-observer bot contributes, not just the triggering
	// selection; the synthesizer sits phase 1 out.
	var contributors []store.Bot
	for _, b := range d.Orch.Roster() {
		if b.ID == synth.ID || orchestrator.Role(b.Role) == orchestrator.RoleObserver {
			continue
		}
		contributors = append(contributors, b)
	}
	if len(contributors) == 0 {
		// The synthesizer is the only voice left; answer directly.
		return Parallel{}.Execute(ctx, d, respondents, msg)
	}

	d.Orch.Consensus.Begin(msg.ID.String())
	recent := d.recent(ctx)

	var tasks []*supervisor.Task
	for _, bot := range contributors {
		input := d.Orch.BuildRoomContext(bot.ID, recent)
		b := bot
		tasks = append(tasks, d.Supervisor.Spawn(ctx, d.Orch.RoomID, b.ID, func(tctx context.Context) {
			out, err := d.runTurn(tctx, b, input)
			if err == nil && out != "" {
				d.Orch.Consensus.Add(orchestrator.ConsensusResponse{
					BotID:    b.ID,
					BotName:  b.Name,
					Response: out,
				})
			}
		}))
	}

	for _, t := range tasks {
		t.Wait()
	}

	if d.Orch.Consensus.Count() == 0 {
		d.notifyFailure(synth, protocol.FailKindError, "no responses collected; nothing to synthesize")
		return ErrNoResponses
	}

	d.notify(protocol.EventConsensusSynthesizing, map[string]interface{}{
		"bot_id":    synth.ID,
		"bot_name":  synth.Name,
		"collected": d.Orch.Consensus.Count(),
	})

	input := d.Orch.BuildSynthesisContext(synth.ID, recent)
	out, err := d.runTurn(ctx, synth, input)
	if err != nil {
		return err
	}

	d.notify(protocol.EventConsensusComplete, map[string]interface{}{
		"bot_id":    synth.ID,
		"bot_name":  synth.Name,
		"collected": d.Orch.Consensus.Count(),
		"length":    len(out),
	})
	return nil
}

// consensusSynthesizer resolves the synthesizer: the configured bot, else
// the first lead, else the first eligible bot.
func consensusSynthesizer(d *Deps) (store.Bot, bool) {
	settings := d.Orch.Settings()
	if settings.SynthesizerBotID != "" {
		if b, ok := d.Orch.Bot(settings.SynthesizerBotID); ok {
			return b, true
		}
	}
	if b, ok := d.Orch.FirstWithRole(orchestrator.RoleLead); ok {
		return b, true
	}
	return d.Orch.FirstEligible("")
}
