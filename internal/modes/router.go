package modes

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/nextlevelbuilder/roomcast/internal/engine"
	"github.com/nextlevelbuilder/roomcast/internal/orchestrator"
	"github.com/nextlevelbuilder/roomcast/internal/store"
	"github.com/nextlevelbuilder/roomcast/pkg/protocol"
)

// Routing strategy names.
const (
	RouteKeyword    = "keyword"
	RouteRoundRobin = "round_robin"
	RouteLLM        = "llm"
)

// Router picks exactly one bot before any turn starts, overriding the
// default selection when the room has two or more eligible bots and the
// message names nobody explicitly. A strategy failure falls back to the
// default selection instead of dropping the message.
type Router struct{}

func (Router) Name() orchestrator.Mode { return orchestrator.ModeRouter }

func (Router) Execute(ctx context.Context, d *Deps, respondents []string, msg store.Message) error {
	roster := d.Orch.Roster()
	settings := d.Orch.Settings()

	eligible := 0
	for _, b := range roster {
		if orchestrator.Role(b.Role) != orchestrator.RoleObserver {
			eligible++
		}
	}
	mentioned := orchestrator.ParseMentions(msg.Content, roster)

	// Mentions and small rooms keep the default selection.
	if len(mentioned) > 0 || eligible < 2 {
		return Sequential{}.Execute(ctx, d, respondents, msg)
	}

	strategy := settings.RoutingStrategy
	bot, reason, ok := routeBot(ctx, d, strategy, msg)
	if !ok {
		slog.Warn("router.fallback", "room", d.Orch.RoomID, "strategy", strategy)
		return Sequential{}.Execute(ctx, d, respondents, msg)
	}

	d.notify(protocol.EventRouterDecision, map[string]interface{}{
		"strategy": strategy,
		"bot_id":   bot.ID,
		"bot_name": bot.Name,
		"reason":   reason,
	})

	recent := d.recent(ctx)
	input := d.Orch.BuildRoomContext(bot.ID, recent)
	d.runTurn(ctx, bot, input)
	return nil
}

func routeBot(ctx context.Context, d *Deps, strategy string, msg store.Message) (store.Bot, string, bool) {
	switch strategy {
	case RouteRoundRobin:
		b, ok := d.Orch.NextRoundRobin()
		return b, "round robin cursor", ok
	case RouteLLM:
		if b, reason, ok := routeByLLM(ctx, d, msg); ok {
			return b, reason, true
		}
		return store.Bot{}, "", false
	default: // keyword
		return routeByKeyword(d, msg)
	}
}

// routeByKeyword scores every non-observer bot by how many of its
// configured keywords appear in the message; the highest score wins and
// roster order breaks ties. No match at all means no routing decision.
func routeByKeyword(d *Deps, msg store.Message) (store.Bot, string, bool) {
	settings := d.Orch.Settings()
	lower := strings.ToLower(msg.Content)

	var best store.Bot
	bestScore := 0
	bestKeyword := ""
	for _, b := range d.Orch.Roster() {
		if orchestrator.Role(b.Role) == orchestrator.RoleObserver {
			continue
		}
		score := 0
		first := ""
		for _, kw := range settings.BotKeywords[b.ID] {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				score++
				if first == "" {
					first = kw
				}
			}
		}
		if score > bestScore {
			best, bestScore, bestKeyword = b, score, first
		}
	}
	if bestScore == 0 {
		return store.Bot{}, "", false
	}
	return best, "matched keyword " + strconv.Quote(bestKeyword), true
}

// routeByLLM asks the engine itself to name the best-suited bot. The reply
// is matched against roster names and ids; anything unrecognizable counts
// as a strategy failure.
func routeByLLM(ctx context.Context, d *Deps, msg store.Message) (store.Bot, string, bool) {
	roster := d.Orch.Roster()

	var b strings.Builder
	b.WriteString("Pick the single best bot to answer the user's message.\n\nBots:\n")
	for _, bot := range roster {
		if orchestrator.Role(bot.Role) == orchestrator.RoleObserver {
			continue
		}
		fmt.Fprintf(&b, "- %s", bot.Name)
		if bot.SystemPrompt != "" {
			fmt.Fprintf(&b, ": %s", firstLine(bot.SystemPrompt))
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nMessage: %s\n\nReply with exactly one bot name and nothing else.\n", msg.Content)

	rctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	result, err := d.Engine.Run(rctx, engine.BotSpec{ID: "_router", Name: "router"}, b.String(), func(engine.Event) {})
	if err != nil {
		slog.Warn("router.llm_failed", "room", d.Orch.RoomID, "error", err)
		return store.Bot{}, "", false
	}

	answer := strings.ToLower(strings.TrimSpace(result.Content))
	for _, bot := range roster {
		if orchestrator.Role(bot.Role) == orchestrator.RoleObserver {
			continue
		}
		if strings.Contains(answer, strings.ToLower(bot.Name)) || strings.Contains(answer, strings.ToLower(bot.ID)) {
			return bot, "selected by routing model", true
		}
	}
	return store.Bot{}, "", false
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 120 {
		s = s[:120]
	}
	return s
}
