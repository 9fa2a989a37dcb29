package protocol

// WebSocket event names pushed from server to client.
// Clients treat these as an ordered, at-least-once stream scoped to a room.
const (
	EventHealth   = "health"
	EventShutdown = "shutdown"

	// Room chat events.
	EventChatMessage = "chat.message"

	// Per-turn bot events.
	EventBotThinking = "bot.thinking"
	EventBotDelta    = "bot.delta"
	EventBotTool     = "bot.tool"
	EventBotDone     = "bot.done"
	EventBotError    = "bot.error"
	EventBotSkipped  = "bot.skipped"

	// Mode progress events.
	EventChainStep             = "mode.chain.step"
	EventWaterfallStep         = "mode.waterfall.step"
	EventRouterDecision        = "mode.router.decision"
	EventRelayDecision         = "mode.relay.decision"
	EventDebateRound           = "mode.debate.round"
	EventDebateJudge           = "mode.debate.judge"
	EventConsensusSynthesizing = "mode.consensus.synthesizing"
	EventConsensusComplete     = "mode.consensus.complete"
	EventInterviewProgress     = "mode.interview.progress"
	EventInterviewHandoff      = "mode.interview.handoff"
)

// Failure kinds carried in bot.error payloads (payload.kind).
const (
	FailKindCancelled = "cancelled"
	FailKindTimeout   = "timeout"
	FailKindBudget    = "budget"
	FailKindError     = "error"
)
