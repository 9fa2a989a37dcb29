// Package engine is the boundary to the external turn-execution engine.
// The coordinator hands it a bot spec plus input text and reacts only to
// the event stream and terminal status; how the bot "thinks" is opaque.
package engine

import (
	"context"
	"errors"
)

// ErrBudgetExceeded is the distinct, expected condition for a turn refused
// or stopped because a spend limit was reached. Not a bug: surfaced to the
// room with a dedicated message rather than a generic error.
var ErrBudgetExceeded = errors.New("engine: budget exceeded")

// BotSpec is the engine-facing slice of a bot configuration.
type BotSpec struct {
	ID           string
	Name         string
	Provider     string
	Model        string
	SystemPrompt string
}

// EventType discriminates stream events.
type EventType string

const (
	EventTextDelta EventType = "text_delta"
	EventToolStart EventType = "tool_start"
	EventToolEnd   EventType = "tool_end"
)

// Event is one element of a turn's ordered event stream.
type Event struct {
	Type EventType
	Text string // text_delta
	Tool string // tool_start / tool_end
}

// Usage tracks token consumption for one turn.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result is the terminal outcome of a successful turn.
type Result struct {
	Content   string
	ToolCalls []string // tool names invoked during the turn, in order
	Usage     Usage
}

// Engine executes one bot turn. Implementations must respect ctx
// cancellation and deadlines, and return ErrBudgetExceeded (possibly
// wrapped) when the upstream reports a spend-limit condition.
type Engine interface {
	Run(ctx context.Context, bot BotSpec, input string, sink func(Event)) (*Result, error)
}
