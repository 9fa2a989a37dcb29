package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a room or bot does not exist.
var ErrNotFound = errors.New("store: not found")

// Room is a persisted collaborative room.
type Room struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Settings  RoomSettings `json:"settings"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// RoomSettings is the coordination configuration consumed at session start
// and updatable at runtime via rooms.settings.
type RoomSettings struct {
	CooldownSeconds int    `json:"cooldown_seconds"`
	AutoRelevance   bool   `json:"auto_relevance"`
	ResponseMode    string `json:"response_mode"`

	// Router
	RoutingStrategy string              `json:"routing_strategy,omitempty"` // "keyword", "round_robin", "llm"
	BotKeywords     map[string][]string `json:"bot_keywords,omitempty"`     // bot id → keywords

	// Debate
	DebateRounds    int               `json:"debate_rounds,omitempty"`
	DebatePositions map[string]string `json:"debate_positions,omitempty"` // bot id → FOR/AGAINST/NEUTRAL
	JudgeBotID      string            `json:"judge_bot_id,omitempty"`
	JudgePrompt     string            `json:"judge_prompt,omitempty"`

	// Waterfall
	WaterfallConditions map[string]string `json:"waterfall_conditions,omitempty"` // bot id → condition name

	// Consensus
	SynthesizerBotID string `json:"synthesizer_bot_id,omitempty"`

	// Interview
	InterviewerBotID      string `json:"interviewer_bot_id,omitempty"`
	InterviewHandoff      string `json:"interview_handoff,omitempty"` // "keyword", "auto", "manual"
	InterviewMaxQuestions int    `json:"interview_max_questions,omitempty"`

	// Shared prompt context
	SystemPrompt string            `json:"system_prompt,omitempty"`
	Variables    map[string]string `json:"variables,omitempty"`
}

// Bot is a registered room bot.
type Bot struct {
	ID           string   `json:"id"`
	RoomID       string   `json:"room_id"`
	Name         string   `json:"name"`
	Provider     string   `json:"provider,omitempty"`
	Model        string   `json:"model,omitempty"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	Role         string   `json:"role"` // default, lead, reviewer, observer, specialist
	Capabilities []string `json:"capabilities,omitempty"`
}

// Message is a persisted room message (human, bot, or system).
type Message struct {
	ID         uuid.UUID `json:"id"`
	RoomID     string    `json:"room_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	SenderType string    `json:"sender_type"` // "user", "bot", "system"
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

// RoomStore is the source of truth for room and bot membership.
type RoomStore interface {
	GetRoom(ctx context.Context, id string) (*Room, error)
	UpsertRoom(ctx context.Context, room *Room) error
	UpdateSettings(ctx context.Context, roomID string, settings RoomSettings) error
	ListBots(ctx context.Context, roomID string) ([]Bot, error)
	UpsertBot(ctx context.Context, bot *Bot) error
	DeleteBot(ctx context.Context, roomID, botID string) error
}

// MessageStore persists the room transcript.
type MessageStore interface {
	AppendMessage(ctx context.Context, msg *Message) error
	// RecentMessages returns up to limit messages, oldest first.
	RecentMessages(ctx context.Context, roomID string, limit int) ([]Message, error)
}

// Stores bundles the backing stores plus a shared close hook.
type Stores struct {
	Rooms    RoomStore
	Messages MessageStore
	Close    func() error
}
