package orchestrator

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/nextlevelbuilder/roomcast/internal/store"
)

const (
	// maxContextMessages bounds the transcript slice handed to a bot.
	maxContextMessages = 50
	// maxPriorOutputChars truncates any single prior bot output embedded in
	// mode-specific context, keeping turn input size predictable.
	maxPriorOutputChars = 2000
)

// ChainOutput is one prior bot's contribution in chain/waterfall context.
type ChainOutput struct {
	BotName string
	Content string
}

// BuildRoomContext assembles the base turn input for a bot: identity
// framing, peers, role instruction, room system prompt and variables, and
// the recent transcript.
func (o *Orchestrator) BuildRoomContext(botID string, recent []store.Message) string {
	o.mu.Lock()
	bot, ok := o.bots[botID]
	roster := o.rosterLocked()
	settings := o.settings
	o.mu.Unlock()

	var b strings.Builder

	if ok {
		fmt.Fprintf(&b, "You are %s, a participant in a shared collaboration room.\n", bot.Name)
	}

	var peers []string
	for _, other := range roster {
		if other.ID != botID {
			peers = append(peers, other.Name)
		}
	}
	if len(peers) > 0 {
		fmt.Fprintf(&b, "Other bots in this room: %s.\n", strings.Join(peers, ", "))
		b.WriteString("You can address a peer directly with @BotName, or everyone with @all.\n")
	}

	if line := roleInstruction(Role(bot.Role)); line != "" {
		b.WriteString(line + "\n")
	}

	if settings.SystemPrompt != "" {
		b.WriteString("\nRoom instructions:\n" + settings.SystemPrompt + "\n")
	}
	if len(settings.Variables) > 0 {
		b.WriteString("\nRoom variables:\n")
		for _, k := range sortedKeys(settings.Variables) {
			fmt.Fprintf(&b, "- %s: %s\n", k, settings.Variables[k])
		}
	}

	b.WriteString("\nConversation so far:\n")
	msgs := recent
	if len(msgs) > maxContextMessages {
		msgs = msgs[len(msgs)-maxContextMessages:]
	}
	for _, m := range msgs {
		name := m.SenderName
		if name == "" {
			name = m.SenderID
		}
		fmt.Fprintf(&b, "%s: %s\n", name, m.Content)
	}

	return b.String()
}

func roleInstruction(role Role) string {
	switch role {
	case RoleLead:
		return "Your role: lead. Take initiative, coordinate the discussion, and make sure questions get answered."
	case RoleReviewer:
		return "Your role: reviewer. Critique and verify what others propose before it is accepted."
	case RoleObserver:
		return "Your role: observer. Stay quiet unless addressed directly."
	case RoleSpecialist:
		return "Your role: specialist. Contribute depth in your area of expertise and defer on the rest."
	default:
		return ""
	}
}

// BuildChainContext wraps the base context with prior bots' outputs so a
// later bot builds on, rather than repeats, earlier text.
func (o *Orchestrator) BuildChainContext(botID string, recent []store.Message, prior []ChainOutput) string {
	base := o.BuildRoomContext(botID, recent)
	if len(prior) == 0 {
		return base
	}

	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\nResponses from bots earlier in this chain:\n")
	for _, p := range prior {
		fmt.Fprintf(&b, "\n--- %s ---\n%s\n", p.BotName, truncate(p.Content, maxPriorOutputChars))
	}
	b.WriteString("\nBuild on the responses above. Do not repeat them.\n")
	return b.String()
}

// BuildDebateContext frames a bot's turn inside a debate round.
func (o *Orchestrator) BuildDebateContext(botID string, recent []store.Message, round, totalRounds int, position string) string {
	var b strings.Builder
	b.WriteString(o.BuildRoomContext(botID, recent))

	fmt.Fprintf(&b, "\nThis is a structured debate, round %d of %d.\n", round+1, totalRounds)
	if position != "" {
		fmt.Fprintf(&b, "Your assigned position: %s. Argue it regardless of personal preference.\n", position)
	}

	entries := o.Debate.Entries()
	if len(entries) > 0 {
		b.WriteString("\nDebate so far:\n")
		for _, e := range entries {
			tag := e.BotName
			if e.Position != "" {
				tag = fmt.Sprintf("%s (%s)", e.BotName, e.Position)
			}
			fmt.Fprintf(&b, "[round %d] %s: %s\n", e.Round+1, tag, truncate(e.Content, maxPriorOutputChars))
		}
	}
	b.WriteString("\nMake your argument for this round.\n")
	return b.String()
}

// BuildJudgeContext frames the judge's final turn over the full debate
// transcript.
func (o *Orchestrator) BuildJudgeContext(botID string, recent []store.Message) string {
	settings := o.Settings()

	var b strings.Builder
	b.WriteString(o.BuildRoomContext(botID, recent))
	b.WriteString("\nYou are judging the debate below.\n")

	for _, e := range o.Debate.Entries() {
		tag := e.BotName
		if e.Position != "" {
			tag = fmt.Sprintf("%s (%s)", e.BotName, e.Position)
		}
		fmt.Fprintf(&b, "[round %d] %s: %s\n", e.Round+1, tag, truncate(e.Content, maxPriorOutputChars))
	}

	if settings.JudgePrompt != "" {
		b.WriteString("\n" + settings.JudgePrompt + "\n")
	} else {
		b.WriteString("\nWeigh the arguments, name the strongest position, and explain your verdict.\n")
	}
	return b.String()
}

// BuildSynthesisContext frames the synthesizer's turn over all collected
// consensus responses.
func (o *Orchestrator) BuildSynthesisContext(botID string, recent []store.Message) string {
	var b strings.Builder
	b.WriteString(o.BuildRoomContext(botID, recent))
	b.WriteString("\nThe following responses were collected from the other bots:\n")
	for _, r := range o.Consensus.Responses() {
		fmt.Fprintf(&b, "\n--- %s ---\n%s\n", r.BotName, truncate(r.Response, maxPriorOutputChars))
	}
	b.WriteString("\nSynthesize these into a single consensus answer, noting real disagreements.\n")
	return b.String()
}

// BuildInterviewContext frames the interviewer's next question.
func (o *Orchestrator) BuildInterviewContext(botID string, recent []store.Message) string {
	settings := o.Settings()
	asked := o.Interview.QuestionCount()

	var b strings.Builder
	b.WriteString(o.BuildRoomContext(botID, recent))
	b.WriteString("\nYou are conducting an intake interview before specialists take over.\n")
	if settings.InterviewMaxQuestions > 0 {
		fmt.Fprintf(&b, "You have asked %d of at most %d questions.\n", asked, settings.InterviewMaxQuestions)
	} else {
		fmt.Fprintf(&b, "You have asked %d questions so far.\n", asked)
	}
	b.WriteString("Ask the single most useful next question. When you have enough, reply with [HANDOFF] to bring in the specialists.\n")
	return b.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// Back up to a rune boundary so the cut never emits invalid UTF-8.
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
