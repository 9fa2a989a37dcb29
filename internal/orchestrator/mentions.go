package orchestrator

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/nextlevelbuilder/roomcast/internal/store"
)

// ParseMentions extracts explicit @BotName / @all targeting from a message
// against the current roster. Pure function of its inputs.
//
// Priority: a word-boundary "@all" selects the whole roster in roster
// order; otherwise each bot matches independently on "@<exact name>" as a
// case-insensitive whole word. A bot named "Coach" must not match inside
// "@Coaching".
func ParseMentions(message string, roster []store.Bot) []string {
	if !strings.Contains(message, "@") {
		return nil
	}

	if containsMentionToken(message, "all") {
		out := make([]string, 0, len(roster))
		for _, b := range roster {
			out = append(out, b.ID)
		}
		return out
	}

	var out []string
	for _, b := range roster {
		if b.Name == "" {
			continue
		}
		if containsMentionToken(message, b.Name) {
			out = append(out, b.ID)
		}
	}
	return out
}

// containsMentionToken reports whether message contains "@"+token as a
// case-insensitive whole word: the preceding rune must not be a word rune
// and the rune after the token must not extend the word.
func containsMentionToken(message, token string) bool {
	lower := strings.ToLower(message)
	needle := "@" + strings.ToLower(token)

	from := 0
	for {
		idx := strings.Index(lower[from:], needle)
		if idx < 0 {
			return false
		}
		idx += from

		startOK := true
		if idx > 0 {
			// Decode the full preceding rune; inspecting a single byte
			// would misread the tail of a multibyte letter as a boundary.
			prev, _ := utf8.DecodeLastRuneInString(lower[:idx])
			if isWordRune(prev) || prev == '@' {
				startOK = false
			}
		}

		endOK := true
		end := idx + len(needle)
		if end < len(lower) {
			next, _ := utf8.DecodeRuneInString(lower[end:])
			if isWordRune(next) {
				endOK = false
			}
		}

		if startOK && endOK {
			return true
		}
		from = idx + 1
	}
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
