package orchestrator

import "sync"

// Mode-session state. Each state object has a single Begin entry point
// keyed by a session id (the triggering message id): Begin resets the
// buffers when a new session starts and is a no-op when called again with
// the same id. This keeps "start of session" explicit instead of resetting
// by convention wherever a strategy happens to run first.

// DebateEntry is one contribution to a debate transcript.
// Round is 0-indexed internally; progress events report it 1-indexed.
type DebateEntry struct {
	Round    int    `json:"round"`
	BotID    string `json:"bot_id"`
	BotName  string `json:"bot_name"`
	Position string `json:"position,omitempty"` // FOR, AGAINST, NEUTRAL, or empty
	Content  string `json:"content"`
}

// DebateState holds the shared ordered transcript for one debate session.
type DebateState struct {
	mu        sync.Mutex
	sessionID string
	entries   []DebateEntry
}

// Begin starts a debate session, clearing the transcript when the session
// id differs from the one in progress.
func (s *DebateState) Begin(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessionID == sessionID {
		return
	}
	s.sessionID = sessionID
	s.entries = nil
}

// Append records one contribution.
func (s *DebateState) Append(e DebateEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
}

// Entries returns a copy of the transcript in order.
func (s *DebateState) Entries() []DebateEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DebateEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// ConsensusResponse is one phase-1 contribution.
type ConsensusResponse struct {
	BotID    string `json:"bot_id"`
	BotName  string `json:"bot_name"`
	Response string `json:"response"`
}

// ConsensusState buffers contributor responses between the concurrent
// phase 1 and the synthesis phase. Add is safe for concurrent use; order
// of arrival is preserved.
type ConsensusState struct {
	mu        sync.Mutex
	sessionID string
	responses []ConsensusResponse
}

// Begin starts a consensus session, clearing the buffer for a new id.
func (s *ConsensusState) Begin(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessionID == sessionID {
		return
	}
	s.sessionID = sessionID
	s.responses = nil
}

// Add records one contributor response.
func (s *ConsensusState) Add(r ConsensusResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, r)
}

// Responses returns a copy of the collected responses.
func (s *ConsensusState) Responses() []ConsensusResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ConsensusResponse, len(s.responses))
	copy(out, s.responses)
	return out
}

// Count returns the number of collected responses.
func (s *ConsensusState) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.responses)
}

// InterviewState tracks interviewer progress across messages. Unlike
// debate/consensus it spans many triggering messages: the counter and the
// handoff flag persist until Reset.
type InterviewState struct {
	mu            sync.Mutex
	questionCount int
	triggered     bool
	triggerReason string
}

// IncrementQuestion bumps the question counter and returns the new count.
func (s *InterviewState) IncrementQuestion() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questionCount++
	return s.questionCount
}

// QuestionCount returns the number of interviewer turns so far.
func (s *InterviewState) QuestionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.questionCount
}

// Trigger marks the handoff as fired. The first caller wins; later calls
// are no-ops and return false.
func (s *InterviewState) Trigger(reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.triggered {
		return false
	}
	s.triggered = true
	s.triggerReason = reason
	return true
}

// Triggered reports whether the handoff has fired.
func (s *InterviewState) Triggered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.triggered
}

// TriggerReason returns what fired the handoff.
func (s *InterviewState) TriggerReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.triggerReason
}

// Reset clears the interview session (called when interview settings
// change or the room session restarts).
func (s *InterviewState) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questionCount = 0
	s.triggered = false
	s.triggerReason = ""
}
