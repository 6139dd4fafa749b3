// Package history provides the policy-aware conversation history store.
//
// Information Hiding:
// - Entry storage and dedup bookkeeping hidden behind the Store API
// - Internal metadata (keys, policies, step tags) never leaves the store;
//   callers only receive materialized role/content views
package history

import (
	"sync"
	"time"

	"github.com/forshape/stepflow/llm"
)

// Policy is the deduplication rule applied when appending an entry
// under a given key.
type Policy int

const (
	// PolicyDefault keeps every entry in call order.
	PolicyDefault Policy = iota
	// PolicyOnce keeps only the first entry with a given key.
	PolicyOnce
	// PolicyLatest keeps only the last entry with a given key.
	PolicyLatest
	// PolicyDiscard never persists the entry.
	PolicyDiscard
)

// String returns the policy name.
func (p Policy) String() string {
	switch p {
	case PolicyOnce:
		return "once"
	case PolicyLatest:
		return "latest"
	case PolicyDiscard:
		return "discard"
	default:
		return "default"
	}
}

// Entry is one stored history message with its internal metadata.
type Entry struct {
	Role           string
	Content        string
	Parts          []llm.ContentPart
	Key            string
	Policy         Policy
	Timestamp      time.Time
	ConversationID string
	StepName       string
}

// Store is an append-only, policy-aware log of conversation messages.
// A store belongs to exactly one orchestrator run at a time; the mutex
// exists only so a UI goroutine can take read snapshots while the
// worker goroutine appends.
type Store struct {
	mu             sync.Mutex
	entries        []Entry
	conversationID string
	now            func() time.Time
}

// NewStore creates an empty history store.
func NewStore() *Store {
	return &Store{now: time.Now}
}

// Append adds an entry after applying its dedup policy.
//
// PolicyDiscard entries are dropped. PolicyOnce keeps the first entry
// with the key and ignores later ones. PolicyLatest removes any earlier
// entry with the key before appending, so the newest wins. Keyless
// entries always behave as PolicyDefault.
func (s *Store) Append(e Entry) {
	if e.Policy == PolicyDiscard {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if e.Key != "" {
		switch e.Policy {
		case PolicyOnce:
			for _, existing := range s.entries {
				if existing.Key == e.Key {
					return
				}
			}
		case PolicyLatest:
			// Fresh slice so replaced entries (and their Parts) are
			// not pinned by the old backing array.
			kept := make([]Entry, 0, len(s.entries))
			for _, existing := range s.entries {
				if existing.Key != e.Key {
					kept = append(kept, existing)
				}
			}
			s.entries = kept
		}
	}

	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}
	if e.ConversationID == "" {
		e.ConversationID = s.conversationID
	}
	s.entries = append(s.entries, e)
}

// AppendMessage is a convenience for untagged default-policy entries.
func (s *Store) AppendMessage(role, content string) {
	s.Append(Entry{Role: role, Content: content})
}

// Materialize returns role/content pairs only, oldest first, optionally
// limited to the last n entries (n <= 0 returns everything). This is
// the only view external callers see; internal metadata stays inside.
func (s *Store) Materialize(lastN int) []llm.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := 0
	if lastN > 0 && len(s.entries) > lastN {
		start = len(s.entries) - lastN
	}

	messages := make([]llm.ChatMessage, 0, len(s.entries)-start)
	for _, e := range s.entries[start:] {
		messages = append(messages, llm.ChatMessage{
			Role:    e.Role,
			Content: e.Content,
			Parts:   e.Parts,
		})
	}
	return messages
}

// DropByStep removes every entry tagged with the given step name and
// returns the number removed. Used by maintenance steps to discard
// scratch context between phases.
func (s *Store) DropByStep(stepName string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	dropped := 0
	for _, e := range s.entries {
		if e.StepName == stepName {
			dropped++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return dropped
}

// SetConversation stamps all subsequent appends with the given
// conversation id until changed.
func (s *Store) SetConversation(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversationID = id
}

// ConversationID returns the current conversation id.
func (s *Store) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// Clear wipes all entries (new chat). The conversation id is kept; a
// new conversation sets its own.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Snapshot returns a copy of all entries for export or persistence.
// The copy is safe to read while the worker goroutine keeps appending.
func (s *Store) Snapshot() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]Entry, len(s.entries))
	copy(entries, s.entries)
	return entries
}

// LastAssistantContent scans backward for the most recent assistant
// entry and returns its content. Used when a caller step resumes and
// needs the callee's concluding message.
func (s *Store) LastAssistantContent() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].Role == "assistant" {
			return s.entries[i].Content, true
		}
	}
	return "", false
}
