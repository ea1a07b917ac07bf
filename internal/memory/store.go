// Package memory keeps per-session conversation history in process memory.
package memory

import "sync"

// DefaultSessionID is used when a caller does not name a session.
const DefaultSessionID = "default"

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type session struct {
	mu    sync.RWMutex
	turns []Turn
}

// Store maps session ids to their ordered turns. History grows without
// bound and lives only as long as the process.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*session)}
}

// History returns a copy of the session's turns, oldest first. An unknown
// session has an empty history.
func (s *Store) History(sessionID string) []Turn {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return []Turn{}
	}
	sess.mu.RLock()
	defer sess.mu.RUnlock()
	out := make([]Turn, len(sess.turns))
	copy(out, sess.turns)
	return out
}

// Append adds a user turn and the assistant's reply as one unit, creating the
// session if needed. Readers never observe one without the other.
func (s *Store) Append(sessionID, userMessage, assistantReply string) {
	sess := s.session(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.turns = append(sess.turns,
		Turn{Role: RoleUser, Content: userMessage},
		Turn{Role: RoleAssistant, Content: assistantReply},
	)
}

// Len returns the number of sessions with stored history.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Store) session(sessionID string) *session {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok {
		return sess
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok = s.sessions[sessionID]; ok {
		return sess
	}
	sess = &session{}
	s.sessions[sessionID] = sess
	return sess
}
