package analytics

import "time"

type EventType string

const (
	EventChatTurn EventType = "chat_turn"
)

// ChatEvent describes one completed or failed chat turn.
type ChatEvent struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	SessionID   string    `json:"session_id"`
	Policy      string    `json:"policy"`
	RAGEnabled  bool      `json:"rag_enabled"`
	SourceCount int       `json:"source_count"`
	LatencyMs   int64     `json:"latency_ms"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	RequestID   string    `json:"request_id,omitempty"`
}
