// Package prompt assembles the message list sent to the chat model: a
// grounding instruction chosen from retrieval results, the session history,
// and the new user message.
package prompt

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/grounded-chat/internal/memory"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/internal/retrieval"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/pkg/logger"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of a chat-completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Retriever finds the chunks relevant to a query.
type Retriever interface {
	Search(ctx context.Context, query string) ([]retrieval.ScoredChunk, error)
}

// HistoryReader exposes the prior turns of a session.
type HistoryReader interface {
	History(sessionID string) []memory.Turn
}

// Result is an assembled prompt.
type Result struct {
	Messages []Message `json:"messages"`
	// Sources are the retrieved chunk texts in rank order. Empty when
	// retrieval was disabled or found nothing.
	Sources []string `json:"sources"`
	Policy  Policy   `json:"policy"`
}

type Assembler struct {
	retriever Retriever
	history   HistoryReader
}

func NewAssembler(retriever Retriever, history HistoryReader) *Assembler {
	return &Assembler{
		retriever: retriever,
		history:   history,
	}
}

// Build returns [system, ...history, user] for the session. With ragEnabled
// the system message is grounded on the retrieved excerpts, or is a refusal
// instruction when nothing relevant was found. Without it no retrieval runs
// and the system message is generic. Build does not modify the session.
func (a *Assembler) Build(ctx context.Context, sessionID, userMessage string, ragEnabled bool) (*Result, error) {
	policy := PolicyGeneric
	sources := []string{}

	if ragEnabled {
		chunks, err := a.retriever.Search(ctx, userMessage)
		if err != nil {
			return nil, fmt.Errorf("retrieving context: %w", err)
		}
		for _, c := range chunks {
			sources = append(sources, c.Chunk.Text)
		}
		policy = PolicyNoMatch
		if len(sources) > 0 {
			policy = PolicyGrounded
		}
	}

	history := a.history.History(sessionID)
	messages := make([]Message, 0, len(history)+2)
	messages = append(messages, systemMessage(policy, sources))
	for _, t := range history {
		messages = append(messages, Message{Role: string(t.Role), Content: t.Content})
	}
	messages = append(messages, Message{Role: RoleUser, Content: userMessage})

	logger.FromContext(ctx).Debug("prompt assembled",
		"policy", policy,
		"history_turns", len(history),
		"sources", len(sources),
	)
	return &Result{Messages: messages, Sources: sources, Policy: policy}, nil
}
