// Package llm invokes an OpenAI-compatible chat-completion endpoint and
// guards the call with rate limiting, retries and a circuit breaker.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/grounded-chat/internal/prompt"
)

// Completer turns an ordered message list into the assistant's reply.
type Completer interface {
	Complete(ctx context.Context, messages []prompt.Message) (string, error)
}

// ErrEmptyResponse is returned when the model answers with no choices.
var ErrEmptyResponse = errors.New("model returned no choices")

// StatusError is a non-2xx response from the model endpoint.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("model endpoint returned status %d: %s", e.Code, e.Message)
}

// Retryable reports whether the request may succeed if repeated.
func (e *StatusError) Retryable() bool {
	return e.Code == 429 || e.Code >= 500
}
