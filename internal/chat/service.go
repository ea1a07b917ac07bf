// Package chat runs a chat turn end to end: assemble the prompt, call the
// model, and record the exchange only when the model answered.
package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/grounded-chat/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/internal/llm"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/internal/memory"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/internal/prompt"
	apperrors "github.com/Adithya-Monish-Kumar-K/grounded-chat/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/pkg/tracing"
	"github.com/google/uuid"
)

// Memory is the conversation store a Service reads and appends to.
type Memory interface {
	prompt.HistoryReader
	Append(sessionID, userMessage, assistantReply string)
	Len() int
}

// Tracker receives analytics events.
type Tracker interface {
	Track(event analytics.ChatEvent)
}

// Throttle decides whether a session may start another turn.
type Throttle interface {
	Allow(sessionID string) bool
}

// Request is a single chat turn. SessionID must already be resolved; use
// memory.DefaultSessionID when the caller supplied none.
type Request struct {
	SessionID string
	Message   string
	RAG       bool
}

// Reply is the outcome of a successful turn.
type Reply struct {
	SessionID string        `json:"session_id"`
	Answer    string        `json:"answer"`
	Sources   []string      `json:"sources"`
	Policy    prompt.Policy `json:"policy"`
}

type Options struct {
	MaxMessageLength int
	Tracker          Tracker
	Throttle         Throttle
	Metrics          *metrics.Metrics
}

type Service struct {
	assembler *prompt.Assembler
	memory    Memory
	model     llm.Completer
	opts      Options
}

func NewService(assembler *prompt.Assembler, mem Memory, model llm.Completer, opts Options) *Service {
	return &Service{
		assembler: assembler,
		memory:    mem,
		model:     model,
		opts:      opts,
	}
}

// Reply answers req. History is appended only after the model succeeds, so
// a failed turn leaves the session exactly as it was.
func (s *Service) Reply(ctx context.Context, req Request) (*Reply, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	ctx = logger.WithSessionID(ctx, req.SessionID)
	log := logger.FromContext(ctx)
	start := time.Now()
	ctx, turn := tracing.Start(ctx, "chat.turn")
	defer turn.End()
	turn.SetAttr("rag", req.RAG)

	if s.opts.Throttle != nil && !s.opts.Throttle.Allow(req.SessionID) {
		return nil, apperrors.Newf(apperrors.ErrRateLimited, http.StatusTooManyRequests,
			"too many messages for session %q, slow down", req.SessionID)
	}

	buildCtx, build := tracing.Start(ctx, "prompt.build")
	built, err := s.assembler.Build(buildCtx, req.SessionID, req.Message, req.RAG)
	build.End()
	if err != nil {
		s.finish(ctx, req, prompt.PolicyGeneric, 0, start, err)
		return nil, classify(err)
	}

	turn.SetAttr("policy", string(built.Policy))
	completeCtx, complete := tracing.Start(ctx, "llm.complete")
	complete.SetAttr("messages", len(built.Messages))
	answer, err := s.model.Complete(completeCtx, built.Messages)
	complete.End()
	if err != nil {
		turn.SetAttr("error", err.Error())
		log.Error("model invocation failed", "policy", built.Policy, "error", err)
		s.finish(ctx, req, built.Policy, len(built.Sources), start, err)
		return nil, classify(err)
	}

	s.memory.Append(req.SessionID, req.Message, answer)
	s.finish(ctx, req, built.Policy, len(built.Sources), start, nil)
	log.Info("chat turn completed",
		"policy", built.Policy,
		"sources", len(built.Sources),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return &Reply{
		SessionID: req.SessionID,
		Answer:    answer,
		Sources:   built.Sources,
		Policy:    built.Policy,
	}, nil
}

// History returns the stored turns for sessionID.
func (s *Service) History(sessionID string) []memory.Turn {
	return s.memory.History(sessionID)
}

func (s *Service) validate(req Request) error {
	if req.SessionID == "" {
		return apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "session id is required")
	}
	if strings.TrimSpace(req.Message) == "" {
		return apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "message must not be empty")
	}
	if limit := s.opts.MaxMessageLength; limit > 0 && utf8.RuneCountInString(req.Message) > limit {
		return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
			"message exceeds %d characters", limit)
	}
	return nil
}

func (s *Service) finish(ctx context.Context, req Request, policy prompt.Policy, sources int, start time.Time, err error) {
	latency := time.Since(start)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	if m := s.opts.Metrics; m != nil {
		m.ChatTurnsTotal.WithLabelValues(string(policy), outcome).Inc()
		m.ChatLatency.WithLabelValues(string(policy)).Observe(latency.Seconds())
		m.ActiveSessions.Set(float64(s.memory.Len()))
	}
	if s.opts.Tracker != nil {
		event := analytics.ChatEvent{
			ID:          uuid.NewString(),
			Type:        analytics.EventChatTurn,
			SessionID:   req.SessionID,
			Policy:      string(policy),
			RAGEnabled:  req.RAG,
			SourceCount: sources,
			LatencyMs:   latency.Milliseconds(),
			Success:     err == nil,
			Timestamp:   time.Now().UTC(),
			RequestID:   logger.RequestID(ctx),
		}
		if err != nil {
			event.Error = err.Error()
		}
		s.opts.Tracker.Track(event)
	}
}

// classify maps collaborator failures onto service errors.
func classify(err error) error {
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Wrap(apperrors.ErrTimeout, http.StatusGatewayTimeout, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("chat turn cancelled: %w", err)
	case errors.Is(err, resilience.ErrCircuitOpen):
		return apperrors.Wrap(apperrors.ErrUnavailable, http.StatusServiceUnavailable, err)
	default:
		return apperrors.Wrap(apperrors.ErrUpstream, http.StatusBadGateway, err)
	}
}
