// Package tracing times the stages of a request as a tree of spans carried
// in the context. When the root span ends the whole tree is written to the
// request's logger at debug level.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/grounded-chat/pkg/logger"
	"github.com/google/uuid"
)

type contextKey struct{}

// Span is one timed stage.
type Span struct {
	name     string
	traceID  string
	start    time.Time
	parent   *Span
	log      *slog.Logger
	mu       sync.Mutex
	duration time.Duration
	ended    bool
	attrs    []any
	children []*Span
}

// Start opens a span under the one in ctx, or a new root. A root span
// takes the request ID as its trace ID when there is one.
func Start(ctx context.Context, name string) (context.Context, *Span) {
	s := &Span{name: name, start: time.Now()}
	if parent := FromContext(ctx); parent != nil {
		s.parent = parent
		s.traceID = parent.traceID
		parent.mu.Lock()
		parent.children = append(parent.children, s)
		parent.mu.Unlock()
	} else {
		s.traceID = logger.RequestID(ctx)
		if s.traceID == "" {
			s.traceID = uuid.NewString()
		}
		s.log = logger.FromContext(ctx)
	}
	return context.WithValue(ctx, contextKey{}, s), s
}

// FromContext returns the current span, or nil.
func FromContext(ctx context.Context) *Span {
	s, _ := ctx.Value(contextKey{}).(*Span)
	return s
}

// SetAttr records a key-value pair on the span.
func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs = append(s.attrs, key, value)
	s.mu.Unlock()
}

// End stops the clock. Ending a root span logs the tree. Only the first
// call counts.
func (s *Span) End() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.duration = time.Since(s.start)
	s.mu.Unlock()

	if s.parent == nil && s.log.Enabled(context.Background(), slog.LevelDebug) {
		s.emit(s.log, 0)
	}
}

func (s *Span) TraceID() string { return s.traceID }

func (s *Span) Name() string { return s.name }

// Duration is zero until End.
func (s *Span) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

// Children returns the spans started directly under s.
func (s *Span) Children() []*Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Span, len(s.children))
	copy(out, s.children)
	return out
}

func (s *Span) emit(log *slog.Logger, depth int) {
	s.mu.Lock()
	args := []any{
		"trace_id", s.traceID,
		"span", s.name,
		"depth", depth,
		"duration_ms", float64(s.duration.Microseconds()) / 1000,
	}
	args = append(args, s.attrs...)
	children := s.children
	s.mu.Unlock()

	log.Debug("span", args...)
	for _, c := range children {
		c.emit(log, depth+1)
	}
}
