package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/grounded-chat/internal/prompt"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/pkg/resilience"
	"golang.org/x/time/rate"
)

// Guarded wraps a Completer with an outbound rate limit, a per-attempt
// deadline, retries with backoff for transient failures, and a circuit
// breaker.
type Guarded struct {
	next    Completer
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
	attempt time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

var _ Completer = (*Guarded)(nil)

// NewGuarded builds a Guarded completer from cfg. m may be nil.
func NewGuarded(next Completer, cfg config.LLMConfig, m *metrics.Metrics) *Guarded {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	g := &Guarded{
		next:    next,
		limiter: rate.NewLimiter(limit, burst),
		retry: resilience.RetryConfig{
			MaxAttempts:  cfg.MaxAttempts,
			InitialDelay: 250 * time.Millisecond,
			MaxDelay:     5 * time.Second,
		},
		attempt: cfg.Timeout,
		metrics: m,
		logger:  logger.WithComponent("llm"),
	}
	g.breaker = resilience.NewCircuitBreaker("llm", resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.BreakerFailureThreshold,
		ResetTimeout:     cfg.BreakerResetTimeout,
		IsFailure:        isBreakerFailure,
		OnStateChange: func(name string, to resilience.State) {
			if m != nil {
				m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})
	return g
}

// Breaker exposes the circuit breaker for health reporting.
func (g *Guarded) Breaker() *resilience.CircuitBreaker {
	return g.breaker
}

func (g *Guarded) Complete(ctx context.Context, messages []prompt.Message) (string, error) {
	start := time.Now()
	var reply string
	err := g.breaker.Execute(func() error {
		return resilience.Retry(ctx, "chat-completion", g.retry, func() error {
			if err := g.limiter.Wait(ctx); err != nil {
				return resilience.Permanent(fmt.Errorf("waiting for rate limiter: %w", err))
			}
			out, err := resilience.WithTimeout(ctx, g.attempt, "chat-completion attempt", func(ctx context.Context) (string, error) {
				return g.next.Complete(ctx, messages)
			})
			if err != nil {
				if !retryable(ctx, err) {
					return resilience.Permanent(err)
				}
				return err
			}
			reply = out
			return nil
		})
	})
	g.observe(start, err)
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			g.logger.Warn("model call rejected by open circuit", "error", err)
		}
		return "", err
	}
	return reply, nil
}

func (g *Guarded) observe(start time.Time, err error) {
	if g.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	g.metrics.ModelCallDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return !errors.Is(err, ErrEmptyResponse)
}

// isBreakerFailure keeps client-side mistakes and cancellations from opening
// the breaker.
func isBreakerFailure(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return true
}
