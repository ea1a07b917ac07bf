package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	var transitions []State
	cb := NewCircuitBreaker("llm", CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     20 * time.Millisecond,
		OnStateChange:    func(_ string, to State) { transitions = append(transitions, to) },
	})

	for i := 0; i < 2; i++ {
		if err := cb.Execute(func() error { return errBoom }); !errors.Is(err, errBoom) {
			t.Fatalf("expected boom, got %v", err)
		}
	}
	if cb.GetState() != StateOpen {
		t.Fatalf("expected open, got %s", cb.GetState())
	}
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}

	time.Sleep(30 * time.Millisecond)
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("expected half-open probe to pass, got %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Errorf("expected closed after probe, got %s", cb.GetState())
	}

	want := []State{StateOpen, StateHalfOpen, StateClosed}
	if len(transitions) != len(want) {
		t.Fatalf("expected transitions %v, got %v", want, transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d: expected %s, got %s", i, want[i], transitions[i])
		}
	}
}

func TestCircuitBreakerIgnoresNonFailures(t *testing.T) {
	cb := NewCircuitBreaker("llm", CircuitBreakerConfig{
		FailureThreshold: 1,
		IsFailure:        func(err error) bool { return !IsPermanent(err) },
	})
	cb.Execute(func() error { return Permanent(errBoom) })
	if cb.GetState() != StateClosed {
		t.Errorf("expected permanent error to leave breaker closed, got %s", cb.GetState())
	}
}

func TestRetryStopsOnPermanent(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "op", RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond}, func() error {
		calls++
		return Permanent(errBoom)
	})
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if !errors.Is(err, errBoom) {
		t.Errorf("expected boom, got %v", err)
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "op", RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond}, func() error {
		calls++
		if calls < 3 {
			return errBoom
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryExhausted(t *testing.T) {
	err := Retry(context.Background(), "op", RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond}, func() error {
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Errorf("expected wrapped boom, got %v", err)
	}
}

func TestWithTimeout(t *testing.T) {
	tests := []struct {
		name    string
		parent  func() (context.Context, context.CancelFunc)
		timeout time.Duration
		fn      func(ctx context.Context) (string, error)
		want    string
		wantErr error
	}{
		{
			name:    "fast call returns value",
			parent:  func() (context.Context, context.CancelFunc) { return context.WithCancel(context.Background()) },
			timeout: time.Second,
			fn:      func(ctx context.Context) (string, error) { return "ok", nil },
			want:    "ok",
		},
		{
			name:    "slow call times out",
			parent:  func() (context.Context, context.CancelFunc) { return context.WithCancel(context.Background()) },
			timeout: 10 * time.Millisecond,
			fn: func(ctx context.Context) (string, error) {
				<-ctx.Done()
				return "", ctx.Err()
			},
			wantErr: context.DeadlineExceeded,
		},
		{
			name:    "error passes through",
			parent:  func() (context.Context, context.CancelFunc) { return context.WithCancel(context.Background()) },
			timeout: time.Second,
			fn:      func(ctx context.Context) (string, error) { return "", errBoom },
			wantErr: errBoom,
		},
		{
			name: "cancelled parent",
			parent: func() (context.Context, context.CancelFunc) {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx, cancel
			},
			timeout: time.Second,
			fn: func(ctx context.Context) (string, error) {
				<-ctx.Done()
				return "", ctx.Err()
			},
			wantErr: context.Canceled,
		},
		{
			name:    "zero timeout calls directly",
			parent:  func() (context.Context, context.CancelFunc) { return context.WithCancel(context.Background()) },
			timeout: 0,
			fn:      func(ctx context.Context) (string, error) { return "direct", nil },
			want:    "direct",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := tt.parent()
			defer cancel()
			got, err := WithTimeout(ctx, tt.timeout, "call", tt.fn)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				if got != "" {
					t.Errorf("expected zero value on error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
