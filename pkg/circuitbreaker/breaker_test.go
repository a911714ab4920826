package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBusy = errors.New("busy")

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	ctx := context.Background()
	var transitions []State
	cfg := DefaultConfig("store")
	cfg.FailureThreshold = 3
	cfg.Timeout = time.Hour
	cfg.OnStateChange = func(_ string, to State) { transitions = append(transitions, to) }

	cb, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("new failed: %v", err)
	}

	boom := errors.New("connection refused")
	for i := 0; i < 3; i++ {
		if err := cb.Do(ctx, func(context.Context) error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("call %d: expected dependency error, got %v", i, err)
		}
	}

	calls := 0
	err = cb.Do(ctx, func(context.Context) error { calls++; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if calls != 0 {
		t.Error("open breaker must not call through")
	}
	if cb.GetState() != StateOpen || len(transitions) != 1 || transitions[0] != StateOpen {
		t.Errorf("unexpected state %s, transitions %v", cb.GetState(), transitions)
	}
	if Health(cb)[0].Healthy {
		t.Error("open breaker reported healthy")
	}
}

func TestAcceptedErrorsDoNotTrip(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig("store")
	cfg.FailureThreshold = 2
	cfg.IsSuccessful = func(err error) bool { return err == nil || errors.Is(err, errBusy) }

	cb, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("new failed: %v", err)
	}

	for i := 0; i < 10; i++ {
		if err := cb.Do(ctx, func(context.Context) error { return errBusy }); !errors.Is(err, errBusy) {
			t.Fatalf("expected errBusy passed through, got %v", err)
		}
	}
	if cb.GetState() != StateClosed {
		t.Errorf("expected closed, got %s", cb.GetState())
	}
}

func TestStateGauge(t *testing.T) {
	if StateClosed.Gauge() != 0 || StateHalfOpen.Gauge() != 1 || StateOpen.Gauge() != 2 {
		t.Error("unexpected gauge mapping")
	}
}
