package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

var errRejected = errors.New("rejected")

func TestGenerateKeyIsDeterministic(t *testing.T) {
	a := GenerateKey("H100", "supply.resolve", "cmd-1")
	b := GenerateKey("H100", "supply.resolve", "cmd-1")
	if a != b || len(a) != 64 {
		t.Errorf("expected stable sha256 hex, got %s / %s", a, b)
	}
	if a == GenerateKey("H101", "supply.resolve", "cmd-1") {
		t.Error("different nodes must not share keys")
	}
}

func TestMemoryInboxRunsOnce(t *testing.T) {
	ctx := context.Background()
	inbox := NewMemoryInbox(DefaultInboxConfig())

	calls := 0
	fn := func(context.Context, json.RawMessage) (json.RawMessage, error) {
		calls++
		return json.RawMessage(`{"id":"SR-1"}`), nil
	}

	first, err := inbox.Process(ctx, "k1", "supply.create", nil, fn)
	if err != nil || !first.IsNew {
		t.Fatalf("expected first run new, got %+v %v", first, err)
	}
	second, err := inbox.Process(ctx, "k1", "supply.create", nil, fn)
	if err != nil {
		t.Fatalf("duplicate failed: %v", err)
	}
	if second.IsNew || string(second.Result) != `{"id":"SR-1"}` {
		t.Errorf("expected stored result replayed, got %+v", second)
	}
	if calls != 1 {
		t.Errorf("handler ran %d times", calls)
	}
}

func TestMemoryInboxTerminalAndRecoverable(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultInboxConfig()
	cfg.Terminal = func(err error) bool { return errors.Is(err, errRejected) }
	inbox := NewMemoryInbox(cfg)

	if _, err := inbox.Process(ctx, "bad", "h", nil, func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return nil, errRejected
	}); !errors.Is(err, errRejected) {
		t.Fatalf("expected handler error, got %v", err)
	}
	if inbox.Status("bad") != StatusFailed {
		t.Errorf("expected FAILED, got %s", inbox.Status("bad"))
	}
	if _, err := inbox.Process(ctx, "bad", "h", nil, nil); !errors.Is(err, ErrPreviouslyFailed) {
		t.Errorf("expected terminal failure remembered, got %v", err)
	}

	attempts := 0
	flaky := func(context.Context, json.RawMessage) (json.RawMessage, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("store unavailable")
		}
		return json.RawMessage(`{}`), nil
	}
	if _, err := inbox.Process(ctx, "retry", "h", nil, flaky); err == nil {
		t.Fatal("expected first attempt to fail")
	}
	res, err := inbox.Process(ctx, "retry", "h", nil, flaky)
	if err != nil || !res.WasRecovered {
		t.Errorf("expected recoverable retry to run, got %+v %v", res, err)
	}
}

func TestMemoryInboxInProgressAndExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 11, 21, 9, 0, 0, 0, time.UTC)
	inbox := NewMemoryInbox(DefaultInboxConfig())
	inbox.now = func() time.Time { return now }

	release := make(chan struct{})
	started := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		inbox.Process(ctx, "slow", "h", nil, func(context.Context, json.RawMessage) (json.RawMessage, error) {
			close(started)
			<-release
			return nil, nil
		})
	}()
	<-started
	if _, err := inbox.Process(ctx, "slow", "h", nil, nil); !errors.Is(err, ErrMessageInProgress) {
		t.Errorf("expected in-progress, got %v", err)
	}
	close(release)
	<-finished

	calls := 0
	fn := func(context.Context, json.RawMessage) (json.RawMessage, error) { calls++; return nil, nil }
	inbox.Process(ctx, "old", "h", nil, fn)
	now = now.Add(8 * 24 * time.Hour)
	inbox.Process(ctx, "old", "h", nil, fn)
	if calls != 2 {
		t.Errorf("expected expired key to run again, ran %d times", calls)
	}
}
