package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MemoryInbox is an in-process Processor for nodes without Postgres. Keys are
// forgotten on restart.
type MemoryInbox struct {
	config  InboxConfig
	now     func() time.Time
	mu      sync.Mutex
	entries map[string]*InboxEntry
}

// NewMemoryInbox creates an empty inbox
func NewMemoryInbox(cfg InboxConfig) *MemoryInbox {
	return &MemoryInbox{config: cfg, now: time.Now, entries: make(map[string]*InboxEntry)}
}

// Process executes fn unless key has already finished
func (m *MemoryInbox) Process(ctx context.Context, key, handlerName string, payload json.RawMessage, fn ProcessFunc) (*ProcessResult, error) {
	m.mu.Lock()
	now := m.now()
	entry, seen := m.entries[key]
	if seen && entry.ExpiresAt != nil && now.After(*entry.ExpiresAt) {
		delete(m.entries, key)
		seen = false
	}
	if seen {
		switch entry.Status {
		case StatusFinished:
			m.mu.Unlock()
			return &ProcessResult{IsNew: false, Result: entry.Result}, nil
		case StatusFailed:
			m.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrPreviouslyFailed, key)
		case StatusStarted:
			if now.Sub(entry.UpdatedAt) <= m.config.RecoveryTimeout {
				m.mu.Unlock()
				return nil, ErrMessageInProgress
			}
		}
	}
	expires := now.Add(m.config.DefaultTTL)
	m.entries[key] = &InboxEntry{
		IdempotencyKey: key,
		HandlerName:    handlerName,
		Status:         StatusStarted,
		Payload:        payload,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      &expires,
	}
	m.mu.Unlock()

	result, err := fn(ctx, payload)

	m.mu.Lock()
	defer m.mu.Unlock()
	claimed := m.entries[key]
	claimed.UpdatedAt = m.now()
	if err != nil {
		claimed.Status = StatusRecoverable
		if m.config.isTerminal(err) {
			claimed.Status = StatusFailed
		}
		claimed.Result = errorResult(err)
		return nil, err
	}
	claimed.Status = StatusFinished
	claimed.Result = result
	return &ProcessResult{IsNew: !seen, WasRecovered: seen, Result: result}, nil
}

// Status returns the recorded status of key, or "" when unknown
func (m *MemoryInbox) Status(key string) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok {
		return e.Status
	}
	return ""
}
