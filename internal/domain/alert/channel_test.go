package alert_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/crisisnet/meshcore/internal/domain/alert"
	"github.com/crisisnet/meshcore/internal/domain/mesh"
	"github.com/crisisnet/meshcore/internal/infrastructure/memory"
	"github.com/crisisnet/meshcore/internal/seed"
)

type recordingNotifier struct {
	sent []mesh.EmergencyAlert
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, a mesh.EmergencyAlert) error {
	n.sent = append(n.sent, a)
	return n.err
}

func newStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	if _, err := mesh.Bootstrap(context.Background(), store, seed.Default); err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}
	return store
}

func TestBroadcastKeepsFiveNewest(t *testing.T) {
	ctx := context.Background()
	notifier := &recordingNotifier{}
	ch := alert.NewChannel(newStore(t), notifier, nil, nil)

	for i := 0; i < 7; i++ {
		if _, err := ch.Broadcast(ctx, fmt.Sprintf("alert %d", i), mesh.AlertWarning, "Dr. Alia Kareem"); err != nil {
			t.Fatalf("broadcast %d failed: %v", i, err)
		}
	}

	active, err := ch.Active(ctx)
	if err != nil {
		t.Fatalf("active failed: %v", err)
	}
	if len(active) != mesh.MaxAlerts {
		t.Fatalf("expected %d alerts, got %d", mesh.MaxAlerts, len(active))
	}
	if active[0].Message != "alert 6" || active[4].Message != "alert 2" {
		t.Errorf("expected newest first, got %s .. %s", active[0].Message, active[4].Message)
	}
	for _, a := range active {
		if !a.Active {
			t.Errorf("alert %s not active", a.ID)
		}
	}
	if len(notifier.sent) != 7 {
		t.Errorf("expected every alert notified, got %d", len(notifier.sent))
	}
}

func TestBroadcastValidation(t *testing.T) {
	ctx := context.Background()
	ch := alert.NewChannel(newStore(t), nil, nil, nil)

	if _, err := ch.Broadcast(ctx, "  ", mesh.AlertInfo, "x"); !mesh.IsValidation(err) {
		t.Errorf("expected empty message rejected, got %v", err)
	}
	if _, err := ch.Broadcast(ctx, "Flooding", "apocalyptic", "x"); !mesh.IsValidation(err) {
		t.Errorf("expected bad severity rejected, got %v", err)
	}
}

func TestNotifierFailureDoesNotFailBroadcast(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zap.WarnLevel)
	notifier := &recordingNotifier{err: errors.New("broker down")}
	ch := alert.NewChannel(newStore(t), notifier, zap.New(core), nil)

	a, err := ch.Broadcast(ctx, "Road to H101 closed", mesh.AlertCritical, "Dr. Dalia Mourad")
	if err != nil {
		t.Fatalf("broadcast failed: %v", err)
	}
	if a.ID == "" {
		t.Error("expected alert id")
	}
	if logs.FilterMessage("alert notification failed").Len() != 1 {
		t.Error("expected notifier failure logged")
	}
}
