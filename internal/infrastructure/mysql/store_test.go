package mysql

import (
	"testing"

	"github.com/crisisnet/meshcore/internal/domain/mesh"
)

func TestNewEventRecord(t *testing.T) {
	e, err := mesh.NewEvent(mesh.AggregateAlert, "ALT-1", mesh.EventEmergencyAlertBroadcast,
		map[string]string{"message": "Flooding on route 4"})
	if err != nil {
		t.Fatalf("new event failed: %v", err)
	}
	e.Version = 12
	e.WithActor("U005", "H101")

	rec := NewEventRecord(e)
	if rec.ID != e.ID || rec.AggregateID != "ALT-1" || rec.Version != 12 {
		t.Errorf("identity lost: %+v", rec)
	}
	if rec.EventType != "EmergencyAlertBroadcast" || rec.ActorID != "U005" || rec.HospitalID != "H101" {
		t.Errorf("audit fields lost: %+v", rec)
	}
	if string(rec.EventData) != `{"message":"Flooding on route 4"}` {
		t.Errorf("unexpected payload %s", rec.EventData)
	}
	if !rec.CreatedAt.Equal(e.Timestamp) {
		t.Error("timestamp not carried")
	}
}

func TestTableNames(t *testing.T) {
	if (SnapshotRecord{}).TableName() != "mesh_snapshot" || (EventRecord{}).TableName() != "mesh_events" {
		t.Error("table names must match the other stores")
	}
}
