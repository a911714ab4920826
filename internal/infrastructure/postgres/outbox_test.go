package postgres

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/crisisnet/meshcore/internal/domain/mesh"
)

func TestEntryFromEventKeysByAggregate(t *testing.T) {
	event, err := mesh.NewEvent(mesh.AggregateSupplyRequest, "SR-1", mesh.EventSupplyRequestResolved,
		mesh.StatusChangedData{From: "PENDING", To: "APPROVED"})
	if err != nil {
		t.Fatalf("new event failed: %v", err)
	}
	event.Version = 7
	event.WithActor("U001", "H100")

	entry, err := EntryFromEvent(event, "mesh.events")
	if err != nil {
		t.Fatalf("entry failed: %v", err)
	}
	if entry.KafkaKey != "SR-1" || entry.KafkaTopic != "mesh.events" {
		t.Errorf("unexpected routing: key=%s topic=%s", entry.KafkaKey, entry.KafkaTopic)
	}
	if entry.EventType != string(mesh.EventSupplyRequestResolved) {
		t.Errorf("unexpected event type %s", entry.EventType)
	}

	var decoded mesh.Event
	if err := json.Unmarshal(entry.Payload, &decoded); err != nil {
		t.Fatalf("payload is not an event: %v", err)
	}
	if decoded.ID != event.ID || decoded.Version != 7 || decoded.HospitalID != "H100" {
		t.Errorf("payload lost fields: %+v", decoded)
	}
}

func TestMigrationsCoverEveryTable(t *testing.T) {
	tables := []string{"mesh_snapshot", "outbox", "inbox"}
	for _, table := range tables {
		found := false
		for _, stmt := range migrations {
			if strings.Contains(stmt, "CREATE TABLE IF NOT EXISTS "+table+" ") {
				found = true
			}
		}
		if !found {
			t.Errorf("no migration creates %s", table)
		}
	}
}
