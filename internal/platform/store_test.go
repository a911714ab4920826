package platform

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/crisisnet/meshcore/internal/config"
	"github.com/crisisnet/meshcore/internal/domain/mesh"
	"github.com/crisisnet/meshcore/internal/domain/transport"
)

func TestOpenStoreSeedsAndServesEngines(t *testing.T) {
	ctx := context.Background()
	drivers := map[string]*config.Config{
		"memory": {StoreDriver: config.DriverMemory, SeedOnEmpty: true},
		"sqlite": {StoreDriver: config.DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "mesh.db"), SeedOnEmpty: true},
	}
	for name, cfg := range drivers {
		t.Run(name, func(t *testing.T) {
			storage, err := OpenStore(ctx, cfg, nil, nil)
			if err != nil {
				t.Fatalf("open failed: %v", err)
			}
			defer storage.Close()

			if err := Seed(ctx, storage.Store, cfg, nil); err != nil {
				t.Fatalf("seed failed: %v", err)
			}
			if err := Seed(ctx, storage.Store, cfg, nil); err != nil {
				t.Fatalf("second seed failed: %v", err)
			}

			engines := NewEngines(storage.Store, nil, nil, nil)
			if _, err := engines.Transport.Schedule(ctx, transport.ScheduleInput{
				RequesterID: "U005", OriginHospitalID: "H101", Type: mesh.TransportStaffRotation,
			}); err != nil {
				t.Fatalf("schedule failed: %v", err)
			}

			snap, err := storage.Store.Load(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if snap.Version != 2 {
				t.Errorf("expected one seed and one write, got version %d", snap.Version)
			}
		})
	}
}

func TestOpenStoreRejectsUnknownDriver(t *testing.T) {
	if _, err := OpenStore(context.Background(), &config.Config{StoreDriver: "etcd"}, nil, nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestSeedDisabled(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{StoreDriver: config.DriverMemory}
	storage, err := OpenStore(ctx, cfg, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := Seed(ctx, storage.Store, cfg, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := storage.Store.Load(ctx); err == nil {
		t.Error("expected empty store when seeding is off")
	}
}

func TestConnectNotifierWithoutBroker(t *testing.T) {
	n, closeFn := ConnectNotifier(&config.Config{}, nil)
	if n != nil {
		t.Errorf("expected no notifier, got %T", n)
	}
	closeFn()
}
