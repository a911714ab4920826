package mesh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store persists the network snapshot with optimistic versioning.
//
// Save must succeed only when the stored version equals snap.Version. On
// success it persists the snapshot with Version+1 and updates snap.Version.
// On mismatch it writes nothing and returns ErrVersionConflict. An empty
// store behaves as version 0 and Load returns ErrNoSnapshot.
type Store interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
}

// DefaultMaxAttempts bounds Update's conflict retries
const DefaultMaxAttempts = 5

// Clock returns the current time; engines take one so tests can pin it
type Clock func() time.Time

// SystemClock is the wall clock in UTC
func SystemClock() time.Time { return time.Now().UTC() }

// NewID returns a prefixed random identifier such as "SR-3f2a..."
func NewID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

// Update loads the snapshot, applies fn and saves the result. When the save
// loses a version race fn is re-run against a fresh snapshot, up to
// DefaultMaxAttempts times. Any error returned by fn aborts without writing.
func Update(ctx context.Context, store Store, fn func(*Snapshot) error) error {
	return UpdateN(ctx, store, DefaultMaxAttempts, fn)
}

// UpdateN is Update with an explicit attempt budget
func UpdateN(ctx context.Context, store Store, attempts int, fn func(*Snapshot) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		snap, err := store.Load(ctx)
		if err != nil {
			return fmt.Errorf("load snapshot: %w", err)
		}
		if err := fn(snap); err != nil {
			return err
		}
		snap.LastSync = SystemClock()
		snap.refreshPeers()

		err = store.Save(ctx, snap)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return fmt.Errorf("save snapshot: %w", err)
		}
		lastErr = err
	}
	return fmt.Errorf("gave up after %d attempts: %w", attempts, lastErr)
}

// Bootstrap returns the stored snapshot, saving seed() first if the store is
// empty. A concurrent bootstrap that wins the first save is respected.
func Bootstrap(ctx context.Context, store Store, seed func() *Snapshot) (*Snapshot, error) {
	snap, err := store.Load(ctx)
	if err == nil {
		return snap, nil
	}
	if !errors.Is(err, ErrNoSnapshot) {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	initial := seed()
	initial.SchemaVersion = SchemaVersion
	initial.Version = 0
	initial.normalize()
	initial.refreshPeers()
	if initial.LastSync.IsZero() {
		initial.LastSync = SystemClock()
	}

	err = store.Save(ctx, initial)
	switch {
	case err == nil:
		return initial, nil
	case errors.Is(err, ErrVersionConflict):
		return store.Load(ctx)
	default:
		return nil, fmt.Errorf("seed snapshot: %w", err)
	}
}
