package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"venuelink.org/internal/kv"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	store := kv.NewMemory()
	t.Cleanup(store.Close)
	return NewRegistry(store, time.Hour)
}

func register(t *testing.T, r *Registry, familyID, tokenID string) {
	t.Helper()
	err := r.Register(context.Background(), RefreshTokenRecord{
		ID:       tokenID,
		UserID:   "user-1",
		FamilyID: familyID,
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
}

func TestRegistryRotateOnce(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()
	register(t, r, "fam-1", "tok-1")

	if err := r.Rotate(ctx, "fam-1", "tok-1", "tok-2"); err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	active, err := r.IsActive(ctx, "fam-1", "tok-2")
	if err != nil || !active {
		t.Fatalf("successor not active: %v, %v", active, err)
	}
	active, err = r.IsActive(ctx, "fam-1", "tok-1")
	if err != nil || active {
		t.Fatalf("predecessor still active: %v, %v", active, err)
	}
}

func TestRegistryReplayRevokesFamily(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()
	register(t, r, "fam-1", "tok-1")

	if err := r.Rotate(ctx, "fam-1", "tok-1", "tok-2"); err != nil {
		t.Fatalf("first Rotate: %v", err)
	}

	// Replaying the rotated token must fail and burn the family.
	if err := r.Rotate(ctx, "fam-1", "tok-1", "tok-3"); !errors.Is(err, ErrRevoked) {
		t.Fatalf("replay Rotate = %v, want ErrRevoked", err)
	}

	// Even the legitimately issued successor is now dead.
	active, err := r.IsActive(ctx, "fam-1", "tok-2")
	if err != nil || active {
		t.Fatalf("successor survived family revocation: %v, %v", active, err)
	}
	if err := r.Rotate(ctx, "fam-1", "tok-2", "tok-4"); !errors.Is(err, ErrRevoked) {
		t.Fatalf("rotate after family revocation = %v, want ErrRevoked", err)
	}
}

func TestRegistryConcurrentRotationSingleWinner(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()
	register(t, r, "fam-1", "tok-1")

	const racers = 16
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = r.Rotate(ctx, "fam-1", "tok-1", "succ")
		}(i)
	}
	wg.Wait()

	var wins int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrRevoked):
		default:
			t.Fatalf("unexpected rotate error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one successful rotation, got %d", wins)
	}
}

func TestRegistryRevokeFamilyIdempotent(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()
	register(t, r, "fam-1", "tok-1")

	if err := r.RevokeFamily(ctx, "fam-1"); err != nil {
		t.Fatalf("RevokeFamily: %v", err)
	}
	if err := r.RevokeFamily(ctx, "fam-1"); err != nil {
		t.Fatalf("second RevokeFamily: %v", err)
	}
	// Revoking a family that never existed also succeeds.
	if err := r.RevokeFamily(ctx, "fam-unknown"); err != nil {
		t.Fatalf("RevokeFamily(unknown): %v", err)
	}

	active, err := r.IsActive(ctx, "fam-1", "tok-1")
	if err != nil || active {
		t.Fatalf("token active after revocation: %v, %v", active, err)
	}
}

func TestRegistryExpiredFamilyIsRevoked(t *testing.T) {
	// A family the store no longer holds answers the same as revoked.
	r := testRegistry(t)
	err := r.Rotate(context.Background(), "fam-gone", "tok-1", "tok-2")
	if !errors.Is(err, ErrRevoked) {
		t.Fatalf("rotate on missing family = %v, want ErrRevoked", err)
	}
}
