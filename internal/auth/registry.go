package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"venuelink.org/internal/kv"
)

const familyKeyPrefix = "authfam:"

// familyState is the registry's record for one token family: which
// member is currently active and whether the family has been revoked.
// Rotation swaps the whole record atomically, so "insert successor,
// retire predecessor" is a single compare-and-swap.
type familyState struct {
	UserID    string    `json:"user_id"`
	ActiveID  string    `json:"active_id"`
	ParentID  string    `json:"parent_id,omitempty"`
	Revoked   bool      `json:"revoked"`
	RotatedAt time.Time `json:"rotated_at"`
}

// Registry tracks refresh token families in the shared store. It sits
// on the authentication hot path, so every operation is a bounded
// number of round trips against the cache.
type Registry struct {
	store kv.Store
	ttl   time.Duration
	now   func() time.Time
}

// NewRegistry builds a Registry. ttl bounds how long family state
// outlives its newest member; it should match the refresh token
// lifetime so abandoned families expire on their own.
func NewRegistry(store kv.Store, ttl time.Duration) *Registry {
	return &Registry{store: store, ttl: ttl, now: time.Now}
}

func familyKey(familyID string) string { return familyKeyPrefix + familyID }

// Register stores a fresh family with rec as its active member.
func (r *Registry) Register(ctx context.Context, rec RefreshTokenRecord) error {
	if strings.TrimSpace(rec.FamilyID) == "" || strings.TrimSpace(rec.ID) == "" {
		return fmt.Errorf("%w: family and token ids are required", ErrMalformed)
	}
	state := familyState{
		UserID:    rec.UserID,
		ActiveID:  rec.ID,
		RotatedAt: r.now().UTC(),
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}
	created, err := r.store.SetNX(ctx, familyKey(rec.FamilyID), payload, r.ttl)
	if err != nil {
		return storeErr(err)
	}
	if !created {
		return fmt.Errorf("%w: token family already registered", ErrRevoked)
	}
	return nil
}

// Rotate atomically retires the presented token and installs its
// successor. Exactly one Rotate per presented token can succeed; a
// presented token that is no longer the active member means replay of
// an already-rotated token, and the whole family is revoked before
// ErrRevoked is returned.
func (r *Registry) Rotate(ctx context.Context, familyID, presentedID, successorID string) error {
	key := familyKey(familyID)
	for {
		raw, ok, err := r.store.Get(ctx, key)
		if err != nil {
			return storeErr(err)
		}
		if !ok {
			// Family expired or never existed; same answer as revoked.
			return ErrRevoked
		}
		var state familyState
		if err := json.Unmarshal(raw, &state); err != nil {
			return err
		}
		if state.Revoked {
			return ErrRevoked
		}
		if state.ActiveID != presentedID {
			// Replay of a rotated token: treat as family compromise.
			if err := r.RevokeFamily(ctx, familyID); err != nil {
				return err
			}
			return ErrRevoked
		}

		next := familyState{
			UserID:    state.UserID,
			ActiveID:  successorID,
			ParentID:  presentedID,
			RotatedAt: r.now().UTC(),
		}
		payload, err := json.Marshal(next)
		if err != nil {
			return err
		}
		swapped, err := r.store.CompareAndSwap(ctx, key, raw, payload, r.ttl)
		if err != nil {
			return storeErr(err)
		}
		if swapped {
			return nil
		}
		// Lost a race with a concurrent rotation; re-read and decide
		// again. The winner moved ActiveID, so the next pass takes the
		// replay branch.
	}
}

// RevokeFamily invalidates every member of the family. Idempotent:
// revoking an already-revoked or expired family succeeds.
func (r *Registry) RevokeFamily(ctx context.Context, familyID string) error {
	key := familyKey(familyID)
	raw, ok, err := r.store.Get(ctx, key)
	if err != nil {
		return storeErr(err)
	}
	state := familyState{Revoked: true, RotatedAt: r.now().UTC()}
	if ok {
		var current familyState
		if err := json.Unmarshal(raw, &current); err == nil {
			state.UserID = current.UserID
		}
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}
	// Revocation is monotonic, an unconditional write is safe: no
	// later state transition ever un-revokes a family.
	if err := r.store.Set(ctx, key, payload, r.ttl); err != nil {
		return storeErr(err)
	}
	return nil
}

// IsActive reports whether tokenID is the live member of its family.
func (r *Registry) IsActive(ctx context.Context, familyID, tokenID string) (bool, error) {
	raw, ok, err := r.store.Get(ctx, familyKey(familyID))
	if err != nil {
		return false, storeErr(err)
	}
	if !ok {
		return false, nil
	}
	var state familyState
	if err := json.Unmarshal(raw, &state); err != nil {
		return false, err
	}
	return !state.Revoked && state.ActiveID == tokenID, nil
}

func storeErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
