/*
state.go - Per-account sync-state tracker

PURPOSE:
  The sole writer of the sync_state table. Computes each new high-water
  mark as max(current, max id observed in the batch): a watermark never
  regresses, even when a reprocessed window only contains older ids.

  Two advance call sites exist with different timestamp semantics:
  AdvancePoll stamps last_poll_at, AdvanceFullSync stamps
  last_full_sync_at. Both move the id watermarks identically.

SEE ALSO:
  - engine.go: Call sites
  - store/store.go: sync_state persistence
*/
package engine

import (
	"context"
	"time"

	"github.com/h4srl/salesync/pos"
)

// StateTracker owns reads and advances of per-account sync state.
type StateTracker struct {
	store Storage
}

// NewStateTracker creates a tracker over the given storage.
func NewStateTracker(store Storage) *StateTracker {
	return &StateTracker{store: store}
}

// Get loads an account's sync state, with zero defaults when absent.
func (t *StateTracker) Get(ctx context.Context, accountEmail string) (pos.SyncState, error) {
	state, err := t.store.GetSyncState(ctx, accountEmail)
	if err != nil {
		return pos.SyncState{}, storageErr("get sync state", err)
	}
	return state, nil
}

// AdvancePoll moves the watermarks forward and stamps last_poll_at.
func (t *StateTracker) AdvancePoll(ctx context.Context, accountEmail string, observed pos.MaxIDs, at time.Time) error {
	return t.advance(ctx, accountEmail, observed, at, false)
}

// AdvanceFullSync moves the watermarks forward and stamps last_full_sync_at.
func (t *StateTracker) AdvanceFullSync(ctx context.Context, accountEmail string, observed pos.MaxIDs, at time.Time) error {
	return t.advance(ctx, accountEmail, observed, at, true)
}

func (t *StateTracker) advance(ctx context.Context, accountEmail string, observed pos.MaxIDs, at time.Time, fullSync bool) error {
	state, err := t.store.GetSyncState(ctx, accountEmail)
	if err != nil {
		return storageErr("get sync state", err)
	}

	state.AccountEmail = accountEmail
	state.LastOrderID = maxInt64(state.LastOrderID, observed.Order)
	state.LastProductID = maxInt64(state.LastProductID, observed.Product)
	state.LastSessionID = maxInt64(state.LastSessionID, observed.Session)

	stamp := at
	if fullSync {
		state.LastFullSyncAt = &stamp
	} else {
		state.LastPollAt = &stamp
	}

	if err := t.store.SaveSyncState(ctx, state); err != nil {
		return storageErr("save sync state", err)
	}
	return nil
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
