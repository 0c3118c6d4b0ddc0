/*
engine.go - Incremental synchronization engine

PURPOSE:
  Reconciles externally-owned, paginated, loosely-typed vendor sales
  data against the local store under at-least-once delivery. Drives the
  per-account pass through its stages:

    Idle -> Authenticating -> Fetching -> Persisting -> Done
                  \________________\__________-> Failed

  A failure at any stage terminates that account's pass with a captured
  error but never blocks the other accounts.

INCREMENTALITY:
  The vendor API only supports date-range queries, not id cursors. The
  fast poll therefore re-fetches a trailing window (default 7 days) and
  filters rows client-side against the account's watermark before
  persisting. The watermark advances to the max id observed in the
  batch, including rows the normalizer later drops, so dropped rows are
  not refetched forever. A window too short relative to the polling
  interval can miss rows on very-high-volume stores; the window is a
  deployment tunable, not a logic knob.

FULL RESYNC:
  Fetches an explicit date range unconditionally; upsert absorbs the
  duplicates. Used by the periodic resync, operator historical loads
  and the empty-database year bootstrap.

ERROR POLICY:
  Per-account upstream errors go into the results list. Storage errors
  abort the whole invocation (see errors.go). The engine itself never
  retries; the next scheduled tick is the retry. The only in-process
  retry is the bounded backoff around operator bulk loads (retry.go).

SEE ALSO:
  - state.go: Watermark tracker
  - linisco/client.go: The upstream client behind the Client interface
  - api/scheduler.go: The recurring-job driver
*/
package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/h4srl/salesync/pos"
	"github.com/h4srl/salesync/store"
)

// Client is the upstream vendor API surface the engine needs.
// *linisco.Client implements it.
type Client interface {
	Login(ctx context.Context, email, password string) (string, error)
	Fetch(ctx context.Context, entity pos.EntityType, email, token string, from, to time.Time) ([]pos.RawRow, error)
}

// Storage is the persistence surface the engine needs. *store.Store
// implements it.
type Storage interface {
	UpsertOrders(ctx context.Context, orders []pos.Order) error
	UpsertProducts(ctx context.Context, products []pos.Product) error
	UpsertSessions(ctx context.Context, sessions []pos.Session) error
	BackfillProductTimestamps(ctx context.Context, accountEmail string) (int64, error)
	GetSyncState(ctx context.Context, accountEmail string) (pos.SyncState, error)
	SaveSyncState(ctx context.Context, state pos.SyncState) error
	CountOrders(ctx context.Context) (int64, error)
	Validation(ctx context.Context) (store.ValidationStats, error)
}

// Stage names the step of the per-account state machine a pass ended in.
type Stage string

const (
	StageAuthenticating Stage = "authenticating"
	StageFetching       Stage = "fetching"
	StagePersisting     Stage = "persisting"
	StageDone           Stage = "done"
)

// Counts are per-entity row counts for one account's pass.
type Counts struct {
	Orders   int `json:"orders"`
	Products int `json:"products"`
	Sessions int `json:"sessions"`
}

// AccountResult is the outcome of one account's pass.
type AccountResult struct {
	Email      string `json:"email"`
	OK         bool   `json:"ok"`
	Stage      Stage  `json:"stage"`
	Error      string `json:"error,omitempty"`
	HasNewData bool   `json:"hasNewData"`
	Counts     Counts `json:"counts"`
	Dropped    int    `json:"dropped,omitempty"` // rows removed by the negative-total filter
}

// PollSummary is the outcome of one fast-poll pass over all accounts.
type PollSummary struct {
	HasNewData    bool            `json:"hasNewData"`
	SuccessCount  int             `json:"successCount"`
	TotalAccounts int             `json:"totalAccounts"`
	Results       []AccountResult `json:"results"`
}

// SyncSummary is the outcome of one full-resync pass over all accounts.
type SyncSummary struct {
	Results  []AccountResult `json:"results"`
	FromDate string          `json:"fromDate"`
	ToDate   string          `json:"toDate"`
	Failed   int             `json:"failed"`
}

// Engine drives sync passes for a fixed set of accounts.
type Engine struct {
	Client   Client
	Tracker  *StateTracker
	Accounts []pos.Account

	// PollWindow is the trailing window the fast poll re-fetches.
	PollWindow time.Duration

	store Storage
	now   func() time.Time
}

// New creates an engine with the default 7-day poll window.
func New(client Client, storage Storage, accounts []pos.Account) *Engine {
	return &Engine{
		Client:     client,
		Tracker:    NewStateTracker(storage),
		Accounts:   accounts,
		PollWindow: 7 * 24 * time.Hour,
		store:      storage,
		now:        time.Now,
	}
}

// =============================================================================
// FAST POLL
// =============================================================================

// PollAll runs one incremental poll pass over every account. Accounts
// are processed sequentially to bound concurrent upstream load; the
// three entity fetches of one account run concurrently.
func (e *Engine) PollAll(ctx context.Context) (PollSummary, error) {
	if len(e.Accounts) == 0 {
		return PollSummary{}, ErrNoAccounts
	}

	summary := PollSummary{TotalAccounts: len(e.Accounts)}
	for _, account := range e.Accounts {
		result, err := e.PollAccount(ctx, account)
		if err != nil {
			// Storage failure: systemic, abort the whole pass.
			return PollSummary{}, err
		}
		if result.OK {
			summary.SuccessCount++
		}
		if result.HasNewData {
			summary.HasNewData = true
		}
		summary.Results = append(summary.Results, result)
	}

	log.Printf("[Engine] Poll completed: %d/%d accounts, hasNewData=%v",
		summary.SuccessCount, summary.TotalAccounts, summary.HasNewData)
	return summary, nil
}

// PollAccount runs one incremental poll pass for one account. The
// returned error is non-nil only for storage failures.
func (e *Engine) PollAccount(ctx context.Context, account pos.Account) (AccountResult, error) {
	result := AccountResult{Email: account.Email}

	state, err := e.Tracker.Get(ctx, account.Email)
	if err != nil {
		return result, err
	}

	result.Stage = StageAuthenticating
	token, err := e.Client.Login(ctx, account.Email, account.Password)
	if err != nil {
		result.Error = err.Error()
		log.Printf("[Engine] ❌ Poll auth failed for %s: %v", account.Email, err)
		return result, nil
	}

	result.Stage = StageFetching
	to := e.now()
	from := to.Add(-e.PollWindow)
	fetched, err := e.fetchAll(ctx, account.Email, token, from, to)
	if err != nil {
		result.Error = err.Error()
		log.Printf("[Engine] ❌ Poll fetch failed for %s: %v", account.Email, err)
		return result, nil
	}

	// Client-side incrementality: keep only rows above the watermark.
	watermarks := map[pos.EntityType]int64{
		pos.EntityOrders:   state.LastOrderID,
		pos.EntityProducts: state.LastProductID,
		pos.EntitySessions: state.LastSessionID,
	}
	var observed pos.MaxIDs
	fresh := map[pos.EntityType][]pos.RawRow{}
	for entity, rows := range fetched {
		for _, row := range rows {
			id := pos.RowID(entity, row)
			if id <= watermarks[entity] {
				continue
			}
			fresh[entity] = append(fresh[entity], row)
			observed.Observe(entity, id)
		}
	}

	result.Stage = StagePersisting
	counts, dropped, err := e.persist(ctx, account.Email, fresh)
	if err != nil {
		return result, err
	}
	result.Counts = counts
	result.Dropped = dropped
	result.HasNewData = counts.Orders > 0 || counts.Products > 0 || counts.Sessions > 0

	// Always stamp the poll, even when nothing new arrived.
	if err := e.Tracker.AdvancePoll(ctx, account.Email, observed, e.now()); err != nil {
		return result, err
	}

	result.Stage = StageDone
	result.OK = true
	if result.HasNewData {
		log.Printf("[Engine] 📦 New data for %s: %d orders, %d products, %d sessions (%d dropped)",
			account.Email, counts.Orders, counts.Products, counts.Sessions, dropped)
	}
	return result, nil
}

// =============================================================================
// FULL RESYNC
// =============================================================================

// FullSync runs a full resync over an explicit date range for every
// account, relying on upsert to absorb duplicates.
func (e *Engine) FullSync(ctx context.Context, from, to time.Time) (SyncSummary, error) {
	if len(e.Accounts) == 0 {
		return SyncSummary{}, ErrNoAccounts
	}
	if from.After(to) {
		return SyncSummary{}, ErrInvalidDateRange
	}

	summary := SyncSummary{
		FromDate: from.Format("2006-01-02"),
		ToDate:   to.Format("2006-01-02"),
	}
	log.Printf("[Engine] Full sync of %d accounts from %s to %s",
		len(e.Accounts), summary.FromDate, summary.ToDate)

	for _, account := range e.Accounts {
		result, err := e.syncAccount(ctx, account, from, to)
		if err != nil {
			return SyncSummary{}, err
		}
		if !result.OK {
			summary.Failed++
		}
		summary.Results = append(summary.Results, result)
	}
	return summary, nil
}

func (e *Engine) syncAccount(ctx context.Context, account pos.Account, from, to time.Time) (AccountResult, error) {
	result := AccountResult{Email: account.Email}

	result.Stage = StageAuthenticating
	token, err := e.Client.Login(ctx, account.Email, account.Password)
	if err != nil {
		result.Error = err.Error()
		log.Printf("[Engine] ❌ Sync auth failed for %s: %v", account.Email, err)
		return result, nil
	}

	result.Stage = StageFetching
	fetched, err := e.fetchAll(ctx, account.Email, token, from, to)
	if err != nil {
		result.Error = err.Error()
		log.Printf("[Engine] ❌ Sync fetch failed for %s: %v", account.Email, err)
		return result, nil
	}

	var observed pos.MaxIDs
	for entity, rows := range fetched {
		for _, row := range rows {
			observed.Observe(entity, pos.RowID(entity, row))
		}
	}

	result.Stage = StagePersisting
	counts, dropped, err := e.persist(ctx, account.Email, fetched)
	if err != nil {
		return result, err
	}
	result.Counts = counts
	result.Dropped = dropped
	result.HasNewData = counts.Orders > 0 || counts.Products > 0 || counts.Sessions > 0

	if err := e.Tracker.AdvanceFullSync(ctx, account.Email, observed, e.now()); err != nil {
		return result, err
	}

	result.Stage = StageDone
	result.OK = true
	log.Printf("[Engine] ✅ Synced %s: %d orders, %d products, %d sessions (%d dropped)",
		account.Email, counts.Orders, counts.Products, counts.Sessions, dropped)
	return result, nil
}

// =============================================================================
// LOCAL VALIDATION AND BOOTSTRAP
// =============================================================================

// LocalValidation surfaces drift/staleness from the local store only.
// Makes no upstream calls.
func (e *Engine) LocalValidation(ctx context.Context) (store.ValidationStats, error) {
	stats, err := e.store.Validation(ctx)
	if err != nil {
		return store.ValidationStats{}, storageErr("local validation", err)
	}
	log.Printf("[Engine] ✅ Local validation: %d orders, %d products, %d sessions, %d accounts",
		stats.Orders, stats.Products, stats.Sessions, stats.Accounts)
	return stats, nil
}

// YearLoadResult reports what the empty-database bootstrap did.
type YearLoadResult struct {
	Loaded     bool         `json:"loaded"`
	Year       int          `json:"year,omitempty"`
	OrderCount int64        `json:"orderCount"`
	Summary    *SyncSummary `json:"result,omitempty"`
}

// CheckAndLoadYear loads the current calendar year when the database is
// empty, with bounded backoff because the bulk load is long and the
// vendor flaky. A populated database is left alone.
func (e *Engine) CheckAndLoadYear(ctx context.Context) (YearLoadResult, error) {
	count, err := e.store.CountOrders(ctx)
	if err != nil {
		return YearLoadResult{}, storageErr("count orders", err)
	}
	if count > 0 {
		log.Printf("[Engine] Database already holds %d orders, skipping year load", count)
		return YearLoadResult{OrderCount: count}, nil
	}

	year := e.now().Year()
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
	log.Printf("[Engine] 📊 Empty database detected, loading year %d", year)

	var summary SyncSummary
	err = RetryWithBackoff(ctx, 3, time.Second, func() error {
		var syncErr error
		summary, syncErr = e.FullSync(ctx, from, to)
		return syncErr
	})
	if err != nil {
		return YearLoadResult{}, fmt.Errorf("year load failed: %w", err)
	}

	return YearLoadResult{Loaded: true, Year: year, Summary: &summary}, nil
}

// =============================================================================
// FETCH AND PERSIST
// =============================================================================

var entityTypes = []pos.EntityType{pos.EntityOrders, pos.EntityProducts, pos.EntitySessions}

// fetchAll retrieves the three entity collections concurrently. The
// first failure wins; a pass either has all three or is failed.
func (e *Engine) fetchAll(ctx context.Context, email, token string, from, to time.Time) (map[pos.EntityType][]pos.RawRow, error) {
	type fetchResult struct {
		entity pos.EntityType
		rows   []pos.RawRow
		err    error
	}

	results := make([]fetchResult, len(entityTypes))
	var wg sync.WaitGroup
	for i, entity := range entityTypes {
		wg.Add(1)
		go func(i int, entity pos.EntityType) {
			defer wg.Done()
			rows, err := e.Client.Fetch(ctx, entity, email, token, from, to)
			results[i] = fetchResult{entity: entity, rows: rows, err: err}
		}(i, entity)
	}
	wg.Wait()

	out := make(map[pos.EntityType][]pos.RawRow, len(entityTypes))
	for _, r := range results {
		if r.err != nil {
			return nil, r.err
		}
		out[r.entity] = r.rows
	}
	return out, nil
}

// persist normalizes and upserts one account's batch: orders before
// products so the same-pass timestamp backfill can resolve parents,
// then sessions. Each entity batch is one storage transaction.
func (e *Engine) persist(ctx context.Context, email string, batch map[pos.EntityType][]pos.RawRow) (Counts, int, error) {
	var counts Counts
	dropped := 0

	orders, droppedOrders := pos.NormalizeOrders(batch[pos.EntityOrders], email)
	dropped += droppedOrders
	if err := e.store.UpsertOrders(ctx, orders); err != nil {
		return counts, dropped, storageErr("upsert orders", err)
	}
	counts.Orders = len(orders)

	products, droppedProducts := pos.NormalizeProducts(batch[pos.EntityProducts], email)
	dropped += droppedProducts
	if err := e.store.UpsertProducts(ctx, products); err != nil {
		return counts, dropped, storageErr("upsert products", err)
	}
	counts.Products = len(products)

	if len(products) > 0 {
		if _, err := e.store.BackfillProductTimestamps(ctx, email); err != nil {
			return counts, dropped, storageErr("backfill product timestamps", err)
		}
	}

	sessions := pos.NormalizeSessions(batch[pos.EntitySessions], email)
	if err := e.store.UpsertSessions(ctx, sessions); err != nil {
		return counts, dropped, storageErr("upsert sessions", err)
	}
	counts.Sessions = len(sessions)

	if dropped > 0 {
		log.Printf("[Engine] ⚠️ Dropped %d negative-total rows for %s", dropped, email)
	}
	return counts, dropped, nil
}
