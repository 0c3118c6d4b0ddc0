/*
Package store is the persistence layer for synced POS sales data.

PURPOSE:
  Owns the four logical tables (sale_orders, sale_products, psessions,
  sync_state) and exposes idempotent batch upserts, the product
  timestamp backfill, sync-state reads/writes, and the read-only
  aggregate queries the dashboard consumes.

BACKENDS:
  Two interchangeable backends behind one Store: SQLite (local file,
  mattn/go-sqlite3) and PostgreSQL (lib/pq). The choice is made once at
  startup from the DSN; see Open and dialect.go. All calling code is
  backend-agnostic.

UPSERT SEMANTICS:
  Insert-or-replace keyed by the vendor-assigned primary id. Replaying
  the same id overwrites the prior row atomically; there is no deletion
  path. Each batch runs inside one transaction per entity type per
  account, so a mid-batch failure commits nothing.

CONCURRENCY:
  A sync.RWMutex serializes writers. PostgreSQL would not need it, but
  the SQLite backend does and the engine's account-level upserts touch
  disjoint id spaces, so the lock is uniform across backends.

WAL MODE:
  SQLite is opened with WAL so dashboard reads don't block the poller's
  writes.

USAGE:
  s, err := store.Open("./data/sales.db")   // SQLite
  s, err := store.Open("postgres://...")    // PostgreSQL

SEE ALSO:
  - dialect.go: Placeholder/schema differences
  - stats.go: Read-only aggregate queries
  - engine/engine.go: The writer driving the upserts
*/
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/h4srl/salesync/pos"
)

// Store provides access to the sales database on either backend.
type Store struct {
	db      *sql.DB
	dialect Dialect
	mu      sync.RWMutex
}

// Open connects to the backend selected by the DSN and migrates the
// schema. A postgres:// or postgresql:// DSN selects PostgreSQL; any
// other value is treated as a SQLite database path (":memory:" works).
func Open(dsn string) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("empty database DSN")
	}

	var (
		db      *sql.DB
		dialect Dialect
		err     error
	)
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		db, err = sql.Open("postgres", dsn)
		dialect = postgresDialect{}
	} else {
		db, err = sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
		dialect = sqliteDialect{}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, dialect: dialect}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Backend returns the active backend name ("sqlite" or "postgres").
func (s *Store) Backend() string {
	return s.dialect.Name()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(s.dialect.Schema())
	return err
}

// =============================================================================
// UPSERTS
// =============================================================================

// UpsertOrders writes a batch of orders in one transaction. Replays of
// the same vendor id overwrite the existing row.
func (s *Store) UpsertOrders(ctx context.Context, orders []pos.Order) error {
	if len(orders) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	query := s.dialect.Rebind(`
		INSERT INTO sale_orders (id, store_id, account_email, created_at, total_amount, payment_method, raw)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			store_id = excluded.store_id,
			account_email = excluded.account_email,
			created_at = excluded.created_at,
			total_amount = excluded.total_amount,
			payment_method = excluded.payment_method,
			raw = excluded.raw
	`)

	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, o := range orders {
			_, err := tx.ExecContext(ctx, query,
				o.ID,
				nullInt64(o.StoreID),
				o.AccountEmail,
				nullString(o.CreatedAt),
				o.TotalAmount.InexactFloat64(),
				nullString(o.PaymentMethod),
				string(o.Raw),
			)
			if err != nil {
				return fmt.Errorf("upsert order %d: %w", o.ID, err)
			}
		}
		return nil
	})
}

// UpsertProducts writes a batch of line items in one transaction.
func (s *Store) UpsertProducts(ctx context.Context, products []pos.Product) error {
	if len(products) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	query := s.dialect.Rebind(`
		INSERT INTO sale_products (id, order_id, store_id, account_email, created_at, product_name, quantity, total_amount, raw)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			order_id = excluded.order_id,
			store_id = excluded.store_id,
			account_email = excluded.account_email,
			created_at = excluded.created_at,
			product_name = excluded.product_name,
			quantity = excluded.quantity,
			total_amount = excluded.total_amount,
			raw = excluded.raw
	`)

	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, p := range products {
			_, err := tx.ExecContext(ctx, query,
				p.ID,
				nullInt64(p.OrderID),
				nullInt64(p.StoreID),
				p.AccountEmail,
				nullString(p.CreatedAt),
				nullString(p.ProductName),
				p.Quantity.InexactFloat64(),
				p.TotalAmount.InexactFloat64(),
				string(p.Raw),
			)
			if err != nil {
				return fmt.Errorf("upsert product %d: %w", p.ID, err)
			}
		}
		return nil
	})
}

// UpsertSessions writes a batch of shift sessions in one transaction.
func (s *Store) UpsertSessions(ctx context.Context, sessions []pos.Session) error {
	if len(sessions) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	query := s.dialect.Rebind(`
		INSERT INTO psessions (id, store_id, account_email, created_at, raw)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			store_id = excluded.store_id,
			account_email = excluded.account_email,
			created_at = excluded.created_at,
			raw = excluded.raw
	`)

	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, sess := range sessions {
			_, err := tx.ExecContext(ctx, query,
				sess.ID,
				nullInt64(sess.StoreID),
				sess.AccountEmail,
				nullString(sess.CreatedAt),
				string(sess.Raw),
			)
			if err != nil {
				return fmt.Errorf("upsert session %d: %w", sess.ID, err)
			}
		}
		return nil
	})
}

// BackfillProductTimestamps copies the parent order's created_at onto
// product rows that lack one, via the weak order_id reference, scoped
// to one account. Idempotent: rerunning it is a no-op once filled.
// Returns the number of rows updated.
func (s *Store) BackfillProductTimestamps(ctx context.Context, accountEmail string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := s.dialect.Rebind(`
		UPDATE sale_products
		SET created_at = (
			SELECT o.created_at FROM sale_orders o WHERE o.id = sale_products.order_id
		)
		WHERE account_email = ?
		  AND created_at IS NULL
		  AND order_id IS NOT NULL
	`)

	res, err := s.db.ExecContext(ctx, query, accountEmail)
	if err != nil {
		return 0, fmt.Errorf("backfill product timestamps: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// =============================================================================
// SYNC STATE
// =============================================================================

// GetSyncState loads the cursor record for an account, returning zero
// defaults when the account has never been polled.
func (s *Store) GetSyncState(ctx context.Context, accountEmail string) (pos.SyncState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := s.dialect.Rebind(`
		SELECT account_email, last_order_id, last_product_id, last_session_id, last_poll_at, last_full_sync_at
		FROM sync_state
		WHERE account_email = ?
	`)

	var (
		state    pos.SyncState
		pollAt   sql.NullString
		fullSync sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, accountEmail).Scan(
		&state.AccountEmail,
		&state.LastOrderID,
		&state.LastProductID,
		&state.LastSessionID,
		&pollAt,
		&fullSync,
	)
	if err == sql.ErrNoRows {
		return pos.SyncState{AccountEmail: accountEmail}, nil
	}
	if err != nil {
		return pos.SyncState{}, fmt.Errorf("get sync state for %s: %w", accountEmail, err)
	}

	state.LastPollAt = parseNullTime(pollAt)
	state.LastFullSyncAt = parseNullTime(fullSync)
	return state, nil
}

// SaveSyncState upserts the cursor record for an account.
func (s *Store) SaveSyncState(ctx context.Context, state pos.SyncState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := s.dialect.Rebind(`
		INSERT INTO sync_state (account_email, last_order_id, last_product_id, last_session_id, last_poll_at, last_full_sync_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_email) DO UPDATE SET
			last_order_id = excluded.last_order_id,
			last_product_id = excluded.last_product_id,
			last_session_id = excluded.last_session_id,
			last_poll_at = excluded.last_poll_at,
			last_full_sync_at = excluded.last_full_sync_at
	`)

	_, err := s.db.ExecContext(ctx, query,
		state.AccountEmail,
		state.LastOrderID,
		state.LastProductID,
		state.LastSessionID,
		formatNullTime(state.LastPollAt),
		formatNullTime(state.LastFullSyncAt),
	)
	if err != nil {
		return fmt.Errorf("save sync state for %s: %w", state.AccountEmail, err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt64(n int64) sql.NullInt64 {
	if n == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: n, Valid: true}
}

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}
