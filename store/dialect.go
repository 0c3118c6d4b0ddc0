/*
dialect.go - SQL dialect boundary between SQLite and PostgreSQL

PURPOSE:
  All query code in this package is written once, against '?'
  placeholders and the shared subset of SQL both engines accept
  (ON CONFLICT upserts, COALESCE, substr). The Dialect pushes the real
  differences behind one boundary:

  - placeholder style ('?' vs '$1, $2, ...')
  - schema DDL (column types, JSON vs JSONB for the raw payload)

  The backend is a process-wide decision made once by Open(); callers
  never see which dialect is active.

SEE ALSO:
  - store.go: Open() selects the dialect from the DSN
*/
package store

import "strconv"

// Dialect abstracts the differences between the two supported backends.
type Dialect interface {
	// Name returns the backend identifier ("sqlite" or "postgres").
	Name() string
	// Rebind rewrites '?' placeholders into the backend's native style.
	Rebind(query string) string
	// Schema returns the migration DDL for this backend.
	Schema() string
}

// =============================================================================
// SQLITE
// =============================================================================

type sqliteDialect struct{}

func (sqliteDialect) Name() string { return "sqlite" }

// Rebind is the identity for SQLite: '?' is native.
func (sqliteDialect) Rebind(query string) string { return query }

func (sqliteDialect) Schema() string {
	return `
	CREATE TABLE IF NOT EXISTS sale_orders (
		id INTEGER PRIMARY KEY,
		store_id INTEGER,
		account_email TEXT,
		created_at TEXT,
		total_amount REAL,
		payment_method TEXT,
		raw JSON
	);

	CREATE TABLE IF NOT EXISTS sale_products (
		id INTEGER PRIMARY KEY,
		order_id INTEGER,
		store_id INTEGER,
		account_email TEXT,
		created_at TEXT,
		product_name TEXT,
		quantity REAL,
		total_amount REAL,
		raw JSON
	);

	CREATE TABLE IF NOT EXISTS psessions (
		id INTEGER PRIMARY KEY,
		store_id INTEGER,
		account_email TEXT,
		created_at TEXT,
		raw JSON
	);

	CREATE TABLE IF NOT EXISTS sync_state (
		account_email TEXT PRIMARY KEY,
		last_order_id INTEGER DEFAULT 0,
		last_product_id INTEGER DEFAULT 0,
		last_session_id INTEGER DEFAULT 0,
		last_poll_at TEXT,
		last_full_sync_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_orders_date ON sale_orders(created_at);
	CREATE INDEX IF NOT EXISTS idx_orders_store ON sale_orders(store_id);
	CREATE INDEX IF NOT EXISTS idx_products_date ON sale_products(created_at);
	CREATE INDEX IF NOT EXISTS idx_products_order ON sale_products(order_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_date ON psessions(created_at);
	`
}

// =============================================================================
// POSTGRES
// =============================================================================

type postgresDialect struct{}

func (postgresDialect) Name() string { return "postgres" }

// Rebind rewrites '?' placeholders into '$1, $2, ...'. Queries in this
// package never contain a literal '?', so no quote tracking is needed.
func (postgresDialect) Rebind(query string) string {
	out := make([]byte, 0, len(query)+8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			out = append(out, '$')
			out = strconv.AppendInt(out, int64(n), 10)
			continue
		}
		out = append(out, query[i])
	}
	return string(out)
}

func (postgresDialect) Schema() string {
	return `
	CREATE TABLE IF NOT EXISTS sale_orders (
		id BIGINT PRIMARY KEY,
		store_id BIGINT,
		account_email TEXT,
		created_at TEXT,
		total_amount DOUBLE PRECISION,
		payment_method TEXT,
		raw JSONB
	);

	CREATE TABLE IF NOT EXISTS sale_products (
		id BIGINT PRIMARY KEY,
		order_id BIGINT,
		store_id BIGINT,
		account_email TEXT,
		created_at TEXT,
		product_name TEXT,
		quantity DOUBLE PRECISION,
		total_amount DOUBLE PRECISION,
		raw JSONB
	);

	CREATE TABLE IF NOT EXISTS psessions (
		id BIGINT PRIMARY KEY,
		store_id BIGINT,
		account_email TEXT,
		created_at TEXT,
		raw JSONB
	);

	CREATE TABLE IF NOT EXISTS sync_state (
		account_email TEXT PRIMARY KEY,
		last_order_id BIGINT DEFAULT 0,
		last_product_id BIGINT DEFAULT 0,
		last_session_id BIGINT DEFAULT 0,
		last_poll_at TEXT,
		last_full_sync_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_orders_date ON sale_orders(created_at);
	CREATE INDEX IF NOT EXISTS idx_orders_store ON sale_orders(store_id);
	CREATE INDEX IF NOT EXISTS idx_products_date ON sale_products(created_at);
	CREATE INDEX IF NOT EXISTS idx_products_order ON sale_products(order_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_date ON psessions(created_at);
	`
}
