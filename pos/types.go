/*
types.go - Canonical row types for POS sales data

PURPOSE:
  Defines the canonical shapes that vendor payloads are normalized into
  before they reach storage. The vendor API is loosely typed: the same
  logical field shows up under different names depending on endpoint and
  store configuration, so every canonical row also carries the original
  payload verbatim for debugging and forward compatibility.

ENTITIES:
  Order:     One completed sale ticket (sale_orders table)
  Product:   One line item, weakly referencing its order (sale_products)
  Session:   One POS shift/checkin (psessions)
  SyncState: Per-account cursor record (sync_state)

INVARIANTS:
  - TotalAmount is never negative on a persisted row; the normalizer
    drops negative-total rows before they reach storage.
  - SyncState watermarks are monotonically non-decreasing.

SEE ALSO:
  - fields.go: Ordered field-name candidates per canonical field
  - normalize.go: RawRow -> canonical row conversion
  - store/store.go: Persistence of these rows
*/
package pos

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// EntityType identifies one of the three vendor collections.
type EntityType string

const (
	EntityOrders   EntityType = "sale_orders"
	EntityProducts EntityType = "sale_products"
	EntitySessions EntityType = "psessions"
)

// RawRow is one untyped vendor payload object.
type RawRow map[string]any

// Order is a canonical sale order row.
type Order struct {
	ID            int64
	StoreID       int64 // 0 = unknown, persisted as NULL
	AccountEmail  string
	CreatedAt     string // RFC3339 when parseable, vendor text otherwise, "" = missing
	TotalAmount   decimal.Decimal
	PaymentMethod string
	Raw           json.RawMessage
}

// Product is a canonical sale line item row. OrderID is a weak reference
// to Order.ID: never enforced by a foreign key, joined at query time.
type Product struct {
	ID           int64
	OrderID      int64 // 0 = unknown
	StoreID      int64
	AccountEmail string
	CreatedAt    string // often absent at source; backfilled from the parent order
	ProductName  string
	Quantity     decimal.Decimal
	TotalAmount  decimal.Decimal
	Raw          json.RawMessage
}

// Session is a canonical POS shift/checkin row.
type Session struct {
	ID           int64
	StoreID      int64
	AccountEmail string
	CreatedAt    string
	Raw          json.RawMessage
}

// Account is one vendor login identity. Each physical store group is
// reached through its own credential pair.
type Account struct {
	Email    string
	Password string
}

// SyncState is the per-account cursor record the incremental poller
// reads and advances. Watermarks only ever move forward.
type SyncState struct {
	AccountEmail   string
	LastOrderID    int64
	LastProductID  int64
	LastSessionID  int64
	LastPollAt     *time.Time
	LastFullSyncAt *time.Time
}

// MaxIDs is the set of highest ids observed across one fetch batch.
type MaxIDs struct {
	Order   int64
	Product int64
	Session int64
}

// Observe folds another id triple into the running maximum.
func (m *MaxIDs) Observe(entity EntityType, id int64) {
	switch entity {
	case EntityOrders:
		if id > m.Order {
			m.Order = id
		}
	case EntityProducts:
		if id > m.Product {
			m.Product = id
		}
	case EntitySessions:
		if id > m.Session {
			m.Session = id
		}
	}
}
