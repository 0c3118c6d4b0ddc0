/*
normalize.go - Vendor payload to canonical row conversion

PURPOSE:
  Maps heterogeneous vendor rows into canonical Order/Product/Session
  rows and applies the ingest business filter: rows whose computed total
  is negative (returns, voids, cancellations) are dropped, not persisted
  and not treated as errors. The drop count is returned so callers can
  log and meter it.

TOTAL FALLBACK CHAIN:
  orders:   total_amount -> total -> amount -> 0
  products: total_amount -> total -> amount -> salePrice*quantity -> 0

TIMESTAMPS:
  Vendor timestamps are rewritten to RFC3339 when parseable so that day
  grouping in SQL is a plain substr() on both storage backends. An
  unparseable value is kept verbatim; the raw payload always preserves
  the original either way.

SEE ALSO:
  - fields.go: Candidate key lists and typed lookups
  - payment.go: Read-time payment-method bucketing
*/
package pos

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// RowID resolves the vendor id of a raw row for the given entity type.
// Used by the poller to filter re-fetched rows against the watermark
// before normalization.
func RowID(entity EntityType, row RawRow) int64 {
	switch entity {
	case EntityOrders:
		return firstInt64(row, orderIDFields)
	case EntityProducts:
		return firstInt64(row, productIDFields)
	case EntitySessions:
		return firstInt64(row, sessionIDFields)
	default:
		return 0
	}
}

// NormalizeOrder converts one raw vendor order. The second return is
// false when the row is dropped by the negative-total filter.
func NormalizeOrder(row RawRow, accountEmail string) (Order, bool) {
	total, _ := firstDecimal(row, totalFields)
	if total.IsNegative() {
		return Order{}, false
	}

	raw, _ := json.Marshal(row)
	return Order{
		ID:            firstInt64(row, orderIDFields),
		StoreID:       firstInt64(row, storeIDFields),
		AccountEmail:  accountEmail,
		CreatedAt:     normalizeTimestamp(firstString(row, orderCreatedFields)),
		TotalAmount:   total,
		PaymentMethod: firstString(row, paymentMethodFields),
		Raw:           raw,
	}, true
}

// NormalizeProduct converts one raw vendor line item, falling back to
// salePrice*quantity when no explicit total is present.
func NormalizeProduct(row RawRow, accountEmail string) (Product, bool) {
	quantity, _ := firstDecimal(row, quantityFields)

	total, ok := firstDecimal(row, totalFields)
	if !ok {
		price, hasPrice := toDecimalField(row, "salePrice")
		if hasPrice {
			qty := quantity
			if qty.IsZero() {
				qty = decimal.NewFromInt(1)
			}
			total = price.Mul(qty)
		}
	}
	if total.IsNegative() {
		return Product{}, false
	}

	raw, _ := json.Marshal(row)
	return Product{
		ID:           firstInt64(row, productIDFields),
		OrderID:      firstInt64(row, orderRefFields),
		StoreID:      firstInt64(row, storeIDFields),
		AccountEmail: accountEmail,
		CreatedAt:    normalizeTimestamp(firstString(row, productCreatedFields)),
		ProductName:  firstString(row, productNameFields),
		Quantity:     quantity,
		TotalAmount:  total,
		Raw:          raw,
	}, true
}

// NormalizeSession converts one raw vendor shift/checkin row. Sessions
// carry no total and are never dropped.
func NormalizeSession(row RawRow, accountEmail string) Session {
	raw, _ := json.Marshal(row)
	return Session{
		ID:           firstInt64(row, sessionIDFields),
		StoreID:      firstInt64(row, storeIDFields),
		AccountEmail: accountEmail,
		CreatedAt:    normalizeTimestamp(firstString(row, sessionCreatedFields)),
		Raw:          raw,
	}
}

// NormalizeOrders converts a batch, returning the kept rows and the
// count of rows dropped by the negative-total filter.
func NormalizeOrders(rows []RawRow, accountEmail string) ([]Order, int) {
	out := make([]Order, 0, len(rows))
	dropped := 0
	for _, row := range rows {
		order, ok := NormalizeOrder(row, accountEmail)
		if !ok {
			dropped++
			continue
		}
		out = append(out, order)
	}
	return out, dropped
}

// NormalizeProducts converts a batch of line items.
func NormalizeProducts(rows []RawRow, accountEmail string) ([]Product, int) {
	out := make([]Product, 0, len(rows))
	dropped := 0
	for _, row := range rows {
		product, ok := NormalizeProduct(row, accountEmail)
		if !ok {
			dropped++
			continue
		}
		out = append(out, product)
	}
	return out, dropped
}

// NormalizeSessions converts a batch of shift rows.
func NormalizeSessions(rows []RawRow, accountEmail string) []Session {
	out := make([]Session, 0, len(rows))
	for _, row := range rows {
		out = append(out, NormalizeSession(row, accountEmail))
	}
	return out
}

func toDecimalField(row RawRow, key string) (decimal.Decimal, bool) {
	v, ok := row[key]
	if !ok {
		return decimal.Zero, false
	}
	d, ok := toDecimal(v)
	if !ok || d.IsZero() {
		return decimal.Zero, false
	}
	return d, true
}

// timestampLayouts are tried in order when rewriting vendor timestamps.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006",
}

func normalizeTimestamp(s string) string {
	if s == "" {
		return ""
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(time.RFC3339)
		}
	}
	return s
}
