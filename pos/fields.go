/*
fields.go - Ordered field-name candidates for vendor payloads

PURPOSE:
  The vendor API returns the same logical field under several possible
  key names. Each canonical field has a fixed priority list of candidate
  keys; the first candidate that resolves to a usable value wins. The
  lists are data, not code, so resolution order is testable in isolation
  and changes to vendor shapes are one-line edits.

RESOLUTION SEMANTICS:
  A candidate "resolves" when the key is present and its value is
  non-null, non-empty and non-zero. Zero values fall through to the next
  candidate; this matches the observed vendor behavior where 0 means
  "not set" rather than a real id or amount.

SEE ALSO:
  - normalize.go: Uses these lists to build canonical rows
*/
package pos

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Candidate key lists, highest priority first. Order is a contract:
// when a row carries more than one candidate, the first one wins.
var (
	orderIDFields   = []string{"idSaleOrder", "id"}
	productIDFields = []string{"idSaleProduct", "id"}
	sessionIDFields = []string{"idSession", "id"}

	storeIDFields  = []string{"store_id", "storeId", "shopNumber"}
	orderRefFields = []string{"order_id", "orderId", "idSaleOrder"}

	orderCreatedFields   = []string{"created_at", "createdAt", "orderDate", "date"}
	productCreatedFields = []string{"created_at", "createdAt", "date"}
	sessionCreatedFields = []string{"created_at", "createdAt", "checkin", "date"}

	paymentMethodFields = []string{"payment_method", "paymentMethod", "paymentmethod"}
	productNameFields   = []string{"product_name", "name", "product"}
	quantityFields      = []string{"quantity", "qty"}
	totalFields         = []string{"total_amount", "total", "amount"}
)

// firstInt64 resolves the first candidate that holds a usable non-zero
// integer id.
func firstInt64(row RawRow, candidates []string) int64 {
	for _, key := range candidates {
		if v, ok := row[key]; ok {
			if n, ok := toInt64(v); ok && n != 0 {
				return n
			}
		}
	}
	return 0
}

// firstString resolves the first candidate that holds a non-empty string.
func firstString(row RawRow, candidates []string) string {
	for _, key := range candidates {
		if v, ok := row[key]; ok {
			if s, ok := toString(v); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// firstDecimal resolves the first candidate that holds a usable non-zero
// numeric value.
func firstDecimal(row RawRow, candidates []string) (decimal.Decimal, bool) {
	for _, key := range candidates {
		if v, ok := row[key]; ok {
			if d, ok := toDecimal(v); ok && !d.IsZero() {
				return d, true
			}
		}
	}
	return decimal.Zero, false
}

func toInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		return int64(t), true
	case int64:
		return t, true
	case int:
		return int64(t), true
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			f, ferr := t.Float64()
			if ferr != nil {
				return 0, false
			}
			return int64(f), true
		}
		return n, true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(s, 64)
			if ferr != nil {
				return 0, false
			}
			return int64(f), true
		}
		return n, true
	default:
		return 0, false
	}
}

func toString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case json.Number:
		return t.String(), true
	default:
		return "", false
	}
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case float64:
		return decimal.NewFromFloat(t), true
	case int64:
		return decimal.NewFromInt(t), true
	case int:
		return decimal.NewFromInt(int64(t)), true
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	default:
		return decimal.Zero, false
	}
}
