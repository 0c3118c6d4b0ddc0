/*
normalize_test.go - Normalizer and field-resolution tests
*/
package pos

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeOrder_FieldPriority(t *testing.T) {
	// idSaleOrder outranks id when both are present.
	row := RawRow{
		"idSaleOrder": float64(7),
		"id":          float64(9),
		"shopNumber":  float64(63953),
		"total":       float64(1500.5),
	}

	order, ok := NormalizeOrder(row, "store1@example.com")
	require.True(t, ok)
	assert.Equal(t, int64(7), order.ID)
	assert.Equal(t, int64(63953), order.StoreID)
	assert.Equal(t, "store1@example.com", order.AccountEmail)
	assert.Equal(t, "1500.5", order.TotalAmount.String())
}

func TestNormalizeOrder_ZeroIDFallsThrough(t *testing.T) {
	row := RawRow{
		"idSaleOrder": float64(0),
		"id":          float64(42),
	}
	order, ok := NormalizeOrder(row, "a@b.com")
	require.True(t, ok)
	assert.Equal(t, int64(42), order.ID)
}

func TestNormalizeOrder_NegativeTotalDropped(t *testing.T) {
	rows := []RawRow{
		{"idSaleOrder": float64(1), "total_amount": float64(100)},
		{"idSaleOrder": float64(2), "total_amount": float64(-50)},
		{"idSaleOrder": float64(3), "total": float64(25)},
	}

	orders, dropped := NormalizeOrders(rows, "a@b.com")
	require.Len(t, orders, 2)
	assert.Equal(t, 1, dropped)
	for _, o := range orders {
		assert.False(t, o.TotalAmount.IsNegative(), "no persisted row may carry a negative total")
	}
}

func TestNormalizeOrder_TotalFallbackChain(t *testing.T) {
	cases := []struct {
		name string
		row  RawRow
		want string
	}{
		{"explicit total_amount", RawRow{"id": 1.0, "total_amount": 10.0, "total": 99.0}, "10"},
		{"generic total", RawRow{"id": 1.0, "total": 20.0, "amount": 99.0}, "20"},
		{"generic amount", RawRow{"id": 1.0, "amount": 30.0}, "30"},
		{"nothing", RawRow{"id": 1.0}, "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order, ok := NormalizeOrder(tc.row, "a@b.com")
			require.True(t, ok)
			assert.Equal(t, tc.want, order.TotalAmount.String())
		})
	}
}

func TestNormalizeProduct_SalePriceFallback(t *testing.T) {
	row := RawRow{
		"idSaleProduct": float64(11),
		"idSaleOrder":   float64(7),
		"name":          "Cafe con leche",
		"salePrice":     float64(500),
		"quantity":      float64(3),
	}

	product, ok := NormalizeProduct(row, "a@b.com")
	require.True(t, ok)
	assert.Equal(t, int64(11), product.ID)
	assert.Equal(t, int64(7), product.OrderID)
	assert.Equal(t, "Cafe con leche", product.ProductName)
	assert.Equal(t, "1500", product.TotalAmount.String())
}

func TestNormalizeProduct_SalePriceDefaultsQuantityToOne(t *testing.T) {
	row := RawRow{"id": float64(1), "salePrice": float64(250)}
	product, ok := NormalizeProduct(row, "a@b.com")
	require.True(t, ok)
	assert.Equal(t, "250", product.TotalAmount.String())
	assert.True(t, product.Quantity.IsZero())
}

func TestNormalizeProduct_NegativeDropped(t *testing.T) {
	products, dropped := NormalizeProducts([]RawRow{
		{"id": float64(1), "total_amount": float64(-50)},
	}, "a@b.com")
	assert.Empty(t, products)
	assert.Equal(t, 1, dropped)
}

func TestNormalizeSession_CheckinTimestamp(t *testing.T) {
	row := RawRow{
		"idSession": float64(3),
		"storeId":   float64(10019),
		"checkin":   "2025-03-10 08:30:00",
	}
	session := NormalizeSession(row, "a@b.com")
	assert.Equal(t, int64(3), session.ID)
	assert.Equal(t, int64(10019), session.StoreID)
	assert.Equal(t, "2025-03-10T08:30:00Z", session.CreatedAt)
}

func TestNormalize_PreservesRawPayload(t *testing.T) {
	row := RawRow{"idSaleOrder": float64(5), "total": float64(10), "vendor_extra": "kept"}
	order, ok := NormalizeOrder(row, "a@b.com")
	require.True(t, ok)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(order.Raw, &decoded))
	assert.Equal(t, "kept", decoded["vendor_extra"])
}

func TestRowID(t *testing.T) {
	assert.Equal(t, int64(7), RowID(EntityOrders, RawRow{"idSaleOrder": float64(7)}))
	assert.Equal(t, int64(8), RowID(EntityProducts, RawRow{"idSaleProduct": float64(8)}))
	assert.Equal(t, int64(9), RowID(EntitySessions, RawRow{"idSession": float64(9)}))
	assert.Equal(t, int64(4), RowID(EntityOrders, RawRow{"id": float64(4)}))
	assert.Equal(t, int64(0), RowID(EntityOrders, RawRow{}))
}

func TestRowID_StringAndNumberCoercion(t *testing.T) {
	assert.Equal(t, int64(12), RowID(EntityOrders, RawRow{"idSaleOrder": "12"}))
	assert.Equal(t, int64(13), RowID(EntityOrders, RawRow{"idSaleOrder": json.Number("13")}))
}

func TestPaymentGroup(t *testing.T) {
	assert.Equal(t, GroupEfectivo, PaymentGroup("cash"))
	assert.Equal(t, GroupEfectivo, PaymentGroup("CC_PedidosYaFT"))
	assert.Equal(t, GroupApps, PaymentGroup("cc_rappiol"))
	assert.Equal(t, GroupApps, PaymentGroup("cc_pedidosyaol"))
	assert.Equal(t, GroupMercadoPago, PaymentGroup("cc_argencard"))
	assert.Equal(t, GroupMercadoPago, PaymentGroup("cc_mcdebit"))
	assert.Equal(t, GroupOtros, PaymentGroup("gift_card"))
	assert.Equal(t, GroupOtros, PaymentGroup(""))
}

func TestNormalizeTimestamp(t *testing.T) {
	assert.Equal(t, "2025-03-10T00:00:00Z", normalizeTimestamp("2025-03-10"))
	assert.Equal(t, "2025-03-10T12:00:00-03:00", normalizeTimestamp("2025-03-10T12:00:00-03:00"))
	assert.Equal(t, "not a date", normalizeTimestamp("not a date"))
	assert.Equal(t, "", normalizeTimestamp(""))
}

func TestMaxIDs_Observe(t *testing.T) {
	var m MaxIDs
	m.Observe(EntityOrders, 101)
	m.Observe(EntityOrders, 99) // never regresses
	m.Observe(EntityProducts, 7)
	m.Observe(EntitySessions, 3)

	assert.Equal(t, int64(101), m.Order)
	assert.Equal(t, int64(7), m.Product)
	assert.Equal(t, int64(3), m.Session)
}
