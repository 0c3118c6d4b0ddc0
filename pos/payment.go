/*
payment.go - Read-time bucketing of free-text payment methods

The vendor reports payment methods as free text. Persisted rows keep the
text verbatim; the dashboard buckets them into four fixed groups when
aggregating. Bucketing happens at read time so new vendor codes degrade
to Otros instead of being lost.
*/
package pos

import "strings"

// PaymentGroupNames lists the groups in display order.
var PaymentGroupNames = []string{GroupEfectivo, GroupApps, GroupMercadoPago, GroupOtros}

const (
	GroupEfectivo    = "Efectivo"
	GroupApps        = "Apps"
	GroupMercadoPago = "Mercado Pago"
	GroupOtros       = "Otros"
)

var paymentGroups = map[string]string{
	"cash":           GroupEfectivo,
	"cc_pedidosyaft": GroupEfectivo,
	"cc_rappiol":     GroupApps,
	"cc_pedidosyaol": GroupApps,
	"cc_argencard":   GroupMercadoPago,
	"cc_mcdebit":     GroupMercadoPago,
}

// PaymentGroup maps a raw payment method to its display group.
// Unknown and empty methods land in Otros.
func PaymentGroup(method string) string {
	normalized := strings.ToLower(strings.TrimSpace(method))
	if group, ok := paymentGroups[normalized]; ok {
		return group
	}
	return GroupOtros
}
