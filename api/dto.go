/*
dto.go - JSON shapes for API responses

PURPOSE:
  Defines the JSON structures returned to the dashboard. These decouple
  the storage row types from the wire contract: the dashboard keys on
  these field names, the store types can evolve independently.

NAMING CONVENTION:
  *DTO:      response element types
  *Response: top-level response wrappers

SEE ALSO:
  - handlers.go: Construction of these types
  - store/stats.go: The aggregate rows they are built from
*/
package api

import (
	"encoding/json"
	"net/http"

	"github.com/h4srl/salesync/engine"
	"github.com/h4srl/salesync/pos"
)

// =============================================================================
// SYNC
// =============================================================================

// PollResponse is the outcome of a manual poll. The summary's fields
// (hasNewData, successCount, totalAccounts, results) are promoted to
// the top level; the dashboard keys on them there.
type PollResponse struct {
	OK bool `json:"ok"`
	engine.PollSummary
}

// FullSyncResponse is the outcome of a manual full sync, with the
// summary's fields (results, fromDate, toDate, failed) at top level.
type FullSyncResponse struct {
	OK bool `json:"ok"`
	engine.SyncSummary
}

// HistoricalLoadResponse reports an operator-triggered range load with
// before/after order counts alongside the promoted summary fields.
type HistoricalLoadResponse struct {
	OK             bool  `json:"ok"`
	ExistingOrders int64 `json:"existingOrders"`
	NewOrders      int64 `json:"newOrders"`
	FinalOrders    int64 `json:"finalOrders"`
	engine.SyncSummary
}

// AccountStateDTO is one account's cursor record on the status endpoint.
type AccountStateDTO struct {
	Email          string `json:"email"`
	LastOrderID    int64  `json:"lastOrderId"`
	LastProductID  int64  `json:"lastProductId"`
	LastSessionID  int64  `json:"lastSessionId"`
	LastPollAt     string `json:"lastPollAt,omitempty"`
	LastFullSyncAt string `json:"lastFullSyncAt,omitempty"`
}

// StatusResponse is the full sync-health snapshot. The scheduler keys
// (pollingEnabled, lastPoll, nextPoll, validationEnabled,
// lastValidation, nextValidation) sit at the top level.
type StatusResponse struct {
	SchedulerStatus
	Accounts []AccountStateDTO `json:"accounts"`
	Orders   int64             `json:"orders"`
}

// =============================================================================
// STATS
// =============================================================================

// OverviewResponse is the headline dashboard card. PaymentGroups always
// carries all four display groups, zeroed when empty.
type OverviewResponse struct {
	Orders        int64                  `json:"orders"`
	Products      int64                  `json:"products"`
	Amount        float64                `json:"amount"`
	PaymentGroups map[string]GroupTotals `json:"paymentGroups"`
}

// GroupTotals is one payment display group's count and total.
type GroupTotals struct {
	Count int64   `json:"count"`
	Total float64 `json:"total"`
}

// StoreStatDTO is one store's aggregate row.
type StoreStatDTO struct {
	StoreID int64   `json:"storeId"`
	Count   int64   `json:"count"`
	Total   float64 `json:"total"`
}

// DayStatDTO is one day's aggregate row.
type DayStatDTO struct {
	Day   string  `json:"day"`
	Count int64   `json:"count"`
	Total float64 `json:"total"`
}

// ProductStatDTO is one product's aggregate row.
type ProductStatDTO struct {
	Name     string  `json:"name"`
	Total    float64 `json:"total"`
	Quantity float64 `json:"quantity"`
}

// RecentSaleDTO is one order with its largest line items attached.
type RecentSaleDTO struct {
	OrderID       int64    `json:"orderId"`
	StoreID       int64    `json:"storeId"`
	TotalAmount   float64  `json:"totalAmount"`
	PaymentMethod string   `json:"paymentMethod"`
	PaymentGroup  string   `json:"paymentGroup"`
	CreatedAt     string   `json:"createdAt"`
	MainProduct   string   `json:"mainProduct"`
	Products      []string `json:"products"`
}

// StoreDiagnosisResponse summarizes one store's data coverage.
type StoreDiagnosisResponse struct {
	StoreID     int64   `json:"storeId"`
	TotalOrders int64   `json:"totalOrders"`
	Orders      int64   `json:"orders"`
	Amount      float64 `json:"amount"`
	Earliest    string  `json:"earliest,omitempty"`
	Latest      string  `json:"latest,omitempty"`
}

// DateCoverageResponse lists the days that hold any orders.
type DateCoverageResponse struct {
	Days  []DayStatDTO `json:"days"`
	First string       `json:"first,omitempty"`
	Last  string       `json:"last,omitempty"`
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": msg})
}

func accountStateDTO(state pos.SyncState) AccountStateDTO {
	dto := AccountStateDTO{
		Email:         state.AccountEmail,
		LastOrderID:   state.LastOrderID,
		LastProductID: state.LastProductID,
		LastSessionID: state.LastSessionID,
	}
	if state.LastPollAt != nil {
		dto.LastPollAt = state.LastPollAt.Format("2006-01-02T15:04:05Z07:00")
	}
	if state.LastFullSyncAt != nil {
		dto.LastFullSyncAt = state.LastFullSyncAt.Format("2006-01-02T15:04:05Z07:00")
	}
	return dto
}
