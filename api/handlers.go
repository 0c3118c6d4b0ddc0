/*
handlers.go - HTTP handlers for sync control and dashboard stats

PURPOSE:
  Exposes the sync engine and the stats queries over REST. Handles HTTP
  request/response, JSON serialization, and delegates to the engine and
  the store.

ENDPOINTS:
  Auth:
    POST   /api/auth/login               Dashboard login
    POST   /api/auth/logout              Clear session
    GET    /api/auth/me                  Current session

  Sync control (authenticated):
    POST   /api/sync/poll                Manual incremental poll
    POST   /api/sync                     Full resync over a date range
    POST   /api/sync/load-historical     Bulk range load with before/after counts
    POST   /api/sync/validate            Local store validation
    POST   /api/sync/check-and-load-year Bootstrap the current year if empty
    GET    /api/sync/status              Scheduler + per-account cursors

  Stats (authenticated):
    GET    /api/stats/overview           Totals + payment display groups
    GET    /api/stats/by-store           Per-store breakdown
    GET    /api/stats/daily              Per-day breakdown
    GET    /api/stats/top-products       Highest-revenue products
    GET    /api/stats/stores             Known store ids (configured + observed)
    GET    /api/stats/recent-sales       Latest orders with their main product
    GET    /api/stats/store-diagnosis/{storeID}  One store's coverage
    GET    /api/stats/date-coverage      Days that hold any data

FILTERS:
  Stats endpoints accept ?fromDate=YYYY-MM-DD&toDate=YYYY-MM-DD and
  ?storeIds=1,2,3. A malformed date is a 400, never silently ignored.

CONCURRENCY:
  Manual sync triggers share the scheduler's sync lock: a trigger that
  arrives while a sync runs gets a 409 instead of queueing.

ERROR HANDLING:
  - 400: malformed input (dates, ids, bodies)
  - 401: missing/expired session (auth.go)
  - 404: unknown store
  - 409: sync already in progress
  - 207: sync finished with some accounts failed
  - 500: storage failures

SEE ALSO:
  - dto.go: Response shapes
  - auth.go: Session middleware
  - engine/engine.go: The operations behind the sync endpoints
*/
package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/h4srl/salesync/cache"
	"github.com/h4srl/salesync/engine"
	"github.com/h4srl/salesync/linisco"
	"github.com/h4srl/salesync/pos"
	"github.com/h4srl/salesync/store"
)

// statsCacheTTL is how long cached stats responses live.
const statsCacheTTL = 60 * time.Second

// recentSalesProductLimit caps how many line items each recent sale lists.
const recentSalesProductLimit = 3

// Handler holds the dependencies of all HTTP handlers.
type Handler struct {
	Store     *store.Store
	Engine    *engine.Engine
	Scheduler *HybridScheduler
	Cache     cache.Cache

	// StoreIDs are the configured store numbers the dashboard always
	// shows, merged with whatever ids appear in the data.
	StoreIDs []int64
}

// NewHandler creates a handler context.
func NewHandler(s *store.Store, e *engine.Engine, sched *HybridScheduler, c cache.Cache, storeIDs []int64) *Handler {
	if c == nil {
		c = cache.NewNoop()
	}
	return &Handler{Store: s, Engine: e, Scheduler: sched, Cache: c, StoreIDs: storeIDs}
}

// =============================================================================
// SYNC CONTROL
// =============================================================================

// SyncPoll handles POST /api/sync/poll.
func (h *Handler) SyncPoll(w http.ResponseWriter, r *http.Request) {
	var (
		summary engine.PollSummary
		err     error
	)
	ran := h.Scheduler.TrySync(func() {
		summary, err = h.Engine.PollAll(r.Context())
	})
	if !ran {
		writeError(w, http.StatusConflict, "a sync is already in progress")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusOK
	if summary.SuccessCount < summary.TotalAccounts {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, PollResponse{OK: true, PollSummary: summary})
}

type syncRequest struct {
	FromDate string `json:"fromDate"`
	ToDate   string `json:"toDate"`
}

// SyncFull handles POST /api/sync. Defaults to the trailing week when
// the body names no range.
func (h *Handler) SyncFull(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	to := time.Now()
	from := to.AddDate(0, 0, -7)
	if req.FromDate != "" {
		t, err := linisco.ParseDay(req.FromDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid fromDate %q", req.FromDate))
			return
		}
		from = t
	}
	if req.ToDate != "" {
		t, err := linisco.ParseDay(req.ToDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid toDate %q", req.ToDate))
			return
		}
		to = t
	}

	h.runFullSync(w, r, from, to, nil)
}

// LoadHistorical handles POST /api/sync/load-historical. Requires an
// explicit range and reports before/after order counts.
func (h *Handler) LoadHistorical(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.FromDate == "" || req.ToDate == "" {
		writeError(w, http.StatusBadRequest, "fromDate and toDate are required")
		return
	}

	// All input validation happens before the first network call.
	from, err := linisco.ParseDay(req.FromDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid fromDate %q", req.FromDate))
		return
	}
	to, err := linisco.ParseDay(req.ToDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid toDate %q", req.ToDate))
		return
	}
	if from.After(to) {
		writeError(w, http.StatusBadRequest, "fromDate is after toDate")
		return
	}

	existing, err := h.Store.CountOrders(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.runFullSync(w, r, from, to, func(summary engine.SyncSummary, status int) {
		final, err := h.Store.CountOrders(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, status, HistoricalLoadResponse{
			OK:             summary.Failed == 0,
			ExistingOrders: existing,
			NewOrders:      final - existing,
			FinalOrders:    final,
			SyncSummary:    summary,
		})
	})
}

// runFullSync runs a full sync under the shared lock and writes the
// response, via respond when given or as a plain FullSyncResponse.
func (h *Handler) runFullSync(w http.ResponseWriter, r *http.Request, from, to time.Time, respond func(engine.SyncSummary, int)) {
	var (
		summary engine.SyncSummary
		err     error
	)
	ran := h.Scheduler.TrySync(func() {
		summary, err = h.Engine.FullSync(r.Context(), from, to)
	})
	if !ran {
		writeError(w, http.StatusConflict, "a sync is already in progress")
		return
	}
	if err != nil {
		status := http.StatusInternalServerError
		if err == engine.ErrInvalidDateRange {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}

	status := http.StatusOK
	if summary.Failed > 0 {
		status = http.StatusMultiStatus
	}
	if respond != nil {
		respond(summary, status)
		return
	}
	writeJSON(w, status, FullSyncResponse{OK: summary.Failed == 0, SyncSummary: summary})
}

// SyncValidate handles POST /api/sync/validate.
func (h *Handler) SyncValidate(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Engine.LocalValidation(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"orders":    stats.Orders,
		"products":  stats.Products,
		"sessions":  stats.Sessions,
		"accounts":  stats.Accounts,
		"lastOrder": stats.LastOrder,
	})
}

// CheckAndLoadYear handles POST /api/sync/check-and-load-year.
func (h *Handler) CheckAndLoadYear(w http.ResponseWriter, r *http.Request) {
	var result engine.YearLoadResult
	var err error
	ran := h.Scheduler.TrySync(func() {
		result, err = h.Engine.CheckAndLoadYear(r.Context())
	})
	if !ran {
		writeError(w, http.StatusConflict, "a sync is already in progress")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// SyncStatus handles GET /api/sync/status.
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{SchedulerStatus: h.Scheduler.Status()}

	for _, account := range h.Engine.Accounts {
		state, err := h.Engine.Tracker.Get(r.Context(), account.Email)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.Accounts = append(resp.Accounts, accountStateDTO(state))
	}

	orders, err := h.Store.CountOrders(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp.Orders = orders

	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// STATS
// =============================================================================

// StatsOverview handles GET /api/stats/overview.
func (h *Handler) StatsOverview(w http.ResponseWriter, r *http.Request) {
	f, ok := h.parseFilter(w, r)
	if !ok {
		return
	}
	h.cached(w, r, func() (any, error) {
		totals, err := h.Store.Overview(r.Context(), f)
		if err != nil {
			return nil, err
		}
		products, err := h.Store.ProductCount(r.Context(), f)
		if err != nil {
			return nil, err
		}
		methods, err := h.Store.ByPaymentMethod(r.Context(), f)
		if err != nil {
			return nil, err
		}

		// Every display group is present even with no matching orders.
		groups := make(map[string]GroupTotals, len(pos.PaymentGroupNames))
		for _, name := range pos.PaymentGroupNames {
			groups[name] = GroupTotals{}
		}
		for _, m := range methods {
			group := pos.PaymentGroup(m.Method)
			g := groups[group]
			g.Count += m.Count
			g.Total += m.Total
			groups[group] = g
		}

		return OverviewResponse{
			Orders:        totals.Orders,
			Products:      products,
			Amount:        totals.Amount,
			PaymentGroups: groups,
		}, nil
	})
}

// StatsByStore handles GET /api/stats/by-store.
func (h *Handler) StatsByStore(w http.ResponseWriter, r *http.Request) {
	f, ok := h.parseFilter(w, r)
	if !ok {
		return
	}
	h.cached(w, r, func() (any, error) {
		stats, err := h.Store.ByStore(r.Context(), f)
		if err != nil {
			return nil, err
		}
		out := make([]StoreStatDTO, 0, len(stats))
		for _, s := range stats {
			out = append(out, StoreStatDTO{StoreID: s.StoreID, Count: s.Count, Total: s.Total})
		}
		return out, nil
	})
}

// StatsDaily handles GET /api/stats/daily.
func (h *Handler) StatsDaily(w http.ResponseWriter, r *http.Request) {
	f, ok := h.parseFilter(w, r)
	if !ok {
		return
	}
	h.cached(w, r, func() (any, error) {
		stats, err := h.Store.Daily(r.Context(), f)
		if err != nil {
			return nil, err
		}
		out := make([]DayStatDTO, 0, len(stats))
		for _, d := range stats {
			out = append(out, DayStatDTO{Day: d.Day, Count: d.Count, Total: d.Total})
		}
		return out, nil
	})
}

// StatsTopProducts handles GET /api/stats/top-products.
func (h *Handler) StatsTopProducts(w http.ResponseWriter, r *http.Request) {
	f, ok := h.parseFilter(w, r)
	if !ok {
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 200 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	h.cached(w, r, func() (any, error) {
		stats, err := h.Store.TopProducts(r.Context(), f, limit)
		if err != nil {
			return nil, err
		}
		out := make([]ProductStatDTO, 0, len(stats))
		for _, p := range stats {
			out = append(out, ProductStatDTO{Name: p.Name, Total: p.Total, Quantity: p.Quantity})
		}
		return out, nil
	})
}

// StatsStores handles GET /api/stats/stores: the configured store list
// merged with every id observed in the data.
func (h *Handler) StatsStores(w http.ResponseWriter, r *http.Request) {
	observed, err := h.Store.StoreIDs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	seen := map[int64]bool{}
	merged := make([]int64, 0, len(h.StoreIDs)+len(observed))
	for _, id := range h.StoreIDs {
		if !seen[id] {
			seen[id] = true
			merged = append(merged, id)
		}
	}
	for _, id := range observed {
		if !seen[id] {
			seen[id] = true
			merged = append(merged, id)
		}
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i] < merged[j] })

	writeJSON(w, http.StatusOK, map[string]any{"stores": merged})
}

// StatsRecentSales handles GET /api/stats/recent-sales. Orders are
// reduced to their main (largest) line item plus a short product list.
func (h *Handler) StatsRecentSales(w http.ResponseWriter, r *http.Request) {
	storeIDs, ok := h.parseStoreIDs(w, r)
	if !ok {
		return
	}
	limit := 15
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	rows, err := h.Store.RecentSales(r.Context(), storeIDs, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var (
		out   []RecentSaleDTO
		index = map[int64]int{}
	)
	for _, row := range rows {
		i, exists := index[row.OrderID]
		if !exists {
			if len(out) >= limit {
				continue
			}
			index[row.OrderID] = len(out)
			out = append(out, RecentSaleDTO{
				OrderID:       row.OrderID,
				StoreID:       row.StoreID,
				TotalAmount:   row.TotalAmount,
				PaymentMethod: row.PaymentMethod,
				PaymentGroup:  pos.PaymentGroup(row.PaymentMethod),
				CreatedAt:     row.CreatedAt,
			})
			i = index[row.OrderID]
		}
		if row.ProductName == "" {
			continue
		}
		// Rows arrive largest item first, so the first one is the main.
		if out[i].MainProduct == "" {
			out[i].MainProduct = row.ProductName
		}
		if len(out[i].Products) < recentSalesProductLimit {
			out[i].Products = append(out[i].Products, row.ProductName)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"sales": out})
}

// StatsStoreDiagnosis handles GET /api/stats/store-diagnosis/{storeID}.
func (h *Handler) StatsStoreDiagnosis(w http.ResponseWriter, r *http.Request) {
	storeID, err := strconv.ParseInt(chi.URLParam(r, "storeID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid store id")
		return
	}
	f, ok := h.parseFilter(w, r)
	if !ok {
		return
	}

	total, err := h.Store.StoreOrderCount(r.Context(), storeID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if total == 0 && !h.isConfiguredStore(storeID) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown store %d", storeID))
		return
	}

	diag, err := h.Store.StoreDiagnosis(r.Context(), storeID, f.FromDay, f.ToDay)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, StoreDiagnosisResponse{
		StoreID:     storeID,
		TotalOrders: total,
		Orders:      diag.Orders,
		Amount:      diag.Amount,
		Earliest:    diag.Earliest,
		Latest:      diag.Latest,
	})
}

// StatsDateCoverage handles GET /api/stats/date-coverage.
func (h *Handler) StatsDateCoverage(w http.ResponseWriter, r *http.Request) {
	f, ok := h.parseFilter(w, r)
	if !ok {
		return
	}
	h.cached(w, r, func() (any, error) {
		days, err := h.Store.AvailableDates(r.Context(), f)
		if err != nil {
			return nil, err
		}
		resp := DateCoverageResponse{Days: make([]DayStatDTO, 0, len(days))}
		for _, d := range days {
			resp.Days = append(resp.Days, DayStatDTO{Day: d.Day, Count: d.Count})
		}
		if len(days) > 0 {
			resp.First = days[0].Day
			resp.Last = days[len(days)-1].Day
		}
		return resp, nil
	})
}

// =============================================================================
// FILTER PARSING AND CACHING
// =============================================================================

func (h *Handler) parseFilter(w http.ResponseWriter, r *http.Request) (store.Filter, bool) {
	var f store.Filter
	q := r.URL.Query()

	if v := q.Get("fromDate"); v != "" {
		t, err := linisco.ParseDay(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid fromDate %q", v))
			return f, false
		}
		f.FromDay = t.Format("2006-01-02")
	}
	if v := q.Get("toDate"); v != "" {
		t, err := linisco.ParseDay(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid toDate %q", v))
			return f, false
		}
		f.ToDay = t.Format("2006-01-02")
	}
	if f.FromDay != "" && f.ToDay != "" && f.FromDay > f.ToDay {
		writeError(w, http.StatusBadRequest, "fromDate is after toDate")
		return f, false
	}

	ids, ok := h.parseStoreIDs(w, r)
	if !ok {
		return f, false
	}
	f.StoreIDs = ids
	return f, true
}

func (h *Handler) parseStoreIDs(w http.ResponseWriter, r *http.Request) ([]int64, bool) {
	v := r.URL.Query().Get("storeIds")
	if v == "" {
		return nil, true
	}
	parts := strings.Split(v, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid store id %q", part))
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}

func (h *Handler) isConfiguredStore(storeID int64) bool {
	for _, id := range h.StoreIDs {
		if id == storeID {
			return true
		}
	}
	return false
}

// cached serves a stats response through the short-TTL cache, keyed on
// the full request URI.
func (h *Handler) cached(w http.ResponseWriter, r *http.Request, compute func() (any, error)) {
	key := "stats:" + r.URL.RequestURI()

	if body, hit, err := h.Cache.Get(r.Context(), key); err == nil && hit {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(body)
		return
	}

	v, err := compute()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	body, err := json.Marshal(v)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := h.Cache.Set(r.Context(), key, body, statsCacheTTL); err != nil {
		log.Printf("[API] Stats cache write failed: %v", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
