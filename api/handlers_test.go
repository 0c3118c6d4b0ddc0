/*
handlers_test.go - HTTP surface tests

Exercises the router end to end with a real SQLite-backed store and a
scripted upstream client, through authenticated sessions.
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/h4srl/salesync/cache"
	"github.com/h4srl/salesync/engine"
	"github.com/h4srl/salesync/linisco"
	"github.com/h4srl/salesync/pos"
	"github.com/h4srl/salesync/store"
)

type fakeClient struct {
	loginErr error
	rows     map[pos.EntityType][]pos.RawRow
}

func (c *fakeClient) Login(context.Context, string, string) (string, error) {
	if c.loginErr != nil {
		return "", c.loginErr
	}
	return "token", nil
}

func (c *fakeClient) Fetch(_ context.Context, entity pos.EntityType, _, _ string, _, _ time.Time) ([]pos.RawRow, error) {
	return c.rows[entity], nil
}

type testServer struct {
	router    http.Handler
	store     *store.Store
	scheduler *HybridScheduler
	cookies   []*http.Cookie
}

func newTestServer(t *testing.T, client engine.Client) *testServer {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	e := engine.New(client, s, []pos.Account{{Email: "a@b.com", Password: "pw"}})
	sched := NewHybridScheduler(e)
	h := NewHandler(s, e, sched, cache.NewNoop(), []int64{63953, 66220})
	auth := NewAuth("H4", "SRL", "", "test-secret")

	return &testServer{router: NewRouter(h, auth), store: s, scheduler: sched}
}

func (ts *testServer) login(t *testing.T) {
	t.Helper()
	rec := ts.do(t, "POST", "/api/auth/login", map[string]string{"user": "H4", "pass": "SRL"})
	require.Equal(t, http.StatusOK, rec.Code)
	ts.cookies = rec.Result().Cookies()
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range ts.cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func seedOrders(t *testing.T, s *store.Store, orders ...pos.Order) {
	t.Helper()
	require.NoError(t, s.UpsertOrders(context.Background(), orders))
}

func order(id, storeID int64, day, method string, total float64) pos.Order {
	return pos.Order{
		ID:            id,
		StoreID:       storeID,
		AccountEmail:  "a@b.com",
		CreatedAt:     day + "T12:00:00Z",
		TotalAmount:   decimal.NewFromFloat(total),
		PaymentMethod: method,
		Raw:           []byte(`{}`),
	}
}

// =============================================================================
// AUTH
// =============================================================================

func TestAuth_LoginLogoutFlow(t *testing.T) {
	ts := newTestServer(t, &fakeClient{})

	// Unauthenticated requests are rejected.
	rec := ts.do(t, "GET", "/api/sync/status", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Wrong password.
	rec = ts.do(t, "POST", "/api/auth/login", map[string]string{"user": "H4", "pass": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var body map[string]any
	decode(t, rec, &body)
	assert.Equal(t, false, body["ok"])

	// Correct login opens the door.
	ts.login(t)
	rec = ts.do(t, "GET", "/api/auth/me", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, "GET", "/api/sync/status", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuth_BcryptHashTakesPrecedence(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("SRL"), bcrypt.DefaultCost)
	require.NoError(t, err)

	// Plaintext field is ignored once a hash is configured.
	a := NewAuth("H4", "something-else", string(hash), "secret")
	assert.True(t, a.checkCredentials("H4", "SRL"))
	assert.False(t, a.checkCredentials("H4", "something-else"))
	assert.False(t, a.checkCredentials("H4", "wrong"))
}

func TestAuth_ExpiredSessionRejected(t *testing.T) {
	a := NewAuth("H4", "SRL", "", "secret")
	a.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	token, err := a.issueToken("H4")
	require.NoError(t, err)

	a.now = time.Now
	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: token})
	_, ok := a.sessionUser(req)
	assert.False(t, ok)
}

// =============================================================================
// SYNC ENDPOINTS
// =============================================================================

func TestSyncPoll_PersistsAndReports(t *testing.T) {
	ts := newTestServer(t, &fakeClient{
		rows: map[pos.EntityType][]pos.RawRow{
			pos.EntityOrders: {
				{"idSaleOrder": float64(1), "store_id": float64(63953), "createdAt": "2025-03-10T12:00:00Z", "total_amount": float64(100), "paymentMethod": "cash"},
			},
		},
	})
	ts.login(t)

	rec := ts.do(t, "POST", "/api/sync/poll", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp PollResponse
	decode(t, rec, &resp)
	assert.True(t, resp.OK)
	assert.True(t, resp.HasNewData)
	assert.Equal(t, 1, resp.SuccessCount)
	assert.Len(t, resp.Results, 1)

	// The dashboard reads these keys at the top level of the payload.
	var raw map[string]json.RawMessage
	decode(t, rec, &raw)
	for _, key := range []string{"ok", "hasNewData", "successCount", "totalAccounts", "results"} {
		assert.Contains(t, raw, key)
	}

	count, err := ts.store.CountOrders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSyncPoll_AuthFailureIsMultiStatus(t *testing.T) {
	ts := newTestServer(t, &fakeClient{
		loginErr: &linisco.AuthError{Email: "a@b.com", Status: 401, Reason: "bad password"},
	})
	ts.login(t)

	rec := ts.do(t, "POST", "/api/sync/poll", nil)
	assert.Equal(t, http.StatusMultiStatus, rec.Code)
}

func TestLoadHistorical_ValidatesBeforeNetwork(t *testing.T) {
	ts := newTestServer(t, &fakeClient{})
	ts.login(t)

	rec := ts.do(t, "POST", "/api/sync/load-historical", map[string]string{"fromDate": "garbage", "toDate": "2025-03-31"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, "POST", "/api/sync/load-historical", map[string]string{"fromDate": "2025-03-31", "toDate": "2025-03-01"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, "POST", "/api/sync/load-historical", map[string]string{"fromDate": "2025-03-01"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoadHistorical_ReportsCounts(t *testing.T) {
	ts := newTestServer(t, &fakeClient{
		rows: map[pos.EntityType][]pos.RawRow{
			pos.EntityOrders: {
				{"idSaleOrder": float64(10), "store_id": float64(63953), "createdAt": "2025-03-05T12:00:00Z", "total_amount": float64(100), "paymentMethod": "cash"},
				{"idSaleOrder": float64(11), "store_id": float64(63953), "createdAt": "2025-03-06T12:00:00Z", "total_amount": float64(200), "paymentMethod": "cash"},
			},
		},
	})
	ts.login(t)
	seedOrders(t, ts.store, order(1, 63953, "2025-01-01", "cash", 50))

	rec := ts.do(t, "POST", "/api/sync/load-historical", map[string]string{"fromDate": "2025-03-01", "toDate": "2025-03-31"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HistoricalLoadResponse
	decode(t, rec, &resp)
	assert.True(t, resp.OK)
	assert.Equal(t, int64(1), resp.ExistingOrders)
	assert.Equal(t, int64(2), resp.NewOrders)
	assert.Equal(t, int64(3), resp.FinalOrders)
	assert.Equal(t, "2025-03-01", resp.FromDate)
	assert.Len(t, resp.Results, 1)

	// Per-account results sit at the top level, not under a wrapper.
	var raw map[string]json.RawMessage
	decode(t, rec, &raw)
	assert.Contains(t, raw, "results")
	assert.Contains(t, raw, "fromDate")
}

func TestSyncStatus_ListsAccountCursors(t *testing.T) {
	ts := newTestServer(t, &fakeClient{})
	ts.login(t)
	require.NoError(t, ts.store.SaveSyncState(context.Background(), pos.SyncState{
		AccountEmail: "a@b.com",
		LastOrderID:  42,
	}))

	rec := ts.do(t, "GET", "/api/sync/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	decode(t, rec, &resp)
	require.Len(t, resp.Accounts, 1)
	assert.Equal(t, int64(42), resp.Accounts[0].LastOrderID)
	assert.False(t, resp.PollingEnabled)

	// The scheduler keys are promoted to the top level of the payload.
	var raw map[string]json.RawMessage
	decode(t, rec, &raw)
	for _, key := range []string{"pollingEnabled", "validationEnabled", "accounts", "orders"} {
		assert.Contains(t, raw, key)
	}
}

func TestSyncStatus_SchedulesNextValidation(t *testing.T) {
	ts := newTestServer(t, &fakeClient{})
	ts.login(t)
	ts.scheduler.PollInterval = time.Hour
	ts.scheduler.ValidationInterval = time.Hour
	ts.scheduler.Start()
	defer ts.scheduler.Stop()

	rec := ts.do(t, "GET", "/api/sync/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	decode(t, rec, &resp)
	assert.True(t, resp.PollingEnabled)
	assert.True(t, resp.ValidationEnabled)
	require.NotNil(t, resp.NextValidation)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *resp.NextValidation, time.Minute)
}

// =============================================================================
// STATS ENDPOINTS
// =============================================================================

func TestStatsOverview_GroupsPaymentMethods(t *testing.T) {
	ts := newTestServer(t, &fakeClient{})
	ts.login(t)
	seedOrders(t, ts.store,
		order(1, 63953, "2025-03-10", "cash", 100),
		order(2, 63953, "2025-03-10", "cc_pedidosyaft", 50),
		order(3, 63953, "2025-03-10", "cc_rappiol", 200),
		order(4, 63953, "2025-03-10", "cc_mcdebit", 80),
		order(5, 63953, "2025-03-10", "somethingelse", 10),
	)

	rec := ts.do(t, "GET", "/api/stats/overview", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp OverviewResponse
	decode(t, rec, &resp)
	assert.Equal(t, int64(5), resp.Orders)
	assert.InDelta(t, 440, resp.Amount, 0.001)
	assert.Equal(t, int64(2), resp.PaymentGroups["Efectivo"].Count)
	assert.InDelta(t, 150, resp.PaymentGroups["Efectivo"].Total, 0.001)
	assert.Equal(t, int64(1), resp.PaymentGroups["Apps"].Count)
	assert.Equal(t, int64(1), resp.PaymentGroups["Mercado Pago"].Count)
	assert.Equal(t, int64(1), resp.PaymentGroups["Otros"].Count)
	assert.Len(t, resp.PaymentGroups, len(pos.PaymentGroupNames))
}

func TestStatsOverview_ProductCountAndEmptyGroups(t *testing.T) {
	ts := newTestServer(t, &fakeClient{})
	ts.login(t)
	seedOrders(t, ts.store, order(1, 63953, "2025-03-10", "cash", 100))
	require.NoError(t, ts.store.UpsertProducts(context.Background(), []pos.Product{
		{ID: 1, OrderID: 1, AccountEmail: "a@b.com", CreatedAt: "2025-03-10T12:00:00Z", ProductName: "Cafe", TotalAmount: decimal.NewFromInt(100), Raw: []byte(`{}`)},
		{ID: 2, OrderID: 1, AccountEmail: "a@b.com", CreatedAt: "2025-03-10T12:00:00Z", ProductName: "Tostado", TotalAmount: decimal.NewFromInt(50), Raw: []byte(`{}`)},
	}))

	rec := ts.do(t, "GET", "/api/stats/overview", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp OverviewResponse
	decode(t, rec, &resp)
	assert.Equal(t, int64(2), resp.Products)

	// Groups with no orders are present and zeroed.
	apps, ok := resp.PaymentGroups["Apps"]
	require.True(t, ok)
	assert.Zero(t, apps.Count)

	// The day filter narrows the product count too.
	rec = ts.do(t, "GET", "/api/stats/overview?fromDate=2025-04-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &resp)
	assert.Zero(t, resp.Products)
}

func TestStats_FilterValidation(t *testing.T) {
	ts := newTestServer(t, &fakeClient{})
	ts.login(t)

	rec := ts.do(t, "GET", "/api/stats/overview?fromDate=banana", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, "GET", "/api/stats/overview?fromDate=2025-03-10&toDate=2025-03-01", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, "GET", "/api/stats/daily?storeIds=1,abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatsStores_MergesConfiguredAndObserved(t *testing.T) {
	ts := newTestServer(t, &fakeClient{})
	ts.login(t)
	seedOrders(t, ts.store, order(1, 99999, "2025-03-10", "cash", 10))

	rec := ts.do(t, "GET", "/api/stats/stores", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Stores []int64 `json:"stores"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, []int64{63953, 66220, 99999}, resp.Stores)
}

func TestStatsRecentSales_GroupsLineItems(t *testing.T) {
	ts := newTestServer(t, &fakeClient{})
	ts.login(t)
	seedOrders(t, ts.store, order(101, 63953, "2025-03-10", "cash", 100))
	require.NoError(t, ts.store.UpsertProducts(context.Background(), []pos.Product{
		{ID: 1, OrderID: 101, AccountEmail: "a@b.com", ProductName: "Medialunas", TotalAmount: decimal.NewFromInt(60), Raw: []byte(`{}`)},
		{ID: 2, OrderID: 101, AccountEmail: "a@b.com", ProductName: "Cafe", TotalAmount: decimal.NewFromInt(40), Raw: []byte(`{}`)},
	}))

	rec := ts.do(t, "GET", "/api/stats/recent-sales", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Sales []RecentSaleDTO `json:"sales"`
	}
	decode(t, rec, &resp)
	require.Len(t, resp.Sales, 1)
	assert.Equal(t, "Medialunas", resp.Sales[0].MainProduct)
	assert.Equal(t, []string{"Medialunas", "Cafe"}, resp.Sales[0].Products)
	assert.Equal(t, "Efectivo", resp.Sales[0].PaymentGroup)
}

func TestStatsStoreDiagnosis(t *testing.T) {
	ts := newTestServer(t, &fakeClient{})
	ts.login(t)
	seedOrders(t, ts.store,
		order(1, 63953, "2025-03-10", "cash", 100),
		order(2, 63953, "2025-04-01", "cash", 200),
	)

	rec := ts.do(t, "GET", "/api/stats/store-diagnosis/63953?fromDate=2025-04-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StoreDiagnosisResponse
	decode(t, rec, &resp)
	assert.Equal(t, int64(2), resp.TotalOrders)
	assert.Equal(t, int64(1), resp.Orders)

	// Configured but empty store is a valid diagnosis target.
	rec = ts.do(t, "GET", "/api/stats/store-diagnosis/66220", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Unknown and empty store is not.
	rec = ts.do(t, "GET", "/api/stats/store-diagnosis/12345", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatsDateCoverage(t *testing.T) {
	ts := newTestServer(t, &fakeClient{})
	ts.login(t)
	seedOrders(t, ts.store,
		order(1, 63953, "2025-03-10", "cash", 100),
		order(2, 63953, "2025-03-12", "cash", 100),
	)

	rec := ts.do(t, "GET", "/api/stats/date-coverage", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp DateCoverageResponse
	decode(t, rec, &resp)
	require.Len(t, resp.Days, 2)
	assert.Equal(t, "2025-03-10", resp.First)
	assert.Equal(t, "2025-03-12", resp.Last)
}

func TestHealth_Public(t *testing.T) {
	ts := newTestServer(t, &fakeClient{})
	rec := ts.do(t, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
