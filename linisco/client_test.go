/*
client_test.go - Vendor client tests against an httptest backend
*/
package linisco

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h4srl/salesync/pos"
)

func TestLogin_TokenProbeOrder(t *testing.T) {
	cases := []struct {
		name     string
		response map[string]any
	}{
		{"nested authentication_token", map[string]any{"user": map[string]any{"authentication_token": "tok-1"}}},
		{"top-level authentication_token", map[string]any{"authentication_token": "tok-1"}},
		{"nested token", map[string]any{"user": map[string]any{"token": "tok-1"}}},
		{"top-level token", map[string]any{"token": "tok-1"}},
		{"auth_token", map[string]any{"auth_token": "tok-1"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, http.MethodPost, r.Method)

				var body map[string]map[string]string
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "a@b.com", body["user"]["email"])
				assert.Equal(t, "secret", body["user"]["password"])

				json.NewEncoder(w).Encode(tc.response)
			}))
			defer srv.Close()

			client := New(srv.URL, srv.URL)
			token, err := client.Login(context.Background(), "a@b.com", "secret")
			require.NoError(t, err)
			assert.Equal(t, "tok-1", token)
		})
	}
}

func TestLogin_PrefersFirstTokenLocation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"user":       map[string]any{"authentication_token": "nested"},
			"auth_token": "flat",
		})
	}))
	defer srv.Close()

	client := New(srv.URL, srv.URL)
	token, err := client.Login(context.Background(), "a@b.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "nested", token)
}

func TestLogin_NoTokenIsAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	client := New(srv.URL, srv.URL)
	_, err := client.Login(context.Background(), "a@b.com", "secret")
	require.Error(t, err)
	assert.True(t, IsAuthError(err))
}

func TestLogin_NonSuccessIsAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := New(srv.URL, srv.URL)
	_, err := client.Login(context.Background(), "a@b.com", "bad")
	require.Error(t, err)
	assert.True(t, IsAuthError(err))
	assert.False(t, IsFetchError(err))
}

func TestFetch_HeadersAndDateWindow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sale_orders", r.URL.Path)
		assert.Equal(t, "01/03/2025", r.URL.Query().Get("fromDate"))
		assert.Equal(t, "10/03/2025", r.URL.Query().Get("toDate"))
		assert.Equal(t, "a@b.com", r.Header.Get("X-User-Email"))
		assert.Equal(t, "tok-1", r.Header.Get("X-User-Token"))
		assert.Equal(t, "vscode-restclient", r.Header.Get("User-Agent"))

		json.NewEncoder(w).Encode([]map[string]any{
			{"idSaleOrder": 101, "total_amount": 10},
		})
	}))
	defer srv.Close()

	client := New(srv.URL, srv.URL)
	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	rows, err := client.Fetch(context.Background(), pos.EntityOrders, "a@b.com", "tok-1", from, to)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(101), pos.RowID(pos.EntityOrders, rows[0]))
}

func TestFetch_NonSuccessIsFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := New(srv.URL, srv.URL)
	_, err := client.Fetch(context.Background(), pos.EntityProducts, "a@b.com", "tok", time.Now(), time.Now())
	require.Error(t, err)
	assert.True(t, IsFetchError(err))
}

func TestParseDateInput(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	// Vendor format passes through verbatim.
	assert.Equal(t, "05/03/2025", ParseDateInput("05/03/2025", now))
	// ISO input is converted.
	assert.Equal(t, "10/03/2025", ParseDateInput("2025-03-10", now))
	// Garbage falls back to today.
	assert.Equal(t, "15/06/2025", ParseDateInput("not-a-date", now))
}

func TestParseDay_RejectsGarbage(t *testing.T) {
	_, err := ParseDay("definitely not a date")
	assert.Error(t, err)
}
