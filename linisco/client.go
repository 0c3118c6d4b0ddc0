/*
Package linisco is the upstream point-of-sale API client.

PURPOSE:
  Talks to the vendor POS backend: exchanges per-store credentials for a
  bearer token and fetches orders, line items and shift sessions for a
  date window. The vendor API is quirky in two ways this client absorbs:

  1. The login response shape is not fixed. The token has been observed
     in several locations, so the client probes a fixed sequence of
     field paths and fails with an AuthError when none match.
  2. Date parameters must be serialized as DD/MM/YYYY. See dates.go.

PAGINATION:
  Current vendor usage returns the whole window in one response. Fetch
  still returns a row slice behind a single call so paged requests can
  be folded in later without touching callers.

SEE ALSO:
  - dates.go: Vendor date formatting and input normalization
  - errors.go: AuthError / FetchError
  - engine/engine.go: The sync engine driving this client
*/
package linisco

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/h4srl/salesync/pos"
)

const (
	// DefaultBaseURL and DefaultLoginURL match the vendor production
	// endpoints and are overridable via LINISCO_BASE / LINISCO_LOGIN.
	DefaultBaseURL  = "http://pos.linisco.com.ar"
	DefaultLoginURL = "https://pos.linisco.com.ar/users/sign_in"

	// Some vendor backends reject requests without this user agent.
	userAgent = "vscode-restclient"
)

// tokenPaths is the ordered list of locations the bearer token has been
// observed at in login responses. First match wins.
var tokenPaths = [][]string{
	{"user", "authentication_token"},
	{"authentication_token"},
	{"user", "token"},
	{"token"},
	{"auth_token"},
}

// Client is an HTTP client for the vendor POS API.
type Client struct {
	BaseURL    string
	LoginURL   string
	HTTPClient *http.Client
}

// New creates a client for the given endpoints. Empty arguments fall
// back to the production defaults.
func New(baseURL, loginURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if loginURL == "" {
		loginURL = DefaultLoginURL
	}
	return &Client{
		BaseURL:  baseURL,
		LoginURL: loginURL,
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Login exchanges account credentials for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"user": map[string]string{"email": email, "password": password},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.LoginURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", &AuthError{Email: email, Reason: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &AuthError{Email: email, Status: resp.StatusCode, Reason: "login failed"}
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", &AuthError{Email: email, Status: resp.StatusCode, Reason: "malformed login response"}
	}

	token := probeToken(payload)
	if token == "" {
		return "", &AuthError{Email: email, Status: resp.StatusCode, Reason: "no token in login response"}
	}
	return token, nil
}

// Fetch retrieves all rows of one entity type for a date window.
func (c *Client) Fetch(ctx context.Context, entity pos.EntityType, email, token string, from, to time.Time) ([]pos.RawRow, error) {
	query := url.Values{}
	query.Set("fromDate", FormatVendorDate(from))
	query.Set("toDate", FormatVendorDate(to))
	endpoint := fmt.Sprintf("%s/%s?%s", c.BaseURL, string(entity), query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-User-Email", email)
	req.Header.Set("X-User-Token", token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &FetchError{Entity: entity, Email: email, Reason: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{Entity: entity, Email: email, Status: resp.StatusCode, Reason: "fetch failed"}
	}

	var rows []pos.RawRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, &FetchError{Entity: entity, Email: email, Status: resp.StatusCode, Reason: "malformed payload"}
	}
	return rows, nil
}

// probeToken walks the candidate field paths in order and returns the
// first non-empty string found.
func probeToken(payload map[string]any) string {
	for _, path := range tokenPaths {
		current := any(payload)
		found := true
		for _, key := range path {
			obj, isMap := current.(map[string]any)
			if !isMap {
				found = false
				break
			}
			value, present := obj[key]
			if !present {
				found = false
				break
			}
			current = value
		}
		if !found {
			continue
		}
		if token, isString := current.(string); isString && token != "" {
			return token
		}
	}
	return ""
}
