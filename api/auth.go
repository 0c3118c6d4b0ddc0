/*
auth.go - Dashboard session authentication

PURPOSE:
  Cookie-session authentication for the dashboard and its API. A single
  operator credential pair guards everything under /api except the
  login endpoint itself.

SESSION FORMAT:
  Signed JWT (HS256) in an HttpOnly cookie. Stateless: no session table
  and nothing to clean up, a restart with a generated secret simply
  logs everyone out.

PASSWORD STORAGE:
  DASHBOARD_PASS_HASH (bcrypt) when set; otherwise a constant-time
  comparison against the plaintext DASHBOARD_PASS. The plaintext mode
  exists for local development and the legacy deployment.

SEE ALSO:
  - server.go: Middleware placement
  - config/config.go: Credential sourcing
*/
package api

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const sessionCookie = "salesync_session"

// sessionTTL bounds how long a login lasts before re-authentication.
const sessionTTL = 24 * time.Hour

// Auth implements dashboard login and the session-checking middleware.
type Auth struct {
	User     string
	Pass     string
	PassHash string // bcrypt, takes precedence over Pass when set
	secret   []byte
	now      func() time.Time
}

// NewAuth creates an Auth guard. An empty secret gets a random one,
// which invalidates sessions across restarts.
func NewAuth(user, pass, passHash, secret string) *Auth {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			log.Fatalf("[Auth] Failed to generate session secret: %v", err)
		}
		log.Println("[Auth] SESSION_SECRET not set, sessions will not survive restarts")
	}
	return &Auth{User: user, Pass: pass, PassHash: passHash, secret: key, now: time.Now}
}

type loginRequest struct {
	User string `json:"user"`
	Pass string `json:"pass"`
}

// Login handles POST /api/auth/login.
func (a *Auth) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !a.checkCredentials(req.User, req.Pass) {
		log.Printf("[Auth] ❌ Failed login attempt for user %q", req.User)
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := a.issueToken(req.User)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(sessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "user": req.User})
}

// Logout handles POST /api/auth/logout by expiring the cookie.
func (a *Auth) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// Me handles GET /api/auth/me, reporting the current session.
func (a *Auth) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := a.sessionUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "user": user})
}

// Require is the middleware guarding authenticated routes.
func (a *Auth) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := a.sessionUser(r); !ok {
			writeError(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Auth) checkCredentials(user, pass string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(a.User)) == 1
	if a.PassHash != "" {
		return userOK && bcrypt.CompareHashAndPassword([]byte(a.PassHash), []byte(pass)) == nil
	}
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(a.Pass)) == 1
	return userOK && passOK
}

func (a *Auth) issueToken(user string) (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   user,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(sessionTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Auth) sessionUser(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil || cookie.Value == "" {
		return "", false
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(cookie.Value, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return a.now() }))
	if err != nil || !token.Valid {
		return "", false
	}
	return claims.Subject, true
}
