/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Credentialed cross-origin requests for the dashboard
  5. no-store:   Cache-control headers on every API response; the only
                 caching layer is the server-side stats cache

ROUTE GROUPS:
  /api/auth/*    Login/logout/session (login itself is public)
  /api/sync/*    Sync control (authenticated)
  /api/stats/*   Dashboard aggregates (authenticated)
  /*             Static dashboard files

STATIC FILE SERVING:
  Serves the built dashboard from web/dist/ when present, falling back
  to index.html for client-side routing.

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Session middleware
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a router with all routes configured.
func NewRouter(h *Handler, auth *Auth) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check, public and uncached.
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(noStore)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", auth.Login)
			r.Post("/logout", auth.Logout)
			r.Get("/me", auth.Me)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.Require)

			r.Route("/sync", func(r chi.Router) {
				r.Post("/", h.SyncFull)
				r.Post("/poll", h.SyncPoll)
				r.Post("/load-historical", h.LoadHistorical)
				r.Post("/historical", h.LoadHistorical) // legacy dashboard path
				r.Post("/validate", h.SyncValidate)
				r.Post("/check-and-load-year", h.CheckAndLoadYear)
				r.Get("/status", h.SyncStatus)
			})

			r.Route("/stats", func(r chi.Router) {
				r.Get("/overview", h.StatsOverview)
				r.Get("/by-store", h.StatsByStore)
				r.Get("/daily", h.StatsDaily)
				r.Get("/top-products", h.StatsTopProducts)
				r.Get("/stores", h.StatsStores)
				r.Get("/recent-sales", h.StatsRecentSales)
				r.Get("/store-diagnosis/{storeID}", h.StatsStoreDiagnosis)
				r.Get("/date-coverage", h.StatsDateCoverage)
			})
		})
	})

	// Static dashboard
	serveStatic(r)

	return r
}

// noStore disables client/proxy caching of API responses.
func noStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		next.ServeHTTP(w, r)
	})
}

// serveStatic serves the built dashboard with an index.html fallback
// for client-side routing.
func serveStatic(r *chi.Mux) {
	distDir := "./web/dist"
	if _, err := os.Stat(distDir); os.IsNotExist(err) {
		return
	}

	fileServer := http.FileServer(http.Dir(distDir))
	r.Get("/*", func(w http.ResponseWriter, req *http.Request) {
		path := filepath.Join(distDir, filepath.Clean(req.URL.Path))
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			fileServer.ServeHTTP(w, req)
			return
		}
		http.ServeFile(w, req, filepath.Join(distDir, "index.html"))
	})
}
