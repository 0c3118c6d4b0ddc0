/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the sales sync server. Handles configuration,
  dependency wiring, the background scheduler and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and environment configuration
  2. Open the store (SQLite file or Postgres via DATABASE_URL)
  3. Build the upstream client, sync engine and scheduler
  4. Bootstrap the current year when the database is empty
  5. Start the scheduler and the HTTP server

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides PORT)
  -db      storage DSN (overrides DATABASE_URL/SQLITE_PATH)
           Use ":memory:" for an in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler, waiting for an in-flight sync
  4. Close the database connection

ENVIRONMENT:
  See config/config.go for the full variable list. The important ones:
  LINISCO_EMAIL_N/LINISCO_PASSWORD_N, DATABASE_URL, SQLITE_PATH,
  DASHBOARD_USER/DASHBOARD_PASS, SESSION_SECRET, REDIS_ADDR.

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Background jobs
  - store/store.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/h4srl/salesync/api"
	"github.com/h4srl/salesync/cache"
	"github.com/h4srl/salesync/config"
	"github.com/h4srl/salesync/engine"
	"github.com/h4srl/salesync/linisco"
	"github.com/h4srl/salesync/store"
)

func main() {
	// Flags
	port := flag.Int("port", 0, "HTTP server port (overrides PORT)")
	dbDSN := flag.String("db", "", "storage DSN (overrides env)")
	flag.Parse()

	// .env is optional; real environments set variables directly.
	if err := godotenv.Load(); err == nil {
		log.Println("[Main] Loaded configuration from .env")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *port != 0 {
		cfg.Port = *port
	}
	dsn := cfg.DSN()
	if *dbDSN != "" {
		dsn = *dbDSN
	}
	if len(cfg.Accounts) == 0 {
		log.Println("[Main] ⚠️ No vendor accounts configured, sync jobs will fail until LINISCO_EMAIL_1 is set")
	}

	// Initialize store
	st, err := store.Open(dsn)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer st.Close()
	log.Printf("[Main] Store ready (%s backend)", st.Backend())

	// Upstream client
	client := linisco.New(cfg.LiniscoBase, cfg.LiniscoLogin)

	// Sync engine and scheduler
	eng := engine.New(client, st, cfg.Accounts)
	eng.PollWindow = cfg.PollWindow
	scheduler := api.NewHybridScheduler(eng)
	scheduler.PollInterval = cfg.PollInterval
	scheduler.ValidationInterval = cfg.ValidationInterval

	// Stats cache
	var statsCache cache.Cache = cache.NewNoop()
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, 0)
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisCache.Ping(pingCtx); err != nil {
			log.Printf("[Main] ⚠️ Redis unreachable (%v), falling back to noop cache", err)
		} else {
			statsCache = redisCache
			log.Printf("[Main] Stats cache on Redis at %s", cfg.RedisAddr)
		}
		cancel()
	}
	defer statsCache.Close()

	// Bootstrap the current year when the database is empty.
	if len(cfg.Accounts) > 0 {
		bootCtx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		if _, err := eng.CheckAndLoadYear(bootCtx); err != nil {
			log.Printf("[Main] ⚠️ Year bootstrap failed: %v", err)
		}
		cancel()
	}

	// HTTP surface
	auth := api.NewAuth(cfg.DashboardUser, cfg.DashboardPass, cfg.DashboardPassHash, cfg.SessionSecret)
	handler := api.NewHandler(st, eng, scheduler, statsCache, cfg.StoreIDs)
	router := api.NewRouter(handler, auth)

	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine so we can listen for shutdown signals.
	go func() {
		log.Printf("[Main] 🚀 Server listening on http://localhost:%d", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[Main] Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("[Main] Forced shutdown: %v", err)
	}
	log.Println("[Main] Bye 👋")
}
