/*
config.go - Environment-driven runtime configuration

PURPOSE:
  Centralizes every tunable the server reads from the environment.
  A .env file, when present, is loaded by main before Load runs, so
  deployments can choose between real environment variables and a
  checked-out dotenv file with the same keys.

ACCOUNTS:
  Vendor credentials come in numbered pairs:

    LINISCO_EMAIL_1 / LINISCO_PASSWORD_1
    LINISCO_EMAIL_2 / LINISCO_PASSWORD_2
    ...

  Numbering stops at the first missing email. A pair with an email but
  no password is a configuration error, not a silent skip.

STORAGE:
  DATABASE_URL takes precedence (postgres:// DSN). Without it the
  server falls back to a local SQLite file at SQLITE_PATH.

SEE ALSO:
  - cmd/server/main.go: dotenv loading and wiring
  - store/store.go: DSN interpretation
*/
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/h4srl/salesync/pos"
)

// Defaults applied when the environment leaves a knob unset.
const (
	DefaultSQLitePath         = "./data/sales.db"
	DefaultPort               = 3000
	DefaultPollInterval       = 30 * time.Minute
	DefaultPollWindow         = 7 * 24 * time.Hour
	DefaultValidationInterval = 6 * time.Hour
	DefaultDashboardUser      = "H4"
	DefaultDashboardPass      = "SRL"

	maxAccountSlots = 32
)

// DefaultStoreIDs are the store numbers the dashboard always lists,
// even before any of their data has been synced.
var DefaultStoreIDs = []int64{63953, 66220, 72267, 30036, 30038, 10019, 10020}

// Config is the full runtime configuration.
type Config struct {
	Port int

	// Storage
	DatabaseURL string // postgres DSN, empty = use SQLite
	SQLitePath  string

	// Upstream vendor API
	LiniscoBase  string // empty = client default
	LiniscoLogin string
	Accounts     []pos.Account

	// Dashboard auth
	DashboardUser     string
	DashboardPass     string // plaintext comparison when hash unset
	DashboardPassHash string // bcrypt hash, takes precedence over DashboardPass
	SessionSecret     string

	// Scheduling
	PollInterval       time.Duration
	PollWindow         time.Duration
	ValidationInterval time.Duration

	// Optional Redis stats cache, empty = in-process noop cache
	RedisAddr     string
	RedisPassword string

	StoreIDs []int64
}

// DSN returns the storage connection string Load resolved.
func (c Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.SQLitePath
}

// Load builds a Config from the process environment.
func Load() (Config, error) {
	cfg := Config{
		Port:               envInt("PORT", DefaultPort),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		SQLitePath:         envString("SQLITE_PATH", DefaultSQLitePath),
		LiniscoBase:        os.Getenv("LINISCO_BASE"),
		LiniscoLogin:       os.Getenv("LINISCO_LOGIN"),
		DashboardUser:      envString("DASHBOARD_USER", DefaultDashboardUser),
		DashboardPass:      envString("DASHBOARD_PASS", DefaultDashboardPass),
		DashboardPassHash:  os.Getenv("DASHBOARD_PASS_HASH"),
		SessionSecret:      os.Getenv("SESSION_SECRET"),
		PollInterval:       envDuration("POLL_INTERVAL", DefaultPollInterval),
		PollWindow:         envDuration("POLL_WINDOW", DefaultPollWindow),
		ValidationInterval: envDuration("VALIDATION_INTERVAL", DefaultValidationInterval),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		StoreIDs:           DefaultStoreIDs,
	}

	accounts, err := loadAccounts()
	if err != nil {
		return Config{}, err
	}
	cfg.Accounts = accounts

	if ids := os.Getenv("STORE_IDS"); ids != "" {
		parsed, err := parseStoreIDs(ids)
		if err != nil {
			return Config{}, err
		}
		cfg.StoreIDs = parsed
	}

	return cfg, nil
}

func loadAccounts() ([]pos.Account, error) {
	var accounts []pos.Account
	for i := 1; i <= maxAccountSlots; i++ {
		email := os.Getenv(fmt.Sprintf("LINISCO_EMAIL_%d", i))
		if email == "" {
			break
		}
		password := os.Getenv(fmt.Sprintf("LINISCO_PASSWORD_%d", i))
		if password == "" {
			return nil, fmt.Errorf("LINISCO_EMAIL_%d is set but LINISCO_PASSWORD_%d is missing", i, i)
		}
		accounts = append(accounts, pos.Account{Email: email, Password: password})
	}
	return accounts, nil
}

func parseStoreIDs(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("STORE_IDS entry %q is not a number", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
