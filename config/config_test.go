package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultSQLitePath, cfg.SQLitePath)
	assert.Equal(t, DefaultSQLitePath, cfg.DSN())
	assert.Equal(t, "H4", cfg.DashboardUser)
	assert.Equal(t, "SRL", cfg.DashboardPass)
	assert.Equal(t, 30*time.Minute, cfg.PollInterval)
	assert.Equal(t, 7*24*time.Hour, cfg.PollWindow)
	assert.Equal(t, 6*time.Hour, cfg.ValidationInterval)
	assert.Equal(t, DefaultStoreIDs, cfg.StoreIDs)
	assert.Empty(t, cfg.Accounts)
}

func TestLoad_NumberedAccounts(t *testing.T) {
	t.Setenv("LINISCO_EMAIL_1", "store1@example.com")
	t.Setenv("LINISCO_PASSWORD_1", "pw1")
	t.Setenv("LINISCO_EMAIL_2", "store2@example.com")
	t.Setenv("LINISCO_PASSWORD_2", "pw2")
	// Gap at 3: numbering stops, slot 4 is never read.
	t.Setenv("LINISCO_EMAIL_4", "ignored@example.com")
	t.Setenv("LINISCO_PASSWORD_4", "pw4")

	cfg, err := Load()
	require.NoError(t, err)
	require.Len(t, cfg.Accounts, 2)
	assert.Equal(t, "store1@example.com", cfg.Accounts[0].Email)
	assert.Equal(t, "pw2", cfg.Accounts[1].Password)
}

func TestLoad_MissingPasswordIsAnError(t *testing.T) {
	t.Setenv("LINISCO_EMAIL_1", "store1@example.com")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LINISCO_PASSWORD_1")
}

func TestLoad_DatabaseURLWinsOverSQLite(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/sales")
	t.Setenv("SQLITE_PATH", "/tmp/ignored.db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@localhost/sales", cfg.DSN())
}

func TestLoad_StoreIDOverride(t *testing.T) {
	t.Setenv("STORE_IDS", "100, 200,300")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []int64{100, 200, 300}, cfg.StoreIDs)

	t.Setenv("STORE_IDS", "100,abc")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoad_IntervalsAndBadValuesFallBack(t *testing.T) {
	t.Setenv("POLL_INTERVAL", "5m")
	t.Setenv("VALIDATION_INTERVAL", "garbage")
	t.Setenv("PORT", "8081")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.PollInterval)
	assert.Equal(t, DefaultValidationInterval, cfg.ValidationInterval)
	assert.Equal(t, 8081, cfg.Port)
}
