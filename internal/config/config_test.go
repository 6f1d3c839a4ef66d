package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "60", cfg.DefaultCountryCode)
	assert.Equal(t, "ms-MY", cfg.CurrencyLocale)
	assert.Equal(t, 3, cfg.WASendAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.WASendBaseDelay)
	assert.False(t, cfg.AllowRejectedReapproval)
	assert.False(t, cfg.EnableApprovalReminders)
}

func TestValidate(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	cfg.WASendAttempts = 0
	assert.Error(t, cfg.Validate())
}

func TestDatabaseURLEscapesPassword(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	cfg.DB.Password = "p@ss w0rd"

	assert.Contains(t, cfg.DatabaseURL(), "p%40ss+w0rd")
}
