package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromMapDefaults(t *testing.T) {
	cfg, err := FromMap(map[string]any{
		"host":     "db.example.com",
		"user":     "reader",
		"database": "sales",
	})
	require.NoError(t, err)

	assert.Equal(t, "db.example.com", cfg.Host)
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, "reader", cfg.User)
	assert.Empty(t, cfg.Password)
	assert.Equal(t, "sales", cfg.Database)
	assert.Equal(t, "require", cfg.SSLMode)
}

func TestFromMapOverrides(t *testing.T) {
	cfg, err := FromMap(map[string]any{
		"host":     "db.example.com",
		"port":     float64(5433), // JSON numbers are float64
		"username": "reader",      // alias for user
		"password": "secret",
		"name":     "sales", // legacy alias for database
		"ssl_mode": "disable",
	})
	require.NoError(t, err)

	assert.Equal(t, 5433, cfg.Port)
	assert.Equal(t, "reader", cfg.User)
	assert.Equal(t, "secret", cfg.Password)
	assert.Equal(t, "sales", cfg.Database)
	assert.Equal(t, "disable", cfg.SSLMode)
}

func TestFromMapMissingFields(t *testing.T) {
	cases := []struct {
		name   string
		config map[string]any
		errMsg string
	}{
		{
			name:   "missing host",
			config: map[string]any{"user": "reader", "database": "sales"},
			errMsg: "host is required",
		},
		{
			name:   "missing user",
			config: map[string]any{"host": "db.example.com", "database": "sales"},
			errMsg: "user is required",
		},
		{
			name:   "missing database",
			config: map[string]any{"host": "db.example.com", "user": "reader"},
			errMsg: "database is required",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromMap(tc.config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errMsg)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := &Config{Host: "db.example.com", Port: 5432, User: "reader", Database: "sales"}
	require.NoError(t, cfg.Validate())

	cfg.Port = -1
	assert.Error(t, cfg.Validate())

	cfg.Port = 5432
	cfg.Database = ""
	assert.Error(t, cfg.Validate())
}
