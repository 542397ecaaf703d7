package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_RequiresSecrets(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("ENCRYPTION_KEY", "k")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("JWT_SECRET", "s")
	t.Setenv("ENCRYPTION_KEY", "")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("ENCRYPTION_KEY", "k")
	t.Setenv("DB_DRIVER", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Contains(t, cfg.DatabaseURL, "postgres://")
	assert.Equal(t, 60, cfg.MessagesPerMinute)
	assert.Equal(t, 5*time.Minute, cfg.PresenceStaleAfter)
	assert.Equal(t, 5*time.Minute, cfg.MaintenanceInterval)
	assert.Equal(t, 100, cfg.OfflineQueueCapacity)
	assert.Equal(t, 3*time.Second, cfg.TypingTimeout)
	assert.Equal(t, 10, cfg.LoginAttemptsPerMinute)
	assert.Equal(t, "0.0.0.0:8000", cfg.HTTPAddr())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("ENCRYPTION_KEY", "k")
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/x.db")
	t.Setenv("TYPING_TIMEOUT", "5s")
	t.Setenv("MESSAGES_PER_MINUTE", "10")
	t.Setenv("CORS_ORIGINS", " https://a.example , ,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "/tmp/x.db", cfg.DatabaseURL)
	assert.Equal(t, 5*time.Second, cfg.TypingTimeout)
	assert.Equal(t, 10, cfg.MessagesPerMinute)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
}

func TestLoad_UnknownDriver(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("ENCRYPTION_KEY", "k")
	t.Setenv("DB_DRIVER", "mysql")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RejectsNonPositiveLimits(t *testing.T) {
	for _, tc := range []struct{ key, value string }{
		{"MESSAGES_PER_MINUTE", "0"},
		{"LOGIN_ATTEMPTS_PER_MINUTE", "-1"},
		{"OFFLINE_QUEUE_CAPACITY", "0"},
		{"OFFLINE_QUEUE_MAX_USERS", "0"},
		{"PRESENCE_STALE_AFTER", "0s"},
		{"MAINTENANCE_INTERVAL", "0s"},
		{"MAINTENANCE_INTERVAL", "-1m"},
		{"OFFLINE_QUEUE_TTL", "-1h"},
		{"TYPING_TIMEOUT", "0s"},
		{"PUSH_TIMEOUT", "-5s"},
	} {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "s")
			t.Setenv("ENCRYPTION_KEY", "k")
			t.Setenv("DB_DRIVER", "sqlite")
			t.Setenv(tc.key, tc.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.key)
		})
	}
}
