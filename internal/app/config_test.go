package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/journeys-backend/internal/platform/logger"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfigFrom(logger.NewNop(), map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, DBDriverPostgres, cfg.DBDriver)
	assert.Equal(t, LockBackendLocal, cfg.LockBackend)
	assert.Equal(t, AttachmentStoreNone, cfg.AttachmentStore)
	assert.Equal(t, "localhost", cfg.Postgres.Host)
	assert.Equal(t, "journeys", cfg.Postgres.Name)
	assert.Equal(t, int64(25<<20), cfg.AttachmentMaxUploadBytes)
	assert.Equal(t, 10*time.Second, cfg.LockTTL())
	assert.Equal(t, 2*time.Minute, cfg.AttachmentUploadTimeout())
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoadConfigOverrides(t *testing.T) {
	cfg, err := LoadConfigFrom(logger.NewNop(), map[string]string{
		"PORT":                              "9000",
		"DB_DRIVER":                         "SQLite",
		"SQLITE_PATH":                       "/tmp/j.db",
		"POSTGRES_HOST":                     "db.internal",
		"LOCK_BACKEND":                      "redis",
		"REDIS_ADDR":                        "redis:6379",
		"LOCK_TTL_SECONDS":                  "3",
		"ATTACHMENT_STORE":                  "S3",
		"ATTACHMENT_UPLOAD_TIMEOUT_SECONDS": "5",
		"CORS_ALLOWED_ORIGINS":              "https://a.example.com,https://b.example.com",
		"METRICS_ENABLED":                   "true",
	})
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, DBDriverSQLite, cfg.DBDriver)
	assert.Equal(t, "/tmp/j.db", cfg.SQLitePath)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.Equal(t, LockBackendRedis, cfg.LockBackend)
	assert.Equal(t, 3*time.Second, cfg.LockTTL())
	assert.Equal(t, AttachmentStoreS3, cfg.AttachmentStore)
	assert.Equal(t, 5*time.Second, cfg.AttachmentUploadTimeout())
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.AllowedOrigins)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"db driver":        {"DB_DRIVER": "mysql"},
		"lock backend":     {"LOCK_BACKEND": "etcd"},
		"redis addr":       {"LOCK_BACKEND": "redis"},
		"attachment store": {"ATTACHMENT_STORE": "ftp"},
		"upload size":      {"ATTACHMENT_MAX_UPLOAD_BYTES": "0"},
		"not a number":     {"LOCK_TTL_SECONDS": "soon"},
	}
	for name, environment := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfigFrom(logger.NewNop(), environment)
			assert.Error(t, err)
		})
	}
}
