package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/journeys-backend/internal/data/db"
	"github.com/yungbote/journeys-backend/internal/observability"
	"github.com/yungbote/journeys-backend/internal/platform/config"
	"github.com/yungbote/journeys-backend/internal/platform/logger"
)

const (
	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	LockBackendLocal = "local"
	LockBackendRedis = "redis"

	AttachmentStoreGCS         = "gcs"
	AttachmentStoreGCSEmulator = "gcs_emulator"
	AttachmentStoreS3          = "s3"
	AttachmentStoreNone        = "none"
)

type Config struct {
	LogMode string `env:"LOG_MODE" envDefault:"development"`
	Port    string `env:"PORT" envDefault:"8080"`

	JWTSecretKey string `env:"JWT_SECRET_KEY"`
	JWTIssuer    string `env:"JWT_ISSUER"`

	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	DBDriver   string            `env:"DB_DRIVER" envDefault:"postgres"`
	Postgres   db.PostgresConfig `envPrefix:"POSTGRES_"`
	SQLitePath string            `env:"SQLITE_PATH" envDefault:"journeys.db"`

	LockBackend    string `env:"LOCK_BACKEND" envDefault:"local"`
	RedisAddr      string `env:"REDIS_ADDR"`
	RedisPassword  string `env:"REDIS_PASSWORD"`
	RedisDB        int    `env:"REDIS_DB" envDefault:"0"`
	LockTTLSeconds int    `env:"LOCK_TTL_SECONDS" envDefault:"10"`

	AttachmentStore               string `env:"ATTACHMENT_STORE" envDefault:"none"`
	AttachmentMaxUploadBytes      int64  `env:"ATTACHMENT_MAX_UPLOAD_BYTES" envDefault:"26214400"`
	AttachmentUploadTimeoutSecond int    `env:"ATTACHMENT_UPLOAD_TIMEOUT_SECONDS" envDefault:"120"`
	GCSAttachmentBucket           string `env:"GCS_ATTACHMENT_BUCKET"`
	GCSAttachmentCDNDomain        string `env:"GCS_ATTACHMENT_CDN_DOMAIN"`
	GCPCredentials                string `env:"GOOGLE_APPLICATION_CREDENTIALS_JSON"`
	StorageEmulatorHost           string `env:"STORAGE_EMULATOR_HOST"`
	ObjectStoragePublicBaseURL    string `env:"OBJECT_STORAGE_PUBLIC_BASE_URL"`
	S3Bucket                      string `env:"S3_BUCKET"`
	S3Region                      string `env:"S3_REGION"`
	S3Endpoint                    string `env:"S3_ENDPOINT"`
	S3AccessKey                   string `env:"S3_ACCESS_KEY_ID"`
	S3SecretKey                   string `env:"S3_SECRET_ACCESS_KEY"`
	S3PublicBaseURL               string `env:"S3_PUBLIC_BASE_URL"`
	S3PathStyle                   bool   `env:"S3_FORCE_PATH_STYLE" envDefault:"false"`

	Metrics observability.MetricsConfig
	SLO     observability.SLOConfig
	Otel    observability.OtelConfig
}

// LoadConfig reads the process environment.
func LoadConfig(log *logger.Logger) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return cfg, err
	}
	return finishConfig(log, cfg)
}

// LoadConfigFrom reads the given map instead of the process environment.
func LoadConfigFrom(log *logger.Logger, environment map[string]string) (Config, error) {
	var cfg Config
	if err := config.ParseEnvWith(&cfg, environment); err != nil {
		return cfg, err
	}
	return finishConfig(log, cfg)
}

func finishConfig(log *logger.Logger, cfg Config) (Config, error) {
	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	cfg.LockBackend = strings.ToLower(strings.TrimSpace(cfg.LockBackend))
	cfg.AttachmentStore = strings.ToLower(strings.TrimSpace(cfg.AttachmentStore))

	switch cfg.DBDriver {
	case DBDriverPostgres, DBDriverSQLite:
	default:
		return cfg, fmt.Errorf("invalid DB_DRIVER=%q (allowed: %q, %q)", cfg.DBDriver, DBDriverPostgres, DBDriverSQLite)
	}
	switch cfg.LockBackend {
	case LockBackendLocal:
	case LockBackendRedis:
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return cfg, fmt.Errorf("LOCK_BACKEND=%q requires REDIS_ADDR", LockBackendRedis)
		}
	default:
		return cfg, fmt.Errorf("invalid LOCK_BACKEND=%q (allowed: %q, %q)", cfg.LockBackend, LockBackendLocal, LockBackendRedis)
	}
	switch cfg.AttachmentStore {
	case AttachmentStoreGCS, AttachmentStoreGCSEmulator, AttachmentStoreS3, AttachmentStoreNone:
	case "":
		cfg.AttachmentStore = AttachmentStoreNone
	default:
		return cfg, fmt.Errorf("invalid ATTACHMENT_STORE=%q", cfg.AttachmentStore)
	}
	if cfg.AttachmentMaxUploadBytes <= 0 {
		return cfg, fmt.Errorf("ATTACHMENT_MAX_UPLOAD_BYTES must be positive")
	}

	if log != nil {
		log.Info(
			"Configuration loaded",
			"port", cfg.Port,
			"db_driver", cfg.DBDriver,
			"lock_backend", cfg.LockBackend,
			"attachment_store", cfg.AttachmentStore,
			"metrics_enabled", cfg.Metrics.Enabled,
			"otel_enabled", cfg.Otel.Enabled,
			"jwt_configured", cfg.JWTSecretKey != "",
		)
	}
	return cfg, nil
}

func (c Config) LockTTL() time.Duration {
	if c.LockTTLSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.LockTTLSeconds) * time.Second
}

func (c Config) AttachmentUploadTimeout() time.Duration {
	if c.AttachmentUploadTimeoutSecond <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(c.AttachmentUploadTimeoutSecond) * time.Second
}
