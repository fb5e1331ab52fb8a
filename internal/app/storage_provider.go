package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/yungbote/journeys-backend/internal/observability"
	"github.com/yungbote/journeys-backend/internal/platform/gcp"
	"github.com/yungbote/journeys-backend/internal/platform/logger"
	"github.com/yungbote/journeys-backend/internal/platform/s3store"
	"github.com/yungbote/journeys-backend/internal/services"
)

var (
	newBucketStore = func(ctx context.Context, log *logger.Logger, cfg gcp.BucketConfig) (services.AttachmentStore, error) {
		return gcp.NewBucketStore(ctx, log, cfg)
	}
	newS3Store = func(ctx context.Context, log *logger.Logger, cfg s3store.Config) (services.AttachmentStore, error) {
		return s3store.New(ctx, log, cfg)
	}
)

type StorageProviderBootstrapErrorCode string

const (
	StorageProviderBootstrapErrorInvalidMode         StorageProviderBootstrapErrorCode = "invalid_mode"
	StorageProviderBootstrapErrorMissingEmulatorHost StorageProviderBootstrapErrorCode = "missing_emulator_host"
	StorageProviderBootstrapErrorInvalidEmulatorHost StorageProviderBootstrapErrorCode = "invalid_emulator_host"
	StorageProviderBootstrapErrorInvalidConfig       StorageProviderBootstrapErrorCode = "invalid_config"
	StorageProviderBootstrapErrorConnectFailed       StorageProviderBootstrapErrorCode = "connect_failed"
)

type StorageProviderBootstrapError struct {
	Code         StorageProviderBootstrapErrorCode
	Mode         string
	EmulatorHost string
	Cause        error
}

func (e *StorageProviderBootstrapError) Error() string {
	if e == nil {
		return "attachment store bootstrap failed"
	}
	return fmt.Sprintf(
		"attachment store bootstrap failed (code=%s mode=%q emulator_host=%q): %v",
		e.Code,
		e.Mode,
		e.EmulatorHost,
		e.Cause,
	)
}

func (e *StorageProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveAttachmentStore builds the configured blob store. ATTACHMENT_STORE=none
// returns a nil store, which leaves uploads disabled.
func resolveAttachmentStore(ctx context.Context, log *logger.Logger, cfg Config, metrics *observability.Metrics) (services.AttachmentStore, error) {
	mode := cfg.AttachmentStore
	metrics.SetObjectStorageModeActive(mode)

	var (
		store services.AttachmentStore
		err   error
	)
	switch mode {
	case AttachmentStoreNone:
		log.Warn("Attachment uploads disabled", "mode", mode)
		metrics.ObserveObjectStorageProviderBootstrap(mode, "success", "none")
		return nil, nil
	case AttachmentStoreGCS, AttachmentStoreGCSEmulator:
		store, err = bootstrapBucketStore(ctx, log, cfg)
	case AttachmentStoreS3:
		store, err = newS3Store(ctx, log, s3store.Config{
			Bucket:        cfg.S3Bucket,
			Region:        cfg.S3Region,
			Endpoint:      cfg.S3Endpoint,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			PublicBaseURL: cfg.S3PublicBaseURL,
			PathStyle:     cfg.S3PathStyle,
			UploadTimeout: cfg.AttachmentUploadTimeout(),
		})
		if err != nil {
			err = &StorageProviderBootstrapError{Code: StorageProviderBootstrapErrorConnectFailed, Mode: mode, Cause: err}
		}
	default:
		err = &StorageProviderBootstrapError{
			Code:  StorageProviderBootstrapErrorInvalidMode,
			Mode:  mode,
			Cause: fmt.Errorf("unsupported attachment store %q", mode),
		}
	}
	if err != nil {
		code := storageProviderBootstrapErrorCode(err)
		metrics.ObserveObjectStorageProviderBootstrap(mode, "error", string(code))
		log.Error(
			"Attachment store bootstrap failed",
			"mode", mode,
			"emulator_host", cfg.StorageEmulatorHost,
			"error_code", code,
			"error", err,
		)
		return nil, err
	}
	metrics.ObserveObjectStorageProviderBootstrap(mode, "success", "none")
	log.Info("Attachment store ready", "mode", mode)
	return instrumentAttachmentStore(mode, store, metrics), nil
}

func bootstrapBucketStore(ctx context.Context, log *logger.Logger, cfg Config) (services.AttachmentStore, error) {
	bucketCfg, err := gcp.BucketConfig{
		Mode:          gcp.Mode(cfg.AttachmentStore),
		EmulatorHost:  cfg.StorageEmulatorHost,
		Bucket:        cfg.GCSAttachmentBucket,
		CDNDomain:     cfg.GCSAttachmentCDNDomain,
		PublicBaseURL: cfg.ObjectStoragePublicBaseURL,
		Credentials:   cfg.GCPCredentials,
		UploadTimeout: cfg.AttachmentUploadTimeout(),
	}.Normalize()
	if err == nil {
		var store services.AttachmentStore
		if store, err = newBucketStore(ctx, log, bucketCfg); err == nil {
			return store, nil
		}
	}
	out := &StorageProviderBootstrapError{
		Code:         StorageProviderBootstrapErrorConnectFailed,
		Mode:         cfg.AttachmentStore,
		EmulatorHost: cfg.StorageEmulatorHost,
		Cause:        err,
	}
	var cfgErr *gcp.ConfigError
	if errors.As(err, &cfgErr) {
		switch cfgErr.Code {
		case gcp.ConfigInvalidMode:
			out.Code = StorageProviderBootstrapErrorInvalidMode
		case gcp.ConfigMissingEmulatorHost:
			out.Code = StorageProviderBootstrapErrorMissingEmulatorHost
		case gcp.ConfigInvalidEmulatorHost:
			out.Code = StorageProviderBootstrapErrorInvalidEmulatorHost
		default:
			out.Code = StorageProviderBootstrapErrorInvalidConfig
		}
	}
	return nil, out
}

func storageProviderBootstrapErrorCode(err error) StorageProviderBootstrapErrorCode {
	var bootstrapErr *StorageProviderBootstrapError
	if errors.As(err, &bootstrapErr) && bootstrapErr.Code != "" {
		return bootstrapErr.Code
	}
	return StorageProviderBootstrapErrorConnectFailed
}
