package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/yungbote/journeys-backend/internal/platform/logger"
)

// BucketStore writes task attachments to a single GCS bucket.
type BucketStore struct {
	log    *logger.Logger
	client *storage.Client
	cfg    BucketConfig
}

func NewBucketStore(ctx context.Context, log *logger.Logger, cfg BucketConfig) (*BucketStore, error) {
	cfg, err := cfg.Normalize()
	if err != nil {
		return nil, err
	}
	var opts []option.ClientOption
	if cfg.Mode == ModeEmulator {
		// The storage client reads the emulator endpoint only from the environment.
		_ = os.Setenv("STORAGE_EMULATOR_HOST", cfg.EmulatorHost)
		opts = append(opts, option.WithoutAuthentication())
	} else {
		opts = append(CredentialOptions(cfg.Credentials), option.WithScopes(storage.ScopeReadWrite))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	storeLog := log.With("service", "BucketStore", "bucket", cfg.Bucket, "mode", cfg.Mode)
	storeLog.Info("Attachment bucket ready", "emulator_host", cfg.EmulatorHost, "cdn_domain", cfg.CDNDomain)
	return &BucketStore{log: storeLog, client: client, cfg: cfg}, nil
}

func (bs *BucketStore) UploadFile(ctx context.Context, key, contentType string, body io.Reader) error {
	ctx, cancel := context.WithTimeout(ctx, bs.cfg.UploadTimeout)
	defer cancel()

	w := bs.client.Bucket(bs.cfg.Bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, body); err != nil {
		_ = w.Close()
		return fmt.Errorf("write attachment %q: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize attachment %q: %w", key, err)
	}
	return nil
}

// DeleteFile treats a missing object as already deleted.
func (bs *BucketStore) DeleteFile(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	err := bs.client.Bucket(bs.cfg.Bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete attachment %q: %w", key, err)
	}
	return nil
}

// GetPublicURL prefers the CDN, then the emulator media endpoint, then an
// explicit public base, then storage.googleapis.com.
func (bs *BucketStore) GetPublicURL(key string) string {
	return publicURL(bs.cfg, key)
}

func publicURL(cfg BucketConfig, key string) string {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	switch {
	case cfg.CDNDomain != "":
		return "https://" + cfg.CDNDomain + "/" + key
	case cfg.Mode == ModeEmulator:
		base := cfg.PublicBaseURL
		if base == "" {
			base = cfg.EmulatorHost
		}
		return base + "/storage/v1/b/" + url.PathEscape(cfg.Bucket) + "/o/" + url.PathEscape(key) + "?alt=media"
	case cfg.PublicBaseURL != "":
		return cfg.PublicBaseURL + "/" + cfg.Bucket + "/" + key
	}
	return "https://storage.googleapis.com/" + cfg.Bucket + "/" + key
}

func (bs *BucketStore) Close() error {
	if bs == nil || bs.client == nil {
		return nil
	}
	return bs.client.Close()
}
