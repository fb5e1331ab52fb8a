package gcp

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

type Mode string

const (
	ModeGCS      Mode = "gcs"
	ModeEmulator Mode = "gcs_emulator"
)

type ConfigErrorCode string

const (
	ConfigInvalidMode          ConfigErrorCode = "invalid_mode"
	ConfigMissingEmulatorHost  ConfigErrorCode = "missing_emulator_host"
	ConfigInvalidEmulatorHost  ConfigErrorCode = "invalid_emulator_host"
	ConfigMissingBucket        ConfigErrorCode = "missing_bucket"
	ConfigInvalidPublicBaseURL ConfigErrorCode = "invalid_public_base_url"
)

// ConfigError names the offending setting so bootstrap failures can be
// labelled without string matching.
type ConfigError struct {
	Code  ConfigErrorCode
	Value string
	Cause error
}

func (e *ConfigError) Error() string {
	switch e.Code {
	case ConfigInvalidMode:
		return fmt.Sprintf("ATTACHMENT_STORE=%q is not a GCS mode (want %q or %q)", e.Value, ModeGCS, ModeEmulator)
	case ConfigMissingEmulatorHost:
		return fmt.Sprintf("ATTACHMENT_STORE=%q requires STORAGE_EMULATOR_HOST", ModeEmulator)
	case ConfigInvalidEmulatorHost:
		return fmt.Sprintf("STORAGE_EMULATOR_HOST=%q must be an absolute URL like http://fake-gcs:4443", e.Value)
	case ConfigMissingBucket:
		return "GCS_ATTACHMENT_BUCKET is required"
	case ConfigInvalidPublicBaseURL:
		return fmt.Sprintf("OBJECT_STORAGE_PUBLIC_BASE_URL=%q must be an absolute URL", e.Value)
	}
	return "invalid attachment bucket config"
}

func (e *ConfigError) Unwrap() error { return e.Cause }

// BucketConfig describes the bucket task attachments are written to.
type BucketConfig struct {
	Mode          Mode
	EmulatorHost  string
	Bucket        string
	CDNDomain     string
	PublicBaseURL string
	Credentials   string
	UploadTimeout time.Duration
}

// Normalize trims every field, applies the upload timeout default and
// checks the combination. The returned config is what NewBucketStore uses.
func (c BucketConfig) Normalize() (BucketConfig, error) {
	c.Mode = Mode(strings.ToLower(strings.TrimSpace(string(c.Mode))))
	c.EmulatorHost = strings.TrimRight(strings.TrimSpace(c.EmulatorHost), "/")
	c.Bucket = strings.TrimSpace(c.Bucket)
	c.CDNDomain = strings.TrimSpace(c.CDNDomain)
	c.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.PublicBaseURL), "/")
	if c.UploadTimeout <= 0 {
		c.UploadTimeout = 2 * time.Minute
	}

	switch c.Mode {
	case ModeGCS:
	case ModeEmulator:
		if c.EmulatorHost == "" {
			return c, &ConfigError{Code: ConfigMissingEmulatorHost}
		}
		if err := requireAbsoluteURL(c.EmulatorHost); err != nil {
			return c, &ConfigError{Code: ConfigInvalidEmulatorHost, Value: c.EmulatorHost, Cause: err}
		}
	default:
		return c, &ConfigError{Code: ConfigInvalidMode, Value: string(c.Mode)}
	}
	if c.PublicBaseURL != "" {
		if err := requireAbsoluteURL(c.PublicBaseURL); err != nil {
			return c, &ConfigError{Code: ConfigInvalidPublicBaseURL, Value: c.PublicBaseURL, Cause: err}
		}
	}
	if c.Bucket == "" {
		return c, &ConfigError{Code: ConfigMissingBucket}
	}
	return c, nil
}

func requireAbsoluteURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%q is not absolute", raw)
	}
	return nil
}
