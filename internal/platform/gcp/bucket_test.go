package gcp

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name    string
		in      BucketConfig
		wantErr ConfigErrorCode
	}{
		{name: "gcs", in: BucketConfig{Mode: "gcs", Bucket: "attachments"}},
		{name: "emulator", in: BucketConfig{Mode: " GCS_EMULATOR ", EmulatorHost: "http://fake-gcs:4443/", Bucket: "attachments"}},
		{name: "unknown mode", in: BucketConfig{Mode: "s3", Bucket: "attachments"}, wantErr: ConfigInvalidMode},
		{name: "emulator without host", in: BucketConfig{Mode: ModeEmulator, Bucket: "attachments"}, wantErr: ConfigMissingEmulatorHost},
		{name: "relative emulator host", in: BucketConfig{Mode: ModeEmulator, EmulatorHost: "fake-gcs:4443"}, wantErr: ConfigInvalidEmulatorHost},
		{name: "relative public base", in: BucketConfig{Mode: ModeGCS, Bucket: "attachments", PublicBaseURL: "localhost:4443"}, wantErr: ConfigInvalidPublicBaseURL},
		{name: "no bucket", in: BucketConfig{Mode: ModeGCS}, wantErr: ConfigMissingBucket},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := tc.in.Normalize()
			if tc.wantErr != "" {
				var cfgErr *ConfigError
				if !errors.As(err, &cfgErr) || cfgErr.Code != tc.wantErr {
					t.Fatalf("want %q, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			if out.UploadTimeout != 2*time.Minute {
				t.Fatalf("default timeout: %v", out.UploadTimeout)
			}
			if strings.HasSuffix(out.EmulatorHost, "/") {
				t.Fatalf("emulator host not trimmed: %q", out.EmulatorHost)
			}
		})
	}
}

func TestPublicURL(t *testing.T) {
	const key = "attachments/a/t/f.png"
	cases := []struct {
		name string
		cfg  BucketConfig
		want string
	}{
		{"gcs default", BucketConfig{Mode: ModeGCS, Bucket: "b"}, "https://storage.googleapis.com/b/" + key},
		{"cdn wins", BucketConfig{Mode: ModeEmulator, Bucket: "b", CDNDomain: "cdn.example.com", EmulatorHost: "http://fake-gcs:4443"}, "https://cdn.example.com/" + key},
		{"public base", BucketConfig{Mode: ModeGCS, Bucket: "b", PublicBaseURL: "http://localhost:4443"}, "http://localhost:4443/b/" + key},
		{"emulator media", BucketConfig{Mode: ModeEmulator, Bucket: "b", EmulatorHost: "http://fake-gcs:4443"}, "http://fake-gcs:4443/storage/v1/b/b/o/attachments%2Fa%2Ft%2Ff.png?alt=media"},
		{"emulator behind public base", BucketConfig{Mode: ModeEmulator, Bucket: "b", EmulatorHost: "http://fake-gcs:4443", PublicBaseURL: "http://localhost:4443"}, "http://localhost:4443/storage/v1/b/b/o/attachments%2Fa%2Ft%2Ff.png?alt=media"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := publicURL(tc.cfg, "/"+key); got != tc.want {
				t.Fatalf("want=%q got=%q", tc.want, got)
			}
		})
	}
}

func TestCredentialOptions(t *testing.T) {
	if len(CredentialOptions("  ")) != 0 {
		t.Fatalf("blank credentials should use defaults")
	}
	if len(CredentialOptions(`{"type":"service_account"}`)) != 1 || len(CredentialOptions("/etc/creds.json")) != 1 {
		t.Fatalf("expected one option for inline json and for a path")
	}
}
