package s3store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/yungbote/journeys-backend/internal/platform/logger"
)

// Config describes an S3-compatible bucket (AWS, DigitalOcean Spaces, MinIO).
type Config struct {
	Bucket        string
	Region        string
	Endpoint      string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
	PathStyle     bool
	UploadTimeout time.Duration
}

type Store struct {
	log           *logger.Logger
	client        *s3.Client
	bucket        string
	region        string
	endpoint      string
	publicBaseURL string
	pathStyle     bool
	uploadTimeout time.Duration
}

func New(ctx context.Context, log *logger.Logger, cfg Config) (*Store, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errors.New("missing attachment bucket name (S3_BUCKET)")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint != "" {
		if u, err := url.Parse(endpoint); err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid S3_ENDPOINT=%q; expected absolute URL", endpoint)
		}
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load s3 config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	timeout := cfg.UploadTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	storeLog := log.With("service", "S3Store")
	storeLog.Info("Attachment bucket initialized", "provider", "s3", "bucket", bucket, "region", region, "endpoint", endpoint)
	return &Store{
		log:           storeLog,
		client:        client,
		bucket:        bucket,
		region:        region,
		endpoint:      endpoint,
		publicBaseURL: strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/"),
		pathStyle:     cfg.PathStyle,
		uploadTimeout: timeout,
	}, nil
}

// UploadFile writes body under key. Bodies should be seekable so the request
// can be signed and retried.
func (s *Store) UploadFile(ctx context.Context, key, contentType string, body io.Reader) error {
	ctx, cancel := context.WithTimeout(ctx, s.uploadTimeout)
	defer cancel()
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if ct := strings.TrimSpace(contentType); ct != "" {
		in.ContentType = aws.String(ct)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return fmt.Errorf("put s3 object %q: %w", key, err)
	}
	return nil
}

func (s *Store) DeleteFile(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete s3 object %q in bucket %q: %w", key, s.bucket, err)
	}
	return nil
}

func (s *Store) GetPublicURL(key string) string {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if s.publicBaseURL != "" {
		return fmt.Sprintf("%s/%s", s.publicBaseURL, key)
	}
	if s.endpoint != "" {
		u, err := url.Parse(s.endpoint)
		if err == nil {
			if s.pathStyle {
				return fmt.Sprintf("%s://%s/%s/%s", u.Scheme, u.Host, s.bucket, key)
			}
			return fmt.Sprintf("%s://%s.%s/%s", u.Scheme, s.bucket, u.Host, key)
		}
	}
	if s.pathStyle {
		return fmt.Sprintf("https://s3.%s.amazonaws.com/%s/%s", s.region, s.bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}
