package app

import (
	"context"
	"io"
	"time"

	"github.com/yungbote/journeys-backend/internal/observability"
	"github.com/yungbote/journeys-backend/internal/services"
)

type instrumentedAttachmentStore struct {
	provider string
	inner    services.AttachmentStore
	metrics  *observability.Metrics
}

func instrumentAttachmentStore(provider string, inner services.AttachmentStore, metrics *observability.Metrics) services.AttachmentStore {
	if inner == nil {
		return nil
	}
	return &instrumentedAttachmentStore{
		provider: provider,
		inner:    inner,
		metrics:  metrics,
	}
}

func (s *instrumentedAttachmentStore) UploadFile(ctx context.Context, key, contentType string, body io.Reader) error {
	start := time.Now()
	err := s.inner.UploadFile(ctx, key, contentType, body)
	s.observe("upload", err, time.Since(start))
	return err
}

func (s *instrumentedAttachmentStore) DeleteFile(ctx context.Context, key string) error {
	start := time.Now()
	err := s.inner.DeleteFile(ctx, key)
	s.observe("delete", err, time.Since(start))
	return err
}

func (s *instrumentedAttachmentStore) GetPublicURL(key string) string {
	return s.inner.GetPublicURL(key)
}

// Close releases the wrapped client when it holds one.
func (s *instrumentedAttachmentStore) Close() error {
	if c, ok := s.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *instrumentedAttachmentStore) observe(operation string, err error, dur time.Duration) {
	if s == nil || s.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.ObserveAttachmentStoreOperation(s.provider, operation, status, dur)
}
