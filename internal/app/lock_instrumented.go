package app

import (
	"context"
	"time"

	"github.com/yungbote/journeys-backend/internal/observability"
	"github.com/yungbote/journeys-backend/internal/platform/lock"
)

type instrumentedLocker struct {
	backend string
	inner   lock.Locker
	metrics *observability.Metrics
}

func instrumentLocker(backend string, inner lock.Locker, metrics *observability.Metrics) lock.Locker {
	if inner == nil || metrics == nil {
		return inner
	}
	return &instrumentedLocker{backend: backend, inner: inner, metrics: metrics}
}

func (l *instrumentedLocker) Lock(ctx context.Context, key string) (lock.Unlock, error) {
	start := time.Now()
	unlock, err := l.inner.Lock(ctx, key)
	status := "acquired"
	if err != nil {
		status = "timeout"
	}
	l.metrics.ObserveLockWait(l.backend, status, time.Since(start))
	return unlock, err
}
