package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/yungbote/journeys-backend/internal/platform/logger"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisOptions struct {
	Prefix     string
	TTL        time.Duration
	RetryEvery time.Duration
}

// Redis is a Locker backed by SET NX PX with a per-holder token, so a holder
// whose TTL expired cannot release somebody else's lock.
type Redis struct {
	client redis.UniversalClient
	log    *logger.Logger
	opts   RedisOptions
}

func NewRedis(client redis.UniversalClient, log *logger.Logger, opts RedisOptions) *Redis {
	if opts.TTL <= 0 {
		opts.TTL = 10 * time.Second
	}
	if opts.RetryEvery <= 0 {
		opts.RetryEvery = 25 * time.Millisecond
	}
	if opts.Prefix == "" {
		opts.Prefix = "journeys:lock:"
	}
	return &Redis{client: client, log: log.With("locker", "Redis"), opts: opts}
}

func (r *Redis) Lock(ctx context.Context, key string) (Unlock, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	full := r.opts.Prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(r.opts.RetryEvery)
	defer ticker.Stop()
	for {
		ok, err := r.client.SetNX(ctx, full, token, r.opts.TTL).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("redis lock %q: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrNotAcquired, ctx.Err())
		case <-ticker.C:
		}
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		// The caller's ctx may already be done; release on a short detached one.
		relCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(relCtx, r.client, []string{full}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			r.log.Warn("redis lock release failed", "key", key, "error", err)
		}
	}, nil
}
