// Package lock serializes work on a key across server instances.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

var ErrNotObtained = errors.New("lock not obtained")

type Unlocker interface {
	Release(ctx context.Context) error
}

type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Unlocker, error)
}

// Noop grants every lock immediately.
type Noop struct{}

func (Noop) Obtain(context.Context, string, time.Duration) (Unlocker, error) {
	return noopUnlocker{}, nil
}

type noopUnlocker struct{}

func (noopUnlocker) Release(context.Context) error { return nil }

// Redis obtains locks with bsm/redislock, retrying until ctx is done.
type Redis struct {
	locker *redislock.Client
	retry  time.Duration
}

func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{
		locker: redislock.New(client),
		retry:  50 * time.Millisecond,
	}
}

func (r *Redis) Obtain(ctx context.Context, key string, ttl time.Duration) (Unlocker, error) {
	l, err := r.locker.Obtain(ctx, key, ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(r.retry),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", ErrNotObtained, key)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}
	return l, nil
}

func OrderKey(orderRef string) string {
	return "lock:payment-callback:" + orderRef
}
