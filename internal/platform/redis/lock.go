package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"nexops/pkg/platform/sentinel"
)

// Locker hands out short-lived distributed locks. A held lock is reported as
// sentinel.ErrUnavailable.
type Locker struct {
	locks *redislock.Client
	ttl   time.Duration
}

func NewLocker(client redis.UniversalClient, ttl time.Duration) *Locker {
	return &Locker{locks: redislock.New(client), ttl: ttl}
}

// Lock obtains key for the configured TTL without retrying.
func (l *Locker) Lock(ctx context.Context, key string) (func(context.Context) error, error) {
	lock, err := l.locks.Obtain(ctx, key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("lock %s: %w", key, sentinel.ErrUnavailable)
	}
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}
	return func(ctx context.Context) error {
		err := lock.Release(ctx)
		if errors.Is(err, redislock.ErrLockNotHeld) {
			return nil
		}
		return err
	}, nil
}
