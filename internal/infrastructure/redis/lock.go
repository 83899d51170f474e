package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Only the owner may delete the key; a watcher that outlived its TTL must
// not release a lock that was re-acquired by another instance.
var releaseLockScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// WatchLock guarantees a transaction is followed by at most one watcher
// instance at a time. The TTL matches the watch TTL, so a crashed instance
// frees its transactions without intervention.
type WatchLock struct {
	client   *redis.Client
	key      string
	value    string
	acquired bool
	ttl      time.Duration
}

func NewWatchLock(client *redis.Client, txID string, ttl time.Duration) *WatchLock {
	return &WatchLock{
		client: client,
		key:    "checkout:watch:" + txID,
		value:  uuid.New().String(),
		ttl:    ttl,
	}
}

func (l *WatchLock) Acquire(ctx context.Context) (bool, error) {
	acquired, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire watch lock: %w", err)
	}
	l.acquired = acquired
	return acquired, nil
}

func (l *WatchLock) Release(ctx context.Context) error {
	if !l.acquired {
		return nil
	}
	if err := releaseLockScript.Run(ctx, l.client, []string{l.key}, l.value).Err(); err != nil {
		return fmt.Errorf("failed to release watch lock: %w", err)
	}
	l.acquired = false
	return nil
}
