package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/turtacn/ResumeLens/pkg/errors"
)

var (
	ErrLockNotAcquired = errors.New(errors.ErrCodeConflict, "lock held by another owner")
	ErrLockNotHeld     = errors.New(errors.ErrCodeConflict, "lock not held by this owner")
)

// DefaultLockTTL bounds how long a crashed build can block the next one.
const DefaultLockTTL = 30 * time.Minute

var unlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// Mutex is a single-owner lock that guards one corpus output location.
type Mutex struct {
	client *Client
	key    string
	value  string
	ttl    time.Duration
}

// NewMutex returns an unlocked Mutex named name. A zero ttl means
// DefaultLockTTL.
func NewMutex(client *Client, name string, ttl time.Duration) *Mutex {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &Mutex{
		client: client,
		key:    DefaultPrefix + "lock:" + name,
		value:  uuid.New().String(),
		ttl:    ttl,
	}
}

// Key returns the Redis key backing the lock.
func (m *Mutex) Key() string { return m.key }

// TryLock acquires the lock or returns ErrLockNotAcquired without waiting.
func (m *Mutex) TryLock(ctx context.Context) error {
	ok, err := m.client.SetNX(ctx, m.key, m.value, m.ttl).Result()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "acquire lock").WithDetail("key=" + m.key)
	}
	if !ok {
		return ErrLockNotAcquired.WithDetail("key=" + m.key)
	}
	return nil
}

// Unlock releases the lock if this Mutex still owns it.
func (m *Mutex) Unlock(ctx context.Context) error {
	if m.client.isClosed() {
		return ErrClientClosed
	}
	res, err := unlockScript.Run(ctx, m.client.Underlying(), []string{m.key}, m.value).Int64()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "release lock").WithDetail("key=" + m.key)
	}
	if res == 0 {
		return ErrLockNotHeld.WithDetail("key=" + m.key)
	}
	return nil
}
