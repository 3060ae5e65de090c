package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/contabil/fiscore/pkg/errors"
)

var (
	// ErrLockNotAcquired is returned when the lock is held elsewhere.
	ErrLockNotAcquired = errors.New(errors.ErrCodeConflict, "failed to acquire lock")

	// ErrLockNotHeld is returned when unlocking a lock this owner no
	// longer holds.
	ErrLockNotHeld = errors.New(errors.ErrCodeConflict, "lock not held by this owner")
)

// Mutex is a single-holder distributed lock.  The instance generator takes
// one per organization so concurrent scheduled runs and manual triggers
// never race the same competence.
type Mutex struct {
	client *Client
	key    string
	value  string
	ttl    time.Duration
}

// NewMutex builds a mutex on the given name with an expiry TTL.  The TTL
// bounds how long a crashed holder can block other runs.
func (c *Client) NewMutex(name string, ttl time.Duration) *Mutex {
	return &Mutex{
		client: c,
		key:    c.Key("lock", name),
		value:  uuid.New().String(),
		ttl:    ttl,
	}
}

// Only the owner that set the value may delete or extend the key.
var unlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

var extendScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// TryLock attempts a single non-blocking acquisition.
func (m *Mutex) TryLock(ctx context.Context) (bool, error) {
	ok, err := m.client.rdb.SetNX(ctx, m.key, m.value, m.ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeCacheError, "failed to set lock")
	}
	return ok, nil
}

// Lock blocks with retries until the lock is acquired, the retry budget is
// spent, or ctx is cancelled.
func (m *Mutex) Lock(ctx context.Context, retryDelay time.Duration, retryCount int) error {
	for i := 0; i < retryCount; i++ {
		ok, err := m.TryLock(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay):
		}
	}
	return ErrLockNotAcquired
}

// Unlock releases the lock if this owner still holds it.
func (m *Mutex) Unlock(ctx context.Context) error {
	res, err := unlockScript.Run(ctx, m.client.rdb, []string{m.key}, m.value).Result()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to release lock")
	}
	if res.(int64) == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Extend pushes the expiry out for long-running holders.
func (m *Mutex) Extend(ctx context.Context, ttl time.Duration) (bool, error) {
	res, err := extendScript.Run(ctx, m.client.rdb, []string{m.key}, m.value, ttl.Milliseconds()).Result()
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeCacheError, "failed to extend lock")
	}
	return res.(int64) == 1, nil
}
