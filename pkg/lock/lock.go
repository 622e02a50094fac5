package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/coralcart/loyalty-backend/pkg/redis"
)

// ErrNotAcquired is returned when the lock is held by someone else for the
// whole acquisition window.
var ErrNotAcquired = errors.New("lock not acquired")

const acquireRetryInterval = 100 * time.Millisecond

type store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	LockKey(name string) string
}

// Manager hands out Redis SETNX leases. A lease expires on its own after the
// TTL so a crashed holder cannot block the key forever.
type Manager struct {
	store store
}

// Lease is one acquired lock. Release is safe to call more than once and is a
// no-op once the lease has expired or been taken over.
type Lease struct {
	store store
	key   string
	owner string
}

// NewManager builds a lock manager on top of the redis client.
func NewManager(store store) (*Manager, error) {
	if store == nil {
		return nil, errors.New("redis store required for lock manager")
	}
	return &Manager{store: store}, nil
}

// Acquire polls for the lock until timeout elapses, then gives up with
// ErrNotAcquired. The returned lease lives for ttl unless released earlier.
func (m *Manager) Acquire(ctx context.Context, name string, timeout, ttl time.Duration) (*Lease, error) {
	if name == "" {
		return nil, errors.New("lock name is required")
	}
	if ttl <= 0 {
		return nil, errors.New("lock ttl must be positive")
	}

	key := m.store.LockKey(name)
	owner := uuid.NewString()
	deadline := time.Now().Add(timeout)

	for {
		ok, err := m.store.SetNX(ctx, key, owner, ttl)
		if err != nil {
			return nil, fmt.Errorf("setnx %s: %w", key, err)
		}
		if ok {
			return &Lease{store: m.store, key: key, owner: owner}, nil
		}
		if timeout <= 0 || !time.Now().Add(acquireRetryInterval).Before(deadline) {
			return nil, ErrNotAcquired
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(acquireRetryInterval):
		}
	}
}

// Release frees the lease only if this owner still holds it.
func (l *Lease) Release(ctx context.Context) error {
	if l == nil || l.owner == "" {
		return nil
	}
	value, err := l.store.Get(ctx, l.key)
	if err != nil {
		if redis.IsNil(err) {
			l.owner = ""
			return nil
		}
		return fmt.Errorf("read lock owner: %w", err)
	}
	if value != l.owner {
		l.owner = ""
		return nil
	}
	if err := l.store.Del(ctx, l.key); err != nil {
		return fmt.Errorf("delete lock: %w", err)
	}
	l.owner = ""
	return nil
}
