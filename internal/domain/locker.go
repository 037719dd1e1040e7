// internal/domain/locker.go
package domain

import (
	"context"
	"errors"
	"time"
)

// ErrLockNotAcquired is returned when a lock is currently held by someone else.
// Contention is an expected outcome, callers either retry later or fail fast.
var ErrLockNotAcquired = errors.New("lock not acquired")

// Lock represents an acquired distributed lock.
type Lock interface {
	// Name is the logical resource name the lock was acquired for.
	Name() string
	// Token is the opaque holder token stored with the lock.
	Token() string
	// Unlock releases the lock if it is still held by this holder.
	// Releasing an expired or foreign lock is a no-op and returns nil.
	Unlock(ctx context.Context) error
}

// Locker defines the interface for a distributed locking mechanism.
type Locker interface {
	// TryLock attempts to acquire a lock for the given resource name with a
	// passive expiry of ttl. It never waits for the current holder: if the
	// lock is taken it returns ErrLockNotAcquired immediately.
	TryLock(ctx context.Context, name string, ttl time.Duration) (Lock, error)
}
