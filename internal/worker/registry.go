// internal/worker/registry.go
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"flash-sale/internal/domain"
)

// ConsumerLockPrefix is prepended to "<stream>:<consumer>" to form the lock
// that marks a consumer name as taken.
const ConsumerLockPrefix = "consumer:"

// Registry claims consumer names for the lifetime of a worker process. Two
// processes reading as the same consumer would share one pending list, so
// the second one refuses to start.
//
// The locker must keep held locks alive (redis watchdog or etcd session).
type Registry struct {
	locker domain.Locker
	ttl    time.Duration
	logger *slog.Logger
	locks  []domain.Lock
}

// NewRegistry creates a new consumer registry.
func NewRegistry(locker domain.Locker, ttl time.Duration, logger *slog.Logger) *Registry {
	return &Registry{
		locker: locker,
		ttl:    ttl,
		logger: logger.With("component", "consumer-registry"),
	}
}

// Register claims every consumer name on stream. Either all names are
// claimed or none are.
func (r *Registry) Register(ctx context.Context, stream string, consumers []string) error {
	for _, consumer := range consumers {
		lock, err := r.locker.TryLock(ctx, ConsumerLockPrefix+stream+":"+consumer, r.ttl)
		if err != nil {
			if derr := r.Deregister(context.WithoutCancel(ctx)); derr != nil {
				r.logger.Warn("failed to roll back consumer registration", "error", derr)
			}
			if errors.Is(err, domain.ErrLockNotAcquired) {
				return fmt.Errorf("consumer %s on %s is already running elsewhere: %w", consumer, stream, err)
			}
			return fmt.Errorf("failed to register consumer %s: %w", consumer, err)
		}
		r.locks = append(r.locks, lock)
	}
	r.logger.Info("consumers registered", "stream", stream, "consumers", consumers)
	return nil
}

// Deregister releases the claimed names.
func (r *Registry) Deregister(ctx context.Context) error {
	var errs []error
	for _, lock := range r.locks {
		if err := lock.Unlock(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	r.locks = nil
	return errors.Join(errs...)
}
