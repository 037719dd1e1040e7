// internal/infra/redis/redis_locker.go
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"flash-sale/internal/domain"
	"flash-sale/internal/metrics"
)

const backendName = "redis"

// unlockScript deletes the lock only if it still carries our token.
var unlockScript = goredis.NewScript(`
if redis.call('get', KEYS[1]) == ARGV[1] then
  return redis.call('del', KEYS[1])
end
return 0
`)

// renewScript extends the expiry only if the lock still carries our token.
var renewScript = goredis.NewScript(`
if redis.call('get', KEYS[1]) == ARGV[1] then
  return redis.call('pexpire', KEYS[1], ARGV[2])
end
return 0
`)

// LockerOption configures a redis locker.
type LockerOption func(*redisLocker)

// WithWatchdog renews held locks every interval until they are released.
func WithWatchdog(interval time.Duration) LockerOption {
	return func(l *redisLocker) {
		l.watchdog = interval
	}
}

// redisLocker implements domain.Locker with SET NX PX.
type redisLocker struct {
	client   goredis.Cmdable
	prefix   string // unique per process
	seq      atomic.Uint64
	watchdog time.Duration
	logger   *slog.Logger
}

// NewRedisLocker creates a locker whose holder tokens are unique per process
// and per acquisition.
func NewRedisLocker(client goredis.Cmdable, logger *slog.Logger, opts ...LockerOption) domain.Locker {
	l := &redisLocker{
		client: client,
		prefix: uuid.NewString(),
		logger: logger.With("component", "redis-locker"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// TryLock makes a single SET NX attempt and never waits for the holder.
func (l *redisLocker) TryLock(ctx context.Context, name string, ttl time.Duration) (domain.Lock, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("lock %s ttl must be positive: %w", name, domain.ErrInvalidArgument)
	}
	key := LockPrefix + name
	token := l.prefix + "-" + strconv.FormatUint(l.seq.Add(1), 10)

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		metrics.LockAcquireTotal.WithLabelValues(backendName, "error").Inc()
		return nil, storeErr("acquire lock "+name, err)
	}
	if !ok {
		metrics.LockAcquireTotal.WithLabelValues(backendName, "contended").Inc()
		return nil, domain.ErrLockNotAcquired
	}
	metrics.LockAcquireTotal.WithLabelValues(backendName, "acquired").Inc()

	lock := &redisLock{
		client: l.client,
		name:   name,
		key:    key,
		token:  token,
		ttl:    ttl,
		logger: l.logger,
	}
	if l.watchdog > 0 {
		lock.startWatchdog(l.watchdog)
	}
	return lock, nil
}

// redisLock implements domain.Lock.
type redisLock struct {
	client goredis.Cmdable
	name   string
	key    string
	token  string
	ttl    time.Duration
	logger *slog.Logger

	stopOnce sync.Once
	stop     context.CancelFunc
	done     chan struct{}
}

func (l *redisLock) Name() string  { return l.name }
func (l *redisLock) Token() string { return l.token }

// Unlock releases the lock with an atomic compare-and-delete. A lock that
// expired or was taken over by another holder is left untouched.
func (l *redisLock) Unlock(ctx context.Context) error {
	l.stopWatchdog()

	n, err := unlockScript.Run(ctx, l.client, []string{l.key}, l.token).Int64()
	if err != nil {
		return storeErr("release lock "+l.name, err)
	}
	if n == 0 {
		metrics.LockReleaseMismatchTotal.WithLabelValues(backendName).Inc()
		l.logger.Warn("lock release ignored, holder token no longer matches", "lock", l.name)
	}
	return nil
}

func (l *redisLock) startWatchdog(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	l.stop = cancel
	l.done = make(chan struct{})

	go func() {
		defer close(l.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := renewScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int64()
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					l.logger.Warn("lock renewal failed", "lock", l.name, "error", err)
					continue
				}
				if n == 0 {
					l.logger.Warn("lock lost before renewal, stopping watchdog", "lock", l.name)
					return
				}
			}
		}
	}()
}

func (l *redisLock) stopWatchdog() {
	l.stopOnce.Do(func() {
		if l.stop != nil {
			l.stop()
			<-l.done
		}
	})
}
