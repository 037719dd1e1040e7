// internal/infra/etcd/etcd_locker.go
package etcd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"flash-sale/internal/domain"
	"flash-sale/internal/metrics"
)

const (
	// LockPrefix 定义了 etcd 中分布式锁的根路径
	LockPrefix = "/flash-sale/locks/"

	backendName = "etcd"
)

// etcdLock 实现了 domain.Lock 接口
type etcdLock struct {
	mutex   *concurrency.Mutex
	session *concurrency.Session // 租约由 session 自动续期，相当于看门狗
	name    string
	logger  *slog.Logger
}

func (l *etcdLock) Name() string { return l.name }

// Token is the mutex's own key, which embeds the session lease id.
func (l *etcdLock) Token() string { return l.mutex.Key() }

// Unlock deletes our mutex key and closes the session. If the lease already
// expired the key is gone and nothing else is touched.
func (l *etcdLock) Unlock(ctx context.Context) error {
	defer func() {
		// 关闭会话，撤销租约
		_ = l.session.Close()
	}()

	select {
	case <-l.session.Done():
		metrics.LockReleaseMismatchTotal.WithLabelValues(backendName).Inc()
		l.logger.Warn("lock release ignored, session lease already expired", "lock", l.name)
		return nil
	default:
	}

	if err := l.mutex.Unlock(ctx); err != nil {
		return fmt.Errorf("failed to unlock %s: %w: %w", l.name, domain.ErrStoreUnavailable, err)
	}
	return nil
}

// etcdLocker 实现了 domain.Locker 接口
type etcdLocker struct {
	client *clientv3.Client
	logger *slog.Logger
}

// NewEtcdLocker 创建一个新的 etcdLocker 实例
func NewEtcdLocker(client *clientv3.Client, logger *slog.Logger) domain.Locker {
	return &etcdLocker{
		client: client,
		logger: logger.With("component", "etcd-locker"),
	}
}

// TryLock 尝试获取锁，锁被占用时立即返回 ErrLockNotAcquired
func (l *etcdLocker) TryLock(ctx context.Context, name string, ttl time.Duration) (domain.Lock, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("lock %s ttl must be positive: %w", name, domain.ErrInvalidArgument)
	}

	// 每次加锁创建新会话，会话关闭或租约过期时锁自动释放
	// session 的续期跟随 client 的生命周期，而不是调用方的 ctx
	session, err := concurrency.NewSession(l.client, concurrency.WithTTL(sessionTTL(ttl)))
	if err != nil {
		metrics.LockAcquireTotal.WithLabelValues(backendName, "error").Inc()
		return nil, fmt.Errorf("failed to create etcd session for lock %s: %w: %w", name, domain.ErrStoreUnavailable, err)
	}

	mutex := concurrency.NewMutex(session, LockPrefix+name)
	if err := mutex.TryLock(ctx); err != nil {
		_ = session.Close()
		if errors.Is(err, concurrency.ErrLocked) {
			metrics.LockAcquireTotal.WithLabelValues(backendName, "contended").Inc()
			return nil, domain.ErrLockNotAcquired
		}
		metrics.LockAcquireTotal.WithLabelValues(backendName, "error").Inc()
		return nil, fmt.Errorf("failed to try acquiring etcd lock %s: %w: %w", name, domain.ErrStoreUnavailable, err)
	}
	metrics.LockAcquireTotal.WithLabelValues(backendName, "acquired").Inc()

	return &etcdLock{
		mutex:   mutex,
		session: session,
		name:    name,
		logger:  l.logger,
	}, nil
}

// sessionTTL converts ttl to whole lease seconds, rounding up.
func sessionTTL(ttl time.Duration) int {
	secs := int(math.Ceil(ttl.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}
