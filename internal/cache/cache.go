package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"flash-sale/internal/domain"
	"flash-sale/internal/metrics"
)

// Loader fetches a record from the backing store. It returns
// domain.ErrNotFound when the record does not exist.
type Loader[T any] func(ctx context.Context, id int64) (T, error)

// envelope is the stored form for the logical expiry strategy. The store
// key itself never expires; ExpireAt (unix millis) marks staleness.
type envelope struct {
	Data     json.RawMessage `json:"data"`
	ExpireAt int64           `json:"expireAt"`
}

type lookupState int

const (
	stateMiss lookupState = iota
	stateHit
	stateAbsent
)

// Cache is a typed view over a Client for one key namespace.
// Plain entries live at cache:<namespace>:<id>, logical expiry envelopes at
// cache:<namespace>:logical:<id>. The two formats never share a key.
type Cache[T any] struct {
	c         *Client
	namespace string
}

func New[T any](c *Client, namespace string) *Cache[T] {
	return &Cache[T]{c: c, namespace: namespace}
}

// Key returns the store key for id.
func (k *Cache[T]) Key(id int64) string {
	return "cache:" + k.namespace + ":" + strconv.FormatInt(id, 10)
}

// LogicalKey returns the store key for the logical expiry envelope of id.
func (k *Cache[T]) LogicalKey(id int64) string {
	return "cache:" + k.namespace + ":logical:" + strconv.FormatInt(id, 10)
}

// ReadThrough returns the cached record for id, consulting loader according
// to strategy. A non-positive ttl selects the configured default for the
// strategy. Absent records yield domain.ErrNotFound.
func (k *Cache[T]) ReadThrough(ctx context.Context, id int64, loader Loader[T], ttl time.Duration, strategy Strategy) (T, error) {
	switch strategy {
	case StrategyNullCaching:
		return k.readNullCaching(ctx, id, loader, k.ttlOr(ttl, k.c.opts.TTL))
	case StrategyMutex:
		return k.readMutex(ctx, id, loader, k.ttlOr(ttl, k.c.opts.TTL))
	case StrategyLogicalExpire:
		return k.readLogical(ctx, id, loader, k.ttlOr(ttl, k.c.opts.LogicalTTL))
	default:
		var zero T
		return zero, fmt.Errorf("unknown cache strategy %d: %w", int(strategy), domain.ErrInvalidArgument)
	}
}

// Set writes a plain cached value with ttl.
func (k *Cache[T]) Set(ctx context.Context, id int64, value T, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", k.Key(id), err)
	}
	return k.c.set(ctx, k.Key(id), string(b), k.ttlOr(ttl, k.c.opts.TTL))
}

// Invalidate removes both cached forms so the next read reloads it.
func (k *Cache[T]) Invalidate(ctx context.Context, id int64) error {
	return k.c.del(ctx, k.Key(id), k.LogicalKey(id))
}

// WriteLogicalExpiry loads id and stores it in the logical expiry envelope
// without a store TTL. It is used for pre-warming and by the rebuild pool.
// If the record no longer exists the key is removed.
func (k *Cache[T]) WriteLogicalExpiry(ctx context.Context, id int64, loader Loader[T], ttl time.Duration) error {
	key := k.LogicalKey(id)
	ttl = k.ttlOr(ttl, k.c.opts.LogicalTTL)
	metrics.CacheLoadsTotal.WithLabelValues(k.namespace).Inc()
	v, err := loader(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		if delErr := k.c.del(ctx, key); delErr != nil {
			return delErr
		}
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", key, err)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	b, err := json.Marshal(envelope{
		Data:     data,
		ExpireAt: k.c.clock.Now().Add(ttl).UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode envelope for %s: %w", key, err)
	}
	return k.c.set(ctx, key, string(b), 0)
}

func (k *Cache[T]) readNullCaching(ctx context.Context, id int64, loader Loader[T], ttl time.Duration) (T, error) {
	key := k.Key(id)
	v, st, err := k.lookup(ctx, key)
	if err != nil {
		return v, err
	}
	switch st {
	case stateHit:
		metrics.CacheRequestsTotal.WithLabelValues("null", "hit").Inc()
		return v, nil
	case stateAbsent:
		metrics.CacheRequestsTotal.WithLabelValues("null", "null").Inc()
		return v, domain.ErrNotFound
	}
	metrics.CacheRequestsTotal.WithLabelValues("null", "miss").Inc()
	return k.load(ctx, id, key, loader, ttl)
}

func (k *Cache[T]) readMutex(ctx context.Context, id int64, loader Loader[T], ttl time.Duration) (T, error) {
	key := k.Key(id)
	v, st, err := k.lookup(ctx, key)
	if err != nil {
		return v, err
	}
	switch st {
	case stateHit:
		metrics.CacheRequestsTotal.WithLabelValues("mutex", "hit").Inc()
		return v, nil
	case stateAbsent:
		metrics.CacheRequestsTotal.WithLabelValues("mutex", "null").Inc()
		return v, domain.ErrNotFound
	}
	metrics.CacheRequestsTotal.WithLabelValues("mutex", "miss").Inc()

	// Callers in this process share one rebuild. It runs detached from any
	// single caller so one caller leaving does not fail the others.
	ch := k.c.group.DoChan(key, func() (interface{}, error) {
		return k.rebuildUnderLock(context.WithoutCancel(ctx), id, key, loader, ttl)
	})

	var zero T
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			metrics.CacheRequestsTotal.WithLabelValues("mutex", "timeout").Inc()
			return zero, domain.ErrRebuildTimeout
		}
		return zero, ctx.Err()
	}
}

// rebuildUnderLock takes the distributed rebuild lock, or waits for whoever
// holds it, re-checking the cache between attempts until MaxWait elapses.
func (k *Cache[T]) rebuildUnderLock(ctx context.Context, id int64, key string, loader Loader[T], ttl time.Duration) (T, error) {
	var zero T
	deadline := time.Now().Add(k.c.opts.MaxWait)
	for {
		lock, err := k.c.locker.TryLock(ctx, key, k.c.opts.LockTTL)
		if err == nil {
			return k.loadHoldingLock(ctx, lock, id, key, loader, ttl)
		}
		if !errors.Is(err, domain.ErrLockNotAcquired) {
			return zero, err
		}

		if time.Until(deadline) < k.c.opts.RetryInterval {
			metrics.CacheRequestsTotal.WithLabelValues("mutex", "timeout").Inc()
			return zero, domain.ErrRebuildTimeout
		}
		if err := sleep(ctx, k.c.opts.RetryInterval); err != nil {
			return zero, err
		}

		v, st, err := k.lookup(ctx, key)
		if err != nil {
			return zero, err
		}
		switch st {
		case stateHit:
			return v, nil
		case stateAbsent:
			return zero, domain.ErrNotFound
		}
	}
}

func (k *Cache[T]) loadHoldingLock(ctx context.Context, lock domain.Lock, id int64, key string, loader Loader[T], ttl time.Duration) (T, error) {
	defer func() {
		if err := lock.Unlock(ctx); err != nil {
			k.c.logger.Warn("failed to release rebuild lock", "key", key, "error", err)
		}
	}()

	// Someone may have rebuilt between our miss and the lock.
	v, st, err := k.lookup(ctx, key)
	if err != nil {
		return v, err
	}
	switch st {
	case stateHit:
		return v, nil
	case stateAbsent:
		return v, domain.ErrNotFound
	}
	return k.load(ctx, id, key, loader, ttl)
}

func (k *Cache[T]) readLogical(ctx context.Context, id int64, loader Loader[T], ttl time.Duration) (T, error) {
	key := k.LogicalKey(id)
	var zero T

	raw, found, err := k.c.get(ctx, key)
	if err != nil {
		return zero, err
	}
	if !found || raw == absent {
		// Cold keys are a pre-warming problem, not ours to fill inline.
		metrics.CacheRequestsTotal.WithLabelValues("logical", "miss").Inc()
		return zero, domain.ErrNotFound
	}
	v, expireAt, err := decodeEnvelope[T](raw)
	if err != nil {
		k.c.logger.Warn("discarding undecodable cache entry", "key", key, "error", err)
		metrics.CacheRequestsTotal.WithLabelValues("logical", "miss").Inc()
		return zero, domain.ErrNotFound
	}

	if k.c.clock.Now().UnixMilli() < expireAt {
		metrics.CacheRequestsTotal.WithLabelValues("logical", "hit").Inc()
		return v, nil
	}
	metrics.CacheRequestsTotal.WithLabelValues("logical", "stale").Inc()
	k.scheduleRebuild(ctx, id, key, loader, ttl)
	return v, nil
}

// scheduleRebuild hands the refresh to the bounded pool if this caller wins
// the rebuild lock. It never waits.
func (k *Cache[T]) scheduleRebuild(ctx context.Context, id int64, key string, loader Loader[T], ttl time.Duration) {
	lock, err := k.c.locker.TryLock(ctx, key, k.c.opts.LockTTL)
	if err != nil {
		if !errors.Is(err, domain.ErrLockNotAcquired) {
			k.c.logger.Warn("rebuild lock unavailable, serving stale value", "key", key, "error", err)
		}
		return
	}
	unlock := func(ctx context.Context) {
		if err := lock.Unlock(ctx); err != nil {
			k.c.logger.Warn("failed to release rebuild lock", "key", key, "error", err)
		}
	}

	// A rebuild may have finished between our read and the lock.
	if raw, found, err := k.c.get(ctx, key); err == nil && found && raw != absent {
		if _, expireAt, err := decodeEnvelope[T](raw); err == nil && k.c.clock.Now().UnixMilli() < expireAt {
			unlock(ctx)
			return
		}
	}

	if !k.c.pool.TryAcquire(1) {
		metrics.CacheRebuildsTotal.WithLabelValues("rejected").Inc()
		k.c.logger.Warn("rebuild pool saturated, serving stale value", "key", key)
		unlock(ctx)
		return
	}

	k.c.rebuilds.Add(1)
	go func() {
		defer k.c.rebuilds.Done()
		defer k.c.pool.Release(1)

		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), k.c.opts.LockTTL)
		defer cancel()

		err := k.WriteLogicalExpiry(rctx, id, loader, ttl)
		unlock(rctx)
		switch {
		case err == nil, errors.Is(err, domain.ErrNotFound):
			metrics.CacheRebuildsTotal.WithLabelValues("ok").Inc()
		default:
			metrics.CacheRebuildsTotal.WithLabelValues("failed").Inc()
			k.c.logger.Error("cache rebuild failed", "key", key, "error", err)
		}
	}()
}

// lookup reads a plain (non-envelope) value.
func (k *Cache[T]) lookup(ctx context.Context, key string) (T, lookupState, error) {
	var v T
	raw, found, err := k.c.get(ctx, key)
	if err != nil {
		return v, stateMiss, err
	}
	if !found {
		return v, stateMiss, nil
	}
	if raw == absent {
		return v, stateAbsent, nil
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		k.c.logger.Warn("discarding undecodable cache entry", "key", key, "error", err)
		var zero T
		return zero, stateMiss, nil
	}
	return v, stateHit, nil
}

// load calls the loader and caches its answer, including absence.
// Failing to write the cache does not fail the read.
func (k *Cache[T]) load(ctx context.Context, id int64, key string, loader Loader[T], ttl time.Duration) (T, error) {
	metrics.CacheLoadsTotal.WithLabelValues(k.namespace).Inc()
	v, err := loader(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		if err := k.c.set(ctx, key, absent, k.c.opts.NullTTL); err != nil {
			k.c.logger.Warn("failed to cache absent marker", "key", key, "error", err)
		}
		return v, domain.ErrNotFound
	}
	if err != nil {
		return v, fmt.Errorf("failed to load %s: %w", key, err)
	}

	b, err := json.Marshal(v)
	if err != nil {
		return v, fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := k.c.set(ctx, key, string(b), ttl); err != nil {
		k.c.logger.Warn("failed to populate cache", "key", key, "error", err)
	}
	return v, nil
}

func (k *Cache[T]) ttlOr(ttl, def time.Duration) time.Duration {
	if ttl > 0 {
		return ttl
	}
	return def
}

func decodeEnvelope[T any](raw string) (T, int64, error) {
	var v T
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return v, 0, err
	}
	if err := json.Unmarshal(env.Data, &v); err != nil {
		return v, 0, err
	}
	return v, env.ExpireAt, nil
}
