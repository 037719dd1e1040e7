package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"flash-sale/internal/clock"
	"flash-sale/internal/config"
	"flash-sale/internal/domain"
)

// absent is the value cached for records the backing store does not have.
const absent = ""

// Options are the timings shared by every typed cache on a Client.
type Options struct {
	TTL            time.Duration
	NullTTL        time.Duration
	LogicalTTL     time.Duration
	LockTTL        time.Duration
	RetryInterval  time.Duration
	MaxWait        time.Duration
	RebuildWorkers int64
}

// OptionsFromConfig copies the cache section of the config.
func OptionsFromConfig(cfg config.CacheConfig) Options {
	return Options{
		TTL:            cfg.TTL,
		NullTTL:        cfg.NullTTL,
		LogicalTTL:     cfg.LogicalTTL,
		LockTTL:        cfg.LockTTL,
		RetryInterval:  cfg.RetryInterval,
		MaxWait:        cfg.MaxWait,
		RebuildWorkers: cfg.RebuildWorkers,
	}
}

// Client owns the store connection, the rebuild lock and the bounded
// rebuild pool. Typed views are created with New.
type Client struct {
	rdb    goredis.Cmdable
	locker domain.Locker
	clock  clock.Clock
	opts   Options
	logger *slog.Logger

	group    singleflight.Group
	pool     *semaphore.Weighted
	rebuilds sync.WaitGroup
}

func NewClient(rdb goredis.Cmdable, locker domain.Locker, clk clock.Clock, opts Options, logger *slog.Logger) *Client {
	if opts.RebuildWorkers <= 0 {
		opts.RebuildWorkers = 1
	}
	return &Client{
		rdb:    rdb,
		locker: locker,
		clock:  clk,
		opts:   opts,
		logger: logger.With("component", "cache"),
		pool:   semaphore.NewWeighted(opts.RebuildWorkers),
	}
}

// Wait blocks until background rebuilds started so far have finished.
func (c *Client) Wait() {
	c.rebuilds.Wait()
}

// get returns the raw cached string. found is false on a miss.
func (c *Client) get(ctx context.Context, key string) (raw string, found bool, err error) {
	raw, err = c.rdb.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache get %s: %w: %w", key, domain.ErrStoreUnavailable, err)
	}
	return raw, true, nil
}

func (c *Client) set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w: %w", key, domain.ErrStoreUnavailable, err)
	}
	return nil
}

func (c *Client) del(ctx context.Context, keys ...string) error {
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache delete %v: %w: %w", keys, domain.ErrStoreUnavailable, err)
	}
	return nil
}

// sleep waits d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
