// Package app wires the infrastructure shared by the api, worker and ctl
// binaries from one config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"
	clientv3 "go.etcd.io/etcd/client/v3"
	"gorm.io/gorm"

	"flash-sale/internal/cache"
	"flash-sale/internal/clock"
	"flash-sale/internal/config"
	"flash-sale/internal/domain"
	"flash-sale/internal/infra/etcd"
	"flash-sale/internal/infra/gormstore"
	"flash-sale/internal/infra/memqueue"
	rediskv "flash-sale/internal/infra/redis"
	"flash-sale/internal/usecase"
	"flash-sale/internal/worker"
)

// Infra holds the connected stores and the adapters built on them.
type Infra struct {
	Config *config.Config
	Logger *slog.Logger
	Clock  clock.Clock

	Redis *goredis.Client
	Etcd  *clientv3.Client // nil unless lock.backend is etcd
	DB    *gorm.DB

	Locker domain.Locker
	Gate   *rediskv.AdmissionGate
	IDs    *rediskv.IDGenerator
	Queue  domain.OrderQueue
	// Stream is the stream queue when queue.backend is redis, Memory the
	// in-process queue otherwise.
	Stream *rediskv.StreamQueue
	Memory *memqueue.Queue

	closers []func() error
}

// Open connects to every store the config names. On error, whatever was
// already opened is closed again.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *Infra, err error) {
	in := &Infra{Config: cfg, Logger: logger, Clock: clock.NewSystem()}
	defer func() {
		if err != nil {
			_ = in.Close()
		}
	}()

	in.Redis, err = rediskv.NewClient(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	in.closers = append(in.closers, in.Redis.Close)
	logger.Info("connected to redis", "addr", cfg.Redis.Addr)

	switch cfg.Lock.Backend {
	case "etcd":
		in.Etcd, err = etcd.NewClient(cfg.Etcd)
		if err != nil {
			return nil, err
		}
		in.closers = append(in.closers, in.Etcd.Close)
		in.Locker = etcd.NewEtcdLocker(in.Etcd, logger)
		logger.Info("connected to etcd", "endpoints", cfg.Etcd.Endpoints)
	default:
		var opts []rediskv.LockerOption
		if cfg.Lock.WatchdogInterval > 0 {
			opts = append(opts, rediskv.WithWatchdog(cfg.Lock.WatchdogInterval))
		}
		in.Locker = rediskv.NewRedisLocker(in.Redis, logger, opts...)
	}

	in.DB, err = gormstore.Open(cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	if sqlDB, derr := in.DB.DB(); derr == nil {
		in.closers = append(in.closers, sqlDB.Close)
	}

	switch cfg.Queue.Backend {
	case "memory":
		in.Memory = memqueue.New(cfg.Queue.MemoryCap)
		in.closers = append(in.closers, func() error { in.Memory.Close(); return nil })
		in.Queue = in.Memory
	default:
		in.Stream = rediskv.NewStreamQueue(in.Redis, rediskv.StreamOptions{
			Stream:       cfg.Queue.Stream,
			Group:        cfg.Queue.Group,
			Batch:        cfg.Queue.Batch,
			ClaimMinIdle: cfg.Queue.ClaimMinIdle,
		}, logger)
		if err = in.Stream.EnsureGroup(ctx); err != nil {
			return nil, err
		}
		in.Queue = in.Stream
	}

	var gateOpts rediskv.GateOptions
	if cfg.Admission.FusedEnqueue {
		gateOpts.FusedStream = cfg.Queue.Stream
	}
	in.Gate = rediskv.NewAdmissionGate(in.Redis, in.Clock, gateOpts, logger)
	in.IDs = rediskv.NewIDGenerator(in.Redis, in.Clock)

	return in, nil
}

// Close releases every connection in reverse order of opening.
func (in *Infra) Close() error {
	var errs []error
	for i := len(in.closers) - 1; i >= 0; i-- {
		if err := in.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	in.closers = nil
	return errors.Join(errs...)
}

// SeckillService builds the admission use case.
func (in *Infra) SeckillService() *usecase.SeckillService {
	return usecase.NewSeckillService(
		in.Gate,
		in.Queue,
		in.IDs,
		gormstore.NewVoucherRepository(in.DB),
		in.Clock,
		in.Config.Admission.Sequence,
		in.Logger,
	)
}

// OrderService builds the order persistence use case.
func (in *Infra) OrderService() *usecase.OrderService {
	return usecase.NewOrderService(
		gormstore.NewOrderRepository(in.DB),
		in.Locker,
		in.Config.Worker.LockTTL,
		in.Logger,
	)
}

// ShopService builds the cached shop reads. The returned cache client must
// be drained with Wait on shutdown.
func (in *Infra) ShopService() (*usecase.ShopService, *cache.Client, error) {
	strategy, err := cache.ParseStrategy(in.Config.Cache.DefaultMode)
	if err != nil {
		return nil, nil, err
	}
	client := cache.NewClient(in.Redis, in.Locker, in.Clock, cache.OptionsFromConfig(in.Config.Cache), in.Logger)
	shops := usecase.NewShopService(
		gormstore.NewShopRepository(in.DB),
		cache.New[domain.Shop](client, "shop"),
		strategy,
		in.Config.Cache.HotShops,
		in.Logger,
	)
	return shops, client, nil
}

// Processor builds the order processor on the configured queue.
func (in *Infra) Processor() *worker.Processor {
	return worker.NewProcessor(
		in.Queue,
		in.OrderService(),
		worker.OptionsFromConfig(in.Config.Worker, in.Config.Queue),
		in.Logger,
	)
}

// Election returns a leader election for role, or nil when no etcd backend
// is configured. Without election every replica runs the singleton tasks,
// which are idempotent.
func (in *Infra) Election(role, nodeID string) domain.LeaderElectionManager {
	if in.Etcd == nil {
		return nil
	}
	return etcd.NewEtcdLeaderElectionManager(in.Etcd, role, nodeID, in.Config.Etcd.Timeout*3, in.Logger)
}

// Registry returns a consumer registry whose claims stay alive for the
// process lifetime: etcd sessions keep themselves alive, redis locks get a
// watchdog. The short ttl lets a crashed worker restart under its old names
// soon after.
func (in *Infra) Registry() *worker.Registry {
	ttl := in.Config.Worker.RegistryTTL
	locker := in.Locker
	if in.Etcd == nil {
		locker = rediskv.NewRedisLocker(in.Redis, in.Logger, rediskv.WithWatchdog(ttl/3))
	}
	return worker.NewRegistry(locker, ttl, in.Logger)
}

// PingRedis checks the coordination store.
func (in *Infra) PingRedis(ctx context.Context) error {
	return in.Redis.Ping(ctx).Err()
}

// PingDB checks the persistent store.
func (in *Infra) PingDB(ctx context.Context) error {
	sqlDB, err := in.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
