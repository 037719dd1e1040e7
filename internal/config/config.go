// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all configuration for the api, worker and ctl binaries.
// The mapstructure tags are used by Viper to unmarshal the data.
type Config struct {
	Redis     RedisConfig     `mapstructure:"redis"`
	Etcd      EtcdConfig      `mapstructure:"etcd"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Lock      LockConfig      `mapstructure:"lock"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Admission AdmissionConfig `mapstructure:"admission"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Log       LogConfig       `mapstructure:"log"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr" validate:"required"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db" validate:"gte=0"`
	PoolSize    int           `mapstructure:"pool_size" validate:"gte=0"`
	OpTimeout   time.Duration `mapstructure:"op_timeout" validate:"gt=0"`
	DialTimeout time.Duration `mapstructure:"dial_timeout" validate:"gt=0"`
}

type EtcdConfig struct {
	Endpoints []string      `mapstructure:"endpoints"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=postgres sqlite"`
	DSN    string `mapstructure:"dsn" validate:"required"`
	// AutoMigrate creates the voucher, order and shop tables on startup.
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

type LockConfig struct {
	Backend string `mapstructure:"backend" validate:"oneof=redis etcd"`
	// WatchdogInterval enables TTL renewal for redis locks when positive.
	WatchdogInterval time.Duration `mapstructure:"watchdog_interval" validate:"gte=0"`
}

type CacheConfig struct {
	TTL            time.Duration `mapstructure:"ttl" validate:"gt=0"`
	NullTTL        time.Duration `mapstructure:"null_ttl" validate:"gt=0"`
	LogicalTTL     time.Duration `mapstructure:"logical_ttl" validate:"gt=0"`
	LockTTL        time.Duration `mapstructure:"lock_ttl" validate:"gt=0"`
	RetryInterval  time.Duration `mapstructure:"retry_interval" validate:"gt=0"`
	MaxWait        time.Duration `mapstructure:"max_wait" validate:"gt=0"`
	RebuildWorkers int64         `mapstructure:"rebuild_workers" validate:"gt=0"`
	// HotShops are pre-warmed for the logical expiry strategy by the scheduler.
	HotShops    []int64 `mapstructure:"hot_shops"`
	WarmSpec    string  `mapstructure:"warm_spec"`
	DefaultMode string  `mapstructure:"default_mode" validate:"oneof=null mutex logical"`
}

type AdmissionConfig struct {
	// FusedEnqueue makes the admission script append the intent to the order
	// stream itself. Only valid with the redis queue backend.
	FusedEnqueue bool   `mapstructure:"fused_enqueue"`
	Sequence     string `mapstructure:"sequence" validate:"required"`
}

type QueueConfig struct {
	Backend      string        `mapstructure:"backend" validate:"oneof=redis memory"`
	Stream       string        `mapstructure:"stream" validate:"required"`
	Group        string        `mapstructure:"group" validate:"required"`
	Block        time.Duration `mapstructure:"block" validate:"gt=0"`
	Batch        int64         `mapstructure:"batch" validate:"gt=0"`
	ClaimMinIdle time.Duration `mapstructure:"claim_min_idle" validate:"gt=0"`
	MemoryCap    int           `mapstructure:"memory_capacity" validate:"gt=0"`
}

type WorkerConfig struct {
	Consumer    string        `mapstructure:"consumer" validate:"required"`
	Concurrency int           `mapstructure:"concurrency" validate:"gte=1,lte=64"`
	LockTTL     time.Duration `mapstructure:"lock_ttl" validate:"gt=0"`
	RegistryTTL time.Duration `mapstructure:"registry_ttl" validate:"gt=0"`
	SweepSpec   string        `mapstructure:"sweep_spec" validate:"required"`
	MaxRetries  int           `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	Backoff     time.Duration `mapstructure:"backoff" validate:"gte=0"`
}

type HTTPConfig struct {
	ListenAddr       string        `mapstructure:"listen_addr" validate:"required"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	AdmissionTimeout time.Duration `mapstructure:"admission_timeout" validate:"gt=0"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 0)
	v.SetDefault("redis.op_timeout", "500ms")
	v.SetDefault("redis.dial_timeout", "5s")

	v.SetDefault("etcd.endpoints", []string{"localhost:2379"})
	v.SetDefault("etcd.timeout", "5s")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "file:flashsale.db?_busy_timeout=5000")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("lock.backend", "redis")
	v.SetDefault("lock.watchdog_interval", "0s")

	v.SetDefault("cache.ttl", "30m")
	v.SetDefault("cache.null_ttl", "2m")
	v.SetDefault("cache.logical_ttl", "20s")
	v.SetDefault("cache.lock_ttl", "10s")
	v.SetDefault("cache.retry_interval", "50ms")
	v.SetDefault("cache.max_wait", "2s")
	v.SetDefault("cache.rebuild_workers", 10)
	v.SetDefault("cache.warm_spec", "@every 10s")
	v.SetDefault("cache.default_mode", "null")

	v.SetDefault("admission.fused_enqueue", false)
	v.SetDefault("admission.sequence", "order")

	v.SetDefault("queue.backend", "redis")
	v.SetDefault("queue.stream", "stream.orders")
	v.SetDefault("queue.group", "g1")
	v.SetDefault("queue.block", "2s")
	v.SetDefault("queue.batch", 1)
	v.SetDefault("queue.claim_min_idle", "1m")
	v.SetDefault("queue.memory_capacity", 1024*1024)

	v.SetDefault("worker.consumer", "c1")
	v.SetDefault("worker.concurrency", 1)
	v.SetDefault("worker.lock_ttl", "30s")
	v.SetDefault("worker.registry_ttl", "6s")
	v.SetDefault("worker.sweep_spec", "@every 30s")
	v.SetDefault("worker.max_retries", 3)
	v.SetDefault("worker.backoff", "200ms")

	v.SetDefault("http.listen_addr", ":8081")
	v.SetDefault("http.shutdown_timeout", "5s")
	v.SetDefault("http.admission_timeout", "1s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "flash-sale")
}

// Load loads configuration from file and environment variables.
// Environment variables use the FLASHSALE_ prefix, e.g. FLASHSALE_REDIS_ADDR.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	v.SetEnvPrefix("flashsale")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No file: defaults and env vars are enough.
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate runs struct validation plus the cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Admission.FusedEnqueue && c.Queue.Backend != "redis" {
		return fmt.Errorf("invalid config: admission.fused_enqueue requires queue.backend=redis")
	}
	if c.Lock.Backend == "etcd" && len(c.Etcd.Endpoints) == 0 {
		return fmt.Errorf("invalid config: lock.backend=etcd requires etcd.endpoints")
	}
	return nil
}
