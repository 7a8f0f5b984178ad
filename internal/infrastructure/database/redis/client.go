package redis

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AgriBot-NLU/pkg/errors"
)

var (
	ErrClientClosed     = errors.New(errors.ErrCodeCacheError, "redis client is closed")
	ErrConnectionFailed = errors.New(errors.ErrCodeCacheError, "redis connection failed")
)

// connectTimeout bounds the startup ping.
const connectTimeout = 5 * time.Second

type RedisConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Mode          string        `mapstructure:"mode"` // standalone, sentinel, cluster
	Addr          string        `mapstructure:"addr"`
	MasterName    string        `mapstructure:"master_name"`
	SentinelAddrs []string      `mapstructure:"sentinel_addrs"`
	ClusterAddrs  []string      `mapstructure:"cluster_addrs"`
	Username      string        `mapstructure:"username"`
	Password      string        `mapstructure:"password"`
	DB            int           `mapstructure:"db"`
	PoolSize      int           `mapstructure:"pool_size"`
	MinIdleConns  int           `mapstructure:"min_idle_conns"`
	MaxIdleTime   time.Duration `mapstructure:"max_idle_time"`
	DialTimeout   time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	MaxRetries    int           `mapstructure:"max_retries"`
	KeyPrefix     string        `mapstructure:"key_prefix"`
	DefaultTTL    time.Duration `mapstructure:"default_ttl"`
}

// universal maps the config onto go-redis options. Addrs carries the
// sentinels in sentinel mode and the seed nodes in cluster mode.
func (cfg *RedisConfig) universal() *redis.UniversalOptions {
	opts := &redis.UniversalOptions{
		Addrs:           []string{cfg.Addr},
		Username:        cfg.Username,
		Password:        cfg.Password,
		DB:              cfg.DB,
		PoolSize:        cfg.PoolSize,
		MinIdleConns:    cfg.MinIdleConns,
		ConnMaxIdleTime: cfg.MaxIdleTime,
		DialTimeout:     cfg.DialTimeout,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		MaxRetries:      cfg.MaxRetries,
	}
	switch cfg.Mode {
	case "sentinel":
		opts.Addrs = cfg.SentinelAddrs
		opts.MasterName = cfg.MasterName
	case "cluster":
		opts.Addrs = cfg.ClusterAddrs
	}
	return opts
}

// Client is a go-redis universal client with the service key prefix and
// default TTL attached. Commands go straight to the embedded client.
type Client struct {
	redis.UniversalClient
	config RedisConfig
	logger logging.Logger
	closed atomic.Bool
}

// NewClient connects in the configured mode and pings once before
// returning.
func NewClient(cfg *RedisConfig, log logging.Logger) (*Client, error) {
	applyDefaults(cfg)
	if log == nil {
		log = logging.NewNopLogger()
	}

	opts := cfg.universal()
	var rdb redis.UniversalClient
	switch cfg.Mode {
	case "cluster":
		// A single seed node would otherwise select a plain client.
		rdb = redis.NewClusterClient(opts.Cluster())
	case "sentinel":
		rdb = redis.NewFailoverClient(opts.Failover())
	case "standalone":
		rdb = redis.NewClient(opts.Simple())
	default:
		log.Warn("Invalid redis mode, defaulting to standalone", logging.String("mode", cfg.Mode))
		rdb = redis.NewClient(opts.Simple())
	}

	client := newClientWithUniversal(rdb, cfg, log)
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		_ = rdb.Close()
		return nil, ErrConnectionFailed.WithCause(err)
	}

	log.Info("Redis client connected",
		logging.String("mode", cfg.Mode),
		logging.Strings("addrs", opts.Addrs),
		logging.Int("pool_size", cfg.PoolSize))
	return client, nil
}

func newClientWithUniversal(rdb redis.UniversalClient, cfg *RedisConfig, log logging.Logger) *Client {
	if cfg == nil {
		cfg = &RedisConfig{}
	}
	applyDefaults(cfg)
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Client{UniversalClient: rdb, config: *cfg, logger: log}
}

func applyDefaults(cfg *RedisConfig) {
	if cfg.Mode == "" {
		cfg.Mode = "standalone"
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = 10 * runtime.GOMAXPROCS(0)
	}
	if cfg.MinIdleConns == 0 {
		cfg.MinIdleConns = 2
	}
	if cfg.MaxIdleTime == 0 {
		cfg.MaxIdleTime = 5 * time.Minute
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 500 * time.Millisecond
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 500 * time.Millisecond
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "agrinlu:"
	}
	if cfg.DefaultTTL == 0 {
		cfg.DefaultTTL = 10 * time.Minute
	}
}

// Ping shadows the embedded command so that readiness probes get a plain
// error.
func (c *Client) Ping(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	return c.UniversalClient.Ping(ctx).Err()
}

// Close is idempotent. Commands issued afterwards fail with redis.ErrClosed.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := c.UniversalClient.Close(); err != nil {
		c.logger.Error("Failed to close Redis client", logging.Err(err))
		return err
	}
	c.logger.Info("Closed Redis client")
	return nil
}

// Config returns the effective configuration.
func (c *Client) Config() RedisConfig {
	return c.config
}

//Personal.AI order the ending
