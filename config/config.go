// Package config holds the flat set of parameters the composition root in
// cmd/memcached needs to construct the cache, pool and listener. It
// follows the rest of this module's convention of small, explicit
// constructors over a configuration framework.
package config

import (
	"flag"
	"time"

	"github.com/skipor/memcached/log"
)

// Config is the full set of tunables for one server instance.
type Config struct {
	// ListenAddr is the TCP address the server accepts connections on.
	ListenAddr string

	// MaxItemSize bounds a single value's byte length; larger sets are
	// rejected and their data block is discarded without being stored.
	MaxItemSize int
	// TotalCacheBytes is split evenly across StripeCount stripes.
	TotalCacheBytes int64
	// StripeCount is the number of independently-locked cache shards.
	StripeCount int

	// PoolLowWatermark is the number of persistent workers kept alive for
	// the lifetime of the pool.
	PoolLowWatermark int
	// PoolHighWatermark bounds how many workers, persistent plus elastic,
	// can exist at once.
	PoolHighWatermark int
	// PoolMaxQueue bounds the task backlog: a submission is rejected once
	// more than PoolMaxQueue tasks are waiting for a free worker.
	PoolMaxQueue int
	// PoolIdleTimeout is how long an elastic worker waits for a task
	// before exiting.
	PoolIdleTimeout time.Duration

	// LogLevel selects the minimum severity the logger emits.
	LogLevel log.Level
}

// Default returns the configuration used when no flags override it.
func Default() Config {
	return Config{
		ListenAddr:        ":11211",
		MaxItemSize:       1 << 20, // 1MiB
		TotalCacheBytes:   64 << 20,
		StripeCount:       16,
		PoolLowWatermark:  4,
		PoolHighWatermark: 32,
		PoolMaxQueue:      256,
		PoolIdleTimeout:   30 * time.Second,
		LogLevel:          log.InfoLevel,
	}
}

// BindFlags registers c's fields on fs, using c's current values as
// defaults. Call after Default() (or after loading overrides some other
// way) and before fs.Parse.
func (c *Config) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.ListenAddr, "listen", c.ListenAddr, "TCP address to accept connections on")
	fs.IntVar(&c.MaxItemSize, "max-item-size", c.MaxItemSize, "maximum size in bytes of a single stored value")
	fs.Int64Var(&c.TotalCacheBytes, "cache-bytes", c.TotalCacheBytes, "total cache capacity in bytes, split across stripes")
	fs.IntVar(&c.StripeCount, "stripes", c.StripeCount, "number of independently-locked cache stripes")
	fs.IntVar(&c.PoolLowWatermark, "pool-low", c.PoolLowWatermark, "persistent worker count")
	fs.IntVar(&c.PoolHighWatermark, "pool-high", c.PoolHighWatermark, "maximum worker count, persistent plus elastic")
	fs.IntVar(&c.PoolMaxQueue, "pool-queue", c.PoolMaxQueue, "reject submissions once more than this many tasks are waiting for a free worker")
	fs.DurationVar(&c.PoolIdleTimeout, "pool-idle", c.PoolIdleTimeout, "idle time before an elastic worker exits")
}
