package cache

import "time"

// MemoryOption configures MemoryCache.
type MemoryOption func(*MemoryConfig)

// MemoryConfig holds in-memory cache configuration.
type MemoryConfig struct {
	MaxSize         int
	CleanupInterval time.Duration
}

// WithMaxSize sets the eviction bound.
func WithMaxSize(n int) MemoryOption {
	return func(c *MemoryConfig) {
		if n > 0 {
			c.MaxSize = n
		}
	}
}

// WithCleanupInterval sets the expired-entry sweep interval.
func WithCleanupInterval(d time.Duration) MemoryOption {
	return func(c *MemoryConfig) {
		if d > 0 {
			c.CleanupInterval = d
		}
	}
}

// RedisOption configures RedisCache.
type RedisOption func(*RedisConfig)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	Prefix       string
}

// WithAddr sets the Redis address.
func WithAddr(addr string) RedisOption {
	return func(c *RedisConfig) {
		if addr != "" {
			c.Addr = addr
		}
	}
}

// WithCredentials sets password and database.
func WithCredentials(password string, db int) RedisOption {
	return func(c *RedisConfig) {
		c.Password = password
		c.DB = db
	}
}

// WithPool sets pool sizing.
func WithPool(size, minIdle int) RedisOption {
	return func(c *RedisConfig) {
		c.PoolSize = size
		c.MinIdleConns = minIdle
	}
}

// WithPrefix sets the key namespace.
func WithPrefix(prefix string) RedisOption {
	return func(c *RedisConfig) {
		if prefix != "" {
			c.Prefix = prefix
		}
	}
}
