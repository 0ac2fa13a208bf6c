package countcache

import "time"

// Backend names accepted by Config.Backend
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds count cache settings
type Config struct {
	// Backend is "memory" or "redis"
	Backend string

	// TTL bounds how stale a cached count can be
	TTL time.Duration

	// Size is the maximum number of entries for the memory backend
	Size int

	// RedisURL is the Redis connection URL (e.g., redis://localhost:6379)
	RedisURL string

	// Pool settings
	PoolSize     int
	MinIdleConns int
}

// DefaultConfig returns sensible defaults for the count cache
func DefaultConfig() Config {
	return Config{
		Backend:      BackendMemory,
		TTL:          5 * time.Minute,
		Size:         1024,
		RedisURL:     "redis://localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
	}
}
