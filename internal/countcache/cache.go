package countcache

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"
)

// Backend stores counts by key. Implementations expire entries on their own.
type Backend interface {
	Get(ctx context.Context, key string) (int64, bool, error)
	Set(ctx context.Context, key string, value int64) error
	DeletePrefix(ctx context.Context, prefix string) error
	Close() error
}

// Loader computes a count on a cache miss
type Loader func(ctx context.Context) (int64, error)

// Cache serves approximate counts. Values may be stale by up to the backend
// TTL; concurrent misses for one key share a single load.
type Cache struct {
	backend Backend
	group   singleflight.Group
	logger  *slog.Logger
}

// New creates a cache over backend
func New(backend Backend, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{backend: backend, logger: logger}
}

// Open builds the backend named in cfg
func Open(cfg Config, logger *slog.Logger) (*Cache, error) {
	switch cfg.Backend {
	case BackendMemory, "":
		return New(NewMemory(cfg.Size, cfg.TTL), logger), nil
	case BackendRedis:
		backend, err := NewRedis(cfg)
		if err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		return New(backend, logger), nil
	default:
		return nil, fmt.Errorf("unknown count cache backend %q", cfg.Backend)
	}
}

// Count returns the cached count for (scope, params), calling load on a
// miss. Backend failures are logged and fall through to load.
func (c *Cache) Count(ctx context.Context, scope string, params any, load Loader) (int64, error) {
	key, err := countKey(scope, params)
	if err != nil {
		return 0, err
	}

	if v, ok, err := c.backend.Get(ctx, key); err != nil {
		c.logger.Warn("count cache get failed", "key", key, "error", err)
	} else if ok {
		return v, nil
	}

	// The shared load must outlive whichever caller started it
	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		v, err := load(loadCtx)
		if err != nil {
			return int64(0), err
		}
		if err := c.backend.Set(loadCtx, key, v); err != nil {
			c.logger.Warn("count cache set failed", "key", key, "error", err)
		}
		return v, nil
	})

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return 0, res.Err
		}
		return res.Val.(int64), nil
	}
}

// Invalidate drops every cached count in scope
func (c *Cache) Invalidate(ctx context.Context, scope string) {
	if err := c.backend.DeletePrefix(ctx, scopePrefix(scope)); err != nil {
		c.logger.Warn("count cache invalidate failed", "scope", scope, "error", err)
	}
}

// Close releases the backend
func (c *Cache) Close() error {
	return c.backend.Close()
}
