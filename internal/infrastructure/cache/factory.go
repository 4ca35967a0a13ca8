package cache

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	invoiceapp "github.com/invoiceflow/backend/internal/application/invoice"
	"github.com/invoiceflow/backend/internal/infrastructure/config"
)

// VendorMappingCacheFactory creates the vendor mapping cache selected by configuration
type VendorMappingCacheFactory struct {
	cacheConfig           config.CacheConfig
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// FactoryOption is a functional option for configuring the factory
type FactoryOption func(*VendorMappingCacheFactory)

// WithLogger sets the logger for the factory and the caches it creates
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(f *VendorMappingCacheFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable Redis falls back to the in-memory cache.
// Default is true.
func WithInMemoryFallback(allow bool) FactoryOption {
	return func(f *VendorMappingCacheFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewVendorMappingCacheFactory creates a new factory
func NewVendorMappingCacheFactory(cacheCfg config.CacheConfig, redisCfg config.RedisConfig, opts ...FactoryOption) *VendorMappingCacheFactory {
	f := &VendorMappingCacheFactory{
		cacheConfig:           cacheCfg,
		redisConfig:           redisCfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create returns the configured cache and a function releasing its resources.
// A "none" cache type yields a nil cache.
func (f *VendorMappingCacheFactory) Create(ctx context.Context) (invoiceapp.VendorMappingCache, func() error, error) {
	noop := func() error { return nil }

	switch f.cacheConfig.Type {
	case "none":
		f.logger.Info("vendor mapping cache disabled")
		return nil, noop, nil
	case "redis":
		client, err := NewRedisClient(ctx, f.redisConfig)
		if err == nil {
			f.logger.Info("using Redis vendor mapping cache", zap.String("addr", f.redisConfig.Addr()))
			c := NewRedisVendorMappingCache(client, f.cacheConfig.TTL, f.logger.Named("mapping_cache"))
			return c, c.Close, nil
		}
		if !f.allowInMemoryFallback {
			return nil, noop, fmt.Errorf("redis required for vendor mapping cache but unavailable: %w", err)
		}
		f.logger.Warn("Redis unavailable, falling back to in-memory vendor mapping cache", zap.Error(err))
	}

	c := NewInMemoryVendorMappingCache(
		WithInMemoryTTL(f.cacheConfig.TTL),
		WithInMemoryLogger(f.logger.Named("mapping_cache")),
	)
	return c, func() error { c.Stop(); return nil }, nil
}
