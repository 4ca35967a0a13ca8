package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	invoiceapp "github.com/invoiceflow/backend/internal/application/invoice"
	"github.com/invoiceflow/backend/internal/domain/invoice"
	"github.com/invoiceflow/backend/internal/infrastructure/config"
)

// DefaultKeyPrefix namespaces vendor mapping keys in a shared Redis
const DefaultKeyPrefix = "vendor_mapping:"

// Ensure RedisVendorMappingCache implements VendorMappingCache
var _ invoiceapp.VendorMappingCache = (*RedisVendorMappingCache)(nil)

// RedisVendorMappingCache shares resolved vendor mappings across instances
type RedisVendorMappingCache struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewRedisVendorMappingCache creates a cache on an existing client
func NewRedisVendorMappingCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisVendorMappingCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisVendorMappingCache{
		client:    client,
		keyPrefix: DefaultKeyPrefix,
		ttl:       ttl,
		logger:    logger,
	}
}

func (c *RedisVendorMappingCache) key(vendorName string) string {
	return c.keyPrefix + vendorName
}

// Get returns a cached mapping. Redis failures count as a miss.
func (c *RedisVendorMappingCache) Get(ctx context.Context, vendorName string) (*invoice.VendorMapping, bool) {
	data, err := c.client.Get(ctx, c.key(vendorName)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("vendor mapping cache read failed", zap.String("vendor_name", vendorName), zap.Error(err))
		}
		return nil, false
	}
	mapping, err := decodeMapping(data)
	if err != nil {
		c.logger.Warn("discarding undecodable cached vendor mapping", zap.String("vendor_name", vendorName), zap.Error(err))
		return nil, false
	}
	return mapping, true
}

// Set caches a mapping with the configured TTL
func (c *RedisVendorMappingCache) Set(ctx context.Context, vendorName string, mapping *invoice.VendorMapping) error {
	if mapping == nil {
		return nil
	}
	data, err := encodeMapping(mapping)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(vendorName), data, c.ttl).Err()
}

// Invalidate drops one vendor name
func (c *RedisVendorMappingCache) Invalidate(ctx context.Context, vendorName string) error {
	return c.client.Del(ctx, c.key(vendorName)).Err()
}

// InvalidateAll removes every key under the cache prefix
func (c *RedisVendorMappingCache) InvalidateAll(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.keyPrefix+"*", 100).Iterator()
	keys := make([]string, 0, 16)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan vendor mapping keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// Ping checks that Redis is reachable
func (c *RedisVendorMappingCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the underlying client
func (c *RedisVendorMappingCache) Close() error {
	return c.client.Close()
}
