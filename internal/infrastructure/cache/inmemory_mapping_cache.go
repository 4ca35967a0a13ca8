package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	invoiceapp "github.com/invoiceflow/backend/internal/application/invoice"
	"github.com/invoiceflow/backend/internal/domain/invoice"
)

const (
	defaultTTL             = 5 * time.Minute
	defaultCleanupInterval = 30 * time.Second
)

// Ensure InMemoryVendorMappingCache implements VendorMappingCache
var _ invoiceapp.VendorMappingCache = (*InMemoryVendorMappingCache)(nil)

// cacheEntry holds a serialized mapping so callers never share instances
type cacheEntry struct {
	data      []byte
	expiresAt time.Time
}

func (e *cacheEntry) isExpired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// InMemoryVendorMappingCache caches resolved vendor mappings in process memory
type InMemoryVendorMappingCache struct {
	entries sync.Map // vendor name -> *cacheEntry
	ttl     time.Duration
	logger  *zap.Logger
	stopCh  chan struct{}
	stopped int32

	hits   int64
	misses int64
}

// InMemoryCacheOption is a functional option for configuring the cache
type InMemoryCacheOption func(*InMemoryVendorMappingCache)

// WithInMemoryTTL sets how long a resolved mapping stays cached
func WithInMemoryTTL(ttl time.Duration) InMemoryCacheOption {
	return func(c *InMemoryVendorMappingCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithInMemoryLogger sets the logger for the cache
func WithInMemoryLogger(logger *zap.Logger) InMemoryCacheOption {
	return func(c *InMemoryVendorMappingCache) {
		c.logger = logger
	}
}

// NewInMemoryVendorMappingCache creates the cache and starts its cleanup goroutine.
// Call Stop to release the goroutine.
func NewInMemoryVendorMappingCache(opts ...InMemoryCacheOption) *InMemoryVendorMappingCache {
	c := &InMemoryVendorMappingCache{
		ttl:    defaultTTL,
		logger: zap.NewNop(),
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.cleanupExpired()
	return c
}

// Get returns a cached mapping
func (c *InMemoryVendorMappingCache) Get(ctx context.Context, vendorName string) (*invoice.VendorMapping, bool) {
	value, ok := c.entries.Load(vendorName)
	if ok {
		entry := value.(*cacheEntry)
		if !entry.isExpired(time.Now()) {
			mapping, err := decodeMapping(entry.data)
			if err == nil {
				atomic.AddInt64(&c.hits, 1)
				return mapping, true
			}
		}
		c.entries.Delete(vendorName)
	}

	atomic.AddInt64(&c.misses, 1)
	return nil, false
}

// Set caches a mapping under the vendor name
func (c *InMemoryVendorMappingCache) Set(ctx context.Context, vendorName string, mapping *invoice.VendorMapping) error {
	if mapping == nil {
		return nil
	}
	data, err := encodeMapping(mapping)
	if err != nil {
		return err
	}
	c.entries.Store(vendorName, &cacheEntry{data: data, expiresAt: time.Now().Add(c.ttl)})
	return nil
}

// Invalidate drops one vendor name
func (c *InMemoryVendorMappingCache) Invalidate(ctx context.Context, vendorName string) error {
	c.entries.Delete(vendorName)
	return nil
}

// InvalidateAll drops every cached mapping
func (c *InMemoryVendorMappingCache) InvalidateAll(ctx context.Context) error {
	c.entries.Range(func(key, _ any) bool {
		c.entries.Delete(key)
		return true
	})
	c.logger.Debug("Vendor mapping cache cleared")
	return nil
}

// Stats returns the hit and miss counters
func (c *InMemoryVendorMappingCache) Stats() (hits, misses int64) {
	return atomic.LoadInt64(&c.hits), atomic.LoadInt64(&c.misses)
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (c *InMemoryVendorMappingCache) Stop() {
	if atomic.CompareAndSwapInt32(&c.stopped, 0, 1) {
		close(c.stopCh)
	}
}

func (c *InMemoryVendorMappingCache) cleanupExpired() {
	ticker := time.NewTicker(defaultCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case now := <-ticker.C:
			c.entries.Range(func(key, value any) bool {
				if value.(*cacheEntry).isExpired(now) {
					c.entries.Delete(key)
				}
				return true
			})
		}
	}
}
