package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long a fetched catalog is served before refetching
const DefaultTTL = 5 * time.Minute

// DefaultFetchTimeout bounds one sheet fetch, which outlives the request that started it
const DefaultFetchTimeout = 30 * time.Second

// RowSource returns the raw product grid, header row first
type RowSource interface {
	Rows(ctx context.Context) ([][]string, error)
}

// Cache memoizes the parsed product list for a fixed TTL.
// There is a single entry; a failed fetch clears it.
type Cache struct {
	source       RowSource
	ttl          time.Duration
	fetchTimeout time.Duration
	now          func() time.Time
	logger       *zap.Logger

	dedupe bool
	group  singleflight.Group

	mu        sync.RWMutex
	products  []models.Product
	fetchedAt time.Time
	// generation is bumped by Invalidate; a fetch started in an older
	// generation returns its rows but does not store them
	generation uint64
}

// CacheOption configures a Cache
type CacheOption func(*Cache)

// WithTTL overrides DefaultTTL
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithFetchTimeout overrides DefaultFetchTimeout
func WithFetchTimeout(d time.Duration) CacheOption {
	return func(c *Cache) {
		if d > 0 {
			c.fetchTimeout = d
		}
	}
}

// WithSingleflight collapses concurrent cold-cache fetches into one
func WithSingleflight(enabled bool) CacheOption {
	return func(c *Cache) { c.dedupe = enabled }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// NewCache creates a product cache over source
func NewCache(source RowSource, opts ...CacheOption) *Cache {
	c := &Cache{
		source:       source,
		ttl:          DefaultTTL,
		fetchTimeout: DefaultFetchTimeout,
		now:          time.Now,
		logger:       util.GetLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetProducts returns the cached product list, fetching it when cold or expired
func (c *Cache) GetProducts(ctx context.Context) ([]models.Product, error) {
	if products, ok := c.cached(); ok {
		util.CatalogCacheHitsTotal.Inc()
		return products, nil
	}
	util.CatalogCacheMissesTotal.Inc()

	if !c.dedupe {
		return c.refresh(ctx)
	}

	// the shared fetch is detached from its first caller; each caller waits on its own ctx
	gen := c.currentGeneration()
	ch := c.group.DoChan(fmt.Sprintf("products-%d", gen), func() (interface{}, error) {
		return c.refresh(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			c.logger.Debug("Joined in-flight catalog fetch")
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]models.Product), nil
	}
}

// Invalidate drops the cached list so the next read refetches
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.products = nil
	c.fetchedAt = time.Time{}
	c.generation++
	c.mu.Unlock()
}

func (c *Cache) currentGeneration() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

func (c *Cache) cached() ([]models.Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.products == nil || c.now().Sub(c.fetchedAt) >= c.ttl {
		return nil, false
	}
	return c.products, true
}

func (c *Cache) refresh(ctx context.Context) ([]models.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()
	ctx, span := util.StartSpan(ctx, "catalog.Cache.refresh")
	defer span.End()

	gen := c.currentGeneration()
	start := time.Now()
	rows, err := c.source.Rows(ctx)
	util.CatalogFetchLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		c.Invalidate()
		util.CatalogFetchesTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		c.logger.Error("Failed to fetch product rows", zap.Error(err))
		return nil, fmt.Errorf("failed to fetch products: %w", err)
	}

	products := ParseRows(rows)

	c.mu.Lock()
	stale := c.generation != gen
	if !stale {
		c.products = products
		c.fetchedAt = c.now()
	}
	c.mu.Unlock()

	if stale {
		c.logger.Info("Discarding catalog fetched before invalidation", zap.Int("count", len(products)))
		return products, nil
	}

	util.CatalogFetchesTotal.WithLabelValues("ok").Inc()
	util.CatalogProducts.Set(float64(len(products)))
	c.logger.Info("Catalog refreshed", zap.Int("count", len(products)))
	return products, nil
}
