package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-request-cache/logger"
	"github.com/saiset-co/sai-request-cache/metrics"
	"github.com/saiset-co/sai-request-cache/types"
)

const (
	defaultName                = "default"
	defaultPrefetchConcurrency = 8
)

// RequestCache deduplicates concurrent GETs per key and serves stored
// results inside a per-call freshness window. Writes go straight to the
// transport.
type RequestCache[V any] struct {
	name                string
	logger              types.Logger
	metrics             types.MetricsManager
	defaultTTL          time.Duration
	prefetchConcurrency int

	mu        sync.Mutex
	transport types.Transport[V]
	entries   map[string]*types.CacheEntry[V]
	pending   map[string]*call[V]

	hits     atomic.Uint64
	misses   atomic.Uint64
	shared   atomic.Uint64
	fetches  atomic.Uint64
	failures atomic.Uint64

	now func() time.Time
}

func NewRequestCache[V any](log types.Logger, metricsManager types.MetricsManager, config *types.CacheConfig) *RequestCache[V] {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if metricsManager == nil {
		metricsManager = metrics.NewNopMetrics()
	}
	if config == nil {
		config = &types.CacheConfig{}
	}

	c := &RequestCache[V]{
		name:                config.Name,
		logger:              log,
		metrics:             metricsManager,
		defaultTTL:          config.DefaultTTL,
		prefetchConcurrency: config.PrefetchConcurrency,
		entries:             make(map[string]*types.CacheEntry[V]),
		pending:             make(map[string]*call[V]),
		now:                 time.Now,
	}

	if c.name == "" {
		c.name = defaultName
	}
	if c.defaultTTL <= 0 {
		c.defaultTTL = NoExpiration
	}
	if c.prefetchConcurrency <= 0 {
		c.prefetchConcurrency = defaultPrefetchConcurrency
	}

	return c
}

// SetTransport wires the transport used by every call. It can be set once.
func (c *RequestCache[V]) SetTransport(transport types.Transport[V]) error {
	if transport == nil {
		return types.ErrTransportNotConfigured
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transport != nil {
		c.logger.Warn("Request cache transport already set, ignoring", zap.String("cache", c.name))
		return types.ErrTransportAlreadySet
	}

	c.transport = transport
	return nil
}

func (c *RequestCache[V]) Get(ctx context.Context, key string, opts ...GetOption) (V, error) {
	var zero V
	start := time.Now()

	options := GetOptions{TTL: c.defaultTTL}
	for _, opt := range opts {
		opt(&options)
	}

	c.mu.Lock()

	transport := c.transport
	if transport == nil {
		c.mu.Unlock()
		return zero, types.ErrTransportNotConfigured
	}

	if key == "" {
		c.mu.Unlock()
		return zero, types.ErrCacheKeyEmpty
	}

	if err := ctx.Err(); err != nil {
		c.mu.Unlock()
		return zero, err
	}

	var stale *types.CacheEntry[V]
	if !options.SkipCache {
		if entry, ok := c.entries[key]; ok {
			if options.fresh(entry.StoredAt, c.now()) {
				value := entry.Value
				c.mu.Unlock()

				c.hits.Add(1)
				c.logger.Debug("Request cache hit", zap.String("cache", c.name), zap.String("key", key))
				c.recordMetric("get", "hit", time.Since(start))
				return value, nil
			}

			delete(c.entries, key)
			stale = entry
		}
	}

	if pc, ok := c.pending[key]; ok {
		pc.waiters++
		c.mu.Unlock()

		c.logStale(stale)

		c.shared.Add(1)
		c.logger.Debug("Request cache joined pending call", zap.String("cache", c.name), zap.String("key", key))
		return c.wait(ctx, pc, "shared", start)
	}

	pc := newCall[V]()
	c.pending[key] = pc
	c.recordSizeLocked()
	c.mu.Unlock()

	c.logStale(stale)

	result := "miss"
	if options.SkipCache {
		result = "bypass"
	} else {
		c.misses.Add(1)
	}
	c.logger.Debug("Request cache miss, fetching",
		zap.String("cache", c.name),
		zap.String("key", key),
		zap.Bool("skip_cache", options.SkipCache))

	go c.fetch(context.WithoutCancel(ctx), transport, key, pc)

	return c.wait(ctx, pc, result, start)
}

func (c *RequestCache[V]) Post(ctx context.Context, url string, body interface{}) (V, error) {
	transport, err := c.currentTransport()
	if err != nil {
		var zero V
		return zero, err
	}

	start := time.Now()
	value, err := transport.Post(ctx, url, body)
	c.recordMetric("post", resultOf(err), time.Since(start))

	return value, err
}

func (c *RequestCache[V]) Put(ctx context.Context, url string, body interface{}) (V, error) {
	transport, err := c.currentTransport()
	if err != nil {
		var zero V
		return zero, err
	}

	start := time.Now()
	value, err := transport.Put(ctx, url, body)
	c.recordMetric("put", resultOf(err), time.Since(start))

	return value, err
}

func (c *RequestCache[V]) Delete(ctx context.Context, url string) (V, error) {
	transport, err := c.currentTransport()
	if err != nil {
		var zero V
		return zero, err
	}

	start := time.Now()
	value, err := transport.Delete(ctx, url)
	c.recordMetric("delete", resultOf(err), time.Since(start))

	return value, err
}

// ClearCache drops the entries for keys, or every entry when no key is
// given. Calls in flight are left alone and store their result on success.
func (c *RequestCache[V]) ClearCache(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(keys) == 0 {
		cleared := len(c.entries)
		c.entries = make(map[string]*types.CacheEntry[V])
		c.recordSizeLocked()

		c.logger.Info("Request cache cleared", zap.String("cache", c.name), zap.Int("cleared_entries", cleared))
		c.recordMetric("clear", "all", 0)
		return
	}

	for _, key := range keys {
		delete(c.entries, key)
	}
	c.recordSizeLocked()

	c.logger.Debug("Request cache keys cleared", zap.String("cache", c.name), zap.Strings("keys", keys))
	c.recordMetric("clear", "keys", 0)
}

// Peek returns the stored entry for key without a freshness check.
func (c *RequestCache[V]) Peek(key string) (types.CacheEntry[V], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return types.CacheEntry[V]{}, false
	}
	return *entry, true
}

func (c *RequestCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *RequestCache[V]) Stats() types.CacheStats {
	c.mu.Lock()
	entries, pending := len(c.entries), len(c.pending)
	c.mu.Unlock()

	return types.CacheStats{
		Entries:  entries,
		Pending:  pending,
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Shared:   c.shared.Load(),
		Fetches:  c.fetches.Load(),
		Failures: c.failures.Load(),
	}
}

func (c *RequestCache[V]) Name() string {
	return c.name
}

func (c *RequestCache[V]) logStale(entry *types.CacheEntry[V]) {
	if entry == nil {
		return
	}
	c.logger.Debug("Request cache entry stale, evicted",
		zap.String("cache", c.name),
		zap.String("key", entry.Key),
		zap.Time("stored_at", entry.StoredAt))
}

func (c *RequestCache[V]) currentTransport() (types.Transport[V], error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transport == nil {
		return nil, types.ErrTransportNotConfigured
	}
	return c.transport, nil
}

func (c *RequestCache[V]) fetch(ctx context.Context, transport types.Transport[V], key string, pc *call[V]) {
	start := time.Now()
	c.fetches.Add(1)

	defer close(pc.done)

	pc.val, pc.err = c.callTransport(ctx, transport, key)

	c.mu.Lock()
	if c.pending[key] == pc {
		delete(c.pending, key)
	}
	if pc.err == nil {
		c.entries[key] = &types.CacheEntry[V]{Key: key, Value: pc.val, StoredAt: c.now()}
	}
	waiters := pc.waiters
	c.recordSizeLocked()
	c.mu.Unlock()

	if pc.err != nil {
		c.failures.Add(1)
		c.logger.Warn("Request cache fetch failed",
			zap.String("cache", c.name),
			zap.String("key", key),
			zap.Int("waiters", waiters),
			zap.Error(pc.err))
	}

	c.recordMetric("fetch", resultOf(pc.err), time.Since(start))
}

func (c *RequestCache[V]) callTransport(ctx context.Context, transport types.Transport[V], key string) (value V, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = types.Errorf(types.ErrTransportPanicked, "%s: %v", key, r)
		}
	}()

	return transport.Get(ctx, key)
}

func (c *RequestCache[V]) wait(ctx context.Context, pc *call[V], result string, start time.Time) (V, error) {
	select {
	case <-pc.done:
	case <-ctx.Done():
		var zero V
		c.recordMetric("get", "abandoned", time.Since(start))
		return zero, ctx.Err()
	}

	if pc.err != nil {
		c.recordMetric("get", "error", time.Since(start))
		return pc.val, pc.err
	}

	c.recordMetric("get", result, time.Since(start))
	return pc.val, nil
}
