package contextual

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"artificer/internal/logging"
)

// CachingProvider decorates a ContextProvider with a context_id keyed
// cache. A request without a ContextID always goes to the inner provider.
type CachingProvider struct {
	inner ContextProvider
	ttl   time.Duration

	mu      sync.RWMutex
	entries map[string]cacheEntry

	hits   atomic.Int64
	misses atomic.Int64
}

type cacheEntry struct {
	built   *BuiltContext
	expires time.Time
}

func NewCaching(inner ContextProvider, ttl time.Duration) *CachingProvider {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachingProvider{
		inner:   inner,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

func (c *CachingProvider) BuildContext(ctx context.Context, notes string, opts BuildOptions) (*BuiltContext, error) {
	if opts.ContextID == "" {
		return c.inner.BuildContext(ctx, notes, opts)
	}

	c.mu.RLock()
	entry, ok := c.entries[opts.ContextID]
	c.mu.RUnlock()
	if ok && time.Now().Before(entry.expires) {
		c.hits.Add(1)
		logging.ContextDebug("context cache hit for %q", opts.ContextID)
		cached := *entry.built
		cached.FromCache = true
		return &cached, nil
	}

	c.misses.Add(1)
	built, err := c.inner.BuildContext(ctx, notes, opts)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[opts.ContextID] = cacheEntry{built: built, expires: time.Now().Add(c.ttl)}
	c.mu.Unlock()

	return built, nil
}

// Stats reports cache effectiveness.
func (c *CachingProvider) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Invalidate drops one cached context.
func (c *CachingProvider) Invalidate(contextID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, contextID)
}
