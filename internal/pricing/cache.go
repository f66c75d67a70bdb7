package pricing

import (
	"context"
	"sync"
	"time"
)

// DefaultCacheTTL is how long a quote is reused before asking the source again.
const DefaultCacheTTL = 10 * time.Minute

type cachedQuote struct {
	quote   Quote
	expires time.Time
}

// CachedSource wraps a Source and reuses quotes for ttl.
type CachedSource struct {
	inner Source
	ttl   time.Duration
	now   func() time.Time

	mu      sync.RWMutex
	entries map[string]cachedQuote
}

// NewCachedSource wraps inner with an in-memory quote cache.
func NewCachedSource(inner Source, ttl time.Duration) *CachedSource {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedSource{
		inner:   inner,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cachedQuote),
	}
}

// Name returns the wrapped source's name.
func (c *CachedSource) Name() string { return c.inner.Name() }

// Kind returns the wrapped source's kind.
func (c *CachedSource) Kind() Kind { return c.inner.Kind() }

// FetchPrices serves fresh cached quotes and forwards the rest.
func (c *CachedSource) FetchPrices(ctx context.Context, securities []Security) ([]Quote, []FetchError) {
	now := c.now()

	var quotes []Quote
	var misses []Security
	c.mu.RLock()
	for _, sec := range securities {
		if e, ok := c.entries[sec.ID]; ok && now.Before(e.expires) {
			quotes = append(quotes, e.quote)
			continue
		}
		misses = append(misses, sec)
	}
	c.mu.RUnlock()

	if len(misses) == 0 {
		return quotes, nil
	}

	fetched, fetchErrors := c.inner.FetchPrices(ctx, misses)

	c.mu.Lock()
	for _, q := range fetched {
		c.entries[q.SecurityID] = cachedQuote{quote: q, expires: now.Add(c.ttl)}
	}
	c.mu.Unlock()

	return append(quotes, fetched...), fetchErrors
}
