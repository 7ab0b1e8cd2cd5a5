package crawler

import (
	"context"
	"sync"
)

// PageCache memoizes successful fetches by exact URL. One cache belongs to
// one chunk invocation and is discarded with it.
type PageCache struct {
	next Fetcher

	mu     sync.Mutex
	bodies map[string][]byte
	hits   int
}

// NewPageCache wraps next with a private memo.
func NewPageCache(next Fetcher) *PageCache {
	return &PageCache{next: next, bodies: make(map[string][]byte)}
}

// Fetch returns a cached body or delegates to the wrapped fetcher.
// Failures are not cached.
func (c *PageCache) Fetch(ctx context.Context, url string) ([]byte, error) {
	if body, ok := c.lookup(url); ok {
		return body, nil
	}
	body, err := c.next.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.bodies[url] = body
	c.mu.Unlock()
	return body, nil
}

// cached reports whether url has a stored body.
func (c *PageCache) cached(url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.bodies[url]
	return ok
}

// hitCount returns how many fetches were served from the memo.
func (c *PageCache) hitCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits
}

func (c *PageCache) lookup(url string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	body, ok := c.bodies[url]
	if ok {
		c.hits++
	}
	return body, ok
}
