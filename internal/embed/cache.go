package embed

import (
	"container/list"
	"context"
	"sync"
)

// Cache wraps an Embedder with an LRU cache keyed by text. It is used on the
// query path, where the same question tends to repeat; batch indexing calls
// bypass it.
type Cache struct {
	inner    Embedder
	capacity int
	cache    map[string]*list.Element
	lru      *list.List
	mu       sync.Mutex
}

type cacheEntry struct {
	key   string
	value []float32
}

// NewCache wraps inner with an LRU of the given capacity.
func NewCache(inner Embedder, capacity int) *Cache {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Cache{
		inner:    inner,
		capacity: capacity,
		cache:    make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// Embed returns the cached embedding for text, or fetches and caches it.
// The returned slice is a copy; callers may normalize it in place.
func (c *Cache) Embed(ctx context.Context, text string) ([]float32, error) {
	c.mu.Lock()
	if elem, ok := c.cache[text]; ok {
		c.lru.MoveToFront(elem)
		v := elem.Value.(*cacheEntry).value
		out := make([]float32, len(v))
		copy(out, v)
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	stored := make([]float32, len(vec))
	copy(stored, vec)

	c.mu.Lock()
	if elem, ok := c.cache[text]; ok {
		c.lru.MoveToFront(elem)
		elem.Value.(*cacheEntry).value = stored
	} else {
		elem := c.lru.PushFront(&cacheEntry{key: text, value: stored})
		c.cache[text] = elem
		if c.lru.Len() > c.capacity {
			oldest := c.lru.Back()
			if oldest != nil {
				c.lru.Remove(oldest)
				delete(c.cache, oldest.Value.(*cacheEntry).key)
			}
		}
	}
	c.mu.Unlock()
	return vec, nil
}

// EmbedBatch passes through to the wrapped embedder uncached.
func (c *Cache) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return c.inner.EmbedBatch(ctx, texts)
}

// Dimensions returns the wrapped embedder's dimension.
func (c *Cache) Dimensions() int {
	return c.inner.Dimensions()
}

// Close closes the wrapped embedder.
func (c *Cache) Close() error {
	return c.inner.Close()
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
