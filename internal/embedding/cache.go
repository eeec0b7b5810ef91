package embedding

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Cache is a bounded embedding cache shared by all providers.
//
// Eviction is by insertion order: at capacity the oldest inserted entry goes
// first, and reads do not refresh an entry's position. Entries older than
// the TTL are treated as absent and dropped on access.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*list.Element
	order    *list.List
	now      func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
}

type cacheEntry struct {
	key      string
	value    Vector
	storedAt time.Time
}

// NewCache creates a cache holding at most capacity entries for ttl each.
// A non-positive ttl disables expiry.
func NewCache(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Cache{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
}

// CacheKey builds the key for a text embedded by a given provider and model.
func CacheKey(provider, model, text string) string {
	return provider + ":" + model + ":" + text
}

// Get returns a copy of the cached vector for key.
func (c *Cache) Get(key string) (Vector, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	e := elem.Value.(*cacheEntry)
	if c.ttl > 0 && c.now().Sub(e.storedAt) > c.ttl {
		c.removeElement(elem)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return cloneVector(e.value), true
}

// Put stores a copy of v under key.
func (c *Cache) Put(key string, v Vector) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		// Re-insertion counts as a fresh insert.
		c.removeElement(elem)
	}
	for c.order.Len() >= c.capacity {
		c.removeElement(c.order.Front())
	}
	elem := c.order.PushBack(&cacheEntry{key: key, value: cloneVector(v), storedAt: c.now()})
	c.items[key] = elem
}

// Len returns the number of entries, including expired ones not yet dropped.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order = list.New()
}

// Stats returns cache hit/miss statistics.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *Cache) removeElement(elem *list.Element) {
	delete(c.items, elem.Value.(*cacheEntry).key)
	c.order.Remove(elem)
}

func cloneVector(v Vector) Vector {
	out := make(Vector, len(v))
	copy(out, v)
	return out
}

// CachedProvider consults a Cache before delegating to the wrapped provider.
type CachedProvider struct {
	inner Provider
	cache *Cache
}

// WithCache wraps p so that repeated texts are served from cache.
func WithCache(p Provider, cache *Cache) *CachedProvider {
	return &CachedProvider{inner: p, cache: cache}
}

func (p *CachedProvider) Name() string    { return p.inner.Name() }
func (p *CachedProvider) Model() string   { return p.inner.Model() }
func (p *CachedProvider) Dimensions() int { return p.inner.Dimensions() }

// Unwrap returns the underlying provider.
func (p *CachedProvider) Unwrap() Provider { return p.inner }

func (p *CachedProvider) key(text string) string {
	return CacheKey(p.inner.Name(), p.inner.Model(), text)
}

func (p *CachedProvider) Embed(ctx context.Context, text string) (Vector, error) {
	k := p.key(text)
	if v, ok := p.cache.Get(k); ok {
		return v, nil
	}
	v, err := p.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	p.cache.Put(k, v)
	return v, nil
}

// EmbedBatch only sends cache misses to the wrapped provider.
func (p *CachedProvider) EmbedBatch(ctx context.Context, texts []string) ([]Vector, error) {
	out := make([]Vector, len(texts))
	var missIdx []int
	var missTexts []string
	for i, t := range texts {
		if v, ok := p.cache.Get(p.key(t)); ok {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vs, err := p.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, idx := range missIdx {
		out[idx] = vs[j]
		p.cache.Put(p.key(missTexts[j]), vs[j])
	}
	return out, nil
}
