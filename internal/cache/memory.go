package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// MemoryClient is a TTL+LRU cache: entries expire after their TTL, and when
// the capacity is exceeded the least-recently-used entry is evicted.
// Re-access bumps recency.
type MemoryClient struct {
	mu       sync.Mutex
	entries  map[string]*list.Element
	order    *list.List // front = most recently used
	capacity int
	now      func() time.Time
}

type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// NewMemoryClient creates an in-memory cache bounded to capacity entries.
func NewMemoryClient(capacity int) *MemoryClient {
	if capacity <= 0 {
		capacity = 32
	}
	return &MemoryClient{
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		capacity: capacity,
		now:      time.Now,
	}
}

// Get retrieves a value. An entry past its TTL is never returned; it is
// dropped on access.
func (c *MemoryClient) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, ErrCacheMiss
	}

	entry := el.Value.(*memoryEntry)
	if c.now().After(entry.expiresAt) {
		c.remove(el)
		return nil, ErrCacheMiss
	}

	c.order.MoveToFront(el)
	return entry.value, nil
}

// Set stores a value with TTL, evicting the least-recently-used entry when
// over capacity.
func (c *MemoryClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*memoryEntry)
		entry.value = value
		entry.expiresAt = c.now().Add(ttl)
		c.order.MoveToFront(el)
		return nil
	}

	if c.order.Len() >= c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.remove(oldest)
		}
	}

	el := c.order.PushFront(&memoryEntry{
		key:       key,
		value:     value,
		expiresAt: c.now().Add(ttl),
	})
	c.entries[key] = el
	return nil
}

// Delete removes a value.
func (c *MemoryClient) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.remove(el)
	}
	return nil
}

// Close is a no-op for the memory cache.
func (c *MemoryClient) Close() error { return nil }

// Len returns the number of live entries.
func (c *MemoryClient) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *MemoryClient) remove(el *list.Element) {
	entry := el.Value.(*memoryEntry)
	delete(c.entries, entry.key)
	c.order.Remove(el)
}
