package relays

import (
	"github.com/sasha-s/go-deadlock"
	"meshnostr/engine/library"
)

// DedupeCache remembers which event IDs have already been dispatched so an
// event arriving from several relays reaches handlers once. Bounded with
// FIFO eviction; check-and-insert is a single locked operation.
type DedupeCache struct {
	mu       deadlock.Mutex
	seen     map[library.Sha256]struct{}
	order    []library.Sha256
	capacity int
}

func NewDedupeCache(capacity int) *DedupeCache {
	if capacity <= 0 {
		capacity = 5000
	}
	return &DedupeCache{
		seen:     make(map[library.Sha256]struct{}, capacity),
		capacity: capacity,
	}
}

// MarkSeen returns true if the ID was not in the cache, inserting it and
// evicting the oldest entry when over capacity.
func (c *DedupeCache) MarkSeen(id library.Sha256) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.seen[id]; ok {
		return false
	}
	c.seen[id] = struct{}{}
	c.order = append(c.order, id)
	if len(c.order) > c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.seen, oldest)
	}
	return true
}

// Seen reports whether an ID is currently in the cache without inserting.
func (c *DedupeCache) Seen(id library.Sha256) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.seen[id]
	return ok
}

func (c *DedupeCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// Reset drops all remembered IDs.
func (c *DedupeCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = make(map[library.Sha256]struct{}, c.capacity)
	c.order = nil
}
