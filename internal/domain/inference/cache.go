package inference

import (
	"sync"
	"sync/atomic"

	"github.com/okian/ivscan/internal/domain/model"
)

const defaultCacheSize = 4096

// Key identifies one inference input. Any change to any field is a
// different key, so a corrected observation never sees a stale result.
type Key struct {
	SpeciesID int
	Level     float64
	CP        int
	HP        int
}

// KeyOf builds the key for an observation resolved to sp.
func KeyOf(obs model.Observation, sp model.Species) Key {
	return Key{SpeciesID: sp.ID, Level: obs.Level, CP: obs.CombatPower, HP: obs.HealthPoints}
}

// node is one entry in the insertion-ordered list.
type node struct {
	key        Key
	candidates []model.Candidate
	prev, next *node
}

func (n *node) reset() {
	*n = node{}
}

// Cache is a bounded, concurrency-safe memo of inference results.
// Slices going in and out are copied, so callers can't alias cached state.
type Cache struct {
	mu       sync.Mutex
	entries  map[Key]*node
	head     *node // most recently inserted
	tail     *node // oldest, evicted first
	maxSize  int
	size     atomic.Int64
	hits     atomic.Int64
	misses   atomic.Int64
	nodePool sync.Pool
}

// NewCache creates a cache with configuration options.
func NewCache(opts ...Option) *Cache {
	c := &Cache{
		maxSize: defaultCacheSize,
		entries: make(map[Key]*node),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.nodePool = sync.Pool{
		New: func() interface{} {
			return &node{}
		},
	}
	return c
}

// Get returns a copy of the cached candidates for key.
func (c *Cache) Get(key Key) ([]model.Candidate, bool) {
	c.mu.Lock()
	n, ok := c.entries[key]
	var out []model.Candidate
	if ok {
		out = cloneCandidates(n.candidates)
	}
	c.mu.Unlock()

	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return out, ok
}

// Put stores a copy of candidates under key, evicting the oldest key when full.
func (c *Cache) Put(key Key, candidates []model.Candidate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, exists := c.entries[key]; exists {
		n.candidates = cloneCandidates(candidates)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	n := c.nodePool.Get().(*node)
	n.key = key
	n.candidates = cloneCandidates(candidates)
	n.next = c.head
	if c.head != nil {
		c.head.prev = n
	}
	c.head = n
	if c.tail == nil {
		c.tail = n
	}
	c.entries[key] = n
	c.size.Add(1)
}

// evictOldest drops the tail. Must be called with c.mu held.
func (c *Cache) evictOldest() {
	n := c.tail
	if n == nil {
		return
	}
	c.tail = n.prev
	if c.tail != nil {
		c.tail.next = nil
	} else {
		c.head = nil
	}
	delete(c.entries, n.key)
	n.reset()
	c.nodePool.Put(n)
	c.size.Add(-1)
}

// Len returns the number of cached keys.
func (c *Cache) Len() int64 { return c.size.Load() }

// Hits returns how many Get calls found their key.
func (c *Cache) Hits() int64 { return c.hits.Load() }

// Misses returns how many Get calls did not.
func (c *Cache) Misses() int64 { return c.misses.Load() }

func cloneCandidates(in []model.Candidate) []model.Candidate {
	if in == nil {
		return nil
	}
	out := make([]model.Candidate, len(in))
	copy(out, in)
	return out
}
