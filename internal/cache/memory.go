package cache

import (
	"sync/atomic"
	"time"

	"github.com/maypok86/otter/v2"
	"github.com/maypok86/otter/v2/stats"
)

// Memory is a size-bounded TTL look-aside cache built on otter. It backs
// ad-hoc lookups that fall outside the followed hierarchy (posts named by
// notifications from unfollowed clubs). Unlike the hierarchy Store it is
// allowed to evict, so it never grows without bound.
type Memory[T any] struct {
	cache   *otter.Cache[string, T]
	ttl     time.Duration
	counter *stats.Counter

	hits   atomic.Int64
	misses atomic.Int64
}

// NewMemory creates a look-aside cache with the given TTL and maximum
// entry count.
func NewMemory[T any](ttl time.Duration, maxSize int) *Memory[T] {
	counter := stats.NewCounter()
	cache := otter.Must(&otter.Options[string, T]{
		MaximumSize:      maxSize,
		StatsRecorder:    counter,
		ExpiryCalculator: otter.ExpiryCreating[string, T](ttl),
	})

	return &Memory[T]{
		cache:   cache,
		ttl:     ttl,
		counter: counter,
	}
}

// Get retrieves a cached value by slug.
func (m *Memory[T]) Get(slug string) (T, bool) {
	entry, ok := m.cache.GetEntry(slug)
	if !ok {
		m.misses.Add(1)
		var zero T
		return zero, false
	}

	m.hits.Add(1)
	return entry.Value, true
}

// Set stores a value under a slug, replacing any previous entry.
func (m *Memory[T]) Set(slug string, value T) {
	m.cache.Set(slug, value)
}

// Invalidate removes a single entry.
func (m *Memory[T]) Invalidate(slug string) {
	m.cache.Invalidate(slug)
}

// MemoryStats is a point-in-time view of look-aside effectiveness.
type MemoryStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// Stats reports hit and miss counts since creation.
func (m *Memory[T]) Stats() MemoryStats {
	return MemoryStats{
		Hits:   m.hits.Load(),
		Misses: m.misses.Load(),
	}
}
