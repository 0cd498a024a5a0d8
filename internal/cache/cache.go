package cache

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"spendly/internal/core"
)

// Cache defines a generic cache interface
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	// Size returns the current number of items in the cache
	Size() int
}

// LRU is a size-bounded cache whose entries also expire after a TTL.
type LRU[T any] struct {
	lru *expirable.LRU[string, T]
}

func NewLRU[T any](size int, ttl time.Duration) *LRU[T] {
	return &LRU[T]{lru: expirable.NewLRU[string, T](size, nil, ttl)}
}

func (c *LRU[T]) Get(key string) (T, bool) { return c.lru.Get(key) }

func (c *LRU[T]) Set(key string, data T) { c.lru.Add(key, data) }

func (c *LRU[T]) Delete(key string) { c.lru.Remove(key) }

func (c *LRU[T]) Size() int { return c.lru.Len() }

// Summaries memoizes range summaries. Keys include the store revision, so a
// mutation makes older entries unreachable and they age out.
type Summaries struct {
	cache  Cache[core.Summary]
	hits   atomic.Int64
	misses atomic.Int64
}

func NewSummaries(size int, ttl time.Duration) *Summaries {
	return &Summaries{cache: NewLRU[core.Summary](size, ttl)}
}

func SummaryKey(r core.Range, revision uint64) string {
	return fmt.Sprintf("%s|%s|%d", r.Start.String(), r.End.String(), revision)
}

// Get returns the cached summary for r at revision, computing it on a miss.
func (s *Summaries) Get(r core.Range, revision uint64, compute func() core.Summary) core.Summary {
	key := SummaryKey(r, revision)
	if v, ok := s.cache.Get(key); ok {
		s.hits.Add(1)
		return v
	}
	s.misses.Add(1)
	v := compute()
	s.cache.Set(key, v)
	return v
}

// Stats reports hit and miss counts since creation.
func (s *Summaries) Stats() (hits, misses int64) {
	return s.hits.Load(), s.misses.Load()
}

func (s *Summaries) Size() int { return s.cache.Size() }
