package service

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

const (
	slugFilterMinCapacity = 10000
	slugFilterFalsePos    = 0.001
)

// SlugFilter is a concurrency-safe bloom filter over known slugs. A negative
// answer is definitive and lets the redirect path return 404 without touching
// the stores; positives fall through to the normal lookup. The filter is
// additive only: deleted slugs keep testing positive until restart, which
// only costs a store lookup.
type SlugFilter struct {
	mu     sync.RWMutex
	filter *bloom.BloomFilter
}

// NewSlugFilter seeds a filter with the currently known slugs.
func NewSlugFilter(slugs []string) *SlugFilter {
	capacity := uint(len(slugs) * 2)
	if capacity < slugFilterMinCapacity {
		capacity = slugFilterMinCapacity
	}
	f := bloom.NewWithEstimates(capacity, slugFilterFalsePos)
	for _, s := range slugs {
		f.AddString(s)
	}
	return &SlugFilter{filter: f}
}

// Add records a newly created slug.
func (s *SlugFilter) Add(slug string) {
	s.mu.Lock()
	s.filter.AddString(slug)
	s.mu.Unlock()
}

// MightContain reports whether the slug could exist. False means it
// definitely does not.
func (s *SlugFilter) MightContain(slug string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter.TestString(slug)
}
