// Package dedup provides a key set that drops repeated track keys while keeping first-seen order.
package dedup

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// DefaultFalsePositiveRate is the bloom filter rate used by NewSet.
const DefaultFalsePositiveRate = 0.001

// Set is a thread-safe set of keys. A bloom filter answers most negative lookups before the
// exact map is consulted.
type Set struct {
	keys  map[string]struct{}
	bloom *bloom.BloomFilter
	mutex sync.RWMutex
}

// NewSet creates a set sized for the expected number of keys.
func NewSet(expected int) *Set {
	if expected < 1 {
		expected = 1
	}

	return &Set{
		keys:  make(map[string]struct{}, expected),
		bloom: bloom.NewWithEstimates(uint(expected), DefaultFalsePositiveRate),
	}
}

// Has reports whether key was added before.
func (s *Set) Has(key string) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.bloom.TestString(key) {
		return false
	}

	_, exists := s.keys[key]
	return exists
}

// Add inserts key and reports whether it was new.
func (s *Set) Add(key string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.bloom.TestString(key) {
		if _, exists := s.keys[key]; exists {
			return false
		}
	}

	s.keys[key] = struct{}{}
	s.bloom.AddString(key)
	return true
}

// Len returns the number of distinct keys.
func (s *Set) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.keys)
}

// Unique returns items with repeated keys removed, keeping the first occurrence of each key.
func Unique[T any](items []T, key func(T) string) []T {
	seen := NewSet(len(items))
	result := make([]T, 0, len(items))
	for _, item := range items {
		if seen.Add(key(item)) {
			result = append(result, item)
		}
	}
	return result
}
