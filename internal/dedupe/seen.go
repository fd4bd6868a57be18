// Package dedupe provides a bounded first-in-first-out seen-set.
package dedupe

import "sync"

// Seen remembers up to capacity keys, forgetting the oldest first.
type Seen struct {
	mu       sync.Mutex
	capacity int
	keys     map[string]struct{}
	order    []string
	head     int
}

// New creates a seen-set. Capacity below 1 is treated as 1.
func New(capacity int) *Seen {
	if capacity < 1 {
		capacity = 1
	}
	return &Seen{
		capacity: capacity,
		keys:     make(map[string]struct{}, capacity),
		order:    make([]string, 0, capacity),
	}
}

// Add records key and reports whether it was new.
func (s *Seen) Add(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys[key]; ok {
		return false
	}

	if len(s.order) < s.capacity {
		s.order = append(s.order, key)
	} else {
		delete(s.keys, s.order[s.head])
		s.order[s.head] = key
		s.head = (s.head + 1) % s.capacity
	}
	s.keys[key] = struct{}{}

	return true
}

// Contains reports whether key is remembered.
func (s *Seen) Contains(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.keys[key]
	return ok
}

// Len returns the number of remembered keys.
func (s *Seen) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.keys)
}
