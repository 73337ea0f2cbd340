package product

import (
	"strings"
	"sync"
)

// Key is the dedup key for one run: (normalized id, url).
type Key struct {
	ID  string
	URL string
}

// KeyOf builds the dedup key for a product.
func KeyOf(p *Product) Key {
	return Key{ID: strings.TrimSpace(strings.ToLower(p.ID)), URL: p.URL}
}

// Set is the shared in-memory collected set. The capture channel appends
// from the browser's event goroutine while the orchestrator appends from
// its own control flow, so access is guarded.
//
// Collision policy, in order: a priced record wins over an unpriced one;
// among priced records the lower price wins; on equal price, a populated
// URL wins, then the longer URL.
type Set struct {
	mu    sync.Mutex
	byKey map[Key]*Product
	order []Key
}

// NewSet creates an empty collected set.
func NewSet() *Set {
	return &Set{byKey: make(map[Key]*Product)}
}

// Add offers a record to the set. A record with no name is discarded.
// It returns true only when the dedup key was not seen before; a
// collision that replaces the stored record still returns false, so
// stagnation counters only move on genuinely new keys.
func (s *Set) Add(p *Product) bool {
	if p == nil || strings.TrimSpace(p.Name) == "" {
		return false
	}
	k := KeyOf(p)

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, exists := s.byKey[k]
	if !exists {
		s.byKey[k] = p
		s.order = append(s.order, k)
		return true
	}
	if replaces(p, cur) {
		s.byKey[k] = p
	}
	return false
}

// Len returns the number of retained records.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byKey)
}

// Products returns the retained records in first-seen key order.
func (s *Set) Products() []*Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Product, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.byKey[k])
	}
	return out
}

func replaces(next, cur *Product) bool {
	switch {
	case cur.Price == nil && next.Price != nil:
		return true
	case cur.Price == nil || next.Price == nil:
		return false
	case *next.Price < *cur.Price:
		return true
	case *next.Price > *cur.Price:
		return false
	}
	// Equal price: prefer a populated URL, then the longer URL.
	if next.URL != "" && cur.URL == "" {
		return true
	}
	return next.URL != "" && len(next.URL) > len(cur.URL)
}
