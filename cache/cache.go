// Package cache groups in-memory cache entries into named categories so the
// administrative surface can clear one category without touching the rest.
// Each category is an independent ristretto cache created on first use.
package cache

import (
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
)

// Option configures the ristretto settings shared by every category.
type Option func(*ristretto.Config)

// WithConfig applies a custom ristretto configuration to new categories.
//
// If cfg is nil, defaults are used.
func WithConfig(cfg *ristretto.Config) Option {
	return func(c *ristretto.Config) {
		if cfg == nil {
			return
		}
		*c = *cfg
	}
}

// Store holds the named categories.
type Store struct {
	cfg ristretto.Config

	mu         sync.Mutex
	categories map[string]*Category
}

// Category is one independent cache namespace.
type Category struct {
	name string
	c    *ristretto.Cache
}

// NewStore returns an empty Store.
//
// Default configuration aims for a generous in-memory cache per category.
func NewStore(opts ...Option) *Store {
	cfg := ristretto.Config{
		NumCounters: 1e4,     // number of keys to track frequency of (10k).
		MaxCost:     1 << 20, // maximum cost per category (1MB by default).
		BufferItems: 64,      // number of keys per Get buffer.
		Metrics:     true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Store{cfg: cfg, categories: make(map[string]*Category)}
}

// Category returns the named category, creating it on first use.
func (s *Store) Category(name string) *Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cat, ok := s.categories[name]; ok {
		return cat
	}
	cfg := s.cfg
	rc, err := ristretto.NewCache(&cfg)
	if err != nil {
		panic(err)
	}
	cat := &Category{name: name, c: rc}
	s.categories[name] = cat
	return cat
}

// Names returns the existing category names, sorted.
func (s *Store) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.categories))
	for name := range s.categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clear empties the named category. It reports whether the category
// existed; clearing an unknown category is an expected no-op, not an error.
func (s *Store) Clear(name string) bool {
	s.mu.Lock()
	cat, ok := s.categories[name]
	s.mu.Unlock()
	if !ok {
		return false
	}
	cat.c.Clear()
	return true
}

// ClearAll empties every category and returns how many were cleared.
func (s *Store) ClearAll() int {
	s.mu.Lock()
	cats := make([]*Category, 0, len(s.categories))
	for _, cat := range s.categories {
		cats = append(cats, cat)
	}
	s.mu.Unlock()
	for _, cat := range cats {
		cat.c.Clear()
	}
	return len(cats)
}

// Close releases the resources of every category.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cat := range s.categories {
		cat.c.Close()
	}
	s.categories = make(map[string]*Category)
}

// Name returns the category name.
func (c *Category) Name() string { return c.name }

// Metrics exposes the category's ristretto counters.
func (c *Category) Metrics() *ristretto.Metrics { return c.c.Metrics }

// Set stores value under key with the given cost and TTL. A zero ttl means
// no expiry.
func (c *Category) Set(key string, value any, cost int64, ttl time.Duration) {
	if ttl > 0 {
		c.c.SetWithTTL(key, value, cost, ttl)
	} else {
		c.c.Set(key, value, cost)
	}
	c.c.Wait()
}

// Get retrieves the value for key.
func (c *Category) Get(key string) (any, bool) {
	return c.c.Get(key)
}

// Del removes key from the category.
func (c *Category) Del(key string) {
	c.c.Del(key)
	c.c.Wait()
}
