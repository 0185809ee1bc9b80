// Package cache stores serialized responses keyed by string, in process
// memory or in Redis.
package cache

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Cache is the byte-oriented cache used by the wizard services.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value. A zero ttl uses the backend default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Backend names accepted by Config.Backend.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config selects and configures a cache backend.
type Config struct {
	Backend    string        `yaml:"backend" json:"backend"`
	MaxSize    int           `yaml:"maxSize" json:"maxSize"`
	DefaultTTL time.Duration `yaml:"defaultTTL" json:"defaultTTL"`
	Redis      RedisConfig   `yaml:"redis" json:"redis"`
}

// DefaultConfig returns an in-memory cache configuration.
func DefaultConfig() Config {
	return Config{
		Backend:    BackendMemory,
		MaxSize:    1000,
		DefaultTTL: 10 * time.Minute,
		Redis: RedisConfig{
			Address: "localhost:6379",
			Prefix:  "wizard:",
		},
	}
}

// New builds the backend named by cfg.Backend. BackendNone yields a nil
// Cache, which callers treat as caching disabled.
func New(ctx context.Context, cfg Config) (Cache, error) {
	switch cfg.Backend {
	case "", BackendNone:
		return nil, nil
	case BackendMemory:
		return NewMemory(cfg.MaxSize, cfg.DefaultTTL), nil
	case BackendRedis:
		rc := cfg.Redis
		if rc.DefaultTTL == 0 {
			rc.DefaultTTL = cfg.DefaultTTL
		}
		return NewRedis(ctx, rc)
	default:
		return nil, fmt.Errorf("cache: unknown backend %q", cfg.Backend)
	}
}

// Memory is a thread-safe cache with TTL expiration and LRU eviction.
type Memory struct {
	mu         sync.Mutex
	items      map[string]*list.Element
	eviction   *list.List // front = most recently used
	maxSize    int
	defaultTTL time.Duration
	now        func() time.Time

	hits      int64
	misses    int64
	evictions int64
}

type entry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// NewMemory creates an in-memory cache. Non-positive arguments select
// 1000 entries and a ten minute TTL.
func NewMemory(maxSize int, defaultTTL time.Duration) *Memory {
	if maxSize <= 0 {
		maxSize = 1000
	}
	if defaultTTL <= 0 {
		defaultTTL = 10 * time.Minute
	}
	return &Memory{
		items:      make(map[string]*list.Element, maxSize),
		eviction:   list.New(),
		maxSize:    maxSize,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// Get returns a copy of the cached value or ErrMiss.
func (c *Memory) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, ErrMiss
	}
	e := elem.Value.(*entry)
	if c.now().After(e.expiresAt) {
		c.removeLocked(elem)
		c.misses++
		return nil, ErrMiss
	}

	c.eviction.MoveToFront(elem)
	c.hits++
	return append([]byte(nil), e.value...), nil
}

// Set stores a copy of value.
func (c *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	value = append([]byte(nil), value...)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		e := elem.Value.(*entry)
		e.value = value
		e.expiresAt = c.now().Add(ttl)
		c.eviction.MoveToFront(elem)
		return nil
	}

	for c.eviction.Len() >= c.maxSize {
		c.evictLocked()
	}
	c.items[key] = c.eviction.PushFront(&entry{key: key, value: value, expiresAt: c.now().Add(ttl)})
	return nil
}

// Delete removes a key.
func (c *Memory) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.removeLocked(elem)
	}
	return nil
}

// Clear removes all entries.
func (c *Memory) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element, c.maxSize)
	c.eviction.Init()
}

// Stats holds cache statistics.
type Stats struct {
	Size      int
	MaxSize   int
	Hits      int64
	Misses    int64
	Evictions int64
	HitRate   float64
}

// Stats returns a snapshot of the cache counters.
func (c *Memory) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Size:      c.eviction.Len(),
		MaxSize:   c.maxSize,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

// PurgeExpired removes all expired entries and returns how many were dropped.
func (c *Memory) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	purged := 0
	var next *list.Element
	for e := c.eviction.Front(); e != nil; e = next {
		next = e.Next()
		if now.After(e.Value.(*entry).expiresAt) {
			c.removeLocked(e)
			purged++
		}
	}
	return purged
}

func (c *Memory) evictLocked() {
	back := c.eviction.Back()
	if back == nil {
		return
	}
	c.removeLocked(back)
	c.evictions++
}

func (c *Memory) removeLocked(elem *list.Element) {
	delete(c.items, elem.Value.(*entry).key)
	c.eviction.Remove(elem)
}
