package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func newTestMemory(maxSize int, ttl time.Duration) (*Memory, *time.Time) {
	c := NewMemory(maxSize, ttl)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestMemorySetGet(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestMemory(100, time.Minute)

	if err := c.Set(ctx, "key1", []byte("value1"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	val, err := c.Get(ctx, "key1")
	if err != nil {
		t.Fatalf("expected cache hit, got %v", err)
	}
	if string(val) != "value1" {
		t.Errorf("expected value1, got %q", val)
	}
}

func TestMemoryMiss(t *testing.T) {
	c := NewMemory(0, 0)
	if _, err := c.Get(context.Background(), "nonexistent"); !errors.Is(err, ErrMiss) {
		t.Errorf("expected ErrMiss, got %v", err)
	}
}

func TestMemoryTTLExpiration(t *testing.T) {
	ctx := context.Background()
	c, now := newTestMemory(100, time.Minute)

	_ = c.Set(ctx, "default", []byte("a"), 0)
	_ = c.Set(ctx, "short", []byte("b"), 10*time.Second)

	*now = now.Add(30 * time.Second)
	if _, err := c.Get(ctx, "short"); !errors.Is(err, ErrMiss) {
		t.Errorf("short: expected ErrMiss after TTL, got %v", err)
	}
	if _, err := c.Get(ctx, "default"); err != nil {
		t.Errorf("default: expected hit, got %v", err)
	}

	*now = now.Add(time.Minute)
	if _, err := c.Get(ctx, "default"); !errors.Is(err, ErrMiss) {
		t.Errorf("default: expected ErrMiss after TTL, got %v", err)
	}
}

func TestMemoryLRUEviction(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestMemory(3, time.Minute)

	_ = c.Set(ctx, "a", []byte("1"), 0)
	_ = c.Set(ctx, "b", []byte("2"), 0)
	_ = c.Set(ctx, "c", []byte("3"), 0)

	// Touch a so b becomes least recently used.
	_, _ = c.Get(ctx, "a")
	_ = c.Set(ctx, "d", []byte("4"), 0)

	if _, err := c.Get(ctx, "b"); !errors.Is(err, ErrMiss) {
		t.Error("expected b to be evicted")
	}
	for _, k := range []string{"a", "c", "d"} {
		if _, err := c.Get(ctx, k); err != nil {
			t.Errorf("expected %s to survive, got %v", k, err)
		}
	}
	if got := c.Stats().Evictions; got != 1 {
		t.Errorf("expected 1 eviction, got %d", got)
	}
}

func TestMemoryOverwrite(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestMemory(2, time.Minute)

	_ = c.Set(ctx, "k", []byte("old"), 0)
	_ = c.Set(ctx, "k", []byte("new"), 0)

	val, _ := c.Get(ctx, "k")
	if string(val) != "new" {
		t.Errorf("expected new, got %q", val)
	}
	if size := c.Stats().Size; size != 1 {
		t.Errorf("expected size 1, got %d", size)
	}
}

func TestMemoryCopiesValues(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestMemory(10, time.Minute)

	buf := []byte("abc")
	_ = c.Set(ctx, "k", buf, 0)
	buf[0] = 'x'

	got, _ := c.Get(ctx, "k")
	got[1] = 'y'

	again, _ := c.Get(ctx, "k")
	if string(again) != "abc" {
		t.Errorf("expected stored value to be isolated, got %q", again)
	}
}

func TestMemoryDeleteAndClear(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestMemory(10, time.Minute)

	_ = c.Set(ctx, "a", []byte("1"), 0)
	_ = c.Set(ctx, "b", []byte("2"), 0)

	_ = c.Delete(ctx, "a")
	if _, err := c.Get(ctx, "a"); !errors.Is(err, ErrMiss) {
		t.Error("expected a to be deleted")
	}
	if err := c.Delete(ctx, "missing"); err != nil {
		t.Errorf("Delete of missing key: %v", err)
	}

	c.Clear()
	if size := c.Stats().Size; size != 0 {
		t.Errorf("expected empty cache, got %d", size)
	}
}

func TestMemoryStats(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestMemory(10, time.Minute)

	_ = c.Set(ctx, "a", []byte("1"), 0)
	_, _ = c.Get(ctx, "a")
	_, _ = c.Get(ctx, "a")
	_, _ = c.Get(ctx, "b")

	s := c.Stats()
	if s.Hits != 2 || s.Misses != 1 {
		t.Errorf("expected 2 hits and 1 miss, got %+v", s)
	}
	if s.HitRate < 0.66 || s.HitRate > 0.67 {
		t.Errorf("expected hit rate ~0.667, got %f", s.HitRate)
	}
	if s.MaxSize != 10 {
		t.Errorf("expected MaxSize 10, got %d", s.MaxSize)
	}
}

func TestMemoryPurgeExpired(t *testing.T) {
	ctx := context.Background()
	c, now := newTestMemory(10, time.Minute)

	_ = c.Set(ctx, "short1", []byte("1"), time.Second)
	_ = c.Set(ctx, "short2", []byte("2"), time.Second)
	_ = c.Set(ctx, "long", []byte("3"), time.Hour)

	*now = now.Add(2 * time.Second)
	if purged := c.PurgeExpired(); purged != 2 {
		t.Errorf("expected 2 purged, got %d", purged)
	}
	if size := c.Stats().Size; size != 1 {
		t.Errorf("expected 1 remaining, got %d", size)
	}
}

func TestMemoryConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(50, time.Minute)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := range 50 {
				key := fmt.Sprintf("k%d", (n*50+j)%80)
				_ = c.Set(ctx, key, []byte(key), 0)
				_, _ = c.Get(ctx, key)
			}
		}(i)
	}
	wg.Wait()

	if size := c.Stats().Size; size > 50 {
		t.Errorf("size %d exceeds max 50", size)
	}
}

func TestNewSelectsBackend(t *testing.T) {
	ctx := context.Background()

	c, err := New(ctx, Config{Backend: BackendNone})
	if err != nil || c != nil {
		t.Errorf("none: expected nil cache, got %v, %v", c, err)
	}

	c, err = New(ctx, DefaultConfig())
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if _, ok := c.(*Memory); !ok {
		t.Errorf("memory: expected *Memory, got %T", c)
	}

	if _, err := New(ctx, Config{Backend: "memcached"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}
