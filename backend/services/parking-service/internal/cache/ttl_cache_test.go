package cache

import (
	"testing"
	"time"
)

func TestTTLCacheExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewTTLCache[string, int]().WithClock(func() time.Time { return now })

	c.Set("a", 1, time.Minute)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("expected hit, got %v %v", v, ok)
	}
	now = now.Add(61 * time.Second)
	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected expiry")
	}
	if c.Len() != 0 {
		t.Fatalf("expected empty cache")
	}
}

func TestTTLCacheSetIfAbsent(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewTTLCache[string, struct{}]().WithClock(func() time.Time { return now })

	if !c.SetIfAbsent("lane:1", struct{}{}, time.Minute) {
		t.Fatalf("first set must store")
	}
	if c.SetIfAbsent("lane:1", struct{}{}, time.Minute) {
		t.Fatalf("second set within ttl must not store")
	}
	now = now.Add(2 * time.Minute)
	if !c.SetIfAbsent("lane:1", struct{}{}, time.Minute) {
		t.Fatalf("set after expiry must store")
	}
}

func TestNilCacheIsSafe(t *testing.T) {
	var c *TTLCache[string, int]
	c.Set("a", 1, time.Minute)
	if _, ok := c.Get("a"); ok {
		t.Fatalf("nil cache never hits")
	}
	c.Delete("a")
}
