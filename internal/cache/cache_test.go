package cache

import (
	"testing"
	"time"
)

func TestGetSet(t *testing.T) {
	c := New[string, int](time.Minute)
	c.Set("a", 1)

	v, ok := c.Get("a")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if v != 1 {
		t.Errorf("expected 1, got %d", v)
	}

	if _, ok := c.Get("missing"); ok {
		t.Error("expected miss for absent key")
	}
}

func TestExpiry(t *testing.T) {
	c := New[string, string](time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.SetTTL("k", "v", 30*time.Second)

	if _, ok := c.Get("k"); !ok {
		t.Fatal("entry should be live before TTL")
	}

	now = now.Add(31 * time.Second)
	if _, ok := c.Get("k"); ok {
		t.Error("entry should have expired")
	}
}

func TestEvict(t *testing.T) {
	c := New[string, int](time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.SetTTL("old", 1, time.Second)
	c.SetTTL("new", 2, time.Hour)

	now = now.Add(time.Minute)
	removed := c.Evict()
	if removed != 1 {
		t.Errorf("expected 1 eviction, got %d", removed)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 remaining entry, got %d", c.Len())
	}
}

func TestDelete(t *testing.T) {
	c := New[string, int](time.Minute)
	c.Set("k", 1)
	c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Error("deleted key should miss")
	}
}
