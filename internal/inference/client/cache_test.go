package client

import (
	"fmt"
	"testing"
)

func TestQueryCacheHitMiss(t *testing.T) {
	c := NewQueryCache(2)
	if _, ok := c.Get("a"); ok {
		t.Fatalf("empty cache returned a hit")
	}
	c.Put("a", []float32{1})
	got, ok := c.Get("a")
	if !ok || len(got) != 1 || got[0] != 1 {
		t.Fatalf("Get(a) = %v, %v; want [1], true", got, ok)
	}
}

func TestQueryCacheEvictsOldest(t *testing.T) {
	c := NewQueryCache(2)
	c.Put("a", []float32{1})
	c.Put("b", []float32{2})
	// Touch a so b becomes the eviction candidate.
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("Get(a) missed")
	}
	c.Put("c", []float32{3})

	if _, ok := c.Get("b"); ok {
		t.Fatalf("b survived eviction")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("a was evicted despite recent use")
	}
	if _, ok := c.Get("c"); !ok {
		t.Fatalf("c missing after insert")
	}
}

func TestQueryCacheBounded(t *testing.T) {
	c := NewQueryCache(8)
	for i := 0; i < 100; i++ {
		c.Put(fmt.Sprintf("key-%d", i), []float32{float32(i)})
	}
	if got := c.Len(); got != 8 {
		t.Fatalf("Len() = %d, want 8", got)
	}
}

func TestQueryCacheUpdateExisting(t *testing.T) {
	c := NewQueryCache(2)
	c.Put("a", []float32{1})
	c.Put("a", []float32{9})
	got, ok := c.Get("a")
	if !ok || got[0] != 9 {
		t.Fatalf("Get(a) = %v, %v; want updated value", got, ok)
	}
	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}
}
