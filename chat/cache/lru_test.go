package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLRUCacheGetSet(t *testing.T) {
	c := NewLRUCache[string, int](4, time.Minute)

	c.SetWithDefaultTTL("a", 1)
	value, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, value)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestLRUCacheEvictsOldest(t *testing.T) {
	c := NewLRUCache[string, int](2, time.Minute)

	c.SetWithDefaultTTL("a", 1)
	c.SetWithDefaultTTL("b", 2)
	c.Get("a") // refresh a
	c.SetWithDefaultTTL("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok, "least recently used entry must be evicted")
	_, ok = c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Size())
}

func TestLRUCacheTTLExpiry(t *testing.T) {
	c := NewLRUCache[string, int](4, time.Minute)

	c.Set("short", 1, 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get("short")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())
}

func TestLRUCacheInvalidatePattern(t *testing.T) {
	c := NewLRUCache[string, int](8, time.Minute)
	for i := 0; i < 3; i++ {
		c.SetWithDefaultTTL(fmt.Sprintf("owner:1:%d", i), i)
	}
	c.SetWithDefaultTTL("owner:2:0", 9)

	removed := c.Invalidate("owner:1:*")
	assert.Equal(t, 3, removed)
	assert.Equal(t, 1, c.Size())

	_, ok := c.Get("owner:2:0")
	assert.True(t, ok)
}

func TestLRUCacheRemoveAndClear(t *testing.T) {
	c := NewLRUCache[string, string](4, time.Minute)
	c.SetWithDefaultTTL("a", "x")

	assert.True(t, c.Remove("a"))
	assert.False(t, c.Remove("a"))

	c.SetWithDefaultTTL("b", "y")
	c.Clear()
	assert.Equal(t, 0, c.Size())
	assert.Equal(t, 4, c.Capacity())
}
