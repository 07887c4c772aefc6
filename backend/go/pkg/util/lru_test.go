package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	c, err := NewLRU[string, int](CacheConfig{Capacity: 2})
	require.NoError(t, err)

	c.Put("a", 1)
	c.Put("b", 2)
	_, _ = c.Get("a")
	c.Put("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, c.Len())
}

func TestLRU_TTL(t *testing.T) {
	now := time.Unix(1000, 0)
	c, err := NewLRU[string, string](CacheConfig{Capacity: 4, TTL: time.Minute, Now: func() time.Time { return now }})
	require.NoError(t, err)

	c.Put("k", "v")
	_, ok := c.Get("k")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestLRU_DeleteAndPurge(t *testing.T) {
	c, err := NewLRU[int, int](CacheConfig{Capacity: 3})
	require.NoError(t, err)
	c.Put(1, 1)
	c.Put(2, 2)
	c.Delete(1)
	assert.Equal(t, 1, c.Len())
	c.Purge()
	assert.Equal(t, 0, c.Len())

	_, err = NewLRU[int, int](CacheConfig{})
	assert.Error(t, err)
}
