package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	t time.Time
}

func (c *clock) now() time.Time { return c.t }

func TestTTLGetSet(t *testing.T) {
	c := &clock{t: time.Unix(1000, 0)}
	m := NewTTL[string](time.Minute, c.now)

	_, ok := m.Get("k")
	assert.False(t, ok)

	m.Set("k", "v")
	v, ok := m.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestTTLExpiry(t *testing.T) {
	c := &clock{t: time.Unix(1000, 0)}
	m := NewTTL[int](time.Minute, c.now)

	m.Set("k", 42)

	c.t = c.t.Add(59 * time.Second)
	v, ok := m.Get("k")
	require.True(t, ok)
	assert.Equal(t, 42, v)

	c.t = c.t.Add(2 * time.Second)
	_, ok = m.Get("k")
	assert.False(t, ok)
	// Expired entries are removed on read.
	assert.Equal(t, 0, m.Len())
}

func TestTTLDelete(t *testing.T) {
	c := &clock{t: time.Unix(1000, 0)}
	m := NewTTL[string](time.Hour, c.now)

	m.Set("k", "v")
	m.Delete("k")
	_, ok := m.Get("k")
	assert.False(t, ok)
}

func TestTTLSetRefreshesExpiry(t *testing.T) {
	c := &clock{t: time.Unix(1000, 0)}
	m := NewTTL[string](time.Minute, c.now)

	m.Set("k", "old")
	c.t = c.t.Add(50 * time.Second)
	m.Set("k", "new")
	c.t = c.t.Add(50 * time.Second)

	v, ok := m.Get("k")
	require.True(t, ok)
	assert.Equal(t, "new", v)
}

func TestTTLPurgeExpired(t *testing.T) {
	c := &clock{t: time.Unix(1000, 0)}
	m := NewTTL[int](time.Minute, c.now)

	m.Set("a", 1)
	m.Set("b", 2)
	c.t = c.t.Add(30 * time.Second)
	m.Set("c", 3)
	c.t = c.t.Add(45 * time.Second)

	removed := m.PurgeExpired()
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, m.Len())

	v, ok := m.Get("c")
	require.True(t, ok)
	assert.Equal(t, 3, v)
}
