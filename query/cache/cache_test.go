package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/queryable/query/compiler"
)

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache(2, 0)
	c.Set("a", 1, 0)
	c.Set("b", 2, 0)
	_, ok := c.Get("a")
	require.True(t, ok)
	c.Set("c", 3, 0)

	_, ok = c.Get("b")
	assert.False(t, ok)
	assert.Equal(t, []string{"c", "a"}, c.Keys())

	stats := c.GetStats()
	assert.Equal(t, int64(1), stats.Evictions)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 2, stats.Size)
	assert.InDelta(t, 50.0, stats.HitRate, 0.001)
}

func TestLRUExpiry(t *testing.T) {
	c := NewLRUCache(0, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("a", 1, 0)
	c.Set("b", 2, -1)
	now = now.Add(2 * time.Minute)

	_, ok := c.Get("a")
	assert.False(t, ok)
	v, ok := c.Get("b")
	require.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, c.Len())
}

func TestInvalidatePattern(t *testing.T) {
	c := NewLRUCache(10, 0)
	c.Set(Key("sqlite", "3.45", 1), 1, 0)
	c.Set(Key("sqlite", "3.45", 2), 2, 0)
	c.Set(Key("postgres", "16", 1), 3, 0)

	assert.Equal(t, 2, c.InvalidatePattern("sqlite:*:*"))
	assert.Equal(t, 1, c.Len())
	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, Stats{MaxSize: 10}, c.GetStats())
}

func TestGetOrCompileCompilesOnce(t *testing.T) {
	q := NewQueryCache(8, 0)
	var compiles atomic.Int32
	release := make(chan struct{})
	compile := func() (*compiler.Command, error) {
		compiles.Add(1)
		<-release
		return &compiler.Command{}, nil
	}

	var wg sync.WaitGroup
	results := make([]*compiler.Command, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cmd, _, err := q.GetOrCompile("k", "text", compile)
			assert.NoError(t, err)
			results[i] = cmd
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), compiles.Load())
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
	assert.Equal(t, 1, q.Count())

	cmd, hit, err := q.GetOrCompile("k", "text", compile)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Same(t, results[0], cmd)
}

func TestGetOrCompileFailureIsNotCached(t *testing.T) {
	q := NewQueryCache(8, 0)
	boom := errors.New("boom")
	_, _, err := q.GetOrCompile("k", "text", func() (*compiler.Command, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, q.Count())

	cmd, hit, err := q.GetOrCompile("k", "text", func() (*compiler.Command, error) { return &compiler.Command{}, nil })
	require.NoError(t, err)
	assert.False(t, hit)
	assert.NotNil(t, cmd)
	assert.Equal(t, 1, q.Count())
}

func TestFingerprintCollisionBypassesCache(t *testing.T) {
	q := NewQueryCache(8, 0)
	first := &compiler.Command{}
	_, _, err := q.GetOrCompile("k", "a", func() (*compiler.Command, error) { return first, nil })
	require.NoError(t, err)

	second := &compiler.Command{}
	cmd, hit, err := q.GetOrCompile("k", "b", func() (*compiler.Command, error) { return second, nil })
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Same(t, second, cmd)
	assert.Equal(t, 1, q.Count())
}

func TestQueryCacheTTLAndInvalidate(t *testing.T) {
	q := NewQueryCache(8, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	q.lru.now = func() time.Time { return now }

	var compiles int
	compile := func() (*compiler.Command, error) {
		compiles++
		return &compiler.Command{}, nil
	}
	sqlite, pg := Key("sqlite", "3.45", 1), Key("postgres", "16", 1)
	for _, k := range []string{sqlite, pg} {
		_, _, err := q.GetOrCompile(k, "text", compile)
		require.NoError(t, err)
	}
	_, hit, err := q.GetOrCompile(sqlite, "text", compile)
	require.NoError(t, err)
	assert.True(t, hit)

	assert.Equal(t, 1, q.Invalidate("postgres:*:*"))
	assert.Equal(t, 1, q.Count())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 0, q.Count())
	_, hit, err = q.GetOrCompile(sqlite, "text", compile)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 3, compiles)
}
