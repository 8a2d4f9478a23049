package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUEviction(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set("c", 3)

	_, ok = c.Get("b")
	assert.False(t, ok, "least recently used entry should be evicted")
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, c.Size())
}

func TestLRUExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[string](10, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("k", "v")
	c.Set("j", "w")

	now = now.Add(30 * time.Second)
	_, ok := c.Get("k")
	assert.True(t, ok)

	now = now.Add(31 * time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 1, c.CleanExpired())
	assert.Equal(t, 0, c.Size())
}

func TestDeletePrefix(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)
	c.Set("aaa|x", 1)
	c.Set("aaa|y", 2)
	c.Set("bbb|x", 3)

	assert.Equal(t, 2, c.DeletePrefix("aaa|"))
	assert.Equal(t, 1, c.Size())
}

func TestMemoComputesOnce(t *testing.T) {
	m := NewMemo(8, time.Minute)
	var calls atomic.Int32

	compute := func() (int, error) {
		calls.Add(1)
		time.Sleep(10 * time.Millisecond)
		return 42, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := Compute(m, Key("hash", "monthly"), compute)
			assert.NoError(t, err)
			assert.Equal(t, 42, v)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())

	v, err := Compute(m, Key("hash", "monthly"), compute)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, int32(1), calls.Load())
}

func TestMemoDoesNotCacheErrors(t *testing.T) {
	m := NewMemo(8, time.Minute)
	boom := errors.New("boom")
	calls := 0

	for i := 0; i < 2; i++ {
		_, err := Compute(m, "k", func() (string, error) {
			calls++
			return "", boom
		})
		assert.ErrorIs(t, err, boom)
	}
	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, m.Size())
}

func TestMemoInvalidateTable(t *testing.T) {
	m := NewMemo(8, time.Minute)
	for _, key := range []string{Key("t1", "a"), Key("t1", "b", 6), Key("t2", "a")} {
		_, err := m.GetOrCompute(key, func() (any, error) { return 1, nil })
		require.NoError(t, err)
	}

	assert.Equal(t, 2, m.InvalidateTable("t1"))
	assert.Equal(t, 1, m.Size())
}

func TestKeyIncludesParams(t *testing.T) {
	assert.NotEqual(t, Key("h", "forecast", 6), Key("h", "forecast", 12))
	assert.Equal(t, Key("h", "forecast", 6), Key("h", "forecast", 6))
}

type countingCleaner struct{ n int }

func (c *countingCleaner) CleanExpired() int { return c.n }

func TestManager(t *testing.T) {
	m := NewManager(zerolog.Nop())
	m.Register(&countingCleaner{n: 2})
	m.Register(&countingCleaner{n: 3})
	assert.Equal(t, 5, m.Sweep())

	m.StartCleanup(time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	m.Stop()
}
