package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStriped_ConstructionValidatesParams(t *testing.T) {
	require.Panics(t, func() { NewStriped(0, 4, nil) })
	require.Panics(t, func() { NewStriped(40, 0, nil) })
	require.Panics(t, func() { NewStriped(3, 4, nil) }) // per-stripe rounds to 0
}

func TestStriped_PerStripeBudget(t *testing.T) {
	s := NewStriped(40, 4, nil)
	stats := s.Stats()
	require.Len(t, stats, 4)
	for _, st := range stats {
		require.EqualValues(t, 10, st.Max)
	}
}

func TestStriped_RoutesAndIsolates(t *testing.T) {
	s := NewStriped(40, 4, nil)
	require.True(t, s.Put("x", "1"))
	require.True(t, s.Put("y", "2"))

	vx, ok := s.Get("x")
	require.True(t, ok)
	require.Equal(t, "1", vx)

	vy, ok := s.Get("y")
	require.True(t, ok)
	require.Equal(t, "2", vy)

	require.True(t, s.Delete("x"))
	_, ok = s.Get("x")
	require.False(t, ok)
	_, ok = s.Get("y")
	require.True(t, ok)
}

// Scenario 3 from spec.md §8: concurrent Puts of distinct keys from many
// goroutines all succeed without observable interference.
func TestStriped_ConcurrentDistinctKeys(t *testing.T) {
	s := NewStriped(4000, 8, nil)
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			key := "x" + string(rune('a'+i%26))
			require.True(t, s.Put(key, "v"))
		}(i)
		go func(i int) {
			defer wg.Done()
			key := "y" + string(rune('a'+i%26))
			require.True(t, s.Put(key, "v"))
		}(i)
	}
	wg.Wait()
}

func TestStriped_PutIfAbsentAndSet(t *testing.T) {
	s := NewStriped(400, 4, nil)
	require.True(t, s.PutIfAbsent("k", "v1"))
	require.False(t, s.PutIfAbsent("k", "v2"))
	v, _ := s.Get("k")
	require.Equal(t, "v1", v)

	require.True(t, s.Set("k", "v3"))
	v, _ = s.Get("k")
	require.Equal(t, "v3", v)

	require.False(t, s.Set("missing", "v"))
}
