package coroutine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// Scenario 6 from spec.md §8: two coroutines yield to each other 1000
// times and both complete; then a block/unblock round-trip on one of
// them changes what yield picks.
func TestEngine_PingPongThenBlockUnblock(t *testing.T) {
	e := NewEngine(nil)

	const rounds = 1000
	var aCount, bCount int
	aDone := false
	bDone := false

	var bHandle Handle
	blockedOnce := false
	unblockedOnce := false

	aHandle := e.Start(func(self Handle) {
		for aCount < rounds {
			aCount++
			e.Yield()
		}
		aDone = true
	})

	bHandle = e.Start(func(self Handle) {
		for bCount < rounds {
			bCount++
			if bCount == rounds/2 && !blockedOnce {
				blockedOnce = true
				e.Block(aHandle)
			}
			if bCount == rounds/2+1 && !unblockedOnce {
				unblockedOnce = true
				e.Unblock(aHandle)
			}
			e.Yield()
		}
		bDone = true
	})

	e.Sched(aHandle)

	require.True(t, aDone)
	require.True(t, bDone)
	require.Equal(t, rounds, aCount)
	require.Equal(t, rounds, bCount)
	_ = bHandle
}

func TestEngine_YieldWithNoOtherAliveIsNoop(t *testing.T) {
	e := NewEngine(nil)
	ran := false
	h := e.Start(func(self Handle) {
		e.Yield() // nobody else alive: no-op, keep running
		ran = true
	})
	e.Sched(h)
	require.True(t, ran)
}

func TestEngine_SchedToSelfIsNoop(t *testing.T) {
	e := NewEngine(nil)
	var self Handle
	h := e.Start(func(h Handle) {
		self = h
		e.Sched(h) // scheduling to self: no-op, keeps running
	})
	e.Sched(h)
	require.Equal(t, h, self)
}

func TestEngine_BlockSelfYieldsToIdle(t *testing.T) {
	e := NewEngine(nil)
	resumed := false
	h := e.Start(func(self Handle) {
		e.Block(Handle{}) // block self -> control returns to caller of Sched
		resumed = true
	})

	e.Sched(h)
	// Block(self) hands control back to the scheduler before "resumed" is
	// set, since the routine parks until Unblock+reschedule.
	require.False(t, resumed)

	e.Unblock(h)
	e.Sched(h)
	require.True(t, resumed)
}

func TestEngine_CurrentDuringExecution(t *testing.T) {
	e := NewEngine(nil)
	var seen Handle
	h := e.Start(func(self Handle) {
		seen = e.Current()
	})
	e.Sched(h)
	require.Equal(t, h, seen)
	require.True(t, e.Current().IsZero())
}
