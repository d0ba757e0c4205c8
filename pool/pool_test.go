package pool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPool_ExecuteBeforeStartRejected(t *testing.T) {
	p := New(1, 2, 4, 10*time.Millisecond, nil)
	require.False(t, p.Execute(func() {}))
}

func TestPool_RunsSubmittedTasks(t *testing.T) {
	p := New(2, 2, 4, 50*time.Millisecond, nil)
	p.Start()
	defer p.Stop(true)

	var n int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		ok := p.Execute(func() {
			atomic.AddInt32(&n, 1)
			wg.Done()
		})
		require.True(t, ok)
	}
	wg.Wait()
	require.EqualValues(t, 10, atomic.LoadInt32(&n))
}

// Scenario 4 from spec.md §8: low=2, high=4, queue=2, idle=50ms. Six fast
// tasks burst in: some accepted immediately, some queued, elastic workers
// spawn up to high, then existing shrinks back to low once idle.
func TestPool_BurstGrowsThenShrinks(t *testing.T) {
	p := New(2, 4, 2, 50*time.Millisecond, nil)
	p.Start()
	defer p.Stop(true)

	var wg sync.WaitGroup
	accepted := 0
	for i := 0; i < 6; i++ {
		wg.Add(1)
		if p.Execute(func() {
			time.Sleep(5 * time.Millisecond)
			wg.Done()
		}) {
			accepted++
		} else {
			wg.Done()
		}
	}
	require.GreaterOrEqual(t, accepted, 4) // low + queue headroom, at least

	stats := p.Stats()
	require.LessOrEqual(t, stats.Existing, 4)

	wg.Wait()

	require.Eventually(t, func() bool {
		return p.Stats().Existing == 2
	}, time.Second, 5*time.Millisecond, "elastic workers should shrink back to low-watermark")
}

func TestPool_ExecuteFullQueueRejected(t *testing.T) {
	p := New(1, 1, 0, time.Second, nil)
	p.Start()
	defer p.Stop(true)

	block := make(chan struct{})
	started := make(chan struct{})
	require.True(t, p.Execute(func() { close(started); <-block }))
	<-started // the only worker is now busy and the queue is empty

	// The running task occupies the only worker, so the next submission
	// queues...
	require.True(t, p.Execute(func() {}))
	// ...and a third must be rejected: queue already holds one (> 0).
	require.False(t, p.Execute(func() {}))

	close(block)
}

// Scenario 5 from spec.md §8: Stop(true) blocks for the duration of a
// running task and returns only once every worker has exited.
func TestPool_StopAwaitsRunningTask(t *testing.T) {
	p := New(1, 1, 4, time.Second, nil)
	p.Start()

	started := make(chan struct{})
	require.True(t, p.Execute(func() {
		close(started)
		time.Sleep(100 * time.Millisecond)
	}))
	<-started

	begin := time.Now()
	p.Stop(true)
	elapsed := time.Since(begin)
	require.GreaterOrEqual(t, elapsed, 80*time.Millisecond)

	stats := p.Stats()
	require.Equal(t, StateStopped, stats.State)
	require.Equal(t, 0, stats.Existing)
	require.Equal(t, 0, stats.Busy)

	require.False(t, p.Execute(func() {}))
}

func TestPool_TaskPanicDoesNotKillWorker(t *testing.T) {
	p := New(1, 1, 4, time.Second, nil)
	p.Start()
	defer p.Stop(true)

	require.True(t, p.Execute(func() { panic("boom") }))

	var ran int32
	require.Eventually(t, func() bool {
		p.Execute(func() { atomic.StoreInt32(&ran, 1) })
		return atomic.LoadInt32(&ran) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestPool_StartIsIdempotent(t *testing.T) {
	p := New(2, 2, 4, time.Second, nil)
	p.Start()
	p.Start()
	defer p.Stop(true)
	require.Equal(t, 2, p.Stats().Existing)
}
