package threadlib

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, n int) *Pool {
	t.Helper()
	p := NewPool()
	for i := 0; i < n; i++ {
		p.InsertIdle(NewHandle("worker"))
	}
	return p
}

func TestPool_DispatchOnEmptyPoolIsNoOp(t *testing.T) {
	p := NewPool()
	err := p.Dispatch(context.Background(), func(any) {}, nil, false)
	assert.NoError(t, err)
}

func TestPool_InsertIdlePanicsOnHandleWithWork(t *testing.T) {
	p := NewPool()
	h := NewHandle("busy")
	h.Run(func(any) { time.Sleep(10 * time.Millisecond) }, nil)
	assert.Panics(t, func() { p.InsertIdle(h) })
}

func TestPool_InsertIdlePanicsOnDoubleInsert(t *testing.T) {
	p := NewPool()
	h := NewHandle("w")
	p.InsertIdle(h)
	assert.Panics(t, func() { p.InsertIdle(h) })
}

// TestPool_DispatchBlockCaller exercises scenario S2: dispatching with
// blockCaller=true must not return until the task completes.
func TestPool_DispatchBlockCaller(t *testing.T) {
	p := newTestPool(t, 1)
	var ran int32

	err := p.Dispatch(context.Background(), func(any) {
		time.Sleep(20 * time.Millisecond)
		atomic.StoreInt32(&ran, 1)
	}, nil, true)

	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&ran))
}

func TestPool_DispatchBlockCallerRespectsContext(t *testing.T) {
	p := newTestPool(t, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	err := p.Dispatch(ctx, func(any) {
		time.Sleep(100 * time.Millisecond)
	}, nil, true)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPool_WorkerReturnsToIdleAfterTask(t *testing.T) {
	p := newTestPool(t, 1)
	require.Equal(t, 1, p.Len())

	done := make(chan struct{})
	err := p.Dispatch(context.Background(), func(any) {
		close(done)
	}, nil, false)
	require.NoError(t, err)

	<-done
	require.Eventually(t, func() bool { return p.Len() == 1 }, time.Second, time.Millisecond)
}

func TestPool_DispatchRedispatchesIdleWorker(t *testing.T) {
	p := newTestPool(t, 1)

	var calls int32
	for i := 0; i < 3; i++ {
		err := p.Dispatch(context.Background(), func(any) {
			atomic.AddInt32(&calls, 1)
		}, nil, true)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestPool_MultipleWorkersDrainConcurrentDispatches(t *testing.T) {
	p := newTestPool(t, 4)

	var calls int32
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Dispatch(context.Background(), func(any) {
				atomic.AddInt32(&calls, 1)
			}, nil, true)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 4, atomic.LoadInt32(&calls))
}
