package threadlib

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandle_RunSetsRunningFlag(t *testing.T) {
	h := NewHandle("worker")
	started := make(chan struct{})
	h.Run(func(any) {
		close(started)
		<-time.After(10 * time.Millisecond)
	}, nil)

	<-started
	assert.NotZero(t, h.Flags()&FlagRunning)
}

func TestHandle_RunPanicsOnAlreadyRunning(t *testing.T) {
	h := NewHandle("worker")
	block := make(chan struct{})
	h.Run(func(any) { <-block }, nil)
	defer close(block)

	assert.Panics(t, func() {
		h.Run(func(any) {}, nil)
	})
}

func TestHandle_JoinWaitsForCompletion(t *testing.T) {
	h := NewHandle("worker")
	var ran int32
	h.Run(func(any) {
		time.Sleep(10 * time.Millisecond)
		atomic.StoreInt32(&ran, 1)
	}, nil)

	h.Join()
	assert.EqualValues(t, 1, atomic.LoadInt32(&ran))
}

func TestHandle_DetachedJoinIsNoOp(t *testing.T) {
	h := NewHandle("worker")
	h.SetJoinable(false)
	h.Run(func(any) { time.Sleep(50 * time.Millisecond) }, nil)

	done := make(chan struct{})
	go func() {
		h.Join()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Millisecond):
		t.Fatal("Join on a detached handle should return immediately")
	}
}

// TestHandle_CooperativePause exercises scenario S6: request a pause,
// observe the pause (no further hook invocations or counter increments
// while paused), then resume and observe progress resuming, with the
// pause hook having fired exactly once.
func TestHandle_CooperativePause(t *testing.T) {
	h := NewHandle("looper")

	var counter int32
	var hookCalls int32
	paused := make(chan struct{}, 1)

	h.SetPauseHook(func(any) {
		atomic.AddInt32(&hookCalls, 1)
	}, nil)

	h.Run(func(any) {
		for {
			h.TestAndPause()
			select {
			case paused <- struct{}{}:
			default:
			}
			atomic.AddInt32(&counter, 1)
			time.Sleep(time.Millisecond)
		}
	}, nil)

	time.Sleep(20 * time.Millisecond)
	h.RequestPause()

	require.Eventually(t, func() bool {
		return h.Flags()&FlagPaused != 0
	}, time.Second, time.Millisecond)

	assert.EqualValues(t, 0, atomic.LoadInt32(&hookCalls))

	stable := atomic.LoadInt32(&counter)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, stable, atomic.LoadInt32(&counter), "counter must not advance while paused")

	h.Resume()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&counter) > stable
	}, time.Second, time.Millisecond)

	assert.EqualValues(t, 1, atomic.LoadInt32(&hookCalls))
	assert.NotZero(t, h.Flags()&FlagRunning)
}

func TestHandle_RequestPauseIsIdempotent(t *testing.T) {
	h := NewHandle("worker")
	h.Run(func(any) { time.Sleep(50 * time.Millisecond) }, nil)
	h.RequestPause()
	h.RequestPause()
	assert.NotZero(t, h.Flags()&FlagMarkedForPause)
}

func TestHandle_ResumeWithoutPauseIsNoOp(t *testing.T) {
	h := NewHandle("worker")
	assert.NotPanics(t, h.Resume)
}
