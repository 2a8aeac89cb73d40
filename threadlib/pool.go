package threadlib

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// executionRecord is the per-dispatch controller threaded through a
// pool worker's trampoline loop: which task to run, with which arg, and
// which pool/handle pair to return to once it finishes.
type executionRecord struct {
	pool   *Pool
	handle *Handle
	task   WorkFunc
	arg    any
}

// Pool is an ordered sequence of idle Handles, with a mutex protecting
// the sequence. Dispatch fetches an idle handle, assigns it a task, and
// runs it; the worker returns itself to the pool and blocks until
// redispatched.
type Pool struct {
	mu   sync.Mutex
	idle list.List

	log zerolog.Logger
}

// PoolOption configures a Pool at construction time.
type PoolOption func(*Pool)

// WithPoolLogger attaches a structured logger to the pool. The default
// is a no-op logger.
func WithPoolLogger(l zerolog.Logger) PoolOption {
	return func(p *Pool) { p.log = l }
}

// NewPool allocates an empty pool.
func NewPool(opts ...PoolOption) *Pool {
	p := &Pool{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// InsertIdle adds a fresh handle to the pool's idle sequence. The
// handle must have no work assigned and must not already be a member
// of any pool; violating either precondition is a programmer error and
// panics.
func (p *Pool) InsertIdle(h *Handle) {
	h.stateMu.Lock()
	hasWork := h.workFn != nil
	alreadyPooled := h.elem != nil
	h.stateMu.Unlock()

	if hasWork {
		panic(fmt.Sprintf("threadlib: handle %q already has work assigned", h.name))
	}
	if alreadyPooled {
		panic(fmt.Sprintf("threadlib: handle %q already a member of a pool", h.name))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if h.poolCV == nil {
		h.poolCV = sync.NewCond(&p.mu)
	}
	h.elem = p.idle.PushBack(h)
}

// AcquireIdle removes and returns the head of the idle sequence, or nil
// if the pool has no idle handles.
func (p *Pool) AcquireIdle() *Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquireIdleLocked()
}

func (p *Pool) acquireIdleLocked() *Handle {
	front := p.idle.Front()
	if front == nil {
		return nil
	}
	p.idle.Remove(front)
	h := front.Value.(*Handle)
	h.elem = nil
	return h
}

// Len reports the number of currently idle handles.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.idle.Len()
}

// Dispatch fetches an idle handle and runs task(arg) on it. If the pool
// has no idle handle, Dispatch is a silent no-op: the source this
// package is modelled on drops work on an empty pool rather than
// enqueuing it, and this is a deliberate compatibility choice, not an
// oversight — callers that need queuing must check Len themselves.
//
// If blockCaller is true, Dispatch blocks until task returns, via a
// semaphore the worker posts on completion; ctx governs that wait only
// (it has no effect on task itself, nor on workers that are never
// dispatched with blockCaller).
func (p *Pool) Dispatch(ctx context.Context, task WorkFunc, arg any, blockCaller bool) error {
	h := p.AcquireIdle()
	if h == nil {
		p.log.Debug().Msg("threadlib: dispatch on empty pool, dropping task")
		return nil
	}

	rec := h.execRecord
	if rec == nil {
		rec = &executionRecord{pool: p, handle: h}
		h.execRecord = rec
	}
	rec.task = task
	rec.arg = arg

	var sem *semaphore.Weighted
	p.mu.Lock()
	if blockCaller {
		sem = semaphore.NewWeighted(1)
		_ = sem.Acquire(context.Background(), 1) // drain to zero, never blocks here
	}
	h.sem = sem
	h.stateMu.Lock()
	started := h.started
	h.stateMu.Unlock()
	if started {
		h.poolCV.Signal()
	}
	p.mu.Unlock()

	if !started {
		h.Run(func(any) { p.runTrampoline(rec) }, nil)
	}

	if blockCaller {
		if err := sem.Acquire(ctx, 1); err != nil {
			return err
		}
		p.mu.Lock()
		if h.sem == sem {
			h.sem = nil
		}
		p.mu.Unlock()
	}
	return nil
}

// runTrampoline is the worker-side superloop: alternate between
// executing the currently-assigned task and returning to the pool (and
// blocking there) until redispatched. It never returns.
func (p *Pool) runTrampoline(rec *executionRecord) {
	for {
		rec.task(rec.arg)
		p.returnToPool(rec.handle)
	}
}

// returnToPool adds h back to the idle sequence, posts its completion
// semaphore if a caller is blocked on it, then parks h on its own pool
// condition variable until Dispatch wakes it for redispatch.
func (p *Pool) returnToPool(h *Handle) {
	p.mu.Lock()
	h.elem = p.idle.PushBack(h)
	if h.sem != nil {
		h.sem.Release(1)
	}
	h.stateMu.Lock()
	h.flag |= FlagBlocked
	h.stateMu.Unlock()
	h.poolCV.Wait()
	h.stateMu.Lock()
	h.flag &^= FlagBlocked
	h.stateMu.Unlock()
	p.mu.Unlock()
}
