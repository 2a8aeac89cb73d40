package threadlib

import (
	"sync"

	"github.com/rs/zerolog"
)

// Predicate is the application-supplied, dual-mode re-check condition a
// WaitQueue blocks on. Acquire is called exactly once at the start of
// every TestAndWait call: it must acquire the application mutex, return
// it (the first call's mutex is cached by the queue and waited on), and
// report whether the caller should still block. Recheck is called every time
// the queue wakes from a wait, with the application mutex already held
// by the wait itself; it must not itself touch any lock.
type Predicate struct {
	Acquire func(arg any) (mu sync.Locker, shouldBlock bool)
	Recheck func(arg any) bool
}

// WaitQueue is a predicate-guarded wait bound to a caller-supplied
// mutex: it caches that mutex on first use and waits on it for the
// queue's entire lifetime. WaitQueue does not own or create the
// application mutex; the application is responsible for locking and
// unlocking it around its own state.
type WaitQueue struct {
	waiterCount int
	cv          *sync.Cond
	appMutex    sync.Locker

	log zerolog.Logger
}

// WaitQueueOption configures a WaitQueue at construction time.
type WaitQueueOption func(*WaitQueue)

// WithWaitQueueLogger attaches a structured logger to the queue. The
// default is a no-op logger.
func WithWaitQueueLogger(l zerolog.Logger) WaitQueueOption {
	return func(q *WaitQueue) { q.log = l }
}

// NewWaitQueue allocates an empty wait queue. It does not yet know its
// application mutex; that is cached on the first call to TestAndWait.
func NewWaitQueue(opts ...WaitQueueOption) *WaitQueue {
	q := &WaitQueue{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// TestAndWait registers the application mutex (on first use) via
// pred.Acquire, then blocks on the queue's condition variable for as
// long as the predicate reports the caller should still block,
// re-checking via pred.Recheck on every wake. TestAndWait always
// returns with the application mutex held; the caller is responsible
// for releasing it.
func (q *WaitQueue) TestAndWait(pred Predicate, arg any) {
	mu, shouldBlock := pred.Acquire(arg)
	if q.cv == nil {
		q.appMutex = mu
		q.cv = sync.NewCond(mu)
	}

	for shouldBlock {
		q.waiterCount++
		q.log.Debug().Int("waiters", q.waiterCount).Msg("threadlib: wait queue blocking")
		q.cv.Wait()
		q.waiterCount--
		shouldBlock = pred.Recheck(arg)
	}
}

// Signal wakes one waiter, if any are blocked. If lockMutex is true,
// Signal acquires the cached application mutex around the wake; the
// caller must already hold it if lockMutex is false. No-op if no
// TestAndWait call has yet registered an application mutex.
func (q *WaitQueue) Signal(lockMutex bool) {
	q.wake(lockMutex, false)
}

// Broadcast wakes every waiter, if any are blocked. See Signal for the
// lockMutex contract.
func (q *WaitQueue) Broadcast(lockMutex bool) {
	q.wake(lockMutex, true)
}

func (q *WaitQueue) wake(lockMutex, all bool) {
	if q.appMutex == nil {
		return
	}
	if lockMutex {
		q.appMutex.Lock()
	}
	if q.waiterCount > 0 {
		if all {
			q.cv.Broadcast()
		} else {
			q.cv.Signal()
		}
	}
	if lockMutex {
		q.appMutex.Unlock()
	}
}

// Destroy releases the queue's registration of its application mutex.
// It does not touch the mutex itself, which the application continues
// to own.
func (q *WaitQueue) Destroy() {
	q.cv = nil
	q.appMutex = nil
}
