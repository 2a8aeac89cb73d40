// Package threadlib implements a small set of reusable thread
// synchronization primitives: a goroutine handle with cooperative
// pause/resume (Handle), a pool of idle handles with task dispatch
// (Pool), a reusable N-way rendezvous barrier (Barrier), and an
// application-owned wait queue bound to an external mutex (WaitQueue).
//
// These mirror, component for component, the thread_t / thread_pool_t /
// th_barrier_t / wait_queue_t primitives of the C threadlib this package
// is modelled on, translated to goroutines, sync.Mutex/sync.Cond, and
// golang.org/x/sync/semaphore in place of POSIX threads, mutexes,
// condition variables, and counting semaphores.
//
// Every primitive here is explicitly documented as thread-safe where
// stated; none of them support cancellation or timed waits (beyond the
// context passed to Pool.Dispatch's blocking wait), matching the
// synchronous, process-lifetime-scoped nature of the originals.
package threadlib
