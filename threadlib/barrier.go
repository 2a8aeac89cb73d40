package threadlib

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Barrier is a reusable N-way rendezvous with a two-phase "arrive" /
// "dispose" discipline: exactly one signal enters the cohort when the
// Nth thread arrives, and each waiter relays it to the next until the
// cohort has fully departed, at which point the next cohort is admitted.
type Barrier struct {
	mu        sync.Mutex
	arriveCV  *sync.Cond
	disposeCV *sync.Cond

	threshold uint32
	arrived   uint32
	ready     bool

	log zerolog.Logger
}

// BarrierOption configures a Barrier at construction time.
type BarrierOption func(*Barrier)

// WithBarrierLogger attaches a structured logger to the barrier. The
// default is a no-op logger.
func WithBarrierLogger(l zerolog.Logger) BarrierOption {
	return func(b *Barrier) { b.log = l }
}

// BarrierSnapshot is a point-in-time, lock-free-to-read copy of a
// Barrier's bookkeeping fields, for diagnostics.
type BarrierSnapshot struct {
	Threshold uint32
	Arrived   uint32
	Ready     bool
}

// NewBarrier allocates a barrier with the given rendezvous threshold.
// threshold must be at least 1.
func NewBarrier(threshold uint32, opts ...BarrierOption) *Barrier {
	if threshold == 0 {
		panic("threadlib: barrier threshold must be at least 1")
	}
	b := &Barrier{threshold: threshold, ready: true, log: zerolog.Nop()}
	b.arriveCV = sync.NewCond(&b.mu)
	b.disposeCV = sync.NewCond(&b.mu)
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Wait blocks the calling goroutine until threshold goroutines,
// including this one, have called Wait as part of the same cohort.
// Cohort separation is guaranteed: no goroutine of cohort k+1 returns
// from Wait until every goroutine of cohort k has returned.
func (b *Barrier) Wait() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for !b.ready {
		b.disposeCV.Wait()
	}

	if b.arrived+1 == b.threshold {
		// Last arrival: begin disposition, relay exactly one signal into
		// the cohort, and return without incrementing arrived or waiting.
		b.ready = false
		b.arriveCV.Signal()
		return
	}

	b.arrived++
	b.arriveCV.Wait()

	b.arrived--
	if b.arrived == 0 {
		b.ready = true
		b.disposeCV.Broadcast()
	} else {
		b.arriveCV.Signal()
	}
}

// SignalAll force-signals one goroutine blocked in the arrival phase,
// ignoring the threshold. Intended for diagnostics and shutdown; it
// does not perform a disposition handoff.
func (b *Barrier) SignalAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.arrived > 0 {
		b.arriveCV.Signal()
	}
}

// Snapshot returns the barrier's current bookkeeping fields.
func (b *Barrier) Snapshot() BarrierSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BarrierSnapshot{Threshold: b.threshold, Arrived: b.arrived, Ready: b.ready}
}

// Destroy releases the barrier. Precondition: no goroutine may be
// blocked in Wait; violating this is a programmer error and panics.
func (b *Barrier) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.arrived > 0 {
		panic(fmt.Sprintf("threadlib: destroying barrier with %d waiter(s) still blocked", b.arrived))
	}
}
