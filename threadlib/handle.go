package threadlib

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// Flag is a bitwise-independent lifecycle flag for a Handle.
type Flag uint32

const (
	// FlagRunning is set while the handle's work function is executing.
	FlagRunning Flag = 1 << iota
	// FlagMarkedForPause is set by RequestPause; cleared by the handle
	// itself the next time it reaches TestAndPause.
	FlagMarkedForPause
	// FlagPaused is set by the handle itself, from within TestAndPause,
	// for the duration of the pause.
	FlagPaused
	// FlagBlocked is set while the handle is parked waiting on a
	// condition variable outside of TestAndPause (e.g. a pool worker
	// waiting to be redispatched).
	FlagBlocked
)

func (f Flag) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	if f&FlagRunning != 0 {
		parts = append(parts, "running")
	}
	if f&FlagMarkedForPause != 0 {
		parts = append(parts, "marked-for-pause")
	}
	if f&FlagPaused != 0 {
		parts = append(parts, "paused")
	}
	if f&FlagBlocked != 0 {
		parts = append(parts, "blocked")
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out += "|" + p
	}
	return out
}

// WorkFunc is the work a Handle runs. Arg is whatever was passed to Run.
type WorkFunc func(arg any)

// PauseHookFunc is invoked, under the handle's state mutex, the instant
// a paused handle resumes, before TestAndPause returns to its caller.
type PauseHookFunc func(arg any)

// Handle is a named goroutine with cooperative pause/resume. It is
// constructed idle: no work function, no underlying goroutine. Handle
// is safe for concurrent use.
type Handle struct {
	name string

	stateMu sync.Mutex
	stateCV *sync.Cond

	flag    Flag
	workFn  WorkFunc
	workArg any

	pauseHookFn  PauseHookFunc
	pauseHookArg any

	joinable bool
	started  bool
	done     chan struct{}

	// sem backs Pool.Dispatch's optional blocking wait. It is only ever
	// touched while the owning Pool's mutex is held (see pool.go); a
	// Handle not currently the target of a blocking dispatch has sem nil.
	sem *semaphore.Weighted

	// poolCV and elem are set the first time the handle is inserted into
	// a Pool, and are thereafter only touched while that Pool's mutex is
	// held. A handle not a member of any pool has both nil.
	poolCV     *sync.Cond
	elem       *list.Element
	execRecord *executionRecord

	log zerolog.Logger
}

// HandleOption configures a Handle at construction time.
type HandleOption func(*Handle)

// WithHandleLogger attaches a structured logger to the handle. The
// default is a no-op logger.
func WithHandleLogger(l zerolog.Logger) HandleOption {
	return func(h *Handle) { h.log = l }
}

// NewHandle allocates a handle with all flags cleared, no work assigned,
// and joinable mode enabled by default.
func NewHandle(name string, opts ...HandleOption) *Handle {
	h := &Handle{
		name:     name,
		joinable: true,
		log:      zerolog.Nop(),
	}
	h.stateCV = sync.NewCond(&h.stateMu)
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Name returns the handle's name.
func (h *Handle) Name() string { return h.name }

// SetJoinable sets joinable/detached mode. Must be called before Run.
func (h *Handle) SetJoinable(joinable bool) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	h.joinable = joinable
}

// SetPauseHook stores the function invoked on every resume from pause.
func (h *Handle) SetPauseHook(fn PauseHookFunc, arg any) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	h.pauseHookFn = fn
	h.pauseHookArg = arg
}

// Run stores task and arg, marks the handle Running, and spawns the
// underlying goroutine executing task(arg). Run panics if the handle
// already has work assigned or is already running: both are programmer
// errors (the handle must be fresh, or have had its prior work function
// cleared by whatever owns it).
func (h *Handle) Run(task WorkFunc, arg any) {
	if task == nil {
		panic("threadlib: nil work function")
	}

	h.stateMu.Lock()
	if h.workFn != nil {
		h.stateMu.Unlock()
		panic(fmt.Sprintf("threadlib: handle %q already has work assigned", h.name))
	}
	if h.flag&FlagRunning != 0 {
		h.stateMu.Unlock()
		panic(fmt.Sprintf("threadlib: handle %q already running", h.name))
	}

	h.workFn = task
	h.workArg = arg
	h.flag |= FlagRunning
	h.started = true
	joinable := h.joinable
	if joinable {
		h.done = make(chan struct{})
	}
	done := h.done
	h.log.Debug().Str("thread", h.name).Msg("threadlib: spawning")
	h.stateMu.Unlock()

	go func() {
		task(arg)
		if joinable {
			close(done)
		}
	}()
}

// RequestPause marks the handle for pause if it is currently running.
// Idempotent: calling it repeatedly, or on a handle that is not running,
// has no effect beyond the first successful call.
func (h *Handle) RequestPause() {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	if h.flag&FlagRunning != 0 {
		h.flag |= FlagMarkedForPause
	}
}

// Resume signals a paused handle to wake up. No effect if the handle is
// not currently paused.
func (h *Handle) Resume() {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	if h.flag&FlagPaused != 0 {
		h.stateCV.Signal()
	}
}

// TestAndPause must be called only by the handle's own goroutine, at a
// declared pause point. If the handle has been marked for pause, it
// transitions Running -> Paused, blocks until Resume is called, then
// transitions back to Running and invokes the pause hook (if any) while
// still holding the state mutex, before returning to the caller.
func (h *Handle) TestAndPause() {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	if h.flag&FlagMarkedForPause == 0 {
		return
	}

	h.flag |= FlagPaused
	h.flag &^= FlagMarkedForPause
	h.flag &^= FlagRunning
	h.log.Debug().Str("thread", h.name).Msg("threadlib: pausing")

	h.stateCV.Wait()

	h.flag |= FlagRunning
	h.flag &^= FlagPaused
	h.log.Debug().Str("thread", h.name).Msg("threadlib: resumed")

	if h.pauseHookFn != nil {
		h.pauseHookFn(h.pauseHookArg)
	}
}

// Flags returns a snapshot of the handle's lifecycle flags.
func (h *Handle) Flags() Flag {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	return h.flag
}

// Join blocks until the handle's work function returns, if the handle is
// joinable and has been run. It is a no-op for a detached or not-yet-run
// handle. Join is not meaningful for a handle dispatched via a Pool: the
// pool trampoline never returns.
func (h *Handle) Join() {
	h.stateMu.Lock()
	done := h.done
	joinable := h.joinable
	h.stateMu.Unlock()
	if !joinable || done == nil {
		return
	}
	<-done
}
