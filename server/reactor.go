package server

import (
	"context"
	"time"
)

// Reactor runs tasks one at a time on a single goroutine.
// Session, room and simulation state is only touched from reactor tasks,
// so none of it needs a lock. Tasks must not block and must never Post
// synchronously; blocking work runs elsewhere and posts its result back.
type Reactor struct {
	tasks chan func()
	quit  chan struct{}
	done  chan struct{}
}

func NewReactor() *Reactor {
	return &Reactor{
		tasks: make(chan func(), 256),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Post queues f. It returns false once the reactor has stopped.
func (r *Reactor) Post(f func()) bool {
	select {
	case <-r.quit:
		return false
	default:
	}

	select {
	case r.tasks <- f:
		return true
	case <-r.quit:
		return false
	}
}

// Call posts f and waits for it to run
func (r *Reactor) Call(f func()) bool {
	ran := make(chan struct{})
	if !r.Post(func() { f(); close(ran) }) {
		return false
	}
	select {
	case <-ran:
		return true
	case <-r.quit:
		return false
	}
}

// After posts f onto the reactor once d has elapsed.
// Stopping the returned timer before it fires drops f.
func (r *Reactor) After(d time.Duration, f func()) *time.Timer {
	return time.AfterFunc(d, func() { r.Post(f) })
}

// Run executes tasks until ctx is done, then runs onStop on the
// reactor goroutine. Tasks still queued at that point are dropped.
func (r *Reactor) Run(ctx context.Context, onStop func()) {
	defer close(r.done)

	for {
		select {
		case f := <-r.tasks:
			f()
		case <-ctx.Done():
			close(r.quit)
			if onStop != nil {
				onStop()
			}
			return
		}
	}
}

// Done is closed when Run returns
func (r *Reactor) Done() <-chan struct{} {
	return r.done
}
