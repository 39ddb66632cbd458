// Package loop delivers timer callbacks to a single goroutine.
//
// The scheduler relies on every callback running to completion before the
// next one starts. Loop provides that: timers fire on their own goroutines but
// only hand the callback over a channel; the owner of the loop receives from
// C() and runs each callback itself.
package loop

import (
	"sync"
	"time"
)

// Loop implements logic.Timer on top of time.AfterFunc.
type Loop struct {
	fns  chan func()
	done chan struct{}
	once sync.Once

	mu      sync.Mutex
	pending int
}

// New creates a Loop. buffer is the channel capacity for ready callbacks.
func New(buffer int) *Loop {
	return &Loop{
		fns:  make(chan func(), buffer),
		done: make(chan struct{}),
	}
}

// After schedules fn to be delivered on C() after d. A zero delay still goes
// through the channel, so fn never runs inside the caller's stack.
func (l *Loop) After(d time.Duration, fn func()) {
	l.mu.Lock()
	l.pending++
	l.mu.Unlock()
	time.AfterFunc(d, func() { l.deliver(fn) })
}

// Post delivers fn on C() as soon as possible. Safe to call from any goroutine.
func (l *Loop) Post(fn func()) {
	l.After(0, fn)
}

func (l *Loop) deliver(fn func()) {
	defer func() {
		l.mu.Lock()
		l.pending--
		l.mu.Unlock()
	}()
	select {
	case l.fns <- fn:
	case <-l.done:
	}
}

// C returns the channel of callbacks ready to run.
func (l *Loop) C() <-chan func() {
	return l.fns
}

// Pending returns the number of scheduled callbacks not yet handed to C().
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pending
}

// Close releases timers waiting to deliver. Callbacks not yet received are
// discarded.
func (l *Loop) Close() {
	l.once.Do(func() { close(l.done) })
}
