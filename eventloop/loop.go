// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package eventloop provides the single threaded scheduler that drives the
// jingle engine.
//
// All engine state is owned by the goroutine running the loop. Other
// goroutines (such as the one reading from the XMPP stream) hand work to the
// loop with Post and never touch engine objects directly.
package eventloop // import "mellium.im/jingle/eventloop"

import (
	"context"
	"sync"
	"time"
)

// Scheduler runs functions on a single goroutine in FIFO order.
type Scheduler interface {
	// Post schedules f to run on a later turn of the loop.
	Post(f func())

	// AfterFunc schedules f to run on the loop once d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer

	// Now returns the current time as seen by the loop.
	Now() time.Time
}

// Timer is a pending function scheduled with AfterFunc.
type Timer interface {
	// Stop prevents the function from running. It reports whether the call
	// stopped the timer; it returns false if the function already ran or the
	// timer was already stopped.
	// Stop must be called from the loop.
	Stop() bool
}

// Loop is a Scheduler backed by a goroutine running Run.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	closed bool
}

// New creates a loop. Nothing runs until Run is called.
func New() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Post schedules f to run on the loop. It is safe to call from any goroutine.
// Functions posted after Run returns are dropped.
func (l *Loop) Post(f func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, f)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Now returns the wall clock time.
func (l *Loop) Now() time.Time {
	return time.Now()
}

// AfterFunc schedules f to run on the loop after d.
func (l *Loop) AfterFunc(d time.Duration, f func()) Timer {
	t := &loopTimer{}
	t.t = time.AfterFunc(d, func() {
		l.Post(func() {
			if t.done {
				return
			}
			t.done = true
			f()
		})
	})
	return t
}

type loopTimer struct {
	t    *time.Timer
	done bool
}

func (t *loopTimer) Stop() bool {
	t.t.Stop()
	if t.done {
		return false
	}
	t.done = true
	return true
}

// Do runs f on the loop and waits for it to return.
// It must not be called from the loop itself.
func (l *Loop) Do(ctx context.Context, f func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		f()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes posted functions until ctx is canceled.
// Once Run returns the loop is closed and further posts are dropped.
func (l *Loop) Run(ctx context.Context) error {
	defer func() {
		l.mu.Lock()
		l.closed = true
		l.queue = nil
		l.mu.Unlock()
	}()
	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		for _, f := range batch {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f()
		}
		if len(batch) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}
