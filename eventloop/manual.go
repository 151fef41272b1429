// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package eventloop

import (
	"sort"
	"time"
)

// Manual is a Scheduler that only runs work when told to.
// Time is simulated and starts at the zero time plus one hour.
// It is not safe for concurrent use and is meant for tests.
type Manual struct {
	now    time.Time
	queue  []func()
	timers []*manualTimer
	seq    int
}

// NewManual returns a manual scheduler.
func NewManual() *Manual {
	return &Manual{now: time.Time{}.Add(time.Hour)}
}

// Post queues f until the next call to RunPending or Advance.
func (m *Manual) Post(f func()) {
	m.queue = append(m.queue, f)
}

// Now returns the simulated time.
func (m *Manual) Now() time.Time {
	return m.now
}

// AfterFunc registers f to run once the simulated clock passes d.
func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	m.seq++
	t := &manualTimer{when: m.now.Add(d), f: f, seq: m.seq}
	m.timers = append(m.timers, t)
	return t
}

// Pending returns the number of queued functions, not counting timers.
func (m *Manual) Pending() int {
	return len(m.queue)
}

// RunPending runs queued functions, including any they queue in turn, until
// the queue is empty. Timers that are already due also fire.
func (m *Manual) RunPending() {
	for {
		m.fireDue()
		if len(m.queue) == 0 {
			return
		}
		f := m.queue[0]
		m.queue = m.queue[1:]
		f()
	}
}

// Advance moves the simulated clock forward by d, firing timers in deadline
// order and running any work they queue.
func (m *Manual) Advance(d time.Duration) {
	m.RunPending()
	end := m.now.Add(d)
	for {
		t := m.nextTimer()
		if t == nil || t.when.After(end) {
			break
		}
		if t.when.After(m.now) {
			m.now = t.when
		}
		m.RunPending()
	}
	m.now = end
	m.RunPending()
}

func (m *Manual) nextTimer() *manualTimer {
	m.prune()
	if len(m.timers) == 0 {
		return nil
	}
	return m.timers[0]
}

func (m *Manual) prune() {
	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.done {
			live = append(live, t)
		}
	}
	m.timers = live
	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].when.Equal(m.timers[j].when) {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].when.Before(m.timers[j].when)
	})
}

func (m *Manual) fireDue() {
	for {
		t := m.nextTimer()
		if t == nil || t.when.After(m.now) {
			return
		}
		t.done = true
		m.queue = append(m.queue, t.f)
	}
}

type manualTimer struct {
	when time.Time
	f    func()
	seq  int
	done bool
}

func (t *manualTimer) Stop() bool {
	if t.done {
		return false
	}
	t.done = true
	return true
}
