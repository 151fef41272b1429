// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package pipeline serializes outgoing IQ requests that expect a reply.
//
// A Pipeline keeps a bounded number of requests on the wire, times out
// requests that never get a reply, and guarantees that every enqueued
// request's callback runs exactly once. Requests that are cancelled or time
// out after they were sent become zombies: their callback has already run,
// but the item lingers until the reply arrives so that it can be discarded.
//
// A Pipeline is not safe for concurrent use; it must only be used from the
// goroutine running its scheduler.
package pipeline // import "mellium.im/jingle/pipeline"

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"mellium.im/jingle/element"
	"mellium.im/jingle/eventloop"
	"mellium.im/jingle/internal/attr"
	"mellium.im/jingle/internal/logging"
)

// Defaults used when no options are provided.
const (
	DefaultCapacity = 10
	DefaultTimeout  = 180 * time.Second
)

// Errors delivered to callbacks.
var (
	ErrCancelled    = errors.New("pipeline: request cancelled")
	ErrTimeout      = errors.New("pipeline: request timed out")
	ErrDisconnected = errors.New("pipeline: connection closed")
)

// Sender writes IQs to the connection.
//
// If SendIQ returns nil it must eventually call f exactly once, on the
// pipeline's scheduler, with the reply. It must not call f before SendIQ
// returns.
type Sender interface {
	SendIQ(iq element.IQ, f func(reply element.IQ)) error
}

// Callback is called once per request.
// On success err is nil and reply is the result IQ. If the reply was an error
// IQ both are set and err is a stanza.Error.
type Callback func(reply *element.IQ, err error)

// Stats reports the number of items in each category.
type Stats struct {
	Pending  int
	InFlight int
	Zombies  int
}

// Pipeline tracks outstanding requests.
type Pipeline struct {
	sender   Sender
	sched    eventloop.Scheduler
	capacity int
	timeout  time.Duration
	log      zerolog.Logger
	metrics  *metrics

	pending  []*Item
	inFlight []*Item
	zombies  []*Item

	drainPosted bool
	closed      bool
}

// New creates a pipeline that sends requests using s.
func New(s Sender, sched eventloop.Scheduler, opts ...Option) *Pipeline {
	p := &Pipeline{
		sender:   s,
		sched:    sched,
		capacity: DefaultCapacity,
		timeout:  DefaultTimeout,
		log:      zerolog.Nop(),
	}
	for _, o := range opts {
		o(p)
	}
	p.log = logging.WithComponent(p.log, "pipeline")
	return p
}

// Item is a request tracked by the pipeline.
type Item struct {
	p        *Pipeline
	iq       element.IQ
	timeout  time.Duration
	cb       Callback
	timer    eventloop.Timer
	inFlight bool
	zombie   bool
	called   bool
	deleted  bool
}

// IQ returns the request.
func (it *Item) IQ() element.IQ {
	return it.iq
}

// Enqueue adds a request to the end of the queue.
// If timeout is zero the pipeline's default is used. The callback never runs
// before Enqueue returns.
// If iq has no ID a random one is assigned.
func (p *Pipeline) Enqueue(iq element.IQ, timeout time.Duration, cb Callback) *Item {
	if iq.ID == "" {
		iq.ID = attr.RandomID()
	}
	if timeout <= 0 {
		timeout = p.timeout
	}
	it := &Item{p: p, iq: iq, timeout: timeout, cb: cb}
	if p.closed {
		p.sched.Post(func() {
			it.deleted = true
			it.finish(nil, ErrDisconnected)
		})
		return it
	}
	p.pending = append(p.pending, it)
	p.metrics.setDepth(p)
	if len(p.inFlight) < p.capacity {
		p.scheduleDrain()
	}
	return it
}

func (p *Pipeline) scheduleDrain() {
	if p.drainPosted {
		return
	}
	p.drainPosted = true
	p.sched.Post(p.drain)
}

func (p *Pipeline) drain() {
	p.drainPosted = false
	for !p.closed && len(p.pending) > 0 && len(p.inFlight) < p.capacity {
		it := p.pending[0]
		p.pending = p.pending[1:]

		err := p.sender.SendIQ(it.iq, func(reply element.IQ) {
			p.response(it, reply)
		})
		if err != nil {
			p.log.Debug().Err(err).Str(logging.FieldID, it.iq.ID).Msg("send failed")
			it.deleted = true
			p.metrics.observe(outcomeSendError)
			it.finish(nil, err)
			continue
		}
		it.inFlight = true
		p.inFlight = append(p.inFlight, it)
		it.timer = p.sched.AfterFunc(it.timeout, func() {
			p.timedOut(it)
		})
	}
	p.metrics.setDepth(p)
}

func (it *Item) finish(reply *element.IQ, err error) {
	if it.called {
		return
	}
	it.called = true
	if it.cb != nil {
		it.cb(reply, err)
	}
}

// Cancel cancels the request. The callback is called with ErrCancelled unless
// it has already been called.
// If the request is on the wire the item is kept until its reply arrives.
func (it *Item) Cancel() {
	p := it.p
	if it.deleted || it.zombie {
		return
	}
	if !it.inFlight {
		p.pending = remove(p.pending, it)
		it.deleted = true
		p.metrics.setDepth(p)
		p.metrics.observe(outcomeCancelled)
		it.finish(nil, ErrCancelled)
		return
	}
	p.metrics.observe(outcomeCancelled)
	p.zombify(it, ErrCancelled)
}

func (p *Pipeline) timedOut(it *Item) {
	if it.deleted || it.zombie || !it.inFlight {
		return
	}
	p.log.Debug().Str(logging.FieldID, it.iq.ID).Dur("timeout", it.timeout).Msg("request timed out")
	p.metrics.observe(outcomeTimeout)
	p.zombify(it, ErrTimeout)
}

func (p *Pipeline) zombify(it *Item, err error) {
	if it.timer != nil {
		it.timer.Stop()
	}
	p.inFlight = remove(p.inFlight, it)
	it.inFlight = false
	it.zombie = true
	p.zombies = append(p.zombies, it)
	p.metrics.setDepth(p)
	it.finish(nil, err)
	if !p.closed && len(p.pending) > 0 {
		p.scheduleDrain()
	}
}

func (p *Pipeline) response(it *Item, reply element.IQ) {
	if p.closed || it.deleted {
		return
	}
	if it.zombie {
		p.log.Debug().Str(logging.FieldID, it.iq.ID).Msg("reaping zombie")
		p.zombies = remove(p.zombies, it)
		it.deleted = true
		p.metrics.setDepth(p)
		return
	}
	if !it.inFlight {
		return
	}
	if it.timer != nil {
		it.timer.Stop()
	}
	p.inFlight = remove(p.inFlight, it)
	it.inFlight = false
	it.deleted = true
	p.metrics.setDepth(p)

	err := reply.Err()
	if err != nil {
		p.metrics.observe(outcomeError)
	} else {
		p.metrics.observe(outcomeSuccess)
	}
	it.finish(&reply, err)
	if len(p.pending) > 0 {
		p.scheduleDrain()
	}
}

// Close fails every outstanding request with ErrDisconnected and empties the
// pipeline. Zombies are dropped without calling their callbacks again.
// Requests enqueued after Close fail asynchronously with ErrDisconnected.
func (p *Pipeline) Close() {
	if p.closed {
		return
	}
	p.closed = true
	var flush []*Item
	flush = append(flush, p.inFlight...)
	flush = append(flush, p.pending...)
	flush = append(flush, p.zombies...)
	p.inFlight, p.pending, p.zombies = nil, nil, nil
	p.metrics.setDepth(p)

	for _, it := range flush {
		if it.timer != nil {
			it.timer.Stop()
		}
		it.deleted = true
		it.inFlight = false
		if !it.zombie {
			p.metrics.observe(outcomeDisconnected)
			it.finish(nil, ErrDisconnected)
		}
	}
}

// Stats returns the current size of each list.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Pending:  len(p.pending),
		InFlight: len(p.inFlight),
		Zombies:  len(p.zombies),
	}
}

func remove(items []*Item, it *Item) []*Item {
	for i, v := range items {
		if v == it {
			return append(items[:i:i], items[i+1:]...)
		}
	}
	return items
}
