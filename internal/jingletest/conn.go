// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package jingletest provides utilities for testing the jingle engine without
// a network connection.
package jingletest // import "mellium.im/jingle/internal/jingletest"

import (
	"errors"
	"strconv"

	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/stanza"

	"mellium.im/jingle/element"
)

// Default addresses used by tests.
var (
	Local = jid.MustParse("romeo@example.net/orchard")
	Peer  = jid.MustParse("juliet@example.com/balcony")
)

// ErrSend is returned by Conn when SendErr is set to true.
var ErrSend = errors.New("jingletest: send failed")

// Conn records IQs instead of writing them to a stream.
// Requests sent with SendIQ wait until the test replies to them.
type Conn struct {
	// Sent contains every IQ in the order it was written.
	Sent []element.IQ

	// FailSend causes every send to fail with ErrSend.
	FailSend bool

	waiting map[string]func(element.IQ)
	order   []string
	next    int
}

// New returns an empty connection.
func New() *Conn {
	return &Conn{waiting: make(map[string]func(element.IQ))}
}

func (c *Conn) record(iq element.IQ) element.IQ {
	if iq.ID == "" {
		c.next++
		iq.ID = "test-" + strconv.Itoa(c.next)
	}
	c.Sent = append(c.Sent, iq)
	return iq
}

// Send records iq.
func (c *Conn) Send(iq element.IQ) error {
	if c.FailSend {
		return ErrSend
	}
	c.record(iq)
	return nil
}

// SendIQ records iq and holds f until Reply, ReplyError or Drop is called.
func (c *Conn) SendIQ(iq element.IQ, f func(element.IQ)) error {
	if c.FailSend {
		return ErrSend
	}
	iq = c.record(iq)
	c.waiting[iq.ID] = f
	c.order = append(c.order, iq.ID)
	return nil
}

// Outstanding returns the IDs of requests that have not been answered, in
// the order they were sent.
func (c *Conn) Outstanding() []string {
	var ids []string
	for _, id := range c.order {
		if _, ok := c.waiting[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func (c *Conn) take(id string) (element.IQ, func(element.IQ), bool) {
	f, ok := c.waiting[id]
	if !ok {
		return element.IQ{}, nil, false
	}
	delete(c.waiting, id)
	for _, iq := range c.Sent {
		if iq.ID == id {
			return iq, f, true
		}
	}
	return element.IQ{}, f, true
}

// Reply answers the request with the given ID with an empty result.
// It reports whether such a request was waiting.
func (c *Conn) Reply(id string) bool {
	iq, f, ok := c.take(id)
	if !ok {
		return false
	}
	f(iq.Result())
	return true
}

// ReplyError answers the request with the given ID with an error.
func (c *Conn) ReplyError(id string, se stanza.Error) bool {
	iq, f, ok := c.take(id)
	if !ok {
		return false
	}
	f(iq.ErrorReply(se))
	return true
}

// ReplyAll answers every outstanding request with an empty result.
func (c *Conn) ReplyAll() {
	for _, id := range c.Outstanding() {
		c.Reply(id)
	}
}

// Action returns the jingle action or GTalk session type of an IQ payload.
func Action(iq element.IQ) string {
	if iq.Payload == nil {
		return ""
	}
	if a := iq.Payload.Get("action"); a != "" {
		return a
	}
	return iq.Payload.Get("type")
}

// Actions returns the action of every recorded IQ.
func (c *Conn) Actions() []string {
	out := make([]string, 0, len(c.Sent))
	for _, iq := range c.Sent {
		out = append(out, Action(iq))
	}
	return out
}

// ByAction returns the recorded IQs carrying the given action.
func (c *Conn) ByAction(action string) []element.IQ {
	var out []element.IQ
	for _, iq := range c.Sent {
		if Action(iq) == action {
			out = append(out, iq)
		}
	}
	return out
}

// IDOf returns the ID of the last recorded IQ with the given action.
func (c *Conn) IDOf(action string) string {
	for i := len(c.Sent) - 1; i >= 0; i-- {
		if Action(c.Sent[i]) == action {
			return c.Sent[i].ID
		}
	}
	return ""
}

// Reset forgets recorded IQs. Outstanding requests are kept.
func (c *Conn) Reset() {
	c.Sent = nil
}
