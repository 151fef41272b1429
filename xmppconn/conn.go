// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package xmppconn connects the jingle engine to an XMPP session.
//
// Outbound IQs are written to the session from the event loop. Replies and
// inbound requests arrive on the goroutine serving the session and are posted
// back to the loop before the engine sees them.
package xmppconn // import "mellium.im/jingle/xmppconn"

import (
	"context"
	"encoding/xml"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"mellium.im/xmlstream"
	"mellium.im/xmpp/stanza"

	"mellium.im/jingle/element"
	"mellium.im/jingle/internal/logging"
)

// ErrClosed is returned when sending on a closed Conn.
var ErrClosed = errors.New("xmppconn: connection closed")

// Session is the part of *xmpp.Session used by Conn.
type Session interface {
	Send(ctx context.Context, r xml.TokenReader) error
	SendIQ(ctx context.Context, r xml.TokenReader) (xmlstream.TokenReadCloser, error)
}

// Poster runs functions on the engine's event loop.
type Poster interface {
	Post(f func())
}

// Option configures a Conn.
type Option func(*Conn)

// WithLogger sets the logger used for send failures and dropped requests.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Conn) {
		c.log = l
	}
}

// Conn sends the engine's IQs over an XMPP session.
type Conn struct {
	s      Session
	loop   Poster
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns a Conn that writes to s and delivers replies on loop.
func New(s Session, loop Poster, opts ...Option) *Conn {
	c := &Conn{
		s:    s,
		loop: loop,
		log:  zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	c.log = logging.WithComponent(c.log, "xmppconn")
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c
}

// Send writes iq without waiting for a reply.
func (c *Conn) Send(iq element.IQ) error {
	if c.ctx.Err() != nil {
		return ErrClosed
	}
	return c.s.Send(c.ctx, iq.TokenReader())
}

// SendIQ writes iq and calls f on the loop with the reply.
// If the request cannot be completed f receives an error reply with the
// service-unavailable condition.
func (c *Conn) SendIQ(iq element.IQ, f func(element.IQ)) error {
	if c.ctx.Err() != nil {
		return ErrClosed
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		reply := c.roundTrip(iq)
		c.loop.Post(func() {
			f(reply)
		})
	}()
	return nil
}

func (c *Conn) roundTrip(iq element.IQ) element.IQ {
	r, err := c.s.SendIQ(c.ctx, iq.TokenReader())
	if err != nil {
		return c.failed(iq, err)
	}
	defer func() {
		if err := r.Close(); err != nil {
			c.log.Debug().Err(err).Str(logging.FieldID, iq.ID).Msg("closing reply")
		}
	}()
	reply, err := element.DecodeIQ(r, nil)
	if err != nil {
		return c.failed(iq, err)
	}
	return reply
}

func (c *Conn) failed(iq element.IQ, err error) element.IQ {
	c.log.Debug().Err(err).Str(logging.FieldID, iq.ID).Msg("request failed")
	return iq.ErrorReply(stanza.Error{
		Type:      stanza.Cancel,
		Condition: stanza.ServiceUnavailable,
		Text:      map[string]string{"": err.Error()},
	})
}

// Close cancels outstanding requests and waits for them to finish.
// Replies for cancelled requests are still posted to the loop.
func (c *Conn) Close() error {
	c.cancel()
	c.wg.Wait()
	return nil
}
