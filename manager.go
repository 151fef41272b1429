// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package jingle

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"mellium.im/xmpp/jid"

	"mellium.im/jingle/element"
	"mellium.im/jingle/eventloop"
	"mellium.im/jingle/internal/attr"
	"mellium.im/jingle/internal/logging"
)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used by the manager and its sessions.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) {
		m.log = l
	}
}

// WithTimeout sets the timeout of requests sent by sessions.
// The pipeline default is used if it is zero.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.timeout = d
	}
}

// WithMetrics registers session metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(m *Manager) {
		m.metrics = newMetrics(reg)
	}
}

// OnIncoming adds a function that is called with every session created by a
// peer's session-initiate once the initiate was accepted.
// The contents it carried are available through Session.Contents.
// A session-initiate that is rejected never reaches these functions.
func OnIncoming(f func(*Session)) Option {
	return func(m *Manager) {
		m.incoming = append(m.incoming, f)
	}
}

type sessionKey struct {
	peer string
	sid  string
}

// Manager routes Jingle requests to sessions and creates sessions.
//
// Like sessions, a Manager must only be used from its event loop.
type Manager struct {
	local    jid.JID
	conn     Conn
	requests Requester
	sched    eventloop.Scheduler
	timeout  time.Duration
	log      zerolog.Logger
	metrics  *metrics
	incoming []func(*Session)
	sessions map[sessionKey]*Session
}

// NewManager returns a manager for the local address.
// Replies to incoming requests are written to conn and requests are queued
// on requests, usually a *pipeline.Pipeline writing to the same connection.
func NewManager(local jid.JID, conn Conn, requests Requester, sched eventloop.Scheduler, opts ...Option) *Manager {
	m := &Manager{
		local:    local,
		conn:     conn,
		requests: requests,
		sched:    sched,
		log:      logging.Base(),
		sessions: make(map[sessionKey]*Session),
	}
	for _, o := range opts {
		o(m)
	}
	m.log = logging.WithComponent(m.log, "jingle")
	return m
}

// Sessions returns every live session.
func (m *Manager) Sessions() []*Session {
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Session returns the session with a peer, or nil.
func (m *Manager) Session(peer jid.JID, sid string) *Session {
	return m.sessions[sessionKey{peer: peer.String(), sid: sid}]
}

// NewSession creates an outgoing session with peer.
// If d is DialectUnknown Jingle 1 is used.
func (m *Manager) NewSession(peer jid.JID, d Dialect) *Session {
	if d == DialectUnknown {
		d = DialectV032
	}
	sid := attr.SessionID()
	for m.sessions[sessionKey{peer: peer.String(), sid: sid}] != nil {
		sid = attr.SessionID()
	}
	return m.newSession(sid, peer, d, true)
}

func (m *Manager) newSession(sid string, peer jid.JID, d Dialect, localInitiator bool) *Session {
	s := newSession(sessionConfig{
		sid:            sid,
		local:          m.local,
		peer:           peer,
		localInitiator: localInitiator,
		dialect:        d,
		requests:       m.requests,
		sched:          m.sched,
		timeout:        m.timeout,
		log:            m.log,
		metrics:        m.metrics,
	})
	key := sessionKey{peer: peer.String(), sid: sid}
	m.sessions[key] = s
	m.metrics.setSessions(len(m.sessions))
	s.Subscribe(func(e Event) {
		if _, ok := e.(*Terminated); ok && m.sessions[key] == s {
			delete(m.sessions, key)
			m.metrics.setSessions(len(m.sessions))
		}
	})
	return s
}

// HandleIQ processes a Jingle or Google session request and writes the reply.
// The returned error is the one that was reported to the peer, if any.
func (m *Manager) HandleIQ(iq element.IQ) error {
	a, err := m.dispatch(iq)
	m.metrics.action(a, err)
	reply := iq.Result()
	if err != nil {
		m.log.Debug().Err(err).Str(logging.FieldAction, a.String()).Str(logging.FieldPeer, iq.From.String()).Msg("rejecting request")
		reply = replyError(iq, err)
	}
	if sendErr := m.conn.Send(reply); sendErr != nil {
		m.log.Warn().Err(sendErr).Str(logging.FieldID, iq.ID).Msg("sending reply failed")
	}
	return err
}

func (m *Manager) dispatch(iq element.IQ) (Action, error) {
	p := iq.Payload
	if p == nil {
		return ActionUnknown, malformed("request has no payload")
	}
	d := dialectFromNS(p.NS())
	if d == DialectUnknown || p.Name() != d.Payload() {
		return ActionUnknown, unsupported("unknown session payload {%s}%s", p.NS(), p.Name())
	}
	sid, name := p.Get("sid"), p.Get("action")
	if d.IsGoogle() {
		sid, name = p.Get("id"), p.Get("type")
	}
	a := ParseAction(d, name)
	if sid == "" {
		return a, malformed("session id is missing")
	}
	if a == ActionUnknown {
		return a, unsupported("unknown action %q", name)
	}

	key := sessionKey{peer: iq.From.String(), sid: sid}
	if s := m.sessions[key]; s != nil {
		return a, s.handle(a, p)
	}
	if a != ActionSessionInitiate {
		return a, &Error{Kind: KindStateConflict, Cond: CondUnknownSession, Text: "unknown session " + sid}
	}

	s := m.newSession(sid, iq.From, d, false)
	if err := s.handle(a, p); err != nil {
		s.endSession(ReasonUnknown, err.Error(), true, false)
		return a, err
	}
	for _, f := range m.incoming {
		f(s)
	}
	return a, nil
}

// Disconnected ends every session after the connection was lost.
// If the requester has a Close method, such as *pipeline.Pipeline, it is
// closed first so that outstanding requests fail.
func (m *Manager) Disconnected() {
	if c, ok := m.requests.(interface{ Close() }); ok {
		c.Close()
	}
	for _, s := range m.Sessions() {
		s.endSession(ReasonConnectivityError, "connection lost", true, false)
	}
}
