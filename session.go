// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package jingle

import (
	"context"
	"errors"
	"time"

	"github.com/looplab/fsm"
	"github.com/rs/zerolog"
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/stanza"

	"mellium.im/jingle/element"
	"mellium.im/jingle/eventloop"
	"mellium.im/jingle/internal/attr"
	"mellium.im/jingle/internal/logging"
	"mellium.im/jingle/internal/ns"
	"mellium.im/jingle/pipeline"
	"mellium.im/jingle/transport"
)

// Conn sends stanzas that do not expect a reply, such as the result of an
// incoming request.
type Conn interface {
	Send(iq element.IQ) error
}

// Requester queues requests and calls back with their replies.
// The callback must not run before Enqueue returns.
// *pipeline.Pipeline implements Requester.
type Requester interface {
	Enqueue(iq element.IQ, timeout time.Duration, cb pipeline.Callback) *pipeline.Item
}

// Names of the state machine events.
const (
	evSendInitiate = "send-initiate"
	evInitiate     = "initiate"
	evSendAccept   = "send-accept"
	evActivate     = "activate"
	evTerminate    = "terminate"
)

func newMachine(cb fsm.Callback) *fsm.FSM {
	created := StatePendingCreated.String()
	initiateSent := StatePendingInitiateSent.String()
	initiated := StatePendingInitiated.String()
	acceptSent := StatePendingAcceptSent.String()
	active := StateActive.String()
	return fsm.NewFSM(
		created,
		fsm.Events{
			{Name: evSendInitiate, Src: []string{created}, Dst: initiateSent},
			{Name: evInitiate, Src: []string{created, initiateSent}, Dst: initiated},
			{Name: evSendAccept, Src: []string{initiated}, Dst: acceptSent},
			{Name: evActivate, Src: []string{initiateSent, initiated, acceptSent}, Dst: active},
			{Name: evTerminate, Src: []string{created, initiateSent, initiated, acceptSent, active}, Dst: StateEnded.String()},
		},
		fsm.Callbacks{
			"enter_state": cb,
		},
	)
}

// allowed lists the actions the peer may send in each state.
var allowed = map[SessionState][]Action{
	StatePendingCreated: {ActionSessionInitiate},
	StatePendingInitiateSent: {
		ActionSessionTerminate, ActionSessionAccept, ActionTransportAccept,
		ActionDescriptionInfo, ActionSessionInfo, ActionTransportInfo, ActionInfo,
	},
	StatePendingInitiated: {
		ActionSessionAccept, ActionSessionTerminate, ActionTransportInfo,
		ActionContentReject, ActionContentModify, ActionContentAccept,
		ActionContentRemove, ActionDescriptionInfo, ActionTransportAccept,
		ActionSessionInfo, ActionInfo,
	},
	StatePendingAcceptSent: {
		ActionTransportInfo, ActionDescriptionInfo, ActionSessionTerminate,
		ActionSessionInfo, ActionContentRemove, ActionInfo,
	},
	StateActive: {
		ActionContentModify, ActionContentAdd, ActionContentRemove,
		ActionContentReplace, ActionContentAccept, ActionContentReject,
		ActionSessionInfo, ActionTransportInfo, ActionDescriptionInfo,
		ActionInfo, ActionSessionTerminate,
	},
}

func isAllowed(st SessionState, a Action) bool {
	for _, v := range allowed[st] {
		if v == a {
			return true
		}
	}
	return false
}

// Session is a Jingle session with a single peer.
//
// Sessions are not safe for concurrent use; every method must be called from
// the event loop the session was created with.
type Session struct {
	sid            string
	local          jid.JID
	peer           jid.JID
	localInitiator bool
	dialect        Dialect
	machine        *fsm.FSM

	contents        []*Content
	locallyAccepted bool
	tornDown        bool

	requests    Requester
	sched       eventloop.Scheduler
	timeout     time.Duration
	log         zerolog.Logger
	metrics     *metrics
	events      bus
	outstanding map[*pipeline.Item]struct{}
}

type sessionConfig struct {
	sid            string
	local, peer    jid.JID
	localInitiator bool
	dialect        Dialect
	requests       Requester
	sched          eventloop.Scheduler
	timeout        time.Duration
	log            zerolog.Logger
	metrics        *metrics
}

func newSession(cfg sessionConfig) *Session {
	s := &Session{
		sid:             cfg.sid,
		local:           cfg.local,
		peer:            cfg.peer,
		localInitiator:  cfg.localInitiator,
		locallyAccepted: cfg.localInitiator,
		dialect:         cfg.dialect,
		requests:        cfg.requests,
		sched:           cfg.sched,
		timeout:         cfg.timeout,
		metrics:         cfg.metrics,
		outstanding:     make(map[*pipeline.Item]struct{}),
	}
	s.log = cfg.log.With().
		Str(logging.FieldSID, cfg.sid).
		Str(logging.FieldPeer, cfg.peer.String()).
		Logger()
	s.machine = newMachine(func(_ context.Context, e *fsm.Event) {
		from, to := parseSessionState(e.Src), parseSessionState(e.Dst)
		s.log.Debug().Stringer("from", from).Stringer(logging.FieldState, to).Msg("session state changed")
		s.emit(&StateChanged{sessionEvent: sessionEvent{s}, From: from, To: to})
	})
	return s
}

// SID returns the session ID.
func (s *Session) SID() string { return s.sid }

// Peer returns the address of the other party.
func (s *Session) Peer() jid.JID { return s.peer }

// LocalInitiator reports whether we initiated the session.
func (s *Session) LocalInitiator() bool { return s.localInitiator }

// Dialect returns the dialect spoken with the peer.
func (s *Session) Dialect() Dialect { return s.dialect }

// State returns the current state of the session.
func (s *Session) State() SessionState {
	return parseSessionState(s.machine.Current())
}

// Contents returns the contents of the session in the order they were added.
func (s *Session) Contents() []*Content {
	return append([]*Content(nil), s.contents...)
}

// Content returns the content with the given name or nil.
func (s *Session) Content(name string) *Content {
	for _, c := range s.contents {
		if c.name == name {
			return c
		}
	}
	return nil
}

// Subscribe registers h to receive the session's events and returns a
// function that unregisters it.
func (s *Session) Subscribe(h Handler) func() {
	return s.events.subscribe(h)
}

// Ended reports whether the session was terminated. It becomes true before
// the session's contents are removed.
func (s *Session) Ended() bool {
	return s.tornDown
}

func (s *Session) emit(e Event) {
	s.events.emit(e)
}

func (s *Session) alive() bool {
	return !s.tornDown
}

func (s *Session) checkAlive() error {
	if s.tornDown {
		return notAvailable("session has ended")
	}
	return nil
}

func (s *Session) initiator() jid.JID {
	if s.localInitiator {
		return s.local
	}
	return s.peer
}

func (s *Session) fire(ev string) {
	err := s.machine.Event(context.Background(), ev)
	if err != nil {
		s.log.Debug().Err(err).Str("event", ev).Msg("ignoring state change")
	}
}

func (s *Session) setDialect(d Dialect) {
	if d == s.dialect {
		return
	}
	if s.dialect != DialectGTalk4 || d != DialectGTalk3 {
		s.log.Warn().Stringer(logging.FieldDialect, d).Msg("refusing dialect change")
		return
	}
	from := s.dialect
	s.dialect = d
	s.log.Debug().Stringer(logging.FieldDialect, d).Msg("peer speaks lj0.3, falling back")
	s.emit(&DialectChanged{sessionEvent: sessionEvent{s}, From: from, To: d})
}

// newMessage returns a request carrying action a and its session payload.
func (s *Session) newMessage(a Action) (element.IQ, *element.Element) {
	name := a.Name(s.dialect)
	if name == "" {
		name = a.String()
	}
	p := element.New(s.dialect.NS(), s.dialect.Payload())
	if s.dialect.IsGoogle() {
		p.Set("type", name).
			Set("id", s.sid).
			Set("initiator", s.initiator().String())
	} else {
		p.Set("action", name).
			Set("sid", s.sid).
			Set("initiator", s.initiator().String())
		if a == ActionSessionAccept {
			p.Set("responder", s.local.String())
		}
	}
	iq := element.IQ{
		IQ: stanza.IQ{
			ID:   attr.RandomID(),
			To:   s.peer,
			From: s.local,
			Type: stanza.SetIQ,
		},
		Payload: p,
	}
	return iq, p
}

// request queues iq on the pipeline and tracks it until cb runs.
func (s *Session) request(iq element.IQ, cb pipeline.Callback) *pipeline.Item {
	var it *pipeline.Item
	it = s.requests.Enqueue(iq, s.timeout, func(reply *element.IQ, err error) {
		delete(s.outstanding, it)
		cb(reply, err)
	})
	s.outstanding[it] = struct{}{}
	return it
}

// send queues a request whose reply only gets logged.
func (s *Session) send(iq element.IQ) error {
	if err := s.checkAlive(); err != nil {
		return err
	}
	action := jingletAction(iq.Payload)
	s.request(iq, func(_ *element.IQ, err error) {
		if err != nil && !errors.Is(err, pipeline.ErrCancelled) {
			s.log.Debug().Err(err).Str(logging.FieldAction, action).Msg("request failed")
		}
	})
	return nil
}

func jingletAction(p *element.Element) string {
	if a := p.Get("action"); a != "" {
		return a
	}
	return p.Get("type")
}

// AddContent adds a local content to the session. It is offered once it is
// ready, either in the session-initiate or with content-add.
func (s *Session) AddContent(opts ContentOptions) (*Content, error) {
	if err := s.checkAlive(); err != nil {
		return nil, err
	}
	if opts.Kind == nil {
		return nil, notAvailable("content needs a kind")
	}
	st := s.State()
	if st > StatePendingCreated && !s.dialect.CanModifyContents() {
		return nil, unsupported("%s cannot add contents to an existing session", s.dialect)
	}
	if s.dialect.IsGoogle() && len(s.contents) > 0 {
		return nil, unsupported("%s sessions carry a single content", s.dialect)
	}
	name := opts.Name
	if name == "" {
		name = attr.RandomID()
	}
	if s.Content(name) != nil {
		return nil, notAvailable("content %q already exists", name)
	}
	transNS := opts.Transport
	if transNS == "" {
		transNS = transport.NSICEUDP
		if s.dialect.IsGoogle() {
			transNS = transport.NSGoogleP2P
		}
	}
	if !transport.Supported(transNS) {
		return nil, unsupported("unsupported transport %q", transNS)
	}

	c := newContent(s, name, opts.Kind, true)
	trans, err := transport.New(transNS, c)
	if err != nil {
		return nil, unsupported("%v", err)
	}
	c.trans = trans
	c.transNS = transNS
	if opts.Senders != SendersNone {
		c.senders = opts.Senders
	}
	c.disposition = opts.Disposition
	if c.disposition == "" && st == StatePendingCreated {
		c.disposition = DispositionSession
	}
	s.addContent(c)
	return c, nil
}

func (s *Session) addContent(c *Content) {
	s.contents = append(s.contents, c)
	s.log.Debug().Str(logging.FieldContent, c.name).Bool("local", c.createdByUs).Msg("content added")
	s.emit(&ContentAdded{sessionEvent: sessionEvent{s}, Content: c})
	c.announced = true
}

func (s *Session) contentRemoved(c *Content) {
	for i, v := range s.contents {
		if v == c {
			s.contents = append(s.contents[:i:i], s.contents[i+1:]...)
			break
		}
	}
	if c.announced {
		s.emit(&ContentRemoved{sessionEvent: sessionEvent{s}, Content: c})
	}
	if len(s.contents) == 0 && s.alive() {
		s.log.Debug().Msg("last content removed")
		s.endSession(ReasonSuccess, "", true, s.State() != StatePendingCreated)
	}
}

// Accept accepts an incoming session. The answer is sent once every content
// is ready.
func (s *Session) Accept() error {
	if err := s.checkAlive(); err != nil {
		return err
	}
	if s.localInitiator {
		return notAvailable("cannot accept a session we initiated")
	}
	if s.locallyAccepted {
		return notAvailable("session was already accepted")
	}
	s.locallyAccepted = true
	s.tryInitiateOrAccept()
	return nil
}

// Terminate ends the session and tells the peer why.
func (s *Session) Terminate(reason Reason, text string) error {
	if err := s.checkAlive(); err != nil {
		return err
	}
	s.endSession(reason, text, true, s.State() != StatePendingCreated)
	return nil
}

// SendInfo sends an RTP session-info payload. If content is not empty the
// info applies to the named content only.
func (s *Session) SendInfo(info Info, content string) error {
	if err := s.checkAlive(); err != nil {
		return err
	}
	if s.dialect.IsGoogle() || !s.dialect.Defines(ActionSessionInfo) {
		return unsupported("%s cannot send %s", s.dialect, info)
	}
	if info == InfoUnknown {
		return notAvailable("unknown session info")
	}
	if s.State() < StatePendingInitiateSent {
		return notAvailable("session was not initiated yet")
	}
	iq, p := s.newMessage(ActionSessionInfo)
	node := p.Add(ns.RTPInfo, info.String())
	if content != "" {
		node.Set("name", content)
	}
	return s.send(iq)
}

func (s *Session) tryInitiateOrAccept() {
	if !s.alive() {
		return
	}
	var (
		a    Action
		want ContentState
		ev   string
		next ContentState
	)
	switch st := s.State(); {
	case s.localInitiator && st == StatePendingCreated:
		a, want, ev, next = ActionSessionInitiate, ContentEmpty, evSendInitiate, ContentSent
	case !s.localInitiator && st == StatePendingInitiated && s.locallyAccepted:
		a, want, ev, next = ActionSessionAccept, ContentNew, evSendAccept, ContentAcknowledged
	default:
		return
	}

	var contents []*Content
	for _, c := range s.contents {
		if c.disposition != DispositionSession || c.state != want {
			continue
		}
		if !c.IsReady() {
			s.log.Debug().Str(logging.FieldContent, c.name).Msg("content not ready yet")
			return
		}
		contents = append(contents, c)
	}
	if len(contents) == 0 {
		return
	}

	iq, p := s.newMessage(a)
	for _, c := range contents {
		trans := c.produceNode(p, true, true)
		c.trans.InjectCandidates(trans)
	}
	s.request(iq, func(_ *element.IQ, err error) {
		if !s.alive() {
			return
		}
		if err != nil {
			s.log.Debug().Err(err).Str(logging.FieldAction, a.String()).Msg("peer refused")
			s.endSession(reasonForRequestError(err), err.Error(), true, false)
			return
		}
		if a == ActionSessionInitiate {
			s.fire(evInitiate)
		} else {
			s.fire(evActivate)
		}
	})
	s.fire(ev)
	for _, c := range contents {
		c.setState(next)
		c.trans.SendCandidates(false)
	}
}

func reasonForRequestError(err error) Reason {
	switch {
	case errors.Is(err, pipeline.ErrTimeout):
		return ReasonTimeout
	case errors.Is(err, pipeline.ErrDisconnected):
		return ReasonConnectivityError
	}
	return ReasonGeneralError
}

// endSession tears the session down. It is safe to call more than once.
func (s *Session) endSession(reason Reason, text string, local, signal bool) {
	if s.tornDown {
		return
	}
	s.tornDown = true
	s.log.Debug().Stringer("reason", reason).Bool("local", local).Msg("ending session")

	items := make([]*pipeline.Item, 0, len(s.outstanding))
	for it := range s.outstanding {
		items = append(items, it)
	}
	for _, it := range items {
		it.Cancel()
	}

	if signal && s.dialect.Defines(ActionSessionTerminate) {
		iq, p := s.newMessage(ActionSessionTerminate)
		if s.dialect.IsGoogle() {
			if !s.localInitiator && s.State() < StateActive {
				p.Set("type", "reject")
			}
		} else {
			produceReason(p, reason, text)
		}
		s.requests.Enqueue(iq, s.timeout, func(_ *element.IQ, err error) {
			if err != nil {
				s.log.Debug().Err(err).Msg("session-terminate failed")
			}
		})
	}

	for _, c := range s.Contents() {
		c.Remove(false)
	}
	s.fire(evTerminate)
	s.metrics.terminated(reason)
	s.emit(&Terminated{sessionEvent: sessionEvent{s}, Reason: reason, Text: text, Local: local})
}
