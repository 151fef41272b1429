// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package jingle

import (
	"errors"

	"github.com/rs/zerolog"

	"mellium.im/jingle/element"
	"mellium.im/jingle/eventloop"
	"mellium.im/jingle/internal/logging"
	"mellium.im/jingle/pipeline"
	"mellium.im/jingle/transport"
)

// DispositionSession is the disposition of contents that are part of the
// session offer or answer.
const DispositionSession = "session"

// ContentOptions configures a locally created content.
type ContentOptions struct {
	// Name must be unique within the session. A random name is used if empty.
	Name string

	// Kind is the application, for example NewRTP(MediaAudio).
	Kind Kind

	// Transport is the transport namespace. It defaults to Google P2P in
	// Google dialects and ICE-UDP otherwise.
	Transport string

	// Senders defaults to the kind's default senders.
	Senders Senders

	// Disposition defaults to DispositionSession for contents created before
	// the session was initiated.
	Disposition string
}

// Content is one negotiated application and transport pair of a session.
//
// Contents are owned by their session. Once ContentRemoved has been emitted
// the content is inert and must be dropped.
type Content struct {
	s           *Session
	name        string
	createdByUs bool
	kind        Kind
	disposition string
	senders     Senders
	state       ContentState
	trans       transport.Transport
	transNS     string
	log         zerolog.Logger

	mediaReady          bool
	haveLocalCandidates bool
	announced           bool
	removed             bool
	lastChannel         int

	transportAccept eventloop.Timer
	removeItem      *pipeline.Item
}

func newContent(s *Session, name string, kind Kind, createdByUs bool) *Content {
	c := &Content{
		s:           s,
		name:        name,
		createdByUs: createdByUs,
		kind:        kind,
		senders:     kind.DefaultSenders(),
		lastChannel: transport.ComponentRTCP,
		log:         s.log.With().Str(logging.FieldContent, name).Logger(),
	}
	kind.attach(c)
	return c
}

// Name returns the name of the content.
func (c *Content) Name() string { return c.name }

// Session returns the session the content belongs to.
func (c *Content) Session() *Session { return c.s }

// Kind returns the application negotiated by the content.
func (c *Content) Kind() Kind { return c.kind }

// Transport returns the transport of the content.
func (c *Content) Transport() transport.Transport { return c.trans }

// State returns the negotiation state of the content.
func (c *Content) State() ContentState { return c.state }

// Senders returns who may send media.
func (c *Content) Senders() Senders { return c.senders }

// Disposition returns the disposition of the content.
func (c *Content) Disposition() string { return c.disposition }

// CreatedByUs reports whether the content was created locally.
func (c *Content) CreatedByUs() bool { return c.createdByUs }

// Creator returns the role of the party that created the content.
func (c *Content) Creator() string {
	if c.createdByUs == c.s.localInitiator {
		return "initiator"
	}
	return "responder"
}

// MediaReady reports whether the application has described its side.
func (c *Content) MediaReady() bool { return c.mediaReady }

// IsReady reports whether the content may be offered or accepted.
func (c *Content) IsReady() bool {
	if !c.mediaReady {
		return false
	}
	needsCandidates := c.kind.Media() != MediaNone
	if c.createdByUs {
		return c.state == ContentEmpty && (!needsCandidates || c.haveLocalCandidates)
	}
	return c.state == ContentNew && (!needsCandidates || c.trans.CanAccept())
}

func (c *Content) setState(st ContentState) {
	if st == c.state {
		return
	}
	if st < c.state && st != ContentRemoving {
		c.log.Debug().Stringer("from", c.state).Stringer("to", st).Msg("ignoring backwards content state change")
		return
	}
	from := c.state
	c.state = st
	if c.announced {
		c.s.emit(&ContentStateChanged{sessionEvent: sessionEvent{c.s}, Content: c, From: from, To: st})
	}
}

// SetMediaReady marks the local description as complete.
// It may trigger the session offer or answer or a content-add.
func (c *Content) SetMediaReady() {
	if c.removed || c.mediaReady {
		return
	}
	c.mediaReady = true
	c.maybeReady()
}

// SetTransportState records the connectivity state reported by the media
// layer.
func (c *Content) SetTransportState(st transport.State) {
	if c.removed {
		return
	}
	c.trans.SetState(st)
	c.maybeReady()
}

// AddCandidates adds local candidates and sends them if the content was
// already signalled.
func (c *Content) AddCandidates(cands []transport.Candidate) {
	if c.removed || len(cands) == 0 {
		return
	}
	c.trans.AddLocalCandidates(cands)
	if !c.haveLocalCandidates {
		c.haveLocalCandidates = true
		c.maybeReady()
	}
	if c.state > ContentEmpty && c.state != ContentRemoving {
		c.trans.SendCandidates(false)
	}
}

// RetransmitCandidates resends local candidates, all of them if all is true.
func (c *Content) RetransmitCandidates(all bool) {
	if c.removed {
		return
	}
	c.trans.SendCandidates(all)
}

func (c *Content) maybeReady() {
	if !c.IsReady() {
		return
	}
	sessState := c.s.State()
	switch {
	case c.disposition == DispositionSession && sessState < StatePendingAcceptSent:
		c.s.tryInitiateOrAccept()
	case sessState >= StatePendingInitiateSent && sessState < StateEnded:
		c.sendAddOrAccept()
		c.trans.SendCandidates(false)
	default:
		c.log.Debug().Msg("session not initiated yet, ignoring non-session ready content")
	}
}

func (c *Content) sendAddOrAccept() {
	a, next := ActionContentAccept, ContentAcknowledged
	if c.createdByUs {
		a, next = ActionContentAdd, ContentSent
	}
	if !c.s.dialect.Defines(a) {
		c.log.Warn().Str(logging.FieldAction, a.String()).Msg("dialect cannot add contents")
		return
	}
	iq, sess := c.s.newMessage(a)
	trans := c.produceNode(sess, true, true)
	c.trans.InjectCandidates(trans)
	if err := c.s.send(iq); err != nil {
		c.log.Debug().Err(err).Msg("sending content failed")
		return
	}
	c.setState(next)
}

// produceNode adds the content to a session payload and returns the node
// transport candidates go in.
func (c *Content) produceNode(parent *element.Element, desc, trans bool) *element.Element {
	node := parent
	if c.s.dialect.WrapsContents() {
		node = parent.Add("", "content").
			Set("name", c.name).
			Set("creator", c.Creator())
		if c.senders != SendersNone {
			node.Set("senders", c.senders.String())
		}
		if c.disposition != "" && c.disposition != DispositionSession {
			node.Set("disposition", c.disposition)
		}
	}
	if desc {
		c.kind.ProduceDescription(c, node)
	}
	if !trans || c.s.dialect.ImplicitTransport() {
		return node
	}
	return node.Add(c.transNS, "transport")
}

// SendTransportInfo sends a transport-info for the content.
// It implements transport.Host.
func (c *Content) SendTransportInfo(fill func(trans *element.Element)) error {
	if c.removed {
		return notAvailable("content was removed")
	}
	iq, sess := c.s.newMessage(ActionTransportInfo)
	fill(c.produceNode(sess, false, true))
	err := c.s.send(iq)
	if err != nil {
		c.log.Debug().Err(err).Msg("sending candidates failed")
	}
	return err
}

// RemoteCandidatesAdded implements transport.Host.
func (c *Content) RemoteCandidatesAdded(cands []transport.Candidate) {
	if !c.announced || c.removed {
		return
	}
	c.s.emit(&RemoteCandidates{sessionEvent: sessionEvent{c.s}, Content: c, Candidates: cands})
	c.maybeReady()
}

// SendDescriptionInfo sends the current local description to the peer.
func (c *Content) SendDescriptionInfo() error {
	if err := c.s.checkAlive(); err != nil {
		return err
	}
	if !c.s.dialect.Defines(ActionDescriptionInfo) {
		return unsupported("%s cannot update descriptions", c.s.dialect)
	}
	if c.state < ContentSent || c.state == ContentRemoving {
		// The description goes out with the offer or answer.
		return nil
	}
	iq, sess := c.s.newMessage(ActionDescriptionInfo)
	c.produceNode(sess, true, false)
	return c.s.send(iq)
}

// HasDirection reports whether media flows in the given direction from our
// point of view.
func (c *Content) HasDirection(sending bool) bool {
	switch c.senders {
	case SendersBoth:
		return true
	case SendersInitiator:
		return sending == c.s.localInitiator
	case SendersResponder:
		return sending != c.s.localInitiator
	}
	return false
}

// ChangeDirection changes the senders of the content.
// In dialects that cannot signal the change it is only applied locally and
// an Unsupported error is returned.
func (c *Content) ChangeDirection(senders Senders) error {
	if err := c.s.checkAlive(); err != nil {
		return err
	}
	if c.removed {
		return notAvailable("content was removed")
	}
	if senders == c.senders {
		return nil
	}
	c.setSenders(senders)
	if !c.s.dialect.CanChangeDirection() {
		return unsupported("%s cannot change the direction of a content", c.s.dialect)
	}
	if c.state < ContentSent || c.state == ContentRemoving {
		return nil
	}
	iq, sess := c.s.newMessage(ActionContentModify)
	c.produceNode(sess, false, false)
	return c.s.send(iq)
}

// SetSending starts or stops sending media. Stopping the last direction
// removes the content.
func (c *Content) SetSending(send bool) error {
	return c.setDirection(true, send)
}

// RequestReceiving asks the peer to start or stop sending media. Stopping the
// last direction removes the content.
func (c *Content) RequestReceiving(receive bool) error {
	return c.setDirection(false, receive)
}

func (c *Content) setDirection(sending, on bool) error {
	if c.HasDirection(sending) == on {
		return nil
	}
	senders := c.sendersFor(sending, on)
	if senders == SendersNone {
		return c.Remove(true)
	}
	return c.ChangeDirection(senders)
}

// sendersFor returns the senders after turning one of our directions on or
// off.
func (c *Content) sendersFor(sending, on bool) Senders {
	us, them := SendersInitiator, SendersResponder
	if !c.s.localInitiator {
		us, them = them, us
	}
	role := them
	if sending {
		role = us
	}
	cur := c.senders
	if on {
		return cur | role
	}
	return cur &^ role
}

func (c *Content) setSenders(s Senders) {
	if s == c.senders {
		return
	}
	c.senders = s
	if c.announced {
		c.s.emit(&SendersChanged{sessionEvent: sessionEvent{c.s}, Content: c, Senders: s})
	}
}

// Remove removes the content. If signalPeer is true and the content was
// signalled, the peer is told with content-remove or content-reject and the
// content is dropped when it replies.
// Calling Remove again while the removal is in progress has no effect.
func (c *Content) Remove(signalPeer bool) error {
	return c.remove(signalPeer, ReasonUnknown, "")
}

// Reject removes the content and tells the peer why. It behaves like
// Remove(true) otherwise.
func (c *Content) Reject(reason Reason, text string) error {
	if err := c.s.checkAlive(); err != nil {
		return err
	}
	return c.remove(true, reason, text)
}

func (c *Content) remove(signalPeer bool, reason Reason, text string) error {
	if c.removed {
		return nil
	}
	if c.state == ContentEmpty || !signalPeer {
		c.setState(ContentRemoving)
		c.fireRemoved()
		return nil
	}
	if c.state == ContentRemoving {
		return nil
	}
	wasNew := c.state == ContentNew && !c.createdByUs
	c.setState(ContentRemoving)
	if !c.s.dialect.Defines(ActionContentRemove) || !c.s.alive() {
		c.fireRemoved()
		return nil
	}
	a := ActionContentRemove
	if wasNew {
		a = ActionContentReject
	}
	iq, sess := c.s.newMessage(a)
	c.produceNode(sess, false, false)
	produceReason(sess, reason, text)
	c.removeItem = c.s.request(iq, func(_ *element.IQ, err error) {
		c.removeItem = nil
		if err != nil && !errors.Is(err, pipeline.ErrCancelled) {
			c.log.Debug().Err(err).Msg("content removal failed")
		}
		c.fireRemoved()
	})
	return nil
}

func (c *Content) fireRemoved() {
	if c.removed {
		return
	}
	c.removed = true
	if c.transportAccept != nil {
		c.transportAccept.Stop()
		c.transportAccept = nil
	}
	if it := c.removeItem; it != nil {
		c.removeItem = nil
		it.Cancel()
	}
	c.s.contentRemoved(c)
}

// discard drops a content that was never added to the session.
func (c *Content) discard() {
	c.removed = true
	if c.transportAccept != nil {
		c.transportAccept.Stop()
		c.transportAccept = nil
	}
}

// contentHeader is the parsed <content/> wrapper, or the session node in
// Google dialects.
type contentHeader struct {
	name        string
	creator     string
	senders     Senders
	disposition string
	desc        *element.Element
	trans       *element.Element
	transNS     string
}

func (s *Session) parseContentHeader(node *element.Element) (contentHeader, error) {
	h := contentHeader{disposition: DispositionSession}
	h.desc = node.Child("description")
	if s.dialect.WrapsContents() {
		h.name = node.Get("name")
		if h.name == "" {
			return h, malformed("content has no name")
		}
		h.creator = node.Get("creator")
		if h.creator != "" && h.creator != "initiator" && h.creator != "responder" {
			return h, malformed("invalid content creator %q", h.creator)
		}
		if sendersAttr, ok := node.Lookup("senders"); ok {
			h.senders = parseSenders(sendersAttr)
			if h.senders == SendersNone {
				return h, malformed("invalid content senders %q", sendersAttr)
			}
		}
		if d := node.Get("disposition"); d != "" {
			h.disposition = d
		}
	}
	h.trans = node.Child("transport")
	if h.trans != nil {
		h.transNS = h.trans.NS()
	}
	return h, nil
}

// parseAdd initializes a content proposed by the peer.
func (c *Content) parseAdd(h contentHeader) error {
	s := c.s
	if h.desc == nil {
		return malformed("content description is missing")
	}
	c.disposition = h.disposition
	if h.senders != SendersNone {
		c.senders = h.senders
	}

	wasGTalk4 := s.dialect == DialectGTalk4
	transNS := h.transNS
	transNode := h.trans
	switch {
	case transNode != nil:
	case s.dialect.IsGoogle():
		// lj0.3 peers put candidates on the session node.
		s.setDialect(DialectGTalk3)
		transNS = transport.NSGoogleP2P
	default:
		return malformed("content %q has no transport", h.name)
	}
	if !transport.Supported(transNS) {
		return unsupported("unsupported transport %q", transNS)
	}
	trans, err := transport.New(transNS, c)
	if err != nil {
		return unsupported("%v", err)
	}
	c.trans = trans
	c.transNS = transNS

	if err := c.kind.ParseDescription(c, h.desc); err != nil {
		return err
	}
	c.state = ContentNew
	if transNode != nil {
		if err := c.trans.ParseCandidates(transNode); err != nil {
			return malformed("%v", err)
		}
	}
	if wasGTalk4 {
		c.transportAccept = s.sched.AfterFunc(0, c.sendTransportAccept)
	}
	return nil
}

func (c *Content) sendTransportAccept() {
	c.transportAccept = nil
	if c.removed || !c.s.alive() {
		return
	}
	iq, sess := c.s.newMessage(ActionTransportAccept)
	if c.s.dialect == DialectGTalk4 {
		sess.Add(c.transNS, "transport")
	}
	if err := c.s.send(iq); err != nil {
		c.log.Debug().Err(err).Msg("sending transport-accept failed")
	}
}

// parseAccept handles the peer accepting a content we offered.
func (c *Content) parseAccept(node *element.Element) error {
	h, err := c.s.parseContentHeader(node)
	if err != nil {
		return err
	}
	if c.s.dialect.IsGoogle() && h.trans == nil && c.kind.Media() != MediaNone {
		c.s.setDialect(DialectGTalk3)
	}
	if h.senders != SendersNone {
		c.setSenders(h.senders)
	}
	if h.desc != nil {
		if err := c.kind.ParseDescription(c, h.desc); err != nil {
			return err
		}
	}
	c.setState(ContentAcknowledged)
	return c.parseCandidates(node, h.trans)
}

func (c *Content) parseCandidates(node, trans *element.Element) error {
	if trans == nil {
		if !c.s.dialect.IsGoogle() {
			return nil
		}
		trans = node
	}
	if err := c.trans.ParseCandidates(trans); err != nil {
		return malformed("%v", err)
	}
	return nil
}

// parseTransportInfo reads candidates sent by the peer.
func (c *Content) parseTransportInfo(node *element.Element) error {
	trans := node.Child("transport")
	if trans == nil && !c.s.dialect.IsGoogle() {
		return malformed("transport-info has no transport")
	}
	return c.parseCandidates(node, trans)
}

// parseDescriptionInfo reads an updated description.
func (c *Content) parseDescriptionInfo(node *element.Element) error {
	desc := node.Child("description")
	if desc == nil {
		return malformed("invalid description-info action")
	}
	if c.createdByUs && c.state < ContentAcknowledged {
		c.log.Debug().Msg("ignoring description-info for unacknowledged content")
		return nil
	}
	return c.kind.ParseDescription(c, desc)
}

// updateSenders handles content-modify.
func (c *Content) updateSenders(node *element.Element) error {
	s := parseSenders(node.Get("senders"))
	if s == SendersNone {
		return malformed("invalid content senders in stream")
	}
	c.setSenders(s)
	return nil
}

// parseInfo handles a Google info payload.
func (c *Content) parseInfo(node *element.Element) error {
	share, ok := c.kind.(*Share)
	if !ok {
		return unsupported("info is only supported for file shares")
	}
	return share.parseInfo(node)
}
