// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package call adapts Jingle sessions for media engines.
//
// A Channel follows one session and exposes each of its RTP contents as a
// Stream with a direction, codecs, candidates and sending and playing flags.
// Like the sessions they wrap, channels and streams must only be used from
// the session's event loop.
package call // import "mellium.im/jingle/call"

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"mellium.im/xmpp/jid"

	"mellium.im/jingle"
	"mellium.im/jingle/eventloop"
	"mellium.im/jingle/internal/logging"
)

// MemberFlags describe the state of the call's members.
type MemberFlags uint8

// A list of member flags.
const (
	// FlagLocalPending is set until we accept an incoming call.
	FlagLocalPending MemberFlags = 1 << iota
	// FlagRemotePending is set until the peer accepts an outgoing call.
	FlagRemotePending
	// FlagLocallyRinging is set after we told the peer we are ringing.
	FlagLocallyRinging
	// FlagRinging is set while the peer is ringing.
	FlagRinging
	// FlagHeld is set while the peer has put the call on hold.
	FlagHeld
)

// StateReason explains why the call ended.
type StateReason struct {
	// Actor is the peer if it ended the call and the zero JID otherwise.
	Actor jid.JID
	// Reason is the group change reason derived from the Jingle reason.
	Reason GroupReason
	// Error is the Jingle reason if Reason is GroupReasonError.
	Error string
	// Details holds the Jingle reason and any text that came with it.
	Details map[string]string
}

// Option configures a Channel.
type Option func(*Channel)

// WithLogger sets the channel's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Channel) {
		c.log = l
	}
}

// Channel adapts a session for a media engine.
type Channel struct {
	s     *jingle.Session
	sched eventloop.Scheduler
	log   zerolog.Logger

	streams   []*Stream
	byContent map[*jingle.Content]*Stream
	nextID    int

	flags     MemberFlags
	localHold bool
	closed    bool
	reason    StateReason

	events      bus
	unsubscribe func()
}

// New returns a channel that follows s. Streams for contents that already
// exist or that are added later are created on the next turn of sched, after
// the content's description was parsed.
func New(s *jingle.Session, sched eventloop.Scheduler, opts ...Option) *Channel {
	c := &Channel{
		s:         s,
		sched:     sched,
		log:       zerolog.Nop(),
		byContent: make(map[*jingle.Content]*Stream),
	}
	for _, o := range opts {
		o(c)
	}
	c.log = logging.WithComponent(c.log, "call").With().
		Str(logging.FieldSID, s.SID()).
		Logger()
	if s.LocalInitiator() {
		c.flags = FlagRemotePending
	} else {
		c.flags = FlagLocalPending
	}
	c.unsubscribe = s.Subscribe(c.handle)
	for _, content := range s.Contents() {
		c.deferStream(content)
	}
	if s.State() == jingle.StateEnded {
		c.ended(jingle.ReasonUnknown, "", true)
	}
	return c
}

// Session returns the session the channel follows.
func (c *Channel) Session() *jingle.Session { return c.s }

// State returns the state of the session.
func (c *Channel) State() jingle.SessionState { return c.s.State() }

// Flags returns the member flags.
func (c *Channel) Flags() MemberFlags { return c.flags }

// Held reports whether we put the call on hold.
func (c *Channel) Held() bool { return c.localHold }

// Closed reports whether the call ended.
func (c *Channel) Closed() bool { return c.closed }

// Reason returns why the call ended. It is the zero value until then.
func (c *Channel) Reason() StateReason { return c.reason }

// Streams returns the open streams.
func (c *Channel) Streams() []*Stream {
	return append([]*Stream(nil), c.streams...)
}

// Stream returns the open stream with the given ID or nil.
func (c *Channel) Stream(id int) *Stream {
	for _, st := range c.streams {
		if st.id == id {
			return st
		}
	}
	return nil
}

// Subscribe registers h to receive the channel's events and returns a
// function that unregisters it.
func (c *Channel) Subscribe(h Handler) func() {
	return c.events.subscribe(h)
}

func (c *Channel) emit(e Event) {
	c.events.emit(e)
}

func (c *Channel) checkOpen() error {
	if c.closed {
		return &jingle.Error{Kind: jingle.KindStateConflict, Text: "call has ended"}
	}
	return nil
}

func (c *Channel) setFlags(set, clear MemberFlags) {
	f := (c.flags | set) &^ clear
	if f == c.flags {
		return
	}
	c.flags = f
	c.emit(&MembersChanged{channelEvent{c}, f})
}

// AddStream adds an RTP content with the given media type to the session.
// If trans is empty the dialect's default transport is used.
func (c *Channel) AddStream(media jingle.MediaType, trans string) (*Stream, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	content, err := c.s.AddContent(jingle.ContentOptions{Kind: jingle.NewRTP(media), Transport: trans})
	if err != nil {
		return nil, err
	}
	return c.addStream(content), nil
}

func (c *Channel) deferStream(content *jingle.Content) {
	c.sched.Post(func() {
		if c.closed || content.State() == jingle.ContentRemoving {
			return
		}
		c.addStream(content)
	})
}

func (c *Channel) addStream(content *jingle.Content) *Stream {
	if st, ok := c.byContent[content]; ok {
		return st
	}
	if _, ok := content.Kind().(*jingle.RTP); !ok {
		c.log.Debug().Str(logging.FieldContent, content.Name()).Msg("ignoring content without media")
		return nil
	}
	c.nextID++
	st := newStream(c, c.nextID, content)
	st.remoteHold = c.flags&FlagHeld != 0
	c.streams = append(c.streams, st)
	c.byContent[content] = st
	c.log.Debug().Int(logging.FieldID, st.id).Str(logging.FieldContent, content.Name()).Msg("stream added")
	c.emit(&StreamAdded{channelEvent{c}, st})
	return st
}

// RemoveStream removes the stream's content from the session.
func (c *Channel) RemoveStream(st *Stream) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if !c.s.Dialect().CanModifyContents() {
		return &jingle.Error{
			Kind: jingle.KindStateConflict,
			Text: fmt.Sprintf("streams cannot be removed in %s sessions", c.s.Dialect()),
		}
	}
	return st.content.Remove(true)
}

func (c *Channel) closeStream(st *Stream) {
	st.close()
	for i, v := range c.streams {
		if v == st {
			c.streams = append(c.streams[:i:i], c.streams[i+1:]...)
			break
		}
	}
	delete(c.byContent, st.content)
	c.emit(&StreamRemoved{channelEvent{c}, st})
}

// Accept answers an incoming call. Streams waiting for us to agree to send
// start sending.
func (c *Channel) Accept() error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if c.localHold {
		return &jingle.Error{Kind: jingle.KindStateConflict, Text: "can't answer a call while it's on hold"}
	}
	if err := c.s.Accept(); err != nil {
		return err
	}
	c.setFlags(0, FlagLocalPending|FlagLocallyRinging)
	for _, st := range c.Streams() {
		if err := st.AcceptPendingLocalSend(); err != nil {
			st.log.Debug().Err(err).Msg("accepting pending send failed")
		}
	}
	return nil
}

// Ringing tells the peer that we are alerting the user about its call.
func (c *Channel) Ringing() error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if c.s.LocalInitiator() {
		return &jingle.Error{Kind: jingle.KindStateConflict, Text: "we placed this call"}
	}
	if c.flags&FlagLocalPending == 0 {
		return &jingle.Error{Kind: jingle.KindStateConflict, Text: "call was already answered"}
	}
	c.setFlags(FlagLocallyRinging, 0)
	return c.sendInfo(jingle.InfoRinging)
}

// Hold puts the call on hold or takes it off hold.
func (c *Channel) Hold(hold bool) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if c.localHold == hold {
		return nil
	}
	c.localHold = hold
	info := jingle.InfoUnhold
	if hold {
		info = jingle.InfoHold
	}
	c.emit(&HoldChanged{channelEvent{c}, hold})
	return c.sendInfo(info)
}

// sendInfo sends info if the dialect can carry it. The state was already
// changed locally, so dialects without session-info are not an error.
func (c *Channel) sendInfo(info jingle.Info) error {
	if c.s.State() < jingle.StatePendingInitiated {
		return nil
	}
	err := c.s.SendInfo(info, "")
	if errors.Is(err, jingle.ErrUnsupported) {
		c.log.Debug().Err(err).Msg("not signalling call state")
		return nil
	}
	return err
}

// Hangup ends the call.
func (c *Channel) Hangup(reason GroupReason, text string) error {
	if c.closed {
		return nil
	}
	r, ok := reason.JingleReason()
	if !ok {
		return fmt.Errorf("call: %s doesn't make sense as a reason to end a call", reason)
	}
	return c.s.Terminate(r, text)
}

func (c *Channel) streamError(st *Stream, code StreamError, text string) {
	if st.closed || c.closed {
		return
	}
	st.log.Debug().Stringer("error", code).Str("text", text).Msg("stream error")
	c.emit(&StreamErrored{channelEvent{c}, st, code, text})

	if c.s.Dialect().CanModifyContents() && len(c.s.Contents()) > 1 {
		var err error
		if code == StreamErrorCodecNegotiationFailed {
			err = st.content.Reject(jingle.ReasonFailedApplication, text)
		} else {
			err = st.content.Remove(true)
		}
		if err != nil {
			st.log.Debug().Err(err).Msg("removing stream failed")
		}
		return
	}
	c.log.Debug().Msg("terminating call in response to stream error")
	if err := c.s.Terminate(code.JingleReason(), text); err != nil {
		c.log.Debug().Err(err).Msg("terminating call failed")
	}
}

func (c *Channel) handle(e jingle.Event) {
	switch e := e.(type) {
	case *jingle.ContentAdded:
		c.deferStream(e.Content)
	case *jingle.ContentStateChanged:
		if st := c.byContent[e.Content]; st != nil {
			st.contentStateChanged(e.To)
		}
	case *jingle.SendersChanged:
		if st := c.byContent[e.Content]; st != nil {
			st.updateDirection()
		}
	case *jingle.ContentRemoved:
		// Terminated closes the streams of an ending session.
		if st := c.byContent[e.Content]; st != nil && !c.s.Ended() {
			c.closeStream(st)
		}
	case *jingle.StateChanged:
		if e.To == jingle.StateActive {
			c.setFlags(0, FlagRemotePending|FlagLocalPending|FlagRinging)
		}
	case *jingle.RemoteInfo:
		c.remoteInfo(e.Info)
	case *jingle.Terminated:
		c.ended(e.Reason, e.Text, e.Local)
	}
}

func (c *Channel) remoteInfo(info jingle.Info) {
	switch info {
	case jingle.InfoRinging:
		c.setFlags(FlagRinging, 0)
	case jingle.InfoActive:
		c.setFlags(0, FlagRinging)
	case jingle.InfoHold:
		c.setRemoteHold(true)
	case jingle.InfoUnhold:
		c.setRemoteHold(false)
	}
}

func (c *Channel) setRemoteHold(hold bool) {
	if hold {
		c.setFlags(FlagHeld, 0)
	} else {
		c.setFlags(0, FlagHeld)
	}
	for _, st := range c.streams {
		st.remoteHold = hold
	}
}

func (c *Channel) ended(r jingle.Reason, text string, local bool) {
	if c.closed {
		return
	}
	actor := c.s.Peer()
	if local {
		actor = jid.JID{}
	}
	c.reason = StateReason{
		Actor:   actor,
		Reason:  GroupReasonFor(r),
		Details: map[string]string{"jingle-reason": r.String()},
	}
	if c.reason.Reason == GroupReasonError {
		c.reason.Error = r.String()
	}
	if text != "" {
		c.reason.Details["text"] = text
	}

	code, isErr := StreamErrorFor(r)
	for _, st := range c.Streams() {
		if isErr {
			c.emit(&StreamErrored{channelEvent{c}, st, code, text})
		}
		c.closeStream(st)
	}
	c.closed = true
	c.unsubscribe()
	c.log.Debug().Stringer("reason", r).Bool("local", local).Msg("call ended")
	c.emit(&Closed{channelEvent{c}, c.reason})
}
