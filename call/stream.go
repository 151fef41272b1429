// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package call

import (
	"errors"

	"github.com/pion/sdp/v3"
	"github.com/rs/zerolog"

	"mellium.im/jingle"
	"mellium.im/jingle/internal/logging"
	"mellium.im/jingle/transport"
)

// Stream adapts a content of the call's session for a media engine.
//
// The direction of a stream is the direction media flows from our point of
// view. When the peer asks us to start sending, the send direction is held
// back as a pending local send until it is accepted.
type Stream struct {
	id      int
	ch      *Channel
	content *jingle.Content
	log     zerolog.Logger

	send, recv       bool
	pendingLocalSend bool
	sending          bool
	playing          bool
	remoteHold       bool
	closed           bool
}

func newStream(ch *Channel, id int, c *jingle.Content) *Stream {
	st := &Stream{
		id:      id,
		ch:      ch,
		content: c,
		log:     ch.log.With().Str(logging.FieldContent, c.Name()).Int(logging.FieldID, id).Logger(),
		send:    c.HasDirection(true),
		recv:    c.HasDirection(false),
	}
	if c.State() == jingle.ContentAcknowledged {
		st.playing = true
		st.updateSending(true)
	}
	return st
}

// ID returns the identifier of the stream within its channel.
func (st *Stream) ID() int { return st.id }

// Content returns the content the stream adapts.
func (st *Stream) Content() *jingle.Content { return st.content }

// Name returns the content name.
func (st *Stream) Name() string { return st.content.Name() }

// Media returns the media type of the stream.
func (st *Stream) Media() jingle.MediaType { return st.content.Kind().Media() }

// Senders returns the senders of the content.
func (st *Stream) Senders() jingle.Senders { return st.content.Senders() }

// Disposition returns the content disposition.
func (st *Stream) Disposition() string { return st.content.Disposition() }

// LocalCandidates returns the candidates we gathered.
func (st *Stream) LocalCandidates() []transport.Candidate {
	return st.content.Transport().LocalCandidates()
}

// RemoteCandidates returns the candidates the peer sent.
func (st *Stream) RemoteCandidates() []transport.Candidate {
	return st.content.Transport().RemoteCandidates()
}

func (st *Stream) rtp() *jingle.RTP {
	r, _ := st.content.Kind().(*jingle.RTP)
	return r
}

// LocalCodecs returns the codecs we offered.
func (st *Stream) LocalCodecs() []jingle.Codec {
	if r := st.rtp(); r != nil {
		return r.LocalCodecs()
	}
	return nil
}

// RemoteCodecs returns the codecs the peer offered.
func (st *Stream) RemoteCodecs() []jingle.Codec {
	if r := st.rtp(); r != nil {
		return r.RemoteCodecs()
	}
	return nil
}

// ConnectionState returns the state of the stream's transport.
func (st *Stream) ConnectionState() transport.State {
	return st.content.Transport().State()
}

// Direction returns the current direction without the pending local send.
func (st *Stream) Direction() sdp.Direction {
	return direction(st.send, st.recv)
}

// PendingLocalSend reports whether the peer asked us to send and we did not
// agree yet.
func (st *Stream) PendingLocalSend() bool { return st.pendingLocalSend }

// Sending reports whether the media engine should send. It is false while
// the peer has put us on hold.
func (st *Stream) Sending() bool { return st.sending && !st.remoteHold }

// Playing reports whether the media engine should play what it receives.
func (st *Stream) Playing() bool { return st.playing }

// RemoteHold reports whether the peer has put the call on hold.
func (st *Stream) RemoteHold() bool { return st.remoteHold }

// Closed reports whether the stream was removed.
func (st *Stream) Closed() bool { return st.closed }

func direction(send, recv bool) sdp.Direction {
	switch {
	case send && recv:
		return sdp.DirectionSendRecv
	case send:
		return sdp.DirectionSendOnly
	case recv:
		return sdp.DirectionRecvOnly
	}
	return sdp.DirectionInactive
}

func directionBits(d sdp.Direction) (send, recv bool) {
	switch d {
	case sdp.DirectionSendRecv:
		return true, true
	case sdp.DirectionSendOnly:
		return true, false
	case sdp.DirectionRecvOnly:
		return false, true
	}
	return false, false
}

func (st *Stream) sendersFor(send, recv bool) jingle.Senders {
	local := st.content.Session().LocalInitiator()
	switch {
	case send && recv:
		return jingle.SendersBoth
	case send == local:
		return jingle.SendersInitiator
	}
	return jingle.SendersResponder
}

// SetDirection asks for media to flow in the given direction. An inactive
// direction removes the stream.
func (st *Stream) SetDirection(d sdp.Direction) error {
	if st.closed {
		return &jingle.Error{Kind: jingle.KindStateConflict, Text: "stream was removed"}
	}
	wantSend, wantRecv := directionBits(d)
	if !wantSend && !wantRecv {
		return st.ch.RemoveStream(st)
	}

	curSend, curRecv := st.send, st.recv
	pending := st.pendingLocalSend
	if pending {
		// The peer already thinks we send.
		pending = false
		curSend = !curSend
	}
	if wantSend != st.send || wantRecv != st.recv || pending != st.pendingLocalSend {
		st.send, st.recv, st.pendingLocalSend = wantSend, wantRecv, pending
		st.updateSending(st.content.State() == jingle.ContentAcknowledged)
		st.ch.emit(&DirectionChanged{channelEvent{st.ch}, st, d, pending})
	}
	if curSend == wantSend && curRecv == wantRecv {
		return nil
	}

	err := st.content.ChangeDirection(st.sendersFor(wantSend, wantRecv))
	if errors.Is(err, jingle.ErrUnsupported) {
		return &jingle.Error{
			Kind: jingle.KindStateConflict,
			Text: "stream direction invalid for the Jingle dialect in use",
			Err:  err,
		}
	}
	return err
}

// AcceptPendingLocalSend starts sending if the peer asked us to.
func (st *Stream) AcceptPendingLocalSend() error {
	if !st.pendingLocalSend {
		st.log.Debug().Msg("stream not pending local send")
		return nil
	}
	return st.SetDirection(direction(true, st.recv))
}

// SetLocalCodecs sets the codecs the media engine supports.
func (st *Stream) SetLocalCodecs(codecs []jingle.Codec) error {
	r := st.rtp()
	if r == nil {
		return &jingle.Error{Kind: jingle.KindUnsupported, Text: "stream does not carry RTP"}
	}
	return r.SetLocalCodecs(codecs)
}

// AddLocalCandidates adds candidates gathered by the media engine.
func (st *Stream) AddLocalCandidates(cands []transport.Candidate) {
	st.content.AddCandidates(cands)
}

// SetConnectionState records the state of the media connection.
func (st *Stream) SetConnectionState(s transport.State) {
	if st.content.Transport().State() == s {
		return
	}
	st.content.SetTransportState(s)
	st.ch.emit(&StreamStateChanged{channelEvent{st.ch}, st, s})
}

// ReportError reports a media engine failure. The stream's content is
// removed, or the call is ended if that is not possible.
func (st *Stream) ReportError(code StreamError, text string) {
	st.ch.streamError(st, code, text)
}

// updateDirection follows a change of the content's senders.
func (st *Stream) updateDirection() {
	wantSend, wantRecv := st.content.HasDirection(true), st.content.HasDirection(false)
	pending := st.pendingLocalSend
	if !st.send && wantSend {
		st.log.Debug().Msg("setting pending local send flag")
		wantSend = false
		pending = true
	}
	if wantSend == st.send && wantRecv == st.recv && pending == st.pendingLocalSend {
		return
	}
	st.send, st.recv, st.pendingLocalSend = wantSend, wantRecv, pending
	st.updateSending(false)
	st.ch.emit(&DirectionChanged{channelEvent{st.ch}, st, st.Direction(), pending})
}

// updateSending turns sending off when the direction no longer includes it.
// It only turns sending on if start is true.
func (st *Stream) updateSending(start bool) {
	if st.sending == st.send {
		return
	}
	if st.send && !start {
		return
	}
	st.sending = st.send
}

func (st *Stream) contentStateChanged(to jingle.ContentState) {
	switch to {
	case jingle.ContentAcknowledged:
		st.playing = true
		st.updateSending(true)
	case jingle.ContentRemoving:
		st.playing = false
		st.sending = false
	}
}

func (st *Stream) close() {
	if st.closed {
		return
	}
	st.closed = true
	st.playing = false
	st.sending = false
}
