// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package main

import (
	"github.com/rs/zerolog"
	"mellium.im/xmpp/jid"

	"mellium.im/jingle"
	"mellium.im/jingle/call"
	"mellium.im/jingle/eventloop"
	"mellium.im/jingle/internal/logging"
	"mellium.im/jingle/transport"
)

var audioCodecs = []jingle.Codec{
	{ID: 0, Name: "PCMU", ClockRate: 8000},
	{ID: 8, Name: "PCMA", ClockRate: 8000},
	{ID: 101, Name: "telephone-event", ClockRate: 8000, Params: map[string]string{"events": "0-15"}},
}

// phone answers and places audio calls. It only runs on the event loop.
type phone struct {
	sched      eventloop.Scheduler
	dialect    jingle.Dialect
	transport  string
	candidate  transport.Candidate
	autoAnswer bool
	log        zerolog.Logger
	calls      map[*jingle.Session]*call.Channel
}

func newPhone(sched eventloop.Scheduler, set settings, autoAnswer bool, log zerolog.Logger) *phone {
	return &phone{
		sched:      sched,
		dialect:    set.dialect,
		transport:  set.transport,
		candidate:  set.media,
		autoAnswer: autoAnswer,
		log:        log,
		calls:      make(map[*jingle.Session]*call.Channel),
	}
}

func (p *phone) incoming(s *jingle.Session) {
	p.log.Info().Stringer(logging.FieldPeer, s.Peer()).Str(logging.FieldSID, s.SID()).Msg("incoming call")
	p.follow(s)
}

func (p *phone) follow(s *jingle.Session) *call.Channel {
	ch := call.New(s, p.sched, call.WithLogger(p.log))
	p.calls[s] = ch
	ch.Subscribe(func(e call.Event) {
		switch e := e.(type) {
		case *call.StreamAdded:
			p.prepare(e.Stream)
			if !s.LocalInitiator() {
				p.answer(ch)
			}
		case *call.StreamErrored:
			p.log.Warn().Str(logging.FieldSID, s.SID()).Str(logging.FieldContent, e.Stream.Name()).
				Stringer("error", e.Error).Str("text", e.Text).Msg("stream failed")
		case *call.Closed:
			delete(p.calls, s)
			p.log.Info().Str(logging.FieldSID, s.SID()).
				Stringer("reason", e.Reason.Reason).
				Str("detail", e.Reason.Details["jingle-reason"]).
				Msg("call ended")
		}
	})
	return ch
}

func (p *phone) prepare(st *call.Stream) {
	if st.Media() != jingle.MediaAudio {
		st.ReportError(call.StreamErrorCodecNegotiationFailed, "only audio is supported")
		return
	}
	if err := st.SetLocalCodecs(audioCodecs); err != nil {
		p.log.Warn().Err(err).Msg("setting codecs")
		return
	}
	st.AddLocalCandidates([]transport.Candidate{p.candidate})
}

func (p *phone) answer(ch *call.Channel) {
	if ch.Closed() || ch.Flags()&call.FlagLocalPending == 0 {
		return
	}
	var err error
	switch {
	case p.autoAnswer:
		err = ch.Accept()
	case ch.Flags()&call.FlagLocallyRinging == 0:
		err = ch.Ringing()
	}
	if err != nil {
		p.log.Warn().Err(err).Msg("answering call")
	}
}

func (p *phone) dial(m *jingle.Manager, peer jid.JID) {
	s := m.NewSession(peer, p.dialect)
	ch := p.follow(s)
	if _, err := ch.AddStream(jingle.MediaAudio, p.transport); err != nil {
		p.log.Error().Err(err).Stringer(logging.FieldPeer, peer).Msg("placing call")
		if err := ch.Hangup(call.GroupReasonError, ""); err != nil {
			p.log.Debug().Err(err).Msg("hanging up")
		}
		return
	}
	p.log.Info().Stringer(logging.FieldPeer, peer).Str(logging.FieldSID, s.SID()).Msg("calling")
}

func (p *phone) hangupAll() {
	for _, ch := range p.calls {
		if err := ch.Hangup(call.GroupReasonNone, "shutting down"); err != nil {
			p.log.Debug().Err(err).Msg("hanging up")
		}
	}
}
