// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package jingle_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"mellium.im/xmpp/stanza"

	"mellium.im/jingle"
	"mellium.im/jingle/element"
	"mellium.im/jingle/eventloop"
	"mellium.im/jingle/internal/jingletest"
	"mellium.im/jingle/pipeline"
	"mellium.im/jingle/transport"
)

var (
	pcmu = jingle.Codec{ID: 0, Name: "PCMU", ClockRate: 8000}
	opus = jingle.Codec{ID: 111, Name: "opus", ClockRate: 48000, Channels: 2, Params: map[string]string{"useinbandfec": "1"}}

	hostCandidate = transport.Candidate{
		ID:         "l1",
		Component:  transport.ComponentRTP,
		Foundation: "1",
		Address:    "192.0.2.1",
		Port:       5000,
		Protocol:   "udp",
		Priority:   2130706431,
		Type:       transport.HostCandidate,
	}
)

type harness struct {
	t        *testing.T
	conn     *jingletest.Conn
	sched    *eventloop.Manual
	p        *pipeline.Pipeline
	m        *jingle.Manager
	incoming []*jingle.Session
}

func newHarness(t *testing.T, opts ...jingle.Option) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		conn:  jingletest.New(),
		sched: eventloop.NewManual(),
	}
	h.p = pipeline.New(h.conn, h.sched)
	opts = append(opts, jingle.OnIncoming(func(s *jingle.Session) {
		h.incoming = append(h.incoming, s)
	}))
	h.m = jingle.NewManager(jingletest.Local, h.conn, h.p, h.sched, opts...)
	return h
}

func (h *harness) flush() {
	h.sched.RunPending()
}

// deliver hands a request from the peer to the manager.
func (h *harness) deliver(id, payload string) error {
	err := h.m.HandleIQ(jingletest.SetIQ(id, payload))
	h.flush()
	return err
}

// reply acknowledges the last request carrying action.
func (h *harness) reply(action string) {
	h.t.Helper()
	id := h.conn.IDOf(action)
	require.NotEmpty(h.t, id, "no %s was sent", action)
	require.True(h.t, h.conn.Reply(id), "%s is not waiting for a reply", action)
	h.flush()
}

// response returns the reply the manager sent to the request with id.
func (h *harness) response(id string) element.IQ {
	h.t.Helper()
	for _, iq := range h.conn.Sent {
		if iq.ID == id && (iq.Type == stanza.ResultIQ || iq.Type == stanza.ErrorIQ) {
			return iq
		}
	}
	h.t.Fatalf("no response to %s", id)
	return element.IQ{}
}

func condition(t *testing.T, iq element.IQ) stanza.Condition {
	t.Helper()
	var se stanza.Error
	require.True(t, errors.As(iq.Err(), &se), "expected an error reply")
	return se.Condition
}

type recorder struct {
	events []jingle.Event
}

func record(s *jingle.Session) *recorder {
	r := &recorder{}
	s.Subscribe(func(e jingle.Event) {
		r.events = append(r.events, e)
	})
	return r
}

func count[T jingle.Event](r *recorder) int {
	n := 0
	for _, e := range r.events {
		if _, ok := e.(T); ok {
			n++
		}
	}
	return n
}

func rtpContent(name, media string, codecs ...jingle.Codec) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<content creator="initiator" name="%s"><description xmlns="urn:xmpp:jingle:apps:rtp:1" media="%s">`, name, media)
	for _, c := range codecs {
		fmt.Fprintf(&b, `<payload-type id="%d" name="%s" clockrate="%d"/>`, c.ID, c.Name, c.ClockRate)
	}
	b.WriteString(`</description>`)
	b.WriteString(`<transport xmlns="urn:xmpp:jingle:transports:ice-udp:1" ufrag="ru" pwd="rp">`)
	b.WriteString(`<candidate component="1" foundation="1" generation="0" id="r1" ip="198.51.100.1" network="0" port="6000" priority="100" protocol="udp" type="host"/>`)
	b.WriteString(`</transport></content>`)
	return b.String()
}

func jinglePayload(action, sid, initiator string, body ...string) string {
	return fmt.Sprintf(`<jingle xmlns="urn:xmpp:jingle:1" action="%s" sid="%s" initiator="%s">%s</jingle>`,
		action, sid, initiator, strings.Join(body, ""))
}

// incomingSession delivers a session-initiate from the peer with an audio
// content.
func incomingSession(t *testing.T, h *harness, sid string) *jingle.Session {
	t.Helper()
	err := h.deliver("init-"+sid, jinglePayload("session-initiate", sid, jingletest.Peer.String(),
		rtpContent("audio", "audio", pcmu, opus)))
	require.NoError(t, err)
	require.NotEmpty(t, h.incoming)
	return h.incoming[len(h.incoming)-1]
}

// makeReady gives a content local codecs and a candidate.
func makeReady(t *testing.T, c *jingle.Content) {
	t.Helper()
	rtp, ok := c.Kind().(*jingle.RTP)
	require.True(t, ok)
	require.NoError(t, rtp.SetLocalCodecs([]jingle.Codec{pcmu}))
	c.AddCandidates([]transport.Candidate{hostCandidate})
}

// activeOutgoing creates a session with the given audio contents, has the
// peer accept it and returns it in the active state.
func activeOutgoing(t *testing.T, h *harness, names ...string) (*jingle.Session, []*jingle.Content) {
	t.Helper()
	s := h.m.NewSession(jingletest.Peer, jingle.DialectV032)
	var contents []*jingle.Content
	for _, name := range names {
		c, err := s.AddContent(jingle.ContentOptions{Name: name, Kind: jingle.NewRTP(jingle.MediaAudio)})
		require.NoError(t, err)
		contents = append(contents, c)
	}
	for _, c := range contents {
		makeReady(t, c)
	}
	h.flush()
	h.reply("session-initiate")
	var body []string
	for _, name := range names {
		body = append(body, rtpContent(name, "audio", pcmu))
	}
	err := h.deliver("accept-"+s.SID(), jinglePayload("session-accept", s.SID(), jingletest.Local.String(), body...))
	require.NoError(t, err)
	require.Equal(t, jingle.StateActive, s.State())
	return s, contents
}
