// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package call_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"mellium.im/jingle"
	"mellium.im/jingle/call"
	"mellium.im/jingle/eventloop"
	"mellium.im/jingle/internal/jingletest"
	"mellium.im/jingle/pipeline"
	"mellium.im/jingle/transport"
)

var (
	pcmu = jingle.Codec{ID: 0, Name: "PCMU", ClockRate: 8000}
	gsm  = jingle.Codec{ID: 3, Name: "GSM", ClockRate: 8000}

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
	t     *testing.T
	conn  *jingletest.Conn
	sched *eventloop.Manual
	m     *jingle.Manager
	ch    *call.Channel
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		conn:  jingletest.New(),
		sched: eventloop.NewManual(),
	}
	p := pipeline.New(h.conn, h.sched)
	h.m = jingle.NewManager(jingletest.Local, h.conn, p, h.sched, jingle.OnIncoming(func(s *jingle.Session) {
		h.ch = call.New(s, h.sched)
	}))
	return h
}

func (h *harness) flush() {
	h.sched.RunPending()
}

func (h *harness) deliver(id, payload string) error {
	err := h.m.HandleIQ(jingletest.SetIQ(id, payload))
	h.flush()
	return err
}

func (h *harness) reply(action string) {
	h.t.Helper()
	id := h.conn.IDOf(action)
	require.NotEmpty(h.t, id, "no %s was sent", action)
	require.True(h.t, h.conn.Reply(id), "%s is not waiting for a reply", action)
	h.flush()
}

func rtpContent(name, senders string, codecs ...jingle.Codec) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<content creator="initiator" name="%s"`, name)
	if senders != "" {
		fmt.Fprintf(&b, ` senders="%s"`, senders)
	}
	b.WriteString(`><description xmlns="urn:xmpp:jingle:apps:rtp:1" media="audio">`)
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

// incoming delivers a session-initiate with one audio content and returns
// the channel created for it.
func incoming(t *testing.T, h *harness, sid, senders string) *call.Channel {
	t.Helper()
	err := h.deliver("init-"+sid, jinglePayload("session-initiate", sid, jingletest.Peer.String(),
		rtpContent("audio", senders, pcmu, gsm)))
	require.NoError(t, err)
	require.NotNil(t, h.ch)
	return h.ch
}

func prepare(t *testing.T, st *call.Stream) {
	t.Helper()
	require.NoError(t, st.SetLocalCodecs([]jingle.Codec{pcmu}))
	st.AddLocalCandidates([]transport.Candidate{hostCandidate})
}

// answered accepts an incoming call and waits for the peer's ack.
func answered(t *testing.T, h *harness, senders string) (*call.Channel, *call.Stream) {
	t.Helper()
	ch := incoming(t, h, "in", senders)
	require.Len(t, ch.Streams(), 1)
	st := ch.Streams()[0]
	prepare(t, st)
	require.NoError(t, ch.Accept())
	h.flush()
	h.reply("session-accept")
	require.Equal(t, jingle.StateActive, ch.State())
	return ch, st
}

// placed calls the peer with n audio streams and has the peer accept.
func placed(t *testing.T, h *harness, n int) (*call.Channel, []*call.Stream) {
	t.Helper()
	s := h.m.NewSession(jingletest.Peer, jingle.DialectV032)
	ch := call.New(s, h.sched)
	var streams []*call.Stream
	for i := 0; i < n; i++ {
		st, err := ch.AddStream(jingle.MediaAudio, "")
		require.NoError(t, err)
		streams = append(streams, st)
	}
	for _, st := range streams {
		prepare(t, st)
	}
	h.flush()
	h.reply("session-initiate")
	var body []string
	for _, st := range streams {
		body = append(body, rtpContent(st.Name(), "", pcmu))
	}
	err := h.deliver("accept-"+s.SID(), jinglePayload("session-accept", s.SID(), jingletest.Local.String(), body...))
	require.NoError(t, err)
	require.Equal(t, jingle.StateActive, ch.State())
	return ch, streams
}

type recorder struct {
	events []call.Event
}

func watch(ch *call.Channel) *recorder {
	r := &recorder{}
	ch.Subscribe(func(e call.Event) {
		r.events = append(r.events, e)
	})
	return r
}

func count[T call.Event](r *recorder) int {
	n := 0
	for _, e := range r.events {
		if _, ok := e.(T); ok {
			n++
		}
	}
	return n
}

func last[T call.Event](r *recorder) T {
	var out T
	for _, e := range r.events {
		if v, ok := e.(T); ok {
			out = v
		}
	}
	return out
}
