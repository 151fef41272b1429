// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package jingle_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mellium.im/jingle"
	"mellium.im/jingle/internal/jingletest"
	"mellium.im/jingle/internal/ns"
	"mellium.im/jingle/transport"
)

const gtalkPhone = `<description xmlns="http://www.google.com/session/phone"><payload-type id="103" name="ISAC" clockrate="16000" bitrate="32000"/></description>`

func googleInitiate(body string) string {
	return `<session xmlns="http://www.google.com/session" type="initiate" id="g1" initiator="juliet@example.com/balcony">` + body + `</session>`
}

func TestGTalk4FallsBackToGTalk3(t *testing.T) {
	var seen []jingle.Dialect
	h := newHarness(t, jingle.OnIncoming(func(s *jingle.Session) {
		seen = append(seen, s.Dialect())
	}))
	require.NoError(t, h.deliver("g", googleInitiate(gtalkPhone)))
	s := h.incoming[0]

	assert.Equal(t, []jingle.Dialect{jingle.DialectGTalk3}, seen)
	assert.Equal(t, jingle.DialectGTalk3, s.Dialect())
	accepts := h.conn.ByAction("transport-accept")
	require.Len(t, accepts, 1)
	assert.Equal(t, ns.Google, accepts[0].Payload.NS())
	assert.Nil(t, accepts[0].Payload.Child("transport"))

	c := s.Contents()[0]
	assert.Equal(t, transport.NSGoogleP2P, c.Transport().NS())
	codecs := c.Kind().(*jingle.RTP).RemoteCodecs()
	require.Len(t, codecs, 1)
	assert.Equal(t, "32000", codecs[0].Params["bitrate"])

	// The fallback happens once; later requests and turns of the loop leave
	// the dialect alone and send nothing else.
	rec := record(s)
	require.NoError(t, h.deliver("cand", `<session xmlns="http://www.google.com/session" type="candidates" id="g1" initiator="juliet@example.com/balcony">`+
		`<candidate name="rtp" address="198.51.100.7" port="4000" preference="1.0" username="u" password="p" protocol="udp" generation="0" network="0" type="local"/>`+
		`</session>`))
	h.flush()
	assert.Zero(t, count[*jingle.DialectChanged](rec))
	assert.Equal(t, jingle.DialectGTalk3, s.Dialect())
	assert.Len(t, h.conn.ByAction("transport-accept"), 1)
}

func TestGTalk4TransportAccept(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.deliver("g", googleInitiate(gtalkPhone+`<transport xmlns="http://www.google.com/transport/p2p"/>`)))
	s := h.incoming[0]
	assert.Equal(t, jingle.DialectGTalk4, s.Dialect())
	accepts := h.conn.ByAction("transport-accept")
	require.Len(t, accepts, 1)
	assert.NotNil(t, accepts[0].Payload.Child("transport"))
}

func TestGTalk3Candidates(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.deliver("g", googleInitiate(gtalkPhone)))
	s := h.incoming[0]
	c := s.Contents()[0]

	err := h.deliver("cand", `<session xmlns="http://www.google.com/session" type="candidates" id="g1" initiator="juliet@example.com/balcony">`+
		`<candidate name="rtp" address="198.51.100.7" port="4000" preference="1.0" username="u" password="p" protocol="udp" generation="0" network="0" type="local"/>`+
		`<candidate name="video_rtp" address="198.51.100.7" port="4002" protocol="udp" generation="0" network="0" type="local"/>`+
		`</session>`)
	require.NoError(t, err)
	remote := c.Transport().RemoteCandidates()
	require.Len(t, remote, 1)
	assert.Equal(t, 4000, remote[0].Port)

	c.AddCandidates([]transport.Candidate{hostCandidate})
	h.flush()
	sent := h.conn.ByAction("candidates")
	require.Len(t, sent, 1)
	require.Len(t, sent[0].Payload.All("candidate"), 1)
	assert.Equal(t, "rtp", sent[0].Payload.Child("candidate").Get("name"))
}

func TestGoogleDecline(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.deliver("g", googleInitiate(gtalkPhone)))
	s := h.incoming[0]
	require.NoError(t, s.Terminate(jingle.ReasonDecline, ""))
	h.flush()
	rejects := h.conn.ByAction("reject")
	require.Len(t, rejects, 1)
	assert.Equal(t, "g1", rejects[0].Payload.Get("id"))
	assert.Nil(t, rejects[0].Payload.Child("reason"))
}

func TestGoogleRejectIsDecline(t *testing.T) {
	h := newHarness(t)
	s := h.m.NewSession(jingletest.Peer, jingle.DialectGTalk4)
	rec := record(s)
	c, err := s.AddContent(jingle.ContentOptions{Kind: jingle.NewRTP(jingle.MediaAudio)})
	require.NoError(t, err)
	makeReady(t, c)
	h.flush()
	inits := h.conn.ByAction("initiate")
	require.Len(t, inits, 1)
	assert.Equal(t, ns.GooglePhone, inits[0].Payload.Child("description").NS())
	h.reply("initiate")

	err = h.deliver("rej", `<session xmlns="http://www.google.com/session" type="reject" id="`+s.SID()+`" initiator="`+jingletest.Local.String()+`"/>`)
	require.NoError(t, err)
	for _, e := range rec.events {
		if term, ok := e.(*jingle.Terminated); ok {
			assert.Equal(t, jingle.ReasonDecline, term.Reason)
		}
	}
	assert.Equal(t, jingle.StateEnded, s.State())
}

func TestJingle015Names(t *testing.T) {
	h := newHarness(t)
	s := h.m.NewSession(jingletest.Peer, jingle.DialectV015)
	c, err := s.AddContent(jingle.ContentOptions{Name: "audio", Kind: jingle.NewRTP(jingle.MediaAudio)})
	require.NoError(t, err)
	makeReady(t, c)
	h.flush()
	inits := h.conn.ByAction("session-initiate")
	require.Len(t, inits, 1)
	assert.Equal(t, ns.Jingle015, inits[0].Payload.NS())
	desc := inits[0].Payload.Child("content").Child("description")
	assert.Equal(t, ns.Audio015, desc.NS())
	assert.Empty(t, desc.Get("media"))

	assert.ErrorIs(t, s.SendInfo(jingle.InfoRinging, ""), jingle.ErrUnsupported)
}

func TestActionNames(t *testing.T) {
	for _, tc := range []struct {
		d    jingle.Dialect
		a    jingle.Action
		name string
	}{
		{jingle.DialectV032, jingle.ActionSessionInitiate, "session-initiate"},
		{jingle.DialectV032, jingle.ActionInfo, ""},
		{jingle.DialectV015, jingle.ActionDescriptionInfo, ""},
		{jingle.DialectGTalk3, jingle.ActionSessionInitiate, "initiate"},
		{jingle.DialectGTalk3, jingle.ActionTransportInfo, "candidates"},
		{jingle.DialectGTalk3, jingle.ActionTransportAccept, ""},
		{jingle.DialectGTalk4, jingle.ActionTransportInfo, "transport-info"},
		{jingle.DialectGTalk4, jingle.ActionTransportAccept, "transport-accept"},
		{jingle.DialectGTalk4, jingle.ActionContentAdd, ""},
	} {
		t.Run(tc.d.String()+"/"+tc.a.String(), func(t *testing.T) {
			assert.Equal(t, tc.name, tc.a.Name(tc.d))
			if tc.name != "" {
				assert.Equal(t, tc.a, jingle.ParseAction(tc.d, tc.name))
			}
		})
	}
	assert.Equal(t, jingle.ActionSessionTerminate, jingle.ParseAction(jingle.DialectGTalk4, "reject"))
}
