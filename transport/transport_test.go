// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package transport_test

import (
	"encoding/xml"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mellium.im/jingle/element"
	"mellium.im/jingle/transport"
)

type host struct {
	sent   []*element.Element
	remote [][]transport.Candidate
}

func (h *host) SendTransportInfo(fill func(*element.Element)) error {
	trans := element.New("", "transport")
	fill(trans)
	h.sent = append(h.sent, trans)
	return nil
}

func (h *host) RemoteCandidatesAdded(c []transport.Candidate) {
	h.remote = append(h.remote, c)
}

func parse(t *testing.T, s string) *element.Element {
	t.Helper()
	e, err := element.Decode(xml.NewDecoder(strings.NewReader(s)), nil)
	require.NoError(t, err)
	return e
}

var local = []transport.Candidate{
	{Component: 1, Foundation: "1", Address: "192.0.2.1", Port: 5000, Protocol: "udp", Priority: 2130706431},
	{Component: 2, Foundation: "1", Address: "192.0.2.1", Port: 5001, Protocol: "udp", Priority: 2130706430},
}

func TestNew(t *testing.T) {
	for _, space := range []string{transport.NSICEUDP, transport.NSRawUDP, transport.NSGoogleP2P} {
		t.Run(space, func(t *testing.T) {
			assert.True(t, transport.Supported(space))
			tr, err := transport.New(space, &host{})
			require.NoError(t, err)
			assert.Equal(t, space, tr.NS())
			assert.Equal(t, transport.Disconnected, tr.State())
		})
	}
	_, err := transport.New("urn:example:carrier-pigeon", &host{})
	assert.ErrorIs(t, err, transport.ErrUnsupported)
	assert.False(t, transport.Supported(""))
}

func TestICEUDPParse(t *testing.T) {
	h := &host{}
	tr := transport.NewICEUDP(h)
	err := tr.ParseCandidates(parse(t, `<transport xmlns="urn:xmpp:jingle:transports:ice-udp:1" ufrag="8hhy" pwd="asd88fgpdd777uzjYhagZg">
  <candidate component="1" foundation="1" generation="0" id="el0747fg11" ip="10.0.1.1" network="1" port="8998" priority="2130706431" protocol="udp" type="host"/>
  <candidate component="1" foundation="2" generation="0" id="y3s2b30v3r" ip="192.0.2.3" network="1" port="45664" priority="1694498815" protocol="udp" type="srflx"/>
</transport>`))
	require.NoError(t, err)

	remote := tr.RemoteCandidates()
	require.Len(t, remote, 2)
	assert.Equal(t, "10.0.1.1", remote[0].Address)
	assert.Equal(t, 8998, remote[0].Port)
	assert.Equal(t, uint32(2130706431), remote[0].Priority)
	assert.Equal(t, transport.HostCandidate, remote[0].Type)
	assert.Equal(t, "host", remote[0].Type.String())
	assert.Equal(t, transport.ServerReflexive, remote[1].Type)
	ufrag, pwd := tr.RemoteCredentials()
	assert.Equal(t, "8hhy", ufrag)
	assert.Equal(t, "asd88fgpdd777uzjYhagZg", pwd)
	require.Len(t, h.remote, 1)
	assert.Len(t, h.remote[0], 2)

	// Candidates are appended, never replaced.
	require.NoError(t, tr.ParseCandidates(parse(t, `<transport><candidate ip="10.0.1.2" port="9000" component="2"/></transport>`)))
	assert.Len(t, tr.RemoteCandidates(), 3)
}

func TestICEUDPMalformed(t *testing.T) {
	for name, s := range map[string]string{
		"noip":     `<transport><candidate port="1"/></transport>`,
		"badport":  `<transport><candidate ip="10.0.0.1" port="x"/></transport>`,
		"badtype":  `<transport><candidate ip="10.0.0.1" port="1" type="wormhole"/></transport>`,
		"badprio":  `<transport><candidate ip="10.0.0.1" port="1" priority="high"/></transport>`,
		"badcompo": `<transport><candidate ip="10.0.0.1" port="1" component="one"/></transport>`,
	} {
		t.Run(name, func(t *testing.T) {
			h := &host{}
			tr := transport.NewICEUDP(h)
			err := tr.ParseCandidates(parse(t, s))
			assert.ErrorIs(t, err, transport.ErrMalformed)
			assert.Empty(t, tr.RemoteCandidates())
			assert.Empty(t, h.remote)
		})
	}
}

func TestICEUDPSend(t *testing.T) {
	h := &host{}
	tr := transport.NewICEUDP(h)
	tr.SetLocalCredentials("ufrag", "password")
	assert.False(t, tr.CanAccept())

	tr.AddLocalCandidates(local[:1])
	assert.True(t, tr.CanAccept())

	offer := element.New(transport.NSICEUDP, "transport")
	tr.InjectCandidates(offer)
	assert.Equal(t, "ufrag", offer.Get("ufrag"))
	assert.Equal(t, "password", offer.Get("pwd"))
	assert.Len(t, offer.All("candidate"), 1)

	tr.SendCandidates(false)
	assert.Empty(t, h.sent, "injected candidates should not be sent again")

	tr.AddLocalCandidates(local[1:])
	tr.SendCandidates(false)
	require.Len(t, h.sent, 1)
	cands := h.sent[0].All("candidate")
	require.Len(t, cands, 1)
	assert.Equal(t, "5001", cands[0].Get("port"))
	assert.Equal(t, "host", cands[0].Get("type"))

	tr.SendCandidates(true)
	require.Len(t, h.sent, 2)
	assert.Len(t, h.sent[1].All("candidate"), 2)
	assert.Len(t, tr.LocalCandidates(), 2)

	tr.Reset()
	assert.Empty(t, tr.LocalCandidates())
}

func TestRawUDP(t *testing.T) {
	h := &host{}
	tr := transport.NewRawUDP(h)
	tr.AddLocalCandidates(local)

	offer := element.New(transport.NSRawUDP, "transport")
	tr.InjectCandidates(offer)
	cands := offer.All("candidate")
	require.Len(t, cands, 2)
	assert.Equal(t, "192.0.2.1", cands[0].Get("ip"))
	assert.Equal(t, "2", cands[1].Get("component"))

	tr.SendCandidates(false)
	assert.Empty(t, h.sent)

	require.NoError(t, tr.ParseCandidates(parse(t, `<transport xmlns="urn:xmpp:jingle:transports:raw-udp:1"><candidate component="1" generation="0" id="a9j3mnbtu1" ip="10.1.1.104" port="13540"/></transport>`)))
	require.Len(t, tr.RemoteCandidates(), 1)
	assert.Equal(t, 13540, tr.RemoteCandidates()[0].Port)
}

func TestGoogleP2P(t *testing.T) {
	h := &host{}
	tr := transport.NewGoogleP2P(h)
	tr.AddLocalCandidates([]transport.Candidate{{
		Component: transport.ComponentRTP, Address: "192.0.2.7", Port: 4000,
		Username: "user", Password: "pass", Preference: 1, Protocol: "udp",
	}})
	assert.False(t, tr.CanAccept(), "google transport needs a connection before accepting")
	tr.SetState(transport.Connected)
	assert.True(t, tr.CanAccept())

	offer := element.New(transport.NSGoogleP2P, "transport")
	tr.InjectCandidates(offer)
	assert.Empty(t, offer.Children)

	tr.SendCandidates(false)
	require.Len(t, h.sent, 1)
	c := h.sent[0].Child("candidate")
	require.NotNil(t, c)
	assert.Equal(t, "rtp", c.Get("name"))
	assert.Equal(t, "local", c.Get("type"))
	assert.Equal(t, "1.0", c.Get("preference"))
	assert.Equal(t, "user", c.Get("username"))

	tr.SetChannel("share-1", 3)
	require.NoError(t, tr.ParseCandidates(parse(t, `<session xmlns="http://www.google.com/session" type="candidates">
  <candidate name="rtp" address="198.51.100.1" port="2000" preference="0.9" username="u" password="p" protocol="udp" generation="0" type="stun" network="0"/>
  <candidate name="share-1" address="198.51.100.1" port="2002" type="relay"/>
  <candidate name="video_rtp" address="198.51.100.1" port="2004"/>
</session>`)))
	remote := tr.RemoteCandidates()
	require.Len(t, remote, 2)
	assert.Equal(t, transport.ServerReflexive, remote[0].Type)
	assert.InDelta(t, 0.9, remote[0].Preference, 0.001)
	assert.Equal(t, 3, remote[1].Component)
	assert.Equal(t, transport.Relay, remote[1].Type)

	err := tr.ParseCandidates(parse(t, `<transport><candidate address="198.51.100.1" port="1"/></transport>`))
	assert.ErrorIs(t, err, transport.ErrMalformed)
}
