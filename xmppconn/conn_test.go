// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmppconn_test

import (
	"context"
	"encoding/xml"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"mellium.im/xmlstream"
	"mellium.im/xmpp/stanza"

	"mellium.im/jingle"
	"mellium.im/jingle/element"
	"mellium.im/jingle/eventloop"
	"mellium.im/jingle/internal/jingletest"
	"mellium.im/jingle/pipeline"
	"mellium.im/jingle/xmppconn"
)

var errNetwork = errors.New("network is down")

type readCloser struct {
	xml.TokenReader
}

func (readCloser) Close() error { return nil }

type fakeSession struct {
	mu    sync.Mutex
	sent  []element.IQ
	fail  bool
	block bool
}

func (f *fakeSession) record(r xml.TokenReader) (element.IQ, error) {
	iq, err := element.DecodeIQ(r, nil)
	if err != nil {
		return iq, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, iq)
	return iq, nil
}

func (f *fakeSession) Send(_ context.Context, r xml.TokenReader) error {
	_, err := f.record(r)
	return err
}

func (f *fakeSession) SendIQ(ctx context.Context, r xml.TokenReader) (xmlstream.TokenReadCloser, error) {
	iq, err := f.record(r)
	if err != nil {
		return nil, err
	}
	switch {
	case f.block:
		<-ctx.Done()
		return nil, ctx.Err()
	case f.fail:
		return nil, errNetwork
	}
	return readCloser{iq.Result().TokenReader()}, nil
}

func (f *fakeSession) Sent() []element.IQ {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]element.IQ(nil), f.sent...)
}

type chanPoster chan func()

func (c chanPoster) Post(f func()) {
	c <- f
}

func request(id string) element.IQ {
	iq := jingletest.SetIQ(id, `<jingle xmlns="urn:xmpp:jingle:1" action="session-info" sid="s1" initiator="romeo@example.net/orchard"/>`)
	iq.To, iq.From = jingletest.Peer, jingletest.Local
	return iq
}

func TestSendIQ(t *testing.T) {
	defer goleak.VerifyNone(t)

	for _, tc := range []struct {
		name string
		fail bool
		want stanza.IQType
	}{
		{name: "result", want: stanza.ResultIQ},
		{name: "network error", fail: true, want: stanza.ErrorIQ},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s := &fakeSession{fail: tc.fail}
			posts := make(chanPoster, 1)
			c := xmppconn.New(s, posts)
			defer c.Close()

			var reply element.IQ
			require.NoError(t, c.SendIQ(request("r1"), func(iq element.IQ) {
				reply = iq
			}))
			(<-posts)()

			assert.Equal(t, tc.want, reply.Type)
			assert.Equal(t, "r1", reply.ID)
			sent := s.Sent()
			require.Len(t, sent, 1)
			assert.Equal(t, "session-info", sent[0].Payload.Get("action"))
			if tc.fail {
				var se stanza.Error
				require.True(t, errors.As(reply.Err(), &se))
				assert.Equal(t, stanza.ServiceUnavailable, se.Condition)
			}
		})
	}
}

func TestClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := &fakeSession{block: true}
	posts := make(chanPoster, 1)
	c := xmppconn.New(s, posts)

	called := false
	require.NoError(t, c.SendIQ(request("r1"), func(element.IQ) {
		called = true
	}))
	require.NoError(t, c.Close())
	(<-posts)()
	assert.True(t, called)

	assert.ErrorIs(t, c.Send(request("r2")), xmppconn.ErrClosed)
	assert.ErrorIs(t, c.SendIQ(request("r3"), func(element.IQ) {}), xmppconn.ErrClosed)
}

// payloadReader reads the tokens that follow the payload's start element.
type payloadReader struct {
	xmlstream.TokenReadEncoder
	r xml.TokenReader
}

func (p payloadReader) Token() (xml.Token, error) {
	return p.r.Token()
}

func TestHandler(t *testing.T) {
	for _, tc := range []struct {
		name string
		wrap func(*xml.Decoder) xml.TokenReader
	}{
		{"end element", func(d *xml.Decoder) xml.TokenReader { return d }},
		{"inner", func(d *xml.Decoder) xml.TokenReader { return xmlstream.Inner(d) }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s := &fakeSession{}
			sched := eventloop.NewManual()
			c := xmppconn.New(s, sched)
			defer c.Close()
			m := jingle.NewManager(jingletest.Local, c, pipeline.New(c, sched), sched)
			h := c.Handler(m)
			assert.Len(t, h.Options(), 3)

			d := xml.NewDecoder(strings.NewReader(`<jingle xmlns="urn:xmpp:jingle:1" action="session-terminate" sid="nope" initiator="juliet@example.com/balcony"><reason><success/></reason></jingle>`))
			tok, err := d.Token()
			require.NoError(t, err)
			start := tok.(xml.StartElement)

			iq := stanza.IQ{ID: "in1", From: jingletest.Peer, To: jingletest.Local, Type: stanza.SetIQ}
			require.NoError(t, h.HandleIQ(iq, payloadReader{r: tc.wrap(d)}, &start))
			assert.Empty(t, s.Sent(), "requests are handled on the loop")

			sched.RunPending()
			sent := s.Sent()
			require.Len(t, sent, 1)
			assert.Equal(t, "in1", sent[0].ID)
			assert.Equal(t, stanza.ErrorIQ, sent[0].Type)
			var se stanza.Error
			require.True(t, errors.As(sent[0].Err(), &se))
			assert.Equal(t, stanza.ItemNotFound, se.Condition)
		})
	}
}
