// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmppconn

import (
	"encoding/xml"

	"mellium.im/xmlstream"
	"mellium.im/xmpp/mux"
	"mellium.im/xmpp/stanza"

	"mellium.im/jingle"
	"mellium.im/jingle/element"
	"mellium.im/jingle/internal/logging"
	"mellium.im/jingle/internal/ns"
)

// Handler hands Jingle and Google session requests to a Manager.
type Handler struct {
	c *Conn
	m *jingle.Manager
}

// Handler returns a handler that posts requests to m on the loop.
func (c *Conn) Handler(m *jingle.Manager) Handler {
	return Handler{c: c, m: m}
}

// HandleIQ decodes the payload and posts it to the manager. The manager
// sends the reply.
func (h Handler) HandleIQ(iq stanza.IQ, t xmlstream.TokenReadEncoder, start *xml.StartElement) error {
	payload, err := element.Decode(t, start)
	if err != nil {
		return err
	}
	in := element.IQ{IQ: iq, Payload: payload}
	h.c.loop.Post(func() {
		if err := h.m.HandleIQ(in); err != nil {
			h.c.log.Debug().Err(err).Str(logging.FieldID, in.ID).Msg("request refused")
		}
	})
	return nil
}

// Options registers h for every session payload the engine understands.
func (h Handler) Options() []mux.Option {
	names := []xml.Name{
		{Space: ns.Jingle, Local: "jingle"},
		{Space: ns.Jingle015, Local: "jingle"},
		{Space: ns.Google, Local: "session"},
	}
	opts := make([]mux.Option, 0, len(names))
	for _, n := range names {
		opts = append(opts, mux.IQ(stanza.SetIQ, n, h))
	}
	return opts
}
