// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package jingletest

import (
	"encoding/xml"
	"strings"

	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/stanza"

	"mellium.im/jingle/element"
)

// SetIQ parses payload and wraps it in a set IQ from Peer to Local.
// It panics if payload is not valid XML.
func SetIQ(id, payload string) element.IQ {
	return SetIQFrom(Peer, id, payload)
}

// SetIQFrom is like SetIQ but uses the provided sender.
func SetIQFrom(from jid.JID, id, payload string) element.IQ {
	e, err := element.Decode(xml.NewDecoder(strings.NewReader(payload)), nil)
	if err != nil {
		panic(err)
	}
	return element.IQ{
		IQ: stanza.IQ{
			ID:   id,
			To:   Local,
			From: from,
			Type: stanza.SetIQ,
		},
		Payload: e,
	}
}
