// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package ns provides namespace constants that are used by the jingle package
// and its transports.
package ns // import "mellium.im/jingle/internal/ns"

// Session level namespaces.
const (
	Jingle       = "urn:xmpp:jingle:1"
	Jingle015    = "http://jabber.org/protocol/jingle"
	JingleErrors = "urn:xmpp:jingle:errors:1"
	Google       = "http://www.google.com/session"
)

// Application (description) namespaces.
const (
	RTP         = "urn:xmpp:jingle:apps:rtp:1"
	RTPInfo     = "urn:xmpp:jingle:apps:rtp:info:1"
	Audio015    = "http://jabber.org/protocol/jingle/description/audio"
	Video015    = "http://jabber.org/protocol/jingle/description/video"
	GooglePhone = "http://www.google.com/session/phone"
	GoogleVideo = "http://www.google.com/session/video"
	GoogleShare = "http://www.google.com/session/share"
)

// Transport namespaces.
const (
	ICEUDP    = "urn:xmpp:jingle:transports:ice-udp:1"
	RawUDP    = "urn:xmpp:jingle:transports:raw-udp:1"
	GoogleP2P = "http://www.google.com/transport/p2p"
)

// Stanzas is the namespace of stanza error conditions.
const Stanzas = "urn:ietf:params:xml:ns:xmpp-stanzas"
