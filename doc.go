// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package jingle implements the negotiation side of XEP-0166: Jingle, along
// with the older Google Talk dialects that predate it.
//
// A Session negotiates a set of Contents (audio, video or a file share) with a
// single peer. Each Content owns a Transport (see the transport package) that
// exchanges connectivity candidates. Sessions never touch media; they only
// agree on codecs, candidates and who may send.
//
// Everything in this package runs on a single event loop (see the eventloop
// package). Methods must not be called from any other goroutine and none of
// the types are safe for concurrent use.
//
// # Dialects
//
// Four dialects are understood:
//
//   - Jingle 1 (urn:xmpp:jingle:1)
//   - Jingle 0.15 (http://jabber.org/protocol/jingle)
//   - GTalk "lj0.4" which uses the Google session namespace with an explicit
//     transport element
//   - GTalk "lj0.3" which has no transport element and puts candidates
//     directly on the session node
//
// GTalk sessions start out as lj0.4 and fall back to lj0.3 the first time a
// content arrives without a transport.
package jingle // import "mellium.im/jingle"
