// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package jingle

import (
	"mellium.im/jingle/transport"
)

// Event is emitted by a session when something changes.
// Handlers run synchronously on the event loop, in the order they subscribed.
type Event interface {
	// Session returns the session that emitted the event.
	Session() *Session
}

type sessionEvent struct {
	s *Session
}

func (e sessionEvent) Session() *Session { return e.s }

// StateChanged is emitted after the session moves to a new state.
type StateChanged struct {
	sessionEvent
	From, To SessionState
}

// DialectChanged is emitted when a GTalk4 session falls back to GTalk3.
type DialectChanged struct {
	sessionEvent
	From, To Dialect
}

// ContentAdded is emitted when a content joins the session, either because
// it was created locally or because the peer proposed it.
type ContentAdded struct {
	sessionEvent
	Content *Content
}

// ContentStateChanged is emitted after a content moves to a new state.
type ContentStateChanged struct {
	sessionEvent
	Content  *Content
	From, To ContentState
}

// SendersChanged is emitted when the senders of a content change.
type SendersChanged struct {
	sessionEvent
	Content *Content
	Senders Senders
}

// ContentRemoved is emitted exactly once per content when it leaves the
// session. Holders of the content must drop it.
type ContentRemoved struct {
	sessionEvent
	Content *Content
}

// ContentRejected is emitted when the peer rejects a content we proposed.
type ContentRejected struct {
	sessionEvent
	Content *Content
	Reason  Reason
	Text    string
}

// RemoteCandidates is emitted when the peer sends candidates for a content.
type RemoteCandidates struct {
	sessionEvent
	Content    *Content
	Candidates []transport.Candidate
}

// RemoteCodecs is emitted when the peer's codecs for an RTP content change.
type RemoteCodecs struct {
	sessionEvent
	Content *Content
	Codecs  []Codec
}

// RemoteInfo is emitted when the peer sends an RTP session-info.
type RemoteInfo struct {
	sessionEvent
	Info Info
	Name string // content the info applies to, if any
}

// ShareChannel is emitted when the peer opens a file share channel.
type ShareChannel struct {
	sessionEvent
	Content   *Content
	Name      string
	Component int
}

// ShareCompleted is emitted when the peer signals that a share completed.
type ShareCompleted struct {
	sessionEvent
	Content *Content
}

// Terminated is emitted once when the session ends.
type Terminated struct {
	sessionEvent
	Reason Reason
	Text   string
	// Local reports whether we ended the session.
	Local bool
}

// Handler receives session events.
type Handler func(Event)

type bus struct {
	next     int
	handlers []subscription
}

type subscription struct {
	id int
	h  Handler
}

func (b *bus) subscribe(h Handler) func() {
	b.next++
	id := b.next
	b.handlers = append(b.handlers, subscription{id: id, h: h})
	return func() {
		for i, s := range b.handlers {
			if s.id == id {
				b.handlers = append(b.handlers[:i:i], b.handlers[i+1:]...)
				return
			}
		}
	}
}

func (b *bus) emit(e Event) {
	// Handlers may unsubscribe while the event is being delivered.
	hs := append([]subscription(nil), b.handlers...)
	for _, s := range hs {
		s.h(e)
	}
}
