// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package call

import (
	"github.com/pion/sdp/v3"

	"mellium.im/jingle/transport"
)

// Event is emitted by a channel.
type Event interface {
	Channel() *Channel
}

type channelEvent struct {
	c *Channel
}

func (e channelEvent) Channel() *Channel { return e.c }

// StreamAdded is emitted when a stream is created for a content.
type StreamAdded struct {
	channelEvent
	Stream *Stream
}

// StreamRemoved is emitted when a stream's content leaves the session or the
// call ends.
type StreamRemoved struct {
	channelEvent
	Stream *Stream
}

// StreamErrored is emitted for errors reported by the media engine and, when
// the call ends with an error, for every open stream.
type StreamErrored struct {
	channelEvent
	Stream *Stream
	Error  StreamError
	Text   string
}

// StreamStateChanged is emitted when the media connection of a stream
// changes state.
type StreamStateChanged struct {
	channelEvent
	Stream *Stream
	State  transport.State
}

// DirectionChanged is emitted when a stream's direction or pending local
// send flag changes.
type DirectionChanged struct {
	channelEvent
	Stream           *Stream
	Direction        sdp.Direction
	PendingLocalSend bool
}

// MembersChanged is emitted when the member flags change.
type MembersChanged struct {
	channelEvent
	Flags MemberFlags
}

// HoldChanged is emitted when we put the call on hold or take it off.
type HoldChanged struct {
	channelEvent
	Held bool
}

// Closed is emitted once when the call ends.
type Closed struct {
	channelEvent
	Reason StateReason
}

// Handler receives channel events.
type Handler func(Event)

type bus struct {
	next     int
	handlers map[int]Handler
	order    []int
}

func (b *bus) subscribe(h Handler) func() {
	if b.handlers == nil {
		b.handlers = make(map[int]Handler)
	}
	b.next++
	id := b.next
	b.handlers[id] = h
	b.order = append(b.order, id)
	return func() {
		delete(b.handlers, id)
	}
}

func (b *bus) emit(e Event) {
	ids := b.order[:0:0]
	for _, id := range b.order {
		if _, ok := b.handlers[id]; ok {
			ids = append(ids, id)
		}
	}
	b.order = ids
	for _, id := range append([]int(nil), ids...) {
		if h, ok := b.handlers[id]; ok {
			h(e)
		}
	}
}
