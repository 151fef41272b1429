// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package transport implements the candidate exchange rules of the Jingle
// transport methods.
//
// A Transport never touches the network; it only tracks local and remote
// candidates for one content and knows how to read and write them in its
// wire format.
package transport // import "mellium.im/jingle/transport"

import (
	"errors"
	"fmt"

	"mellium.im/jingle/element"
	"mellium.im/jingle/internal/ns"
)

// Namespaces of the supported transport methods.
const (
	NSICEUDP    = ns.ICEUDP
	NSRawUDP    = ns.RawUDP
	NSGoogleP2P = ns.GoogleP2P
)

// Errors returned by transports.
var (
	ErrMalformed   = errors.New("transport: malformed candidate")
	ErrUnsupported = errors.New("transport: unsupported transport")
)

// State is the connectivity state reported by the media layer.
type State uint8

// A list of possible transport states.
const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Host is implemented by the content that owns a transport.
type Host interface {
	// SendTransportInfo builds a transport-info message for the content,
	// calls fill with the node candidates must be added to and sends it.
	SendTransportInfo(fill func(trans *element.Element)) error

	// RemoteCandidatesAdded is called after new remote candidates are parsed.
	RemoteCandidatesAdded(c []Candidate)
}

// Transport tracks the candidates of one content.
//
// Candidate lists are append-only until Reset is called.
type Transport interface {
	// NS returns the namespace of the transport method.
	NS() string

	// ParseCandidates reads candidates from a transport node (or from the
	// session node in dialects that do not have one) and appends them to the
	// remote list.
	ParseCandidates(trans *element.Element) error

	// InjectCandidates adds whatever the method carries in the initial offer
	// or answer to the transport node.
	InjectCandidates(trans *element.Element)

	// SendCandidates sends local candidates that have not been sent yet, or
	// every local candidate if all is true.
	SendCandidates(all bool)

	// AddLocalCandidates appends to the local list and marks the new
	// candidates as unsent.
	AddLocalCandidates(c []Candidate)

	LocalCandidates() []Candidate
	RemoteCandidates() []Candidate

	// CanAccept reports whether the content may be accepted.
	CanAccept() bool

	State() State
	SetState(State)

	// Reset drops every candidate.
	Reset()
}

// Supported reports whether there is a transport implementation for the
// namespace.
func Supported(space string) bool {
	switch space {
	case NSICEUDP, NSRawUDP, NSGoogleP2P:
		return true
	}
	return false
}

// New creates the transport registered for the namespace.
func New(space string, host Host) (Transport, error) {
	switch space {
	case NSICEUDP:
		return NewICEUDP(host), nil
	case NSRawUDP:
		return NewRawUDP(host), nil
	case NSGoogleP2P:
		return NewGoogleP2P(host), nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnsupported, space)
}

// base holds the bookkeeping shared by every method.
type base struct {
	host    Host
	local   []Candidate
	remote  []Candidate
	pending []Candidate
	state   State
}

func (b *base) AddLocalCandidates(c []Candidate) {
	b.local = append(b.local, c...)
	b.pending = append(b.pending, c...)
}

func (b *base) LocalCandidates() []Candidate {
	return append([]Candidate(nil), b.local...)
}

func (b *base) RemoteCandidates() []Candidate {
	return append([]Candidate(nil), b.remote...)
}

func (b *base) State() State {
	return b.state
}

func (b *base) SetState(s State) {
	b.state = s
}

func (b *base) Reset() {
	b.local = nil
	b.remote = nil
	b.pending = nil
}

func (b *base) addRemote(c []Candidate) {
	if len(c) == 0 {
		return
	}
	b.remote = append(b.remote, c...)
	if b.host != nil {
		b.host.RemoteCandidatesAdded(c)
	}
}

// takeCandidates returns the candidates to send and clears the unsent list.
func (b *base) takeCandidates(all bool) []Candidate {
	c := b.pending
	if all {
		c = b.local
	}
	b.pending = nil
	return append([]Candidate(nil), c...)
}

func (b *base) send(all bool, write func(*element.Element, Candidate)) {
	c := b.takeCandidates(all)
	if len(c) == 0 || b.host == nil {
		return
	}
	// The host logs send failures.
	_ = b.host.SendTransportInfo(func(trans *element.Element) {
		for _, cand := range c {
			write(trans, cand)
		}
	})
}
