// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package jingle

import (
	"fmt"
)

// SessionState is the negotiation state of a session.
// States only ever increase.
type SessionState uint8

// A list of session states.
const (
	StatePendingCreated SessionState = iota
	StatePendingInitiateSent
	StatePendingInitiated
	StatePendingAcceptSent
	StateActive
	StateEnded
)

var sessionStateNames = [...]string{
	StatePendingCreated:      "pending-created",
	StatePendingInitiateSent: "pending-initiate-sent",
	StatePendingInitiated:    "pending-initiated",
	StatePendingAcceptSent:   "pending-accept-sent",
	StateActive:              "active",
	StateEnded:               "ended",
}

func (s SessionState) String() string {
	if int(s) < len(sessionStateNames) {
		return sessionStateNames[s]
	}
	return fmt.Sprintf("SessionState(%d)", uint8(s))
}

func parseSessionState(s string) SessionState {
	for i, name := range sessionStateNames {
		if name == s {
			return SessionState(i)
		}
	}
	return StatePendingCreated
}

// ContentState is the negotiation state of a content.
type ContentState uint8

// A list of content states.
const (
	// ContentEmpty is a local content that was not signalled yet.
	ContentEmpty ContentState = iota
	// ContentNew is a content received from the peer and not accepted yet.
	ContentNew
	// ContentSent is a local content offered to the peer.
	ContentSent
	// ContentAcknowledged is a content both sides agreed on.
	ContentAcknowledged
	// ContentRemoving is a content whose removal is in progress.
	ContentRemoving
)

func (s ContentState) String() string {
	switch s {
	case ContentEmpty:
		return "empty"
	case ContentNew:
		return "new"
	case ContentSent:
		return "sent"
	case ContentAcknowledged:
		return "acknowledged"
	case ContentRemoving:
		return "removing"
	}
	return fmt.Sprintf("ContentState(%d)", uint8(s))
}

// Senders is the set of parties allowed to send media on a content.
type Senders uint8

// A list of senders values.
const (
	SendersNone Senders = iota
	SendersInitiator
	SendersResponder
	SendersBoth
)

func (s Senders) String() string {
	switch s {
	case SendersInitiator:
		return "initiator"
	case SendersResponder:
		return "responder"
	case SendersBoth:
		return "both"
	}
	return "none"
}

// parseSenders returns SendersNone for unrecognized values, including "none"
// which is never valid on the wire.
func parseSenders(s string) Senders {
	switch s {
	case "initiator":
		return SendersInitiator
	case "responder":
		return SendersResponder
	case "both":
		return SendersBoth
	}
	return SendersNone
}
