// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package jingle

import (
	"fmt"

	"mellium.im/jingle/internal/ns"
)

// Dialect is a variant of the Jingle protocol.
type Dialect uint8

// A list of dialects.
const (
	DialectUnknown Dialect = iota
	DialectGTalk3
	DialectGTalk4
	DialectV015
	DialectV032
)

func (d Dialect) String() string {
	switch d {
	case DialectGTalk3:
		return "gtalk3"
	case DialectGTalk4:
		return "gtalk4"
	case DialectV015:
		return "jingle015"
	case DialectV032:
		return "jingle"
	}
	return "unknown"
}

// ParseDialect is the inverse of Dialect.String.
func ParseDialect(s string) (Dialect, error) {
	for _, d := range []Dialect{DialectGTalk3, DialectGTalk4, DialectV015, DialectV032} {
		if d.String() == s {
			return d, nil
		}
	}
	return DialectUnknown, fmt.Errorf("jingle: unknown dialect %q", s)
}

// IsGoogle reports whether the dialect is one of the Google Talk variants.
func (d Dialect) IsGoogle() bool {
	return d == DialectGTalk3 || d == DialectGTalk4
}

// NS returns the namespace of the session payload.
func (d Dialect) NS() string {
	switch d {
	case DialectGTalk3, DialectGTalk4:
		return ns.Google
	case DialectV015:
		return ns.Jingle015
	}
	return ns.Jingle
}

// Payload returns the local name of the session payload.
func (d Dialect) Payload() string {
	if d.IsGoogle() {
		return "session"
	}
	return "jingle"
}

// WrapsContents reports whether contents get their own <content/> element.
// Google dialects describe a single content directly on the session node.
func (d Dialect) WrapsContents() bool {
	return !d.IsGoogle()
}

// ImplicitTransport reports whether the transport is implied and candidates
// are attached to the session node.
func (d Dialect) ImplicitTransport() bool {
	return d == DialectGTalk3
}

// CanChangeDirection reports whether the peer can be told about a change of
// senders after the content was negotiated.
func (d Dialect) CanChangeDirection() bool {
	return !d.IsGoogle()
}

// CanModifyContents reports whether contents can be added or removed once
// the session exists.
func (d Dialect) CanModifyContents() bool {
	return !d.IsGoogle()
}

// Defines reports whether the dialect has a name for the action.
func (d Dialect) Defines(a Action) bool {
	if a == ActionUnknown {
		return false
	}
	switch d {
	case DialectV032:
		return a != ActionInfo && a != ActionTransportAccept
	case DialectV015:
		return a != ActionDescriptionInfo && a != ActionSessionInfo &&
			a != ActionInfo && a != ActionTransportAccept
	case DialectGTalk4:
		if a == ActionSessionInfo || a == ActionTransportAccept {
			return true
		}
		fallthrough
	case DialectGTalk3:
		return a == ActionSessionAccept || a == ActionSessionInitiate ||
			a == ActionSessionTerminate || a == ActionTransportInfo ||
			a == ActionInfo
	}
	return false
}

// dialectFromNS picks the dialect of an incoming session-initiate.
// Google sessions are assumed to be lj0.4 until proven otherwise.
func dialectFromNS(space string) Dialect {
	switch space {
	case ns.Jingle:
		return DialectV032
	case ns.Jingle015:
		return DialectV015
	case ns.Google:
		return DialectGTalk4
	}
	return DialectUnknown
}
