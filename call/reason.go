// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package call

import (
	"fmt"

	"mellium.im/jingle"
)

// GroupReason is the reason a member joined or left a call.
type GroupReason uint8

// A list of group change reasons.
const (
	GroupReasonNone GroupReason = iota
	GroupReasonOffline
	GroupReasonKicked
	GroupReasonBusy
	GroupReasonInvited
	GroupReasonError
	GroupReasonNoAnswer
)

func (r GroupReason) String() string {
	switch r {
	case GroupReasonNone:
		return "none"
	case GroupReasonOffline:
		return "offline"
	case GroupReasonKicked:
		return "kicked"
	case GroupReasonBusy:
		return "busy"
	case GroupReasonInvited:
		return "invited"
	case GroupReasonError:
		return "error"
	case GroupReasonNoAnswer:
		return "no-answer"
	}
	return fmt.Sprintf("GroupReason(%d)", uint8(r))
}

// StreamError is an error reported by or to a media stream.
type StreamError uint8

// A list of stream errors.
const (
	StreamErrorUnknown StreamError = iota
	StreamErrorEOS
	StreamErrorCodecNegotiationFailed
	StreamErrorConnectionFailed
	StreamErrorNetworkError
	StreamErrorNoCodecs
	StreamErrorInvalidCMBehavior
	StreamErrorMediaError
)

func (e StreamError) String() string {
	switch e {
	case StreamErrorUnknown:
		return "unknown"
	case StreamErrorEOS:
		return "eos"
	case StreamErrorCodecNegotiationFailed:
		return "codec-negotiation-failed"
	case StreamErrorConnectionFailed:
		return "connection-failed"
	case StreamErrorNetworkError:
		return "network-error"
	case StreamErrorNoCodecs:
		return "no-codecs"
	case StreamErrorInvalidCMBehavior:
		return "invalid-cm-behavior"
	case StreamErrorMediaError:
		return "media-error"
	}
	return fmt.Sprintf("StreamError(%d)", uint8(e))
}

// JingleReason returns the reason sent to the peer when the local user ends
// a call with r. It reports false for reasons that cannot end a call.
func (r GroupReason) JingleReason() (jingle.Reason, bool) {
	switch r {
	case GroupReasonNone:
		return jingle.ReasonUnknown, true
	case GroupReasonOffline:
		return jingle.ReasonGone, true
	case GroupReasonBusy:
		return jingle.ReasonBusy, true
	case GroupReasonError:
		return jingle.ReasonGeneralError, true
	case GroupReasonNoAnswer:
		return jingle.ReasonTimeout, true
	}
	return jingle.ReasonUnknown, false
}

// GroupReasonFor returns the group change reason reported when the peer ends
// a call with r.
func GroupReasonFor(r jingle.Reason) GroupReason {
	switch r {
	case jingle.ReasonBusy:
		return GroupReasonBusy
	case jingle.ReasonGone:
		return GroupReasonOffline
	case jingle.ReasonTimeout:
		return GroupReasonNoAnswer
	case jingle.ReasonConnectivityError,
		jingle.ReasonFailedApplication,
		jingle.ReasonFailedTransport,
		jingle.ReasonGeneralError,
		jingle.ReasonMediaError,
		jingle.ReasonSecurityError,
		jingle.ReasonIncompatibleParameters,
		jingle.ReasonUnsupportedApplications,
		jingle.ReasonUnsupportedTransports:
		return GroupReasonError
	}
	return GroupReasonNone
}

// StreamErrorFor returns the error reported on every stream when a call ends
// with r. It reports false if r is not an error.
func StreamErrorFor(r jingle.Reason) (StreamError, bool) {
	switch r {
	case jingle.ReasonConnectivityError:
		return StreamErrorNetworkError, true
	case jingle.ReasonMediaError:
		return StreamErrorMediaError, true
	case jingle.ReasonFailedApplication:
		return StreamErrorCodecNegotiationFailed, true
	case jingle.ReasonGeneralError:
		return StreamErrorUnknown, true
	}
	return StreamErrorUnknown, false
}

// JingleReason returns the reason sent to the peer when a stream error ends
// the call.
func (e StreamError) JingleReason() jingle.Reason {
	switch e {
	case StreamErrorNetworkError:
		return jingle.ReasonConnectivityError
	case StreamErrorMediaError:
		return jingle.ReasonMediaError
	case StreamErrorCodecNegotiationFailed:
		return jingle.ReasonFailedApplication
	}
	return jingle.ReasonGeneralError
}
