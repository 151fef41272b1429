// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package call_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mellium.im/jingle"
	"mellium.im/jingle/call"
)

func TestGroupReasonToJingle(t *testing.T) {
	for _, tc := range []struct {
		in  call.GroupReason
		out jingle.Reason
		ok  bool
	}{
		{call.GroupReasonNone, jingle.ReasonUnknown, true},
		{call.GroupReasonOffline, jingle.ReasonGone, true},
		{call.GroupReasonBusy, jingle.ReasonBusy, true},
		{call.GroupReasonError, jingle.ReasonGeneralError, true},
		{call.GroupReasonNoAnswer, jingle.ReasonTimeout, true},
		{call.GroupReasonKicked, jingle.ReasonUnknown, false},
		{call.GroupReasonInvited, jingle.ReasonUnknown, false},
	} {
		t.Run(tc.in.String(), func(t *testing.T) {
			r, ok := tc.in.JingleReason()
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.out, r)
		})
	}
}

func TestJingleToGroupReason(t *testing.T) {
	for r, want := range map[jingle.Reason]call.GroupReason{
		jingle.ReasonBusy:                    call.GroupReasonBusy,
		jingle.ReasonGone:                    call.GroupReasonOffline,
		jingle.ReasonTimeout:                 call.GroupReasonNoAnswer,
		jingle.ReasonSecurityError:           call.GroupReasonError,
		jingle.ReasonUnsupportedTransports:   call.GroupReasonError,
		jingle.ReasonFailedTransport:         call.GroupReasonError,
		jingle.ReasonSuccess:                 call.GroupReasonNone,
		jingle.ReasonDecline:                 call.GroupReasonNone,
		jingle.ReasonCancel:                  call.GroupReasonNone,
		jingle.ReasonUnknown:                 call.GroupReasonNone,
		jingle.ReasonUnsupportedApplications: call.GroupReasonError,
	} {
		assert.Equal(t, want, call.GroupReasonFor(r), "reason %s", r)
	}
}

func TestStreamErrorMapping(t *testing.T) {
	for r, want := range map[jingle.Reason]call.StreamError{
		jingle.ReasonConnectivityError: call.StreamErrorNetworkError,
		jingle.ReasonMediaError:        call.StreamErrorMediaError,
		jingle.ReasonFailedApplication: call.StreamErrorCodecNegotiationFailed,
		jingle.ReasonGeneralError:      call.StreamErrorUnknown,
	} {
		got, ok := call.StreamErrorFor(r)
		assert.True(t, ok, "reason %s", r)
		assert.Equal(t, want, got, "reason %s", r)
	}
	_, ok := call.StreamErrorFor(jingle.ReasonSuccess)
	assert.False(t, ok)

	for e, want := range map[call.StreamError]jingle.Reason{
		call.StreamErrorNetworkError:           jingle.ReasonConnectivityError,
		call.StreamErrorMediaError:             jingle.ReasonMediaError,
		call.StreamErrorCodecNegotiationFailed: jingle.ReasonFailedApplication,
		call.StreamErrorEOS:                    jingle.ReasonGeneralError,
		call.StreamErrorNoCodecs:               jingle.ReasonGeneralError,
	} {
		assert.Equal(t, want, e.JingleReason(), "error %s", e)
	}
}
