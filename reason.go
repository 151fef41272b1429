// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package jingle

import (
	"mellium.im/jingle/element"
)

// Reason is the condition carried in a session-terminate or content-reject.
type Reason uint8

// A list of reasons.
const (
	ReasonUnknown Reason = iota
	ReasonAlternativeSession
	ReasonBusy
	ReasonCancel
	ReasonConnectivityError
	ReasonDecline
	ReasonExpired
	ReasonFailedApplication
	ReasonFailedTransport
	ReasonGeneralError
	ReasonGone
	ReasonIncompatibleParameters
	ReasonMediaError
	ReasonSecurityError
	ReasonSuccess
	ReasonTimeout
	ReasonUnsupportedApplications
	ReasonUnsupportedTransports
)

var reasonNames = [...]string{
	ReasonUnknown:                 "",
	ReasonAlternativeSession:      "alternative-session",
	ReasonBusy:                    "busy",
	ReasonCancel:                  "cancel",
	ReasonConnectivityError:       "connectivity-error",
	ReasonDecline:                 "decline",
	ReasonExpired:                 "expired",
	ReasonFailedApplication:       "failed-application",
	ReasonFailedTransport:         "failed-transport",
	ReasonGeneralError:            "general-error",
	ReasonGone:                    "gone",
	ReasonIncompatibleParameters:  "incompatible-parameters",
	ReasonMediaError:              "media-error",
	ReasonSecurityError:           "security-error",
	ReasonSuccess:                 "success",
	ReasonTimeout:                 "timeout",
	ReasonUnsupportedApplications: "unsupported-applications",
	ReasonUnsupportedTransports:   "unsupported-transports",
}

// String returns the element name of the reason.
func (r Reason) String() string {
	if int(r) < len(reasonNames) && r != ReasonUnknown {
		return reasonNames[r]
	}
	return "unknown"
}

// ParseReason returns the reason with the given element name.
func ParseReason(s string) Reason {
	if s == "" {
		return ReasonUnknown
	}
	for i, name := range reasonNames {
		if name == s {
			return Reason(i)
		}
	}
	return ReasonUnknown
}

// parseReasonNode reads a <reason/> element. A missing element yields
// ReasonUnknown.
func parseReasonNode(node *element.Element) (Reason, string) {
	if node == nil {
		return ReasonUnknown, ""
	}
	var text string
	r := ReasonUnknown
	for _, c := range node.Children {
		if c.Name() == "text" {
			text = c.Text
			continue
		}
		if p := ParseReason(c.Name()); p != ReasonUnknown {
			r = p
		}
	}
	return r, text
}

// produceReason adds a <reason/> element to parent. Unknown reasons are
// sent as general-error when text is provided and omitted otherwise.
func produceReason(parent *element.Element, r Reason, text string) {
	if r == ReasonUnknown {
		if text == "" {
			return
		}
		r = ReasonGeneralError
	}
	node := parent.Add("", "reason")
	node.Add("", r.String())
	if text != "" {
		node.AddText("", "text", text)
	}
}
