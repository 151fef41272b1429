// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package jingle

// Action is a verb carried by a session payload.
type Action uint8

// A list of actions.
const (
	ActionUnknown Action = iota
	ActionContentAccept
	ActionContentAdd
	ActionContentModify
	ActionContentRemove
	ActionContentReplace
	ActionContentReject
	ActionSessionAccept
	ActionSessionInfo
	ActionSessionInitiate
	ActionSessionTerminate
	ActionTransportInfo
	ActionTransportAccept
	ActionDescriptionInfo
	ActionInfo
)

var actionNames = map[Action]string{
	ActionContentAccept:    "content-accept",
	ActionContentAdd:       "content-add",
	ActionContentModify:    "content-modify",
	ActionContentRemove:    "content-remove",
	ActionContentReplace:   "content-replace",
	ActionContentReject:    "content-reject",
	ActionSessionAccept:    "session-accept",
	ActionSessionInfo:      "session-info",
	ActionSessionInitiate:  "session-initiate",
	ActionSessionTerminate: "session-terminate",
	ActionTransportInfo:    "transport-info",
	ActionTransportAccept:  "transport-accept",
	ActionDescriptionInfo:  "description-info",
	ActionInfo:             "info",
}

// String returns the Jingle name of the action.
func (a Action) String() string {
	if s, ok := actionNames[a]; ok {
		return s
	}
	return "unknown"
}

// Name returns the name of the action on the wire in the given dialect or the
// empty string if the dialect has no such action.
func (a Action) Name(d Dialect) string {
	if !d.Defines(a) {
		return ""
	}
	if !d.IsGoogle() {
		return a.String()
	}
	switch a {
	case ActionSessionInitiate:
		return "initiate"
	case ActionSessionAccept:
		return "accept"
	case ActionSessionTerminate:
		return "terminate"
	case ActionTransportInfo:
		if d == DialectGTalk3 {
			return "candidates"
		}
		return "transport-info"
	}
	return a.String()
}

// ParseAction returns the action named s in the given dialect.
func ParseAction(d Dialect, s string) Action {
	if d.IsGoogle() {
		switch s {
		case "initiate":
			return ActionSessionInitiate
		case "accept":
			return ActionSessionAccept
		case "terminate", "reject":
			return ActionSessionTerminate
		case "candidates", "transport-info":
			return ActionTransportInfo
		case "transport-accept":
			return ActionTransportAccept
		case "info":
			return ActionInfo
		case "session-info":
			return ActionSessionInfo
		}
		return ActionUnknown
	}
	for a, name := range actionNames {
		if name == s {
			return a
		}
	}
	return ActionUnknown
}
