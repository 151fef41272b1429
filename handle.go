// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package jingle

import (
	"mellium.im/jingle/element"
	"mellium.im/jingle/internal/logging"
	"mellium.im/jingle/internal/ns"
)

// handle processes an action sent by the peer. A nil error means the request
// should be acknowledged.
func (s *Session) handle(a Action, node *element.Element) error {
	st := s.State()
	if !s.alive() {
		return outOfOrder("session has ended")
	}
	if !s.dialect.Defines(a) && !(a == ActionTransportAccept && s.dialect.IsGoogle()) {
		return unsupported("action %s is not defined in %s", a, s.dialect)
	}
	if !isAllowed(st, a) {
		return outOfOrder("action %s is not allowed in state %s", a, st)
	}
	s.log.Debug().Str(logging.FieldAction, a.String()).Msg("handling action")

	switch a {
	case ActionSessionInitiate:
		return s.onSessionInitiate(node)
	case ActionSessionAccept:
		return s.onSessionAccept(node)
	case ActionSessionTerminate:
		return s.onSessionTerminate(node)
	case ActionSessionInfo:
		return s.onSessionInfo(node)
	case ActionContentAdd:
		return s.onContentAdd(node)
	case ActionContentAccept:
		return s.eachContent(node, (*Content).parseAccept)
	case ActionContentModify:
		return s.eachContent(node, (*Content).updateSenders)
	case ActionContentRemove, ActionContentReject:
		return s.onContentRemove(a, node)
	case ActionContentReplace:
		return unsupported("content-replace is not supported")
	case ActionTransportInfo:
		return s.eachContent(node, (*Content).parseTransportInfo)
	case ActionTransportAccept:
		s.log.Debug().Msg("peer accepted transport")
		return nil
	case ActionDescriptionInfo:
		return s.eachContent(node, (*Content).parseDescriptionInfo)
	case ActionInfo:
		return s.eachContent(node, (*Content).parseInfo)
	}
	return unsupported("unknown action")
}

// googleContentName names the single content of Google sessions.
const googleContentName = "gtalk"

// contentNodes returns the nodes describing contents in a payload.
func (s *Session) contentNodes(node *element.Element) []*element.Element {
	if s.dialect.WrapsContents() {
		return node.All("content")
	}
	return []*element.Element{node}
}

// lookupContent finds the content a node refers to. Google dialects carry a
// single unnamed content.
func (s *Session) lookupContent(node *element.Element) (*Content, error) {
	if !s.dialect.WrapsContents() {
		if len(s.contents) == 0 {
			return nil, malformed("session has no content")
		}
		return s.contents[0], nil
	}
	name := node.Get("name")
	c := s.Content(name)
	if c == nil {
		return nil, malformed("content %q doesn't exist", name)
	}
	return c, nil
}

func (s *Session) eachContent(node *element.Element, f func(*Content, *element.Element) error) error {
	nodes := s.contentNodes(node)
	if len(nodes) == 0 {
		return malformed("no contents in request")
	}
	for _, n := range nodes {
		c, err := s.lookupContent(n)
		if err != nil {
			return err
		}
		if err := f(c, n); err != nil {
			return err
		}
	}
	return nil
}

// parseContents builds the contents proposed in node. Nothing is added to the
// session unless every content parses.
func (s *Session) parseContents(node *element.Element) ([]*Content, error) {
	nodes := s.contentNodes(node)
	if len(nodes) == 0 {
		return nil, malformed("no contents in request")
	}
	var out []*Content
	discard := func() {
		for _, c := range out {
			c.discard()
		}
	}
	for _, n := range nodes {
		h, err := s.parseContentHeader(n)
		if err != nil {
			discard()
			return nil, err
		}
		if h.name == "" {
			// Google contents are unnamed on the wire.
			h.name = googleContentName
		}
		if s.Content(h.name) != nil {
			discard()
			return nil, malformed("content %q already exists", h.name)
		}
		if h.desc == nil {
			discard()
			return nil, malformed("content %q has no description", h.name)
		}
		kind, err := kindFor(h.desc)
		if err != nil {
			discard()
			return nil, err
		}
		c := newContent(s, h.name, kind, false)
		if err := c.parseAdd(h); err != nil {
			c.discard()
			discard()
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Session) onSessionInitiate(node *element.Element) error {
	if s.localInitiator {
		return outOfOrder("session-initiate for a session we initiated")
	}
	contents, err := s.parseContents(node)
	if err != nil {
		return err
	}
	for _, c := range contents {
		s.addContent(c)
	}
	s.fire(evInitiate)
	return nil
}

func (s *Session) onSessionAccept(node *element.Element) error {
	if !s.localInitiator {
		return outOfOrder("session-accept for a session we did not initiate")
	}
	wasGTalk4 := s.dialect == DialectGTalk4
	if err := s.eachContent(node, (*Content).parseAccept); err != nil {
		return err
	}
	if wasGTalk4 && s.dialect == DialectGTalk3 {
		for _, c := range s.contents {
			c.RetransmitCandidates(true)
		}
	}
	s.fire(evActivate)
	return nil
}

func (s *Session) onSessionTerminate(node *element.Element) error {
	reason, text := parseReasonNode(node.Child("reason"))
	if s.dialect.IsGoogle() && node.Get("type") == "reject" {
		reason = ReasonDecline
	}
	s.endSession(reason, text, false, false)
	return nil
}

func (s *Session) onSessionInfo(node *element.Element) error {
	if len(node.Children) == 0 {
		// Ping.
		return nil
	}
	for _, child := range node.Children {
		if child.NS() != ns.RTPInfo {
			return &Error{Kind: KindUnsupported, Cond: CondUnsupportedInfo, Text: "unsupported session-info payload " + child.Name()}
		}
		info := parseInfo(child.Name())
		if info == InfoUnknown {
			return &Error{Kind: KindUnsupported, Cond: CondUnsupportedInfo, Text: "unsupported session-info payload " + child.Name()}
		}
		s.emit(&RemoteInfo{sessionEvent: sessionEvent{s}, Info: info, Name: child.Get("name")})
	}
	return nil
}

func (s *Session) onContentAdd(node *element.Element) error {
	if !s.dialect.CanModifyContents() {
		return unsupported("%s cannot add contents", s.dialect)
	}
	contents, err := s.parseContents(node)
	if err != nil {
		return err
	}
	for _, c := range contents {
		s.addContent(c)
	}
	return nil
}

func (s *Session) onContentRemove(a Action, node *element.Element) error {
	reason, text := parseReasonNode(node.Child("reason"))
	var remove []*Content
	for _, n := range s.contentNodes(node) {
		c, err := s.lookupContent(n)
		if err != nil {
			return err
		}
		remove = append(remove, c)
	}
	if len(remove) == 0 {
		return malformed("no contents in request")
	}
	for _, c := range remove {
		if a == ActionContentReject {
			s.emit(&ContentRejected{sessionEvent: sessionEvent{s}, Content: c, Reason: reason, Text: text})
		}
		c.Remove(false)
	}
	return nil
}
