// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package transport

import (
	"mellium.im/jingle/element"
	"mellium.im/jingle/internal/attr"
)

// RawUDP implements XEP-0177: Jingle Raw UDP Transport Method.
// Candidates travel in the initial offer and answer.
type RawUDP struct {
	base
}

// NewRawUDP returns a raw UDP transport.
func NewRawUDP(host Host) *RawUDP {
	return &RawUDP{base: base{host: host}}
}

// NS returns the raw UDP namespace.
func (t *RawUDP) NS() string { return NSRawUDP }

// ParseCandidates reads candidates from the transport node.
func (t *RawUDP) ParseCandidates(trans *element.Element) error {
	var cands []Candidate
	for _, node := range trans.All("candidate") {
		var c Candidate
		var err error
		if c.Address, err = requireAttr(node, "ip"); err != nil {
			return err
		}
		if c.Port, err = attrInt(node, "port", 0); err != nil {
			return err
		}
		if c.Component, err = attrInt(node, "component", ComponentRTP); err != nil {
			return err
		}
		if c.Generation, err = attrInt(node, "generation", 0); err != nil {
			return err
		}
		c.ID = node.Get("id")
		c.Protocol = "udp"
		cands = append(cands, c)
	}
	t.addRemote(cands)
	return nil
}

func writeRawCandidate(trans *element.Element, c Candidate) {
	id := c.ID
	if id == "" {
		id = attr.RandomID()
	}
	trans.Add("", "candidate").
		Set("id", id).
		Set("component", itoa(c.Component)).
		Set("generation", itoa(c.Generation)).
		Set("ip", c.Address).
		Set("port", itoa(c.Port))
}

// InjectCandidates adds every local candidate to the offer or answer.
func (t *RawUDP) InjectCandidates(trans *element.Element) {
	for _, c := range t.takeCandidates(true) {
		writeRawCandidate(trans, c)
	}
}

// SendCandidates sends candidates gathered after the offer in a
// transport-info.
func (t *RawUDP) SendCandidates(all bool) {
	t.send(all, writeRawCandidate)
}

// CanAccept reports whether at least one local candidate is known.
func (t *RawUDP) CanAccept() bool {
	return len(t.local) > 0
}
