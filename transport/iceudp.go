// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package transport

import (
	"strconv"

	"mellium.im/jingle/element"
	"mellium.im/jingle/internal/attr"
)

// ICEUDP implements XEP-0176: Jingle ICE-UDP Transport Method.
type ICEUDP struct {
	base

	ufrag       string
	pwd         string
	remoteUfrag string
	remotePwd   string
}

// NewICEUDP returns an ICE-UDP transport with random local credentials.
func NewICEUDP(host Host) *ICEUDP {
	return &ICEUDP{
		base:  base{host: host},
		ufrag: attr.RandomID()[:8],
		pwd:   attr.RandomID() + attr.RandomID()[:8],
	}
}

// NS returns the ICE-UDP namespace.
func (t *ICEUDP) NS() string { return NSICEUDP }

// SetLocalCredentials overrides the generated username fragment and password.
func (t *ICEUDP) SetLocalCredentials(ufrag, pwd string) {
	t.ufrag = ufrag
	t.pwd = pwd
}

// LocalCredentials returns the local username fragment and password.
func (t *ICEUDP) LocalCredentials() (ufrag, pwd string) {
	return t.ufrag, t.pwd
}

// RemoteCredentials returns the credentials last received from the peer.
func (t *ICEUDP) RemoteCredentials() (ufrag, pwd string) {
	return t.remoteUfrag, t.remotePwd
}

// ParseCandidates reads the credentials and candidates of a transport node.
func (t *ICEUDP) ParseCandidates(trans *element.Element) error {
	if u := trans.Get("ufrag"); u != "" {
		t.remoteUfrag = u
	}
	if p := trans.Get("pwd"); p != "" {
		t.remotePwd = p
	}
	var cands []Candidate
	for _, node := range trans.All("candidate") {
		c, err := parseICECandidate(node)
		if err != nil {
			return err
		}
		cands = append(cands, c)
	}
	t.addRemote(cands)
	return nil
}

func parseICECandidate(node *element.Element) (Candidate, error) {
	var c Candidate
	var err error
	if c.Address, err = requireAttr(node, "ip"); err != nil {
		return c, err
	}
	if c.Port, err = attrInt(node, "port", 0); err != nil {
		return c, err
	}
	if c.Component, err = attrInt(node, "component", ComponentRTP); err != nil {
		return c, err
	}
	if c.Generation, err = attrInt(node, "generation", 0); err != nil {
		return c, err
	}
	if c.Network, err = attrInt(node, "network", 0); err != nil {
		return c, err
	}
	prio, err := attrInt(node, "priority", 0)
	if err != nil {
		return c, err
	}
	c.Priority = uint32(prio)
	if typ := node.Get("type"); typ != "" {
		if c.Type, err = parseType(typ); err != nil {
			return c, err
		}
	}
	c.ID = node.Get("id")
	c.Foundation = node.Get("foundation")
	c.Protocol = node.Get("protocol")
	if c.Protocol == "" {
		c.Protocol = "udp"
	}
	return c, nil
}

func (t *ICEUDP) writeCandidate(trans *element.Element, c Candidate) {
	trans.Set("ufrag", t.ufrag).Set("pwd", t.pwd)
	id := c.ID
	if id == "" {
		id = attr.RandomID()
	}
	trans.Add("", "candidate").
		Set("id", id).
		Set("component", itoa(c.Component)).
		Set("foundation", c.Foundation).
		Set("generation", itoa(c.Generation)).
		Set("network", itoa(c.Network)).
		Set("ip", c.Address).
		Set("port", itoa(c.Port)).
		Set("priority", strconv.FormatUint(uint64(c.Priority), 10)).
		Set("protocol", c.Protocol).
		Set("type", c.Type.String())
}

// InjectCandidates adds the local credentials and any unsent candidates.
func (t *ICEUDP) InjectCandidates(trans *element.Element) {
	trans.Set("ufrag", t.ufrag).Set("pwd", t.pwd)
	for _, c := range t.takeCandidates(false) {
		t.writeCandidate(trans, c)
	}
}

// SendCandidates sends candidates in a transport-info.
func (t *ICEUDP) SendCandidates(all bool) {
	t.send(all, t.writeCandidate)
}

// CanAccept reports whether at least one local candidate is known.
func (t *ICEUDP) CanAccept() bool {
	return len(t.local) > 0
}
