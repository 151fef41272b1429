// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package transport

import (
	"fmt"
	"strconv"

	"mellium.im/jingle/element"
)

// GoogleP2P implements the libjingle P2P transport used by Google Talk.
//
// Candidates name their channel instead of carrying a component number.
// The rtp and rtcp channels always exist; others are created by file share
// contents with SetChannel.
type GoogleP2P struct {
	base

	channels map[string]int
}

// NewGoogleP2P returns a Google P2P transport.
func NewGoogleP2P(host Host) *GoogleP2P {
	return &GoogleP2P{
		base: base{host: host},
		channels: map[string]int{
			"rtp":  ComponentRTP,
			"rtcp": ComponentRTCP,
		},
	}
}

// NS returns the Google P2P namespace.
func (t *GoogleP2P) NS() string { return NSGoogleP2P }

// SetChannel maps a channel name to a component.
func (t *GoogleP2P) SetChannel(name string, component int) {
	t.channels[name] = component
}

// Channel returns the component of a named channel.
func (t *GoogleP2P) Channel(name string) (int, bool) {
	c, ok := t.channels[name]
	return c, ok
}

func (t *GoogleP2P) channelName(component int) string {
	for name, c := range t.channels {
		if c == component {
			return name
		}
	}
	return "rtp"
}

// ParseCandidates reads candidate children of trans.
// Candidates for channels that do not exist are skipped.
func (t *GoogleP2P) ParseCandidates(trans *element.Element) error {
	var cands []Candidate
	for _, node := range trans.All("candidate") {
		name, err := requireAttr(node, "name")
		if err != nil {
			return err
		}
		component, ok := t.channels[name]
		if !ok {
			continue
		}
		c := Candidate{Component: component}
		if c.Address, err = requireAttr(node, "address"); err != nil {
			return err
		}
		if c.Port, err = attrInt(node, "port", 0); err != nil {
			return err
		}
		if c.Generation, err = attrInt(node, "generation", 0); err != nil {
			return err
		}
		if c.Network, err = attrInt(node, "network", 0); err != nil {
			return err
		}
		if pref := node.Get("preference"); pref != "" {
			if c.Preference, err = strconv.ParseFloat(pref, 64); err != nil {
				return fmt.Errorf("%w: bad preference %q", ErrMalformed, pref)
			}
		}
		if typ := node.Get("type"); typ != "" {
			if c.Type, err = parseType(typ); err != nil {
				return err
			}
		}
		c.Protocol = node.Get("protocol")
		if c.Protocol == "" {
			c.Protocol = "udp"
		}
		c.Username = node.Get("username")
		c.Password = node.Get("password")
		cands = append(cands, c)
	}
	t.addRemote(cands)
	return nil
}

func googleType(t CandidateType) string {
	switch t {
	case ServerReflexive, PeerReflexive:
		return "stun"
	case Relay:
		return "relay"
	}
	return "local"
}

func (t *GoogleP2P) writeCandidate(trans *element.Element, c Candidate) {
	trans.Add("", "candidate").
		Set("name", t.channelName(c.Component)).
		Set("address", c.Address).
		Set("port", itoa(c.Port)).
		Set("preference", strconv.FormatFloat(c.Preference, 'f', 1, 64)).
		Set("username", c.Username).
		Set("password", c.Password).
		Set("protocol", c.Protocol).
		Set("generation", itoa(c.Generation)).
		Set("network", itoa(c.Network)).
		Set("type", googleType(c.Type))
}

// InjectCandidates does nothing: Google P2P candidates are always sent
// separately.
func (t *GoogleP2P) InjectCandidates(*element.Element) {}

// SendCandidates sends candidates in a transport-info (or candidates) action.
func (t *GoogleP2P) SendCandidates(all bool) {
	t.send(all, t.writeCandidate)
}

// CanAccept reports whether the connection has been established.
func (t *GoogleP2P) CanAccept() bool {
	return t.state == Connected
}
