// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package transport

import (
	"fmt"
	"strconv"

	"mellium.im/jingle/element"
)

// CandidateType is the kind of address a candidate carries.
type CandidateType uint8

// A list of candidate types.
const (
	HostCandidate CandidateType = iota
	ServerReflexive
	PeerReflexive
	Relay
)

// String returns the ICE name of the candidate type.
func (t CandidateType) String() string {
	switch t {
	case ServerReflexive:
		return "srflx"
	case PeerReflexive:
		return "prflx"
	case Relay:
		return "relay"
	}
	return "host"
}

// Component IDs used by RTP contents.
const (
	ComponentRTP  = 1
	ComponentRTCP = 2
)

// Candidate is a transport address that the media layer can use.
type Candidate struct {
	ID         string
	Component  int
	Foundation string
	Generation int
	Network    int
	Address    string
	Port       int
	Protocol   string
	Priority   uint32
	Type       CandidateType

	// Used by Google P2P only.
	Username   string
	Password   string
	Preference float64
}

func parseType(s string) (CandidateType, error) {
	switch s {
	case "host", "local":
		return HostCandidate, nil
	case "srflx", "stun":
		return ServerReflexive, nil
	case "prflx":
		return PeerReflexive, nil
	case "relay":
		return Relay, nil
	}
	return HostCandidate, fmt.Errorf("%w: unknown candidate type %q", ErrMalformed, s)
}

// attrInt reads an optional integer attribute.
func attrInt(e *element.Element, name string, def int) (int, error) {
	v := e.Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: bad %s %q", ErrMalformed, name, v)
	}
	return n, nil
}

// requireAttr reads a mandatory attribute.
func requireAttr(e *element.Element, name string) (string, error) {
	v := e.Get(name)
	if v == "" {
		return "", fmt.Errorf("%w: missing %s", ErrMalformed, name)
	}
	return v, nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
