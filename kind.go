// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package jingle

import (
	"mellium.im/jingle/element"
	"mellium.im/jingle/internal/ns"
)

// MediaType is the kind of media an RTP content carries.
type MediaType uint8

// A list of media types.
const (
	MediaNone MediaType = iota
	MediaAudio
	MediaVideo
)

func (m MediaType) String() string {
	switch m {
	case MediaAudio:
		return "audio"
	case MediaVideo:
		return "video"
	}
	return "none"
}

// Kind is the application a content negotiates.
// The kinds are RTP media (see NewRTP) and Google file sharing (see
// NewShare).
type Kind interface {
	// Media returns the media type, or MediaNone for contents that are not
	// RTP sessions.
	Media() MediaType

	// NS returns the description namespace used in the dialect.
	NS(d Dialect) string

	// ParseDescription reads a <description/> sent by the peer.
	ParseDescription(c *Content, desc *element.Element) error

	// ProduceDescription adds a <description/> to parent.
	ProduceDescription(c *Content, parent *element.Element)

	// DefaultSenders returns the senders used when the peer does not say.
	DefaultSenders() Senders

	attach(c *Content)
}

// kindFor picks the kind that understands an incoming description.
func kindFor(desc *element.Element) (Kind, error) {
	switch desc.NS() {
	case ns.RTP:
		switch desc.Get("media") {
		case "audio":
			return NewRTP(MediaAudio), nil
		case "video":
			return NewRTP(MediaVideo), nil
		}
		return nil, unsupported("unsupported media type %q", desc.Get("media"))
	case ns.Audio015, ns.GooglePhone:
		return NewRTP(MediaAudio), nil
	case ns.Video015, ns.GoogleVideo:
		return NewRTP(MediaVideo), nil
	case ns.GoogleShare:
		return NewShare(), nil
	}
	return nil, unsupported("unsupported content type %q", desc.NS())
}
