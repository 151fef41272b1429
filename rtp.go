// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package jingle

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"

	"mellium.im/jingle/element"
	"mellium.im/jingle/internal/ns"
)

// Codec is an RTP payload type.
type Codec struct {
	ID        uint8
	Name      string
	ClockRate uint32
	Channels  uint16
	Params    map[string]string
}

// Info is an RTP session-info payload.
type Info uint8

// A list of session-info payloads.
const (
	InfoUnknown Info = iota
	InfoActive
	InfoHold
	InfoUnhold
	InfoMute
	InfoUnmute
	InfoRinging
)

var infoNames = [...]string{
	InfoActive:  "active",
	InfoHold:    "hold",
	InfoUnhold:  "unhold",
	InfoMute:    "mute",
	InfoUnmute:  "unmute",
	InfoRinging: "ringing",
}

func (i Info) String() string {
	if i != InfoUnknown && int(i) < len(infoNames) {
		return infoNames[i]
	}
	return "unknown"
}

func parseInfo(s string) Info {
	for i, name := range infoNames {
		if name == s && s != "" {
			return Info(i)
		}
	}
	return InfoUnknown
}

// RTP is a Kind for audio and video calls (XEP-0167 and its predecessors).
type RTP struct {
	media   MediaType
	content *Content
	local   []Codec
	remote  []Codec
}

// NewRTP returns an RTP kind for the given media type.
func NewRTP(media MediaType) *RTP {
	return &RTP{media: media}
}

func (r *RTP) attach(c *Content) { r.content = c }

// Media returns the media type.
func (r *RTP) Media() MediaType { return r.media }

// DefaultSenders returns SendersBoth.
func (r *RTP) DefaultSenders() Senders { return SendersBoth }

// NS returns the description namespace used in the dialect.
func (r *RTP) NS(d Dialect) string {
	switch d {
	case DialectGTalk3, DialectGTalk4:
		if r.media == MediaVideo {
			return ns.GoogleVideo
		}
		return ns.GooglePhone
	case DialectV015:
		if r.media == MediaVideo {
			return ns.Video015
		}
		return ns.Audio015
	}
	return ns.RTP
}

// LocalCodecs returns the codecs we offered or answered with.
func (r *RTP) LocalCodecs() []Codec {
	return append([]Codec(nil), r.local...)
}

// RemoteCodecs returns the codecs the peer last described.
func (r *RTP) RemoteCodecs() []Codec {
	return append([]Codec(nil), r.remote...)
}

// SetLocalCodecs sets the codecs to offer or answer with.
// The first call marks the content as media ready; later calls send the
// updated codecs in a description-info.
func (r *RTP) SetLocalCodecs(codecs []Codec) error {
	if len(codecs) == 0 {
		return notAvailable("at least one codec is required")
	}
	r.local = append([]Codec(nil), codecs...)
	c := r.content
	if c == nil {
		return nil
	}
	if c.mediaReady {
		return c.SendDescriptionInfo()
	}
	c.SetMediaReady()
	return nil
}

// ParseDescription reads the payload types of the peer.
func (r *RTP) ParseDescription(c *Content, desc *element.Element) error {
	var codecs []Codec
	for _, pt := range desc.All("payload-type") {
		// Google video descriptions also list the audio payload types.
		if r.media == MediaVideo && pt.NS() == ns.GooglePhone && desc.NS() == ns.GoogleVideo {
			continue
		}
		codec, err := parsePayloadType(pt)
		if err != nil {
			return err
		}
		codecs = append(codecs, codec)
	}
	if len(codecs) == 0 {
		return malformed("description has no payload types")
	}
	r.remote = codecs
	if c != nil && c.announced {
		c.s.emit(&RemoteCodecs{sessionEvent: sessionEvent{c.s}, Content: c, Codecs: r.RemoteCodecs()})
	}
	return nil
}

func parsePayloadType(pt *element.Element) (Codec, error) {
	var codec Codec
	id, err := strconv.ParseUint(pt.Get("id"), 10, 7)
	if err != nil {
		return codec, malformed("invalid payload type id %q", pt.Get("id"))
	}
	codec.ID = uint8(id)
	codec.Name = pt.Get("name")
	rate := pt.Get("clockrate")
	if rate == "" {
		rate = pt.Get("rate")
	}
	if rate != "" {
		n, err := strconv.ParseUint(rate, 10, 32)
		if err != nil {
			return codec, malformed("invalid clock rate %q", rate)
		}
		codec.ClockRate = uint32(n)
	}
	if ch := pt.Get("channels"); ch != "" {
		n, err := strconv.ParseUint(ch, 10, 16)
		if err != nil {
			return codec, malformed("invalid channel count %q", ch)
		}
		codec.Channels = uint16(n)
	}
	for _, key := range []string{"bitrate", "width", "height", "framerate"} {
		if v := pt.Get(key); v != "" {
			codec.setParam(key, v)
		}
	}
	for _, p := range pt.All("parameter") {
		if name := p.Get("name"); name != "" {
			codec.setParam(name, p.Get("value"))
		}
	}
	return codec, nil
}

func (c *Codec) setParam(k, v string) {
	if c.Params == nil {
		c.Params = make(map[string]string)
	}
	c.Params[k] = v
}

// ProduceDescription adds the local payload types to parent.
func (r *RTP) ProduceDescription(c *Content, parent *element.Element) {
	d := c.s.dialect
	desc := parent.Add(r.NS(d), "description")
	if d == DialectV032 {
		desc.Set("media", r.media.String())
	}
	for _, codec := range r.local {
		pt := desc.Add("", "payload-type").
			Set("id", strconv.Itoa(int(codec.ID))).
			Set("name", codec.Name)
		if codec.ClockRate > 0 {
			pt.Set("clockrate", strconv.FormatUint(uint64(codec.ClockRate), 10))
		}
		if codec.Channels > 1 {
			pt.Set("channels", strconv.Itoa(int(codec.Channels)))
		}
		keys := codec.paramKeys()
		if d.IsGoogle() {
			for _, k := range keys {
				pt.Set(k, codec.Params[k])
			}
			continue
		}
		for _, k := range keys {
			pt.Add("", "parameter").Set("name", k).Set("value", codec.Params[k])
		}
	}
}

func (c Codec) paramKeys() []string {
	keys := make([]string, 0, len(c.Params))
	for k := range c.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// fmtp renders the codec parameters as an SDP format parameter line.
func (c Codec) fmtp() string {
	keys := c.paramKeys()
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+c.Params[k])
	}
	return strings.Join(parts, ";")
}

// LocalSDP renders the local codecs as an SDP media description.
func (r *RTP) LocalSDP() *sdp.MediaDescription {
	return MediaDescription(r.media, r.local)
}

// RemoteSDP renders the peer's codecs as an SDP media description.
func (r *RTP) RemoteSDP() *sdp.MediaDescription {
	return MediaDescription(r.media, r.remote)
}

// MediaDescription builds an SDP media section listing codecs.
func MediaDescription(media MediaType, codecs []Codec) *sdp.MediaDescription {
	md := sdp.NewJSEPMediaDescription(media.String(), nil)
	md.MediaName.Protos = []string{"RTP", "AVP"}
	for _, c := range codecs {
		md.WithCodec(c.ID, c.Name, c.ClockRate, c.Channels, c.fmtp())
	}
	return md
}

// static payload types that may appear without an rtpmap.
var staticCodecs = map[uint8]Codec{
	0:  {ID: 0, Name: "PCMU", ClockRate: 8000},
	3:  {ID: 3, Name: "GSM", ClockRate: 8000},
	8:  {ID: 8, Name: "PCMA", ClockRate: 8000},
	9:  {ID: 9, Name: "G722", ClockRate: 8000},
	18: {ID: 18, Name: "G729", ClockRate: 8000},
}

// CodecsFromSDP reads the codecs listed in an SDP media section.
func CodecsFromSDP(md *sdp.MediaDescription) ([]Codec, error) {
	sd := &sdp.SessionDescription{MediaDescriptions: []*sdp.MediaDescription{md}}
	var codecs []Codec
	for _, f := range md.MediaName.Formats {
		pt, err := strconv.ParseUint(f, 10, 7)
		if err != nil {
			return nil, fmt.Errorf("jingle: bad payload type %q: %w", f, err)
		}
		sc, err := sd.GetCodecForPayloadType(uint8(pt))
		if err != nil {
			if c, ok := staticCodecs[uint8(pt)]; ok {
				codecs = append(codecs, c)
				continue
			}
			return nil, fmt.Errorf("jingle: payload type %d: %w", pt, err)
		}
		c := Codec{ID: sc.PayloadType, Name: sc.Name, ClockRate: sc.ClockRate}
		if sc.EncodingParameters != "" {
			n, err := strconv.ParseUint(sc.EncodingParameters, 10, 16)
			if err != nil {
				return nil, fmt.Errorf("jingle: payload type %d: bad channel count: %w", pt, err)
			}
			c.Channels = uint16(n)
		}
		for _, p := range strings.Split(sc.Fmtp, ";") {
			k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
			if ok && k != "" {
				c.setParam(k, v)
			}
		}
		codecs = append(codecs, c)
	}
	return codecs, nil
}
