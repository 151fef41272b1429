// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package jingle

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	"mellium.im/jingle/element"
	"mellium.im/jingle/internal/ns"
	"mellium.im/jingle/transport"
)

// ManifestEntry is a file or folder offered in a Google share.
type ManifestEntry struct {
	Name   string
	Size   uint64
	Folder bool

	// Image dimensions, zero if the entry is not an image.
	Width, Height int
}

// Manifest lists what a Google share offers and where it can be fetched.
type Manifest struct {
	Entries    []ManifestEntry
	SourceURL  string
	PreviewURL string
}

// Share is a Kind for Google Talk file transfers.
type Share struct {
	content  *Content
	manifest *Manifest
	filename string
	filesize uint64
}

// NewShare returns a file share kind.
func NewShare() *Share {
	return &Share{}
}

func (s *Share) attach(c *Content) { s.content = c }

// Media returns MediaNone.
func (s *Share) Media() MediaType { return MediaNone }

// NS returns the Google share namespace.
func (s *Share) NS(Dialect) string { return ns.GoogleShare }

// DefaultSenders returns SendersInitiator.
func (s *Share) DefaultSenders() Senders { return SendersInitiator }

// Filename returns the name of the offered file.
// When several entries are shared they are bundled into a tarball.
func (s *Share) Filename() string { return s.filename }

// Filesize returns the total size of the offered entries.
func (s *Share) Filesize() uint64 { return s.filesize }

// SetFile sets the file offered by a local share and makes the content
// media ready.
func (s *Share) SetFile(name string, size uint64) {
	s.filename = name
	s.filesize = size
	s.manifest = nil
	if s.content != nil {
		s.content.SetMediaReady()
	}
}

// Manifest returns the manifest of the share, creating one for the local file
// if none was received.
func (s *Share) Manifest() *Manifest {
	if s.manifest == nil {
		s.manifest = &Manifest{
			SourceURL:  tempURL(),
			PreviewURL: tempURL(),
		}
		if s.filename != "" {
			s.manifest.Entries = []ManifestEntry{{Name: s.filename, Size: s.filesize}}
		}
	}
	return s.manifest
}

func tempURL() string {
	return "/temporary/" + uuid.NewString() + "/"
}

// ParseDescription reads the manifest sent by the peer.
func (s *Share) ParseDescription(c *Content, desc *element.Element) error {
	manifestNode := desc.Child("manifest")
	if manifestNode == nil {
		return malformed("share description has no manifest")
	}
	m := &Manifest{}
	for _, node := range manifestNode.Children {
		var entry ManifestEntry
		switch node.Name() {
		case "folder":
			entry.Folder = true
		case "file":
		default:
			continue
		}
		name := node.Child("name")
		if name == nil || name.Text == "" {
			return malformed("share manifest entry has no name")
		}
		entry.Name = name.Text
		if size := node.Get("size"); size != "" {
			n, err := strconv.ParseUint(size, 10, 64)
			if err != nil {
				return malformed("invalid share size %q", size)
			}
			entry.Size = n
		}
		if img := node.Child("image"); img != nil {
			entry.Width, _ = strconv.Atoi(img.Get("width"))
			entry.Height, _ = strconv.Atoi(img.Get("height"))
		}
		m.Entries = append(m.Entries, entry)
	}
	if proto := desc.Child("protocol"); proto != nil {
		if http := proto.Child("http"); http != nil {
			for _, u := range http.All("url") {
				switch u.Get("name") {
				case "source-path":
					m.SourceURL = u.Text
				case "preview-path":
					m.PreviewURL = u.Text
				}
			}
		}
	}
	s.manifest = m
	s.filename, s.filesize = m.bundle()
	if c != nil {
		c.SetMediaReady()
	}
	return nil
}

// bundle derives the name and size of what will be transferred.
func (m *Manifest) bundle() (string, uint64) {
	switch len(m.Entries) {
	case 0:
		return "", 0
	case 1:
		e := m.Entries[0]
		if e.Folder {
			return e.Name + ".tar", e.Size
		}
		return e.Name, e.Size
	}
	var (
		b    strings.Builder
		size uint64
	)
	for i, e := range m.Entries {
		if i > 0 {
			b.WriteByte('-')
		}
		b.WriteString(e.Name)
		if e.Folder {
			b.WriteString(".tar")
		}
		size += e.Size
	}
	b.WriteString(".tar")
	return b.String(), size
}

// ProduceDescription adds the manifest to parent.
func (s *Share) ProduceDescription(c *Content, parent *element.Element) {
	m := s.Manifest()
	desc := parent.Add(ns.GoogleShare, "description")
	manifestNode := desc.Add("", "manifest")
	for _, e := range m.Entries {
		local := "file"
		if e.Folder {
			local = "folder"
		}
		node := manifestNode.Add("", local)
		if e.Size > 0 {
			node.Set("size", strconv.FormatUint(e.Size, 10))
		}
		node.AddText("", "name", e.Name)
		if e.Width > 0 || e.Height > 0 {
			img := node.Add("", "image")
			if e.Width > 0 {
				img.Set("width", strconv.Itoa(e.Width))
			}
			if e.Height > 0 {
				img.Set("height", strconv.Itoa(e.Height))
			}
		}
	}
	http := desc.Add("", "protocol").Add("", "http")
	http.AddText("", "url", m.SourceURL).Set("name", "source-path")
	http.AddText("", "url", m.PreviewURL).Set("name", "preview-path")
}

// CreateChannel tells the peer to open a named channel and maps it to a new
// transport component.
func (s *Share) CreateChannel(name string) (int, error) {
	c := s.content
	if c == nil {
		return 0, notAvailable("share is not part of a session")
	}
	if err := c.s.checkAlive(); err != nil {
		return 0, err
	}
	iq, sess := c.s.newMessage(ActionInfo)
	sess.Add(ns.GoogleShare, "channel").Set("name", name)
	if err := c.s.send(iq); err != nil {
		return 0, err
	}
	return s.newChannel(name)
}

// SendComplete tells the peer that the transfer finished.
func (s *Share) SendComplete() error {
	c := s.content
	if c == nil {
		return notAvailable("share is not part of a session")
	}
	if err := c.s.checkAlive(); err != nil {
		return err
	}
	iq, sess := c.s.newMessage(ActionInfo)
	sess.Add(ns.GoogleShare, "complete")
	return c.s.send(iq)
}

func (s *Share) newChannel(name string) (int, error) {
	c := s.content
	gtrans, ok := c.trans.(*transport.GoogleP2P)
	if !ok {
		return 0, unsupported("share channels need the Google P2P transport")
	}
	if id, ok := gtrans.Channel(name); ok {
		return id, nil
	}
	c.lastChannel++
	gtrans.SetChannel(name, c.lastChannel)
	c.s.emit(&ShareChannel{sessionEvent: sessionEvent{c.s}, Content: c, Name: name, Component: c.lastChannel})
	return c.lastChannel, nil
}

// parseInfo handles a channel or complete payload sent by the peer.
func (s *Share) parseInfo(node *element.Element) error {
	if ch := node.Child("channel"); ch != nil {
		if name := ch.Get("name"); name != "" {
			_, err := s.newChannel(name)
			return err
		}
		return nil
	}
	if node.Child("complete") != nil {
		c := s.content
		c.s.emit(&ShareCompleted{sessionEvent: sessionEvent{c.s}, Content: c})
	}
	return nil
}
