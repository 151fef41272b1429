// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package element implements a small generic XML element tree.
//
// Jingle payloads change shape between dialects: contents may or may not be
// wrapped, transports may be implicit, and candidates can end up directly on
// the session node. Building them as trees lets the code that produces each
// part decide where it attaches without knowing the full envelope.
package element // import "mellium.im/jingle/element"

import (
	"encoding/xml"
	"io"
	"strings"

	"mellium.im/xmlstream"

	"mellium.im/jingle/internal/attr"
)

// Element is a generic XML element.
// Children inherit the namespace of their parent if XMLName.Space is empty.
type Element struct {
	XMLName  xml.Name
	Attr     []xml.Attr
	Children []*Element
	Text     string
}

// New returns an element with the given namespace and local name.
func New(space, local string) *Element {
	return &Element{XMLName: xml.Name{Space: space, Local: local}}
}

// Name returns the local name of the element.
func (e *Element) Name() string {
	if e == nil {
		return ""
	}
	return e.XMLName.Local
}

// NS returns the namespace of the element.
func (e *Element) NS() string {
	if e == nil {
		return ""
	}
	return e.XMLName.Space
}

// Get returns the attribute with the given local name or the empty string.
func (e *Element) Get(local string) string {
	if e == nil {
		return ""
	}
	return attr.Get(e.Attr, local)
}

// Lookup returns the attribute with the given local name and whether it
// existed.
func (e *Element) Lookup(local string) (string, bool) {
	if e == nil {
		return "", false
	}
	return attr.Lookup(e.Attr, local)
}

// Set sets an attribute and returns the element to allow chaining.
// Setting an empty value is a no-op.
func (e *Element) Set(local, value string) *Element {
	if value == "" {
		return e
	}
	e.Attr = attr.Set(e.Attr, local, value)
	return e
}

// Child returns the first child with the given local name in any namespace.
func (e *Element) Child(local string) *Element {
	if e == nil {
		return nil
	}
	for _, c := range e.Children {
		if c.XMLName.Local == local {
			return c
		}
	}
	return nil
}

// ChildNS returns the first child with the given local name and namespace.
func (e *Element) ChildNS(local, space string) *Element {
	if e == nil {
		return nil
	}
	for _, c := range e.Children {
		if c.XMLName.Local == local && c.XMLName.Space == space {
			return c
		}
	}
	return nil
}

// All returns the children with the given local name. If local is empty all
// children are returned.
func (e *Element) All(local string) []*Element {
	if e == nil {
		return nil
	}
	var out []*Element
	for _, c := range e.Children {
		if local == "" || c.XMLName.Local == local {
			out = append(out, c)
		}
	}
	return out
}

// Add appends a new child element and returns it.
func (e *Element) Add(space, local string) *Element {
	c := New(space, local)
	e.Children = append(e.Children, c)
	return c
}

// AddText appends a child element containing only character data.
func (e *Element) AddText(space, local, text string) *Element {
	c := e.Add(space, local)
	c.Text = text
	return c
}

// TokenReader satisfies the xmlstream.Marshaler interface.
func (e *Element) TokenReader() xml.TokenReader {
	var inner []xml.TokenReader
	if e.Text != "" {
		inner = append(inner, xmlstream.Token(xml.CharData(e.Text)))
	}
	for _, c := range e.Children {
		inner = append(inner, c.TokenReader())
	}
	return xmlstream.Wrap(
		xmlstream.MultiReader(inner...),
		xml.StartElement{Name: e.XMLName, Attr: e.Attr},
	)
}

// WriteXML satisfies the xmlstream.WriterTo interface.
// It is like MarshalXML except it writes tokens to w.
func (e *Element) WriteXML(w xmlstream.TokenWriter) (int, error) {
	return xmlstream.Copy(w, e.TokenReader())
}

// MarshalXML implements xml.Marshaler.
func (e *Element) MarshalXML(enc *xml.Encoder, _ xml.StartElement) error {
	_, err := e.WriteXML(enc)
	if err != nil {
		return err
	}
	return enc.Flush()
}

// UnmarshalXML implements xml.Unmarshaler.
// Namespace declarations are dropped from the attribute list and whitespace
// around character data is trimmed.
func (e *Element) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	return e.decode(d, start, "", false)
}

// decode reads the children of start from r up to the matching end element.
// Elements without a namespace take the default namespace declared by an
// xmlns attribute on them or on an ancestor.
// If top is set, running out of tokens also ends the element, which is how
// readers limited to the inside of an element (such as xmlstream.Inner) end.
func (e *Element) decode(r xml.TokenReader, start xml.StartElement, def string, top bool) error {
	e.XMLName = start.Name
	e.Attr = e.Attr[:0]
	for _, a := range start.Attr {
		switch {
		case a.Name.Space == "" && a.Name.Local == "xmlns":
			def = a.Value
			continue
		case a.Name.Space == "xmlns":
			continue
		}
		e.Attr = append(e.Attr, a)
	}
	if e.XMLName.Space == "" {
		e.XMLName.Space = def
	}
	var text strings.Builder
	for {
		tok, err := r.Token()
		switch t := tok.(type) {
		case xml.StartElement:
			child := &Element{}
			if err := child.decode(r, t.Copy(), def, false); err != nil {
				return err
			}
			e.Children = append(e.Children, child)
			continue
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			e.Text = strings.TrimSpace(text.String())
			return nil
		}
		switch {
		case err == io.EOF && top:
			e.Text = strings.TrimSpace(text.String())
			return nil
		case err == io.EOF:
			return io.ErrUnexpectedEOF
		case err != nil:
			return err
		}
	}
}

// Decode reads one element from r. If start is nil the first start element
// read from r is used. Otherwise r is positioned just after start, and may
// end either with the matching end element or with io.EOF.
func Decode(r xml.TokenReader, start *xml.StartElement) (*Element, error) {
	for start == nil {
		tok, err := r.Token()
		if s, ok := tok.(xml.StartElement); ok {
			s = s.Copy()
			start = &s
			break
		}
		if err != nil {
			return nil, err
		}
	}
	e := &Element{}
	if err := e.decode(r, *start, "", true); err != nil {
		return nil, err
	}
	return e, nil
}

// String returns the XML encoding of the element.
// It is meant for logging and tests.
func (e *Element) String() string {
	var b strings.Builder
	enc := xml.NewEncoder(&b)
	if err := e.MarshalXML(enc, xml.StartElement{}); err != nil {
		return ""
	}
	return b.String()
}
