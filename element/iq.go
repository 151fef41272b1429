// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package element

import (
	"encoding/xml"

	"mellium.im/xmlstream"
	"mellium.im/xmpp/stanza"

	"mellium.im/jingle/internal/ns"
)

// IQ is an IQ stanza carrying at most one payload element.
type IQ struct {
	stanza.IQ

	Payload *Element
}

// TokenReader satisfies the xmlstream.Marshaler interface.
func (iq IQ) TokenReader() xml.TokenReader {
	if iq.Payload == nil {
		return iq.IQ.Wrap(xmlstream.MultiReader())
	}
	return iq.IQ.Wrap(iq.Payload.TokenReader())
}

// WriteXML satisfies the xmlstream.WriterTo interface.
// It is like MarshalXML except it writes tokens to w.
func (iq IQ) WriteXML(w xmlstream.TokenWriter) (int, error) {
	return xmlstream.Copy(w, iq.TokenReader())
}

// Result returns a result IQ addressed to the sender of iq.
func (iq IQ) Result() IQ {
	return IQ{IQ: stanza.IQ{
		ID:   iq.ID,
		To:   iq.From,
		From: iq.To,
		Type: stanza.ResultIQ,
	}}
}

// ErrorReply returns an error IQ addressed to the sender of iq.
// Application specific conditions are appended next to the stanza error
// condition.
func (iq IQ) ErrorReply(se stanza.Error, app ...*Element) IQ {
	e := New("", "error").Set("type", string(se.Type))
	cond := se.Condition
	if cond == "" {
		cond = stanza.UndefinedCondition
	}
	e.Add(ns.Stanzas, string(cond))
	for _, text := range se.Text {
		e.AddText(ns.Stanzas, "text", text)
		break
	}
	e.Children = append(e.Children, app...)
	return IQ{
		IQ: stanza.IQ{
			ID:   iq.ID,
			To:   iq.From,
			From: iq.To,
			Type: stanza.ErrorIQ,
		},
		Payload: e,
	}
}

// Err returns the stanza error carried by an error IQ or nil.
func (iq IQ) Err() error {
	if iq.Type != stanza.ErrorIQ {
		return nil
	}
	e := iq.Payload
	if e != nil && e.Name() != "error" {
		e = e.Child("error")
	}
	se := stanza.Error{Type: stanza.Cancel, Condition: stanza.UndefinedCondition}
	if e == nil {
		return se
	}
	if t := e.Get("type"); t != "" {
		se.Type = stanza.ErrorType(t)
	}
	for _, c := range e.Children {
		switch {
		case c.Name() == "text":
			se.Text = map[string]string{"": c.Text}
		case c.NS() == ns.Stanzas || c.NS() == "":
			se.Condition = stanza.Condition(c.Name())
		}
	}
	return se
}

// DecodeIQ reads an IQ and its first payload element from r.
// If start is nil the first start element read from r is used.
func DecodeIQ(r xml.TokenReader, start *xml.StartElement) (IQ, error) {
	e, err := Decode(r, start)
	if err != nil {
		return IQ{}, err
	}
	iq, err := stanza.NewIQ(xml.StartElement{Name: e.XMLName, Attr: e.Attr})
	if err != nil {
		return IQ{}, err
	}
	out := IQ{IQ: iq}
	for _, c := range e.Children {
		if out.Type == stanza.ErrorIQ && c.Name() == "error" {
			out.Payload = c
			break
		}
		if out.Payload == nil {
			out.Payload = c
		}
	}
	return out, nil
}
