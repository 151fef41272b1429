// Copyright 2017 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package attr contains helpers for reading attributes off of start elements
// and for generating identifiers.
package attr // import "mellium.im/jingle/internal/attr"

import (
	"encoding/xml"
)

// Get returns the value of the first attribute with the provided local name
// from a list of attributes or an empty string if no such attribute exists.
func Get(attr []xml.Attr, local string) string {
	for _, a := range attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// Lookup is like Get but reports whether the attribute was present.
func Lookup(attr []xml.Attr, local string) (string, bool) {
	for _, a := range attr {
		if a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

// Set replaces the value of the first attribute with the given local name or
// appends a new attribute if none exists.
func Set(attr []xml.Attr, local, value string) []xml.Attr {
	for i, a := range attr {
		if a.Name.Local == local {
			attr[i].Value = value
			return attr
		}
	}
	return append(attr, xml.Attr{Name: xml.Name{Local: local}, Value: value})
}
