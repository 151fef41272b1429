// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package jingle

import (
	"errors"
	"fmt"

	"mellium.im/xmpp/stanza"

	"mellium.im/jingle/element"
	"mellium.im/jingle/internal/ns"
	"mellium.im/jingle/pipeline"
)

// ErrorKind classifies errors returned by the engine.
type ErrorKind uint8

// A list of error kinds.
const (
	KindUnknown ErrorKind = iota
	// The peer sent a stanza missing required structure.
	KindMalformedRequest
	// The dialect or implementation does not support the operation.
	KindUnsupported
	// The operation is invalid in the current state.
	KindStateConflict
	// Codec, connectivity or application negotiation failed.
	KindNegotiationFailure
	// A request timed out, was cancelled or the connection went away.
	KindPipelineFailure
)

func (k ErrorKind) String() string {
	switch k {
	case KindMalformedRequest:
		return "malformed request"
	case KindUnsupported:
		return "not implemented"
	case KindStateConflict:
		return "not available"
	case KindNegotiationFailure:
		return "negotiation failed"
	case KindPipelineFailure:
		return "request failed"
	}
	return "unknown error"
}

// Jingle specific error conditions sent alongside stanza errors.
const (
	CondOutOfOrder      = "out-of-order"
	CondUnknownSession  = "unknown-session"
	CondUnsupportedInfo = "unsupported-info"
	CondTieBreak        = "tie-break"
)

// Error is an error of a particular kind.
type Error struct {
	Kind ErrorKind
	Text string

	// Cond is an optional Jingle specific condition reported to the peer.
	Cond string
	Err  error
}

// Sentinel errors for use with errors.Is. Any *Error matches the sentinel
// of its kind.
var (
	ErrMalformed    = &Error{Kind: KindMalformedRequest}
	ErrUnsupported  = &Error{Kind: KindUnsupported}
	ErrNotAvailable = &Error{Kind: KindStateConflict}
	ErrNegotiation  = &Error{Kind: KindNegotiationFailure}
)

func (e *Error) Error() string {
	switch {
	case e.Text != "" && e.Err != nil:
		return fmt.Sprintf("jingle: %s: %s: %v", e.Kind, e.Text, e.Err)
	case e.Text != "":
		return fmt.Sprintf("jingle: %s: %s", e.Kind, e.Text)
	case e.Err != nil:
		return fmt.Sprintf("jingle: %s: %v", e.Kind, e.Err)
	}
	return "jingle: " + e.Kind.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Text == "" && t.Err == nil
}

// StanzaError converts e into the error reported to the peer.
func (e *Error) StanzaError() stanza.Error {
	se := stanza.Error{Type: stanza.Cancel, Condition: stanza.UndefinedCondition}
	switch e.Kind {
	case KindMalformedRequest:
		se.Type, se.Condition = stanza.Modify, stanza.BadRequest
	case KindUnsupported:
		se.Type, se.Condition = stanza.Cancel, stanza.FeatureNotImplemented
	case KindStateConflict:
		se.Type, se.Condition = stanza.Wait, stanza.UnexpectedRequest
	case KindNegotiationFailure:
		se.Type, se.Condition = stanza.Cancel, stanza.NotAcceptable
	}
	if e.Cond == CondUnknownSession {
		se.Type, se.Condition = stanza.Cancel, stanza.ItemNotFound
	}
	if e.Text != "" {
		se.Text = map[string]string{"": e.Text}
	}
	return se
}

// appCondition returns the Jingle error element or nil.
func (e *Error) appCondition() *element.Element {
	if e.Cond == "" {
		return nil
	}
	return element.New(ns.JingleErrors, e.Cond)
}

// KindOf returns the kind of err.
func KindOf(err error) ErrorKind {
	var e *Error
	switch {
	case err == nil:
		return KindUnknown
	case errors.As(err, &e):
		return e.Kind
	case errors.Is(err, pipeline.ErrCancelled),
		errors.Is(err, pipeline.ErrTimeout),
		errors.Is(err, pipeline.ErrDisconnected):
		return KindPipelineFailure
	}
	return KindUnknown
}

func malformed(format string, v ...interface{}) *Error {
	return &Error{Kind: KindMalformedRequest, Text: fmt.Sprintf(format, v...)}
}

func unsupported(format string, v ...interface{}) *Error {
	return &Error{Kind: KindUnsupported, Text: fmt.Sprintf(format, v...)}
}

func notAvailable(format string, v ...interface{}) *Error {
	return &Error{Kind: KindStateConflict, Text: fmt.Sprintf(format, v...)}
}

func outOfOrder(format string, v ...interface{}) *Error {
	return &Error{Kind: KindStateConflict, Cond: CondOutOfOrder, Text: fmt.Sprintf(format, v...)}
}

// replyError turns an error returned by an action handler into the reply
// sent to the peer.
func replyError(req element.IQ, err error) element.IQ {
	var e *Error
	if errors.As(err, &e) {
		var app []*element.Element
		if c := e.appCondition(); c != nil {
			app = append(app, c)
		}
		return req.ErrorReply(e.StanzaError(), app...)
	}
	var se stanza.Error
	if errors.As(err, &se) {
		return req.ErrorReply(se)
	}
	return req.ErrorReply(stanza.Error{
		Type:      stanza.Cancel,
		Condition: stanza.InternalServerError,
		Text:      map[string]string{"": err.Error()},
	})
}
