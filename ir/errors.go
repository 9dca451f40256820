// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

import "fmt"

// ErrKind classifies the errors the rewriting pipeline and the host
// runtime can report (spec §7).
type ErrKind int

const (
	InvalidIR ErrKind = iota
	UnsupportedConstruct
	MissingAttribute
	TransportFailure
	ProtocolViolation
	Timeout
	Interrupted
	InvalidArgument
	NotConnected
	NotSupported
	EmulatorError
)

func (k ErrKind) String() string {
	switch k {
	case InvalidIR:
		return "InvalidIR"
	case UnsupportedConstruct:
		return "UnsupportedConstruct"
	case MissingAttribute:
		return "MissingAttribute"
	case TransportFailure:
		return "TransportFailure"
	case ProtocolViolation:
		return "ProtocolViolation"
	case Timeout:
		return "Timeout"
	case Interrupted:
		return "Interrupted"
	case InvalidArgument:
		return "InvalidArgument"
	case NotConnected:
		return "NotConnected"
	case NotSupported:
		return "NotSupported"
	case EmulatorError:
		return "EmulatorError"
	default:
		return "Unknown"
	}
}

// Error is the error type returned by every package under ir/,
// passes/ and host/. It carries a kind so callers can errors.As it and
// branch on the taxonomy from spec §7.
type Error struct {
	Kind    ErrKind
	Op      string // component/pass name, e.g. "reset_extract"
	Msg     string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// Errorf builds an *Error with a formatted message and no wrapped
// error; use Wrap to attach one.
func Errorf(kind ErrKind, op, format string, a ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, a...)}
}

// Wrap builds an *Error wrapping err under op/kind with a message.
func Wrap(kind ErrKind, op string, err error, format string, a ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, a...), Wrapped: err}
}
