// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

// Wire is a bit-vector, possibly a module port (spec §3).
type Wire struct {
	ID    WireID
	Name  string
	Width int

	PortInput  bool
	PortOutput bool
	PortInout  bool

	// HDLName is the source-level hierarchical path, dot-joined,
	// used by scan_insert's name resolution (spec §4.2).
	HDLName string

	Attrs map[string]string
}

// Sig returns the SigSpec referencing every bit of w, LSB first.
func (w *Wire) Sig() SigSpec {
	s := make(SigSpec, w.Width)
	for i := range s {
		s[i] = RefBit(w.ID, i)
	}
	return s
}

// IsPort reports whether w is any kind of module port.
func (w *Wire) IsPort() bool {
	return w.PortInput || w.PortOutput || w.PortInout
}
