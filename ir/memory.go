// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

// ReadPort is a logical memory read port (spec §3).
type ReadPort struct {
	Clock     SigSpec
	Enable    SigSpec
	Addr      SigSpec
	Data      SigSpec
	InitValue SigSpec // optional
	ARst      SigSpec // optional async reset value
	SRst      SigSpec // optional sync reset value

	// Transparent[i] / CollisionX[i] are indexed by write port, sized
	// by ResizeMasks as write ports are added (spec §4.4 step 2).
	Transparent []bool
	CollisionX  []bool
}

// WritePort is a logical memory write port (spec §3).
type WritePort struct {
	Clock  SigSpec
	Enable SigSpec // one bit per data lane
	Addr   SigSpec
	Data   SigSpec

	// Priority[i] records whether this write port dominates write
	// port i on simultaneous overlapping writes.
	Priority []bool
}

// ResizeMasks grows r's per-writer mask slices to account for a newly
// added write port, defaulting to non-transparent/collision-x (spec
// §4.4 step 2: "resized to include the newly added counterparty").
func (r *ReadPort) ResizeMasks(n int) {
	for len(r.Transparent) < n {
		r.Transparent = append(r.Transparent, false)
	}
	for len(r.CollisionX) < n {
		r.CollisionX = append(r.CollisionX, true)
	}
}

// Memory is a logical array with read/write port descriptors (spec
// §3). Width and Depth are in bits/words respectively.
type Memory struct {
	ID    MemoryID
	Name  string
	Width int
	Depth int

	ReadPorts  []ReadPort
	WritePorts []WritePort

	// Init holds the static initial content as one byte per bit
	// (0, 1, or 2 for x/don't-care), length Width*Depth, LSB-first
	// per word. Nil if the memory has no static init.
	Init []byte

	// InitFile / InitFileIsHex record a readmemh/readmemb passthrough
	// (spec_full §13 supplement) when the original IR carried a file
	// reference instead of, or in addition to, inline init bits.
	InitFile      string
	InitFileIsHex bool

	Attrs map[string]string
}

// HasInit reports whether m carries any static initial content.
func (m *Memory) HasInit() bool {
	for _, b := range m.Init {
		if b == 0 || b == 1 {
			return true
		}
	}
	return m.InitFile != ""
}

// WordBytes is the number of bytes one memory word occupies when
// packed into the shadow address space (ceil(width/32) 32-bit words,
// spec §4.4 step 3).
func (m *Memory) WordBytes() int {
	words := (m.Width + 31) / 32
	if words == 0 {
		words = 1
	}
	return words * 4
}
