// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

import "fmt"

// WireID identifies a Wire within its owning Module.
type WireID uint32

// CellID identifies a Cell within its owning Module.
type CellID uint32

// MemoryID identifies a Memory within its owning Module.
type MemoryID uint32

// BitState is the kind of value a single Bit carries.
type BitState byte

const (
	// Bit0 and Bit1 are constant logic levels.
	Bit0 BitState = iota
	Bit1
	// BitX is an unknown/don't-care value.
	BitX
	// BitZ is high-impedance.
	BitZ
	// BitRef references a bit of a Wire.
	BitRef
)

func (s BitState) String() string {
	switch s {
	case Bit0:
		return "0"
	case Bit1:
		return "1"
	case BitX:
		return "x"
	case BitZ:
		return "z"
	case BitRef:
		return "ref"
	default:
		return "?"
	}
}

// Bit is one element of a SigSpec: either a constant {0,1,x,z} or a
// reference to (wire, index).
type Bit struct {
	State BitState
	Wire  WireID
	Index int
}

// ConstBit builds a constant bit.
func ConstBit(s BitState) Bit {
	if s == BitRef {
		panic("ir: ConstBit called with BitRef")
	}
	return Bit{State: s}
}

// RefBit builds a bit referencing a wire index.
func RefBit(w WireID, idx int) Bit {
	return Bit{State: BitRef, Wire: w, Index: idx}
}

// IsConst reports whether b is a constant (not a wire reference).
func (b Bit) IsConst() bool { return b.State != BitRef }

func (b Bit) String() string {
	if b.IsConst() {
		return b.State.String()
	}
	return fmt.Sprintf("w%d[%d]", b.Wire, b.Index)
}

// Equal reports structural equality between two bits (same constant,
// or same wire+index).
func (b Bit) Equal(o Bit) bool {
	if b.State != o.State {
		return false
	}
	if b.State != BitRef {
		return true
	}
	return b.Wire == o.Wire && b.Index == o.Index
}
