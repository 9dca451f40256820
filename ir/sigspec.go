// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

import "strings"

// SigSpec is an ordered sequence of Bits, LSB first. Slicing and
// concatenation preserve order (spec §3).
type SigSpec []Bit

// Width is the number of bits in the spec.
func (s SigSpec) Width() int { return len(s) }

// Slice returns bits [lo,hi).
func (s SigSpec) Slice(lo, hi int) SigSpec {
	out := make(SigSpec, hi-lo)
	copy(out, s[lo:hi])
	return out
}

// Cat concatenates sigs LSB-first: Cat(a, b) has a's bits at the low
// end and b's bits above them.
func Cat(sigs ...SigSpec) SigSpec {
	n := 0
	for _, s := range sigs {
		n += len(s)
	}
	out := make(SigSpec, 0, n)
	for _, s := range sigs {
		out = append(out, s...)
	}
	return out
}

// ZeroExtend pads s up to width w with constant-0 bits at the top.
func ZeroExtend(s SigSpec, w int) SigSpec {
	if len(s) >= w {
		return s[:w]
	}
	out := make(SigSpec, w)
	copy(out, s)
	for i := len(s); i < w; i++ {
		out[i] = ConstBit(Bit0)
	}
	return out
}

// Const builds a little-endian constant SigSpec of width w from an
// unsigned integer value.
func Const(v uint64, w int) SigSpec {
	out := make(SigSpec, w)
	for i := 0; i < w; i++ {
		if v&(1<<uint(i)) != 0 {
			out[i] = ConstBit(Bit1)
		} else {
			out[i] = ConstBit(Bit0)
		}
	}
	return out
}

// AllConst reports whether every bit of s is constant.
func (s SigSpec) AllConst() bool {
	for _, b := range s {
		if !b.IsConst() {
			return false
		}
	}
	return true
}

// Uint64 evaluates a fully-constant SigSpec (x/z treated as 0) as an
// unsigned little-endian integer.
func (s SigSpec) Uint64() uint64 {
	var v uint64
	for i, b := range s {
		if b.State == Bit1 {
			v |= 1 << uint(i)
		}
	}
	return v
}

// Equal reports bitwise structural equality.
func (s SigSpec) Equal(o SigSpec) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if !s[i].Equal(o[i]) {
			return false
		}
	}
	return true
}

func (s SigSpec) String() string {
	parts := make([]string, len(s))
	for i, b := range s {
		parts[i] = b.String()
	}
	return "{" + strings.Join(parts, ",") + "}"
}
