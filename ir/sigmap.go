// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

// SigMap normalises bits to a canonical representative after applying
// every direct Connection, so structural-equality pattern matching
// (the DPI valid-condition search of spec §4.3.2) is not confused by
// wire aliasing (spec Design Notes §9).
type SigMap struct {
	rep map[Bit]Bit
}

// NewSigMap builds a SigMap for m by union-find over its connections:
// each Connection ties together corresponding LHS/RHS bit pairs, and
// the lexicographically-earlier bit (by wire id, then index) becomes
// the representative.
func NewSigMap(m *Module) *SigMap {
	sm := &SigMap{rep: map[Bit]Bit{}}
	for _, conn := range m.Connections() {
		n := conn.LHS.Width()
		for i := 0; i < n; i++ {
			sm.union(conn.LHS[i], conn.RHS[i])
		}
	}
	return sm
}

func bitLess(a, b Bit) bool {
	if a.State != b.State {
		return a.State < b.State
	}
	if a.Wire != b.Wire {
		return a.Wire < b.Wire
	}
	return a.Index < b.Index
}

func (sm *SigMap) find(b Bit) Bit {
	if b.IsConst() {
		return b
	}
	seen := map[Bit]bool{}
	cur := b
	for {
		next, ok := sm.rep[cur]
		if !ok || next == cur || seen[next] {
			return cur
		}
		seen[cur] = true
		cur = next
	}
}

func (sm *SigMap) union(a, b Bit) {
	ra, rb := sm.find(a), sm.find(b)
	if ra == rb {
		return
	}
	if bitLess(ra, rb) {
		sm.rep[rb] = ra
	} else {
		sm.rep[ra] = rb
	}
}

// Apply returns the canonical form of sig.
func (sm *SigMap) Apply(sig SigSpec) SigSpec {
	out := make(SigSpec, len(sig))
	for i, b := range sig {
		out[i] = sm.find(b)
	}
	return out
}

// Equal reports whether a and b are structurally equal once both are
// mapped through sm.
func (sm *SigMap) Equal(a, b SigSpec) bool {
	return sm.Apply(a).Equal(sm.Apply(b))
}
