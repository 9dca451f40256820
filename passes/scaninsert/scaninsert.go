// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package scaninsert implements the scan_insert pass (spec §4.2): it
// splices a serial shift chain through every non-memory-output FF's D
// input, exposes {scan_enable, scan_in, scan_out}, and emits a
// bit-indexed scan map.
package scaninsert

import (
	"fmt"
	"strings"

	"github.com/go-lpc/loom/ir"
)

const op = "scan_insert"

// Options configures the pass.
type Options struct {
	ScanEnableName string
	ScanInName     string
	ScanOutName    string
}

// DefaultOptions matches the names used throughout the seeded
// scenarios of spec §8.
func DefaultOptions() Options {
	return Options{ScanEnableName: "scan_enable", ScanInName: "scan_in", ScanOutName: "scan_out"}
}

// memOutMarker is the synthesis-merge marker that identifies a
// memory-output register, matching the original implementation's
// marker-in-wire-name heuristic (spec §4.2 step 1, Design Notes §9).
const memOutMarker = "$memrd"

func isMemoryOutputFF(m *ir.Module, c *ir.Cell) bool {
	for _, b := range c.Port("Q") {
		if b.IsConst() {
			continue
		}
		w := m.Wire(b.Wire)
		if w != nil && strings.Contains(w.Name, memOutMarker) {
			return true
		}
	}
	return false
}

// Entry is one scan-map record: a source-level variable's name, width
// and offset into the scan chain (spec §4.2 step 2e).
type Entry struct {
	Name   string
	Width  int
	Offset int
	Enum   string // verbatim enum metadata, if the wire carried any

	// ResetValue is the decimal reset_extract-stamped reset value of
	// this variable's Q wire, if any (spec §4.7 "populated from each
	// variable's reset_value").
	ResetValue string
	// ResetDPIFunc names the reset-DPI function whose return value
	// overwrites this variable's bits at first reset release, if the
	// FF's reset was an aldff mapped to a DPI call (spec §4.1/§4.7).
	ResetDPIFunc string
	// ResetDPIArgs is the decimal, packed constant argument word(s) of
	// the reset-DPI call (spec §4.7 "arguments are always compile-time
	// constants"), empty when ResetDPIFunc is empty.
	ResetDPIArgs string
}

// Result is returned by Run: the scan map and chain length, needed by
// host/scan to build the initial image (spec §4.7).
type Result struct {
	Map         []Entry
	ChainLength int
}

// Run executes the pass against m in place.
func Run(m *ir.Module, opt Options) (*Result, error) {
	if opt.ScanEnableName == "" {
		opt = DefaultOptions()
	}

	se := m.AddWire(opt.ScanEnableName, 1)
	se.PortInput = true
	sin := m.AddWire(opt.ScanInName, 1)
	sin.PortInput = true
	sout := m.AddWire(opt.ScanOutName, 1)
	sout.PortOutput = true

	res := &Result{}
	prev := sin.Sig()

	muxN := 0
	for _, c := range m.Cells() {
		if !ir.IsFlop(c.Type) || isMemoryOutputFF(m, c) {
			continue
		}

		d := c.Port("D")
		q := c.Port("Q")
		w := len(d)
		if w == 0 {
			return nil, ir.Errorf(ir.InvalidIR, op, "flop %q has no D port", c.Name)
		}

		scanData := make(ir.SigSpec, w)
		scanData[0] = prev[len(prev)-1]
		for i := 1; i < w; i++ {
			scanData[i] = q[i-1]
		}

		muxOut := m.AddWire(fmt.Sprintf("$scan_mux%d", muxN), w)
		muxN++
		mux := m.AddCell(fmt.Sprintf("$scan_mux_cell%d", muxN), ir.TypeMux)
		mux.Ports["A"] = append(ir.SigSpec{}, d...)
		mux.Ports["B"] = scanData
		mux.Ports["S"] = se.Sig()
		mux.Ports["Y"] = muxOut.Sig()

		c.Ports["D"] = muxOut.Sig()

		qw := m.Wire(q[0].Wire)
		var resetValue, resetDPIFunc, resetDPIArgs string
		if qw != nil {
			resetValue = qw.Attrs["reset_value"]
			resetDPIFunc = qw.Attrs["reset_dpi_func"]
			resetDPIArgs = qw.Attrs["reset_dpi_args"]
		}

		res.Map = append(res.Map, Entry{
			Name:         scanName(m, c, q),
			Width:        w,
			Offset:       res.ChainLength,
			Enum:         enumOf(m, q),
			ResetValue:   resetValue,
			ResetDPIFunc: resetDPIFunc,
			ResetDPIArgs: resetDPIArgs,
		})
		res.ChainLength += w

		prev = q
	}

	_ = m.Connect(sout.Sig(), ir.SigSpec{prev[len(prev)-1]})
	m.Attrs["chain_length"] = fmt.Sprintf("%d", res.ChainLength)
	m.FixupPorts()

	if err := ir.Check(m); err != nil {
		return nil, err
	}
	return res, nil
}

// scanName resolves a variable's display name, preferring the Q
// wire's hdlname attribute (dot-joined) and falling back to the cell
// name (spec §4.2 step 2e).
func scanName(m *ir.Module, c *ir.Cell, q ir.SigSpec) string {
	if len(q) > 0 && !q[0].IsConst() {
		if w := m.Wire(q[0].Wire); w != nil && w.HDLName != "" {
			return w.HDLName
		}
	}
	return c.Name
}

func enumOf(m *ir.Module, q ir.SigSpec) string {
	if len(q) == 0 || q[0].IsConst() {
		return ""
	}
	w := m.Wire(q[0].Wire)
	if w == nil {
		return ""
	}
	return w.Attrs["enum"]
}
