// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package emutop implements the emu_top pass (spec §4.5): it
// synthesises a wrapper module that owns the external clock, gates it
// while a DPI call is pending and unacknowledged, instantiates the DUT
// on the gated clock, and promotes every DPI/scan/memory-shadow port
// to the wrapper while mirroring everything else.
package emutop

import (
	"fmt"

	"github.com/go-lpc/loom/ir"
)

// Options configures the pass.
type Options struct {
	ClockName   string
	ResetName   string
	WrapperName string // defaults to "emu_top_<dut>"
}

// DefaultOptions mirrors spec §6's unified clock/reset defaults.
func DefaultOptions() Options {
	return Options{ClockName: "clk_i", ResetName: "rst_ni"}
}

// Result carries the synthesised wrapper plus any non-fatal diagnostics.
type Result struct {
	Wrapper  *ir.Module
	Warnings []string
}

// Run builds the wrapper module for dut and registers it in design.
func Run(design *ir.Design, dut *ir.Module, opt Options) (*Result, error) {
	if opt.ClockName == "" {
		opt = DefaultOptions()
	}
	name := opt.WrapperName
	if name == "" {
		name = "emu_top_" + dut.Name
	}

	res := &Result{}
	if dut.FindWire(opt.ClockName) == nil {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("clock port %q not found in DUT %q", opt.ClockName, dut.Name))
	}
	dutRst := dut.FindWire(opt.ResetName)
	dutDPIValid := dut.FindWire("dpi_valid")

	wrapper := design.AddModule(name)

	extClk := wrapper.AddWire(opt.ClockName, 1)
	extClk.PortInput = true

	var extRst *ir.Wire
	if dutRst != nil {
		extRst = wrapper.AddWire(opt.ResetName, dutRst.Width)
		extRst.PortInput = true
	}

	clkGated := wrapper.AddWire("clk_gated", 1)
	clkEnable := wrapper.AddWire("clk_enable", 1)

	// Mirror/promote every DUT port except clock/reset (handled
	// specially) and dpi_ack (which does not exist on the DUT).
	promoted := map[string]*ir.Wire{}
	for _, w := range dut.Wires() {
		if !w.IsPort() {
			continue
		}
		if w.Name == opt.ClockName || w.Name == opt.ResetName {
			continue
		}
		nw := wrapper.AddWire(w.Name, w.Width)
		nw.PortInput = w.PortInput
		nw.PortOutput = w.PortOutput
		promoted[w.Name] = nw
	}

	// dpi_ack is wrapper-only: an input never connected to the DUT
	// (spec §4.5 "dpi_ack is an input to the wrapper only").
	var dpiAck *ir.Wire
	var dpiValidTap *ir.Wire
	if dutDPIValid != nil {
		dpiAck = wrapper.AddWire("dpi_ack", 1)
		dpiAck.PortInput = true
		dpiValidTap = wrapper.AddWire("$dpi_valid_tap", 1)
	}

	wrapper.FixupPorts()

	clkGate := wrapper.AddCell("u_clk_gate", "loom_clk_gate")
	clkGate.Ports["clk_i"] = extClk.Sig()
	clkGate.Ports["ce_i"] = clkEnable.Sig()
	clkGate.Ports["clk_o"] = clkGated.Sig()

	if dpiAck != nil {
		notOut := wrapper.AddWire("$not_dpi_valid", 1)
		notCell := wrapper.AddCell("$not_dpi_valid_cell", ir.TypeNot)
		notCell.Ports["A"] = dpiValidTap.Sig()
		notCell.Ports["Y"] = notOut.Sig()

		orCell := wrapper.AddCell("$clk_enable_or", ir.TypeOr)
		orCell.Ports["A"] = notOut.Sig()
		orCell.Ports["B"] = dpiAck.Sig()
		orCell.Ports["Y"] = clkEnable.Sig()
	} else {
		if err := wrapper.Connect(clkEnable.Sig(), ir.Const(1, 1)); err != nil {
			return nil, err
		}
	}

	dutInst := wrapper.AddCell("u_dut", dut.Name)
	for _, w := range dut.Wires() {
		if !w.IsPort() {
			continue
		}
		switch {
		case w.Name == opt.ClockName:
			dutInst.Ports[w.Name] = clkGated.Sig()
		case w.Name == opt.ResetName:
			if extRst != nil {
				dutInst.Ports[w.Name] = extRst.Sig()
			}
		case w.Name == "dpi_valid" && dpiValidTap != nil:
			dutInst.Ports[w.Name] = dpiValidTap.Sig()
		default:
			if nw, ok := promoted[w.Name]; ok {
				dutInst.Ports[w.Name] = nw.Sig()
			}
		}
	}

	if dpiValidTap != nil {
		if nw, ok := promoted["dpi_valid"]; ok {
			if err := wrapper.Connect(nw.Sig(), dpiValidTap.Sig()); err != nil {
				return nil, err
			}
		}
	}

	wrapper.FixupPorts()
	if err := ir.Check(wrapper); err != nil {
		return nil, err
	}
	res.Wrapper = wrapper
	return res, nil
}
