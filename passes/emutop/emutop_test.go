// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package emutop_test

import (
	"testing"

	"github.com/go-lpc/loom/ir"
	"github.com/go-lpc/loom/passes/emutop"
)

func buildDUT(t *testing.T) *ir.Module {
	t.Helper()
	dut := ir.NewModule("core")
	clk := dut.AddWire("clk", 1)
	clk.PortInput = true
	rst := dut.AddWire("rst", 1)
	rst.PortInput = true
	data := dut.AddWire("data_o", 8)
	data.PortOutput = true

	dv := dut.AddWire("dpi_valid", 1)
	dv.PortOutput = true
	fid := dut.AddWire("dpi_func_id", 8)
	fid.PortOutput = true
	args := dut.AddWire("dpi_args", 16)
	args.PortOutput = true
	result := dut.AddWire("dpi_result", 32)
	result.PortInput = true

	se := dut.AddWire("scan_enable", 1)
	se.PortInput = true

	dut.FixupPorts()
	return dut
}

func TestEmuTopWrapsDUTWithClockGate(t *testing.T) {
	dut := buildDUT(t)
	design := ir.NewDesign()

	res, err := emutop.Run(design, dut, emutop.Options{ClockName: "clk", ResetName: "rst"})
	if err != nil {
		t.Fatalf("Run: %+v", err)
	}
	w := res.Wrapper

	for _, name := range []string{"clk", "rst", "data_o", "dpi_valid", "dpi_ack", "dpi_func_id", "dpi_args", "dpi_result", "scan_enable"} {
		if w.FindWire(name) == nil {
			t.Fatalf("wrapper missing port %q", name)
		}
	}

	ack := w.FindWire("dpi_ack")
	if !ack.PortInput {
		t.Fatalf("dpi_ack must be an input")
	}

	dutInst := w.FindCellByName("u_dut")
	if dutInst == nil {
		t.Fatalf("wrapper missing u_dut instance")
	}
	if _, ok := dutInst.Ports["dpi_ack"]; ok {
		t.Fatalf("dpi_ack must never be wired to the DUT")
	}
	clkGateInst := w.FindCellByName("u_clk_gate")
	if clkGateInst == nil {
		t.Fatalf("wrapper missing u_clk_gate instance")
	}
	if got, want := dutInst.Port("clk"), w.FindWire("clk_gated").Sig(); !got.Equal(want) {
		t.Fatalf("DUT clk not driven by the gated clock: got=%v want=%v", got, want)
	}

	if err := ir.Check(w); err != nil {
		t.Fatalf("Check: %+v", err)
	}
}

func TestEmuTopNoDPIStillGates(t *testing.T) {
	dut := ir.NewModule("plain")
	clk := dut.AddWire("clk", 1)
	clk.PortInput = true
	dut.FixupPorts()

	design := ir.NewDesign()
	res, err := emutop.Run(design, dut, emutop.Options{ClockName: "clk"})
	if err != nil {
		t.Fatalf("Run: %+v", err)
	}
	if got, want := res.Wrapper.FindCellByName("u_dut").Port("clk"), res.Wrapper.FindWire("clk_gated").Sig(); !got.Equal(want) {
		t.Fatalf("DUT clk not driven by the gated clock: got=%v want=%v", got, want)
	}
	if res.Wrapper.FindWire("dpi_ack") != nil {
		t.Fatalf("dpi_ack should not exist without a DPI interface")
	}
	if err := ir.Check(res.Wrapper); err != nil {
		t.Fatalf("Check: %+v", err)
	}
}
