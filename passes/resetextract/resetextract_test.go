// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package resetextract_test

import (
	"testing"

	"github.com/go-lpc/loom/ir"
	"github.com/go-lpc/loom/passes/resetextract"
)

// buildCounter mirrors the seeded scenario of spec §8: an 8-bit
// counter FF with async reset value 0x42.
func buildCounter(t *testing.T) (*ir.Module, *ir.Wire) {
	t.Helper()
	m := ir.NewModule("top")
	rst := m.AddWire("rst_ni", 1)
	rst.PortInput = true
	clk := m.AddWire("clk_i", 1)
	clk.PortInput = true
	d := m.AddWire("d", 8)
	q := m.AddWire("q", 8)
	q.PortOutput = true

	ff := m.AddCell("ff0", ir.TypeAdff)
	ff.Params["ARST_VALUE"] = ir.IntParam(0x42)
	ff.Params["ARST_POLARITY"] = ir.IntParam(0)
	ff.Ports["CLK"] = clk.Sig()
	ff.Ports["ARST"] = rst.Sig()
	ff.Ports["D"] = d.Sig()
	ff.Ports["Q"] = q.Sig()
	m.FixupPorts()
	return m, q
}

func TestResetExtractADFF(t *testing.T) {
	m, q := buildCounter(t)

	if err := resetextract.Run(m, resetextract.DefaultOptions()); err != nil {
		t.Fatalf("Run: %+v", err)
	}

	if got, want := q.Attrs["reset_value"], "66"; got != want { // 0x42 == 66
		t.Fatalf("reset_value: got=%q want=%q", got, want)
	}

	ff := m.FindCellByName("ff0")
	if got, want := ff.Type, ir.TypeDff; got != want {
		t.Fatalf("cell type: got=%q want=%q", got, want)
	}
	if _, ok := ff.Ports["ARST"]; ok {
		t.Fatalf("ARST port should have been removed")
	}

	rst := m.FindWire("rst_ni")
	if rst.PortInput {
		t.Fatalf("rst_ni should no longer be a port")
	}
}

func TestResetExtractAldffRejectsNonConstantNonDPI(t *testing.T) {
	m := ir.NewModule("top")
	clk := m.AddWire("clk_i", 1)
	ad := m.AddWire("ad", 1)
	d := m.AddWire("d", 1)
	q := m.AddWire("q", 1)

	ff := m.AddCell("ff0", ir.TypeAldff)
	ff.Ports["CLK"] = clk.Sig()
	ff.Ports["AD"] = ad.Sig()
	ff.Ports["D"] = d.Sig()
	ff.Ports["Q"] = q.Sig()
	m.FixupPorts()

	if err := resetextract.Run(m, resetextract.DefaultOptions()); err == nil {
		t.Fatalf("Run: expected error for non-constant, non-DPI AD")
	}
}
