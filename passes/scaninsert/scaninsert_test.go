// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scaninsert_test

import (
	"bytes"
	"testing"

	"github.com/go-lpc/loom/ir"
	"github.com/go-lpc/loom/passes/scaninsert"
)

// buildReg builds an 8-bit plain dff register: d -> dff -> q, with q
// named via HDLName so the scan map records a readable name.
func buildReg(t *testing.T, width int) (*ir.Module, *ir.Cell) {
	t.Helper()
	m := ir.NewModule("top")
	d := m.AddWire("d", width)
	d.PortInput = true
	q := m.AddWire("q", width)
	q.PortOutput = true
	q.HDLName = "counter"
	clk := m.AddWire("clk", 1)
	clk.PortInput = true

	c := m.AddCell("reg0", ir.TypeDff)
	c.Ports["CLK"] = clk.Sig()
	c.Ports["D"] = d.Sig()
	c.Ports["Q"] = q.Sig()
	m.FixupPorts()
	return m, c
}

func TestScanInsertThreadsChain(t *testing.T) {
	m, c := buildReg(t, 8)

	res, err := scaninsert.Run(m, scaninsert.DefaultOptions())
	if err != nil {
		t.Fatalf("Run: %+v", err)
	}

	if got, want := res.ChainLength, 8; got != want {
		t.Fatalf("chain length: got=%d want=%d", got, want)
	}
	if got, want := len(res.Map), 1; got != want {
		t.Fatalf("map entries: got=%d want=%d", got, want)
	}
	e := res.Map[0]
	if got, want := e.Name, "counter"; got != want {
		t.Fatalf("entry name: got=%q want=%q", got, want)
	}
	if got, want := e.Width, 8; got != want {
		t.Fatalf("entry width: got=%d want=%d", got, want)
	}
	if got, want := e.Offset, 0; got != want {
		t.Fatalf("entry offset: got=%d want=%d", got, want)
	}

	for _, name := range []string{"scan_enable", "scan_in", "scan_out"} {
		if m.FindWire(name) == nil {
			t.Fatalf("missing scan port %q", name)
		}
	}
	if got, want := m.Attrs["chain_length"], "8"; got != want {
		t.Fatalf("chain_length attr: got=%q want=%q", got, want)
	}

	// D must now be driven by the inserted mux, not the original d wire.
	if c.Port("D").Equal(m.FindWire("d").Sig()) {
		t.Fatalf("D port was not rerouted through the scan mux")
	}

	if err := ir.Check(m); err != nil {
		t.Fatalf("Check: %+v", err)
	}
}

func TestScanInsertSkipsMemoryOutputFF(t *testing.T) {
	m := ir.NewModule("top")
	d := m.AddWire("d", 4)
	d.PortInput = true
	q := m.AddWire("q$memrd_data", 4)
	q.PortOutput = true
	clk := m.AddWire("clk", 1)
	clk.PortInput = true

	c := m.AddCell("memreg0", ir.TypeDff)
	c.Ports["CLK"] = clk.Sig()
	c.Ports["D"] = d.Sig()
	c.Ports["Q"] = q.Sig()
	m.FixupPorts()

	res, err := scaninsert.Run(m, scaninsert.DefaultOptions())
	if err != nil {
		t.Fatalf("Run: %+v", err)
	}
	if got, want := res.ChainLength, 0; got != want {
		t.Fatalf("chain length: got=%d want=%d (memory-output FF must be skipped)", got, want)
	}
	if !c.Port("D").Equal(d.Sig()) {
		t.Fatalf("memory-output FF's D port was rerouted, want untouched")
	}
}

func TestScanMapRoundTrip(t *testing.T) {
	_, _ = buildReg(t, 8)
	res := &scaninsert.Result{
		ChainLength: 12,
		Map: []scaninsert.Entry{
			{Name: "counter", Width: 8, Offset: 0, Enum: ""},
			{Name: "flag", Width: 4, Offset: 8, Enum: "S_IDLE=0,S_RUN=1"},
		},
	}

	var buf bytes.Buffer
	if err := scaninsert.WriteScanMap(&buf, res); err != nil {
		t.Fatalf("WriteScanMap: %+v", err)
	}

	got, err := scaninsert.ReadScanMap(&buf)
	if err != nil {
		t.Fatalf("ReadScanMap: %+v", err)
	}
	if got.ChainLength != res.ChainLength {
		t.Fatalf("chain length: got=%d want=%d", got.ChainLength, res.ChainLength)
	}
	if len(got.Map) != len(res.Map) {
		t.Fatalf("map len: got=%d want=%d", len(got.Map), len(res.Map))
	}
	for i := range res.Map {
		if got.Map[i] != res.Map[i] {
			t.Fatalf("entry %d: got=%+v want=%+v", i, got.Map[i], res.Map[i])
		}
	}
}
