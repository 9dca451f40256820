// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir_test

import (
	"bytes"
	"testing"

	"github.com/go-lpc/loom/ir"
)

func counterModule() *ir.Module {
	m := ir.NewModule("top")
	clk := m.AddWire("clk_i", 1)
	clk.PortInput = true
	q := m.AddWire("q", 8)
	q.PortOutput = true
	d := m.AddWire("d", 8)

	ff := m.AddCell("ff0", ir.TypeDff)
	ff.Params["CLK_POLARITY"] = ir.IntParam(1)
	ff.Ports["CLK"] = clk.Sig()
	ff.Ports["D"] = d.Sig()
	ff.Ports["Q"] = q.Sig()

	_ = m.Connect(d.Sig(), ir.Const(0x42, 8))
	m.FixupPorts()
	return m
}

func TestModuleCreationOrder(t *testing.T) {
	m := counterModule()
	wires := m.Wires()
	if got, want := len(wires), 3; got != want {
		t.Fatalf("wires: got=%d want=%d", got, want)
	}
	if got, want := wires[0].Name, "clk_i"; got != want {
		t.Fatalf("first wire: got=%q want=%q", got, want)
	}
	cells := m.Cells()
	if got, want := len(cells), 1; got != want {
		t.Fatalf("cells: got=%d want=%d", got, want)
	}
}

func TestModuleCloneIsIndependent(t *testing.T) {
	m := counterModule()
	clone := m.Clone()

	m.AddWire("extra", 1)
	m.Cells()[0].Attrs["touched"] = "1"

	if len(clone.Wires()) != 3 {
		t.Fatalf("clone picked up a wire added to the original after Clone: got=%d want=3", len(clone.Wires()))
	}
	if _, ok := clone.Cells()[0].Attrs["touched"]; ok {
		t.Fatalf("clone shares Attrs map with the original")
	}
	if err := ir.Check(clone); err != nil {
		t.Fatalf("Check(clone): %+v", err)
	}
}

func TestCheckInvariants(t *testing.T) {
	m := counterModule()
	if err := ir.Check(m); err != nil {
		t.Fatalf("Check: %+v", err)
	}
}

func TestCheckSingleDriverViolation(t *testing.T) {
	m := counterModule()
	q := m.FindWire("q")
	// Double-drive q via a bogus extra connection.
	_ = m.Connect(q.Sig(), ir.Const(0, 8))
	if err := ir.Check(m); err == nil {
		t.Fatalf("Check: expected single-driver violation, got nil")
	}
}

func TestSigSpecCatSlice(t *testing.T) {
	a := ir.Const(0x3, 2)
	b := ir.Const(0x1, 1)
	cat := ir.Cat(a, b)
	if got, want := cat.Width(), 3; got != want {
		t.Fatalf("width: got=%d want=%d", got, want)
	}
	if got, want := cat.Uint64(), uint64(0x7); got != want {
		t.Fatalf("value: got=%#x want=%#x", got, want)
	}
	if got, want := cat.Slice(0, 2).Uint64(), uint64(0x3); got != want {
		t.Fatalf("slice: got=%#x want=%#x", got, want)
	}
}

func TestNetlistRoundTrip(t *testing.T) {
	d := ir.NewDesign()
	d.Top = "top"
	m := d.AddModule("top")
	w := m.AddWire("a", 4)
	w.PortOutput = true
	m.FixupPorts()
	_ = m.Connect(w.Sig(), ir.Const(5, 4))

	var buf bytes.Buffer
	if err := ir.EncodeNetlist(&buf, d); err != nil {
		t.Fatalf("EncodeNetlist: %+v", err)
	}

	got, err := ir.DecodeNetlist(&buf)
	if err != nil {
		t.Fatalf("DecodeNetlist: %+v", err)
	}
	gm := got.Module("top")
	if gm == nil {
		t.Fatalf("decoded design missing module %q", "top")
	}
	if got, want := len(gm.Wires()), 1; got != want {
		t.Fatalf("wires: got=%d want=%d", got, want)
	}
	if got, want := len(gm.Connections()), 1; got != want {
		t.Fatalf("connections: got=%d want=%d", got, want)
	}
}

func TestSigMapCanonicalizesAliases(t *testing.T) {
	m := ir.NewModule("top")
	a := m.AddWire("a", 1)
	b := m.AddWire("b", 1)
	_ = m.Connect(b.Sig(), a.Sig())

	sm := ir.NewSigMap(m)
	if !sm.Equal(a.Sig(), b.Sig()) {
		t.Fatalf("expected a and b to canonicalize equal after connection")
	}
}
