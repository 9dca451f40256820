// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package loominstrument_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/go-lpc/loom/ir"
	"github.com/go-lpc/loom/passes/loominstrument"
)

// TestPrintLowering mirrors the seeded scenario of spec §8:
// print("x=%d\n", x) with x 8-bit becomes __display_0 with a single
// 8-bit argument.
func TestPrintLowering(t *testing.T) {
	m := ir.NewModule("top")
	x := m.AddWire("x", 8)
	en := m.AddWire("en0", 1)

	p := m.AddCell("p0", ir.TypePrint)
	p.Ports["EN"] = en.Sig()
	loominstrument.SetParts(p, []loominstrument.PrintPart{
		{Kind: loominstrument.PartLiteral, Lit: "x="},
		{Kind: loominstrument.PartInt, Base: 10, Signed: true, Sig: x.Sig()},
		{Kind: loominstrument.PartLiteral, Lit: "\n"},
	})
	m.FixupPorts()

	res, err := loominstrument.Run(m, loominstrument.DefaultOptions())
	if err != nil {
		t.Fatalf("Run: %+v", err)
	}

	if got, want := len(res.Funcs), 1; got != want {
		t.Fatalf("funcs: got=%d want=%d", got, want)
	}
	f := res.Funcs[0]
	if got, want := f.Name, "__display_0"; got != want {
		t.Fatalf("name: got=%q want=%q", got, want)
	}
	if got, want := f.Format, "x=%d\\n"; got != want {
		t.Fatalf("format: got=%q want=%q", got, want)
	}
	if got, want := f.ArgWidth, 8; got != want {
		t.Fatalf("arg width: got=%d want=%d", got, want)
	}

	var buf bytes.Buffer
	if err := loominstrument.WriteCSource(&buf, res); err != nil {
		t.Fatalf("WriteCSource: %+v", err)
	}
	if !strings.Contains(buf.String(), `printf("x=%d\n"`) {
		t.Fatalf("generated C missing expected printf call:\n%s", buf.String())
	}
}

// TestDPISingleCallViaEN mirrors the single-function seeded scenario
// of spec §8: dpi_valid equals the call's own EN.
func TestDPISingleCallViaEN(t *testing.T) {
	m := ir.NewModule("top")
	state := m.AddWire("state_is_call", 1)
	a := m.AddWire("a", 8)
	b := m.AddWire("b", 8)
	res0 := m.AddWire("res", 32)

	call := m.AddCell("add0", ir.TypeDPICall)
	call.Params["FUNC_NAME"] = ir.StrParam("add")
	call.Ports["EN"] = state.Sig()
	call.Ports["ARGS"] = ir.Cat(b.Sig(), a.Sig())
	call.Ports["RESULT"] = res0.Sig()
	m.FixupPorts()

	res, err := loominstrument.Run(m, loominstrument.DefaultOptions())
	if err != nil {
		t.Fatalf("Run: %+v", err)
	}
	if got, want := len(res.Funcs), 1; got != want {
		t.Fatalf("funcs: got=%d want=%d", got, want)
	}

	dv := m.FindWire("dpi_valid")
	if dv == nil {
		t.Fatalf("dpi_valid wire missing")
	}
	if !ir.NewSigMap(m).Equal(dv.Sig(), state.Sig()) {
		t.Fatalf("dpi_valid is not driven by the call's EN")
	}
}

// TestDesignIDDeterministic mirrors spec_full §13's handshake: the
// same netlist run through loom_instrument twice must stamp the same
// design id, and the JSON artefact must carry it and the protocol
// version so a host binary can check them.
func TestDesignIDDeterministic(t *testing.T) {
	build := func() *ir.Module {
		m := ir.NewModule("top")
		clk := m.AddWire("clk_i", 1)
		clk.PortInput = true
		q := m.AddWire("q", 8)
		q.PortOutput = true
		d := m.AddWire("d", 8)
		ff := m.AddCell("ff0", ir.TypeDff)
		ff.Ports["CLK"] = clk.Sig()
		ff.Ports["D"] = d.Sig()
		ff.Ports["Q"] = q.Sig()
		m.FixupPorts()
		return m
	}

	res1, err := loominstrument.Run(build(), loominstrument.DefaultOptions())
	if err != nil {
		t.Fatalf("Run: %+v", err)
	}
	res2, err := loominstrument.Run(build(), loominstrument.DefaultOptions())
	if err != nil {
		t.Fatalf("Run: %+v", err)
	}
	if res1.DesignID != res2.DesignID {
		t.Fatalf("design id not deterministic: %#x != %#x", res1.DesignID, res2.DesignID)
	}
	if res1.DesignID == 0 {
		t.Fatalf("design id must not be zero")
	}

	var buf bytes.Buffer
	if err := loominstrument.WriteJSON(&buf, res1); err != nil {
		t.Fatalf("WriteJSON: %+v", err)
	}
	if !strings.Contains(buf.String(), `"design_id"`) || !strings.Contains(buf.String(), `"version"`) {
		t.Fatalf("JSON metadata missing design_id/version:\n%s", buf.String())
	}
}
