// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pipeline_test

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/go-lpc/loom/ir"
	"github.com/go-lpc/loom/pipeline"
)

// buildDesign mirrors the seeded scenario of spec §8: an 8-bit counter
// FF with active-low async reset value 0x42, plus a small memory so
// the mem_shadow leg of the pipeline also runs.
func buildDesign(t *testing.T) *ir.Design {
	t.Helper()
	design := ir.NewDesign()
	m := design.AddModule("top")
	design.Top = "top"

	rst := m.AddWire("rst_ni", 1)
	rst.PortInput = true
	clk := m.AddWire("clk_i", 1)
	clk.PortInput = true
	d := m.AddWire("d", 8)
	q := m.AddWire("q", 8)
	q.PortOutput = true
	q.HDLName = "counter"

	ff := m.AddCell("ff0", ir.TypeAdff)
	ff.Params["ARST_VALUE"] = ir.IntParam(0x42)
	ff.Params["ARST_POLARITY"] = ir.IntParam(0)
	ff.Ports["CLK"] = clk.Sig()
	ff.Ports["ARST"] = rst.Sig()
	ff.Ports["D"] = d.Sig()
	ff.Ports["Q"] = q.Sig()

	mem := m.AddMemory("ram0", 8, 4)
	mem.Init = make([]byte, 8*4)
	mem.Init[0] = 1

	m.FixupPorts()
	return design
}

type collectLogger struct{ lines []string }

func (l *collectLogger) Debugf(format string, a ...interface{}) {}
func (l *collectLogger) Infof(format string, a ...interface{})  {}
func (l *collectLogger) Warnf(format string, a ...interface{})  { l.lines = append(l.lines, format) }
func (l *collectLogger) Errorf(format string, a ...interface{}) {}

func TestPipelineRunWritesArtefacts(t *testing.T) {
	design := buildDesign(t)
	dir := t.TempDir()

	opt := pipeline.DefaultOptions()
	opt.EnableMemShadow = true
	opt.EmitWrapper = true
	opt.NetlistOut = filepath.Join(dir, "top.net")
	opt.DPIJSONOut = filepath.Join(dir, "dpi.json")
	opt.DPICOut = filepath.Join(dir, "dpi.c")
	opt.ScanMapOut = filepath.Join(dir, "scan.map")
	opt.MemMapOut = filepath.Join(dir, "mem.map")
	log := &collectLogger{}
	opt.Logger = log

	res, err := pipeline.Run(design, "top", opt)
	if err != nil {
		t.Fatalf("Run: %+v", err)
	}
	if res.ScanInsert == nil || res.ScanInsert.ChainLength != 8 {
		t.Fatalf("scan insert result: %+v", res.ScanInsert)
	}
	if res.MemShadow == nil || len(res.MemShadow.Entries) != 1 {
		t.Fatalf("mem shadow result: %+v", res.MemShadow)
	}
	if res.EmuTop == nil || res.EmuTop.Wrapper == nil {
		t.Fatalf("emu_top result: %+v", res.EmuTop)
	}

	for _, p := range []string{opt.NetlistOut, opt.DPIJSONOut, opt.DPICOut, opt.ScanMapOut, opt.MemMapOut} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("artefact %q not written: %v", p, err)
		}
	}
	if len(res.Written) != 5 {
		t.Fatalf("written: got=%d want=5 (%v)", len(res.Written), res.Written)
	}

	if err := ir.Check(res.EmuTop.Wrapper); err != nil {
		t.Fatalf("Check(wrapper): %+v", err)
	}

	// emu_top's clock/reset names must agree with the rest of the
	// pipeline (opt.MemShadow.ClockName/opt.ResetExtract.ResetName,
	// "clk_i"/"rst_ni" here) or the gate is built against a port that
	// does not exist on the DUT and the real clock is mirrored through
	// ungated.
	wrapper := res.EmuTop.Wrapper
	if w := wrapper.FindWire("clk"); w != nil {
		t.Fatalf("wrapper has a spurious %q port: emu_top names disagree with the pipeline", "clk")
	}
	if w := wrapper.FindWire("rst"); w != nil {
		t.Fatalf("wrapper has a spurious %q port: emu_top names disagree with the pipeline", "rst")
	}
	clkGated := wrapper.FindWire("clk_gated")
	if clkGated == nil {
		t.Fatalf("wrapper missing clk_gated")
	}
	dutInst := wrapper.FindCellByName("u_dut")
	if dutInst == nil {
		t.Fatalf("wrapper missing u_dut instance")
	}
	if got, want := dutInst.Port("clk_i"), clkGated.Sig(); !reflect.DeepEqual(got, want) {
		t.Fatalf("DUT clk_i not driven by the gated clock: got=%+v want=%+v", got, want)
	}
}

func TestPipelineCheckScanEquivPasses(t *testing.T) {
	design := buildDesign(t)

	opt := pipeline.DefaultOptions()
	opt.CheckScanEquiv = true

	if _, err := pipeline.Run(design, "top", opt); err != nil {
		t.Fatalf("Run: %+v", err)
	}
}

func TestPipelineUnknownModule(t *testing.T) {
	design := ir.NewDesign()
	_, err := pipeline.Run(design, "missing", pipeline.DefaultOptions())
	if err == nil {
		t.Fatalf("expected error for unknown top module")
	}
	if got, want := pipeline.ExitCode(err), 3; got != want {
		t.Fatalf("ExitCode: got=%d want=%d", got, want)
	}
}

func TestExitCodeSuccess(t *testing.T) {
	if got := pipeline.ExitCode(nil); got != 0 {
		t.Fatalf("ExitCode(nil): got=%d want=0", got)
	}
}
