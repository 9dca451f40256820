// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pipeline orders the five rewriting passes (spec §4) against
// a single top module, owns the pass command surface (spec §6:
// reset/clock signal names, artefact output paths, memory-shadow
// enable, wrapper emission) and the exit-status policy of spec §7.
//
// It generalizes the teacher's eda/server.go injectable-factory
// pattern ("accept a connection, dispatch to a device") to "accept an
// IR and a pass list, dispatch Run calls in order, abort on the first
// failure."
package pipeline

import (
	"fmt"
	"io"
	"os"

	"github.com/go-lpc/loom/ir"
	"github.com/go-lpc/loom/passes/emutop"
	"github.com/go-lpc/loom/passes/loominstrument"
	"github.com/go-lpc/loom/passes/memshadow"
	"github.com/go-lpc/loom/passes/resetextract"
	"github.com/go-lpc/loom/passes/scaninsert"
)

const op = "pipeline"

// Logger is the small structured-logging shape the pipeline driver
// depends on (matching the call shape of
// go-daq/tdaq's ctx.Msg.Errorf/Infof, observed throughout
// dif/server.go and rpi/server.go), so callers can plug in tdaq's
// implementation or a test double without this package importing
// tdaq directly.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// nopLogger discards everything; used when Options.Logger is nil.
type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}

// Options is the pass command surface of spec §6: reset/clock signal
// names, whether to run mem_shadow and emit a wrapper, and where to
// write each emitted artefact. A zero Options value resolves to
// DefaultOptions.
type Options struct {
	ResetExtract   resetextract.Options
	ScanInsert     scaninsert.Options
	LoomInstrument loominstrument.Options
	MemShadow      memshadow.Options
	EmuTop         emutop.Options

	// EnableMemShadow runs the mem_shadow pass (spec §4.4 is optional
	// per design: a design with no memories has nothing to shadow).
	EnableMemShadow bool
	// EmitWrapper runs emu_top and registers the wrapper module in
	// the design (spec §4.5).
	EmitWrapper bool
	// CheckScanEquiv runs scaninsert.CheckEquivalence against a
	// pre-scan_insert snapshot of the module (spec_full §13 "SAT-based
	// scan equivalence check" supplement to spec §4.2's optional check).
	CheckScanEquiv bool
	// ScanEquiv bounds CheckScanEquiv's induction. A zero value
	// resolves to scaninsert.DefaultEquivOptions.
	ScanEquiv scaninsert.EquivOptions

	// NetlistOut, DPIJSONOut, DPICOut, ScanMapOut, MemMapOut name the
	// artefacts of spec §6 "Emitted artefacts". Empty means "don't
	// write this artefact."
	NetlistOut string
	DPIJSONOut string
	DPICOut    string
	ScanMapOut string
	MemMapOut  string

	Logger Logger
}

// DefaultOptions matches the sub-pass defaults (spec §6).
func DefaultOptions() Options {
	return Options{
		ResetExtract:   resetextract.DefaultOptions(),
		ScanInsert:     scaninsert.DefaultOptions(),
		LoomInstrument: loominstrument.DefaultOptions(),
		MemShadow:      memshadow.DefaultOptions(),
		EmuTop:         emutop.DefaultOptions(),
	}
}

// Result collects every sub-pass's return value plus the paths
// actually written, for a pipeline driver or audit log to report.
type Result struct {
	ScanInsert  *scaninsert.Result
	Instrument  *loominstrument.Result
	MemShadow   *memshadow.Result
	EmuTop      *emutop.Result
	Written     []string
	Diagnostics []string
}

// Run executes reset_extract, scan_insert, loom_instrument and,
// optionally, mem_shadow and emu_top against design's module named
// top, in that order (spec §4), writing every artefact Options names.
// It aborts the pipeline on the first pass error (spec §7 "pass-side
// errors abort the pipeline with a located diagnostic; no pass
// silently partial-updates the IR").
func Run(design *ir.Design, top string, opt Options) (*Result, error) {
	log := opt.Logger
	if log == nil {
		log = nopLogger{}
	}
	if opt.ResetExtract.ResetName == "" {
		opt.ResetExtract = resetextract.DefaultOptions()
	}
	if opt.ScanInsert.ScanEnableName == "" {
		opt.ScanInsert = scaninsert.DefaultOptions()
	}
	if opt.LoomInstrument.EnableName == "" {
		opt.LoomInstrument = loominstrument.DefaultOptions()
	}
	if opt.MemShadow.ClockName == "" {
		opt.MemShadow = memshadow.DefaultOptions()
	}
	if opt.EmuTop.ClockName == "" {
		opt.EmuTop = emutop.DefaultOptions()
	}
	// emu_top must gate the same clock/reset ports the rest of the
	// pipeline was configured against, or the gate it builds (spec
	// §4.5) never matches the DUT's real ports and falls through to an
	// ungated mirror.
	opt.EmuTop.ClockName = opt.MemShadow.ClockName
	opt.EmuTop.ResetName = opt.ResetExtract.ResetName

	m := design.Module(top)
	if m == nil {
		return nil, ir.Errorf(ir.InvalidArgument, op, "no such module %q in design", top)
	}

	res := &Result{}

	log.Infof("running reset_extract on %q", top)
	if err := resetextract.Run(m, opt.ResetExtract); err != nil {
		return nil, ir.Wrap(ir.InvalidIR, op, err, "reset_extract failed")
	}

	var preScan *ir.Module
	if opt.CheckScanEquiv {
		preScan = m.Clone()
	}

	log.Infof("running scan_insert on %q", top)
	scanRes, err := scaninsert.Run(m, opt.ScanInsert)
	if err != nil {
		return nil, ir.Wrap(ir.InvalidIR, op, err, "scan_insert failed")
	}
	res.ScanInsert = scanRes

	if opt.CheckScanEquiv {
		log.Infof("checking scan_insert equivalence on %q", top)
		eopt := opt.ScanEquiv
		if eopt.Cycles == 0 {
			eopt = scaninsert.DefaultEquivOptions()
		}
		if err := scaninsert.CheckEquivalence(preScan, m, opt.ScanInsert, eopt); err != nil {
			return nil, ir.Wrap(ir.InvalidIR, op, err, "scan_insert equivalence check failed")
		}
	}

	log.Infof("running loom_instrument on %q", top)
	instRes, err := loominstrument.Run(m, opt.LoomInstrument)
	if err != nil {
		return nil, ir.Wrap(ir.InvalidIR, op, err, "loom_instrument failed")
	}
	res.Instrument = instRes

	if opt.EnableMemShadow {
		log.Infof("running mem_shadow on %q", top)
		memRes, err := memshadow.Run(design, m, opt.MemShadow)
		if err != nil {
			return nil, ir.Wrap(ir.InvalidIR, op, err, "mem_shadow failed")
		}
		res.MemShadow = memRes
	}

	if opt.EmitWrapper {
		log.Infof("running emu_top on %q", top)
		topRes, err := emutop.Run(design, m, opt.EmuTop)
		if err != nil {
			return nil, ir.Wrap(ir.InvalidIR, op, err, "emu_top failed")
		}
		for _, w := range topRes.Warnings {
			log.Warnf("emu_top: %s", w)
			res.Diagnostics = append(res.Diagnostics, w)
		}
		res.EmuTop = topRes
	}

	if err := writeArtefacts(design, res, opt, log); err != nil {
		return nil, err
	}

	return res, nil
}

func writeArtefacts(design *ir.Design, res *Result, opt Options, log Logger) error {
	write := func(path string, fn func(io.Writer) error) error {
		if path == "" {
			return nil
		}
		f, err := os.Create(path)
		if err != nil {
			return ir.Wrap(ir.TransportFailure, op, err, "could not create artefact %q", path)
		}
		defer f.Close()
		if err := fn(f); err != nil {
			return ir.Wrap(ir.TransportFailure, op, err, "could not write artefact %q", path)
		}
		res.Written = append(res.Written, path)
		log.Debugf("wrote artefact %q", path)
		return nil
	}

	if err := write(opt.NetlistOut, func(w io.Writer) error {
		return ir.EncodeNetlist(w, design)
	}); err != nil {
		return err
	}
	if res.Instrument != nil {
		if err := write(opt.DPIJSONOut, func(w io.Writer) error {
			return loominstrument.WriteJSON(w, res.Instrument)
		}); err != nil {
			return err
		}
		if err := write(opt.DPICOut, func(w io.Writer) error {
			return loominstrument.WriteCSource(w, res.Instrument)
		}); err != nil {
			return err
		}
	}
	if res.ScanInsert != nil {
		if err := write(opt.ScanMapOut, func(w io.Writer) error {
			return scaninsert.WriteScanMap(w, res.ScanInsert)
		}); err != nil {
			return err
		}
	}
	if res.MemShadow != nil {
		if err := write(opt.MemMapOut, func(w io.Writer) error {
			return memshadow.WriteMemMap(w, res.MemShadow)
		}); err != nil {
			return err
		}
	}
	return nil
}

// ExitCode implements spec §7's exit-status policy for a pipeline
// driver: zero on success, non-zero with a diagnostic on any
// invariant violation. Distinct non-zero codes let a caller's shell
// scripting distinguish IR-shape failures (the common case a designer
// can fix) from transport/environment failures (artefact write
// errors), without the driver needing to know the ir.ErrKind taxonomy.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ierr *ir.Error
	if e, ok := err.(*ir.Error); ok {
		ierr = e
	}
	if ierr == nil {
		return 1
	}
	switch ierr.Kind {
	case ir.TransportFailure:
		return 2
	case ir.InvalidArgument:
		return 3
	default:
		return 1
	}
}

// Fprintln writes a diagnostic line prefixed with the component name
// and severity, matching spec §7 "diagnostic lines prefixed with
// component name and severity."
func Fprintln(w io.Writer, severity, format string, a ...interface{}) {
	fmt.Fprintf(w, "%s: %s: %s\n", op, severity, fmt.Sprintf(format, a...))
}
