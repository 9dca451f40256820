// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package loominstrument implements the loom_instrument pass (spec
// §4.3): the single consolidated pipeline stage that lowers print and
// finish cells into a hardware DPI mailbox bridge, adds FF gating, and
// emits the JSON/C codegen artefacts the host runtime depends on.
package loominstrument

import (
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/go-lpc/loom/ir"
)

const op = "loom_instrument"

// protocolVersion is stamped into the JSON metadata's "version" field
// and checked by host.Context.Handshake against the mailbox's
// RegVersion (spec_full §13 "Host main handshake"). It tracks the
// wire/mailbox register layout of host/wire, not this module's own
// version.
const protocolVersion uint32 = 1

// Options configures the pass.
type Options struct {
	ScanEnableName string // must match scaninsert's Options, if used
	EnableName     string // defaults to "en"
}

// DefaultOptions matches the naming used throughout spec §4.3.4/§8.
func DefaultOptions() Options {
	return Options{ScanEnableName: "scan_enable", EnableName: "en"}
}

// Result carries everything downstream artefact emission needs.
type Result struct {
	Funcs       []Func
	MaxArgWidth int
	MaxRetWidth int
	Warnings    []string

	// DesignID identifies this particular rewritten design, so a host
	// binary can refuse to run against a stale rewrite (spec_full §13
	// "Host main handshake"). It is a content hash of m's wires and
	// cells, not a build timestamp: re-running the pipeline against an
	// unchanged netlist reproduces the same id.
	DesignID uint32
	// Version is the wire-protocol version this rewrite was built
	// against (host/wire's mailbox register layout).
	Version uint32
}

// designID hashes m's wire and cell shape into a 32-bit identifier
// (spec_full §13), grounded on the original implementation stamping a
// build-time design id into the mailbox (loom_sim_main.c's
// ctx->design_id).
func designID(m *ir.Module) uint32 {
	h := fnv.New32a()
	fmt.Fprintf(h, "module %s\n", m.Name)

	wires := append([]*ir.Wire(nil), m.Wires()...)
	sort.Slice(wires, func(i, j int) bool { return wires[i].Name < wires[j].Name })
	for _, w := range wires {
		fmt.Fprintf(h, "wire %s %d %v %v\n", w.Name, w.Width, w.PortInput, w.PortOutput)
	}

	cells := append([]*ir.Cell(nil), m.Cells()...)
	sort.Slice(cells, func(i, j int) bool { return cells[i].Name < cells[j].Name })
	for _, c := range cells {
		fmt.Fprintf(h, "cell %s %s\n", c.Name, c.Type)
	}

	return h.Sum32()
}

// Run executes the pass against m in place, in the order the original
// implementation does: print lowering, then DPI bridge synthesis (over
// both user calls and the calls print lowering just created), then
// finish lowering, then FF gating.
func Run(m *ir.Module, opt Options) (*Result, error) {
	if opt.EnableName == "" {
		opt = DefaultOptions()
	}

	if err := lowerPrints(m); err != nil {
		return nil, err
	}

	br, err := runDPIBridge(m)
	if err != nil {
		return nil, err
	}

	if err := lowerFinish(m); err != nil {
		return nil, err
	}

	if err := gateFlops(m, opt); err != nil {
		return nil, err
	}

	m.FixupPorts()
	if err := ir.Check(m); err != nil {
		return nil, err
	}

	return &Result{
		Funcs:       br.Funcs,
		MaxArgWidth: br.MaxArgWidth,
		MaxRetWidth: br.MaxRetWidth,
		Warnings:    br.Warnings,
		DesignID:    designID(m),
		Version:     protocolVersion,
	}, nil
}

// lowerPrints walks every "print" cell and replaces it with a builtin
// __dpi_call (spec §4.3.1).
func lowerPrints(m *ir.Module) error {
	pl := &printLowerer{}
	var prints []*ir.Cell
	for _, c := range m.Cells() {
		if c.Type == ir.TypePrint {
			prints = append(prints, c)
		}
	}
	for _, c := range prints {
		parts := PartsOf(c)
		if _, err := pl.lowerOne(m, c, parts); err != nil {
			return err
		}
		m.RemoveCell(c.ID)
	}
	return nil
}

// lowerFinish implements spec §4.3.3: add finish_o, OR every __finish
// cell's EN signal into it, remove the cells.
func lowerFinish(m *ir.Module) error {
	var finishes []*ir.Cell
	for _, c := range m.Cells() {
		if c.Type == ir.TypeFinish {
			finishes = append(finishes, c)
		}
	}

	out := m.AddWire("finish_o", 1)
	out.PortOutput = true

	if len(finishes) == 0 {
		return m.Connect(out.Sig(), ir.Const(0, 1))
	}

	var ens ir.SigSpec
	for _, c := range finishes {
		ens = append(ens, reduceOr(m, c.Port("EN"))[0])
	}
	if len(ens) == 1 {
		if err := m.Connect(out.Sig(), ens); err != nil {
			return err
		}
	} else {
		orCell := m.AddCell("$finish_or", ir.TypeReduceOr)
		orCell.Ports["A"] = ens
		orCell.Ports["Y"] = out.Sig()
	}

	for _, c := range finishes {
		m.RemoveCell(c.ID)
	}
	return nil
}

// gateFlops implements spec §4.3.4: add a single-bit `en` input,
// combine it with scan_enable (if present) as `effective = en |
// scan_enable`, and gate every FF's enable by it (memory-output FFs
// are not skipped).
func gateFlops(m *ir.Module, opt Options) error {
	en := m.AddWire(opt.EnableName, 1)
	en.PortInput = true

	effective := en.Sig()
	if se := m.FindWire(opt.ScanEnableName); se != nil {
		effOut := m.AddWire("$effective_en", 1)
		orCell := m.AddCell("$effective_en_or", ir.TypeReduceOr)
		orCell.Ports["A"] = ir.Cat(en.Sig(), se.Sig())
		orCell.Ports["Y"] = effOut.Sig()
		effective = effOut.Sig()
	}

	for _, c := range m.Cells() {
		if !ir.IsFlop(c.Type) {
			continue
		}
		gateOneFlop(m, c, en.Sig(), effective, m.FindWire(opt.ScanEnableName))
	}
	return nil
}

func gateOneFlop(m *ir.Module, c *ir.Cell, en, effective ir.SigSpec, scanEnable *ir.Wire) {
	oldEN, hadEN := c.Ports["EN"]
	pol := c.IntParamOr("EN_POLARITY", 1)

	var newEN ir.SigSpec
	if !hadEN {
		newEN = effective
	} else {
		active := oldEN
		if pol == 0 {
			notOut := m.AddWire(fmt.Sprintf("$en_inv_%s", c.Name), oldEN.Width())
			notCell := m.AddCell(fmt.Sprintf("$en_inv_cell_%s", c.Name), ir.TypeNot)
			notCell.Ports["A"] = oldEN
			notCell.Ports["Y"] = notOut.Sig()
			active = notOut.Sig()
		}
		andOut := m.AddWire(fmt.Sprintf("$en_and_%s", c.Name), 1)
		andCell := m.AddCell(fmt.Sprintf("$en_and_cell_%s", c.Name), ir.TypeAnd)
		andCell.Ports["A"] = reduceOr(m, active)
		andCell.Ports["B"] = en
		andCell.Ports["Y"] = andOut.Sig()

		if scanEnable != nil {
			orOut := m.AddWire(fmt.Sprintf("$en_or_%s", c.Name), 1)
			orCell := m.AddCell(fmt.Sprintf("$en_or_cell_%s", c.Name), ir.TypeReduceOr)
			orCell.Ports["A"] = ir.Cat(andOut.Sig(), scanEnable.Sig())
			orCell.Ports["Y"] = orOut.Sig()
			newEN = orOut.Sig()
		} else {
			newEN = andOut.Sig()
		}
	}

	promoted := c.Type
	switch c.Type {
	case ir.TypeDff:
		promoted = ir.TypeDffe
	case ir.TypeAdff:
		promoted = ir.TypeAdffe
	case ir.TypeSdff:
		promoted = ir.TypeSdffe
	case ir.TypeDffsr:
		promoted = ir.TypeDffsre
	case ir.TypeAldff:
		promoted = ir.TypeAldffe
	}
	c.Type = promoted
	c.Ports["EN"] = newEN
	c.Params["EN_POLARITY"] = ir.IntParam(1)
}
