// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package loominstrument

import (
	"fmt"

	"github.com/go-lpc/loom/ir"
)

// DPIBase and BlockSize fix the mailbox layout of spec §4.3.5/§6.
const (
	DPIBase   = 0x100
	BlockSize = 64
)

// Arg describes one logical argument of a DPI function (spec §4.3.5).
type Arg struct {
	Name      string
	Direction string // "in" or "out"
	Type      string
	Width     int
	Value     string // only set for string constants
}

// Func is one non-builtin (or builtin) DPI function's metadata.
type Func struct {
	ID        int
	Name      string
	BaseAddr  int
	ArgWidth  int
	RetType   string
	RetWidth  int
	Args      []Arg
	Builtin   bool
	Format    string // only for builtin __display_* calls
}

// bridgeResult collects everything needed for artefact emission.
type bridgeResult struct {
	Funcs       []Func
	MaxArgWidth int
	MaxRetWidth int
	Warnings    []string
}

// runDPIBridge implements spec §4.3.2: collect every non-reset
// __dpi_call, assign func_ids, create the mailbox ports, derive each
// call's valid condition, and wire them (single- or multi-call case).
func runDPIBridge(m *ir.Module) (*bridgeResult, error) {
	sm := ir.NewSigMap(m)

	var calls []*ir.Cell
	for _, c := range m.Cells() {
		if c.Type == ir.TypeDPICall && !c.BoolAttr("reset") {
			calls = append(calls, c)
		}
	}

	res := &bridgeResult{}
	for _, c := range calls {
		res.MaxArgWidth = maxInt(res.MaxArgWidth, c.Port("ARGS").Width())
		res.MaxRetWidth = maxInt(res.MaxRetWidth, c.Port("RESULT").Width())
	}
	if res.MaxArgWidth == 0 && len(calls) > 0 {
		res.MaxArgWidth = 1
	}

	dpiValid := m.AddWire("dpi_valid", 1)
	dpiValid.PortOutput = true
	dpiFuncID := m.AddWire("dpi_func_id", 8)
	dpiFuncID.PortOutput = true
	dpiArgs := m.AddWire("dpi_args", maxInt(res.MaxArgWidth, 1))
	dpiArgs.PortOutput = true
	dpiResult := m.AddWire("dpi_result", maxInt(res.MaxRetWidth, 1))
	dpiResult.PortInput = true

	type wired struct {
		cond ir.SigSpec
		args ir.SigSpec
		fn   Func
	}
	all := make([]wired, len(calls))

	for i, c := range calls {
		cond, warn := deriveValidCondition(m, sm, c)
		if warn != "" {
			res.Warnings = append(res.Warnings, warn)
		}
		args := ir.ZeroExtend(c.Port("ARGS"), res.MaxArgWidth)

		fn := Func{
			ID:       i,
			Name:     c.StrParamOr("FUNC_NAME", c.Name),
			BaseAddr: DPIBase + i*BlockSize,
			ArgWidth: c.Port("ARGS").Width(),
			RetWidth: c.Port("RESULT").Width(),
			Builtin:  c.BoolAttr("builtin"),
			Format:   c.StrParamOr("FORMAT", ""),
			Args:     argsOf(c),
		}
		all[i] = wired{cond: cond, args: args, fn: fn}
		res.Funcs = append(res.Funcs, fn)

		// result wiring is shared for both single/multi case: every
		// call reads the same dpi_result slice, sized to its own ret
		// width (spec §4.3.2 "share the dpi_result slice").
		if fn.RetWidth > 0 {
			retSig := dpiResult.Sig().Slice(0, fn.RetWidth)
			if len(c.Port("RESULT")) > 0 {
				if err := m.Connect(c.Port("RESULT"), retSig); err != nil {
					return nil, err
				}
			}
		}
	}

	switch len(calls) {
	case 0:
		_ = m.Connect(dpiValid.Sig(), ir.Const(0, 1))
		_ = m.Connect(dpiFuncID.Sig(), ir.Const(0, 8))
		_ = m.Connect(dpiArgs.Sig(), ir.Const(0, dpiArgs.Width))
	case 1:
		c := all[0]
		_ = m.Connect(dpiValid.Sig(), reduceOr(m, c.cond))
		_ = m.Connect(dpiFuncID.Sig(), ir.Const(0, 8))
		_ = m.Connect(dpiArgs.Sig(), c.args)
	default:
		// OR every (reduced) valid condition together for dpi_valid.
		var validBits ir.SigSpec
		for _, c := range all {
			validBits = append(validBits, reduceOr(m, c.cond)[0])
		}
		orCell := m.AddCell("$dpi_valid_or", ir.TypeReduceOr)
		orCell.Ports["A"] = validBits
		orCell.Ports["Y"] = dpiValid.Sig()

		// Priority-mux tree, iterating last-to-first so func-id 0
		// dominates (spec §4.3.2, Design Notes §9).
		funcID := ir.Const(0, 8)
		args := ir.SigSpec(ir.Const(0, dpiArgs.Width))
		for i := len(all) - 1; i >= 0; i-- {
			c := all[i]
			sel := reduceOr(m, c.cond)

			fidOut := m.AddWire(fmt.Sprintf("$dpi_fid_mux%d", i), 8)
			muxF := m.AddCell(fmt.Sprintf("$dpi_fid_mux_cell%d", i), ir.TypeMux)
			muxF.Ports["A"] = funcID
			muxF.Ports["B"] = ir.Const(uint64(i), 8)
			muxF.Ports["S"] = sel
			muxF.Ports["Y"] = fidOut.Sig()
			funcID = fidOut.Sig()

			argOut := m.AddWire(fmt.Sprintf("$dpi_arg_mux%d", i), dpiArgs.Width)
			muxA := m.AddCell(fmt.Sprintf("$dpi_arg_mux_cell%d", i), ir.TypeMux)
			muxA.Ports["A"] = args
			muxA.Ports["B"] = c.args
			muxA.Ports["S"] = sel
			muxA.Ports["Y"] = argOut.Sig()
			args = argOut.Sig()
		}
		_ = m.Connect(dpiFuncID.Sig(), funcID)
		_ = m.Connect(dpiArgs.Sig(), args)
	}

	for _, c := range calls {
		m.RemoveCell(c.ID)
	}

	m.FixupPorts()
	return res, nil
}

// argsOf derives per-argument metadata for a __dpi_call cell. User
// calls may carry explicit ARG_i_NAME/ARG_i_TYPE attributes (set by
// the out-of-scope front-end); absent those, each 32-bit word of the
// packed ARGS bus becomes one synthetic word-named argument so the
// generated C wrapper still unpacks consistently with dpi_args.
func argsOf(c *ir.Cell) []Arg {
	width := c.Port("ARGS").Width()
	n := (width + 31) / 32
	args := make([]Arg, 0, n)
	for i := 0; i < n; i++ {
		name := c.StrParamOr(fmt.Sprintf("ARG_%d_NAME", i), fmt.Sprintf("arg%d", i))
		typ := c.StrParamOr(fmt.Sprintf("ARG_%d_TYPE", i), "uint32_t")
		w := int(c.IntParamOr(fmt.Sprintf("ARG_%d_WIDTH", i), 32))
		args = append(args, Arg{Name: name, Direction: "in", Type: typ, Width: w})
	}
	return args
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// reduceOr collapses a multi-bit signal to one bit via a reduce_or
// cell, or returns it unchanged if already 1 bit.
func reduceOr(m *ir.Module, sig ir.SigSpec) ir.SigSpec {
	if sig.Width() <= 1 {
		if sig.Width() == 0 {
			return ir.Const(0, 1)
		}
		return sig
	}
	out := m.AddWire(fmt.Sprintf("$reduce_or%d", len(m.Cells())), 1)
	c := m.AddCell(fmt.Sprintf("$reduce_or_cell%d", len(m.Cells())), ir.TypeReduceOr)
	c.Ports["A"] = sig
	c.Ports["Y"] = out.Sig()
	return out.Sig()
}

// deriveValidCondition implements the four-step fallback of spec
// §4.3.2.
func deriveValidCondition(m *ir.Module, sm *ir.SigMap, call *ir.Cell) (ir.SigSpec, string) {
	if en := call.Port("EN"); en.Width() > 0 {
		return en, ""
	}

	result := call.Port("RESULT")
	if result.Width() > 0 {
		if cond, ok := findPmuxCase(m, sm, result); ok {
			return cond, ""
		}
		if cond, ok := findMuxCase(m, sm, result); ok {
			return cond, ""
		}
	}

	return ir.Const(1, 1), fmt.Sprintf(
		"dpi call %q: could not derive a valid condition, defaulting to constant 1 (call may be outside a clocked block)",
		call.Name)
}

// findPmuxCase looks for a pmux cell whose case-input bits structurally
// equal sig, returning the matching case's select bit (spec §4.3.2
// step 2).
func findPmuxCase(m *ir.Module, sm *ir.SigMap, sig ir.SigSpec) (ir.SigSpec, bool) {
	for _, c := range m.Cells() {
		if c.Type != ir.TypePmux {
			continue
		}
		b := c.Port("B")
		s := c.Port("S")
		w := sig.Width()
		if w == 0 || b.Width()%w != 0 {
			continue
		}
		nCases := b.Width() / w
		for i := 0; i < nCases && i < s.Width(); i++ {
			caseSig := b.Slice(i*w, (i+1)*w)
			if sm.Equal(caseSig, sig) {
				return ir.SigSpec{s[i]}, true
			}
		}
	}
	return nil, false
}

// findMuxCase looks for a 2:1 mux whose B input equals sig, returning
// its select bit (spec §4.3.2 step 3).
func findMuxCase(m *ir.Module, sm *ir.SigMap, sig ir.SigSpec) (ir.SigSpec, bool) {
	for _, c := range m.Cells() {
		if c.Type != ir.TypeMux {
			continue
		}
		if sm.Equal(c.Port("B"), sig) {
			return c.Port("S"), true
		}
	}
	return nil, false
}
