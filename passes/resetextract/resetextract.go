// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package resetextract implements the reset_extract pass (spec §4.1):
// it captures each flip-flop's reset value as metadata, rewrites
// async-reset FFs to their plain-clock variant, and ties off the
// module's named reset port.
package resetextract

import (
	"github.com/go-lpc/loom/ir"
)

const op = "reset_extract"

// Options configures the pass (spec §6 pass command surface).
type Options struct {
	// ResetName is the reset input port to tie off and demote.
	// Defaults to the teacher-idiom-matching active-low "rst_ni".
	ResetName string
	// ActiveLow selects the inactive tie-off constant: true drives a
	// constant 1 (the default), false drives a constant 0.
	ActiveLow bool
}

// DefaultOptions mirrors spec §6's defaults.
func DefaultOptions() Options {
	return Options{ResetName: "rst_ni", ActiveLow: true}
}

// Run executes the pass against m in place.
func Run(m *ir.Module, opt Options) error {
	if opt.ResetName == "" {
		opt = DefaultOptions()
	}

	var any bool
	for _, c := range m.Cells() {
		switch c.Type {
		case ir.TypeAdff, ir.TypeAdffe:
			if err := extractADFF(m, c); err != nil {
				return err
			}
			any = true
		case ir.TypeDffsr, ir.TypeDffsre:
			if err := extractDFFSR(m, c); err != nil {
				return err
			}
			any = true
		case ir.TypeAldff, ir.TypeAldffe:
			if err := extractALDFF(m, c); err != nil {
				return err
			}
			any = true
		case ir.TypeSdff, ir.TypeSdffe, ir.TypeSdffce:
			stampResetValue(m, c, "SRST_VALUE")
			any = true
		case ir.TypeDff, ir.TypeDffe:
			// no reset attribute written
		}
	}

	if any && opt.ResetName != "" {
		tieOffReset(m, opt)
	}
	return ir.Check(m)
}

func qWire(m *ir.Module, c *ir.Cell) *ir.Wire {
	q := c.Port("Q")
	if len(q) == 0 || q[0].IsConst() {
		return nil
	}
	return m.Wire(q[0].Wire)
}

// stampResetValue copies the cell's integer reset-value parameter onto
// its Q wire as a "reset_value" attribute (decimal, little-endian bit
// order implied by the width of Q).
func stampResetValue(m *ir.Module, c *ir.Cell, param string) {
	w := qWire(m, c)
	if w == nil {
		return
	}
	v := c.IntParamOr(param, 0)
	w.Attrs["reset_value"] = itoa(v)
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// extractADFF retains {CLK, D, Q} (and EN for the -e variant),
// discards ARST/ARST_POLARITY, records ARST_VALUE on Q, then
// retypes the cell to the plain dff/dffe variant (spec §4.1 bullet 1).
func extractADFF(m *ir.Module, c *ir.Cell) error {
	stampResetValue(m, c, "ARST_VALUE")
	delete(c.Ports, "ARST")
	delete(c.Params, "ARST_POLARITY")
	delete(c.Params, "ARST_VALUE")
	if c.Type == ir.TypeAdffe {
		c.Type = ir.TypeDffe
	} else {
		c.Type = ir.TypeDff
	}
	return nil
}

// extractDFFSR behaves like extractADFF but the reset value defaults
// to zero since dffsr/dffsre carry no explicit value parameter (spec
// §4.1 bullet 2).
func extractDFFSR(m *ir.Module, c *ir.Cell) error {
	w := qWire(m, c)
	if w != nil {
		w.Attrs["reset_value"] = "0"
	}
	delete(c.Ports, "SET")
	delete(c.Ports, "CLR")
	delete(c.Params, "SET_POLARITY")
	delete(c.Params, "CLR_POLARITY")
	if c.Type == ir.TypeDffsre {
		c.Type = ir.TypeDffe
	} else {
		c.Type = ir.TypeDff
	}
	return nil
}

// extractALDFF implements spec §4.1 bullet 3: if AD is bit-constant,
// treat as adff with that value; otherwise require AD's unique driver
// to be a constant-argument __dpi_call, flag it reset=true/keep=true,
// and stamp its function name as reset_dpi_func on Q. Any other shape
// is a hard failure (UnsupportedConstruct).
func extractALDFF(m *ir.Module, c *ir.Cell) error {
	ad := c.Port("AD")
	w := qWire(m, c)

	if ad.AllConst() {
		if w != nil {
			w.Attrs["reset_value"] = itoa(int64(ad.Uint64()))
		}
	} else {
		driver := findUniqueDriver(m, ad)
		if driver == nil || driver.Type != ir.TypeDPICall {
			return ir.Errorf(ir.UnsupportedConstruct, op,
				"aldff %q: AD is neither constant nor driven by a constant-arg __dpi_call", c.Name)
		}
		args := driver.Port("ARGS")
		if !args.AllConst() {
			return ir.Errorf(ir.UnsupportedConstruct, op,
				"aldff %q: reset DPI call %q does not have fully constant ARGS", c.Name, driver.Name)
		}
		driver.Attrs["reset"] = "true"
		driver.Attrs["keep"] = "true"
		if w != nil {
			w.Attrs["reset_dpi_func"] = driver.StrParamOr("FUNC_NAME", driver.Name)
			w.Attrs["reset_dpi_args"] = itoa(int64(args.Uint64()))
		}
	}

	delete(c.Ports, "AD")
	delete(c.Ports, "ALOAD")
	if c.Type == ir.TypeAldffe {
		c.Type = ir.TypeDffe
	} else {
		c.Type = ir.TypeDff
	}
	return nil
}

// findUniqueDriver finds the single cell driving every bit of sig via
// an output port (see ir.checkSingleDriver's notion of "driver"), or
// nil if sig is not driven by exactly one cell.
func findUniqueDriver(m *ir.Module, sig ir.SigSpec) *ir.Cell {
	if len(sig) == 0 {
		return nil
	}
	var found *ir.Cell
	for _, c := range m.Cells() {
		for _, name := range []string{"RESULT", "Y", "Q"} {
			out := c.Port(name)
			if len(out) == 0 {
				continue
			}
			if out.Equal(sig) {
				if found != nil && found.ID != c.ID {
					return nil
				}
				found = c
			}
		}
	}
	return found
}

// tieOffReset drives the named reset wire to its inactive constant and
// clears its input-port flag, leaving downstream constant propagation
// (out of scope here) to delete the now-dead reset tree (spec §4.1).
func tieOffReset(m *ir.Module, opt Options) {
	w := m.FindWire(opt.ResetName)
	if w == nil {
		return
	}
	val := ir.Bit0
	if opt.ActiveLow {
		val = ir.Bit1
	}
	sig := make(ir.SigSpec, w.Width)
	for i := range sig {
		sig[i] = ir.ConstBit(val)
	}
	_ = m.Connect(w.Sig(), sig)
	w.PortInput = false
	m.FixupPorts()
}
