// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

import "fmt"

// Blackbox modules are exempt from the single-driver rule (spec §3
// invariant 3).
func (m *Module) Blackbox() bool { return m.Attrs["blackbox"] == "1" }

// Check verifies the invariants of spec §3 against m (invariant 1 only
// as far as checkPortWidths goes) and returns the first violation
// found, or nil. Every pass calls this on the module it rewrote before
// its Run returns.
func Check(m *Module) error {
	if err := checkPortWidths(m); err != nil {
		return err
	}
	if err := checkPortOrder(m); err != nil {
		return err
	}
	if !m.Blackbox() {
		if err := checkSingleDriver(m); err != nil {
			return err
		}
	}
	if err := checkConnectionWidths(m); err != nil {
		return err
	}
	if err := checkBitScope(m); err != nil {
		return err
	}
	return nil
}

// checkPortWidths covers invariant 1 only partly: it verifies that
// every non-constant bit on every cell port references a wire that
// exists in m. Port widths are not compared against any declared
// width or width parameter.
func checkPortWidths(m *Module) error {
	for _, c := range m.Cells() {
		for name, sig := range c.Ports {
			for _, b := range sig {
				if b.IsConst() {
					continue
				}
				if m.wires[b.Wire] == nil {
					return Errorf(InvalidIR, m.Name,
						"cell %q port %q references missing wire id %d", c.Name, name, b.Wire)
				}
			}
		}
	}
	return nil
}

// checkPortOrder verifies invariant 2: every port-flagged wire appears
// in PortOrder and vice versa.
func checkPortOrder(m *Module) error {
	seen := map[string]bool{}
	for _, name := range m.PortOrder {
		w := m.FindWire(name)
		if w == nil || !w.IsPort() {
			return Errorf(InvalidIR, m.Name, "PortOrder names non-port wire %q", name)
		}
		seen[name] = true
	}
	for _, w := range m.Wires() {
		if w.IsPort() && !seen[w.Name] {
			return Errorf(InvalidIR, m.Name, "port wire %q missing from PortOrder (call FixupPorts)", w.Name)
		}
	}
	return nil
}

// checkSingleDriver verifies invariant 3: no wire bit has more than
// one driver. A bit is "driven" by a Connection LHS bit or by a cell
// output port bit; we treat every non-const bit appearing on the LHS
// of a Connection, or on a cell port whose name conventionally denotes
// an output ("Y", "Q" or "RESULT", per outputPortNames), as a driver
// candidate.
// This mirrors the structural single-driver check the original
// implementation performs over its own typed port directions.
func checkSingleDriver(m *Module) error {
	driven := map[WireID]map[int]string{}
	mark := func(sig SigSpec, by string) error {
		for _, b := range sig {
			if b.IsConst() {
				continue
			}
			if driven[b.Wire] == nil {
				driven[b.Wire] = map[int]string{}
			}
			if prev, ok := driven[b.Wire][b.Index]; ok && prev != by {
				return Errorf(InvalidIR, m.Name,
					"wire %d bit %d driven by both %q and %q", b.Wire, b.Index, prev, by)
			}
			driven[b.Wire][b.Index] = by
		}
		return nil
	}

	for _, conn := range m.Connections() {
		if err := mark(conn.LHS, "connection"); err != nil {
			return err
		}
	}
	for _, c := range m.Cells() {
		for _, name := range outputPortNames(c.Type) {
			if sig, ok := c.Ports[name]; ok {
				if err := mark(sig, fmt.Sprintf("cell %s.%s", c.Name, name)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// outputPortNames gives the conventional output-port names for a
// built-in cell type, used only by the single-driver check above.
func outputPortNames(typ string) []string {
	switch typ {
	case TypeDff, TypeDffe, TypeAdff, TypeAdffe, TypeSdff, TypeSdffe, TypeSdffce,
		TypeDffsr, TypeDffsre, TypeAldff, TypeAldffe:
		return []string{"Q"}
	case TypeAnd, TypeOr, TypeNot, TypeMux, TypePmux, TypeReduceOr, TypeEq, TypeGe, TypeLt, TypeSub:
		return []string{"Y"}
	case TypeDPICall:
		return []string{"RESULT"}
	default:
		return []string{"Y", "Q"}
	}
}

// checkConnectionWidths verifies invariant 4.
func checkConnectionWidths(m *Module) error {
	for i, conn := range m.Connections() {
		if conn.LHS.Width() != conn.RHS.Width() {
			return Errorf(InvalidIR, m.Name, "connection %d width mismatch: %d != %d",
				i, conn.LHS.Width(), conn.RHS.Width())
		}
	}
	return nil
}

// checkBitScope verifies invariant 5: every SigSpec reference resolves
// to a wire of the same module.
func checkBitScope(m *Module) error {
	check := func(sig SigSpec, ctx string) error {
		for _, b := range sig {
			if b.IsConst() {
				continue
			}
			if m.wires[b.Wire] == nil {
				return Errorf(InvalidIR, m.Name, "%s references wire %d not in module %q", ctx, b.Wire, m.Name)
			}
		}
		return nil
	}
	for _, conn := range m.Connections() {
		if err := check(conn.LHS, "connection LHS"); err != nil {
			return err
		}
		if err := check(conn.RHS, "connection RHS"); err != nil {
			return err
		}
	}
	for _, c := range m.Cells() {
		for name, sig := range c.Ports {
			if err := check(sig, fmt.Sprintf("cell %s.%s", c.Name, name)); err != nil {
				return err
			}
		}
	}
	return nil
}
