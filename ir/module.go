// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

import "fmt"

// Connection equates two SigSpecs of equal width, bitwise (spec §3).
type Connection struct {
	LHS, RHS SigSpec
}

// Module owns Wires, Cells, Memories and Connections. Every container
// is id-keyed with a side-table of attributes; iteration order always
// follows creation order because that order is observable in emitted
// func-ids, scan-chain positions and address-space assignments (spec
// §5).
type Module struct {
	Name  string
	Attrs map[string]string

	wires   map[WireID]*Wire
	cells   map[CellID]*Cell
	mems    map[MemoryID]*Memory
	conns   []Connection
	wireSeq []WireID
	cellSeq []CellID
	memSeq  []MemoryID

	nextWire WireID
	nextCell CellID
	nextMem  MemoryID

	// PortOrder is the ordered list of port wire names, derived by
	// FixupPorts from the input/output/inout flags (spec §3 invariant 2).
	PortOrder []string
}

// NewModule creates an empty module.
func NewModule(name string) *Module {
	return &Module{
		Name:  name,
		Attrs: map[string]string{},
		wires: map[WireID]*Wire{},
		cells: map[CellID]*Cell{},
		mems:  map[MemoryID]*Memory{},
	}
}

// AddWire creates and registers a new wire.
func (m *Module) AddWire(name string, width int) *Wire {
	m.nextWire++
	w := &Wire{ID: m.nextWire, Name: name, Width: width, Attrs: map[string]string{}}
	m.wires[w.ID] = w
	m.wireSeq = append(m.wireSeq, w.ID)
	return w
}

// Wire looks up a wire by id.
func (m *Module) Wire(id WireID) *Wire { return m.wires[id] }

// FindWire looks up a wire by name, or nil.
func (m *Module) FindWire(name string) *Wire {
	for _, id := range m.wireSeq {
		if m.wires[id].Name == name {
			return m.wires[id]
		}
	}
	return nil
}

// Wires returns every wire in creation order.
func (m *Module) Wires() []*Wire {
	out := make([]*Wire, 0, len(m.wireSeq))
	for _, id := range m.wireSeq {
		if w, ok := m.wires[id]; ok {
			out = append(out, w)
		}
	}
	return out
}

// RemoveWire deletes a wire. Callers must ensure no remaining cell
// port or connection references it.
func (m *Module) RemoveWire(id WireID) { delete(m.wires, id) }

// AddCell creates and registers a new cell.
func (m *Module) AddCell(name, typ string) *Cell {
	m.nextCell++
	c := &Cell{
		ID: m.nextCell, Name: name, Type: typ,
		Params: map[string]Param{},
		Ports:  map[string]SigSpec{},
		Attrs:  map[string]string{},
	}
	m.cells[c.ID] = c
	m.cellSeq = append(m.cellSeq, c.ID)
	return c
}

// Cell looks up a cell by id.
func (m *Module) Cell(id CellID) *Cell { return m.cells[id] }

// Cells returns every cell in creation order (spec §5 determinism
// requirement).
func (m *Module) Cells() []*Cell {
	out := make([]*Cell, 0, len(m.cellSeq))
	for _, id := range m.cellSeq {
		if c, ok := m.cells[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

// RemoveCell deletes a cell from the module (used after loom_instrument
// wires its transformed calls away, spec §4.3.2).
func (m *Module) RemoveCell(id CellID) { delete(m.cells, id) }

// AddMemory creates and registers a new memory.
func (m *Module) AddMemory(name string, width, depth int) *Memory {
	m.nextMem++
	mem := &Memory{ID: m.nextMem, Name: name, Width: width, Depth: depth, Attrs: map[string]string{}}
	m.mems[mem.ID] = mem
	m.memSeq = append(m.memSeq, mem.ID)
	return mem
}

// Memories returns every memory in creation order.
func (m *Module) Memories() []*Memory {
	out := make([]*Memory, 0, len(m.memSeq))
	for _, id := range m.memSeq {
		if mm, ok := m.mems[id]; ok {
			out = append(out, mm)
		}
	}
	return out
}

// Connect records a Connection, checking width equality (spec §3
// invariant 4).
func (m *Module) Connect(lhs, rhs SigSpec) error {
	if lhs.Width() != rhs.Width() {
		return Errorf(InvalidIR, m.Name, "connect width mismatch: %d != %d", lhs.Width(), rhs.Width())
	}
	m.conns = append(m.conns, Connection{LHS: lhs, RHS: rhs})
	return nil
}

// Connections returns every connection in creation order.
func (m *Module) Connections() []Connection { return m.conns }

// FixupPorts derives PortOrder from each wire's port flags, in
// creation order, matching the teacher-style "stamp metadata once,
// read it everywhere after" pattern (spec §3 invariant 2).
func (m *Module) FixupPorts() {
	order := make([]string, 0, len(m.wireSeq))
	for _, id := range m.wireSeq {
		w := m.wires[id]
		if w != nil && w.IsPort() {
			order = append(order, w.Name)
		}
	}
	m.PortOrder = order
}

func (m *Module) String() string {
	return fmt.Sprintf("module %q (%d wires, %d cells, %d mems)",
		m.Name, len(m.wireSeq), len(m.cellSeq), len(m.memSeq))
}

// Clone returns a deep copy of m, preserving every wire/cell/memory id
// unchanged, so a caller can snapshot a module before an in-place pass
// mutates it (passes/scaninsert.CheckEquivalence compares a module
// against a Clone taken right before Run).
func (m *Module) Clone() *Module {
	out := &Module{
		Name:      m.Name,
		Attrs:     cloneStrMap(m.Attrs),
		wires:     make(map[WireID]*Wire, len(m.wires)),
		cells:     make(map[CellID]*Cell, len(m.cells)),
		mems:      make(map[MemoryID]*Memory, len(m.mems)),
		wireSeq:   append([]WireID(nil), m.wireSeq...),
		cellSeq:   append([]CellID(nil), m.cellSeq...),
		memSeq:    append([]MemoryID(nil), m.memSeq...),
		nextWire:  m.nextWire,
		nextCell:  m.nextCell,
		nextMem:   m.nextMem,
		PortOrder: append([]string(nil), m.PortOrder...),
	}
	for id, w := range m.wires {
		nw := *w
		nw.Attrs = cloneStrMap(w.Attrs)
		out.wires[id] = &nw
	}
	for id, c := range m.cells {
		nc := *c
		nc.Params = make(map[string]Param, len(c.Params))
		for k, v := range c.Params {
			nc.Params[k] = v
		}
		nc.Ports = make(map[string]SigSpec, len(c.Ports))
		for k, v := range c.Ports {
			nc.Ports[k] = append(SigSpec(nil), v...)
		}
		nc.Attrs = cloneStrMap(c.Attrs)
		out.cells[id] = &nc
	}
	for id, mm := range m.mems {
		nm := *mm
		nm.ReadPorts = append([]ReadPort(nil), mm.ReadPorts...)
		nm.WritePorts = append([]WritePort(nil), mm.WritePorts...)
		nm.Init = append([]byte(nil), mm.Init...)
		nm.Attrs = cloneStrMap(mm.Attrs)
		out.mems[id] = &nm
	}
	conns := make([]Connection, len(m.conns))
	for i, c := range m.conns {
		conns[i] = Connection{LHS: append(SigSpec(nil), c.LHS...), RHS: append(SigSpec(nil), c.RHS...)}
	}
	out.conns = conns
	return out
}

func cloneStrMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
