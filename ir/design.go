// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ir implements the mutable netlist intermediate
// representation the rewriting pipeline operates on: a Design owning
// Modules, each Module owning Wires, Cells, Memories and Connections
// (spec §2-§3). The front-end that produces a Design and the
// synthesis back-end that consumes one are out of scope; this package
// only owns the in-memory graph, its invariants, and a stable text
// codec used to hand the rewritten netlist to those collaborators.
package ir

// Design owns every Module in a compilation unit.
type Design struct {
	modules map[string]*Module
	order   []string
	Top     string
}

// NewDesign creates an empty design.
func NewDesign() *Design {
	return &Design{modules: map[string]*Module{}}
}

// AddModule registers a new, empty module and returns it.
func (d *Design) AddModule(name string) *Module {
	m := NewModule(name)
	d.modules[name] = m
	d.order = append(d.order, name)
	return m
}

// Module looks up a module by name, or nil.
func (d *Design) Module(name string) *Module { return d.modules[name] }

// Modules returns every module in creation order.
func (d *Design) Modules() []*Module {
	out := make([]*Module, 0, len(d.order))
	for _, name := range d.order {
		out = append(out, d.modules[name])
	}
	return out
}

// TopModule returns the module named by d.Top, or nil if unset/absent.
func (d *Design) TopModule() *Module {
	if d.Top == "" {
		return nil
	}
	return d.modules[d.Top]
}
