// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memshadow

import (
	"fmt"

	"github.com/go-lpc/loom/ir"
)

// generateController builds the fresh module of spec §4.4 paragraph
// 2: a unified {clk, addr, wdata, rdata, wen, ren} interface, per-memory
// ports, address-decode logic and a priority read-data mux.
func generateController(design *ir.Design, name string, entries []MemEntry, addrBits, dataBits int) *ir.Module {
	var ctrl *ir.Module
	if design != nil {
		ctrl = design.AddModule(name)
	} else {
		ctrl = ir.NewModule(name)
	}

	clk := ctrl.AddWire("clk_i", 1)
	clk.PortInput = true
	addr := ctrl.AddWire("addr_i", addrBits)
	addr.PortInput = true
	wdata := ctrl.AddWire("wdata_i", dataBits)
	wdata.PortInput = true
	rdata := ctrl.AddWire("rdata_o", dataBits)
	rdata.PortOutput = true
	wen := ctrl.AddWire("wen_i", 1)
	wen.PortInput = true
	ren := ctrl.AddWire("ren_i", 1)
	ren.PortInput = true

	memAddr := make([]*ir.Wire, len(entries))
	memRdata := make([]*ir.Wire, len(entries))
	memWdata := make([]*ir.Wire, len(entries))
	memWen := make([]*ir.Wire, len(entries))
	memRen := make([]*ir.Wire, len(entries))

	for i, e := range entries {
		prefix := fmt.Sprintf("mem%d", i)
		memAddr[i] = ctrl.AddWire(prefix+"_addr_o", e.AddrBits)
		memAddr[i].PortOutput = true
		memRdata[i] = ctrl.AddWire(prefix+"_rdata_i", e.Width)
		memRdata[i].PortInput = true
		memWdata[i] = ctrl.AddWire(prefix+"_wdata_o", e.Width)
		memWdata[i].PortOutput = true
		memWen[i] = ctrl.AddWire(prefix+"_wen_o", 1)
		memWen[i].PortOutput = true
		memRen[i] = ctrl.AddWire(prefix+"_ren_o", 1)
		memRen[i].PortOutput = true
	}
	ctrl.FixupPorts()

	memSel := make([]*ir.Wire, len(entries))
	for i := range entries {
		memSel[i] = ctrl.AddWire(fmt.Sprintf("$mem_sel%d", i), 1)
	}

	for i, e := range entries {
		geOut := ctrl.AddWire(fmt.Sprintf("$ge%d", i), 1)
		geCell := ctrl.AddCell(fmt.Sprintf("$ge_cell%d", i), ir.TypeGe)
		geCell.Ports["A"] = addr.Sig()
		geCell.Ports["B"] = ir.Const(uint64(e.BaseAddr), addrBits)
		geCell.Ports["Y"] = geOut.Sig()

		ltOut := ctrl.AddWire(fmt.Sprintf("$lt%d", i), 1)
		ltCell := ctrl.AddCell(fmt.Sprintf("$lt_cell%d", i), ir.TypeLt)
		ltCell.Ports["A"] = addr.Sig()
		ltCell.Ports["B"] = ir.Const(uint64(e.EndAddr), addrBits)
		ltCell.Ports["Y"] = ltOut.Sig()

		selCell := ctrl.AddCell(fmt.Sprintf("$sel_and%d", i), ir.TypeAnd)
		selCell.Ports["A"] = geOut.Sig()
		selCell.Ports["B"] = ltOut.Sig()
		selCell.Ports["Y"] = memSel[i].Sig()

		localFull := ctrl.AddWire(fmt.Sprintf("$local_addr_full%d", i), addrBits)
		subCell := ctrl.AddCell(fmt.Sprintf("$local_addr_sub%d", i), ir.TypeSub)
		subCell.Ports["A"] = addr.Sig()
		subCell.Ports["B"] = ir.Const(uint64(e.BaseAddr), addrBits)
		subCell.Ports["Y"] = localFull.Sig()

		if hi := 2 + e.AddrBits; e.AddrBits > 0 && hi <= addrBits {
			shifted := localFull.Sig().Slice(2, hi)
			_ = ctrl.Connect(memAddr[i].Sig(), shifted)
		}

		if e.Width <= dataBits {
			trunc := wdata.Sig().Slice(0, e.Width)
			_ = ctrl.Connect(memWdata[i].Sig(), trunc)
		}

		wenCell := ctrl.AddCell(fmt.Sprintf("$wen_and%d", i), ir.TypeAnd)
		wenCell.Ports["A"] = wen.Sig()
		wenCell.Ports["B"] = memSel[i].Sig()
		wenCell.Ports["Y"] = memWen[i].Sig()

		renCell := ctrl.AddCell(fmt.Sprintf("$ren_and%d", i), ir.TypeAnd)
		renCell.Ports["A"] = ren.Sig()
		renCell.Ports["B"] = memSel[i].Sig()
		renCell.Ports["Y"] = memRen[i].Sig()
	}

	rdataResult := ir.SigSpec(ir.Const(0, dataBits))
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		padded := make(ir.SigSpec, dataBits)
		for b := 0; b < dataBits; b++ {
			if b < e.Width {
				padded[b] = memRdata[i].Sig()[b]
			} else {
				padded[b] = ir.ConstBit(ir.Bit0)
			}
		}

		muxOut := ctrl.AddWire(fmt.Sprintf("$rdata_mux%d", i), dataBits)
		muxCell := ctrl.AddCell(fmt.Sprintf("$rdata_mux_cell%d", i), ir.TypeMux)
		muxCell.Ports["A"] = rdataResult
		muxCell.Ports["B"] = padded
		muxCell.Ports["S"] = memSel[i].Sig()
		muxCell.Ports["Y"] = muxOut.Sig()
		rdataResult = muxOut.Sig()
	}
	_ = ctrl.Connect(rdata.Sig(), rdataResult)

	ctrl.FixupPorts()
	return ctrl
}

// instantiateController implements spec §4.4 final paragraph: lift a
// unified shadow interface to the module's own ports and instantiate
// the controller, wiring its per-memory ports to each memory's shadow
// signals.
func instantiateController(m *ir.Module, ctrl *ir.Module, ctrlTypeName string, shadows []shadowPorts, entries []MemEntry, clk *ir.Wire, addrBits, dataBits int) {
	shadowAddr := m.AddWire("loom_shadow_addr", addrBits)
	shadowAddr.PortInput = true
	shadowWdata := m.AddWire("loom_shadow_wdata", dataBits)
	shadowWdata.PortInput = true
	shadowRdata := m.AddWire("loom_shadow_rdata", dataBits)
	shadowRdata.PortOutput = true
	shadowWen := m.AddWire("loom_shadow_wen", 1)
	shadowWen.PortInput = true
	shadowRen := m.AddWire("loom_shadow_ren", 1)
	shadowRen.PortInput = true
	m.FixupPorts()

	inst := m.AddCell("loom_mem_ctrl_inst", ctrlTypeName)
	inst.Ports["clk_i"] = clk.Sig()
	inst.Ports["addr_i"] = shadowAddr.Sig()
	inst.Ports["wdata_i"] = shadowWdata.Sig()
	inst.Ports["rdata_o"] = shadowRdata.Sig()
	inst.Ports["wen_i"] = shadowWen.Sig()
	inst.Ports["ren_i"] = shadowRen.Sig()

	for i := range entries {
		prefix := fmt.Sprintf("mem%d", i)
		inst.Ports[prefix+"_addr_o"] = shadows[i].addr.Sig()
		inst.Ports[prefix+"_rdata_i"] = shadows[i].rdata.Sig()
		inst.Ports[prefix+"_wdata_o"] = shadows[i].wdata.Sig()
		inst.Ports[prefix+"_wen_o"] = shadows[i].wen.Sig()
		inst.Ports[prefix+"_ren_o"] = shadows[i].ren.Sig()
	}
}
