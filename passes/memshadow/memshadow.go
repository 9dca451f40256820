// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package memshadow implements the mem_shadow pass (spec §4.4): it
// gives every logical Memory a second, address-decoded shadow R/W
// port, synthesises a controller module that multiplexes a unified
// external interface across all memories, extracts static initial
// content, and emits a binary memory map for the host runtime.
package memshadow

import (
	"fmt"

	"github.com/go-lpc/loom/ir"
)

const op = "mem_shadow"

// Options configures the pass.
type Options struct {
	ClockName string
	CtrlName  string
}

// DefaultOptions matches the original implementation's CLI defaults.
func DefaultOptions() Options {
	return Options{ClockName: "clk_i", CtrlName: "loom_mem_ctrl"}
}

// MemEntry is one binary memory-map record (spec §4.4 final paragraph).
type MemEntry struct {
	Name              string
	Width             int
	Depth             int
	AddrBits          int
	BaseAddr          int
	EndAddr           int
	InitialContent    []byte
	HasInitialContent bool
	InitFile          string
	InitFileIsHex     bool
}

// Result is returned by Run.
type Result struct {
	Entries    []MemEntry
	TotalBytes int
	AddrBits   int
	DataBits   int
}

// shadowPorts are the five internal signals added per memory (step 1).
type shadowPorts struct {
	addr  *ir.Wire
	rdata *ir.Wire
	wdata *ir.Wire
	wen   *ir.Wire
	ren   *ir.Wire
}

func ceilLog2(n int) int {
	bits := 0
	n--
	for n > 0 {
		n >>= 1
		bits++
	}
	if bits < 1 {
		bits = 1
	}
	return bits
}

// Run executes the pass: it mutates m in place and, if design is
// non-nil, registers the freshly synthesised controller module into
// it (callers that only need the Result may pass a scratch Design).
func Run(design *ir.Design, m *ir.Module, opt Options) (*Result, error) {
	if opt.ClockName == "" {
		opt = DefaultOptions()
	}

	clk := m.FindWire(opt.ClockName)
	if clk == nil {
		return nil, ir.Errorf(ir.MissingAttribute, op, "DUT clock %q not found", opt.ClockName)
	}

	mems := m.Memories()
	res := &Result{}
	if len(mems) == 0 {
		return res, nil
	}

	shadows := make([]shadowPorts, len(mems))
	nextAddr := 0

	for i, mem := range mems {
		abits := ceilLog2(mem.Depth)
		entry := MemEntry{
			Name:     mem.Name,
			Width:    mem.Width,
			Depth:    mem.Depth,
			AddrBits: abits,
			BaseAddr: nextAddr,
		}

		wordBytes := mem.WordBytes()
		totalWords := mem.Depth * (wordBytes / 4)
		entry.EndAddr = nextAddr + totalWords*4
		nextAddr = entry.EndAddr

		sp := addShadowPorts(m, mem, abits, clk)
		shadows[i] = sp

		extractInitContent(mem, &entry)

		res.Entries = append(res.Entries, entry)
	}

	res.TotalBytes = nextAddr
	maxWidth := 0
	for _, e := range res.Entries {
		if e.Width > maxWidth {
			maxWidth = e.Width
		}
	}
	globalAddrBits := ceilLog2(res.TotalBytes)
	if globalAddrBits < 2 {
		globalAddrBits = 2
	}
	res.AddrBits = globalAddrBits
	res.DataBits = maxWidth

	ctrl := generateController(design, opt.CtrlName, res.Entries, globalAddrBits, maxWidth)
	instantiateController(m, ctrl, opt.CtrlName, shadows, res.Entries, clk, globalAddrBits, maxWidth)

	m.Attrs["loom_n_memories"] = fmt.Sprintf("%d", len(res.Entries))
	m.Attrs["loom_shadow_addr_bits"] = fmt.Sprintf("%d", globalAddrBits)
	m.Attrs["loom_shadow_data_bits"] = fmt.Sprintf("%d", maxWidth)
	m.Attrs["loom_shadow_total_bytes"] = fmt.Sprintf("%d", res.TotalBytes)

	m.FixupPorts()
	if err := ir.Check(m); err != nil {
		return nil, err
	}
	return res, nil
}

// addShadowPorts implements step 1-2: five internal signals plus a
// read port and a write port whose masks are resized to include the
// new write port among every existing write port (and vice versa).
func addShadowPorts(m *ir.Module, mem *ir.Memory, abits int, clk *ir.Wire) shadowPorts {
	prefix := "loom_shadow_" + mem.Name
	sp := shadowPorts{
		addr:  m.AddWire(prefix+"_addr", abits),
		rdata: m.AddWire(prefix+"_rdata", mem.Width),
		wdata: m.AddWire(prefix+"_wdata", mem.Width),
		wen:   m.AddWire(prefix+"_wen", 1),
		ren:   m.AddWire(prefix+"_ren", 1),
	}

	wrIdx := len(mem.WritePorts)

	rd := ir.ReadPort{
		Clock:  clk.Sig(),
		Enable: sp.ren.Sig(),
		Addr:   sp.addr.Sig(),
		Data:   sp.rdata.Sig(),
	}
	rd.ResizeMasks(wrIdx + 1)
	mem.ReadPorts = append(mem.ReadPorts, rd)

	wrEnable := make(ir.SigSpec, mem.Width)
	for i := range wrEnable {
		wrEnable[i] = sp.wen.Sig()[0]
	}
	wr := ir.WritePort{
		Clock:  clk.Sig(),
		Enable: wrEnable,
		Addr:   sp.addr.Sig(),
		Data:   sp.wdata.Sig(),
	}
	for len(wr.Priority) < wrIdx+1 {
		wr.Priority = append(wr.Priority, false)
	}
	mem.WritePorts = append(mem.WritePorts, wr)

	for i := range mem.ReadPorts {
		mem.ReadPorts[i].ResizeMasks(len(mem.WritePorts))
	}
	for i := range mem.WritePorts {
		for len(mem.WritePorts[i].Priority) < len(mem.WritePorts) {
			mem.WritePorts[i].Priority = append(mem.WritePorts[i].Priority, false)
		}
	}

	return sp
}

// extractInitContent implements step 4: pack mem.Init (byte-per-bit,
// 0/1/2-for-x) into a little-endian byte array, then clear the
// logical init so the emitted netlist carries no `initial` blocks.
func extractInitContent(mem *ir.Memory, entry *MemEntry) {
	entry.InitFile = mem.InitFile
	entry.InitFileIsHex = mem.InitFileIsHex
	if len(mem.Init) == 0 {
		return
	}

	hasValid := false
	for _, b := range mem.Init {
		if b == 0 || b == 1 {
			hasValid = true
			break
		}
	}
	if !hasValid {
		return
	}

	bytesPerEntry := (mem.Width + 7) / 8
	content := make([]byte, mem.Depth*bytesPerEntry)
	for e := 0; e < mem.Depth; e++ {
		base := e * bytesPerEntry
		for b := 0; b < mem.Width; b++ {
			idx := e*mem.Width + b
			if idx < len(mem.Init) && mem.Init[idx] == 1 {
				content[base+b/8] |= 1 << uint(b%8)
			}
		}
	}
	entry.InitialContent = content
	entry.HasInitialContent = true

	mem.Init = nil
}
