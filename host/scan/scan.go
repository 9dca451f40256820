// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package scan implements the host-side scan subsystem of spec
// §4.2/§4.7: capturing and restoring the scan chain as 32-bit words,
// building the initial scan image from each variable's reset value,
// and applying reset-DPI overwrites in the order the scan map records
// them.
//
// Grounded on the retrieved loom_shell.h reference (Shell's
// initial_scan_image_, ResetDpiMapping and execute_initial_dpi_calls
// members) and loom_dpi_service.h/.c for the call shape reset-DPI
// functions share with ordinary DPI calls.
package scan

import (
	"context"

	"github.com/go-lpc/loom/host"
	"github.com/go-lpc/loom/ir"
	"github.com/go-lpc/loom/passes/scaninsert"
)

const op = "host/scan"

// wordCount returns how many 32-bit words hold a chain of bits bits.
func wordCount(bits int) int {
	return (bits + 31) / 32
}

// Image is a packed, little-endian view of the scan chain: bit i of
// the chain lives at bit (i%32) of word i/32 (spec §8 "little-endian
// word 0").
type Image struct {
	Words []uint32
}

// NewImage allocates an all-zero image sized to hold chainLength bits.
func NewImage(chainLength int) *Image {
	return &Image{Words: make([]uint32, wordCount(chainLength))}
}

// Bits extracts width bits starting at bit offset from the image,
// little-endian within each word (the extract_variable helper of
// loom_shell.h).
func (img *Image) Bits(offset, width int) uint64 {
	var v uint64
	for i := 0; i < width; i++ {
		bit := offset + i
		word := bit / 32
		if word >= len(img.Words) {
			break
		}
		if img.Words[word]&(1<<uint(bit%32)) != 0 {
			v |= 1 << uint(i)
		}
	}
	return v
}

// SetBits writes the low width bits of v into the image at bit offset.
func (img *Image) SetBits(offset, width int, v uint64) {
	for i := 0; i < width; i++ {
		bit := offset + i
		word := bit / 32
		if word >= len(img.Words) {
			continue
		}
		mask := uint32(1) << uint(bit%32)
		if v&(1<<uint(i)) != 0 {
			img.Words[word] |= mask
		} else {
			img.Words[word] &^= mask
		}
	}
}

// Capture reads the current scan chain image word by word (spec §4.6
// "scan_capture blocks up to a configurable timeout").
func Capture(ctx context.Context, hc *host.Context, chainLength int) (*Image, error) {
	img := NewImage(chainLength)
	for i := range img.Words {
		v, err := hc.ReadScanWord(ctx, i)
		if err != nil {
			return nil, ir.Wrap(ir.TransportFailure, op, err, "could not capture scan word %d", i)
		}
		img.Words[i] = v
	}
	return img, nil
}

// Restore writes img back onto the scan chain and shifts it into
// place, word by word then bit by bit (spec §4.7 "the image is then
// shifted into the chain before the DUT is unfrozen").
func Restore(ctx context.Context, hc *host.Context, img *Image) error {
	for i, w := range img.Words {
		if err := hc.WriteScanWord(ctx, i, w); err != nil {
			return ir.Wrap(ir.TransportFailure, op, err, "could not restore scan word %d", i)
		}
	}
	if err := hc.SetScanEnable(ctx, true); err != nil {
		return err
	}
	for range img.Words {
		for b := 0; b < 32; b++ {
			if err := hc.ShiftScan(ctx); err != nil {
				return ir.Wrap(ir.TransportFailure, op, err, "could not shift scan chain")
			}
		}
	}
	return hc.SetScanEnable(ctx, false)
}

// ResetCaller invokes a reset-DPI function by name with its packed
// constant argument words, returning its truncated little-endian
// result (spec §4.7: "arguments are always compile-time constants").
type ResetCaller func(ctx context.Context, funcName string, args []uint32) (uint64, error)

// BuildInitialImage populates an image sized to m.ChainLength with
// each variable's reset value, then overwrites the bits of any
// reset-DPI-mapped variable with call's return value (spec §4.7).
// Entries are applied in scan-map order, matching the reference
// shell's execute_initial_dpi_calls iteration order.
func BuildInitialImage(ctx context.Context, m *scaninsert.Result, call ResetCaller) (*Image, error) {
	img := NewImage(m.ChainLength)

	for _, e := range m.Map {
		if e.ResetValue == "" {
			continue
		}
		v, err := parseUint(e.ResetValue)
		if err != nil {
			return nil, ir.Wrap(ir.InvalidIR, op, err, "variable %q has malformed reset_value %q", e.Name, e.ResetValue)
		}
		img.SetBits(e.Offset, e.Width, v)
	}

	for _, e := range m.Map {
		if e.ResetDPIFunc == "" {
			continue
		}
		var args []uint32
		if e.ResetDPIArgs != "" {
			raw, err := parseUint(e.ResetDPIArgs)
			if err != nil {
				return nil, ir.Wrap(ir.InvalidIR, op, err, "variable %q has malformed reset_dpi_args %q", e.Name, e.ResetDPIArgs)
			}
			args = []uint32{uint32(raw), uint32(raw >> 32)}
		}
		v, err := call(ctx, e.ResetDPIFunc, args)
		if err != nil {
			return nil, ir.Wrap(ir.EmulatorError, op, err, "reset-DPI call %q for variable %q failed", e.ResetDPIFunc, e.Name)
		}
		img.SetBits(e.Offset, e.Width, v)
	}

	return img, nil
}

func parseUint(s string) (uint64, error) {
	var v uint64
	neg := false
	i := 0
	if i < len(s) && s[i] == '-' {
		neg = true
		i++
	}
	if i == len(s) {
		return 0, ir.Errorf(ir.InvalidIR, op, "empty reset_value")
	}
	for ; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, ir.Errorf(ir.InvalidIR, op, "non-decimal reset_value %q", s)
		}
		v = v*10 + uint64(c-'0')
	}
	if neg {
		return 0, ir.Errorf(ir.InvalidIR, op, "negative reset_value %q", s)
	}
	return v, nil
}
