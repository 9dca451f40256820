// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package host implements the transport-agnostic host runtime context
// of spec §4.6: a Context wraps whichever Transport (host/socket,
// host/pcie) is in use and exposes the mailbox-level operations
// (state, start/stop/step, reset, cycle count, scan control) that
// host/dpi and host/scan build on.
//
// Grounded on the retrieved loom.h/loom.cpp "transport-agnostic
// interface" design: one small Transport interface, one Context that
// owns exactly one Transport for its lifetime (spec §5 "a transport
// handle is exclusively owned by its context").
package host

import (
	"context"

	"github.com/go-lpc/loom/host/wire"
	"github.com/go-lpc/loom/ir"
)

const op = "host"

// Transport is the minimal surface host/socket and host/pcie both
// implement: blocking register read/write and IRQ wait, each taking
// an explicit deadline via ctx (spec §5 "every blocking call carries
// an explicit timeout").
type Transport interface {
	Read32(ctx context.Context, addr uint32) (uint32, error)
	Write32(ctx context.Context, addr, data uint32) error
	WaitIRQ(ctx context.Context) (uint32, error)
	Close() error
}

// State mirrors the mailbox RegState register's enumeration.
type State uint32

const (
	StateIdle State = iota
	StateRunning
	StateFrozen
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRunning:
		return "Running"
	case StateFrozen:
		return "Frozen"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Context owns a Transport for its lifetime and layers the mailbox
// register protocol (spec §6) on top of it.
type Context struct {
	tr Transport
}

// NewContext wraps tr.
func NewContext(tr Transport) *Context { return &Context{tr: tr} }

// Read32 / Write32 / WaitIRQ pass straight through to the owned
// Transport; higher-level host/scan and host/dpi code builds on
// these plus the named mailbox helpers below.
func (c *Context) Read32(ctx context.Context, addr uint32) (uint32, error) {
	return c.tr.Read32(ctx, addr)
}

func (c *Context) Write32(ctx context.Context, addr, data uint32) error {
	return c.tr.Write32(ctx, addr, data)
}

func (c *Context) WaitIRQ(ctx context.Context) (uint32, error) {
	return c.tr.WaitIRQ(ctx)
}

// Close releases the underlying Transport.
func (c *Context) Close() error { return c.tr.Close() }

// DesignID reads the design identifier stamped into the mailbox at
// build time.
func (c *Context) DesignID(ctx context.Context) (uint32, error) {
	return c.Read32(ctx, wire.RegDesignID)
}

// State reads the emulator's current run state.
func (c *Context) State(ctx context.Context) (State, error) {
	v, err := c.Read32(ctx, wire.RegState)
	if err != nil {
		return 0, err
	}
	return State(v), nil
}

// DPIFuncCount reads how many DPI functions this design's mailbox
// advertises (spec §6 JSON metadata's dpi_functions, mirrored in
// hardware so the host can validate it against the JSON it loaded).
func (c *Context) DPIFuncCount(ctx context.Context) (int, error) {
	v, err := c.Read32(ctx, wire.RegDPIFuncCount)
	return int(v), err
}

// Version reads the wire-protocol version stamped into the mailbox at
// build time (spec §6 RegVersion), checked by Handshake against the
// rewrite's JSON metadata.
func (c *Context) Version(ctx context.Context) (uint32, error) {
	return c.Read32(ctx, wire.RegVersion)
}

// Handshake implements spec_full §13's "Host main handshake": read
// design-id/version/DPI-function-count off the mailbox and assert
// them against the values the rewrite stamped into its JSON metadata,
// before any reset/start traffic is issued. It guards against running
// a host binary against a stale rewritten design, the way
// loom_sim_main.c's connect-time design_id/version/n_dpi_funcs print
// and check does, made fatal here rather than a warning since a
// mismatch means every register offset downstream is unreliable.
func (c *Context) Handshake(ctx context.Context, wantDesignID, wantVersion uint32, wantDPIFuncCount int) error {
	gotID, err := c.DesignID(ctx)
	if err != nil {
		return err
	}
	gotVersion, err := c.Version(ctx)
	if err != nil {
		return err
	}
	gotCount, err := c.DPIFuncCount(ctx)
	if err != nil {
		return err
	}

	if gotID != wantDesignID {
		return ir.Errorf(ir.EmulatorError, op, "design id mismatch: mailbox=0x%08x rewrite=0x%08x (stale rewritten design?)", gotID, wantDesignID)
	}
	if gotVersion != wantVersion {
		return ir.Errorf(ir.EmulatorError, op, "wire-protocol version mismatch: mailbox=%d rewrite=%d", gotVersion, wantVersion)
	}
	if gotCount != wantDPIFuncCount {
		return ir.Errorf(ir.EmulatorError, op, "DPI function count mismatch: mailbox=%d rewrite=%d", gotCount, wantDPIFuncCount)
	}
	return nil
}

// CycleCount reads the 64-bit emulator cycle counter.
func (c *Context) CycleCount(ctx context.Context) (uint64, error) {
	lo, err := c.Read32(ctx, wire.RegCycleCountLo)
	if err != nil {
		return 0, err
	}
	hi, err := c.Read32(ctx, wire.RegCycleCountHi)
	if err != nil {
		return 0, err
	}
	return uint64(hi)<<32 | uint64(lo), nil
}

// Start, Stop and Step drive the corresponding control bits (spec
// §4.6 "start, stop, step" control layer).
func (c *Context) Start(ctx context.Context) error { return c.Write32(ctx, wire.RegControl, wire.CtrlStart) }
func (c *Context) Stop(ctx context.Context) error  { return c.Write32(ctx, wire.RegControl, wire.CtrlStop) }
func (c *Context) Step(ctx context.Context) error  { return c.Write32(ctx, wire.RegControl, wire.CtrlStep) }

// Reset pulses the mailbox reset register, triggering the reset DPI
// flow of spec §4.7 once the hardware acknowledges it.
func (c *Context) Reset(ctx context.Context) error {
	return c.Write32(ctx, wire.RegReset, 1)
}

// SetScanEnable toggles the scan_enable bit (spec §4.2's top-level
// port, mirrored into the mailbox so the host can drive it without a
// dedicated pin per port).
func (c *Context) SetScanEnable(ctx context.Context, enable bool) error {
	var v uint32
	if enable {
		v = wire.ScanEnable
	}
	return c.Write32(ctx, wire.RegScanControl, v)
}

// ShiftScan pulses the shift bit once, advancing the scan chain by
// one bit per spec §4.2/§4.7's capture/inject protocol.
func (c *Context) ShiftScan(ctx context.Context) error {
	return c.Write32(ctx, wire.RegScanControl, wire.ScanEnable|wire.ScanShift)
}

// ReadScanWord reads word idx of the scan chain image (spec §4.6
// "read image as 32-bit words").
func (c *Context) ReadScanWord(ctx context.Context, idx int) (uint32, error) {
	if err := c.Write32(ctx, wire.RegScanAddr, uint32(idx)); err != nil {
		return 0, err
	}
	return c.Read32(ctx, wire.RegScanData)
}

// WriteScanWord writes word idx of the scan chain image.
func (c *Context) WriteScanWord(ctx context.Context, idx int, data uint32) error {
	if err := c.Write32(ctx, wire.RegScanAddr, uint32(idx)); err != nil {
		return err
	}
	return c.Write32(ctx, wire.RegScanData, data)
}

// RequireState returns an EmulatorError if the context is not in
// want.
func (c *Context) RequireState(ctx context.Context, want State) error {
	got, err := c.State(ctx)
	if err != nil {
		return err
	}
	if got != want {
		return ir.Errorf(ir.EmulatorError, op, "unexpected state: got=%s want=%s", got, want)
	}
	return nil
}
