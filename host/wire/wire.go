// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package wire implements the host<->emulator wire protocol of spec
// §6: a fixed 12-byte frame in both directions, plus the mailbox and
// DPI function-block register layout the frame addresses index into.
//
// The frame layout is grounded on the retrieved
// loom_transport_socket.c/.cpp reference transport:
//
//	Request (host -> emulator):
//	  [0]     type (Read|Write)
//	  [1-3]   reserved
//	  [4-7]   address, little-endian
//	  [8-11]  write data, little-endian (ignored for reads)
//
//	Response (emulator -> host):
//	  [0]     type (ReadResp|WriteAck|IRQ|Shutdown)
//	  [1-3]   reserved
//	  [4-7]   read data, little-endian
//	  [8-11]  irq bits, little-endian
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/go-lpc/loom/ir"
)

const op = "host/wire"

// Size is the fixed frame size of spec §6.
const Size = 12

// Frame type tags. Request and response reuse the same numeric space:
// 0/1 mean Read/Write on the way in, ReadResp/WriteAck on the way
// back (matching the original transport's own overloading).
const (
	TypeRead     uint8 = 0
	TypeWrite    uint8 = 1
	TypeReadResp uint8 = 0
	TypeWriteAck uint8 = 1
	TypeIRQ      uint8 = 2
	TypeShutdown uint8 = 3
)

// Register map constants (spec §6 "External Interfaces").
const (
	// MailboxBase is the base address of the control/status register
	// block.
	MailboxBase = 0x000
	// DPIBase is the base address of the DPI function block region.
	DPIBase = 0x100
	// BlockSize is the per-function byte stride within the DPI
	// region: offset 0 is the status register, offsets 4..4+4*argwords
	// are argument words, then the return words follow.
	BlockSize = 64
)

// Mailbox register offsets, relative to MailboxBase (spec §6: "design
// id, version, DPI function count, state, cycle count low/high,
// reset, start/stop/step, scan enable/shift, memory shadow
// address/data/wen/ren").
const (
	RegDesignID      = MailboxBase + 4*0
	RegVersion       = MailboxBase + 4*1
	RegDPIFuncCount  = MailboxBase + 4*2
	RegState         = MailboxBase + 4*3
	RegCycleCountLo  = MailboxBase + 4*4
	RegCycleCountHi  = MailboxBase + 4*5
	RegReset         = MailboxBase + 4*6
	RegControl       = MailboxBase + 4*7 // start/stop/step bits
	RegScanControl   = MailboxBase + 4*8 // enable/shift bits
	RegMemShadowAddr = MailboxBase + 4*9
	RegMemShadowData = MailboxBase + 4*10
	RegMemShadowWen  = MailboxBase + 4*11
	RegMemShadowRen  = MailboxBase + 4*12
	// RegDPIPending is an aggregate bitmask, bit i set while DPI
	// function i has a call pending, letting host/dpi poll with a
	// single read instead of one per function's status register.
	RegDPIPending = MailboxBase + 4*13
	// RegScanAddr/RegScanData address the scan chain as 32-bit words
	// (spec §4.6 "read image as 32-bit words"): writing a word index
	// to RegScanAddr latches that word of the chain behind
	// RegScanData for the following read or write.
	RegScanAddr = MailboxBase + 4*14
	RegScanData = MailboxBase + 4*15
)

// Control register bits (RegControl).
const (
	CtrlStart uint32 = 1 << 0
	CtrlStop  uint32 = 1 << 1
	CtrlStep  uint32 = 1 << 2
)

// Scan control register bits (RegScanControl).
const (
	ScanEnable uint32 = 1 << 0
	ScanShift  uint32 = 1 << 1
)

// DPI function status register bits (FuncStatusOffset(id)): bit 0 is
// driven by hardware to signal a pending call, bit 1 is driven by the
// host to acknowledge completion and release the return value.
const (
	FuncStatusValid uint32 = 1 << 0
	FuncStatusAck   uint32 = 1 << 1
)

// FuncStatusOffset returns the status-register address of DPI
// function id within the DPI function block region.
func FuncStatusOffset(id int) uint32 {
	return DPIBase + uint32(id)*BlockSize
}

// FuncArgOffset returns the address of argument word i of DPI
// function id.
func FuncArgOffset(id, i int) uint32 {
	return FuncStatusOffset(id) + 4 + uint32(i)*4
}

// Frame is one 12-byte wire message (spec §8 "wire protocol
// round-trip: encode/decode of every request and response is the
// identity").
type Frame struct {
	Type uint8
	Addr uint32
	Data uint32
}

// Encode writes f's wire representation into a fixed 12-byte array.
func (f Frame) Encode() [Size]byte {
	var b [Size]byte
	b[0] = f.Type
	binary.LittleEndian.PutUint32(b[4:8], f.Addr)
	binary.LittleEndian.PutUint32(b[8:12], f.Data)
	return b
}

// Decode parses a 12-byte buffer into a Frame.
func Decode(b []byte) (Frame, error) {
	if len(b) != Size {
		return Frame{}, ir.Errorf(ir.ProtocolViolation, op, "short frame: got=%d want=%d bytes", len(b), Size)
	}
	return Frame{
		Type: b[0],
		Addr: binary.LittleEndian.Uint32(b[4:8]),
		Data: binary.LittleEndian.Uint32(b[8:12]),
	}, nil
}

// ReadFrame reads one fixed-size frame from r.
func ReadFrame(r io.Reader) (Frame, error) {
	var buf [Size]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if err == io.EOF {
			return Frame{}, err
		}
		return Frame{}, ir.Wrap(ir.TransportFailure, op, err, "could not read frame")
	}
	return Decode(buf[:])
}

// WriteFrame writes one fixed-size frame to w.
func WriteFrame(w io.Writer, f Frame) error {
	b := f.Encode()
	n, err := w.Write(b[:])
	if err != nil {
		return ir.Wrap(ir.TransportFailure, op, err, "could not write frame")
	}
	if n != Size {
		return ir.Errorf(ir.TransportFailure, op, "short write: got=%d want=%d bytes", n, Size)
	}
	return nil
}

// ReadRequest builds a read request frame for addr.
func ReadRequest(addr uint32) Frame { return Frame{Type: TypeRead, Addr: addr} }

// WriteRequest builds a write request frame for addr/data.
func WriteRequest(addr, data uint32) Frame { return Frame{Type: TypeWrite, Addr: addr, Data: data} }

func (f Frame) String() string {
	return fmt.Sprintf("wire.Frame{Type=%d Addr=0x%08x Data=0x%08x}", f.Type, f.Addr, f.Data)
}
