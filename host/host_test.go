// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host_test

import (
	"context"
	"testing"

	"github.com/go-lpc/loom/host"
	"github.com/go-lpc/loom/host/wire"
)

type fakeTransport struct {
	regs   map[uint32]uint32
	closed bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{regs: map[uint32]uint32{}}
}

func (f *fakeTransport) Read32(ctx context.Context, addr uint32) (uint32, error) {
	return f.regs[addr], nil
}

func (f *fakeTransport) Write32(ctx context.Context, addr, data uint32) error {
	f.regs[addr] = data
	return nil
}

func (f *fakeTransport) WaitIRQ(ctx context.Context) (uint32, error) { return 0, nil }
func (f *fakeTransport) Close() error                                { f.closed = true; return nil }

func TestContextMailboxOps(t *testing.T) {
	ft := newFakeTransport()
	ft.regs[wire.RegState] = uint32(host.StateRunning)
	ft.regs[wire.RegCycleCountLo] = 0x1000
	ft.regs[wire.RegCycleCountHi] = 0x2

	ctx := host.NewContext(ft)
	bg := context.Background()

	st, err := ctx.State(bg)
	if err != nil || st != host.StateRunning {
		t.Fatalf("State: got=%v err=%v", st, err)
	}

	cc, err := ctx.CycleCount(bg)
	if err != nil {
		t.Fatalf("CycleCount: %+v", err)
	}
	if want := uint64(0x2)<<32 | 0x1000; cc != want {
		t.Fatalf("CycleCount: got=%#x want=%#x", cc, want)
	}

	if err := ctx.Start(bg); err != nil {
		t.Fatalf("Start: %+v", err)
	}
	if ft.regs[wire.RegControl] != wire.CtrlStart {
		t.Fatalf("Start did not set CtrlStart")
	}

	if err := ctx.RequireState(bg, host.StateFrozen); err == nil {
		t.Fatalf("expected RequireState mismatch error")
	}
	if err := ctx.RequireState(bg, host.StateRunning); err != nil {
		t.Fatalf("RequireState: %+v", err)
	}

	if err := ctx.WriteScanWord(bg, 3, 0xCAFEBABE); err != nil {
		t.Fatalf("WriteScanWord: %+v", err)
	}
	if ft.regs[wire.RegScanAddr] != 3 {
		t.Fatalf("WriteScanWord did not latch the word index")
	}
	if v, err := ctx.ReadScanWord(bg, 3); err != nil || v != 0xCAFEBABE {
		t.Fatalf("ReadScanWord: got=(%#x,%v) want=0xcafebabe", v, err)
	}

	if err := ctx.Close(); err != nil {
		t.Fatalf("Close: %+v", err)
	}
	if !ft.closed {
		t.Fatalf("underlying transport was not closed")
	}
}

func TestContextHandshake(t *testing.T) {
	ft := newFakeTransport()
	ft.regs[wire.RegDesignID] = 0xDEADBEEF
	ft.regs[wire.RegVersion] = 1
	ft.regs[wire.RegDPIFuncCount] = 3

	ctx := host.NewContext(ft)
	bg := context.Background()

	if err := ctx.Handshake(bg, 0xDEADBEEF, 1, 3); err != nil {
		t.Fatalf("Handshake: %+v", err)
	}

	if err := ctx.Handshake(bg, 0x1, 1, 3); err == nil {
		t.Fatalf("expected design id mismatch to fail Handshake")
	}
	if err := ctx.Handshake(bg, 0xDEADBEEF, 2, 3); err == nil {
		t.Fatalf("expected version mismatch to fail Handshake")
	}
	if err := ctx.Handshake(bg, 0xDEADBEEF, 1, 4); err == nil {
		t.Fatalf("expected DPI function count mismatch to fail Handshake")
	}
}
