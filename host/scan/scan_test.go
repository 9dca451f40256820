// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scan_test

import (
	"context"
	"testing"

	"github.com/go-lpc/loom/host"
	"github.com/go-lpc/loom/host/scan"
	"github.com/go-lpc/loom/host/wire"
	"github.com/go-lpc/loom/passes/scaninsert"
)

type fakeTransport struct {
	regs map[uint32]uint32
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{regs: map[uint32]uint32{}}
}

func (f *fakeTransport) Read32(ctx context.Context, addr uint32) (uint32, error) {
	if addr == wire.RegScanData {
		return f.regs[wire.RegScanAddr+0x10000+f.regs[wire.RegScanAddr]], nil
	}
	return f.regs[addr], nil
}

func (f *fakeTransport) Write32(ctx context.Context, addr, data uint32) error {
	if addr == wire.RegScanData {
		f.regs[wire.RegScanAddr+0x10000+f.regs[wire.RegScanAddr]] = data
		return nil
	}
	f.regs[addr] = data
	return nil
}

func (f *fakeTransport) WaitIRQ(ctx context.Context) (uint32, error) { return 0, nil }
func (f *fakeTransport) Close() error                                { return nil }

func TestImageBitsRoundTrip(t *testing.T) {
	img := scan.NewImage(40)
	img.SetBits(0, 8, 0x42)
	img.SetBits(8, 4, 0xA)
	img.SetBits(32, 8, 0xFF)

	if got := img.Bits(0, 8); got != 0x42 {
		t.Fatalf("Bits(0,8): got=%#x want=0x42", got)
	}
	if got := img.Bits(8, 4); got != 0xA {
		t.Fatalf("Bits(8,4): got=%#x want=0xa", got)
	}
	if got := img.Bits(32, 8); got != 0xFF {
		t.Fatalf("Bits(32,8): got=%#x want=0xff", got)
	}
}

func TestCaptureRestoreRoundTrip(t *testing.T) {
	ft := newFakeTransport()
	hc := host.NewContext(ft)
	bg := context.Background()

	img := scan.NewImage(40)
	img.SetBits(0, 8, 0x42)
	img.SetBits(32, 8, 0x7)

	if err := scan.Restore(bg, hc, img); err != nil {
		t.Fatalf("Restore: %+v", err)
	}

	got, err := scan.Capture(bg, hc, 40)
	if err != nil {
		t.Fatalf("Capture: %+v", err)
	}
	for i := range img.Words {
		if got.Words[i] != img.Words[i] {
			t.Fatalf("word %d: got=%#x want=%#x", i, got.Words[i], img.Words[i])
		}
	}
}

func TestBuildInitialImageSeeded(t *testing.T) {
	m := &scaninsert.Result{
		ChainLength: 16,
		Map: []scaninsert.Entry{
			{Name: "counter", Width: 8, Offset: 0, ResetValue: "66"}, // 0x42
			{Name: "mode", Width: 8, Offset: 8, ResetDPIFunc: "reset_mode"},
		},
	}

	called := false
	call := func(ctx context.Context, name string, args []uint32) (uint64, error) {
		called = true
		if name != "reset_mode" {
			t.Fatalf("unexpected reset-DPI call: %q", name)
		}
		return 0x9, nil
	}

	img, err := scan.BuildInitialImage(context.Background(), m, call)
	if err != nil {
		t.Fatalf("BuildInitialImage: %+v", err)
	}
	if !called {
		t.Fatalf("reset-DPI call was never issued")
	}
	if got := img.Bits(0, 8); got != 0x42 {
		t.Fatalf("counter bits: got=%#x want=0x42", got)
	}
	if got := img.Bits(8, 8); got != 0x9 {
		t.Fatalf("mode bits: got=%#x want=0x9", got)
	}
}

func TestBuildInitialImageRejectsMalformedResetValue(t *testing.T) {
	m := &scaninsert.Result{
		ChainLength: 8,
		Map:         []scaninsert.Entry{{Name: "bad", Width: 8, Offset: 0, ResetValue: "not-a-number"}},
	}
	if _, err := scan.BuildInitialImage(context.Background(), m, nil); err == nil {
		t.Fatalf("expected an error for a malformed reset_value")
	}
}
