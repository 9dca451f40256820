// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dpi_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-lpc/loom/host"
	"github.com/go-lpc/loom/host/dpi"
	"github.com/go-lpc/loom/host/wire"
)

type fakeTransport struct {
	mu   sync.Mutex
	regs map[uint32]uint32
	irqs chan uint32
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{regs: map[uint32]uint32{}, irqs: make(chan uint32, 8)}
}

func (f *fakeTransport) Read32(ctx context.Context, addr uint32) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.regs[addr], nil
}

func (f *fakeTransport) Write32(ctx context.Context, addr, data uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regs[addr] = data
	return nil
}

func (f *fakeTransport) WaitIRQ(ctx context.Context) (uint32, error) {
	select {
	case v := <-f.irqs:
		return v, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (f *fakeTransport) Close() error { return nil }

func (f *fakeTransport) set(addr, v uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regs[addr] = v
}

func (f *fakeTransport) get(addr uint32) uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.regs[addr]
}

func TestServiceOnceDispatchesPendingCall(t *testing.T) {
	ft := newFakeTransport()
	hctx := host.NewContext(ft)
	svc := dpi.NewService(hctx)

	var gotArgs []uint32
	svc.Register(dpi.Func{
		ID:       0,
		Name:     "add_one",
		NArgs:    1,
		RetWidth: 32,
		Callback: func(args []uint32) uint64 {
			gotArgs = append([]uint32(nil), args...)
			return uint64(args[0] + 1)
		},
	})

	ft.set(wire.RegDPIPending, 1<<0)
	ft.set(wire.FuncArgOffset(0, 0), 41)

	n, err := svc.ServiceOnce(context.Background())
	if err != nil {
		t.Fatalf("ServiceOnce: %+v", err)
	}
	if n != 1 {
		t.Fatalf("ServiceOnce: serviced=%d want=1", n)
	}
	if len(gotArgs) != 1 || gotArgs[0] != 41 {
		t.Fatalf("callback args: got=%v want=[41]", gotArgs)
	}

	retBase := wire.FuncArgOffset(0, 1)
	if got := ft.get(retBase); got != 42 {
		t.Fatalf("return value: got=%d want=42", got)
	}
	if got := ft.get(wire.FuncStatusOffset(0)); got != wire.FuncStatusAck {
		t.Fatalf("status register: got=%#x want=FuncStatusAck", got)
	}
	if svc.CallCount() != 1 {
		t.Fatalf("CallCount: got=%d want=1", svc.CallCount())
	}
}

func TestServiceOnceNoPending(t *testing.T) {
	ft := newFakeTransport()
	svc := dpi.NewService(host.NewContext(ft))

	n, err := svc.ServiceOnce(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("ServiceOnce: n=%d err=%+v", n, err)
	}
}

func TestRunExitsOnRequestExit(t *testing.T) {
	ft := newFakeTransport()
	hctx := host.NewContext(ft)
	svc := dpi.NewService(hctx)

	calls := 0
	svc.Register(dpi.Func{
		ID:    0,
		Name:  "noop",
		NArgs: 0,
		Callback: func(args []uint32) uint64 {
			calls++
			svc.RequestExit()
			return 0
		},
	})
	ft.set(wire.RegDPIPending, 1<<0)

	code, err := svc.Run(context.Background(), dpi.RunOptions{PollInterval: time.Millisecond})
	if err != nil {
		t.Fatalf("Run: %+v", err)
	}
	if code != dpi.ExitComplete {
		t.Fatalf("Run: code=%v want=ExitComplete", code)
	}
	if calls == 0 {
		t.Fatalf("callback was never invoked")
	}
}

func TestRunExitsOnEmuError(t *testing.T) {
	ft := newFakeTransport()
	ft.set(wire.RegState, uint32(host.StateError))
	svc := dpi.NewService(host.NewContext(ft))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	code, err := svc.Run(ctx, dpi.RunOptions{PollInterval: time.Millisecond})
	if err != nil {
		t.Fatalf("Run: %+v", err)
	}
	if code != dpi.ExitEmuError {
		t.Fatalf("Run: code=%v want=ExitEmuError", code)
	}
}

func TestCallByName(t *testing.T) {
	ft := newFakeTransport()
	svc := dpi.NewService(host.NewContext(ft))
	svc.Register(dpi.Func{
		ID:    1,
		Name:  "reset_mode",
		NArgs: 1,
		Callback: func(args []uint32) uint64 {
			return uint64(args[0]) + 1
		},
	})

	v, err := svc.CallByName(context.Background(), "reset_mode", []uint32{8, 0})
	if err != nil {
		t.Fatalf("CallByName: %+v", err)
	}
	if v != 9 {
		t.Fatalf("CallByName result: got=%d want=9", v)
	}

	if _, err := svc.CallByName(context.Background(), "missing", nil); err == nil {
		t.Fatalf("expected an error for an unregistered function name")
	}
}

func TestExitCodeString(t *testing.T) {
	for _, c := range []dpi.ExitCode{dpi.ExitComplete, dpi.ExitError, dpi.ExitTimeout, dpi.ExitEmuError} {
		if c.String() == "Unknown" {
			t.Fatalf("ExitCode(%d).String() = Unknown", c)
		}
	}
}
