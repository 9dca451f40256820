// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package socket_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/go-lpc/loom/host/socket"
	"github.com/go-lpc/loom/host/wire"
)

func TestRead32RoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	tr := socket.Wrap(client)
	defer tr.Close()

	go func() {
		req, err := wire.ReadFrame(server)
		if err != nil {
			t.Errorf("server ReadFrame: %+v", err)
			return
		}
		if req.Type != wire.TypeRead || req.Addr != wire.RegState {
			t.Errorf("unexpected request: %+v", req)
		}
		resp := wire.Frame{Type: wire.TypeReadResp, Addr: req.Addr, Data: 0xCAFE}
		if err := wire.WriteFrame(server, resp); err != nil {
			t.Errorf("server WriteFrame: %+v", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := tr.Read32(ctx, wire.RegState)
	if err != nil {
		t.Fatalf("Read32: %+v", err)
	}
	if got != 0xCAFE {
		t.Fatalf("Read32: got=%#x want=0xcafe", got)
	}
}

func TestWaitIRQInterleaved(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	tr := socket.Wrap(client)
	defer tr.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// IRQ frame interleaved before the read response.
		_ = wire.WriteFrame(server, wire.Frame{Type: wire.TypeIRQ, Data: 0x4})
		req, err := wire.ReadFrame(server)
		if err != nil {
			t.Errorf("server ReadFrame: %+v", err)
			return
		}
		_ = wire.WriteFrame(server, wire.Frame{Type: wire.TypeReadResp, Addr: req.Addr, Data: 0x1})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	bits, err := tr.WaitIRQ(ctx)
	if err != nil {
		t.Fatalf("WaitIRQ: %+v", err)
	}
	if bits != 0x4 {
		t.Fatalf("WaitIRQ: got=%#x want=0x4", bits)
	}

	got, err := tr.Read32(ctx, wire.RegCycleCountLo)
	if err != nil {
		t.Fatalf("Read32: %+v", err)
	}
	if got != 1 {
		t.Fatalf("Read32: got=%d want=1", got)
	}
	<-done
}

func TestRead32TimesOut(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	tr := socket.Wrap(client)
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// Drain the request but never answer it.
	go wire.ReadFrame(server)

	if _, err := tr.Read32(ctx, 0); err == nil {
		t.Fatalf("expected a timeout error")
	}
}

func TestShutdownFrame(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	tr := socket.Wrap(client)
	defer tr.Close()

	go wire.WriteFrame(server, wire.Frame{Type: wire.TypeShutdown, Data: 7})

	select {
	case code := <-tr.Shutdown():
		if code != 7 {
			t.Fatalf("shutdown code: got=%d want=7", code)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for shutdown frame")
	}
}
