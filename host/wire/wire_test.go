// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wire_test

import (
	"bytes"
	"testing"

	"github.com/go-lpc/loom/host/wire"
)

func TestFrameRoundTrip(t *testing.T) {
	cases := []wire.Frame{
		wire.ReadRequest(wire.RegState),
		wire.WriteRequest(wire.RegControl, wire.CtrlStart),
		{Type: wire.TypeIRQ, Addr: 0, Data: 0x1},
		{Type: wire.TypeShutdown, Addr: 0, Data: 7},
	}
	for _, want := range cases {
		var buf bytes.Buffer
		if err := wire.WriteFrame(&buf, want); err != nil {
			t.Fatalf("WriteFrame: %+v", err)
		}
		if buf.Len() != wire.Size {
			t.Fatalf("encoded size: got=%d want=%d", buf.Len(), wire.Size)
		}
		got, err := wire.ReadFrame(&buf)
		if err != nil {
			t.Fatalf("ReadFrame: %+v", err)
		}
		if got != want {
			t.Fatalf("round trip: got=%+v want=%+v", got, want)
		}
	}
}

func TestDecodeShortFrame(t *testing.T) {
	if _, err := wire.Decode([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error decoding a short frame")
	}
}

func TestFuncOffsets(t *testing.T) {
	if got, want := wire.FuncStatusOffset(0), uint32(wire.DPIBase); got != want {
		t.Fatalf("FuncStatusOffset(0): got=%#x want=%#x", got, want)
	}
	if got, want := wire.FuncStatusOffset(1), uint32(wire.DPIBase+wire.BlockSize); got != want {
		t.Fatalf("FuncStatusOffset(1): got=%#x want=%#x", got, want)
	}
	if got, want := wire.FuncArgOffset(0, 0), uint32(wire.DPIBase+4); got != want {
		t.Fatalf("FuncArgOffset(0,0): got=%#x want=%#x", got, want)
	}
}
