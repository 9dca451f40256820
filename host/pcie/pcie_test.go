// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pcie

import "testing"

func TestResolveTarget(t *testing.T) {
	for _, tc := range []struct {
		target    string
		wantPath  string
		wantMmap  bool
	}{
		{"0000:17:00.0", "/sys/bus/pci/devices/0000:17:00.0/resource0", true},
		{"/sys/bus/pci/devices/0000:17:00.0/resource0", "/sys/bus/pci/devices/0000:17:00.0/resource0", true},
		{"/dev/xdma0_user", "/dev/xdma0_user", false},
	} {
		path, useMmap := resolveTarget(tc.target)
		if path != tc.wantPath || useMmap != tc.wantMmap {
			t.Fatalf("resolveTarget(%q): got=(%q,%v) want=(%q,%v)",
				tc.target, path, useMmap, tc.wantPath, tc.wantMmap)
		}
	}
}

func TestLEUint32RoundTrip(t *testing.T) {
	want := uint32(0xDEADBEEF)
	b := leBytes(want)
	if got := leUint32(b[:]); got != want {
		t.Fatalf("leUint32/leBytes round trip: got=%#x want=%#x", got, want)
	}
}
