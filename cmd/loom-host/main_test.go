// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-lpc/loom/host"
	"github.com/go-lpc/loom/host/dpi"
)

func TestAtoi(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want int
	}{
		{"", 0},
		{"not-a-number", 0},
		{"42", 42},
		{"2525", 2525},
	} {
		if got := atoi(tc.in); got != tc.want {
			t.Fatalf("atoi(%q): got=%d want=%d", tc.in, got, tc.want)
		}
	}
}

func TestDial(t *testing.T) {
	for _, target := range []string{
		"/dev/loom0",
		"/sys/class/loom/loom0",
		"0000:01:00.0",
		"localhost:9999",
		"/tmp/loom.sock",
	} {
		// dial always fails here (no real backend listening); this
		// only exercises that both branches return cleanly.
		if _, err := dial(target); err == nil {
			t.Fatalf("dial(%q): expected an error, none of these targets exist", target)
		}
	}
}

func TestLoadDPIFuncs(t *testing.T) {
	dir, err := ioutil.TempDir("", "loom-host-")
	if err != nil {
		t.Fatalf("could not create tmpdir: %+v", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "dpi.json")
	const rawDoc = `{
		"design_id": 3735928559,
		"version": 1,
		"dpi_functions": [
			{"id": 0, "name": "reset_mode", "args": [{"width": 32}], "return": {"width": 32}},
			{"id": 1, "name": "tick", "args": [], "return": null}
		]
	}`
	if err := ioutil.WriteFile(path, []byte(rawDoc), 0644); err != nil {
		t.Fatalf("could not write DPI metadata: %+v", err)
	}

	doc, funcs, err := loadDPIFuncs(path)
	if err != nil {
		t.Fatalf("loadDPIFuncs: %+v", err)
	}
	if doc.DesignID != 3735928559 || doc.Version != 1 {
		t.Fatalf("loadDPIFuncs doc: got=%+v", doc)
	}
	if len(funcs) != 2 {
		t.Fatalf("loadDPIFuncs: got=%d functions, want=2", len(funcs))
	}
	if funcs[0].Name != "reset_mode" || funcs[0].NArgs != 1 || funcs[0].RetWidth != 32 {
		t.Fatalf("loadDPIFuncs[0]: got=%+v", funcs[0])
	}
	if funcs[1].Name != "tick" || funcs[1].NArgs != 0 || funcs[1].RetWidth != 0 {
		t.Fatalf("loadDPIFuncs[1]: got=%+v", funcs[1])
	}

	svc := dpi.NewService(host.NewContext(nil))
	for _, f := range funcs {
		svc.Register(f)
	}
	if _, err := svc.CallByName(nil, "reset_mode", []uint32{7}); err != nil {
		t.Fatalf("CallByName(reset_mode): %+v", err)
	}
	if _, err := svc.CallByName(nil, "missing", nil); err == nil {
		t.Fatalf("expected an error for an unregistered function name")
	}
}

func TestLoadDPIFuncsMissingFile(t *testing.T) {
	if _, _, err := loadDPIFuncs("/no/such/file.json"); err == nil {
		t.Fatalf("expected an error for a missing DPI metadata file")
	}
}
