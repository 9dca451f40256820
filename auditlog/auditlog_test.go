// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package auditlog

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/go-lpc/loom/internal/fakedb"
)

func init() {
	drvName = "fakedb"
}

func TestOpen(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open auditlog: %+v", err)
	}
	defer db.Close()
}

func TestLastRun(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open auditlog: %+v", err)
	}
	defer db.Close()

	started := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	_ = fakedb.Run(context.Background(), fakedb.Rows{
		Names: []string{"id", "design", "top", "started_at", "exit_status", "diagnostic"},
		Values: [][]driver.Value{
			{uint32(7), "counter", "top", started, 0, ""},
		},
	}, func(ctx context.Context) error {
		run, err := db.LastRun(ctx, "counter")
		if err != nil {
			t.Fatalf("could not retrieve last run: %+v", err)
		}
		if got, want := run.ID, uint32(7); got != want {
			t.Fatalf("run id: got=%d want=%d", got, want)
		}
		if got, want := run.Design, "counter"; got != want {
			t.Fatalf("run design: got=%q want=%q", got, want)
		}
		if got, want := run.ExitStatus, 0; got != want {
			t.Fatalf("exit status: got=%d want=%d", got, want)
		}
		return nil
	})
}

func TestLastRunNoRows(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open auditlog: %+v", err)
	}
	defer db.Close()

	_ = fakedb.Run(context.Background(), fakedb.Rows{
		Names:  []string{"id", "design", "top", "started_at", "exit_status", "diagnostic"},
		Values: nil,
	}, func(ctx context.Context) error {
		if _, err := db.LastRun(ctx, "missing"); err == nil {
			t.Fatalf("expected an error when no run exists")
		}
		return nil
	})
}
