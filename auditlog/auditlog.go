// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package auditlog records pipeline-run outcomes (design name, pass
// durations, exit status, artefact paths) to a MySQL database.
//
// Retargeted from conddb/conddb.go's database/sql + DSN-builder +
// context-timeout PingContext wrapper: same query-with-deadline idiom,
// new schema.
package auditlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

const (
	host    = "localhost"
	drvName = "mysql"
)

var (
	usr = "username"
	pwd = "s3cr3t"
)

// DB exposes convenience methods to record and retrieve pipeline-run
// audit records.
type DB struct {
	db   *sql.DB
	name string
}

// Open opens a connection to the audit database dbname.
func Open(dbname string) (*DB, error) {
	db, err := sql.Open(drvName, dsn(dbname))
	if err != nil {
		return nil, fmt.Errorf("auditlog: could not open %q db: %w", dbname, err)
	}

	if err := ping(db, dbname); err != nil {
		return nil, err
	}

	return &DB{db: db, name: dbname}, nil
}

func dsn(db string) string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s", usr, pwd, host, db)
}

func ping(db *sql.DB, dbname string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("auditlog: could not ping %q db: %w", dbname, err)
	}
	return nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error { return db.db.Close() }

// PassTiming is how long one rewriting pass took, recorded against a
// run (spec §7 pass command surface).
type PassTiming struct {
	Name     string
	Duration time.Duration
}

// Run is one pipeline invocation's outcome.
type Run struct {
	ID         uint32
	Design     string
	Top        string
	StartedAt  time.Time
	ExitStatus int
	Passes     []PassTiming
	Artefacts  []string
	Diagnostic string // empty on success
}

// RecordRun inserts run and its pass timings/artefact rows inside a
// single transaction (spec §7 "exit status distinguishes normal
// completion from...failure").
func (db *DB) RecordRun(ctx context.Context, run Run) (uint32, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("auditlog: could not begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(
		ctx,
		`INSERT INTO runs (design, top, started_at, exit_status, diagnostic) VALUES (?, ?, ?, ?, ?)`,
		run.Design, run.Top, run.StartedAt, run.ExitStatus, run.Diagnostic,
	)
	if err != nil {
		return 0, fmt.Errorf("auditlog: could not insert run: %w", err)
	}
	id64, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("auditlog: could not read run id: %w", err)
	}
	id := uint32(id64)

	for _, p := range run.Passes {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO pass_timings (run_id, name, duration_ns) VALUES (?, ?, ?)`,
			id, p.Name, p.Duration.Nanoseconds(),
		); err != nil {
			return 0, fmt.Errorf("auditlog: could not insert pass timing %q: %w", p.Name, err)
		}
	}

	for _, a := range run.Artefacts {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO artefacts (run_id, path) VALUES (?, ?)`,
			id, a,
		); err != nil {
			return 0, fmt.Errorf("auditlog: could not insert artefact %q: %w", a, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("auditlog: could not commit run: %w", err)
	}
	return id, nil
}

// LastRun returns the most recently recorded run for design, or
// sql.ErrNoRows if none exists.
func (db *DB) LastRun(ctx context.Context, design string) (Run, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var run Run
	rows, err := db.db.QueryContext(
		ctx,
		`SELECT id, design, top, started_at, exit_status, diagnostic FROM runs WHERE design=? ORDER BY started_at DESC LIMIT 1`,
		design,
	)
	if err != nil {
		return run, fmt.Errorf("auditlog: could not query last run: %w", err)
	}
	defer rows.Close()

	found := false
	for rows.Next() {
		if err := rows.Scan(&run.ID, &run.Design, &run.Top, &run.StartedAt, &run.ExitStatus, &run.Diagnostic); err != nil {
			return run, fmt.Errorf("auditlog: could not scan last run: %w", err)
		}
		found = true
	}
	if err := rows.Err(); err != nil {
		return run, fmt.Errorf("auditlog: could not scan db for last run: %w", err)
	}
	if !found {
		return run, sql.ErrNoRows
	}

	return db.loadRunDetails(ctx, run)
}

func (db *DB) loadRunDetails(ctx context.Context, run Run) (Run, error) {
	prows, err := db.db.QueryContext(ctx, `SELECT name, duration_ns FROM pass_timings WHERE run_id=?`, run.ID)
	if err != nil {
		return run, fmt.Errorf("auditlog: could not query pass timings: %w", err)
	}
	defer prows.Close()
	for prows.Next() {
		var name string
		var ns int64
		if err := prows.Scan(&name, &ns); err != nil {
			return run, fmt.Errorf("auditlog: could not scan pass timing: %w", err)
		}
		run.Passes = append(run.Passes, PassTiming{Name: name, Duration: time.Duration(ns)})
	}
	if err := prows.Err(); err != nil {
		return run, fmt.Errorf("auditlog: could not scan db for pass timings: %w", err)
	}

	arows, err := db.db.QueryContext(ctx, `SELECT path FROM artefacts WHERE run_id=?`, run.ID)
	if err != nil {
		return run, fmt.Errorf("auditlog: could not query artefacts: %w", err)
	}
	defer arows.Close()
	for arows.Next() {
		var path string
		if err := arows.Scan(&path); err != nil {
			return run, fmt.Errorf("auditlog: could not scan artefact: %w", err)
		}
		run.Artefacts = append(run.Artefacts, path)
	}
	if err := arows.Err(); err != nil {
		return run, fmt.Errorf("auditlog: could not scan db for artefacts: %w", err)
	}

	return run, nil
}
