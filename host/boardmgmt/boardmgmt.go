// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build boardmgmt

// Package boardmgmt reads board telemetry (temperature, voltage,
// current) from an SMBus-addressable sensor on the emulation card,
// surfaced alongside the mailbox state for operational visibility.
// It is gated by the boardmgmt build tag since it needs real SMBus
// hardware to link and run against.
//
// There is no retrieved call site for an SMBus sensor in the teacher
// or the rest of the pack; the API shape below follows
// github.com/go-daq/smbus's own Conn/Open/Close/ReadWord surface, the
// same way rpi/rpi.go wraps a hardware register interface behind a
// small Go type.
package boardmgmt

import (
	"github.com/go-daq/smbus"

	"github.com/go-lpc/loom/ir"
)

const op = "host/boardmgmt"

// Sensor addresses and command codes for the card's power monitor.
// These are placeholders for whichever sensor the card actually
// carries; a real deployment overrides them via Config.
const (
	DefaultBus     = 1
	DefaultAddr    = 0x40
	cmdTemperature = 0x08
	cmdVoltage     = 0x02
	cmdCurrent     = 0x04
)

// Config selects which SMBus device to read the card's telemetry
// from.
type Config struct {
	Bus  int
	Addr uint8
}

// DefaultConfig targets the card's onboard power monitor.
func DefaultConfig() Config {
	return Config{Bus: DefaultBus, Addr: DefaultAddr}
}

// Reader reads telemetry from one SMBus sensor.
type Reader struct {
	conn *smbus.Conn
}

// Open connects to the sensor described by cfg.
func Open(cfg Config) (*Reader, error) {
	conn, err := smbus.Open(cfg.Bus, cfg.Addr)
	if err != nil {
		return nil, ir.Wrap(ir.TransportFailure, op, err, "could not open smbus bus=%d addr=0x%02x", cfg.Bus, cfg.Addr)
	}
	return &Reader{conn: conn}, nil
}

// Close releases the underlying SMBus connection.
func (r *Reader) Close() error { return r.conn.Close() }

// Telemetry is one sample of board health.
type Telemetry struct {
	TemperatureC float64
	VoltageV     float64
	CurrentA     float64
}

// Read samples all three telemetry channels.
func (r *Reader) Read() (Telemetry, error) {
	var t Telemetry

	raw, err := r.conn.ReadWord(cmdTemperature)
	if err != nil {
		return t, ir.Wrap(ir.TransportFailure, op, err, "could not read temperature")
	}
	t.TemperatureC = float64(int16(raw)) / 256.0

	raw, err = r.conn.ReadWord(cmdVoltage)
	if err != nil {
		return t, ir.Wrap(ir.TransportFailure, op, err, "could not read voltage")
	}
	t.VoltageV = float64(raw) / 32.0

	raw, err = r.conn.ReadWord(cmdCurrent)
	if err != nil {
		return t, ir.Wrap(ir.TransportFailure, op, err, "could not read current")
	}
	t.CurrentA = float64(raw) / 32.0

	return t, nil
}
