// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

// Built-in cell type tags understood by the passes (spec §3).
const (
	TypeAnd      = "and"
	TypeOr       = "or"
	TypeNot      = "not"
	TypeMux      = "mux"
	TypePmux     = "pmux"
	TypeReduceOr = "reduce_or"
	TypeEq       = "eq"
	TypeGe       = "ge"
	TypeLt       = "lt"
	TypeSub      = "sub"

	TypeDff    = "dff"
	TypeDffe   = "dffe"
	TypeAdff   = "adff"
	TypeAdffe  = "adffe"
	TypeSdff   = "sdff"
	TypeSdffe  = "sdffe"
	TypeSdffce = "sdffce"
	TypeDffsr  = "dffsr"
	TypeDffsre = "dffsre"
	TypeAldff  = "aldff"
	TypeAldffe = "aldffe"

	TypeDPICall = "__dpi_call"
	TypeFinish  = "__finish"
	TypePrint   = "print"
)

// flopTypes lists every FF type the passes must recognize.
var flopTypes = map[string]bool{
	TypeDff: true, TypeDffe: true,
	TypeAdff: true, TypeAdffe: true,
	TypeSdff: true, TypeSdffe: true, TypeSdffce: true,
	TypeDffsr: true, TypeDffsre: true,
	TypeAldff: true, TypeAldffe: true,
}

// IsFlop reports whether typ names one of the built-in FF primitives.
func IsFlop(typ string) bool { return flopTypes[typ] }

// Param is a compile-time cell parameter: either a signed integer
// (widths, polarities, reset/enable values) or a string (format
// specs, function names).
type Param struct {
	IsString bool
	Int      int64
	Str      string
}

// IntParam builds an integer parameter.
func IntParam(v int64) Param { return Param{Int: v} }

// StrParam builds a string parameter.
func StrParam(v string) Param { return Param{IsString: true, Str: v} }

// Cell is a parameterised primitive with named typed ports connected
// to bit-slices of wires (spec §3).
type Cell struct {
	ID   CellID
	Name string
	Type string

	Params map[string]Param
	Ports  map[string]SigSpec

	Attrs map[string]string
}

// Port returns the SigSpec connected to the named port, or nil.
func (c *Cell) Port(name string) SigSpec { return c.Ports[name] }

// IntParamOr returns the integer value of param name, or def if absent.
func (c *Cell) IntParamOr(name string, def int64) int64 {
	p, ok := c.Params[name]
	if !ok {
		return def
	}
	return p.Int
}

// StrParamOr returns the string value of param name, or def if absent.
func (c *Cell) StrParamOr(name, def string) string {
	p, ok := c.Params[name]
	if !ok {
		return def
	}
	return p.Str
}

// BoolAttr reports whether the named attribute is set to a truthy
// value ("1", "true").
func (c *Cell) BoolAttr(name string) bool {
	v, ok := c.Attrs[name]
	return ok && (v == "1" || v == "true")
}
