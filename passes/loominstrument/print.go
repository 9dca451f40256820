// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package loominstrument

import (
	"fmt"
	"strings"

	"github.com/go-lpc/loom/ir"
)

// PrintPart is one element of a print cell's format-part list, as
// emitted by the front-end (spec Design Notes §9: "a tagged list of
// parts: literal string, integer-with-signal, string-signal, time
// marker, unicode char").
type PrintPart struct {
	Kind   PartKind
	Lit    string
	Sig    ir.SigSpec
	Base   int  // 2, 8, 10 or 16, for PartInt
	Signed bool // for PartInt
}

// PartKind enumerates the kinds of print-format parts.
type PartKind int

const (
	PartLiteral PartKind = iota
	PartInt
	PartString
	PartTime
	PartUnichar
)

// printLowerer counts __display_N names allocated so far in this run.
type printLowerer struct {
	n int
}

// lowerOne implements spec §4.3.1 for one "print" cell: it adds the
// generated builtin __dpi_call that replaces it (lowerPrints then
// removes the print cell). Time and unichar parts are rejected
// with a diagnostic rather than silently dropped (Design Notes §9).
func (pl *printLowerer) lowerOne(m *ir.Module, c *ir.Cell, parts []PrintPart) (*ir.Cell, error) {
	var (
		format  strings.Builder
		args    ir.SigSpec
		argSpec []struct {
			width  int
			signed bool
		}
	)

	for _, p := range parts {
		switch p.Kind {
		case PartLiteral:
			format.WriteString(escapeC(p.Lit))
		case PartInt:
			format.WriteString(convSpec(p.Base, p.Signed))
			args = ir.Cat(args, p.Sig)
			argSpec = append(argSpec, struct {
				width  int
				signed bool
			}{p.Sig.Width(), p.Signed})
		case PartString:
			format.WriteString("%s")
			args = ir.Cat(args, p.Sig)
			argSpec = append(argSpec, struct {
				width  int
				signed bool
			}{p.Sig.Width(), false})
		case PartTime, PartUnichar:
			return nil, ir.Errorf(ir.UnsupportedConstruct, op,
				"print cell %q: time/unichar format parts are not supported", c.Name)
		}
	}

	name := fmt.Sprintf("__display_%d", pl.n)
	pl.n++

	call := m.AddCell(name, ir.TypeDPICall)
	call.Attrs["builtin"] = "true"
	call.Params["NUM_ARGS"] = ir.IntParam(1)
	call.Params["ARG_WIDTH"] = ir.IntParam(int64(args.Width()))
	call.Params["RET_WIDTH"] = ir.IntParam(0)
	for i, a := range argSpec {
		call.Params[fmt.Sprintf("ARG_%d_NAME", i)] = ir.StrParam(fmt.Sprintf("arg%d", i))
		call.Params[fmt.Sprintf("ARG_%d_WIDTH", i)] = ir.IntParam(int64(a.width))
		if a.signed {
			call.Params[fmt.Sprintf("ARG_%d_TYPE", i)] = ir.StrParam(cTypeOf(a.width, true))
		} else {
			call.Params[fmt.Sprintf("ARG_%d_TYPE", i)] = ir.StrParam(cTypeOf(a.width, false))
		}
	}
	call.Params["FORMAT"] = ir.StrParam(format.String())
	call.Ports["ARGS"] = args
	if en := c.Port("EN"); len(en) > 0 {
		call.Ports["EN"] = en
	}
	return call, nil
}

func escapeC(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\t", `\t`)
	return r.Replace(s)
}

// SetParts encodes parts onto a "print"-typed cell using a flat
// Params/Ports naming scheme (PART_i_*), since ir.Cell has no
// dedicated format-part field: the front-end that produces print
// cells is out of scope (spec §1), so this package defines the
// on-cell encoding it expects to consume.
func SetParts(c *ir.Cell, parts []PrintPart) {
	c.Params["N_PARTS"] = ir.IntParam(int64(len(parts)))
	for i, p := range parts {
		key := fmt.Sprintf("PART_%d", i)
		c.Params[key+"_KIND"] = ir.IntParam(int64(p.Kind))
		c.Params[key+"_LIT"] = ir.StrParam(p.Lit)
		c.Params[key+"_BASE"] = ir.IntParam(int64(p.Base))
		if p.Signed {
			c.Params[key+"_SIGNED"] = ir.IntParam(1)
		}
		if len(p.Sig) > 0 {
			c.Ports[key+"_SIG"] = p.Sig
		}
	}
}

// PartsOf decodes the parts encoded by SetParts.
func PartsOf(c *ir.Cell) []PrintPart {
	n := int(c.IntParamOr("N_PARTS", 0))
	parts := make([]PrintPart, n)
	for i := range parts {
		key := fmt.Sprintf("PART_%d", i)
		parts[i] = PrintPart{
			Kind:   PartKind(c.IntParamOr(key+"_KIND", 0)),
			Lit:    c.StrParamOr(key+"_LIT", ""),
			Base:   int(c.IntParamOr(key+"_BASE", 10)),
			Signed: c.IntParamOr(key+"_SIGNED", 0) != 0,
			Sig:    c.Ports[key+"_SIG"],
		}
	}
	return parts
}

func convSpec(base int, signed bool) string {
	switch base {
	case 2:
		return "%b" // non-standard but matches the original's base-2 support
	case 8:
		if signed {
			return "%o"
		}
		return "%o"
	case 16:
		if signed {
			return "%x"
		}
		return "%x"
	default:
		if signed {
			return "%d"
		}
		return "%u"
	}
}
