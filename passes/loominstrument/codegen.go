// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package loominstrument

import (
	"encoding/json"
	"io"
	"text/template"
)

// jsonArg/jsonFunc/jsonDoc mirror the exact JSON shape of spec §6.
type jsonArg struct {
	Name      string `json:"name"`
	Direction string `json:"direction"`
	Type      string `json:"type"`
	Width     int    `json:"width"`
	Value     string `json:"value,omitempty"`
}

type jsonRet struct {
	Type  string `json:"type"`
	Width int    `json:"width"`
}

type jsonFunc struct {
	ID       int       `json:"id"`
	Name     string    `json:"name"`
	BaseAddr int       `json:"base_addr"`
	Return   *jsonRet  `json:"return"`
	Args     []jsonArg `json:"args"`
}

type jsonDoc struct {
	DesignID      uint32     `json:"design_id"`
	Version       uint32     `json:"version"`
	MailboxBase   int        `json:"mailbox_base"`
	DPIBase       int        `json:"dpi_base"`
	FuncBlockSize int        `json:"func_block_size"`
	Functions     []jsonFunc `json:"dpi_functions"`
}

// MailboxBase is the base address of the emulator control/status
// register file (spec §6).
const MailboxBase = 0x000

// WriteJSON emits the JSON DPI metadata artefact of spec §6.
func WriteJSON(w io.Writer, res *Result) error {
	doc := jsonDoc{
		DesignID:      res.DesignID,
		Version:       res.Version,
		MailboxBase:   MailboxBase,
		DPIBase:       DPIBase,
		FuncBlockSize: BlockSize,
	}
	for _, f := range res.Funcs {
		if f.Builtin {
			continue // builtin __display_* calls have no user-facing JSON entry
		}
		jf := jsonFunc{ID: f.ID, Name: f.Name, BaseAddr: f.BaseAddr}
		if f.RetWidth > 0 {
			jf.Return = &jsonRet{Type: cTypeOf(f.RetWidth, false), Width: f.RetWidth}
		}
		for _, a := range f.Args {
			jf.Args = append(jf.Args, jsonArg{
				Name: a.Name, Direction: a.Direction,
				Type: a.Type, Width: a.Width, Value: a.Value,
			})
		}
		doc.Functions = append(doc.Functions, jf)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// cTypeOf picks a width-based integer family for a bit vector (spec
// §4.3.5 "Type mapping uses width-based integer family selection").
func cTypeOf(width int, signed bool) string {
	u := "uint"
	if signed {
		u = "int"
	}
	switch {
	case width <= 8:
		return u + "8_t"
	case width <= 16:
		return u + "16_t"
	case width <= 32:
		return u + "32_t"
	default:
		return u + "64_t"
	}
}

const cTemplate = `/* generated by loom_instrument; do not edit. */
#include <stdint.h>
#include <stdio.h>

{{range .Funcs}}{{if not .Builtin}}extern uint64_t {{.Name}}({{range $i, $a := .Args}}{{if $i}}, {{end}}{{$a.CType}} {{$a.Name}}{{end}});
{{end}}{{end}}
{{range .Funcs}}static uint64_t _wrap_{{.Name}}(const uint32_t *args) {
{{if .Builtin}}	printf("{{.Format}}"{{range .Args}}, ({{.CType}})args[{{.Offset}}]{{end}});
	return 0;
{{else}}	return (uint64_t){{.Name}}({{range $i, $a := .Args}}{{if $i}}, {{end}}({{$a.CType}})args[{{$a.Offset}}]{{end}});
{{end}}}

{{end}}
typedef uint64_t (*loom_dpi_fn)(const uint32_t *);

struct loom_dpi_entry {
	int func_id;
	const char *name;
	int n_args;
	int ret_width;
	loom_dpi_fn fn;
};

static const struct loom_dpi_entry loom_dpi_table[] = {
{{range .Funcs}}	{ {{.ID}}, "{{.Name}}", {{len .Args}}, {{.RetWidth}}, _wrap_{{.Name}} },
{{end}}};

static const int loom_dpi_table_len = {{len .Funcs}};
`

type tmplArg struct {
	Name   string
	CType  string
	Offset int
}

type tmplFunc struct {
	Name     string
	Builtin  bool
	Format   string
	RetWidth int
	Args     []tmplArg
	ID       int
}

// WriteCSource emits the generated C dispatch source of spec §4.3.5
// using text/template, the idiomatic stdlib choice for source-code
// generation (see DESIGN.md).
func WriteCSource(w io.Writer, res *Result) error {
	t, err := template.New("loom_dpi").Parse(cTemplate)
	if err != nil {
		return err
	}

	funcs := make([]tmplFunc, 0, len(res.Funcs))
	for _, f := range res.Funcs {
		tf := tmplFunc{Name: f.Name, Builtin: f.Builtin, Format: f.Format, RetWidth: f.RetWidth, ID: f.ID}
		offset := 0
		for _, a := range f.Args {
			ctyp := a.Type
			if ctyp == "" {
				ctyp = cTypeOf(a.Width, false)
			}
			tf.Args = append(tf.Args, tmplArg{Name: a.Name, CType: ctyp, Offset: offset})
			offset += (a.Width + 31) / 32
		}
		funcs = append(funcs, tf)
	}

	data := struct{ Funcs []tmplFunc }{Funcs: funcs}
	return t.Execute(w, data)
}
