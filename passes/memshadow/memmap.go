// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memshadow

import (
	"encoding/binary"
	"io"

	"github.com/go-lpc/loom/internal/crc16"
)

// memMapFlagInitContent / memMapFlagInitFile mark which optional
// fields follow a record (spec §4.4 "optional initial bytes, optional
// init-file path and hex/bin flag").
const (
	memMapFlagInitContent = 1 << 0
	memMapFlagInitFile    = 1 << 1
	memMapFlagInitHex     = 1 << 2
)

// WriteMemMap emits the binary memory-map artefact of spec §4.4/§6,
// trailed by a CRC-16 checksum (matching scaninsert's scan-map idiom,
// itself grounded on dif/encoder.go).
func WriteMemMap(w io.Writer, res *Result) error {
	crc := crc16.New(nil)
	mw := io.MultiWriter(w, crc)

	if err := binary.Write(mw, binary.LittleEndian, uint32(res.TotalBytes)); err != nil {
		return err
	}
	if err := binary.Write(mw, binary.LittleEndian, uint32(res.AddrBits)); err != nil {
		return err
	}
	if err := binary.Write(mw, binary.LittleEndian, uint32(res.DataBits)); err != nil {
		return err
	}
	if err := binary.Write(mw, binary.LittleEndian, uint32(len(res.Entries))); err != nil {
		return err
	}

	for _, e := range res.Entries {
		if err := writeStr(mw, e.Name); err != nil {
			return err
		}
		for _, v := range []int{e.Depth, e.Width, e.AddrBits, e.BaseAddr, e.EndAddr} {
			if err := binary.Write(mw, binary.LittleEndian, uint32(v)); err != nil {
				return err
			}
		}

		var flags uint8
		if e.HasInitialContent {
			flags |= memMapFlagInitContent
		}
		if e.InitFile != "" {
			flags |= memMapFlagInitFile
		}
		if e.InitFileIsHex {
			flags |= memMapFlagInitHex
		}
		if err := binary.Write(mw, binary.LittleEndian, flags); err != nil {
			return err
		}

		if e.HasInitialContent {
			if err := binary.Write(mw, binary.LittleEndian, uint32(len(e.InitialContent))); err != nil {
				return err
			}
			if _, err := mw.Write(e.InitialContent); err != nil {
				return err
			}
		}
		if e.InitFile != "" {
			if err := writeStr(mw, e.InitFile); err != nil {
				return err
			}
		}
	}

	return binary.Write(w, binary.LittleEndian, crc.Sum16())
}

// ReadMemMap reads the artefact written by WriteMemMap.
func ReadMemMap(r io.Reader) (*Result, error) {
	res := &Result{}
	var totalBytes, addrBits, dataBits, n uint32
	for _, p := range []*uint32{&totalBytes, &addrBits, &dataBits, &n} {
		if err := binary.Read(r, binary.LittleEndian, p); err != nil {
			return nil, err
		}
	}
	res.TotalBytes = int(totalBytes)
	res.AddrBits = int(addrBits)
	res.DataBits = int(dataBits)
	res.Entries = make([]MemEntry, n)

	for i := range res.Entries {
		name, err := readStr(r)
		if err != nil {
			return nil, err
		}
		var depth, width, ab, base, end uint32
		for _, p := range []*uint32{&depth, &width, &ab, &base, &end} {
			if err := binary.Read(r, binary.LittleEndian, p); err != nil {
				return nil, err
			}
		}
		var flags uint8
		if err := binary.Read(r, binary.LittleEndian, &flags); err != nil {
			return nil, err
		}

		e := MemEntry{
			Name: name, Depth: int(depth), Width: int(width),
			AddrBits: int(ab), BaseAddr: int(base), EndAddr: int(end),
			InitFileIsHex: flags&memMapFlagInitHex != 0,
		}

		if flags&memMapFlagInitContent != 0 {
			var clen uint32
			if err := binary.Read(r, binary.LittleEndian, &clen); err != nil {
				return nil, err
			}
			buf := make([]byte, clen)
			if _, err := io.ReadFull(r, buf); err != nil {
				return nil, err
			}
			e.InitialContent = buf
			e.HasInitialContent = true
		}
		if flags&memMapFlagInitFile != 0 {
			f, err := readStr(r)
			if err != nil {
				return nil, err
			}
			e.InitFile = f
		}

		res.Entries[i] = e
	}
	return res, nil
}

func writeStr(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readStr(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
