// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scaninsert

import (
	"encoding/binary"
	"io"

	"github.com/go-lpc/loom/internal/crc16"
)

// WriteScanMap emits the binary, length-prefixed scan map artefact of
// spec §6, trailed by a CRC-16 checksum (matching dif/encoder.go's
// accumulate-then-trail idiom).
func WriteScanMap(w io.Writer, res *Result) error {
	crc := crc16.New(nil)
	mw := io.MultiWriter(w, crc)

	if err := binary.Write(mw, binary.LittleEndian, uint32(res.ChainLength)); err != nil {
		return err
	}
	if err := binary.Write(mw, binary.LittleEndian, uint32(len(res.Map))); err != nil {
		return err
	}
	for _, e := range res.Map {
		if err := writeStr(mw, e.Name); err != nil {
			return err
		}
		if err := binary.Write(mw, binary.LittleEndian, uint32(e.Width)); err != nil {
			return err
		}
		if err := binary.Write(mw, binary.LittleEndian, uint32(e.Offset)); err != nil {
			return err
		}
		if err := writeStr(mw, e.Enum); err != nil {
			return err
		}
		if err := writeStr(mw, e.ResetValue); err != nil {
			return err
		}
		if err := writeStr(mw, e.ResetDPIFunc); err != nil {
			return err
		}
		if err := writeStr(mw, e.ResetDPIArgs); err != nil {
			return err
		}
	}
	return binary.Write(w, binary.LittleEndian, crc.Sum16())
}

func writeStr(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

// ReadScanMap reads the artefact written by WriteScanMap.
func ReadScanMap(r io.Reader) (*Result, error) {
	res := &Result{}
	var chainLen, n uint32
	if err := binary.Read(r, binary.LittleEndian, &chainLen); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	res.ChainLength = int(chainLen)
	res.Map = make([]Entry, n)
	for i := range res.Map {
		name, err := readStr(r)
		if err != nil {
			return nil, err
		}
		var width, offset uint32
		if err := binary.Read(r, binary.LittleEndian, &width); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &offset); err != nil {
			return nil, err
		}
		enum, err := readStr(r)
		if err != nil {
			return nil, err
		}
		resetValue, err := readStr(r)
		if err != nil {
			return nil, err
		}
		resetDPIFunc, err := readStr(r)
		if err != nil {
			return nil, err
		}
		resetDPIArgs, err := readStr(r)
		if err != nil {
			return nil, err
		}
		res.Map[i] = Entry{
			Name: name, Width: int(width), Offset: int(offset), Enum: enum,
			ResetValue: resetValue, ResetDPIFunc: resetDPIFunc, ResetDPIArgs: resetDPIArgs,
		}
	}
	return res, nil
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
