// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package elf

import (
	"debug/elf"
	"fmt"
	"io"
)

// A SegmentHeader is one entry of the program header table.
type SegmentHeader struct {
	Type   elf.ProgType
	Flags  elf.ProgFlag
	Offset uint64
	Vaddr  uint64
	Paddr  uint64
	Filesz uint64
	Memsz  uint64
	Align  uint64
}

func (ph *SegmentHeader) String() string {
	return fmt.Sprintf("%s %s off=%#x vaddr=%#x filesz=%#x memsz=%#x",
		ph.Type, ph.Flags, ph.Offset, ph.Vaddr, ph.Filesz, ph.Memsz)
}

// SegmentHeaderEntsize returns the encoded size of one program header.
func SegmentHeaderEntsize(eh *Header) int {
	if eh.Class == elf.ELFCLASS32 {
		return 32
	}
	return 56
}

// FromReader decodes one program header. The field order differs between
// classes: ELF64 moves p_flags up next to p_type.
func (ph *SegmentHeader) FromReader(r io.Reader, eh *Header) error {
	b := make([]byte, SegmentHeaderEntsize(eh))
	if _, err := io.ReadFull(r, b); err != nil {
		return &TruncatedError{"program header", err}
	}
	l := eh.Layout()
	ph.Type = elf.ProgType(l.Uint32(b[0:]))
	if eh.Class == elf.ELFCLASS32 {
		ph.Offset = uint64(l.Uint32(b[4:]))
		ph.Vaddr = uint64(l.Uint32(b[8:]))
		ph.Paddr = uint64(l.Uint32(b[12:]))
		ph.Filesz = uint64(l.Uint32(b[16:]))
		ph.Memsz = uint64(l.Uint32(b[20:]))
		ph.Flags = elf.ProgFlag(l.Uint32(b[24:]))
		ph.Align = uint64(l.Uint32(b[28:]))
	} else {
		ph.Flags = elf.ProgFlag(l.Uint32(b[4:]))
		ph.Offset = l.Uint64(b[8:])
		ph.Vaddr = l.Uint64(b[16:])
		ph.Paddr = l.Uint64(b[24:])
		ph.Filesz = l.Uint64(b[32:])
		ph.Memsz = l.Uint64(b[40:])
		ph.Align = l.Uint64(b[48:])
	}
	return nil
}

// ToWriter encodes one program header.
func (ph *SegmentHeader) ToWriter(w io.Writer, eh *Header) error {
	b := make([]byte, SegmentHeaderEntsize(eh))
	l := eh.Layout()
	l.PutUint32(b[0:], uint32(ph.Type))
	if eh.Class == elf.ELFCLASS32 {
		l.PutUint32(b[4:], uint32(ph.Offset))
		l.PutUint32(b[8:], uint32(ph.Vaddr))
		l.PutUint32(b[12:], uint32(ph.Paddr))
		l.PutUint32(b[16:], uint32(ph.Filesz))
		l.PutUint32(b[20:], uint32(ph.Memsz))
		l.PutUint32(b[24:], uint32(ph.Flags))
		l.PutUint32(b[28:], uint32(ph.Align))
	} else {
		l.PutUint32(b[4:], uint32(ph.Flags))
		l.PutUint64(b[8:], ph.Offset)
		l.PutUint64(b[16:], ph.Vaddr)
		l.PutUint64(b[24:], ph.Paddr)
		l.PutUint64(b[32:], ph.Filesz)
		l.PutUint64(b[40:], ph.Memsz)
		l.PutUint64(b[48:], ph.Align)
	}
	_, err := w.Write(b)
	return err
}
