// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package elf

import (
	"debug/elf"
	"fmt"
)

// A Relocation is one entry of a RELA section.
//
// Type holds the x86-64 relocation kind. For ELF32 inputs the raw type
// number is preserved in the same field; the linker only processes x86-64
// inputs.
type Relocation struct {
	Addr   uint64
	Type   elf.R_X86_64
	Sym    uint32
	Addend int64
}

func (r Relocation) String() string {
	return fmt.Sprintf("%s @%#x sym=%d addend=%d", r.Type, r.Addr, r.Sym, r.Addend)
}

// RelocationEntsize returns the encoded size of one RELA record.
func RelocationEntsize(eh *Header) int {
	if eh.Class == elf.ELFCLASS32 {
		return 12
	}
	return 24
}

func decodeRelocations(b []byte, eh *Header) (Relocations, error) {
	l := eh.Layout()
	es := RelocationEntsize(eh)

	rels := make(Relocations, 0, len(b)/es)
	for len(b) > 0 {
		if len(b) < es {
			return nil, &TruncatedError{"relocation", fmt.Errorf("%d trailing bytes", len(b))}
		}
		var rel Relocation
		if eh.Class == elf.ELFCLASS32 {
			rel.Addr = uint64(l.Uint32(b[0:]))
			info := l.Uint32(b[4:])
			rel.Sym = info >> 8
			rel.Type = elf.R_X86_64(info & 0xff)
			rel.Addend = int64(l.Int32(b[8:]))
		} else {
			rel.Addr = l.Uint64(b[0:])
			info := l.Uint64(b[8:])
			rel.Sym = uint32(info >> 32)
			rel.Type = elf.R_X86_64(info & 0xffffffff)
			rel.Addend = l.Int64(b[16:])
		}
		rels = append(rels, rel)
		b = b[es:]
	}
	return rels, nil
}

func (r *Relocation) encode(b []byte, eh *Header) {
	l := eh.Layout()
	if eh.Class == elf.ELFCLASS32 {
		l.PutUint32(b[0:], uint32(r.Addr))
		l.PutUint32(b[4:], r.Sym<<8|uint32(r.Type)&0xff)
		l.PutUint32(b[8:], uint32(int32(r.Addend)))
	} else {
		l.PutUint64(b[0:], r.Addr)
		l.PutUint64(b[8:], uint64(r.Sym)<<32|uint64(uint32(r.Type)))
		l.PutUint64(b[16:], uint64(r.Addend))
	}
}
