// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package elf

import (
	"debug/elf"
	"fmt"
)

// A Symbol is one entry of a SYMTAB or DYNSYM section.
type Symbol struct {
	Name  []byte
	Type  elf.SymType
	Bind  elf.SymBind
	Vis   elf.SymVis
	Shndx elf.SectionIndex
	Value uint64
	Size  uint64

	// nameOff is the offset of Name in the linked string table. It is
	// assigned by sync and consumed by the encoder.
	nameOff uint32
}

// DefinedIn returns the index of the section this symbol is defined in.
// It reports false for undefined, absolute and common symbols, and for
// the reserved index range.
func (s *Symbol) DefinedIn() (uint16, bool) {
	switch s.Shndx {
	case elf.SHN_UNDEF, elf.SHN_ABS, elf.SHN_COMMON:
		return 0, false
	}
	if s.Shndx >= elf.SHN_LORESERVE {
		return 0, false
	}
	return uint16(s.Shndx), true
}

func (s *Symbol) String() string {
	return fmt.Sprintf("%s %s %s %#x", s.Bind, s.Type, s.Name, s.Value)
}

// SymbolEntsize returns the encoded size of one symbol record.
func SymbolEntsize(eh *Header) int {
	if eh.Class == elf.ELFCLASS32 {
		return 16
	}
	return 24
}

// decodeSymbols decodes a symbol table from its wire form. Names are
// resolved through linked, the content of the table's string section.
func decodeSymbols(b []byte, linked Content, eh *Header) (Symbols, error) {
	l := eh.Layout()
	es := SymbolEntsize(eh)
	strs, _ := linked.(*Strtab)

	syms := make(Symbols, 0, len(b)/es)
	for len(b) > 0 {
		if len(b) < es {
			return nil, &TruncatedError{"symbol", fmt.Errorf("%d trailing bytes", len(b))}
		}
		var sym Symbol
		var info, other uint8
		if eh.Class == elf.ELFCLASS32 {
			sym.nameOff = l.Uint32(b[0:])
			sym.Value = uint64(l.Uint32(b[4:]))
			sym.Size = uint64(l.Uint32(b[8:]))
			info = b[12]
			other = b[13]
			sym.Shndx = elf.SectionIndex(l.Uint16(b[14:]))
		} else {
			sym.nameOff = l.Uint32(b[0:])
			info = b[4]
			other = b[5]
			sym.Shndx = elf.SectionIndex(l.Uint16(b[6:]))
			sym.Value = l.Uint64(b[8:])
			sym.Size = l.Uint64(b[16:])
		}
		sym.Type = elf.ST_TYPE(info)
		sym.Bind = elf.ST_BIND(info)
		sym.Vis = elf.ST_VISIBILITY(other)
		if strs != nil {
			sym.Name = strs.Get(sym.nameOff)
		}
		syms = append(syms, sym)
		b = b[es:]
	}
	return syms, nil
}

// sync interns the symbol's name into the linked string table.
func (s *Symbol) sync(linked Content, eh *Header) error {
	if strs, ok := linked.(*Strtab); ok {
		s.nameOff = strs.Insert(s.Name)
	}
	return nil
}

// encode writes the symbol's wire form into b, which must hold at least
// SymbolEntsize bytes.
func (s *Symbol) encode(b []byte, eh *Header) {
	l := eh.Layout()
	info := uint8(s.Bind)<<4 | uint8(s.Type)&0xf
	other := uint8(s.Vis) & 0x3
	if eh.Class == elf.ELFCLASS32 {
		l.PutUint32(b[0:], s.nameOff)
		l.PutUint32(b[4:], uint32(s.Value))
		l.PutUint32(b[8:], uint32(s.Size))
		b[12] = info
		b[13] = other
		l.PutUint16(b[14:], uint16(s.Shndx))
	} else {
		l.PutUint32(b[0:], s.nameOff)
		b[4] = info
		b[5] = other
		l.PutUint16(b[6:], uint16(s.Shndx))
		l.PutUint64(b[8:], s.Value)
		l.PutUint64(b[16:], s.Size)
	}
}
